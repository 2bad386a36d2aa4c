package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"timetask/internal/dispatch"
	"timetask/internal/task"
	"timetask/pkg/logx"
)

// Config controls the polling loop.
type Config struct {
	Interval time.Duration // polling tick; default 5s, must stay <= 1m for minute matching
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Interval > time.Minute {
		c.Interval = time.Minute
	}
	return c
}

// Service is the trigger engine: a fixed-interval loop that samples the
// clock, evaluates every registered task, and fires matches. It runs for
// the process lifetime; per-task failures never stop the loop.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	reg     *task.Registry
	disp    *dispatch.Dispatcher
	clock   task.Clock
	c       *cron.Cron
	running bool

	// tickMu serializes ticks; a tick that outlives the interval is not
	// allowed to overlap the next one.
	tickMu sync.Mutex

	// lastReset is the date of the last midnight reset. Guarded by tickMu.
	lastReset string

	// inflight gates re-evaluation of tasks whose dispatch is still
	// running, so a slow delivery cannot double-fire within one minute.
	imu      sync.Mutex
	inflight map[string]struct{}

	fireWG sync.WaitGroup
}

func New(cfg Config, reg *task.Registry, disp *dispatch.Dispatcher, clock task.Clock, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		log:      log,
		reg:      reg,
		disp:     disp,
		clock:    clock,
		inflight: map[string]struct{}{},
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.c = cron.New(cron.WithParser(parser))
	if _, err := s.c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), func() {
		s.tick(ctx)
	}); err != nil {
		s.c = nil
		return err
	}
	s.running = true
	s.c.Start()

	s.log.Info("trigger loop started",
		logx.Duration("interval", s.cfg.Interval), logx.Int("tasks", s.reg.Len()))
	return nil
}

// Stop halts ticking and waits (bounded by ctx) for in-flight fires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.fireWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("trigger loop stopped")
	case <-ctx.Done():
		s.log.Warn("trigger loop stopped with fires still in flight")
	}
}

// tick is one full evaluation pass. It must never panic its way out.
func (s *Service) tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		// Previous tick still running; skip rather than overlap.
		return
	}
	defer s.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in trigger tick", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	now := s.clock.Now()
	s.maybeResetDay(ctx, now)

	for _, t := range s.reg.Snapshot() {
		if s.isInflight(t.ID) {
			continue
		}
		if _, dead := t.Recurrence.(task.Undefined); dead {
			s.log.Warn("task has undefined recurrence and will never fire", logx.String("id", t.ID))
			continue
		}

		fire, err := task.ShouldFire(t, now)
		if err != nil {
			// Broken record: remove it and keep evaluating the rest.
			s.log.Error("removing malformed task", logx.String("id", t.ID), logx.Err(err))
			if rmErr := s.reg.Remove(ctx, t.ID); rmErr != nil && !errors.Is(rmErr, task.ErrNotFound) {
				s.log.Warn("failed to remove malformed task", logx.String("id", t.ID), logx.Err(rmErr))
			}
			continue
		}
		if !fire {
			continue
		}

		s.markInflight(t.ID)
		s.fireWG.Add(1)
		go s.fireOne(ctx, t)
	}
}

// maybeResetDay flips every processed flag back to false exactly once per
// calendar day. Re-running within the 00:00 minute (or within one date) is
// a no-op thanks to lastReset.
func (s *Service) maybeResetDay(ctx context.Context, now task.Moment) {
	if now.HHMM != "00:00" || now.Date == s.lastReset {
		return
	}
	n, err := s.reg.ResetProcessed(ctx)
	if err != nil {
		// Store hiccup: leave lastReset unset so the next tick retries.
		s.log.Error("midnight reset failed", logx.Err(err))
		return
	}
	s.lastReset = now.Date
	s.log.Info("reset processed flags for new day", logx.String("date", now.Date), logx.Int("tasks", n))
}

// fireOne dispatches a single matched task and then applies the post-fire
// bookkeeping. Dispatch runs to completion (or bounded timeout) first so a
// delivery failure can never desynchronize the fire accounting: the task
// fires at most once per cycle regardless of delivery outcome.
func (s *Service) fireOne(ctx context.Context, t task.Task) {
	defer s.fireWG.Done()
	defer s.clearInflight(t.ID)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in task fire", logx.String("id", t.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	s.disp.Run(ctx, t)

	if t.IsOneShot() {
		if err := s.reg.Remove(ctx, t.ID); err != nil && !errors.Is(err, task.ErrNotFound) {
			s.log.Warn("failed to delete fired one-shot task", logx.String("id", t.ID), logx.Err(err))
		}
		return
	}
	if err := s.reg.MarkProcessed(ctx, t.ID, true); err != nil {
		s.log.Warn("failed to mark task processed", logx.String("id", t.ID), logx.Err(err))
	}
}

func (s *Service) isInflight(id string) bool {
	s.imu.Lock()
	defer s.imu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

func (s *Service) markInflight(id string) {
	s.imu.Lock()
	s.inflight[id] = struct{}{}
	s.imu.Unlock()
}

func (s *Service) clearInflight(id string) {
	s.imu.Lock()
	delete(s.inflight, id)
	s.imu.Unlock()
}
