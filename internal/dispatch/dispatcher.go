package dispatch

import (
	"context"
	"errors"
	"time"

	"timetask/internal/task"
	"timetask/pkg/logx"
)

// ErrUnresolved means the address book has no handle for the destination.
// For group destinations this fire is silently consumed.
var ErrUnresolved = errors.New("destination not resolved")

// Resolver turns an unresolved destination descriptor into a concrete
// routing handle at fire time.
type Resolver interface {
	Resolve(ctx context.Context, d task.Destination) (string, error)
}

// Transport delivers a payload to a resolved handle.
type Transport interface {
	Deliver(ctx context.Context, handle, payload string) error
}

// Config controls per-fire execution bounds.
type Config struct {
	Timeout   time.Duration // bounded wait per fire; default 60s
	RetryMax  int           // additional delivery attempts; default 2
	RetryBase time.Duration // backoff unit, attempts wait base, 2*base, ...; default 3s
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 3 * time.Second
	}
	return c
}

// Dispatcher executes one task's side effect with a bounded wall-clock
// wait and a fixed delivery retry budget.
type Dispatcher struct {
	cfg       Config
	resolver  Resolver
	transport Transport
	log       logx.Logger
}

func New(cfg Config, r Resolver, tr Transport, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{cfg: cfg.withDefaults(), resolver: r, transport: tr, log: log}
}

// Run fires the task and waits at most cfg.Timeout for the trigger logic
// to finish. The timeout stops the wait, not the work: a slow delivery
// attempt keeps running in the background and is simply no longer tracked.
func (d *Dispatcher) Run(ctx context.Context, t task.Task) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.trigger(ctx, t)
	}()

	tmr := time.NewTimer(d.cfg.Timeout)
	defer tmr.Stop()
	select {
	case <-done:
	case <-tmr.C:
		d.log.Warn("dispatch timed out, abandoning wait",
			logx.String("id", t.ID), logx.Duration("timeout", d.cfg.Timeout))
	case <-ctx.Done():
	}
}

func (d *Dispatcher) trigger(ctx context.Context, t task.Task) {
	handle, err := d.resolver.Resolve(ctx, t.Dest)
	if err != nil {
		if t.Dest.Kind == task.TargetGroup && errors.Is(err, ErrUnresolved) {
			// Group vanished or was never seen: consume the fire quietly.
			d.log.Debug("group destination unresolved, skipping delivery",
				logx.String("id", t.ID), logx.String("group", t.Dest.GroupTitle))
			return
		}
		d.log.Warn("destination resolution failed", logx.String("id", t.ID), logx.Err(err))
		return
	}

	d.log.Info("task fired",
		logx.String("id", t.ID),
		logx.String("to", handle),
		logx.String("from", t.Origin.UserName))

	d.deliver(ctx, t, handle)
}

func (d *Dispatcher) deliver(ctx context.Context, t task.Task, handle string) {
	var last error
	for attempt := 0; attempt <= d.cfg.RetryMax; attempt++ {
		err := d.transport.Deliver(ctx, handle, t.Payload)
		if err == nil {
			if attempt > 0 {
				d.log.Info("delivery succeeded after retry", logx.String("id", t.ID), logx.Int("attempt", attempt+1))
			}
			return
		}
		last = err
		if attempt == d.cfg.RetryMax {
			break
		}

		delay := d.cfg.RetryBase * time.Duration(attempt+1)
		d.log.Warn("delivery failed, retrying",
			logx.String("id", t.ID), logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay), logx.Err(last))

		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return
		case <-tmr.C:
		}
	}
	d.log.Error("delivery failed, giving up",
		logx.String("id", t.ID), logx.Int("attempts", d.cfg.RetryMax+1), logx.Err(last))
}
