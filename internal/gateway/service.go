package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"timetask/internal/task"
	"timetask/pkg/logx"
)

var (
	// ErrDebounced marks a command discarded because the same identity
	// submitted another command within the debounce window.
	ErrDebounced = errors.New("command debounced")

	// ErrInvalidRequest marks a request that failed validation.
	ErrInvalidRequest = errors.New("invalid task request")
)

// Config controls command ingestion.
type Config struct {
	DebounceWindow time.Duration // default 100ms
	MaxIDRetries   int           // regenerations after an id collision; default 3
}

func (c Config) withDefaults() Config {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 100 * time.Millisecond
	}
	if c.MaxIDRetries <= 0 {
		c.MaxIDRetries = 3
	}
	return c
}

// AddRequest is a validated command to create one task. Parsing human
// command text into this shape is the transport layer's job.
type AddRequest struct {
	Recurrence  task.Recurrence
	ScheduledAt string
	Payload     string
	Dest        task.Destination
	Origin      task.Origin
}

// Service is the single writer of the task registry: debounced ingestion
// of add/cancel/list commands.
type Service struct {
	cfg   Config
	reg   *task.Registry
	ids   task.IDGenerator
	clock task.Clock
	log   logx.Logger

	// nowFn is the monotonic source for debounce; swapped in tests.
	nowFn func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func New(cfg Config, reg *task.Registry, ids task.IDGenerator, clock task.Clock, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		reg:      reg,
		ids:      ids,
		clock:    clock,
		log:      log,
		nowFn:    time.Now,
		lastSeen: map[string]time.Time{},
	}
}

// Add validates the request, assigns a fresh id and writes the task
// through to store and registry. On an id collision it regenerates rather
// than surfacing the collision to the user.
func (s *Service) Add(ctx context.Context, req AddRequest) (task.Task, error) {
	if !s.accept(req.Origin.UserID) {
		return task.Task{}, ErrDebounced
	}
	if err := s.validate(req); err != nil {
		return task.Task{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxIDRetries; attempt++ {
		t := task.Task{
			ID:          s.ids.NewID(),
			ScheduledAt: req.ScheduledAt,
			Recurrence:  req.Recurrence,
			Payload:     req.Payload,
			Dest:        req.Dest,
			Origin:      req.Origin,
		}
		err := s.reg.Add(ctx, t)
		if err == nil {
			s.log.Info("task registered",
				logx.String("id", t.ID),
				logx.String("recurrence", t.Recurrence.Wire()),
				logx.String("at", t.ScheduledAt),
				logx.String("by", t.Origin.UserName))
			return t, nil
		}
		if errors.Is(err, task.ErrDuplicateID) {
			s.log.Warn("task id collision, regenerating", logx.String("id", t.ID))
			lastErr = err
			continue
		}
		return task.Task{}, err
	}
	return task.Task{}, fmt.Errorf("could not allocate a unique task id: %w", lastErr)
}

// Cancel removes a task by id. Returns task.ErrNotFound for unknown ids.
func (s *Service) Cancel(ctx context.Context, originUserID, taskID string) error {
	if !s.accept(originUserID) {
		return ErrDebounced
	}
	if err := s.reg.Remove(ctx, taskID); err != nil {
		return err
	}
	s.log.Info("task cancelled", logx.String("id", taskID), logx.String("by", originUserID))
	return nil
}

// List returns all registered tasks sorted by id.
func (s *Service) List(originUserID string) ([]task.Task, error) {
	if !s.accept(originUserID) {
		return nil, ErrDebounced
	}
	tasks := s.reg.Snapshot()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// accept implements the per-identity debounce: a command within the window
// of the identity's previous accepted command is discarded, and a
// discarded command does not move the window.
func (s *Service) accept(userID string) bool {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastSeen[userID]; ok && now.Sub(last) < s.cfg.DebounceWindow {
		s.log.Debug("ignored duplicate command", logx.String("user", userID))
		return false
	}
	s.lastSeen[userID] = now
	return true
}

func (s *Service) validate(req AddRequest) error {
	if req.Recurrence == nil {
		return fmt.Errorf("%w: missing recurrence", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Payload) == "" {
		return fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}
	if req.Dest.Kind == task.TargetGroup && strings.TrimSpace(req.Dest.GroupTitle) == "" {
		return fmt.Errorf("%w: group destination without title", ErrInvalidRequest)
	}

	now := s.clock.Now()
	if _, oneShot := req.Recurrence.(task.Once); oneShot {
		date, hhmm, err := splitDateTime(req.ScheduledAt)
		if err != nil {
			return err
		}
		if !validHHMM(hhmm) || !validDate(date) {
			return fmt.Errorf("%w: bad one-shot time %q", ErrInvalidRequest, req.ScheduledAt)
		}
		// Lexicographic compare works because both sides share the
		// zero-padded "YYYY-MM-DD HH:MM" layout.
		if req.ScheduledAt < now.Date+" "+now.HHMM {
			return fmt.Errorf("%w: time %q is already past", ErrInvalidRequest, req.ScheduledAt)
		}
		return nil
	}
	if !validHHMM(req.ScheduledAt) {
		return fmt.Errorf("%w: bad time %q, expected HH:MM", ErrInvalidRequest, req.ScheduledAt)
	}
	return nil
}

func splitDateTime(s string) (date, hhmm string, err error) {
	parts := strings.Split(s, " ")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: one-shot time %q must be \"YYYY-MM-DD HH:MM\"", ErrInvalidRequest, s)
	}
	return parts[0], parts[1], nil
}

func validHHMM(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return false
	}
	return true
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
