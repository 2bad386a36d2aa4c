package task

import (
	"context"
	"sync"

	"timetask/pkg/logx"
)

// Store is the persistence contract the Registry writes through. All
// operations are synchronous and individually transactional.
type Store interface {
	LoadAll(ctx context.Context) ([]Task, error)
	Insert(ctx context.Context, t Task) error // ErrDuplicateID on id collision
	Delete(ctx context.Context, id string) error
	SetProcessed(ctx context.Context, id string, v bool) error
	ResetProcessed(ctx context.Context) (int64, error)
}

// Registry is the in-memory id → Task table consulted by the scheduler
// loop. Every mutation goes store-first-then-memory inside one critical
// section, so the two views never observably diverge mid-operation.
type Registry struct {
	mu    sync.Mutex
	store Store
	tasks map[string]Task
	log   logx.Logger
}

func NewRegistry(store Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		store: store,
		tasks: map[string]Task{},
		log:   log,
	}
}

// Hydrate replaces the in-memory table with the store's contents. Called
// once at startup.
func (r *Registry) Hydrate(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded, err := r.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	r.tasks = make(map[string]Task, len(loaded))
	for _, t := range loaded {
		r.tasks[t.ID] = t
	}
	return len(r.tasks), nil
}

// Add persists the task and publishes it to the in-memory table.
// Returns ErrDuplicateID if the id already exists in either view.
func (r *Registry) Add(ctx context.Context, t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.ID]; exists {
		return ErrDuplicateID
	}
	if err := r.store.Insert(ctx, t); err != nil {
		return err
	}
	r.tasks[t.ID] = t
	r.log.Debug("task added", logx.String("id", t.ID), logx.String("recurrence", t.Recurrence.Wire()), logx.String("at", t.ScheduledAt))
	return nil
}

// Remove deletes the task from store and memory. Returns ErrNotFound when
// the id is unknown; the store delete itself is idempotent.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; !exists {
		return ErrNotFound
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	delete(r.tasks, id)
	r.log.Debug("task removed", logx.String("id", id))
	return nil
}

// MarkProcessed flips the per-day fired flag in store and memory.
// Unknown ids are a no-op.
func (r *Registry) MarkProcessed(ctx context.Context, id string, v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.tasks[id]
	if !exists {
		return nil
	}
	if err := r.store.SetProcessed(ctx, id, v); err != nil {
		return err
	}
	t.Processed = v
	r.tasks[id] = t
	return nil
}

// ResetProcessed clears the fired flag on every task that has it set.
// Called once per calendar day at the midnight boundary.
func (r *Registry) ResetProcessed(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.ResetProcessed(ctx); err != nil {
		return 0, err
	}
	n := 0
	for id, t := range r.tasks {
		if t.Processed {
			t.Processed = false
			r.tasks[id] = t
			n++
		}
	}
	return n, nil
}

// Get returns one task by id.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Snapshot returns a point-in-time copy so callers can iterate without
// holding the registry lock across a whole evaluation pass.
func (r *Registry) Snapshot() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
