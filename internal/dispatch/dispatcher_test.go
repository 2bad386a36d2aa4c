package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timetask/internal/task"
	"timetask/pkg/logx"
)

type fakeResolver struct {
	handle string
	err    error
}

func (f fakeResolver) Resolve(context.Context, task.Destination) (string, error) {
	return f.handle, f.err
}

type fakeTransport struct {
	mu       sync.Mutex
	attempts int
	failN    int // first failN attempts fail
	block    time.Duration
}

func (f *fakeTransport) Deliver(ctx context.Context, _, _ string) error {
	f.mu.Lock()
	f.attempts++
	n := f.attempts
	f.mu.Unlock()

	if f.block > 0 {
		select {
		case <-time.After(f.block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= f.failN {
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func testTask() task.Task {
	return task.Task{
		ID: "T1", ScheduledAt: "09:00", Recurrence: task.EveryDay{},
		Payload: "hello", Dest: task.DirectTo("42"),
	}
}

func TestRunDeliversFirstTry(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	d := New(Config{RetryBase: time.Millisecond}, fakeResolver{handle: "42"}, tr, logx.Nop())

	d.Run(context.Background(), testTask())
	if tr.count() != 1 {
		t.Fatalf("attempts = %d, want 1", tr.count())
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{failN: 2}
	d := New(Config{RetryMax: 2, RetryBase: time.Millisecond}, fakeResolver{handle: "42"}, tr, logx.Nop())

	d.Run(context.Background(), testTask())
	if tr.count() != 3 {
		t.Fatalf("attempts = %d, want 3", tr.count())
	}
}

func TestRunGivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{failN: 100}
	d := New(Config{RetryMax: 2, RetryBase: time.Millisecond}, fakeResolver{handle: "42"}, tr, logx.Nop())

	d.Run(context.Background(), testTask())
	if tr.count() != 3 {
		t.Fatalf("attempts = %d, want 3 (initial + 2 retries)", tr.count())
	}
}

func TestRunSkipsUnresolvedGroupSilently(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	d := New(Config{RetryBase: time.Millisecond}, fakeResolver{err: ErrUnresolved}, tr, logx.Nop())

	tk := testTask()
	tk.Dest = task.GroupByTitle("Gone")
	d.Run(context.Background(), tk)
	if tr.count() != 0 {
		t.Fatalf("attempts = %d, want 0", tr.count())
	}
}

func TestRunAbandonsWaitOnTimeout(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{block: 500 * time.Millisecond}
	d := New(Config{Timeout: 20 * time.Millisecond, RetryBase: time.Millisecond},
		fakeResolver{handle: "42"}, tr, logx.Nop())

	start := time.Now()
	d.Run(context.Background(), testTask())
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("Run blocked for %v, want return near the 20ms timeout", elapsed)
	}
}

func TestRunStopsRetryingOnCancel(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{failN: 100}
	d := New(Config{RetryMax: 2, RetryBase: time.Hour}, fakeResolver{handle: "42"}, tr, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	d.Run(ctx, testTask())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run blocked for %v despite cancellation", elapsed)
	}
	if tr.count() != 1 {
		t.Fatalf("attempts = %d, want 1 (backoff interrupted)", tr.count())
	}
}
