package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
)

// testTask is a simple task for testing.
type testTask struct {
	BaseTask
	executeFunc func(ctx context.Context, enqueuer TaskEnqueuer) error
}

func newTestTask(name string, heavy bool, fn func(ctx context.Context, enqueuer TaskEnqueuer) error) *testTask {
	return &testTask{
		BaseTask:    NewBaseTask(name, heavy),
		executeFunc: fn,
	}
}

func (t *testTask) Execute(ctx context.Context, enqueuer TaskEnqueuer) error {
	if t.executeFunc != nil {
		return t.executeFunc(ctx, enqueuer)
	}
	return nil
}

func noRetry() RetryConfig {
	return RetryConfig{MaxRetries: 0}
}

func TestQueue_EnqueueAndComplete(t *testing.T) {
	q := New(zap.NewNop())

	executed := false
	task := newTestTask("test-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		executed = true
		return nil
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !executed {
		t.Error("task was not executed")
	}

	if q.CompletedCount() != 1 {
		t.Errorf("expected 1 completed, got %d", q.CompletedCount())
	}
}

func TestQueue_TaskFailure(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(noRetry()))

	expectedErr := errors.New("task failed")
	task := newTestTask("failing-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		return expectedErr
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := q.Wait(ctx)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}

	if !q.HasFailures() {
		t.Error("expected HasFailures to return true")
	}
}

func TestQueue_ThrottledHeavyTasks(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(3)))

	var running int32
	var maxConcurrent int32
	var mu sync.Mutex

	// Six heavy tasks; no more than three may overlap.
	for i := 0; i < 6; i++ {
		task := newTestTask("heavy-task", true, func(ctx context.Context, enqueuer TaskEnqueuer) error {
			current := atomic.AddInt32(&running, 1)
			mu.Lock()
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()

			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		q.Enqueue(task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxConcurrent > 3 {
		t.Errorf("expected at most 3 concurrent heavy tasks, observed %d", maxConcurrent)
	}
}

func TestQueue_ControlTasksSerialized(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(3)))

	var running int32
	var maxConcurrent int32
	var mu sync.Mutex

	for i := 0; i < 3; i++ {
		task := newTestTask("control-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
			current := atomic.AddInt32(&running, 1)
			mu.Lock()
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		q.Enqueue(task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxConcurrent != 1 {
		t.Errorf("expected control tasks serialized, observed %d concurrent", maxConcurrent)
	}
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}))

	var attempts int32
	task := newTestTask("flaky-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient failure")
		}
		return nil
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestQueue_PipelineErrorsNotRetried(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}))

	var attempts int32
	task := newTestTask("bad-data-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		atomic.AddInt32(&attempts, 1)
		return apperrors.MalformedInput(errors.New("bad header"), "parse upload")
	})

	q.Enqueue(task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
}

func TestQueue_FollowUpTasks(t *testing.T) {
	q := New(zap.NewNop())

	var followUpRan int32
	parent := newTestTask("parent-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		enqueuer.Enqueue(newTestTask("child-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
			atomic.AddInt32(&followUpRan, 1)
			return nil
		}))
		return nil
	})

	q.Enqueue(parent)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&followUpRan) != 1 {
		t.Error("follow-up task did not run")
	}
	if q.TaskCount() != 2 {
		t.Errorf("expected 2 tasks, got %d", q.TaskCount())
	}
}

func TestQueue_Cancel(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan struct{})
	task := newTestTask("slow-task", false, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	q.Enqueue(task)
	<-started
	q.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Wait(ctx); err != nil {
		t.Fatalf("unexpected error after cancel: %v", err)
	}

	snapshots := q.GetTasks()
	if len(snapshots) != 1 || snapshots[0].Status != TaskStatusCancelled {
		t.Errorf("expected cancelled task, got %+v", snapshots)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(apperrors.ConfigError("unknown strategy %q", "MAX")) {
		t.Error("pipeline errors must not be retryable")
	}
	if IsRetryable(apperrors.ErrNotFound) {
		t.Error("not-found must not be retryable")
	}
	if !IsRetryable(errors.New("connection reset")) {
		t.Error("plain errors should be retryable")
	}
}
