package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInlineRunnerRunsSynchronously(t *testing.T) {
	r := NewInlineJobRunner(zap.NewNop())

	ran := false
	err := r.Submit(context.Background(), Job{
		Key:  "clean:1",
		Name: "clean upload",
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, ran, "inline submit returns after the job ran")

	assert.NoError(t, r.Drain(context.Background()))
}

func TestInlineRunnerPropagatesJobError(t *testing.T) {
	r := NewInlineJobRunner(zap.NewNop())

	wantErr := errors.New("parse failed")
	err := r.Submit(context.Background(), Job{
		Key:  "clean:2",
		Name: "clean upload",
		Run:  func(ctx context.Context) error { return wantErr },
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestQueueRunnerDrainWaitsForJobs(t *testing.T) {
	r := NewQueueJobRunner(2, nil, zap.NewNop())

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		err := r.Submit(context.Background(), Job{
			Name:  "clean upload",
			Heavy: true,
			Run: func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				done.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))
	assert.Equal(t, int32(5), done.Load())
}

func TestQueueRunnerBoundsParallelism(t *testing.T) {
	const maxParallel = 2
	r := NewQueueJobRunner(maxParallel, nil, zap.NewNop())

	var mu sync.Mutex
	running, peak := 0, 0

	for i := 0; i < 6; i++ {
		err := r.Submit(context.Background(), Job{
			Name:  "clean upload",
			Heavy: true,
			Run: func(ctx context.Context) error {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()

				time.Sleep(20 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			},
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, maxParallel)
	assert.Positive(t, peak)
}

func TestQueueRunnerWithoutRedisSkipsLocking(t *testing.T) {
	r := NewQueueJobRunner(1, nil, zap.NewNop())

	// Same key twice without Redis: both run, no cross-process idempotency.
	var runs atomic.Int32
	for i := 0; i < 2; i++ {
		err := r.Submit(context.Background(), Job{
			Key:  "clean:same",
			Name: "clean upload",
			Run: func(ctx context.Context) error {
				runs.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))
	assert.Equal(t, int32(2), runs.Load())
}
