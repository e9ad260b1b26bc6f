package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/services/workqueue"
)

// Job is one unit of background work. Key is the idempotency key: two
// submissions with the same key while one is in flight run the work once.
type Job struct {
	Key   string
	Name  string
	Heavy bool
	Run   func(ctx context.Context) error
}

// JobRunner executes background jobs. The orchestrator holds one and does
// not know whether work runs inline or on the queue.
type JobRunner interface {
	Submit(ctx context.Context, job Job) error
	// Drain waits for in-flight jobs to finish, up to ctx.
	Drain(ctx context.Context) error
}

// inlineJobRunner executes jobs synchronously in the caller's goroutine.
type inlineJobRunner struct {
	logger *zap.Logger
}

// NewInlineJobRunner creates the synchronous runner.
func NewInlineJobRunner(logger *zap.Logger) JobRunner {
	return &inlineJobRunner{logger: logger.Named("inline_runner")}
}

var _ JobRunner = (*inlineJobRunner)(nil)

func (r *inlineJobRunner) Submit(ctx context.Context, job Job) error {
	r.logger.Debug("running job inline", zap.String("job", job.Name), zap.String("key", job.Key))
	return job.Run(ctx)
}

func (r *inlineJobRunner) Drain(ctx context.Context) error {
	return nil
}

// jobLockTTL bounds how long a queue job may hold its idempotency lock.
const jobLockTTL = 30 * time.Minute

// queueJobRunner executes jobs on the work queue with bounded parallelism.
// When Redis is configured, submission takes a SETNX lock on the job key so
// resubmitting an in-flight upload is a no-op even across processes.
type queueJobRunner struct {
	queue  *workqueue.Queue
	redis  *redis.Client
	logger *zap.Logger
}

// NewQueueJobRunner creates the queue-backed runner. maxParallel bounds
// concurrent heavy jobs; redisClient may be nil.
func NewQueueJobRunner(maxParallel int, redisClient *redis.Client, logger *zap.Logger) JobRunner {
	queue := workqueue.New(logger,
		workqueue.WithStrategy(workqueue.NewThrottledStrategy(maxParallel)))
	return &queueJobRunner{
		queue:  queue,
		redis:  redisClient,
		logger: logger.Named("queue_runner"),
	}
}

var _ JobRunner = (*queueJobRunner)(nil)

// runnerTask adapts a Job to the work queue's Task interface.
type runnerTask struct {
	workqueue.BaseTask
	job     Job
	release func()
}

func (t *runnerTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	defer t.release()
	return t.job.Run(ctx)
}

func (r *queueJobRunner) Submit(ctx context.Context, job Job) error {
	release := func() {}
	if r.redis != nil && job.Key != "" {
		lockKey := "loom:job:" + job.Key
		ok, err := r.redis.SetNX(ctx, lockKey, "1", jobLockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire job lock: %w", err)
		}
		if !ok {
			r.logger.Info("job already in flight, skipping",
				zap.String("job", job.Name), zap.String("key", job.Key))
			return nil
		}
		release = func() {
			if err := r.redis.Del(context.Background(), lockKey).Err(); err != nil {
				r.logger.Warn("failed to release job lock",
					zap.String("key", job.Key), zap.Error(err))
			}
		}
	}

	r.queue.Enqueue(&runnerTask{
		BaseTask: workqueue.NewBaseTask(job.Name, job.Heavy),
		job:      job,
		release:  release,
	})
	return nil
}

func (r *queueJobRunner) Drain(ctx context.Context) error {
	return r.queue.Wait(ctx)
}
