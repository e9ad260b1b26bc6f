package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// StageRecorder receives one audit log per completed (or failed) stage.
type StageRecorder interface {
	Record(ctx context.Context, log *models.CleaningLog) error
}

// ProgressFunc observes pipeline progress. Percent is monotonic.
type ProgressFunc func(progress models.CleaningProgress)

// PipelineOutcome is the result of one pipeline run.
type PipelineOutcome struct {
	Data  *models.Dataset
	Logs  []models.CleaningLog
	Stats models.TableStats
}

// CleaningPipeline executes the four cleaning stages in fixed order over an
// in-memory snapshot: imputation, outlier detection, deduplication,
// standardisation.
type CleaningPipeline interface {
	Run(ctx context.Context, jobID uuid.UUID, ds *models.Dataset, schema *models.Schema, config models.CleaningConfig, progress ProgressFunc) (*PipelineOutcome, error)
}

type cleaningPipeline struct {
	audit        StageRecorder
	stageTimeout time.Duration
	countryCode  string
	logger       *zap.Logger
}

// NewCleaningPipeline creates the pipeline service. countryCode is the
// deployment default for E.164 standardisation.
func NewCleaningPipeline(audit StageRecorder, stageTimeout time.Duration, countryCode string, logger *zap.Logger) CleaningPipeline {
	return &cleaningPipeline{
		audit:        audit,
		stageTimeout: stageTimeout,
		countryCode:  countryCode,
		logger:       logger.Named("cleaning_pipeline"),
	}
}

var _ CleaningPipeline = (*cleaningPipeline)(nil)

func (p *cleaningPipeline) Run(ctx context.Context, jobID uuid.UUID, input *models.Dataset, schema *models.Schema, config models.CleaningConfig, progress ProgressFunc) (*PipelineOutcome, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigError("%s", err.Error())
	}

	outcome := &PipelineOutcome{Data: input.Clone()}
	flaggedOutliers := 0
	leadingNulls := map[string]int{}
	stdFailures := map[string]int{}

	stages := []struct {
		op    models.CleaningOperation
		apply func(ds *models.Dataset) stageDelta
	}{
		{models.OpImputation, func(ds *models.Dataset) stageDelta {
			return stageDelta{leadingNulls: applyImputation(ds, config.Imputation)}
		}},
		{models.OpOutliers, func(ds *models.Dataset) stageDelta {
			return stageDelta{flaggedOutliers: len(applyOutliers(ds, schema, config.Outliers))}
		}},
		{models.OpDeduplication, func(ds *models.Dataset) stageDelta {
			applyDedup(ds, schema, config.Deduplication)
			return stageDelta{}
		}},
		{models.OpStandardization, func(ds *models.Dataset) stageDelta {
			return stageDelta{stdFailures: applyStandardization(ds, config.Standardization, p.countryCode)}
		}},
	}

	for i, stage := range stages {
		// Cancellation is observed at stage boundaries only.
		if err := ctx.Err(); err != nil {
			return outcome, apperrors.NewStageError(string(stage.op), err)
		}

		before := p.computeStats(outcome.Data, schema, flaggedOutliers, leadingNulls, stdFailures)
		started := time.Now()

		// Each stage works on its own snapshot and returns its counters
		// through the result channel; a timed-out stage goroutine mutates an
		// orphaned copy and its result is never observed.
		working := outcome.Data.Clone()
		delta, err := p.runStage(ctx, func() stageDelta {
			return stage.apply(working)
		})
		if err == nil {
			outcome.Data = working
			if delta.leadingNulls != nil {
				leadingNulls = delta.leadingNulls
			}
			flaggedOutliers += delta.flaggedOutliers
			if delta.stdFailures != nil {
				stdFailures = delta.stdFailures
			}
		}

		after := p.computeStats(outcome.Data, schema, flaggedOutliers, leadingNulls, stdFailures)
		log := models.CleaningLog{
			ID:             uuid.New(),
			JobID:          jobID,
			Operation:      stage.op,
			BeforeStats:    before,
			AfterStats:     after,
			ConfigSnapshot: config,
			DurationMillis: time.Since(started).Milliseconds(),
			Status:         models.CleaningLogSuccess,
			CreatedAt:      time.Now(),
		}
		if err != nil {
			msg := err.Error()
			log.Status = models.CleaningLogError
			log.ErrorMessage = &msg
		}

		if recordErr := p.audit.Record(ctx, &log); recordErr != nil {
			p.logger.Error("failed to record cleaning log",
				zap.String("job_id", jobID.String()),
				zap.String("operation", string(stage.op)),
				zap.Error(recordErr))
			if err == nil {
				err = recordErr
			}
		}
		outcome.Logs = append(outcome.Logs, log)

		if err != nil {
			p.logger.Error("cleaning stage failed",
				zap.String("job_id", jobID.String()),
				zap.String("operation", string(stage.op)),
				zap.Error(err))
			return outcome, apperrors.NewStageError(string(stage.op), err)
		}

		if progress != nil {
			progress(models.CleaningProgress{
				Stage:   stage.op,
				Percent: (i + 1) * 100 / len(stages),
			})
		}
	}

	outcome.Stats = p.computeStats(outcome.Data, schema, flaggedOutliers, leadingNulls, stdFailures)
	return outcome, nil
}

// stageDelta carries the counters a stage produces back across the stage
// goroutine boundary.
type stageDelta struct {
	leadingNulls    map[string]int
	flaggedOutliers int
	stdFailures     map[string]int
}

// runStage executes one stage with the per-stage timeout. Stages are
// synchronous CPU work; timeout abandons the stage goroutine and fails the
// job. The buffered channel lets an abandoned goroutine finish and exit.
func (p *cleaningPipeline) runStage(ctx context.Context, fn func() stageDelta) (stageDelta, error) {
	stageCtx := ctx
	if p.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, p.stageTimeout)
		defer cancel()
	}

	done := make(chan stageDelta, 1)
	go func() {
		done <- fn()
	}()

	select {
	case delta := <-done:
		return delta, nil
	case <-stageCtx.Done():
		return stageDelta{}, stageCtx.Err()
	}
}

func (p *cleaningPipeline) computeStats(ds *models.Dataset, schema *models.Schema, flaggedOutliers int, leadingNulls, stdFailures map[string]int) models.TableStats {
	stats := models.TableStats{
		TotalRows:       len(ds.Rows),
		ColumnCount:     len(ds.Columns),
		NullCount:       ds.NullCount(),
		DuplicateRows:   countDuplicateRows(ds, schema),
		FlaggedOutliers: flaggedOutliers,
	}
	if len(leadingNulls) > 0 {
		stats.LeadingNulls = leadingNulls
	}
	if len(stdFailures) > 0 {
		stats.StandardizationFailures = stdFailures
	}
	return stats
}
