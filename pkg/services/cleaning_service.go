package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/logging"
	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/repositories"
)

// CleaningService runs cleaning jobs over uploads: auto-configuration, job
// lifecycle, and access to the materialised results.
type CleaningService interface {
	// AutoConfig derives the default cleaning configuration from the upload's
	// detected schema.
	AutoConfig(ctx context.Context, uploadID uuid.UUID) (*models.CleaningConfig, error)

	// StartJob validates the configuration, records a running job and submits
	// the pipeline run to the job runner. A nil config means auto-configure.
	StartJob(ctx context.Context, uploadID uuid.UUID, config *models.CleaningConfig) (*models.CleaningJob, error)

	// RunJob executes the pipeline for a previously recorded job. Called by
	// the job runner.
	RunJob(ctx context.Context, jobID uuid.UUID) error

	Status(ctx context.Context, jobID uuid.UUID) (*models.CleaningJob, error)
	Report(ctx context.Context, jobID uuid.UUID) (*models.CleaningReport, error)

	// Data returns a page of the job's cleaned rows. limit 0 returns all.
	Data(ctx context.Context, jobID uuid.UUID, limit, offset int) (*models.CleanedData, int64, error)
}

type cleaningService struct {
	uploads     UploadService
	uploadRepo  repositories.UploadRepository
	jobs        repositories.CleaningJobRepository
	cleanedData repositories.CleanedDataRepository
	pipeline    CleaningPipeline
	audit       AuditLogger
	runner      JobRunner
	logger      *zap.Logger
}

// NewCleaningService creates the cleaning service.
func NewCleaningService(
	uploads UploadService,
	uploadRepo repositories.UploadRepository,
	jobs repositories.CleaningJobRepository,
	cleanedData repositories.CleanedDataRepository,
	pipeline CleaningPipeline,
	audit AuditLogger,
	runner JobRunner,
	logger *zap.Logger,
) CleaningService {
	return &cleaningService{
		uploads:     uploads,
		uploadRepo:  uploadRepo,
		jobs:        jobs,
		cleanedData: cleanedData,
		pipeline:    pipeline,
		audit:       audit,
		runner:      runner,
		logger:      logger.Named("cleaning"),
	}
}

var _ CleaningService = (*cleaningService)(nil)

func (s *cleaningService) AutoConfig(ctx context.Context, uploadID uuid.UUID) (*models.CleaningConfig, error) {
	ds, schema, err := s.uploads.Dataset(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	config := BuildAutoConfig(ds, schema)
	return &config, nil
}

func (s *cleaningService) StartJob(ctx context.Context, uploadID uuid.UUID, config *models.CleaningConfig) (*models.CleaningJob, error) {
	upload, err := s.uploadRepo.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.Status != models.UploadStatusCompleted {
		return nil, apperrors.PreconditionFailed("upload %s is %s; parse it before cleaning", uploadID, upload.Status)
	}

	if config == nil {
		config, err = s.AutoConfig(ctx, uploadID)
		if err != nil {
			return nil, err
		}
	}
	// Configuration errors surface synchronously, before a job exists.
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigError("%s", err.Error())
	}

	job := &models.CleaningJob{
		ProjectID: upload.ProjectID,
		UploadID:  uploadID,
		Config:    *config,
		Status:    models.CleaningJobRunning,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	jobID := job.ID
	err = s.runner.Submit(ctx, Job{
		Key:   "clean:" + uploadID.String(),
		Name:  fmt.Sprintf("clean %s", upload.OriginalFilename),
		Heavy: true,
		Run: func(runCtx context.Context) error {
			return s.RunJob(runCtx, jobID)
		},
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (s *cleaningService) RunJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	ds, schema, err := s.uploads.Dataset(ctx, job.UploadID)
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	outcome, err := s.pipeline.Run(ctx, job.ID, ds, schema, job.Config, func(progress models.CleaningProgress) {
		if err := s.jobs.UpdateProgress(ctx, job.ID, progress); err != nil {
			s.logger.Warn("failed to persist cleaning progress",
				zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	tableName := cleanedTableName(job.UploadID)
	if err := s.cleanedData.CreateTable(ctx, tableName, outcome.Data.Columns); err != nil {
		return s.failJob(ctx, job, err)
	}
	if _, err := s.cleanedData.InsertRows(ctx, tableName, outcome.Data.Columns, outcome.Data.Rows); err != nil {
		return s.failJob(ctx, job, err)
	}

	stats := outcome.Stats
	job.Stats = &stats
	job.CleanedTable = tableName
	job.Status = models.CleaningJobCompleted
	job.Progress = models.CleaningProgress{Stage: models.OpStandardization, Percent: 100}
	job.ErrorMessage = nil
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}

	upload, err := s.uploadRepo.Get(ctx, job.UploadID)
	if err == nil {
		upload.TableName = tableName
		if err := s.uploadRepo.Update(ctx, upload); err != nil {
			s.logger.Warn("failed to record cleaned table on upload",
				zap.String("upload_id", job.UploadID.String()), zap.Error(err))
		}
	}

	if _, err := s.audit.WriteComprehensiveReport(ctx, job.ID); err != nil {
		s.logger.Warn("failed to write comprehensive cleaning report",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	s.logger.Info("cleaning job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("cleaned_table", tableName),
		zap.Int("rows", stats.TotalRows))

	return nil
}

// failJob marks the job failed. Cancellations and stage timeouts record the
// reason "cancelled" / "timed out" rather than the raw context error.
func (s *cleaningService) failJob(ctx context.Context, job *models.CleaningJob, cause error) error {
	msg := logging.ScrubPaths(cause.Error())
	switch {
	case errors.Is(cause, context.Canceled):
		msg = "cancelled"
	case errors.Is(cause, context.DeadlineExceeded):
		msg = "timed out"
	}

	job.Status = models.CleaningJobFailed
	job.ErrorMessage = &msg
	// The job row must flip to failed even when the run context is gone.
	if err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("failed to mark cleaning job failed",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}
	return cause
}

func (s *cleaningService) Status(ctx context.Context, jobID uuid.UUID) (*models.CleaningJob, error) {
	return s.jobs.Get(ctx, jobID)
}

func (s *cleaningService) Report(ctx context.Context, jobID uuid.UUID) (*models.CleaningReport, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.audit.Report(ctx, jobID)
}

func (s *cleaningService) Data(ctx context.Context, jobID uuid.UUID, limit, offset int) (*models.CleanedData, int64, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	if job.Status != models.CleaningJobCompleted || job.CleanedTable == "" {
		return nil, 0, apperrors.PreconditionFailed("cleaning job %s is %s; no cleaned data available", jobID, job.Status)
	}

	data, err := s.cleanedData.Query(ctx, job.CleanedTable, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.cleanedData.CountRows(ctx, job.CleanedTable)
	if err != nil {
		return nil, 0, err
	}
	return data, total, nil
}

// cleanedTableName builds the per-job table identifier:
// upload_<uuid-without-dashes>_<epochMillis>.
func cleanedTableName(uploadID uuid.UUID) string {
	return fmt.Sprintf("upload_%s_%d",
		strings.ReplaceAll(uploadID.String(), "-", ""),
		time.Now().UnixMilli())
}
