package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/repositories"
)

// AuditLogger is the append-only record of what the cleaning did. Every UI
// summary derives from these logs, not from live pipeline state. Each
// operation is also mirrored as one JSON document on disk.
type AuditLogger interface {
	StageRecorder

	// Report reads all logs for a job in order and returns the aggregate
	// summary.
	Report(ctx context.Context, jobID uuid.UUID) (*models.CleaningReport, error)

	// WriteComprehensiveReport writes the per-job aggregate document to the
	// log directory and returns its path.
	WriteComprehensiveReport(ctx context.Context, jobID uuid.UUID) (string, error)
}

type auditLogger struct {
	repo   repositories.CleaningLogRepository
	logDir string
	logger *zap.Logger
}

// NewAuditLogger creates the audit logger. logDir is created on first write.
func NewAuditLogger(repo repositories.CleaningLogRepository, logDir string, logger *zap.Logger) AuditLogger {
	return &auditLogger{
		repo:   repo,
		logDir: logDir,
		logger: logger.Named("audit"),
	}
}

var _ AuditLogger = (*auditLogger)(nil)

func (a *auditLogger) Record(ctx context.Context, log *models.CleaningLog) error {
	if err := a.repo.Append(ctx, log); err != nil {
		return fmt.Errorf("append cleaning log: %w", err)
	}

	// The file mirror is best-effort; the database row is the canonical
	// record.
	if err := a.writeDocument(fmt.Sprintf("cleaning-%s-%d.json", log.JobID, time.Now().UnixMilli()), log); err != nil {
		a.logger.Warn("failed to mirror cleaning log to disk",
			zap.String("job_id", log.JobID.String()),
			zap.String("operation", string(log.Operation)),
			zap.Error(err))
	}

	return nil
}

func (a *auditLogger) Report(ctx context.Context, jobID uuid.UUID) (*models.CleaningReport, error) {
	logs, err := a.repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list cleaning logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, apperrors.ErrNotFound
	}

	report := &models.CleaningReport{
		JobID:      jobID,
		Operations: logs,
		RowsBefore: logs[0].BeforeStats.TotalRows,
		Completed:  true,
	}

	rowsAfter := logs[0].BeforeStats.TotalRows
	for _, log := range logs {
		report.TotalDurationMS += log.DurationMillis
		if log.Status == models.CleaningLogError {
			report.Completed = false
			continue
		}
		rowsAfter = log.AfterStats.TotalRows
	}
	if len(logs) < len(models.CleaningStageOrder) {
		report.Completed = false
	}

	report.RowsAfter = rowsAfter
	report.RowDelta = report.RowsAfter - report.RowsBefore

	return report, nil
}

func (a *auditLogger) WriteComprehensiveReport(ctx context.Context, jobID uuid.UUID) (string, error) {
	report, err := a.Report(ctx, jobID)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("comprehensive-cleaning-%s-%d.json", jobID, time.Now().UnixMilli())
	if err := a.writeDocument(name, report); err != nil {
		return "", fmt.Errorf("write comprehensive report: %w", err)
	}

	return filepath.Join(a.logDir, name), nil
}

func (a *auditLogger) writeDocument(name string, doc any) error {
	if err := os.MkdirAll(a.logDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.logDir, name), data, 0o644)
}
