package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// memoryLogRepo is an in-memory CleaningLogRepository.
type memoryLogRepo struct {
	logs      []models.CleaningLog
	appendErr error
}

func (m *memoryLogRepo) Append(_ context.Context, log *models.CleaningLog) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.logs = append(m.logs, *log)
	return nil
}

func (m *memoryLogRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]models.CleaningLog, error) {
	var out []models.CleaningLog
	for _, log := range m.logs {
		if log.JobID == jobID {
			out = append(out, log)
		}
	}
	return out, nil
}

func stageLog(jobID uuid.UUID, op models.CleaningOperation, rowsBefore, rowsAfter int, durationMS int64, status models.CleaningLogStatus) models.CleaningLog {
	return models.CleaningLog{
		ID:             uuid.New(),
		JobID:          jobID,
		Operation:      op,
		BeforeStats:    models.TableStats{TotalRows: rowsBefore},
		AfterStats:     models.TableStats{TotalRows: rowsAfter},
		DurationMillis: durationMS,
		Status:         status,
	}
}

func TestAuditRecordPersistsAndMirrors(t *testing.T) {
	repo := &memoryLogRepo{}
	dir := t.TempDir()
	a := NewAuditLogger(repo, dir, zap.NewNop())

	jobID := uuid.New()
	log := stageLog(jobID, models.OpImputation, 10, 10, 5, models.CleaningLogSuccess)
	require.NoError(t, a.Record(context.Background(), &log))

	require.Len(t, repo.logs, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "cleaning-"+jobID.String()))
}

func TestAuditRecordRepositoryFailure(t *testing.T) {
	repo := &memoryLogRepo{appendErr: errors.New("connection reset")}
	a := NewAuditLogger(repo, t.TempDir(), zap.NewNop())

	log := stageLog(uuid.New(), models.OpImputation, 1, 1, 0, models.CleaningLogSuccess)
	err := a.Record(context.Background(), &log)
	require.Error(t, err)
}

func TestAuditRecordDiskFailureIsBestEffort(t *testing.T) {
	repo := &memoryLogRepo{}
	// An unwritable log directory must not fail the record.
	a := NewAuditLogger(repo, string([]byte{0}), zap.NewNop())

	log := stageLog(uuid.New(), models.OpImputation, 1, 1, 0, models.CleaningLogSuccess)
	assert.NoError(t, a.Record(context.Background(), &log))
	assert.Len(t, repo.logs, 1)
}

func TestAuditReportAggregatesLogs(t *testing.T) {
	repo := &memoryLogRepo{}
	a := NewAuditLogger(repo, t.TempDir(), zap.NewNop())
	jobID := uuid.New()

	repo.logs = []models.CleaningLog{
		stageLog(jobID, models.OpImputation, 100, 100, 10, models.CleaningLogSuccess),
		stageLog(jobID, models.OpOutliers, 100, 100, 20, models.CleaningLogSuccess),
		stageLog(jobID, models.OpDeduplication, 100, 90, 30, models.CleaningLogSuccess),
		stageLog(jobID, models.OpStandardization, 90, 90, 40, models.CleaningLogSuccess),
	}

	report, err := a.Report(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, jobID, report.JobID)
	assert.Len(t, report.Operations, 4)
	assert.Equal(t, int64(100), report.TotalDurationMS)
	assert.Equal(t, 100, report.RowsBefore)
	assert.Equal(t, 90, report.RowsAfter)
	assert.Equal(t, -10, report.RowDelta)
	assert.True(t, report.Completed)
}

func TestAuditReportEmptyJobIsNotFound(t *testing.T) {
	a := NewAuditLogger(&memoryLogRepo{}, t.TempDir(), zap.NewNop())

	_, err := a.Report(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAuditReportErrorLogMarksIncomplete(t *testing.T) {
	repo := &memoryLogRepo{}
	a := NewAuditLogger(repo, t.TempDir(), zap.NewNop())
	jobID := uuid.New()

	repo.logs = []models.CleaningLog{
		stageLog(jobID, models.OpImputation, 50, 50, 5, models.CleaningLogSuccess),
		stageLog(jobID, models.OpOutliers, 50, 50, 5, models.CleaningLogError),
	}

	report, err := a.Report(context.Background(), jobID)
	require.NoError(t, err)

	assert.False(t, report.Completed)
	// The failed stage's after stats are ignored for the row tally.
	assert.Equal(t, 50, report.RowsAfter)
}

func TestAuditReportFewerThanFourStagesIsIncomplete(t *testing.T) {
	repo := &memoryLogRepo{}
	a := NewAuditLogger(repo, t.TempDir(), zap.NewNop())
	jobID := uuid.New()

	repo.logs = []models.CleaningLog{
		stageLog(jobID, models.OpImputation, 10, 10, 1, models.CleaningLogSuccess),
		stageLog(jobID, models.OpOutliers, 10, 10, 1, models.CleaningLogSuccess),
		stageLog(jobID, models.OpDeduplication, 10, 8, 1, models.CleaningLogSuccess),
	}

	report, err := a.Report(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, report.Completed)
}

func TestWriteComprehensiveReport(t *testing.T) {
	repo := &memoryLogRepo{}
	dir := t.TempDir()
	a := NewAuditLogger(repo, dir, zap.NewNop())
	jobID := uuid.New()

	repo.logs = []models.CleaningLog{
		stageLog(jobID, models.OpImputation, 10, 10, 1, models.CleaningLogSuccess),
		stageLog(jobID, models.OpOutliers, 10, 10, 1, models.CleaningLogSuccess),
		stageLog(jobID, models.OpDeduplication, 10, 9, 1, models.CleaningLogSuccess),
		stageLog(jobID, models.OpStandardization, 9, 9, 1, models.CleaningLogSuccess),
	}

	path, err := a.WriteComprehensiveReport(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), jobID.String())
	assert.Contains(t, string(data), `"rows_after": 9`)
}
