package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ImputationStrategy names a null-replacement strategy for one column.
type ImputationStrategy string

const (
	ImputeMedian      ImputationStrategy = "MEDIAN"
	ImputeMode        ImputationStrategy = "MODE"
	ImputeForwardFill ImputationStrategy = "FORWARD-FILL"
)

// StandardizationRule names a value-normalisation rule for one column.
type StandardizationRule string

const (
	StandardizeE164      StandardizationRule = "E164"
	StandardizeLowercase StandardizationRule = "LOWERCASE"
	StandardizeISO8601   StandardizationRule = "ISO8601"
	StandardizeNumber    StandardizationRule = "NUMBER"
)

// OutlierMethod identifies the outlier detection method. IQR is the only
// method in scope.
type OutlierMethod string

const OutlierMethodIQR OutlierMethod = "iqr"

// DedupStrategy identifies the duplicate-resolution strategy.
type DedupStrategy string

const DedupKeepFirst DedupStrategy = "keep_first"

// OutlierConfig configures the outlier detection stage.
type OutlierConfig struct {
	Enabled   bool          `json:"enabled"`
	Method    OutlierMethod `json:"method"`
	Threshold float64       `json:"threshold"`
	Remove    bool          `json:"remove"`
}

// DedupConfig configures the deduplication stage. An empty KeyColumns list
// means all columns participate in the key.
type DedupConfig struct {
	Enabled    bool          `json:"enabled"`
	Strategy   DedupStrategy `json:"strategy"`
	KeyColumns []string      `json:"key_columns,omitempty"`
}

// CleaningConfig is the per-job configuration document. A nil imputation
// entry skips the column.
type CleaningConfig struct {
	Imputation      map[string]*ImputationStrategy `json:"imputation"`
	Outliers        OutlierConfig                  `json:"outliers"`
	Deduplication   DedupConfig                    `json:"deduplication"`
	Standardization map[string]StandardizationRule `json:"standardization"`
}

// Validate rejects unknown strategy tokens and out-of-range thresholds.
func (c *CleaningConfig) Validate() error {
	for col, strat := range c.Imputation {
		if strat == nil {
			continue
		}
		switch *strat {
		case ImputeMedian, ImputeMode, ImputeForwardFill:
		default:
			return fmt.Errorf("unknown imputation strategy %q for column %q", *strat, col)
		}
	}
	if c.Outliers.Enabled {
		if c.Outliers.Method != OutlierMethodIQR {
			return fmt.Errorf("unknown outlier method %q", c.Outliers.Method)
		}
		if c.Outliers.Threshold <= 0 {
			return fmt.Errorf("outlier threshold must be positive, got %v", c.Outliers.Threshold)
		}
	}
	if c.Deduplication.Enabled && c.Deduplication.Strategy != DedupKeepFirst {
		return fmt.Errorf("unknown deduplication strategy %q", c.Deduplication.Strategy)
	}
	for col, rule := range c.Standardization {
		switch rule {
		case StandardizeE164, StandardizeLowercase, StandardizeISO8601, StandardizeNumber:
		default:
			return fmt.Errorf("unknown standardization rule %q for column %q", rule, col)
		}
	}
	return nil
}

// CleaningOperation tags one pipeline stage. Declaration order is execution
// order.
type CleaningOperation string

const (
	OpImputation      CleaningOperation = "imputation"
	OpOutliers        CleaningOperation = "outlier_detection"
	OpDeduplication   CleaningOperation = "deduplication"
	OpStandardization CleaningOperation = "standardization"
)

// CleaningStageOrder is the fixed stage order of the pipeline.
var CleaningStageOrder = []CleaningOperation{
	OpImputation,
	OpOutliers,
	OpDeduplication,
	OpStandardization,
}

// StageIndex returns the position of op in the fixed stage order, or -1.
func StageIndex(op CleaningOperation) int {
	return slices.Index(CleaningStageOrder, op)
}

// CleaningJobStatus is the lifecycle state of a cleaning job.
type CleaningJobStatus string

const (
	CleaningJobRunning   CleaningJobStatus = "running"
	CleaningJobCompleted CleaningJobStatus = "completed"
	CleaningJobFailed    CleaningJobStatus = "failed"
)

// TableStats is the before/after statistics document attached to each
// cleaning log entry.
type TableStats struct {
	TotalRows       int `json:"total_rows"`
	ColumnCount     int `json:"column_count"`
	NullCount       int `json:"null_count"`
	DuplicateRows   int `json:"duplicate_rows"`
	FlaggedOutliers int `json:"flagged_outliers"`

	// LeadingNulls counts nulls left in place by FORWARD-FILL per column.
	LeadingNulls map[string]int `json:"leading_nulls,omitempty"`
	// StandardizationFailures counts unparseable values left unchanged per
	// column.
	StandardizationFailures map[string]int `json:"standardization_failures,omitempty"`
}

// CleaningJob is one execution of the cleaning pipeline for one upload.
type CleaningJob struct {
	ID           uuid.UUID         `json:"id"`
	ProjectID    uuid.UUID         `json:"project_id"`
	UploadID     uuid.UUID         `json:"upload_id"`
	Config       CleaningConfig    `json:"config"`
	Stats        *TableStats       `json:"stats,omitempty"`
	CleanedTable string            `json:"cleaned_table,omitempty"`
	Status       CleaningJobStatus `json:"status"`
	Progress     CleaningProgress  `json:"progress"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// CleaningProgress reports pipeline position. Percent is monotonic across
// stages.
type CleaningProgress struct {
	Stage   CleaningOperation `json:"stage,omitempty"`
	Percent int               `json:"percent"`
}

// CleaningLogStatus marks a log entry as success or error.
type CleaningLogStatus string

const (
	CleaningLogSuccess CleaningLogStatus = "success"
	CleaningLogError   CleaningLogStatus = "error"
)

// CleaningLog is one append-only audit entry per stage operation.
type CleaningLog struct {
	ID             uuid.UUID         `json:"id"`
	JobID          uuid.UUID         `json:"job_id"`
	Operation      CleaningOperation `json:"operation"`
	BeforeStats    TableStats        `json:"before_stats"`
	AfterStats     TableStats        `json:"after_stats"`
	ConfigSnapshot CleaningConfig    `json:"config_snapshot"`
	DurationMillis int64             `json:"duration_ms"`
	Status         CleaningLogStatus `json:"status"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// CleaningReport is the aggregate summary derived from a job's logs. All UI
// summaries derive from the audit log, not from live pipeline state.
type CleaningReport struct {
	JobID            uuid.UUID     `json:"job_id"`
	Operations       []CleaningLog `json:"operations"`
	TotalDurationMS  int64         `json:"total_duration_ms"`
	RowsBefore       int           `json:"rows_before"`
	RowsAfter        int           `json:"rows_after"`
	RowDelta         int           `json:"row_delta"`
	Completed        bool          `json:"completed"`
}

// CleanedData is the materialised result of one cleaning job.
type CleanedData struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
}
