package models

import (
	"time"

	"github.com/google/uuid"
)

// KpiDefinition is one entry of the per-domain KPI library.
type KpiDefinition struct {
	KpiID           string   `json:"kpi_id"`
	Domain          string   `json:"domain"`
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Priority        int      `json:"priority"`
	FormulaExpr     string   `json:"formula_expr"`
	ColumnsNeeded   []string `json:"columns_needed"`
	TimeGrain       string   `json:"time_grain,omitempty"`
	AggregationType string   `json:"aggregation_type,omitempty"`
	Description     string   `json:"description,omitempty"`
	Unit            string   `json:"unit,omitempty"`
	ChartHint       string   `json:"chart_hint,omitempty"`
}

// FeasibilityThreshold is the minimum completeness for a KPI to be feasible.
const FeasibilityThreshold = 0.8

// MinMVPPriority excludes low-priority KPIs from MVP selection.
const MinMVPPriority = 3

// RankedKpi is a feasible KPI with its completeness and ranking score.
type RankedKpi struct {
	KpiDefinition
	Completeness float64 `json:"completeness"`
	Score        float64 `json:"score"`
	// ResolvedColumns maps canonical names in ColumnsNeeded to the user's
	// actual column names.
	ResolvedColumns map[string]string `json:"resolved_columns"`
}

// InfeasibleKpi records why a KPI cannot be computed.
type InfeasibleKpi struct {
	KpiID          string   `json:"kpi_id"`
	Name           string   `json:"name"`
	Completeness   float64  `json:"completeness"`
	MissingColumns []string `json:"missing_columns"`
	Reason         string   `json:"reason"`
}

// KpiExtractionJob is one ranking pass over the KPI library.
type KpiExtractionJob struct {
	ID                uuid.UUID         `json:"id"`
	ProjectID         uuid.UUID         `json:"project_id"`
	Domain            string            `json:"domain"`
	TotalKpisInLib    int               `json:"total_kpis_in_library"`
	FeasibleCount     int               `json:"feasible_count"`
	InfeasibleCount   int               `json:"infeasible_count"`
	AvgCompleteness   float64           `json:"avg_completeness"`
	TopKpis           []RankedKpi       `json:"top_kpis"`
	AllFeasible       []RankedKpi       `json:"all_feasible"`
	Infeasible        []InfeasibleKpi   `json:"infeasible"`
	UnresolvedColumns []string          `json:"unresolved_columns"`
	ColumnMapping     map[string]string `json:"column_mapping"`
	CreatedAt         time.Time         `json:"created_at"`
}

// SelectedKpi is a user-confirmed KPI selection.
type SelectedKpi struct {
	ID              uuid.UUID         `json:"id"`
	ProjectID       uuid.UUID         `json:"project_id"`
	KpiJobID        uuid.UUID         `json:"kpi_job_id"`
	KpiID           string            `json:"kpi_id"`
	Name            string            `json:"name"`
	FormulaExpr     string            `json:"formula_expr"`
	ColumnsNeeded   []string          `json:"columns_needed"`
	ResolvedColumns map[string]string `json:"resolved_columns"`
	Priority        int               `json:"priority"`
	Category        string            `json:"category"`
	ChartHint       string            `json:"chart_hint,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
