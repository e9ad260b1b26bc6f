package models

import (
	"time"

	"github.com/google/uuid"
)

// ChartKind is the chart type chosen for a KPI.
type ChartKind string

const (
	ChartLine    ChartKind = "line"
	ChartBar     ChartKind = "bar"
	ChartPie     ChartKind = "pie"
	ChartScatter ChartKind = "scatter"
	ChartKpiCard ChartKind = "kpi_card"
)

// ChartPalette is the fixed colour palette applied to chart datasets.
var ChartPalette = []string{
	"#118DFF", "#12239E", "#E66C37", "#6B007B", "#E044A7", "#744EC2",
}

// KpiCardSpec is one KPI card in the dashboard configuration.
type KpiCardSpec struct {
	KpiID       string `json:"kpi_id"`
	Title       string `json:"title"`
	FormulaExpr string `json:"formula_expr"`
	Unit        string `json:"unit,omitempty"`
	Category    string `json:"category,omitempty"`
}

// ChartDataset is one series within a chart spec.
type ChartDataset struct {
	Label   string   `json:"label"`
	Columns []string `json:"columns"`
	Color   string   `json:"color"`
}

// ChartSpec is a typed chart specification. The assembler performs no
// aggregation; grouping and sums are pushed to the query layer via view SQL.
type ChartSpec struct {
	KpiID    string         `json:"kpi_id"`
	Title    string         `json:"title"`
	Kind     ChartKind      `json:"kind"`
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

// DashboardMetadata describes when and over what the dashboard was built.
type DashboardMetadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	Domain      string    `json:"domain,omitempty"`
	ViewName    string    `json:"view_name,omitempty"`
	RowCount    int64     `json:"row_count,omitempty"`
}

// DashboardConfig is the assembled presentation plan.
type DashboardConfig struct {
	Kpis     []KpiCardSpec     `json:"kpis"`
	Charts   []ChartSpec       `json:"charts"`
	Metadata DashboardMetadata `json:"metadata"`
}

// DashboardStatus is the lifecycle state of a dashboard.
type DashboardStatus string

const (
	DashboardReady  DashboardStatus = "ready"
	DashboardStale  DashboardStatus = "stale"
	DashboardFailed DashboardStatus = "failed"
)

// Dashboard is the persisted dashboard document for a project.
type Dashboard struct {
	ID          uuid.UUID       `json:"id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Config      DashboardConfig `json:"config"`
	Status      DashboardStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
