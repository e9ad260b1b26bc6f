package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// pieCardinalityLimit bounds the label count for which a share breakdown
// still reads as a pie chart.
const pieCardinalityLimit = 6

// DashboardAssembler turns selected KPIs into a presentation plan: cards for
// scalars, typed chart specs for everything else. No aggregation happens
// here; grouping and sums run in the query layer through the view SQL.
type DashboardAssembler interface {
	Assemble(selections []models.SelectedKpi, types map[string]models.ColumnType, meta models.DashboardMetadata) *models.DashboardConfig
}

type dashboardAssembler struct {
	logger *zap.Logger
}

// NewDashboardAssembler creates the assembler.
func NewDashboardAssembler(logger *zap.Logger) DashboardAssembler {
	return &dashboardAssembler{logger: logger.Named("dashboard_assembler")}
}

var _ DashboardAssembler = (*dashboardAssembler)(nil)

func (a *dashboardAssembler) Assemble(selections []models.SelectedKpi, types map[string]models.ColumnType, meta models.DashboardMetadata) *models.DashboardConfig {
	config := &models.DashboardConfig{Metadata: meta}
	if config.Metadata.GeneratedAt.IsZero() {
		config.Metadata.GeneratedAt = time.Now()
	}

	for i, sel := range selections {
		kind := chartKindFor(sel, types)

		if kind == models.ChartKpiCard {
			config.Kpis = append(config.Kpis, models.KpiCardSpec{
				KpiID:       sel.KpiID,
				Title:       sel.Name,
				FormulaExpr: sel.FormulaExpr,
				Category:    sel.Category,
			})
			continue
		}

		labels, valueColumns := splitChartColumns(sel, types)
		config.Charts = append(config.Charts, models.ChartSpec{
			KpiID:  sel.KpiID,
			Title:  sel.Name,
			Kind:   kind,
			Labels: labels,
			Datasets: []models.ChartDataset{{
				Label:   sel.Name,
				Columns: valueColumns,
				Color:   models.ChartPalette[i%len(models.ChartPalette)],
			}},
		})
	}

	a.logger.Info("assembled dashboard",
		zap.Int("cards", len(config.Kpis)),
		zap.Int("charts", len(config.Charts)))

	return config
}

// chartKindFor applies the hint first, then falls back to shape rules over
// the KPI's resolved columns.
func chartKindFor(sel models.SelectedKpi, types map[string]models.ColumnType) models.ChartKind {
	switch sel.ChartHint {
	case "timeseries":
		return models.ChartLine
	case "distribution", "category":
		return models.ChartBar
	case "share":
		return models.ChartPie
	case "scalar":
		return models.ChartKpiCard
	case "scatter":
		return models.ChartScatter
	}

	numerics, dates, categoricals, lowCardinality := shapeOf(sel, types)

	switch {
	case dates > 0 && numerics > 0:
		return models.ChartLine
	case categoricals > 0 && numerics > 0 && lowCardinality:
		return models.ChartPie
	case categoricals > 0 && numerics > 0:
		return models.ChartBar
	case numerics == 1 && dates == 0 && categoricals == 0:
		return models.ChartKpiCard
	case numerics == 2:
		return models.ChartScatter
	default:
		return models.ChartBar
	}
}

// shapeOf summarises the resolved columns' detected types.
func shapeOf(sel models.SelectedKpi, types map[string]models.ColumnType) (numerics, dates, categoricals int, lowCardinality bool) {
	distinct := 0
	for _, original := range sel.ResolvedColumns {
		switch types[original] {
		case models.ColumnTypeNumeric:
			numerics++
		case models.ColumnTypeDate:
			dates++
		case models.ColumnTypeCategorical:
			categoricals++
			distinct++
		}
	}
	// Without live data the assembler only knows the column is categorical;
	// treat a single grouping column as low-cardinality.
	lowCardinality = distinct <= 1 && categoricals > 0 && categoricals <= pieCardinalityLimit
	return numerics, dates, categoricals, lowCardinality
}

// splitChartColumns partitions the KPI's resolved columns into axis labels
// (dates, categories) and value columns, in columns_needed order.
func splitChartColumns(sel models.SelectedKpi, types map[string]models.ColumnType) (labels, values []string) {
	for _, canonical := range sel.ColumnsNeeded {
		original, ok := sel.ResolvedColumns[canonical]
		if !ok {
			continue
		}
		switch types[original] {
		case models.ColumnTypeDate, models.ColumnTypeCategorical, models.ColumnTypeBoolean:
			labels = append(labels, original)
		default:
			values = append(values, original)
		}
	}
	return labels, values
}
