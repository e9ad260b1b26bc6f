package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/config"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// restoreLibraries snapshots the package-level library tables and restores
// them when the test finishes, since overrides mutate them.
func restoreLibraries(t *testing.T) {
	t.Helper()
	savedDomains := domainLibrary
	savedKpis := make(map[string][]models.KpiDefinition, len(kpiLibrary))
	for k, v := range kpiLibrary {
		savedKpis[k] = v
	}
	t.Cleanup(func() {
		domainLibrary = savedDomains
		kpiLibrary = savedKpis
	})
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLibraryOverridesEmptyPathsKeepBuiltins(t *testing.T) {
	restoreLibraries(t)

	before := len(DomainLibrary())
	require.NoError(t, LoadLibraryOverrides(config.LibrariesConfig{}, zap.NewNop()))
	assert.Len(t, DomainLibrary(), before)
}

func TestLoadDomainLibraryOverride(t *testing.T) {
	restoreLibraries(t)

	path := writeFixture(t, "domains.yaml", `
domains:
  - name: hospitality
    primary_columns: [booking_id, guest_id, room_id]
    secondary_columns: [check_in, check_out]
    keywords: [booking, guest, room]
`)

	err := LoadLibraryOverrides(config.LibrariesConfig{DomainLibraryPath: path}, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, DomainLibrary(), 1)
	sig, ok := LookupDomain("hospitality")
	require.True(t, ok)
	assert.Equal(t, []string{"booking_id", "guest_id", "room_id"}, sig.PrimaryColumns)

	c := NewDomainClassifier(zap.NewNop())
	result := c.Classify([]string{"booking_id", "guest_id", "room_id", "check_in"})
	assert.Equal(t, "hospitality", result.Domain)
}

func TestLoadDomainLibraryOverrideRejectsBadDocuments(t *testing.T) {
	restoreLibraries(t)

	cases := map[string]string{
		"empty":           "domains: []",
		"no name":         "domains:\n  - primary_columns: [a]",
		"no primaries":    "domains:\n  - name: x",
		"duplicate names": "domains:\n  - name: x\n    primary_columns: [a]\n  - name: x\n    primary_columns: [b]",
	}
	for name, content := range cases {
		path := writeFixture(t, "domains.yaml", content)
		err := LoadLibraryOverrides(config.LibrariesConfig{DomainLibraryPath: path}, zap.NewNop())
		assert.Error(t, err, name)
	}
}

func TestLoadKpiLibraryOverrideReplacesPerDomain(t *testing.T) {
	restoreLibraries(t)

	path := writeFixture(t, "kpis.yaml", `
kpis:
  retail:
    - kpi_id: retail_gross_margin
      name: Gross Margin
      category: revenue
      priority: 5
      formula_expr: SUM(order_value - cost)
      columns_needed: [order_value, cost]
      aggregation_type: sum
      unit: currency
      chart_hint: timeseries
`)

	err := LoadLibraryOverrides(config.LibrariesConfig{KpiLibraryPath: path}, zap.NewNop())
	require.NoError(t, err)

	defs, ok := KpiLibraryFor("retail")
	require.True(t, ok)
	require.Len(t, defs, 1)
	assert.Equal(t, "retail_gross_margin", defs[0].KpiID)
	assert.Equal(t, "retail", defs[0].Domain)

	// Domains absent from the override keep their built-in definitions.
	saas, ok := KpiLibraryFor("saas")
	require.True(t, ok)
	assert.NotEmpty(t, saas)
}

func TestLoadKpiLibraryOverrideValidation(t *testing.T) {
	restoreLibraries(t)

	cases := map[string]string{
		"empty":        "kpis: {}",
		"no id":        "kpis:\n  retail:\n    - name: X\n      priority: 3\n      formula_expr: f\n      columns_needed: [a]",
		"bad priority": "kpis:\n  retail:\n    - kpi_id: k\n      name: X\n      priority: 9\n      formula_expr: f\n      columns_needed: [a]",
		"no columns":   "kpis:\n  retail:\n    - kpi_id: k\n      name: X\n      priority: 3\n      formula_expr: f",
		"no formula":   "kpis:\n  retail:\n    - kpi_id: k\n      name: X\n      priority: 3\n      columns_needed: [a]",
	}
	for name, content := range cases {
		path := writeFixture(t, "kpis.yaml", content)
		err := LoadLibraryOverrides(config.LibrariesConfig{KpiLibraryPath: path}, zap.NewNop())
		assert.Error(t, err, name)
	}
}

func TestLoadLibraryOverridesMissingFile(t *testing.T) {
	restoreLibraries(t)

	err := LoadLibraryOverrides(config.LibrariesConfig{
		DomainLibraryPath: filepath.Join(t.TempDir(), "absent.yaml"),
	}, zap.NewNop())
	assert.Error(t, err)
}
