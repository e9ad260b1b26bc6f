package services

import (
	"crypto/sha256"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// dedupSampleSize bounds the exact-duplicate scan used to decide whether
// deduplication defaults to enabled.
const dedupSampleSize = 1000

// defaultIQRThreshold is the default k for IQR outlier bounds.
const defaultIQRThreshold = 1.5

// BuildAutoConfig synthesises the default cleaning configuration from the
// detected schema. The per-type mappings are a testable contract:
// numeric→MEDIAN, date→FORWARD-FILL+ISO8601, phone→MODE+E164,
// email→MODE+LOWERCASE, boolean/categorical→MODE, text_id/text→skip.
func BuildAutoConfig(ds *models.Dataset, schema *models.Schema) models.CleaningConfig {
	config := models.CleaningConfig{
		Imputation:      make(map[string]*models.ImputationStrategy),
		Standardization: make(map[string]models.StandardizationRule),
	}

	outliersEligible := false
	for _, col := range ds.Columns {
		switch schema.TypeOf(col) {
		case models.ColumnTypeNumeric:
			config.Imputation[col] = strategyPtr(models.ImputeMedian)
			if stats := schema.Stats[col]; stats != nil && stats.UniqueCount > minOutlierUniqueCount {
				outliersEligible = true
			}
		case models.ColumnTypeDate:
			config.Imputation[col] = strategyPtr(models.ImputeForwardFill)
			config.Standardization[col] = models.StandardizeISO8601
		case models.ColumnTypePhone:
			config.Imputation[col] = strategyPtr(models.ImputeMode)
			config.Standardization[col] = models.StandardizeE164
		case models.ColumnTypeEmail:
			config.Imputation[col] = strategyPtr(models.ImputeMode)
			config.Standardization[col] = models.StandardizeLowercase
		case models.ColumnTypeBoolean, models.ColumnTypeCategorical:
			config.Imputation[col] = strategyPtr(models.ImputeMode)
		case models.ColumnTypeTextID, models.ColumnTypeText:
			config.Imputation[col] = nil
		}
	}

	config.Outliers = models.OutlierConfig{
		Enabled:   outliersEligible,
		Method:    models.OutlierMethodIQR,
		Threshold: defaultIQRThreshold,
		Remove:    false,
	}

	config.Deduplication = models.DedupConfig{
		Enabled:  hasExactDuplicateInSample(ds, dedupSampleSize),
		Strategy: models.DedupKeepFirst,
	}

	return config
}

// hasExactDuplicateInSample reports whether any two rows in the first n rows
// are byte-identical across all columns.
func hasExactDuplicateInSample(ds *models.Dataset, n int) bool {
	if len(ds.Rows) < n {
		n = len(ds.Rows)
	}
	seen := make(map[[32]byte]bool, n)
	for _, row := range ds.Rows[:n] {
		h := sha256.New()
		for _, col := range ds.Columns {
			h.Write([]byte(row.Get(col).Raw()))
			h.Write([]byte{0x1e})
		}
		var key [32]byte
		copy(key[:], h.Sum(nil))
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

func strategyPtr(s models.ImputationStrategy) *models.ImputationStrategy {
	return &s
}
