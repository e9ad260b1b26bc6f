// Package typedetect infers a canonical semantic type and summary statistics
// for each column of a parsed dataset.
package typedetect

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// Classification thresholds. First matching rule wins, in the order applied
// by detectType.
const (
	textIDUniqueRatio      = 0.95
	numericShare           = 0.80
	dateShare              = 0.60
	phoneShare             = 0.70
	emailShare             = 0.70
	booleanShare           = 0.90
	categoricalUniqueRatio = 0.05
)

// dateLayouts are the recognised date formats, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01-02-2006",
	time.RFC3339,
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)

var booleanTokens = map[string]bool{
	"true": true, "false": true,
	"yes": true, "no": true,
	"0": true, "1": true,
	"y": true, "n": true,
}

// DetectSchema classifies every column of the dataset and computes its
// summary statistics.
func DetectSchema(ds *models.Dataset) *models.Schema {
	schema := &models.Schema{
		Columns: append([]string(nil), ds.Columns...),
		Types:   make(map[string]models.ColumnType, len(ds.Columns)),
		Stats:   make(map[string]*models.ColumnStats, len(ds.Columns)),
	}
	for _, col := range ds.Columns {
		values := ds.ColumnValues(col)
		typ := DetectType(values)
		schema.Types[col] = typ
		schema.Stats[col] = ComputeStats(col, typ, values)
	}
	return schema
}

// DetectType classifies a single column from its cell values. Null and empty
// cells are skipped; a column with no non-null values is generic text.
func DetectType(values []models.Value) models.ColumnType {
	var nonNull []string
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		nonNull = append(nonNull, strings.TrimSpace(v.Raw()))
	}
	total := len(nonNull)
	if total == 0 {
		return models.ColumnTypeText
	}

	unique := make(map[string]struct{}, total)
	numericHits, dateHits, phoneHits, emailHits, booleanHits := 0, 0, 0, 0, 0
	for _, s := range nonNull {
		unique[s] = struct{}{}
		if isNumericToken(s) {
			numericHits++
		}
		if _, ok := ParseDate(s); ok {
			dateHits++
		}
		if isPhoneToken(s) {
			phoneHits++
		}
		if emailPattern.MatchString(s) {
			emailHits++
		}
		if booleanTokens[strings.ToLower(s)] {
			booleanHits++
		}
	}

	uniqueRatio := float64(len(unique)) / float64(total)
	share := func(hits int) float64 { return float64(hits) / float64(total) }

	switch {
	case uniqueRatio > textIDUniqueRatio:
		return models.ColumnTypeTextID
	case share(numericHits) >= numericShare:
		return models.ColumnTypeNumeric
	case share(dateHits) >= dateShare:
		return models.ColumnTypeDate
	case share(phoneHits) >= phoneShare:
		return models.ColumnTypePhone
	case share(emailHits) >= emailShare:
		return models.ColumnTypeEmail
	case share(booleanHits) >= booleanShare:
		return models.ColumnTypeBoolean
	case uniqueRatio < categoricalUniqueRatio:
		return models.ColumnTypeCategorical
	default:
		return models.ColumnTypeText
	}
}

// ParseDate tries the recognised date layouts in order.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNumericToken(s string) bool {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// isPhoneToken accepts 10 to 15 digits with optional +, spaces, dashes and
// parentheses.
func isPhoneToken(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+':
			if i != 0 {
				return false
			}
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 15
}
