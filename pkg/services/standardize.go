package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dataloom-io/loom-engine/pkg/models"
	"github.com/dataloom-io/loom-engine/pkg/typedetect"
)

// applyStandardization rewrites cell values per the per-column rule map.
// Unparseable values remain unchanged and are counted per column.
func applyStandardization(ds *models.Dataset, config map[string]models.StandardizationRule, defaultCountryCode string) map[string]int {
	failures := make(map[string]int)

	for _, col := range ds.Columns {
		rule, ok := config[col]
		if !ok {
			continue
		}

		for i := range ds.Rows {
			v := ds.Rows[i].Get(col)
			if v.IsNull() {
				continue
			}
			next, ok := standardizeValue(v, rule, defaultCountryCode)
			if !ok {
				failures[col]++
				continue
			}
			ds.Rows[i].Cells[col] = next
		}
	}

	return failures
}

func standardizeValue(v models.Value, rule models.StandardizationRule, defaultCountryCode string) (models.Value, bool) {
	switch rule {
	case models.StandardizeE164:
		s, ok := formatE164(v.Raw(), defaultCountryCode)
		if !ok {
			return v, false
		}
		return models.String(s), true

	case models.StandardizeLowercase:
		return models.String(strings.ToLower(strings.TrimSpace(v.Raw()))), true

	case models.StandardizeISO8601:
		t, ok := v.AsTime()
		if !ok {
			t, ok = typedetect.ParseDate(v.Raw())
		}
		if !ok {
			return v, false
		}
		return models.Date(t, t.Format("2006-01-02")), true

	case models.StandardizeNumber:
		s := strings.ReplaceAll(strings.TrimSpace(v.Raw()), ",", "")
		d, err := decimal.NewFromString(s)
		if err != nil {
			return v, false
		}
		canonical := d.StringFixed(2)
		f, _ := d.Float64()
		return models.Float(f, canonical), true

	default:
		return v, false
	}
}

// formatE164 strips non-digits and re-emits as +<country>-<XXXXX>-<XXXXX>.
// A number longer than ten digits carries its own country code; shorter
// national numbers take the deployment default.
func formatE164(raw, defaultCountryCode string) (string, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 10 || len(d) > 15 {
		return "", false
	}

	country := defaultCountryCode
	national := d
	if len(d) > 10 {
		country = d[:len(d)-10]
		national = d[len(d)-10:]
	}

	return "+" + country + "-" + national[:5] + "-" + national[5:], true
}
