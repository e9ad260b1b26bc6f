package services

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dataloom-io/loom-engine/pkg/config"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

// domainLibraryDoc is the YAML override document for the domain signature
// library. It replaces the built-in set wholesale.
type domainLibraryDoc struct {
	Domains []struct {
		Name             string   `yaml:"name"`
		PrimaryColumns   []string `yaml:"primary_columns"`
		SecondaryColumns []string `yaml:"secondary_columns"`
		Keywords         []string `yaml:"keywords"`
	} `yaml:"domains"`
}

// kpiLibraryDoc is the YAML override document for the KPI library. Domains
// present in the document replace the built-in definitions for that domain;
// absent domains keep theirs.
type kpiLibraryDoc struct {
	Kpis map[string][]struct {
		KpiID           string   `yaml:"kpi_id"`
		Name            string   `yaml:"name"`
		Category        string   `yaml:"category"`
		Priority        int      `yaml:"priority"`
		FormulaExpr     string   `yaml:"formula_expr"`
		ColumnsNeeded   []string `yaml:"columns_needed"`
		TimeGrain       string   `yaml:"time_grain"`
		AggregationType string   `yaml:"aggregation_type"`
		Description     string   `yaml:"description"`
		Unit            string   `yaml:"unit"`
		ChartHint       string   `yaml:"chart_hint"`
	} `yaml:"kpis"`
}

// LoadLibraryOverrides replaces the built-in domain and KPI libraries from the
// configured YAML files. Called once at startup, before any request is
// served; the library tables are read-only afterwards.
func LoadLibraryOverrides(cfg config.LibrariesConfig, logger *zap.Logger) error {
	if cfg.DomainLibraryPath != "" {
		signatures, err := loadDomainLibraryFile(cfg.DomainLibraryPath)
		if err != nil {
			return fmt.Errorf("domain library override: %w", err)
		}
		domainLibrary = signatures
		logger.Info("loaded domain library override",
			zap.String("path", cfg.DomainLibraryPath),
			zap.Int("domains", len(signatures)))
	}

	if cfg.KpiLibraryPath != "" {
		defs, err := loadKpiLibraryFile(cfg.KpiLibraryPath)
		if err != nil {
			return fmt.Errorf("KPI library override: %w", err)
		}
		for domain, entries := range defs {
			kpiLibrary[domain] = entries
		}
		logger.Info("loaded KPI library override",
			zap.String("path", cfg.KpiLibraryPath),
			zap.Int("domains", len(defs)))
	}

	return nil
}

func loadDomainLibraryFile(path string) ([]DomainSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc domainLibraryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Domains) == 0 {
		return nil, fmt.Errorf("%s defines no domains", path)
	}

	seen := make(map[string]bool, len(doc.Domains))
	out := make([]DomainSignature, 0, len(doc.Domains))
	for _, d := range doc.Domains {
		if d.Name == "" {
			return nil, fmt.Errorf("%s: domain with empty name", path)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("%s: duplicate domain %q", path, d.Name)
		}
		seen[d.Name] = true
		if len(d.PrimaryColumns) == 0 {
			return nil, fmt.Errorf("%s: domain %q has no primary columns", path, d.Name)
		}
		out = append(out, DomainSignature{
			Name:             d.Name,
			PrimaryColumns:   d.PrimaryColumns,
			SecondaryColumns: d.SecondaryColumns,
			Keywords:         d.Keywords,
		})
	}
	return out, nil
}

func loadKpiLibraryFile(path string) (map[string][]models.KpiDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc kpiLibraryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Kpis) == 0 {
		return nil, fmt.Errorf("%s defines no KPIs", path)
	}

	out := make(map[string][]models.KpiDefinition, len(doc.Kpis))
	for domain, entries := range doc.Kpis {
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			switch {
			case e.KpiID == "" || e.Name == "":
				return nil, fmt.Errorf("%s: domain %q has a KPI without id or name", path, domain)
			case seen[e.KpiID]:
				return nil, fmt.Errorf("%s: duplicate KPI %q in domain %q", path, e.KpiID, domain)
			case e.Priority < 1 || e.Priority > 5:
				return nil, fmt.Errorf("%s: KPI %q priority %d out of range 1..5", path, e.KpiID, e.Priority)
			case len(e.ColumnsNeeded) == 0:
				return nil, fmt.Errorf("%s: KPI %q needs at least one column", path, e.KpiID)
			case e.FormulaExpr == "":
				return nil, fmt.Errorf("%s: KPI %q has no formula", path, e.KpiID)
			}
			seen[e.KpiID] = true
			out[domain] = append(out[domain], models.KpiDefinition{
				KpiID:           e.KpiID,
				Domain:          domain,
				Name:            e.Name,
				Category:        e.Category,
				Priority:        e.Priority,
				FormulaExpr:     e.FormulaExpr,
				ColumnsNeeded:   e.ColumnsNeeded,
				TimeGrain:       e.TimeGrain,
				AggregationType: e.AggregationType,
				Description:     e.Description,
				Unit:            e.Unit,
				ChartHint:       e.ChartHint,
			})
		}
	}
	return out, nil
}
