package services

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

// DomainClassification is the classifier output for one column universe.
type DomainClassification struct {
	Domain         string
	Confidence     int
	Decision       models.DomainDecision
	PrimaryMatches []string
	KeywordMatches []string
	Top3           []models.DomainScore
	AllScores      []models.DomainScore
}

// DomainClassifier scores a project's column universe against the signature
// library.
type DomainClassifier interface {
	Classify(columns []string) *DomainClassification
}

type domainClassifier struct {
	library []DomainSignature
	logger  *zap.Logger
}

// NewDomainClassifier creates a classifier over the built-in signature
// library.
func NewDomainClassifier(logger *zap.Logger) DomainClassifier {
	return &domainClassifier{
		library: DomainLibrary(),
		logger:  logger.Named("domain_classifier"),
	}
}

var _ DomainClassifier = (*domainClassifier)(nil)

// normalizeColumn lowercases and strips whitespace and underscores so that
// OrderID, order_id and "Order Id" all compare equal.
func normalizeColumn(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case '_', ' ', '\t':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *domainClassifier) Classify(columns []string) *DomainClassification {
	normalized := make(map[string]string, len(columns)) // normalized -> original
	var normalizedList []string
	for _, col := range columns {
		n := normalizeColumn(col)
		if _, seen := normalized[n]; !seen {
			normalized[n] = col
			normalizedList = append(normalizedList, n)
		}
	}

	result := &DomainClassification{}
	var bestPrimary, bestKeywords []string

	for _, sig := range c.library {
		score, primary, keywords := c.scoreDomain(sig, normalized, normalizedList)
		maxScore := primaryWeight*len(sig.PrimaryColumns) +
			secondaryWeight*len(sig.SecondaryColumns) +
			keywordWeight*len(sig.Keywords)

		confidence := 0
		if maxScore > 0 {
			confidence = int(math.Round(100 * float64(score) / float64(maxScore)))
		}

		entry := models.DomainScore{
			Domain:     sig.Name,
			Score:      score,
			MaxScore:   maxScore,
			Confidence: confidence,
		}
		result.AllScores = append(result.AllScores, entry)

		// Strict greater keeps library declaration order as the tie-break.
		if result.Domain == "" || entry.Score > bestScoreOf(result) {
			result.Domain = sig.Name
			result.Confidence = confidence
			bestPrimary = primary
			bestKeywords = keywords
		}
	}

	result.PrimaryMatches = bestPrimary
	result.KeywordMatches = bestKeywords
	result.Decision = decisionFor(result.Confidence)
	result.Top3 = topN(result.AllScores, 3)

	c.logger.Info("classified column universe",
		zap.Int("columns", len(columns)),
		zap.String("domain", result.Domain),
		zap.Int("confidence", result.Confidence),
		zap.String("decision", string(result.Decision)))

	return result
}

func (c *domainClassifier) scoreDomain(sig DomainSignature, normalized map[string]string, normalizedList []string) (score int, primaryMatches, keywordMatches []string) {
	for _, p := range sig.PrimaryColumns {
		if original, ok := normalized[normalizeColumn(p)]; ok {
			score += primaryWeight
			primaryMatches = append(primaryMatches, original)
		}
	}
	for _, s := range sig.SecondaryColumns {
		if _, ok := normalized[normalizeColumn(s)]; ok {
			score += secondaryWeight
		}
	}
	// A keyword counts at most once per domain, however many columns
	// contain it.
	for _, kw := range sig.Keywords {
		needle := normalizeColumn(kw)
		for _, n := range normalizedList {
			if strings.Contains(n, needle) {
				score += keywordWeight
				keywordMatches = append(keywordMatches, kw)
				break
			}
		}
	}
	return score, primaryMatches, keywordMatches
}

func bestScoreOf(result *DomainClassification) int {
	for _, s := range result.AllScores {
		if s.Domain == result.Domain {
			return s.Score
		}
	}
	return 0
}

func decisionFor(confidence int) models.DomainDecision {
	switch {
	case confidence >= autoDetectConfidence:
		return models.DecisionAutoDetect
	case confidence >= showTop3Confidence:
		return models.DecisionShowTop3
	default:
		return models.DecisionManualSelect
	}
}

// topN returns the n highest-scoring entries, ties resolved by library order.
func topN(scores []models.DomainScore, n int) []models.DomainScore {
	sorted := append([]models.DomainScore(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
