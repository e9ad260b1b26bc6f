package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/models"
)

func TestClassifySaaSColumns(t *testing.T) {
	c := NewDomainClassifier(zap.NewNop())

	result := c.Classify([]string{
		"subscription_id", "customer_id", "mrr", "arr", "churn", "plan", "tier", "signup_date",
	})

	assert.Equal(t, "saas", result.Domain)
	assert.GreaterOrEqual(t, result.Confidence, 85)
	assert.Equal(t, models.DecisionAutoDetect, result.Decision)
	assert.ElementsMatch(t,
		[]string{"subscription_id", "customer_id", "mrr", "arr", "churn"},
		result.PrimaryMatches)
}

func TestClassifyNormalizesColumnSpellings(t *testing.T) {
	c := NewDomainClassifier(zap.NewNop())

	// Mixed case, spaces and underscores all resolve to the same signatures.
	result := c.Classify([]string{
		"Subscription ID", "CustomerID", "MRR", "arr", "Churn", "plan", "tier", "Signup_Date",
	})

	assert.Equal(t, "saas", result.Domain)
	assert.Equal(t, models.DecisionAutoDetect, result.Decision)
}

func TestClassifyEveryDomainIsScored(t *testing.T) {
	c := NewDomainClassifier(zap.NewNop())

	result := c.Classify([]string{"order_id", "customer_id", "date"})

	require.Len(t, result.AllScores, len(DomainLibrary()))
	for _, s := range result.AllScores {
		assert.NotEmpty(t, s.Domain)
		assert.Positive(t, s.MaxScore)
		assert.GreaterOrEqual(t, s.Score, 0)
		assert.LessOrEqual(t, s.Score, s.MaxScore)
	}
	require.Len(t, result.Top3, 3)
	assert.GreaterOrEqual(t, result.Top3[0].Score, result.Top3[1].Score)
	assert.GreaterOrEqual(t, result.Top3[1].Score, result.Top3[2].Score)
	assert.Equal(t, result.Domain, result.Top3[0].Domain)
}

func TestClassifySparseColumnsNeedManualSelect(t *testing.T) {
	c := NewDomainClassifier(zap.NewNop())

	result := c.Classify([]string{"OrderID", "CustomerID", "Date"})

	// Order/customer columns hit both commerce domains, but with only two
	// primaries the confidence stays below the suggestion band.
	assert.Contains(t, []string{"retail", "ecommerce"}, result.Domain)
	assert.Equal(t, models.DecisionManualSelect, result.Decision)
}

func TestDecisionBandsAreInclusive(t *testing.T) {
	assert.Equal(t, models.DecisionAutoDetect, decisionFor(100))
	assert.Equal(t, models.DecisionAutoDetect, decisionFor(85))
	assert.Equal(t, models.DecisionShowTop3, decisionFor(84))
	assert.Equal(t, models.DecisionShowTop3, decisionFor(65))
	assert.Equal(t, models.DecisionManualSelect, decisionFor(64))
	assert.Equal(t, models.DecisionManualSelect, decisionFor(0))
}

func TestClassifyKeywordCountsOncePerDomain(t *testing.T) {
	c := NewDomainClassifier(zap.NewNop())

	// Several columns contain "order"; the keyword may only contribute once,
	// so the two universes score identically.
	once := c.Classify([]string{"order_id"})
	twice := c.Classify([]string{"order_id", "order_notes", "order_flag"})

	var onceRetail, twiceRetail models.DomainScore
	for _, s := range once.AllScores {
		if s.Domain == "retail" {
			onceRetail = s
		}
	}
	for _, s := range twice.AllScores {
		if s.Domain == "retail" {
			twiceRetail = s
		}
	}
	assert.Equal(t, onceRetail.Score, twiceRetail.Score)
}

func TestClassifyTieBreaksByLibraryOrder(t *testing.T) {
	c := NewDomainClassifier(zap.NewNop())

	// order_id is a primary of both retail and ecommerce and carries the
	// "order" keyword for both; the scores tie and retail, declared first,
	// wins.
	result := c.Classify([]string{"order_id"})

	assert.Equal(t, "retail", result.Domain)
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "orderid", normalizeColumn("Order ID"))
	assert.Equal(t, "orderid", normalizeColumn("order_id"))
	assert.Equal(t, "orderid", normalizeColumn("OrderID"))
	assert.Equal(t, "mrr", normalizeColumn("  MRR"))
}
