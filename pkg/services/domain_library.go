package services

// DomainSignature defines one business domain by its high-signal columns,
// supportive columns and fuzzy keyword tokens. Column comparison is
// case-insensitive and whitespace/underscore-insensitive; keyword matching is
// substring after the same normalisation.
type DomainSignature struct {
	Name             string   `json:"name"`
	PrimaryColumns   []string `json:"primary_columns"`
	SecondaryColumns []string `json:"secondary_columns"`
	Keywords         []string `json:"keywords"`
}

// Scoring weights per hit class.
const (
	primaryWeight   = 30
	secondaryWeight = 15
	keywordWeight   = 10
)

// Confidence bands. Both boundaries are inclusive.
const (
	autoDetectConfidence = 85
	showTop3Confidence   = 65
)

// domainLibrary is the closed signature set. Declaration order breaks score
// ties.
var domainLibrary = []DomainSignature{
	{
		Name:             "retail",
		PrimaryColumns:   []string{"order_id", "customer_id", "product_id", "store_id", "order_value"},
		SecondaryColumns: []string{"quantity", "order_date", "unit_price", "discount"},
		Keywords:         []string{"order", "store", "sku", "retail", "price"},
	},
	{
		Name:             "ecommerce",
		PrimaryColumns:   []string{"order_id", "customer_id", "order_value", "product_id", "session_id"},
		SecondaryColumns: []string{"order_date", "cart_id", "quantity", "shipping_address"},
		Keywords:         []string{"order", "cart", "checkout", "session", "customer"},
	},
	{
		Name:             "saas",
		PrimaryColumns:   []string{"subscription_id", "customer_id", "mrr", "arr", "churn"},
		SecondaryColumns: []string{"plan", "tier", "signup_date"},
		Keywords:         []string{"subscription", "churn", "plan", "billing"},
	},
	{
		Name:             "healthcare",
		PrimaryColumns:   []string{"patient_id", "provider_id", "diagnosis_code", "admission_date"},
		SecondaryColumns: []string{"discharge_date", "treatment", "insurance_id"},
		Keywords:         []string{"patient", "diagnosis", "clinical", "medical"},
	},
	{
		Name:             "manufacturing",
		PrimaryColumns:   []string{"work_order_id", "machine_id", "batch_id", "defect_count"},
		SecondaryColumns: []string{"shift", "production_date", "downtime_minutes"},
		Keywords:         []string{"machine", "batch", "production", "defect"},
	},
	{
		Name:             "logistics",
		PrimaryColumns:   []string{"shipment_id", "carrier_id", "origin", "destination"},
		SecondaryColumns: []string{"delivery_date", "weight", "freight_cost"},
		Keywords:         []string{"shipment", "carrier", "delivery", "route"},
	},
	{
		Name:             "financial",
		PrimaryColumns:   []string{"transaction_id", "account_id", "amount", "balance"},
		SecondaryColumns: []string{"transaction_date", "currency", "merchant"},
		Keywords:         []string{"transaction", "account", "ledger", "payment"},
	},
	{
		Name:             "education",
		PrimaryColumns:   []string{"student_id", "course_id", "grade", "enrollment_date"},
		SecondaryColumns: []string{"instructor_id", "credits", "semester"},
		Keywords:         []string{"student", "course", "grade", "enrollment"},
	},
}

// DomainLibrary returns the signature set in declaration order.
func DomainLibrary() []DomainSignature {
	return domainLibrary
}

// LookupDomain finds a signature by name.
func LookupDomain(name string) (DomainSignature, bool) {
	for _, sig := range domainLibrary {
		if sig.Name == name {
			return sig, true
		}
	}
	return DomainSignature{}, false
}
