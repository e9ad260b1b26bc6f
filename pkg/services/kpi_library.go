package services

import "github.com/dataloom-io/loom-engine/pkg/models"

// kpiLibrary holds the per-domain KPI definitions. Library order within a
// domain breaks ranking ties.
var kpiLibrary = map[string][]models.KpiDefinition{
	"retail": {
		{KpiID: "retail_total_revenue", Domain: "retail", Name: "Total Revenue", Category: "revenue", Priority: 5,
			FormulaExpr: "SUM(order_value)", ColumnsNeeded: []string{"order_value"},
			TimeGrain: "month", AggregationType: "sum", Unit: "currency", ChartHint: "timeseries",
			Description: "Gross revenue across all orders."},
		{KpiID: "retail_avg_order_value", Domain: "retail", Name: "Average Order Value", Category: "revenue", Priority: 4,
			FormulaExpr: "SUM(order_value) / COUNT(DISTINCT order_id)", ColumnsNeeded: []string{"order_value", "order_id"},
			TimeGrain: "month", AggregationType: "avg", Unit: "currency", ChartHint: "timeseries"},
		{KpiID: "retail_conversion_rate", Domain: "retail", Name: "Conversion Rate", Category: "funnel", Priority: 4,
			FormulaExpr: "COUNT(DISTINCT order_id) / COUNT(DISTINCT session_id)", ColumnsNeeded: []string{"session_id", "order_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "timeseries"},
		{KpiID: "retail_total_orders", Domain: "retail", Name: "Total Orders", Category: "volume", Priority: 4,
			FormulaExpr: "COUNT(DISTINCT order_id)", ColumnsNeeded: []string{"order_id"},
			TimeGrain: "month", AggregationType: "count", ChartHint: "timeseries"},
		{KpiID: "retail_unique_customers", Domain: "retail", Name: "Unique Customers", Category: "customers", Priority: 3,
			FormulaExpr: "COUNT(DISTINCT customer_id)", ColumnsNeeded: []string{"customer_id"},
			AggregationType: "count", ChartHint: "scalar"},
		{KpiID: "retail_repeat_purchase_rate", Domain: "retail", Name: "Repeat Purchase Rate", Category: "customers", Priority: 3,
			FormulaExpr: "COUNT(customer_id HAVING orders > 1) / COUNT(DISTINCT customer_id)", ColumnsNeeded: []string{"customer_id", "order_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "scalar"},
		{KpiID: "retail_units_per_order", Domain: "retail", Name: "Units per Order", Category: "volume", Priority: 3,
			FormulaExpr: "SUM(quantity) / COUNT(DISTINCT order_id)", ColumnsNeeded: []string{"quantity", "order_id"},
			AggregationType: "avg", ChartHint: "distribution"},
		{KpiID: "retail_revenue_by_store", Domain: "retail", Name: "Revenue by Store", Category: "revenue", Priority: 3,
			FormulaExpr: "SUM(order_value) GROUP BY store_id", ColumnsNeeded: []string{"order_value", "store_id"},
			AggregationType: "sum", Unit: "currency", ChartHint: "distribution"},
	},
	"ecommerce": {
		{KpiID: "ecom_total_revenue", Domain: "ecommerce", Name: "Total Revenue", Category: "revenue", Priority: 5,
			FormulaExpr: "SUM(order_value)", ColumnsNeeded: []string{"order_value"},
			TimeGrain: "month", AggregationType: "sum", Unit: "currency", ChartHint: "timeseries",
			Description: "Gross revenue across all orders."},
		{KpiID: "ecom_avg_order_value", Domain: "ecommerce", Name: "Average Order Value", Category: "revenue", Priority: 4,
			FormulaExpr: "SUM(order_value) / COUNT(DISTINCT order_id)", ColumnsNeeded: []string{"order_value", "order_id"},
			TimeGrain: "month", AggregationType: "avg", Unit: "currency", ChartHint: "timeseries"},
		{KpiID: "ecom_conversion_rate", Domain: "ecommerce", Name: "Conversion Rate", Category: "funnel", Priority: 4,
			FormulaExpr: "COUNT(DISTINCT order_id) / COUNT(DISTINCT session_id)", ColumnsNeeded: []string{"session_id", "order_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "timeseries"},
		{KpiID: "ecom_total_orders", Domain: "ecommerce", Name: "Total Orders", Category: "volume", Priority: 4,
			FormulaExpr: "COUNT(DISTINCT order_id)", ColumnsNeeded: []string{"order_id"},
			TimeGrain: "month", AggregationType: "count", ChartHint: "timeseries"},
		{KpiID: "ecom_unique_customers", Domain: "ecommerce", Name: "Unique Customers", Category: "customers", Priority: 3,
			FormulaExpr: "COUNT(DISTINCT customer_id)", ColumnsNeeded: []string{"customer_id"},
			AggregationType: "count", ChartHint: "scalar"},
		{KpiID: "ecom_repeat_purchase_rate", Domain: "ecommerce", Name: "Repeat Purchase Rate", Category: "customers", Priority: 3,
			FormulaExpr: "COUNT(customer_id HAVING orders > 1) / COUNT(DISTINCT customer_id)", ColumnsNeeded: []string{"customer_id", "order_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "scalar"},
		{KpiID: "ecom_cart_abandonment", Domain: "ecommerce", Name: "Cart Abandonment Rate", Category: "funnel", Priority: 3,
			FormulaExpr: "1 - COUNT(DISTINCT order_id) / COUNT(DISTINCT cart_id)", ColumnsNeeded: []string{"cart_id", "session_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "share"},
	},
	"saas": {
		{KpiID: "saas_mrr", Domain: "saas", Name: "Monthly Recurring Revenue", Category: "revenue", Priority: 5,
			FormulaExpr: "SUM(mrr)", ColumnsNeeded: []string{"mrr"},
			TimeGrain: "month", AggregationType: "sum", Unit: "currency", ChartHint: "timeseries"},
		{KpiID: "saas_arr", Domain: "saas", Name: "Annual Recurring Revenue", Category: "revenue", Priority: 5,
			FormulaExpr: "SUM(arr)", ColumnsNeeded: []string{"arr"},
			TimeGrain: "year", AggregationType: "sum", Unit: "currency", ChartHint: "scalar"},
		{KpiID: "saas_churn_rate", Domain: "saas", Name: "Churn Rate", Category: "retention", Priority: 5,
			FormulaExpr: "SUM(churn) / COUNT(DISTINCT customer_id)", ColumnsNeeded: []string{"churn", "customer_id"},
			TimeGrain: "month", AggregationType: "ratio", Unit: "percent", ChartHint: "timeseries"},
		{KpiID: "saas_customer_count", Domain: "saas", Name: "Active Customers", Category: "customers", Priority: 4,
			FormulaExpr: "COUNT(DISTINCT customer_id)", ColumnsNeeded: []string{"customer_id"},
			AggregationType: "count", ChartHint: "scalar"},
		{KpiID: "saas_arpu", Domain: "saas", Name: "Average Revenue per User", Category: "revenue", Priority: 4,
			FormulaExpr: "SUM(mrr) / COUNT(DISTINCT customer_id)", ColumnsNeeded: []string{"mrr", "customer_id"},
			TimeGrain: "month", AggregationType: "avg", Unit: "currency", ChartHint: "timeseries"},
		{KpiID: "saas_plan_distribution", Domain: "saas", Name: "Plan Distribution", Category: "customers", Priority: 3,
			FormulaExpr: "COUNT(customer_id) GROUP BY plan", ColumnsNeeded: []string{"plan", "customer_id"},
			AggregationType: "count", ChartHint: "share"},
		{KpiID: "saas_new_signups", Domain: "saas", Name: "New Signups", Category: "growth", Priority: 3,
			FormulaExpr: "COUNT(customer_id) GROUP BY signup_date", ColumnsNeeded: []string{"signup_date", "customer_id"},
			TimeGrain: "month", AggregationType: "count", ChartHint: "timeseries"},
	},
	"healthcare": {
		{KpiID: "hc_patient_count", Domain: "healthcare", Name: "Patient Count", Category: "volume", Priority: 5,
			FormulaExpr: "COUNT(DISTINCT patient_id)", ColumnsNeeded: []string{"patient_id"},
			AggregationType: "count", ChartHint: "scalar"},
		{KpiID: "hc_avg_length_of_stay", Domain: "healthcare", Name: "Average Length of Stay", Category: "operations", Priority: 4,
			FormulaExpr: "AVG(discharge_date - admission_date)", ColumnsNeeded: []string{"admission_date", "discharge_date"},
			AggregationType: "avg", Unit: "days", ChartHint: "timeseries"},
		{KpiID: "hc_readmission_rate", Domain: "healthcare", Name: "Readmission Rate", Category: "quality", Priority: 4,
			FormulaExpr: "COUNT(patient_id HAVING admissions > 1) / COUNT(DISTINCT patient_id)", ColumnsNeeded: []string{"patient_id", "admission_date"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "scalar"},
		{KpiID: "hc_diagnosis_distribution", Domain: "healthcare", Name: "Diagnosis Distribution", Category: "clinical", Priority: 3,
			FormulaExpr: "COUNT(patient_id) GROUP BY diagnosis_code", ColumnsNeeded: []string{"diagnosis_code", "patient_id"},
			AggregationType: "count", ChartHint: "distribution"},
	},
	"manufacturing": {
		{KpiID: "mfg_production_volume", Domain: "manufacturing", Name: "Production Volume", Category: "output", Priority: 5,
			FormulaExpr: "COUNT(DISTINCT work_order_id)", ColumnsNeeded: []string{"work_order_id"},
			TimeGrain: "day", AggregationType: "count", ChartHint: "timeseries"},
		{KpiID: "mfg_defect_rate", Domain: "manufacturing", Name: "Defect Rate", Category: "quality", Priority: 5,
			FormulaExpr: "SUM(defect_count) / COUNT(DISTINCT batch_id)", ColumnsNeeded: []string{"defect_count", "batch_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "timeseries"},
		{KpiID: "mfg_downtime", Domain: "manufacturing", Name: "Machine Downtime", Category: "operations", Priority: 4,
			FormulaExpr: "SUM(downtime_minutes) GROUP BY machine_id", ColumnsNeeded: []string{"downtime_minutes", "machine_id"},
			AggregationType: "sum", Unit: "minutes", ChartHint: "distribution"},
		{KpiID: "mfg_yield", Domain: "manufacturing", Name: "First-Pass Yield", Category: "quality", Priority: 3,
			FormulaExpr: "1 - SUM(defect_count) / COUNT(DISTINCT work_order_id)", ColumnsNeeded: []string{"defect_count", "work_order_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "scalar"},
	},
	"logistics": {
		{KpiID: "log_shipment_count", Domain: "logistics", Name: "Shipment Count", Category: "volume", Priority: 5,
			FormulaExpr: "COUNT(DISTINCT shipment_id)", ColumnsNeeded: []string{"shipment_id"},
			TimeGrain: "day", AggregationType: "count", ChartHint: "timeseries"},
		{KpiID: "log_on_time_rate", Domain: "logistics", Name: "On-Time Delivery Rate", Category: "quality", Priority: 5,
			FormulaExpr: "COUNT(on_time) / COUNT(DISTINCT shipment_id)", ColumnsNeeded: []string{"delivery_date", "shipment_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "timeseries"},
		{KpiID: "log_freight_cost", Domain: "logistics", Name: "Total Freight Cost", Category: "cost", Priority: 4,
			FormulaExpr: "SUM(freight_cost)", ColumnsNeeded: []string{"freight_cost"},
			TimeGrain: "month", AggregationType: "sum", Unit: "currency", ChartHint: "timeseries"},
		{KpiID: "log_avg_weight", Domain: "logistics", Name: "Average Shipment Weight", Category: "volume", Priority: 3,
			FormulaExpr: "AVG(weight)", ColumnsNeeded: []string{"weight", "shipment_id"},
			AggregationType: "avg", Unit: "kg", ChartHint: "distribution"},
		{KpiID: "log_cost_per_route", Domain: "logistics", Name: "Cost per Route", Category: "cost", Priority: 3,
			FormulaExpr: "SUM(freight_cost) GROUP BY origin, destination", ColumnsNeeded: []string{"freight_cost", "origin", "destination"},
			AggregationType: "sum", Unit: "currency", ChartHint: "distribution"},
	},
	"financial": {
		{KpiID: "fin_transaction_volume", Domain: "financial", Name: "Transaction Volume", Category: "volume", Priority: 5,
			FormulaExpr: "COUNT(DISTINCT transaction_id)", ColumnsNeeded: []string{"transaction_id"},
			TimeGrain: "day", AggregationType: "count", ChartHint: "timeseries"},
		{KpiID: "fin_total_amount", Domain: "financial", Name: "Total Transaction Amount", Category: "value", Priority: 5,
			FormulaExpr: "SUM(amount)", ColumnsNeeded: []string{"amount"},
			TimeGrain: "month", AggregationType: "sum", Unit: "currency", ChartHint: "timeseries"},
		{KpiID: "fin_avg_transaction", Domain: "financial", Name: "Average Transaction", Category: "value", Priority: 4,
			FormulaExpr: "SUM(amount) / COUNT(DISTINCT transaction_id)", ColumnsNeeded: []string{"amount", "transaction_id"},
			AggregationType: "avg", Unit: "currency", ChartHint: "scalar"},
		{KpiID: "fin_balance_trend", Domain: "financial", Name: "Balance Trend", Category: "value", Priority: 4,
			FormulaExpr: "AVG(balance) GROUP BY transaction_date", ColumnsNeeded: []string{"balance", "transaction_date"},
			TimeGrain: "day", AggregationType: "avg", Unit: "currency", ChartHint: "timeseries"},
		{KpiID: "fin_spend_by_merchant", Domain: "financial", Name: "Spend by Merchant", Category: "value", Priority: 3,
			FormulaExpr: "SUM(amount) GROUP BY merchant", ColumnsNeeded: []string{"amount", "merchant"},
			AggregationType: "sum", Unit: "currency", ChartHint: "share"},
	},
	"education": {
		{KpiID: "edu_enrollment_count", Domain: "education", Name: "Enrollment Count", Category: "volume", Priority: 5,
			FormulaExpr: "COUNT(DISTINCT student_id)", ColumnsNeeded: []string{"student_id"},
			AggregationType: "count", ChartHint: "scalar"},
		{KpiID: "edu_avg_grade", Domain: "education", Name: "Average Grade", Category: "performance", Priority: 4,
			FormulaExpr: "AVG(grade)", ColumnsNeeded: []string{"grade"},
			AggregationType: "avg", ChartHint: "distribution"},
		{KpiID: "edu_completion_rate", Domain: "education", Name: "Course Completion Rate", Category: "performance", Priority: 4,
			FormulaExpr: "COUNT(completions) / COUNT(DISTINCT student_id)", ColumnsNeeded: []string{"student_id", "course_id"},
			AggregationType: "ratio", Unit: "percent", ChartHint: "timeseries"},
		{KpiID: "edu_credits_per_student", Domain: "education", Name: "Credits per Student", Category: "volume", Priority: 3,
			FormulaExpr: "SUM(credits) / COUNT(DISTINCT student_id)", ColumnsNeeded: []string{"credits", "student_id"},
			AggregationType: "avg", ChartHint: "distribution"},
	},
}

// kpiSynonyms maps canonical column names to the spellings users actually
// upload, per domain. Matching normalises both sides (lowercase, strip
// underscores, dashes and whitespace).
var kpiSynonyms = map[string]map[string][]string{
	"retail": {
		"order_id":    {"order_number", "order_no", "invoice_id"},
		"customer_id": {"client_id", "buyer_id", "cust_id"},
		"order_value": {"order_total", "total", "amount", "sale_amount", "revenue"},
		"order_date":  {"date", "purchase_date", "sale_date"},
		"product_id":  {"sku", "item_id", "product_code"},
		"store_id":    {"store", "branch_id", "location_id"},
		"quantity":    {"qty", "units", "item_count"},
		"session_id":  {"visit_id"},
	},
	"ecommerce": {
		"order_id":    {"order_number", "order_no", "invoice_id"},
		"customer_id": {"client_id", "buyer_id", "user_id"},
		"order_value": {"order_total", "total", "amount", "cart_value", "revenue"},
		"order_date":  {"date", "purchase_date", "checkout_date"},
		"product_id":  {"sku", "item_id", "product_code"},
		"session_id":  {"visit_id", "browser_session"},
		"cart_id":     {"basket_id"},
	},
	"saas": {
		"subscription_id": {"sub_id", "subscription"},
		"customer_id":     {"client_id", "account_id", "user_id"},
		"mrr":             {"monthly_recurring_revenue", "monthly_revenue"},
		"arr":             {"annual_recurring_revenue", "annual_revenue"},
		"churn":           {"churned", "churn_flag", "is_churned"},
		"plan":            {"plan_name", "pricing_plan", "package"},
		"signup_date":     {"join_date", "registered_at", "created_at"},
	},
	"healthcare": {
		"patient_id":     {"patient", "mrn", "patient_number"},
		"admission_date": {"admitted_at", "admit_date"},
		"discharge_date": {"discharged_at"},
		"diagnosis_code": {"diagnosis", "icd_code", "icd10"},
	},
	"manufacturing": {
		"work_order_id":    {"work_order", "wo_id", "job_id"},
		"machine_id":       {"machine", "equipment_id"},
		"batch_id":         {"batch", "lot_id", "lot_number"},
		"defect_count":     {"defects", "rejects", "failure_count"},
		"downtime_minutes": {"downtime", "idle_minutes"},
	},
	"logistics": {
		"shipment_id":   {"shipment", "tracking_id", "waybill"},
		"carrier_id":    {"carrier", "courier_id"},
		"delivery_date": {"delivered_at", "arrival_date"},
		"freight_cost":  {"shipping_cost", "transport_cost"},
		"weight":        {"gross_weight", "kg"},
		"origin":        {"from", "origin_city", "source_location"},
		"destination":   {"to", "destination_city", "dest"},
	},
	"financial": {
		"transaction_id":   {"txn_id", "transaction", "reference"},
		"account_id":       {"account", "account_number", "iban"},
		"amount":           {"value", "txn_amount", "debit", "credit"},
		"balance":          {"account_balance", "running_balance"},
		"transaction_date": {"date", "txn_date", "posted_at"},
		"merchant":         {"payee", "vendor", "counterparty"},
	},
	"education": {
		"student_id":      {"student", "learner_id", "matric_number"},
		"course_id":       {"course", "course_code", "class_id"},
		"grade":           {"score", "mark", "result"},
		"enrollment_date": {"enrolled_at", "registration_date"},
		"credits":         {"credit_hours", "units"},
	},
}

// KpiLibraryFor returns the MVP-eligible KPI definitions for a domain, in
// library order.
func KpiLibraryFor(domain string) ([]models.KpiDefinition, bool) {
	defs, ok := kpiLibrary[domain]
	if !ok {
		return nil, false
	}
	out := make([]models.KpiDefinition, 0, len(defs))
	for _, def := range defs {
		if def.Priority >= models.MinMVPPriority {
			out = append(out, def)
		}
	}
	return out, true
}

// SynonymsFor returns the canonical-to-synonyms map for a domain.
func SynonymsFor(domain string) (map[string][]string, bool) {
	m, ok := kpiSynonyms[domain]
	return m, ok
}
