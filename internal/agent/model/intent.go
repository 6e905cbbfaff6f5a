package model

// FieldState tells whether an extracted field was absent, parsed and valid,
// or present but rejected.
type FieldState uint8

const (
	FieldAbsent FieldState = iota
	FieldValid
	FieldInvalid
)

// Field carries one extracted value together with its validation outcome.
type Field[T any] struct {
	State   FieldState `json:"state"`
	Value   T          `json:"value,omitempty"`
	Raw     string     `json:"raw,omitempty"`
	Problem string     `json:"problem,omitempty"`
}

// Valid builds a field that passed validation.
func Valid[T any](v T, raw string) Field[T] {
	return Field[T]{State: FieldValid, Value: v, Raw: raw}
}

// Invalid builds a field that was mentioned but rejected.
func Invalid[T any](raw, problem string) Field[T] {
	return Field[T]{State: FieldInvalid, Raw: raw, Problem: problem}
}

func (f Field[T]) IsValid() bool   { return f.State == FieldValid }
func (f Field[T]) IsInvalid() bool { return f.State == FieldInvalid }
func (f Field[T]) IsAbsent() bool  { return f.State == FieldAbsent }

// ObjectionKind names a customer concern.
type ObjectionKind string

const (
	ObjectionCost          ObjectionKind = "cost_concern"
	ObjectionUncertainty   ObjectionKind = "uncertainty"
	ObjectionDelay         ObjectionKind = "delay"
	ObjectionNotInterested ObjectionKind = "not_interested"
	ObjectionCredit        ObjectionKind = "credit_concern"
	ObjectionProcess       ObjectionKind = "process_concern"
	ObjectionAlternative   ObjectionKind = "alternative"
)

// ExtractedData holds currency-normalised fields found in a message.
type ExtractedData struct {
	LoanAmount       Field[int64]            `json:"loan_amount"`
	MonthlySalary    Field[int64]            `json:"monthly_salary"`
	EmploymentStatus Field[EmploymentStatus] `json:"employment_status"`
	City             Field[string]           `json:"city"`
	TenureMonths     Field[int]              `json:"tenure_months"`
	// EMI is an instalment the customer says they can afford; only used for what-if questions.
	EMI       Field[int64]  `json:"emi"`
	Objection ObjectionKind `json:"objection,omitempty"`
}

// Empty reports whether nothing at all was mentioned.
func (d ExtractedData) Empty() bool {
	return d.LoanAmount.IsAbsent() && d.MonthlySalary.IsAbsent() &&
		d.EmploymentStatus.IsAbsent() && d.City.IsAbsent() &&
		d.TenureMonths.IsAbsent() && d.EMI.IsAbsent()
}

// ValidFields lists the application fields that were extracted and valid.
func (d ExtractedData) ValidFields() []FieldName {
	var out []FieldName
	if d.LoanAmount.IsValid() {
		out = append(out, FieldLoanAmount)
	}
	if d.MonthlySalary.IsValid() {
		out = append(out, FieldMonthlySalary)
	}
	if d.EmploymentStatus.IsValid() {
		out = append(out, FieldEmploymentStatus)
	}
	if d.City.IsValid() {
		out = append(out, FieldCity)
	}
	if d.TenureMonths.IsValid() {
		out = append(out, FieldTenureMonths)
	}
	return out
}

// InvalidFields lists the application fields that were mentioned but rejected.
func (d ExtractedData) InvalidFields() []FieldName {
	var out []FieldName
	if d.LoanAmount.IsInvalid() {
		out = append(out, FieldLoanAmount)
	}
	if d.MonthlySalary.IsInvalid() {
		out = append(out, FieldMonthlySalary)
	}
	if d.EmploymentStatus.IsInvalid() {
		out = append(out, FieldEmploymentStatus)
	}
	if d.City.IsInvalid() {
		out = append(out, FieldCity)
	}
	if d.TenureMonths.IsInvalid() {
		out = append(out, FieldTenureMonths)
	}
	return out
}

// Problem returns the validation message recorded for f.
func (d ExtractedData) Problem(f FieldName) string {
	switch f {
	case FieldLoanAmount:
		return d.LoanAmount.Problem
	case FieldMonthlySalary:
		return d.MonthlySalary.Problem
	case FieldEmploymentStatus:
		return d.EmploymentStatus.Problem
	case FieldCity:
		return d.City.Problem
	case FieldTenureMonths:
		return d.TenureMonths.Problem
	}
	return ""
}

// Differs reports which valid extracted fields disagree with what app already holds.
// Fields the application does not have yet are not counted.
func (d ExtractedData) Differs(app LoanApplication) []FieldName {
	var out []FieldName
	if d.LoanAmount.IsValid() && app.LoanAmount != nil && *app.LoanAmount != d.LoanAmount.Value {
		out = append(out, FieldLoanAmount)
	}
	if d.MonthlySalary.IsValid() && app.MonthlySalary != nil && *app.MonthlySalary != d.MonthlySalary.Value {
		out = append(out, FieldMonthlySalary)
	}
	if d.EmploymentStatus.IsValid() && app.EmploymentStatus != nil && *app.EmploymentStatus != d.EmploymentStatus.Value {
		out = append(out, FieldEmploymentStatus)
	}
	if d.City.IsValid() && app.City != nil && *app.City != d.City.Value {
		out = append(out, FieldCity)
	}
	if d.TenureMonths.IsValid() && app.TenureMonths != d.TenureMonths.Value {
		out = append(out, FieldTenureMonths)
	}
	return out
}

// Apply copies the valid fields into app and returns the names that changed.
func (d ExtractedData) Apply(app *LoanApplication) []FieldName {
	var changed []FieldName
	if d.LoanAmount.IsValid() && (app.LoanAmount == nil || *app.LoanAmount != d.LoanAmount.Value) {
		app.LoanAmount = Ptr(d.LoanAmount.Value)
		changed = append(changed, FieldLoanAmount)
	}
	if d.MonthlySalary.IsValid() && (app.MonthlySalary == nil || *app.MonthlySalary != d.MonthlySalary.Value) {
		app.MonthlySalary = Ptr(d.MonthlySalary.Value)
		changed = append(changed, FieldMonthlySalary)
	}
	if d.EmploymentStatus.IsValid() && (app.EmploymentStatus == nil || *app.EmploymentStatus != d.EmploymentStatus.Value) {
		app.EmploymentStatus = Ptr(d.EmploymentStatus.Value)
		changed = append(changed, FieldEmploymentStatus)
	}
	if d.City.IsValid() && (app.City == nil || *app.City != d.City.Value) {
		app.City = Ptr(d.City.Value)
		changed = append(changed, FieldCity)
	}
	if d.TenureMonths.IsValid() && app.TenureMonths != d.TenureMonths.Value {
		app.TenureMonths = d.TenureMonths.Value
		changed = append(changed, FieldTenureMonths)
	}
	return changed
}

// IntentResult is the classifier's structured reading of one message.
type IntentResult struct {
	Intent        Intent        `json:"intent"`
	TargetHandler Handler       `json:"target_handler"`
	Extracted     ExtractedData `json:"extracted_data"`
	Confidence    float64       `json:"confidence"`
	// Reasoning is diagnostic only and never drives control flow.
	Reasoning string `json:"reasoning,omitempty"`
}

// ClassificationSource tells where an IntentResult came from.
type ClassificationSource string

const (
	SourceLLM      ClassificationSource = "llm"
	SourceFallback ClassificationSource = "fallback"
	SourceReserved ClassificationSource = "reserved"
)

// Fallback reasons.
const (
	FallbackNotConfigured = "not_configured"
	FallbackTimeout       = "timeout"
	FallbackRateLimited   = "rate_limited"
	FallbackSchema        = "schema_violation"
	FallbackTransport     = "transport_error"
)

// Classification is the tagged result of the two-step classifier.
type Classification struct {
	Result         IntentResult         `json:"result"`
	Source         ClassificationSource `json:"source"`
	FallbackReason string               `json:"fallback_reason,omitempty"`
	Attempts       int                  `json:"attempts"`
	CostUSD        float64              `json:"cost_usd,omitempty"`
	// StageViolation is set when the target handler is not reachable from
	// the stage the message was classified in.
	StageViolation bool                 `json:"stage_violation,omitempty"`
}
