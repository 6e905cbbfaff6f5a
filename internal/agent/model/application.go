package model

import "time"

// EmploymentStatus of the applicant.
type EmploymentStatus string

const (
	EmploymentSalaried     EmploymentStatus = "salaried"
	EmploymentSelfEmployed EmploymentStatus = "self_employed"
	EmploymentContract     EmploymentStatus = "contract"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
)

// Valid reports whether e is one of the known employment statuses.
func (e EmploymentStatus) Valid() bool {
	switch e {
	case EmploymentSalaried, EmploymentSelfEmployed, EmploymentContract, EmploymentUnemployed:
		return true
	}
	return false
}

// DecisionStatus is the outcome of underwriting.
type DecisionStatus string

const (
	DecisionPending     DecisionStatus = "pending"
	DecisionApproved    DecisionStatus = "approved"
	DecisionConditional DecisionStatus = "conditional"
	DecisionRejected    DecisionStatus = "rejected"
)

// Sanctionable reports whether the decision allows moving on to sanction.
func (d DecisionStatus) Sanctionable() bool {
	return d == DecisionApproved || d == DecisionConditional
}

// FieldName identifies an application field.
type FieldName string

const (
	FieldLoanAmount       FieldName = "loan_amount"
	FieldMonthlySalary    FieldName = "monthly_salary"
	FieldEmploymentStatus FieldName = "employment_status"
	FieldCity             FieldName = "city"
	FieldTenureMonths     FieldName = "tenure_months"
)

// RequiredFields lists the needs-assessment fields in the order they are asked for.
var RequiredFields = []FieldName{FieldLoanAmount, FieldMonthlySalary, FieldEmploymentStatus, FieldCity}

// Material reports whether a change to f invalidates verification and underwriting.
func (f FieldName) Material() bool {
	switch f {
	case FieldLoanAmount, FieldMonthlySalary, FieldEmploymentStatus, FieldCity:
		return true
	}
	return false
}

// DocumentRef points to a document held by an external store.
type DocumentRef struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	URI        string    `json:"uri"`
	AttachedAt time.Time `json:"attached_at"`
}

// LoanApplication accumulates what the customer has told us. Optional fields
// are nil until they have passed their own validity check.
type LoanApplication struct {
	LoanAmount       *int64            `json:"loan_amount,omitempty"`
	MonthlySalary    *int64            `json:"monthly_salary,omitempty"`
	EmploymentStatus *EmploymentStatus `json:"employment_status,omitempty"`
	City             *string           `json:"city,omitempty"`
	TenureMonths     int               `json:"tenure_months"`
	InterestRate     float64           `json:"interest_rate"`

	CreditScore *int           `json:"credit_score,omitempty"`
	KYCVerified *bool          `json:"kyc_verified,omitempty"`
	Decision    DecisionStatus `json:"decision"`

	Underwriting     *UnderwritingDecision `json:"underwriting,omitempty"`
	EMIAmount        *int64                `json:"emi_amount,omitempty"`
	ProcessingFee    *int64                `json:"processing_fee,omitempty"`
	SanctionComplete bool                  `json:"sanction_complete"`

	Escalated        bool          `json:"escalated,omitempty"`
	EscalationReason string        `json:"escalation_reason,omitempty"`
	Documents        []DocumentRef `json:"documents,omitempty"`
}

// NewLoanApplication returns an empty application with the given defaults.
func NewLoanApplication(tenureMonths int, interestRate float64) LoanApplication {
	return LoanApplication{
		TenureMonths: tenureMonths,
		InterestRate: interestRate,
		Decision:     DecisionPending,
	}
}

// Missing returns the required fields that are not yet set, in asking order.
func (a LoanApplication) Missing() []FieldName {
	var out []FieldName
	for _, f := range RequiredFields {
		if !a.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Complete reports whether every required field is set.
func (a LoanApplication) Complete() bool {
	return len(a.Missing()) == 0
}

// Has reports whether field f is set.
func (a LoanApplication) Has(f FieldName) bool {
	switch f {
	case FieldLoanAmount:
		return a.LoanAmount != nil
	case FieldMonthlySalary:
		return a.MonthlySalary != nil
	case FieldEmploymentStatus:
		return a.EmploymentStatus != nil
	case FieldCity:
		return a.City != nil
	case FieldTenureMonths:
		return a.TenureMonths > 0
	}
	return false
}

// ResetAssessment drops everything derived from verification onwards.
func (a *LoanApplication) ResetAssessment() {
	a.CreditScore = nil
	a.KYCVerified = nil
	a.Decision = DecisionPending
	a.Underwriting = nil
	a.ResetSanction()
}

// ResetSanction drops the sanctioned terms while keeping the decision.
func (a *LoanApplication) ResetSanction() {
	a.EMIAmount = nil
	a.ProcessingFee = nil
	a.SanctionComplete = false
}

// Clone returns a deep copy.
func (a LoanApplication) Clone() LoanApplication {
	out := a
	out.LoanAmount = clonePtr(a.LoanAmount)
	out.MonthlySalary = clonePtr(a.MonthlySalary)
	out.EmploymentStatus = clonePtr(a.EmploymentStatus)
	out.City = clonePtr(a.City)
	out.CreditScore = clonePtr(a.CreditScore)
	out.KYCVerified = clonePtr(a.KYCVerified)
	out.EMIAmount = clonePtr(a.EMIAmount)
	out.ProcessingFee = clonePtr(a.ProcessingFee)
	if a.Underwriting != nil {
		u := a.Underwriting.Clone()
		out.Underwriting = &u
	}
	if a.Documents != nil {
		out.Documents = append([]DocumentRef(nil), a.Documents...)
	}
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
