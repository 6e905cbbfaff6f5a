package model

import "time"

// RiskCategory buckets an applicant by credit score.
type RiskCategory string

const (
	RiskLow      RiskCategory = "low"
	RiskMedium   RiskCategory = "medium"
	RiskHigh     RiskCategory = "high"
	RiskCritical RiskCategory = "critical"
)

// Rejection reasons recorded on a decision.
const (
	ReasonCreditScore    = "credit_score_below_threshold"
	ReasonFOIRExceeded   = "foir_exceeded"
	ReasonAmountExceeded = "amount_exceeds_limit"
)

// UnderwritingInput is the snapshot a decision was computed from.
type UnderwritingInput struct {
	LoanAmount       int64            `json:"loan_amount"`
	MonthlySalary    int64            `json:"monthly_salary"`
	CreditScore      int              `json:"credit_score"`
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	City             string           `json:"city"`
	TenureMonths     int              `json:"tenure_months"`
	InterestRate     float64          `json:"interest_rate"`
}

// UnderwritingDecision is immutable once produced; a modification yields a new one.
type UnderwritingDecision struct {
	Input             UnderwritingInput `json:"input"`
	EligibleLimit     int64             `json:"eligible_limit"`
	EMI               int64             `json:"emi"`
	FOIR              float64           `json:"foir"`
	Decision          DecisionStatus    `json:"decision"`
	RejectionReason   string            `json:"rejection_reason,omitempty"`
	RiskCategory      RiskCategory      `json:"risk_category"`
	RequiredDocuments []string          `json:"required_documents,omitempty"`
	DecidedAt         time.Time         `json:"decided_at"`
}

// Clone returns a deep copy.
func (d UnderwritingDecision) Clone() UnderwritingDecision {
	out := d
	if d.RequiredDocuments != nil {
		out.RequiredDocuments = append([]string(nil), d.RequiredDocuments...)
	}
	return out
}

// ScheduleRow is one month of an amortization schedule.
type ScheduleRow struct {
	Month     int   `json:"month"`
	EMI       int64 `json:"emi"`
	Principal int64 `json:"principal"`
	Interest  int64 `json:"interest"`
	Balance   int64 `json:"balance"`
}

// TenureOption is one row of a hypothetical comparison.
type TenureOption struct {
	TenureMonths int   `json:"tenure_months"`
	EMI          int64 `json:"emi"`
	Principal    int64 `json:"principal"`
}

// SanctionTerms are the final terms shown to the customer at sanction.
type SanctionTerms struct {
	LoanAmount        int64         `json:"loan_amount"`
	TenureMonths      int           `json:"tenure_months"`
	InterestRate      float64       `json:"interest_rate"`
	EMI               int64         `json:"emi"`
	ProcessingFee     int64         `json:"processing_fee"`
	TotalInterest     int64         `json:"total_interest"`
	TotalPayable      int64         `json:"total_payable"`
	Milestones        []ScheduleRow `json:"milestones"`
	RequiredDocuments []string      `json:"required_documents,omitempty"`
	Documents         []DocumentRef `json:"documents,omitempty"`
}
