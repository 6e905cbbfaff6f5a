package rules

import (
	"github.com/shopspring/decimal"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

const ReasonInvalidInput = "invalid_input"

// Evaluate applies the policy to a snapshot. It is pure: the same inputs always
// give the same decision and DecidedAt is left for the caller to stamp.
func Evaluate(p Policy, in model.UnderwritingInput) model.UnderwritingDecision {
	d := model.UnderwritingDecision{
		Input:        in,
		RiskCategory: RiskCategory(in.CreditScore),
	}
	if in.LoanAmount <= 0 || in.MonthlySalary <= 0 || in.TenureMonths <= 0 {
		d.Decision = model.DecisionRejected
		d.RejectionReason = ReasonInvalidInput
		return d
	}

	d.EMI = ComputeEMI(in.LoanAmount, in.InterestRate, in.TenureMonths)
	d.FOIR = FOIR(d.EMI, in.MonthlySalary)
	d.EligibleLimit = EligibleLimit(p, in.MonthlySalary, in.EmploymentStatus, in.City)

	affordable := d.FOIR <= p.MaxFOIR
	conditionalLimit := decimal.NewFromInt(d.EligibleLimit).Mul(decimal.NewFromFloat(p.ConditionalMultiple)).IntPart()

	switch {
	case in.CreditScore < p.MinCreditScore:
		d.Decision = model.DecisionRejected
		d.RejectionReason = model.ReasonCreditScore
	case in.LoanAmount <= d.EligibleLimit && affordable:
		d.Decision = model.DecisionApproved
	case in.LoanAmount <= conditionalLimit && affordable:
		d.Decision = model.DecisionConditional
		d.RequiredDocuments = []string{"salary_slip"}
	case !affordable:
		d.Decision = model.DecisionRejected
		d.RejectionReason = model.ReasonFOIRExceeded
	default:
		d.Decision = model.DecisionRejected
		d.RejectionReason = model.ReasonAmountExceeded
	}
	return d
}

// FOIR is the share of monthly salary consumed by the instalment, to four decimals.
func FOIR(emi, monthlySalary int64) float64 {
	if monthlySalary <= 0 {
		return 0
	}
	f, _ := decimal.NewFromInt(emi).DivRound(decimal.NewFromInt(monthlySalary), 4).Float64()
	return f
}

// EligibleLimit is salary × multiple × employment factor × city factor, floored to a rupee.
func EligibleLimit(p Policy, monthlySalary int64, employment model.EmploymentStatus, city string) int64 {
	return decimal.NewFromInt(monthlySalary).
		Mul(decimal.NewFromFloat(p.SalaryMultiple)).
		Mul(decimal.NewFromFloat(p.EmploymentFactor(employment))).
		Mul(decimal.NewFromFloat(p.CityFactor(city))).
		Floor().
		IntPart()
}

// RiskCategory buckets a credit score.
func RiskCategory(score int) model.RiskCategory {
	switch {
	case score >= 750:
		return model.RiskLow
	case score >= 700:
		return model.RiskMedium
	case score >= 650:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

// ProcessingFee is the configured percentage of the loan amount, rounded to a rupee.
func ProcessingFee(p Policy, amount int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(p.ProcessingFeePct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// InputFrom builds an underwriting snapshot from a complete application.
// ok is false when a required field or the credit score is missing.
func InputFrom(app model.LoanApplication) (model.UnderwritingInput, bool) {
	if !app.Complete() || app.CreditScore == nil {
		return model.UnderwritingInput{}, false
	}
	return model.UnderwritingInput{
		LoanAmount:       *app.LoanAmount,
		MonthlySalary:    *app.MonthlySalary,
		CreditScore:      *app.CreditScore,
		EmploymentStatus: *app.EmploymentStatus,
		City:             *app.City,
		TenureMonths:     app.TenureMonths,
		InterestRate:     app.InterestRate,
	}, true
}
