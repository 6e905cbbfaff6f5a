package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

func input(amount, salary int64, score int, emp model.EmploymentStatus, city string) model.UnderwritingInput {
	return model.UnderwritingInput{
		LoanAmount:       amount,
		MonthlySalary:    salary,
		CreditScore:      score,
		EmploymentStatus: emp,
		City:             city,
		TenureMonths:     60,
		InterestRate:     10.5,
	}
}

func TestEvaluate(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name     string
		in       model.UnderwritingInput
		decision model.DecisionStatus
		reason   string
		limit    int64
	}{
		{
			name:     "metro salaried approved",
			in:       input(500000, 80000, 780, model.EmploymentSalaried, "mumbai"),
			decision: model.DecisionApproved,
			limit:    1360000,
		},
		{
			name:     "low credit rejected regardless",
			in:       input(100000, 1000000, 600, model.EmploymentSalaried, "nagpur"),
			decision: model.DecisionRejected,
			reason:   model.ReasonCreditScore,
			limit:    20000000,
		},
		{
			name:     "self employed within twice the limit",
			in:       input(1500000, 100000, 720, model.EmploymentSelfEmployed, "pune"),
			decision: model.DecisionConditional,
			limit:    1190000,
		},
		{
			name:     "instalment too heavy",
			in:       input(4000000, 100000, 800, model.EmploymentSalaried, "pune"),
			decision: model.DecisionRejected,
			reason:   model.ReasonFOIRExceeded,
			limit:    1700000,
		},
		{
			name:     "unemployed has no limit",
			in:       input(100000, 100000, 800, model.EmploymentUnemployed, "jaipur"),
			decision: model.DecisionRejected,
			reason:   model.ReasonAmountExceeded,
			limit:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(p, tt.in)
			assert.Equal(t, tt.decision, d.Decision)
			assert.Equal(t, tt.reason, d.RejectionReason)
			assert.Equal(t, tt.limit, d.EligibleLimit)
			assert.Equal(t, tt.in, d.Input)
			assert.True(t, d.DecidedAt.IsZero())
		})
	}
}

func TestEvaluateStoresFOIRVerbatim(t *testing.T) {
	d := Evaluate(DefaultPolicy(), input(500000, 80000, 780, model.EmploymentSalaried, "mumbai"))
	assert.Equal(t, int64(10747), d.EMI)
	assert.Equal(t, 0.1343, d.FOIR)
	assert.Equal(t, model.RiskLow, d.RiskCategory)
}

func TestEvaluateConditionalNeedsSalarySlip(t *testing.T) {
	d := Evaluate(DefaultPolicy(), input(1500000, 100000, 720, model.EmploymentSelfEmployed, "pune"))
	assert.Equal(t, []string{"salary_slip"}, d.RequiredDocuments)
	assert.Equal(t, model.RiskMedium, d.RiskCategory)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	p := DefaultPolicy()
	in := input(900000, 45000, 690, model.EmploymentContract, "Chennai")
	assert.Equal(t, Evaluate(p, in), Evaluate(p, in))
}

func TestEvaluateInvalidInput(t *testing.T) {
	d := Evaluate(DefaultPolicy(), input(500000, 0, 780, model.EmploymentSalaried, "mumbai"))
	assert.Equal(t, model.DecisionRejected, d.Decision)
	assert.Equal(t, ReasonInvalidInput, d.RejectionReason)
}

func TestEmploymentFactorOrdering(t *testing.T) {
	p := DefaultPolicy()
	assert.Greater(t, p.EmploymentFactor(model.EmploymentSalaried), p.EmploymentFactor(model.EmploymentContract))
	assert.Greater(t, p.EmploymentFactor(model.EmploymentContract), p.EmploymentFactor(model.EmploymentSelfEmployed))
	assert.Greater(t, p.EmploymentFactor(model.EmploymentSelfEmployed), p.EmploymentFactor(model.EmploymentUnemployed))
}

func TestPolicyHelpers(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 0.85, p.CityFactor(" Bengaluru "))
	assert.Equal(t, 1.0, p.CityFactor("indore"))
	assert.True(t, p.RequiresEscalation(6_000_000))
	assert.False(t, p.RequiresEscalation(5_000_000))
	assert.True(t, p.TenureAllowed(36))
	assert.False(t, p.TenureAllowed(120))
	assert.Equal(t, int64(10000), ProcessingFee(p, 500000))
}

func TestRiskCategory(t *testing.T) {
	assert.Equal(t, model.RiskLow, RiskCategory(750))
	assert.Equal(t, model.RiskMedium, RiskCategory(700))
	assert.Equal(t, model.RiskHigh, RiskCategory(650))
	assert.Equal(t, model.RiskCritical, RiskCategory(649))
}

func TestInputFrom(t *testing.T) {
	app := model.NewLoanApplication(60, 10.5)
	_, ok := InputFrom(app)
	assert.False(t, ok)

	app.LoanAmount = model.Ptr(int64(500000))
	app.MonthlySalary = model.Ptr(int64(80000))
	app.EmploymentStatus = model.Ptr(model.EmploymentSalaried)
	app.City = model.Ptr("mumbai")
	_, ok = InputFrom(app)
	assert.False(t, ok)

	app.CreditScore = model.Ptr(780)
	in, ok := InputFrom(app)
	assert.True(t, ok)
	assert.Equal(t, input(500000, 80000, 780, model.EmploymentSalaried, "mumbai"), in)
}
