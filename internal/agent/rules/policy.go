package rules

import (
	"strings"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

// Policy holds the underwriting parameters. The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	MinCreditScore      int
	MaxFOIR             float64
	SalaryMultiple      float64
	ConditionalMultiple float64
	EmploymentFactors   map[model.EmploymentStatus]float64
	CityFactors         map[string]float64
	DefaultCityFactor   float64
	MaxAutomatedAmount  int64
	ProcessingFeePct    float64
	DefaultRate         float64
	DefaultTenure       int
	MinTenure           int
	MaxTenure           int
}

var metroCities = []string{"mumbai", "delhi", "new delhi", "bangalore", "bengaluru", "chennai", "kolkata", "hyderabad", "pune"}

// DefaultPolicy returns the standard retail personal-loan policy.
func DefaultPolicy() Policy {
	return PolicyFromConfig(model.UnderwritingConfig{
		MinCreditScore:      650,
		MaxFOIR:             0.5,
		SalaryMultiple:      20,
		ConditionalMultiple: 2,
		MaxAutomatedAmount:  5_000_000,
		DefaultRate:         10.5,
		DefaultTenure:       60,
		MinTenure:           6,
		MaxTenure:           84,
		ProcessingFeePct:    2,
	})
}

// PolicyFromConfig builds a policy from env configuration.
func PolicyFromConfig(cfg model.UnderwritingConfig) Policy {
	cities := make(map[string]float64, len(metroCities))
	for _, c := range metroCities {
		cities[c] = 0.85
	}
	return Policy{
		MinCreditScore:      cfg.MinCreditScore,
		MaxFOIR:             cfg.MaxFOIR,
		SalaryMultiple:      cfg.SalaryMultiple,
		ConditionalMultiple: cfg.ConditionalMultiple,
		EmploymentFactors: map[model.EmploymentStatus]float64{
			model.EmploymentSalaried:     1.0,
			model.EmploymentContract:     0.8,
			model.EmploymentSelfEmployed: 0.7,
			model.EmploymentUnemployed:   0,
		},
		CityFactors:        cities,
		DefaultCityFactor:  1.0,
		MaxAutomatedAmount: cfg.MaxAutomatedAmount,
		ProcessingFeePct:   cfg.ProcessingFeePct,
		DefaultRate:        cfg.DefaultRate,
		DefaultTenure:      cfg.DefaultTenure,
		MinTenure:          cfg.MinTenure,
		MaxTenure:          cfg.MaxTenure,
	}
}

// EmploymentFactor returns the limit multiplier for e; unknown statuses get zero.
func (p Policy) EmploymentFactor(e model.EmploymentStatus) float64 {
	return p.EmploymentFactors[e]
}

// CityFactor returns the cost-of-living multiplier for city.
func (p Policy) CityFactor(city string) float64 {
	if f, ok := p.CityFactors[strings.ToLower(strings.TrimSpace(city))]; ok {
		return f
	}
	return p.DefaultCityFactor
}

// RequiresEscalation reports whether amount is beyond automated underwriting.
func (p Policy) RequiresEscalation(amount int64) bool {
	return p.MaxAutomatedAmount > 0 && amount > p.MaxAutomatedAmount
}

// TenureAllowed reports whether months is within the policy bounds.
func (p Policy) TenureAllowed(months int) bool {
	return months >= p.MinTenure && months <= p.MaxTenure
}
