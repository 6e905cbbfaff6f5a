package rules

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

// ErrNeverAmortizes is returned when an instalment does not even cover the first month's interest.
var ErrNeverAmortizes = errors.New("emi does not cover monthly interest")

// monthlyRate converts an annual percentage rate to a monthly fraction.
func monthlyRate(annualRatePercent float64) float64 {
	return annualRatePercent / 12 / 100
}

// ComputeEMI returns the reducing-balance instalment rounded to the nearest rupee.
func ComputeEMI(principal int64, annualRatePercent float64, tenureMonths int) int64 {
	if principal <= 0 || tenureMonths <= 0 {
		return 0
	}
	r := monthlyRate(annualRatePercent)
	if r <= 0 {
		return int64(math.Round(float64(principal) / float64(tenureMonths)))
	}
	growth := math.Pow(1+r, float64(tenureMonths))
	emi := float64(principal) * r * growth / (growth - 1)
	return int64(math.Round(emi))
}

// ImpliedPrincipal is the largest principal an instalment of emi repays over tenureMonths.
func ImpliedPrincipal(emi int64, annualRatePercent float64, tenureMonths int) int64 {
	if emi <= 0 || tenureMonths <= 0 {
		return 0
	}
	r := monthlyRate(annualRatePercent)
	if r <= 0 {
		return emi * int64(tenureMonths)
	}
	growth := math.Pow(1+r, float64(tenureMonths))
	return int64(math.Floor(float64(emi) * (growth - 1) / (r * growth)))
}

// ImpliedTenure is the number of months needed to repay principal with instalments of emi.
func ImpliedTenure(principal, emi int64, annualRatePercent float64) (int, error) {
	if principal <= 0 {
		return 0, nil
	}
	if emi <= 0 {
		return 0, ErrNeverAmortizes
	}
	r := monthlyRate(annualRatePercent)
	if r <= 0 {
		return int(math.Ceil(float64(principal) / float64(emi))), nil
	}
	ratio := float64(principal) * r / float64(emi)
	if ratio >= 1 {
		return 0, ErrNeverAmortizes
	}
	n := -math.Log(1-ratio) / math.Log(1+r)
	// absorb float noise before rounding up to whole months
	return int(math.Ceil(n - 1e-9)), nil
}

// AmortizationSchedule walks the loan month by month in whole rupees. When
// milestones is empty every month is returned; otherwise only the listed months.
// The last month absorbs rounding so the closing balance is exactly zero.
func AmortizationSchedule(principal int64, annualRatePercent float64, tenureMonths int, milestones []int) []model.ScheduleRow {
	if principal <= 0 || tenureMonths <= 0 {
		return nil
	}
	emi := ComputeEMI(principal, annualRatePercent, tenureMonths)
	rate := decimal.NewFromFloat(annualRatePercent).Div(decimal.NewFromInt(1200))

	want := make(map[int]bool, len(milestones))
	for _, m := range milestones {
		if m >= 1 && m <= tenureMonths {
			want[m] = true
		}
	}

	rows := make([]model.ScheduleRow, 0, len(want))
	balance := principal
	for month := 1; month <= tenureMonths; month++ {
		interest := decimal.NewFromInt(balance).Mul(rate).Round(0).IntPart()
		pay := emi
		principalPart := pay - interest
		if month == tenureMonths || principalPart > balance {
			principalPart = balance
			pay = principalPart + interest
		}
		balance -= principalPart

		if len(want) == 0 || want[month] {
			rows = append(rows, model.ScheduleRow{
				Month:     month,
				EMI:       pay,
				Principal: principalPart,
				Interest:  interest,
				Balance:   balance,
			})
		}
	}
	return rows
}

// TotalInterest sums the interest paid over the full schedule.
func TotalInterest(principal int64, annualRatePercent float64, tenureMonths int) int64 {
	var total int64
	for _, row := range AmortizationSchedule(principal, annualRatePercent, tenureMonths, nil) {
		total += row.Interest
	}
	return total
}

// DefaultMilestones picks the months shown in a sanction summary.
func DefaultMilestones(tenureMonths int) []int {
	var out []int
	for _, m := range []int{1, 6, 12, 24, 36, 48, 60, 72, 84} {
		if m < tenureMonths {
			out = append(out, m)
		}
	}
	return append(out, tenureMonths)
}
