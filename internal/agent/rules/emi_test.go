package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeEMI(t *testing.T) {
	tests := []struct {
		name      string
		principal int64
		rate      float64
		tenure    int
		want      int64
	}{
		{"golden five lakh", 500000, 10.5, 60, 10747},
		{"zero rate", 120000, 0, 12, 10000},
		{"zero principal", 0, 10.5, 60, 0},
		{"zero tenure", 500000, 10.5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeEMI(tt.principal, tt.rate, tt.tenure))
		})
	}
}

func TestAmortizationScheduleClosesAtZero(t *testing.T) {
	rows := AmortizationSchedule(500000, 10.5, 60, nil)
	require.Len(t, rows, 60)

	first := rows[0]
	assert.Equal(t, int64(4375), first.Interest)
	assert.Equal(t, int64(6372), first.Principal)
	assert.Equal(t, int64(493628), first.Balance)

	var principalPaid int64
	for i, r := range rows {
		assert.Equal(t, i+1, r.Month)
		assert.GreaterOrEqual(t, r.Balance, int64(0))
		principalPaid += r.Principal
	}
	assert.Equal(t, int64(500000), principalPaid)
	assert.Zero(t, rows[59].Balance)
}

func TestAmortizationScheduleIsPure(t *testing.T) {
	a := AmortizationSchedule(750000, 11.25, 36, []int{1, 12, 36})
	b := AmortizationSchedule(750000, 11.25, 36, []int{1, 12, 36})
	assert.Equal(t, a, b)
}

func TestAmortizationScheduleMilestones(t *testing.T) {
	rows := AmortizationSchedule(500000, 10.5, 60, []int{0, 1, 12, 60, 99})
	require.Len(t, rows, 3)
	assert.Equal(t, []int{1, 12, 60}, []int{rows[0].Month, rows[1].Month, rows[2].Month})

	full := AmortizationSchedule(500000, 10.5, 60, nil)
	assert.Equal(t, full[11], rows[1])
}

func TestReverseMath(t *testing.T) {
	assert.InDelta(t, 500000, ImpliedPrincipal(10747, 10.5, 60), 10)
	assert.Equal(t, int64(72000), ImpliedPrincipal(6000, 0, 12))
	assert.Zero(t, ImpliedPrincipal(0, 10.5, 12))

	n, err := ImpliedTenure(500000, 10747, 10.5)
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	_, err = ImpliedTenure(500000, 4000, 10.5)
	assert.ErrorIs(t, err, ErrNeverAmortizes)

	n, err = ImpliedTenure(60000, 6000, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestImpliedPrincipalRoundTrips(t *testing.T) {
	for _, tenure := range []int{12, 24, 36, 48, 60} {
		p := ImpliedPrincipal(6000, 10.5, tenure)
		emi := ComputeEMI(p, 10.5, tenure)
		assert.LessOrEqual(t, emi, int64(6000), "tenure %d", tenure)
		assert.GreaterOrEqual(t, emi, int64(5999), "tenure %d", tenure)
	}
}

func TestTotalInterestAndMilestones(t *testing.T) {
	total := TotalInterest(500000, 10.5, 60)
	assert.InDelta(t, 10747*60-500000, total, 60)

	assert.Equal(t, []int{1, 6, 12, 24, 36, 48, 60}, DefaultMilestones(60))
	assert.Equal(t, []int{1, 6, 12}, DefaultMilestones(12))
}
