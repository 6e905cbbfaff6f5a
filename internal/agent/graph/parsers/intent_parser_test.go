package parsers

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loan-orchestrator-poc/server/internal/agent/extract"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

func TestParseIntentResponse(t *testing.T) {
	ex := extract.New(extract.DefaultBounds())
	reply := "```json\n" + `{
		"intent": "provide_details",
		"target_handler": "needs_assessment",
		"confidence": 0.92,
		"reasoning": "gave all details",
		"extracted_data": {
			"loan_amount": "5 lakhs",
			"monthly_salary": 960000,
			"salary_is_annual": true,
			"employment_status": "Self Employed",
			"city": " Mumbai ",
			"tenure_months": 36,
			"emi": null
		}
	}` + "\n```"

	res, err := ParseIntentResponse(reply, ex)
	require.NoError(t, err)

	assert.Equal(t, model.IntentProvideDetails, res.Intent)
	assert.Equal(t, model.HandlerNeedsAssessment, res.TargetHandler)
	assert.Equal(t, 0.92, res.Confidence)
	assert.Equal(t, int64(500000), res.Extracted.LoanAmount.Value)
	assert.Equal(t, int64(80000), res.Extracted.MonthlySalary.Value)
	assert.Equal(t, model.EmploymentSelfEmployed, res.Extracted.EmploymentStatus.Value)
	assert.Equal(t, "mumbai", res.Extracted.City.Value)
	assert.Equal(t, 36, res.Extracted.TenureMonths.Value)
	assert.True(t, res.Extracted.EMI.IsAbsent())
}

func TestParseIntentResponseValidatesFields(t *testing.T) {
	ex := extract.New(extract.DefaultBounds())
	reply := `{"intent":"modify","target_handler":"modification","confidence":0.8,
		"extracted_data":{"monthly_salary":1200,"employment_status":"astronaut","objection":"bored"}}`

	res, err := ParseIntentResponse(reply, ex)
	require.NoError(t, err)
	assert.True(t, res.Extracted.MonthlySalary.IsInvalid())
	assert.True(t, res.Extracted.EmploymentStatus.IsInvalid())
	assert.Equal(t, model.ObjectionKind(""), res.Extracted.Objection)
}

func TestParseIntentResponseSchemaViolations(t *testing.T) {
	ex := extract.New(extract.DefaultBounds())
	tests := []struct {
		name  string
		reply string
	}{
		{"prose", "I think the user wants a loan."},
		{"unknown intent", `{"intent":"buy_laptop","target_handler":"needs_assessment","confidence":0.9}`},
		{"unknown handler", `{"intent":"confirm","target_handler":"tools","confidence":0.9}`},
		{"confidence out of range", `{"intent":"confirm","target_handler":"confirmation","confidence":1.7}`},
		{"missing confidence", `{"intent":"confirm","target_handler":"confirmation"}`},
		{"wrong type", `{"intent":"confirm","target_handler":"confirmation","confidence":"high"}`},
		{"broken json", `{"intent":"confirm",`},
		{"invalid utf8", string([]byte{0xff, 0xfe})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseIntentResponse(tt.reply, ex)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := "EMI ₹10,747"
	for n := 0; n <= len(s); n++ {
		got := truncate(s, n)
		assert.True(t, utf8.ValidString(got), "n=%d", n)
		assert.LessOrEqual(t, len(got), n)
	}
	assert.Equal(t, "EMI ", truncate(s, 5))
	assert.Equal(t, "EMI ₹", truncate(s, 7))

	long := strings.Repeat("₹", maxErrSnippet)
	assert.True(t, utf8.ValidString(safeSnippet(long)))
}
