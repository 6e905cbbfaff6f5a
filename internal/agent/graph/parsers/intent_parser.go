package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loan-orchestrator-poc/server/internal/agent/extract"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

// ErrSchemaViolation means the model replied, but not with a valid IntentResult.
// Retrying the same prompt is not expected to help.
var ErrSchemaViolation = errors.New("intent reply violates schema")

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 32 * 1024
	maxErrSnippet = 200
	maxReasoning  = 500
)

var intentSchema = mustCompileSchema()

func mustCompileSchema() *gojsonschema.Schema {
	nullable := func(types ...string) map[string]any {
		return map[string]any{"type": append(types, "null")}
	}
	schema := map[string]any{
		"type":     "object",
		"required": []string{"intent", "target_handler", "confidence"},
		"properties": map[string]any{
			"intent":         map[string]any{"type": "string", "enum": model.Intents},
			"target_handler": map[string]any{"type": "string", "enum": model.Handlers},
			"confidence":     map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"reasoning":      map[string]any{"type": "string"},
			"extracted_data": map[string]any{
				"type": []string{"object", "null"},
				"properties": map[string]any{
					"loan_amount":       nullable("number", "string"),
					"monthly_salary":    nullable("number", "string"),
					"salary_is_annual":  nullable("boolean"),
					"employment_status": nullable("string"),
					"city":              nullable("string"),
					"tenure_months":     nullable("number", "string"),
					"emi":               nullable("number", "string"),
					"objection":         nullable("string"),
				},
			},
		},
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("intent schema: %v", err))
	}
	return s
}

type rawExtracted struct {
	LoanAmount       json.RawMessage `json:"loan_amount"`
	MonthlySalary    json.RawMessage `json:"monthly_salary"`
	SalaryIsAnnual   *bool           `json:"salary_is_annual"`
	EmploymentStatus *string         `json:"employment_status"`
	City             *string         `json:"city"`
	TenureMonths     json.RawMessage `json:"tenure_months"`
	EMI              json.RawMessage `json:"emi"`
	Objection        *string         `json:"objection"`
}

type rawIntent struct {
	Intent        string        `json:"intent"`
	TargetHandler string        `json:"target_handler"`
	Confidence    float64       `json:"confidence"`
	Reasoning     string        `json:"reasoning"`
	Extracted     *rawExtracted `json:"extracted_data"`
}

// ParseIntentResponse turns the model reply into an IntentResult. Any shape
// problem is reported as ErrSchemaViolation; extracted values go through the
// same validation as locally extracted ones.
func ParseIntentResponse(content string, ex *extract.Extractor) (res *model.IntentResult, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "intent_parser").Msgf("panic recovered: %v", r)
			err = errx.NewKind(errx.KindInternal, fmt.Errorf("intent parser panic: %v", r), errx.SystemErrorMessage)
			res = nil
		}
	}()

	if len(content) > maxContentLen {
		return nil, fmt.Errorf("%w: reply of %d bytes exceeds limit", ErrSchemaViolation, len(content))
	}
	if !utf8.ValidString(content) {
		return nil, fmt.Errorf("%w: invalid utf8", ErrSchemaViolation)
	}

	body, ok := jsonObject(content)
	if !ok {
		return nil, fmt.Errorf("%w: no json object in %q", ErrSchemaViolation, safeSnippet(content))
	}

	result, err := intentSchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	res = &model.IntentResult{
		Intent:        model.Intent(raw.Intent),
		TargetHandler: model.Handler(raw.TargetHandler),
		Confidence:    clamp01(raw.Confidence),
		Reasoning:     truncate(raw.Reasoning, maxReasoning),
	}
	if raw.Extracted != nil {
		res.Extracted = normalizeExtracted(raw.Extracted, ex)
	}
	return res, nil
}

// jsonObject strips code fences and returns the outermost {...} span.
func jsonObject(content string) (string, bool) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func normalizeExtracted(r *rawExtracted, ex *extract.Extractor) model.ExtractedData {
	var d model.ExtractedData

	if v, raw, ok := amountValue(r.LoanAmount); ok {
		d.LoanAmount = ex.LoanField(v, raw)
	} else if raw != "" {
		d.LoanAmount = model.Invalid[int64](raw, "could not read loan amount")
	}

	if v, raw, ok := amountValue(r.MonthlySalary); ok {
		annual := r.SalaryIsAnnual != nil && *r.SalaryIsAnnual
		if _, strAnnual, parsed := extract.ParseAmount(raw); parsed && strAnnual {
			annual = true
		}
		d.MonthlySalary = ex.SalaryField(v, raw, annual)
	} else if raw != "" {
		d.MonthlySalary = model.Invalid[int64](raw, "could not read salary")
	}

	if v, raw, ok := amountValue(r.EMI); ok && v > 0 {
		d.EMI = model.Valid(v, raw)
	}

	if raw := rawString(r.TenureMonths); raw != "" {
		d.TenureMonths = ex.ParseTenure(raw)
	}

	if r.EmploymentStatus != nil && strings.TrimSpace(*r.EmploymentStatus) != "" {
		if st, ok := extract.NormalizeEmployment(*r.EmploymentStatus); ok {
			d.EmploymentStatus = model.Valid(st, *r.EmploymentStatus)
		} else {
			d.EmploymentStatus = model.Invalid[model.EmploymentStatus](*r.EmploymentStatus, "unknown employment status")
		}
	}

	if r.City != nil {
		if city := extract.NormalizeCity(*r.City); city != "" {
			d.City = model.Valid(city, *r.City)
		}
	}

	if r.Objection != nil {
		d.Objection = extract.ParseObjection(*r.Objection)
	}
	return d
}

// amountValue reads a JSON number or an amount string such as "5 lakhs".
func amountValue(msg json.RawMessage) (int64, string, bool) {
	raw := rawString(msg)
	if raw == "" {
		return 0, "", false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt64/2 {
			return 0, raw, false
		}
		return int64(math.Round(f)), raw, true
	}
	v, _, ok := extract.ParseAmount(raw)
	return v, raw, ok
}

// rawString returns the literal text of a JSON scalar, unquoting strings; null is empty.
func rawString(msg json.RawMessage) string {
	s := strings.TrimSpace(string(msg))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(msg, &str); err == nil {
		return strings.TrimSpace(str)
	}
	return s
}

// --- helpers ---

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func safeSnippet(s string) string {
	return truncate(strings.TrimSpace(s), maxErrSnippet)
}
