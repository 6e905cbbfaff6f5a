package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

// Bounds are the validity ranges applied to extracted values.
type Bounds struct {
	MinSalary int64
	MaxSalary int64
	MinTenure int
	MaxTenure int
}

// DefaultBounds returns the standard salary and tenure ranges.
func DefaultBounds() Bounds {
	return Bounds{MinSalary: 5_000, MaxSalary: 1_000_000, MinTenure: 6, MaxTenure: 84}
}

// Extractor pulls loan application fields out of free text.
type Extractor struct {
	bounds   Bounds
	validate *validator.Validate
}

func New(b Bounds) *Extractor {
	return &Extractor{bounds: b, validate: validator.New()}
}

type role int

const (
	roleNone role = iota
	roleLoan
	roleSalary
	roleEMI
)

var keywordRoles = []struct {
	re   *regexp.Regexp
	role role
}{
	{regexp.MustCompile(`(?i)\b(?:salary|salaried|income|earn(?:s|ing|ings)?|ctc|take[\s-]?home|make|makes|making)\b`), roleSalary},
	{regexp.MustCompile(`(?i)\b(?:emi|emis|instal+ments?|pay|paid|paying|repay)\b`), roleEMI},
	{regexp.MustCompile(`(?i)\b(?:loan|borrow|borrowing|need|want|amount|require|looking\s+for|apply\s+for)\b`), roleLoan},
}

var tenureRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(months?|mos|mths?|years?|yrs?|yr)\b(\s+old)?`)

// Extract reads every field it can find in text. awaiting is the field the
// conversation last asked for and decides where an unlabelled amount goes.
func (e *Extractor) Extract(text string, awaiting model.FieldName) model.ExtractedData {
	var d model.ExtractedData

	amounts := FindAmounts(text)
	assigned := make([]role, len(amounts))
	for i, a := range amounts {
		assigned[i] = e.roleFor(text, amounts, i)
		if assigned[i] == roleNone && a.Annual {
			assigned[i] = roleSalary
		}
	}

	for i, a := range amounts {
		switch assigned[i] {
		case roleSalary:
			if d.MonthlySalary.IsAbsent() {
				d.MonthlySalary = e.SalaryField(a.Value, a.Raw, a.Annual)
			}
		case roleLoan:
			if d.LoanAmount.IsAbsent() {
				d.LoanAmount = e.LoanField(a.Value, a.Raw)
			}
		case roleEMI:
			if d.EMI.IsAbsent() && a.Value > 0 {
				d.EMI = model.Valid(a.Value, a.Raw)
			}
		}
	}

	var leftover []Amount
	for i, a := range amounts {
		if assigned[i] == roleNone && a.plausible() {
			leftover = append(leftover, a)
		}
	}
	if len(leftover) > 0 {
		switch {
		case awaiting == model.FieldMonthlySalary && d.MonthlySalary.IsAbsent():
			d.MonthlySalary = e.SalaryField(leftover[0].Value, leftover[0].Raw, leftover[0].Annual)
			leftover = leftover[1:]
		case awaiting == model.FieldLoanAmount && d.LoanAmount.IsAbsent():
			d.LoanAmount = e.LoanField(leftover[0].Value, leftover[0].Raw)
			leftover = leftover[1:]
		}
	}
	sort.SliceStable(leftover, func(i, j int) bool { return leftover[i].Value > leftover[j].Value })
	for _, a := range leftover {
		switch {
		case d.LoanAmount.IsAbsent():
			d.LoanAmount = e.LoanField(a.Value, a.Raw)
		case d.MonthlySalary.IsAbsent():
			d.MonthlySalary = e.SalaryField(a.Value, a.Raw, a.Annual)
		}
	}

	d.TenureMonths = e.tenure(text)
	d.EmploymentStatus = Employment(text)
	d.Objection = DetectObjection(text)
	bare := awaiting == model.FieldCity && len(amounts) == 0 &&
		d.EmploymentStatus.IsAbsent() && d.Objection == ""
	d.City = City(text, bare)
	return d
}

// roleFor looks for the closest keyword before the amount, then the first one
// after it, never crossing into a neighbouring amount.
func (e *Extractor) roleFor(text string, amounts []Amount, i int) role {
	lo := 0
	if i > 0 {
		lo = amounts[i-1].End
	}
	before := text[lo:amounts[i].Start]

	best, bestPos := roleNone, -1
	for _, kw := range keywordRoles {
		for _, loc := range kw.re.FindAllStringIndex(before, -1) {
			if loc[0] > bestPos {
				best, bestPos = kw.role, loc[0]
			}
		}
	}
	if best != roleNone {
		return best
	}

	hi := len(text)
	if i+1 < len(amounts) {
		hi = amounts[i+1].Start
	}
	after := text[amounts[i].End:hi]
	best, bestPos = roleNone, len(after)+1
	for _, kw := range keywordRoles {
		if loc := kw.re.FindStringIndex(after); loc != nil && loc[0] < bestPos {
			best, bestPos = kw.role, loc[0]
		}
	}
	return best
}

// SalaryField validates a monthly salary, converting annual figures first.
func (e *Extractor) SalaryField(value int64, raw string, annual bool) model.Field[int64] {
	if annual {
		value /= 12
	}
	rule := fmt.Sprintf("min=%d,max=%d", e.bounds.MinSalary, e.bounds.MaxSalary)
	if err := e.validate.Var(value, rule); err != nil {
		return model.Invalid[int64](raw, fmt.Sprintf("monthly salary must be between ₹%d and ₹%d", e.bounds.MinSalary, e.bounds.MaxSalary))
	}
	return model.Valid(value, raw)
}

// LoanField validates a requested loan amount.
func (e *Extractor) LoanField(value int64, raw string) model.Field[int64] {
	if err := e.validate.Var(value, "gt=0"); err != nil {
		return model.Invalid[int64](raw, "loan amount must be positive")
	}
	return model.Valid(value, raw)
}

// TenureField validates a tenure in months.
func (e *Extractor) TenureField(months int, raw string) model.Field[int] {
	rule := fmt.Sprintf("min=%d,max=%d", e.bounds.MinTenure, e.bounds.MaxTenure)
	if err := e.validate.Var(months, rule); err != nil {
		return model.Invalid[int](raw, fmt.Sprintf("tenure must be between %d and %d months", e.bounds.MinTenure, e.bounds.MaxTenure))
	}
	return model.Valid(months, raw)
}

// ParseTenure reads a tenure such as "36", "36 months" or "3 years".
func (e *Extractor) ParseTenure(raw string) model.Field[int] {
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return e.TenureField(n, raw)
	}
	return e.tenure(raw)
}

func (e *Extractor) tenure(text string) model.Field[int] {
	for _, m := range tenureRe.FindAllStringSubmatch(text, -1) {
		if m[3] != "" {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(m[2]), "y") {
			n *= 12
		}
		return e.TenureField(n, m[0])
	}
	return model.Field[int]{}
}
