package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

// inr formats v with Indian digit grouping, e.g. ₹5,00,000.
func inr(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) > 3 {
		head, tail := s[:len(s)-3], s[len(s)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		s = strings.Join(groups, ",") + "," + tail
	}
	return sign + "₹" + s
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

var fieldLabels = map[model.FieldName]string{
	model.FieldLoanAmount:       "loan amount",
	model.FieldMonthlySalary:    "monthly salary",
	model.FieldEmploymentStatus: "employment status",
	model.FieldCity:             "city",
	model.FieldTenureMonths:     "tenure",
}

var fieldQuestions = map[model.FieldName]string{
	model.FieldLoanAmount:       "How much would you like to borrow?",
	model.FieldMonthlySalary:    "What is your monthly take-home salary?",
	model.FieldEmploymentStatus: "Are you salaried, self-employed or working on a contract?",
	model.FieldCity:             "Which city do you live in?",
}

var fieldSuggestions = map[model.FieldName][]string{
	model.FieldLoanAmount:       {"₹3 lakhs", "₹5 lakhs", "₹10 lakhs"},
	model.FieldEmploymentStatus: {"Salaried", "Self-employed", "Contract"},
}

var employmentLabels = map[model.EmploymentStatus]string{
	model.EmploymentSalaried:     "salaried",
	model.EmploymentSelfEmployed: "self-employed",
	model.EmploymentContract:     "contract",
	model.EmploymentUnemployed:   "not employed",
}

// fieldValue renders the current value of f, or "" when unset.
func fieldValue(app model.LoanApplication, f model.FieldName) string {
	switch f {
	case model.FieldLoanAmount:
		if app.LoanAmount != nil {
			return inr(*app.LoanAmount)
		}
	case model.FieldMonthlySalary:
		if app.MonthlySalary != nil {
			return inr(*app.MonthlySalary)
		}
	case model.FieldEmploymentStatus:
		if app.EmploymentStatus != nil {
			return employmentLabels[*app.EmploymentStatus]
		}
	case model.FieldCity:
		if app.City != nil {
			return titleCase(*app.City)
		}
	case model.FieldTenureMonths:
		if app.TenureMonths > 0 {
			return fmt.Sprintf("%d months", app.TenureMonths)
		}
	}
	return ""
}

// summarize lists "label value" pairs for fields.
func summarize(app model.LoanApplication, fields []model.FieldName) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := fieldValue(app, f); v != "" {
			parts = append(parts, fieldLabels[f]+" "+v)
		}
	}
	return strings.Join(parts, ", ")
}

// describeChanges renders "label old → new" for every changed field.
func describeChanges(from, to model.LoanApplication, fields []model.FieldName) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		old := fieldValue(from, f)
		if old == "" {
			old = "not set"
		}
		parts = append(parts, fmt.Sprintf("%s %s → %s", fieldLabels[f], old, fieldValue(to, f)))
	}
	return strings.Join(parts, ", ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
