package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountRe = regexp.MustCompile(`(?i)(?:(₹|\brs\.?|\binr)\s*|\b)(\d+(?:,\d{2,3})*(?:\.\d+)?)\s*(lpa|lakhs?|lacs?|crores?|cr|thousand|k|l)?\b`)
	// annual markers directly after an amount
	annualRe = regexp.MustCompile(`(?i)^\s*(?:/\s*(?:yr|year|annum)|per\s+(?:year|annum)|a\s+year|annually|annual|yearly|p\.?\s?a\.?\b|lpa\b|ctc\b)`)
	// amounts followed by these are not money
	nonMoneyRe = regexp.MustCompile(`(?i)^\s*(?:%|percent|months?|mos?\b|mths?|years?|yrs?|yr\b|days?|weeks?)`)
)

var unitMultipliers = map[string]int64{
	"k":        1_000,
	"thousand": 1_000,
	"l":        100_000,
	"lakh":     100_000,
	"lakhs":    100_000,
	"lac":      100_000,
	"lacs":     100_000,
	"lpa":      100_000,
	"cr":       10_000_000,
	"crore":    10_000_000,
	"crores":   10_000_000,
}

// Amount is one currency mention found in free text.
type Amount struct {
	Value    int64
	Raw      string
	Start    int
	End      int
	Annual   bool
	Currency bool
	Unit     bool
}

// plausible filters out bare small numbers such as ages or counts.
func (a Amount) plausible() bool {
	return a.Currency || a.Unit || a.Annual || a.Value >= minBareAmount
}

const minBareAmount = 1000

// anything larger is noise, not a loan figure
var maxAmount = decimal.NewFromInt(1_000_000_000_000)

// FindAmounts returns every money amount in text in order of appearance,
// normalised to whole rupees.
func FindAmounts(text string) []Amount {
	var out []Amount
	for _, m := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		numStart, numEnd := m[4], m[5]
		end := m[1]
		rest := text[end:]

		unit := ""
		if m[6] >= 0 {
			unit = strings.ToLower(text[m[6]:m[7]])
		}
		if unit == "" && nonMoneyRe.MatchString(rest) {
			continue
		}

		value, ok := scale(text[numStart:numEnd], unit)
		if !ok {
			continue
		}

		start := m[0]
		if m[2] < 0 {
			start = numStart
		}
		out = append(out, Amount{
			Value:    value,
			Unit:     unit != "",
			Raw:      strings.TrimSpace(text[start:end]),
			Start:    start,
			End:      end,
			Annual:   unit == "lpa" || annualRe.MatchString(rest),
			Currency: m[2] >= 0,
		})
	}
	return out
}

// ParseAmount normalises a single amount expression such as "5 lakhs",
// "₹5,00,000" or "80k". ok is false when no amount is present.
func ParseAmount(raw string) (value int64, annual bool, ok bool) {
	amounts := FindAmounts(raw)
	if len(amounts) == 0 {
		return 0, false, false
	}
	return amounts[0].Value, amounts[0].Annual, true
}

func scale(number, unit string) (int64, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(number, ",", ""))
	if err != nil {
		return 0, false
	}
	if mult, ok := unitMultipliers[unit]; ok {
		d = d.Mul(decimal.NewFromInt(mult))
	}
	d = d.Round(0)
	if d.GreaterThan(maxAmount) {
		return 0, false
	}
	return d.IntPart(), true
}
