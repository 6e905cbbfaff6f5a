package extract

import (
	"regexp"
	"strings"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

// checked in order; the first match wins
var employmentPatterns = []struct {
	re     *regexp.Regexp
	status model.EmploymentStatus
}{
	{regexp.MustCompile(`(?i)\bself[\s-]?employed\b|\bbusiness\s*owner\b|\bown\s+(?:a\s+)?business\b|\bfreelanc\w*|\bentrepreneur\b|\bproprietor\b`), model.EmploymentSelfEmployed},
	{regexp.MustCompile(`(?i)\bunemployed\b|\bnot\s+working\b|\bjobless\b|\bno\s+job\b|\blost\s+my\s+job\b`), model.EmploymentUnemployed},
	{regexp.MustCompile(`(?i)\bcontract(?:ual|or)?\b|\btemporary\b|\btemp\s+job\b`), model.EmploymentContract},
	{regexp.MustCompile(`(?i)\bsalaried\b|\bemployed\b|\bfull[\s-]?time\b|\bpermanent\b|\bwork(?:ing)?\s+(?:at|for|in)\s+a\b|\bjob\s+at\b`), model.EmploymentSalaried},
}

// Employment finds an employment status keyword in text.
func Employment(text string) model.Field[model.EmploymentStatus] {
	for _, p := range employmentPatterns {
		if loc := p.re.FindStringIndex(text); loc != nil {
			return model.Valid(p.status, text[loc[0]:loc[1]])
		}
	}
	return model.Field[model.EmploymentStatus]{}
}

// NormalizeEmployment maps a free-form label such as "Self Employed" onto a status.
func NormalizeEmployment(raw string) (model.EmploymentStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if st := model.EmploymentStatus(s); st.Valid() {
		return st, true
	}
	if f := Employment(raw); f.IsValid() {
		return f.Value, true
	}
	return "", false
}

var knownCities = []string{
	"navi mumbai", "new delhi", "mumbai", "delhi", "bangalore", "bengaluru", "chennai", "kolkata",
	"hyderabad", "pune", "ahmedabad", "jaipur", "lucknow", "surat", "nagpur", "indore", "bhopal",
	"chandigarh", "kochi", "coimbatore", "noida", "gurgaon", "gurugram", "patna", "vadodara",
	"visakhapatnam", "thane", "mysore", "mysuru", "nashik", "ludhiana", "kanpur", "agra", "goa",
}

var (
	cityRes        = buildCityRes()
	explicitCityRe = regexp.MustCompile(`(?i)\b(?:city\s*(?:is|:)|based\s+(?:in|out\s+of)|live\s+in|living\s+in|located\s+in|stay\s+in|staying\s+in|reside\s+in)\s+([a-z][a-z ]{1,24}?)\s*(?:[.,!?]|$|\band\b)`)
	bareCityRe     = regexp.MustCompile(`(?i)^\s*([a-z][a-z]+(?:\s[a-z]+)?)\s*[.!]?\s*$`)
)

func buildCityRes() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(knownCities))
	for i, c := range knownCities {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(c) + `\b`)
	}
	return out
}

// City finds a city in text. Known cities match anywhere; unknown names are
// accepted after an explicit phrase like "I live in", or as a bare one or two
// word reply when the city was just asked for.
func City(text string, awaiting bool) model.Field[string] {
	for i, re := range cityRes {
		if loc := re.FindStringIndex(text); loc != nil {
			return model.Valid(knownCities[i], text[loc[0]:loc[1]])
		}
	}
	if m := explicitCityRe.FindStringSubmatch(text); m != nil {
		return model.Valid(NormalizeCity(m[1]), m[0])
	}
	if awaiting {
		if m := bareCityRe.FindStringSubmatch(text); m != nil && !isReservedWord(m[1]) {
			return model.Valid(NormalizeCity(m[1]), m[1])
		}
	}
	return model.Field[string]{}
}

// NormalizeCity lower-cases and collapses whitespace.
func NormalizeCity(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

var reservedWords = map[string]bool{
	"yes": true, "no": true, "ok": true, "okay": true, "sure": true, "hi": true, "hello": true,
	"hey": true, "thanks": true, "thank": true, "you": true, "there": true, "please": true,
	"nope": true, "yeah": true, "yep": true, "go": true, "ahead": true, "cancel": true,
	"why": true, "what": true, "how": true, "when": true, "help": true, "not": true,
	"fine": true, "good": true, "great": true, "maybe": true, "later": true, "done": true,
	"continue": true, "stop": true, "i": true, "me": true, "my": true, "it": true,
}

// isReservedWord reports whether any word of s is a conversational filler.
func isReservedWord(s string) bool {
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if reservedWords[w] {
			return true
		}
	}
	return false
}

var objectionPatterns = []struct {
	re   *regexp.Regexp
	kind model.ObjectionKind
}{
	{regexp.MustCompile(`(?i)\b(?:not\s+interested|don'?t\s+need|no\s+need|not\s+looking)\b`), model.ObjectionNotInterested},
	{regexp.MustCompile(`(?i)\b(?:too\s+expensive|expensive|costly|too\s+much|too\s+high|rate\s+is\s+high|high\s+interest)\b`), model.ObjectionCost},
	{regexp.MustCompile(`(?i)\b(?:bad|low|poor)\s+credit\b|\bcredit\s+history\b|\bmy\s+credit\s+score\b`), model.ObjectionCredit},
	{regexp.MustCompile(`(?i)\b(?:need\s+to\s+think|think\s+about\s+it|consult|discuss\s+with|talk\s+to\s+my)\b`), model.ObjectionDelay},
	{regexp.MustCompile(`(?i)\b(?:not\s+sure|unsure|doubt(?:ful)?|hesitant)\b`), model.ObjectionUncertainty},
	{regexp.MustCompile(`(?i)\b(?:complicated|difficult|complex|hassle|too\s+many\s+documents)\b`), model.ObjectionProcess},
	{regexp.MustCompile(`(?i)\b(?:other|another)\s+(?:bank|lender|institution)\b|\bcompetitor\b|\bbetter\s+offer\b|\belsewhere\b`), model.ObjectionAlternative},
}

// DetectObjection returns the first objection kind that text expresses.
func DetectObjection(text string) model.ObjectionKind {
	for _, p := range objectionPatterns {
		if p.re.MatchString(text) {
			return p.kind
		}
	}
	return ""
}

// ParseObjection validates an objection label.
func ParseObjection(raw string) model.ObjectionKind {
	switch k := model.ObjectionKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case model.ObjectionCost, model.ObjectionUncertainty, model.ObjectionDelay, model.ObjectionNotInterested,
		model.ObjectionCredit, model.ObjectionProcess, model.ObjectionAlternative:
		return k
	}
	return ""
}
