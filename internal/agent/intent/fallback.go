package intent

import (
	"regexp"
	"strings"

	"github.com/loan-orchestrator-poc/server/internal/agent/extract"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

const (
	fallbackConfidence = 0.4
	unknownConfidence  = 0.2
)

var (
	hypotheticalRe = regexp.MustCompile(`(?i)\bwhat\s+if\b|\bif\s+i\s+(?:paid|pay|borrow(?:ed)?|took|take|had|have|got|get)\b|\bsuppose\b|\bhypothetically\b|\bwhat\s+would\b`)
	negationRe     = regexp.MustCompile(`(?i)^\s*(?:no|nope|nah|not\s+really)\b|\b(?:cancel|discard|decline|don'?t\s+change|keep\s+(?:it|the\s+old|the\s+original)|as\s+it\s+was)\b`)
	affirmationRe  = regexp.MustCompile(`(?i)\b(?:yes|yeah|yep|yup|sure|ok|okay|alright|go\s+ahead|proceed|confirm(?:ed)?|agree[d]?|sounds\s+good|let'?s\s+do\s+it|please\s+do|fine|perfect|continue|carry\s+on)\b`)
	greetingRe     = regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey|hiya|namaste|good\s+(?:morning|afternoon|evening))\b`)
	questionRe     = regexp.MustCompile(`(?i)\?\s*$|^\s*(?:what|how|why|when|which|who|where|can|could|do|does|is|are|will|tell\s+me|explain)\b`)
)

// Matcher is the deterministic pattern classifier used when the language
// model is unavailable. It never fails and always yields a well-formed result.
type Matcher struct {
	ex *extract.Extractor
}

func NewMatcher(ex *extract.Extractor) *Matcher {
	if ex == nil {
		ex = extract.New(extract.DefaultBounds())
	}
	return &Matcher{ex: ex}
}

// Match classifies in.Text with keyword and numeric rules. Rules are tried in
// order and the first hit wins.
func (m *Matcher) Match(in model.ClassifyInput) model.IntentResult {
	text := strings.TrimSpace(in.Text)
	data := m.ex.Extract(text, in.AwaitingField())

	res := model.IntentResult{Extracted: data, Confidence: fallbackConfidence}
	mentioned := len(data.ValidFields())+len(data.InvalidFields()) > 0

	switch {
	case text == "":
		res.Intent, res.Confidence, res.Reasoning = model.IntentUnknown, unknownConfidence, "fallback: empty message"
	case hypotheticalRe.MatchString(text):
		res.Intent, res.Reasoning = model.IntentHypothetical, "fallback: conditional phrasing"
	case mentioned && len(data.Differs(in.Application)) > 0:
		res.Intent, res.Reasoning = model.IntentModify, "fallback: contradicts a stored field"
	case mentioned:
		res.Intent, res.Reasoning = model.IntentProvideDetails, "fallback: field values found"
	case data.Objection != "":
		res.Intent, res.Reasoning = model.IntentObjection, "fallback: objection "+string(data.Objection)
	case negationRe.MatchString(text):
		res.Intent, res.Reasoning = model.IntentReject, "fallback: negation"
	case affirmationRe.MatchString(text):
		res.Intent, res.Reasoning = model.IntentConfirm, "fallback: affirmation"
	case greetingRe.MatchString(text):
		res.Intent, res.Reasoning = model.IntentGreeting, "fallback: greeting"
	case questionRe.MatchString(text):
		res.Intent, res.Reasoning = model.IntentFactual, "fallback: question"
	default:
		res.Intent, res.Confidence, res.Reasoning = model.IntentUnknown, unknownConfidence, "fallback: no rule matched"
	}

	res.TargetHandler = Route(in.Stage, res.Intent, in.HasPending)
	return res
}
