package model

// Stage is a step of the loan conversation state machine.
type Stage string

const (
	StageEngagement      Stage = "engagement"
	StageNeedsAssessment Stage = "needs_assessment"
	StageVerification    Stage = "verification"
	StageUnderwriting    Stage = "underwriting"
	StageSanction        Stage = "sanction"
	StageClosure         Stage = "closure"
	// StageModification is the side-channel holding a pending change until confirmed.
	StageModification Stage = "modification"
)

var stageOrder = map[Stage]int{
	StageEngagement:      0,
	StageNeedsAssessment: 1,
	StageVerification:    2,
	StageUnderwriting:    3,
	StageSanction:        4,
	StageClosure:         5,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok || s == StageModification
}

// Rank orders the main-line stages. Modification has no rank and returns -1.
func (s Stage) Rank() int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return -1
}

// AllowsModification reports whether a modify request may open the side-channel from s.
func (s Stage) AllowsModification() bool {
	switch s {
	case StageVerification, StageUnderwriting, StageSanction, StageClosure:
		return true
	}
	return false
}

// Handler names the component that should process a turn.
type Handler string

const (
	HandlerEngagement      Handler = "engagement"
	HandlerNeedsAssessment Handler = "needs_assessment"
	HandlerVerification    Handler = "verification"
	HandlerUnderwriting    Handler = "underwriting"
	HandlerSanction        Handler = "sanction"
	HandlerClosure         Handler = "closure"
	HandlerModification    Handler = "modification"
	HandlerConfirmation    Handler = "confirmation"
	HandlerRejection       Handler = "rejection"
	HandlerHypothetical    Handler = "hypothetical"
	HandlerFactual         Handler = "factual"
	HandlerObjection       Handler = "objection"
)

// Handlers lists every handler a classification may target.
var Handlers = []Handler{
	HandlerEngagement, HandlerNeedsAssessment, HandlerVerification,
	HandlerUnderwriting, HandlerSanction, HandlerClosure,
	HandlerModification, HandlerConfirmation, HandlerRejection,
	HandlerHypothetical, HandlerFactual, HandlerObjection,
}

// Valid reports whether h is a known handler name.
func (h Handler) Valid() bool {
	for _, known := range Handlers {
		if h == known {
			return true
		}
	}
	return false
}

// HandlerForStage returns the handler that owns stage s.
func HandlerForStage(s Stage) Handler {
	if s == StageModification {
		return HandlerModification
	}
	return Handler(s)
}

// Intent is the classified purpose of a user message.
type Intent string

const (
	IntentProvideDetails Intent = "provide_details"
	IntentConfirm        Intent = "confirm"
	IntentReject         Intent = "reject"
	IntentModify         Intent = "modify"
	IntentHypothetical   Intent = "question_hypothetical"
	IntentFactual        Intent = "question_factual"
	IntentObjection      Intent = "objection"
	IntentGreeting       Intent = "greeting"
	IntentUnknown        Intent = "unknown"
	IntentAutoContinue   Intent = "auto_continue"
)

// Intents lists every intent the classifier may emit.
var Intents = []Intent{
	IntentProvideDetails, IntentConfirm, IntentReject, IntentModify,
	IntentHypothetical, IntentFactual, IntentObjection, IntentGreeting,
	IntentUnknown, IntentAutoContinue,
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// ContinuationToken is the reserved query text a caller sends after honouring an auto-advance directive.
const ContinuationToken = "__continue__"
