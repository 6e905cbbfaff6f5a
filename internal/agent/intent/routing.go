package intent

import "github.com/loan-orchestrator-poc/server/internal/agent/model"

// nextStage is the main-line successor of each stage.
var nextStage = map[model.Stage]model.Stage{
	model.StageEngagement:      model.StageNeedsAssessment,
	model.StageNeedsAssessment: model.StageVerification,
	model.StageVerification:    model.StageUnderwriting,
	model.StageUnderwriting:    model.StageSanction,
	model.StageSanction:        model.StageClosure,
}

// Next returns the stage following s, or s itself at the end of the line.
func Next(s model.Stage) model.Stage {
	if n, ok := nextStage[s]; ok {
		return n
	}
	return s
}

// Route picks the handler that should process intent i while the session is in stage s.
func Route(s model.Stage, i model.Intent, hasPending bool) model.Handler {
	switch i {
	case model.IntentHypothetical:
		return model.HandlerHypothetical
	case model.IntentFactual:
		return model.HandlerFactual
	case model.IntentObjection:
		return model.HandlerObjection
	case model.IntentConfirm:
		if hasPending {
			return model.HandlerConfirmation
		}
	case model.IntentReject:
		if hasPending {
			return model.HandlerRejection
		}
	case model.IntentModify:
		if hasPending || s.AllowsModification() || s == model.StageModification {
			return model.HandlerModification
		}
		if s == model.StageEngagement {
			return model.HandlerNeedsAssessment
		}
	case model.IntentProvideDetails:
		if s == model.StageEngagement {
			return model.HandlerNeedsAssessment
		}
	}
	return model.HandlerForStage(s)
}

// ValidFor reports whether handler h may act on a session in stage s:
// the stage's own handler, its successor, the modification side-channel,
// or one of the stage-independent handlers.
func ValidFor(s model.Stage, h model.Handler) bool {
	switch h {
	case model.HandlerModification, model.HandlerConfirmation, model.HandlerRejection,
		model.HandlerHypothetical, model.HandlerFactual, model.HandlerObjection:
		return true
	}
	return h == model.HandlerForStage(s) || h == model.HandlerForStage(Next(s))
}
