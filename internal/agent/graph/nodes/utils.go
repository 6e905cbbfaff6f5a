package nodes

import (
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

// Node keys of the classification graph.
const (
	NodeInputConverter  = "InputConverter"
	NodeIntentChatModel = "IntentChatModel"
	NodeIntentParser    = "IntentParser"
)

// resetState prepares graph local state for a new classification.
func resetState(state *model.AppState, in model.ClassifyInput, modelName string) {
	state.SessionID = in.SessionID
	state.Stage = in.Stage
	state.Model = modelName
	state.TotalCostUSD = 0
}
