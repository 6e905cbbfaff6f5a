package model

// AppState stores per-invocation state for the classification graph.
// It is registered via compose.WithGenLocalState and only touched inside
// Eino state handlers or compose.ProcessState.
type AppState struct {
	SessionID string
	Stage     Stage
	Model     string
	// Accumulated LLM cost (USD) for this classification
	TotalCostUSD float64
}

// ClassifyInput is everything the classifier may look at for one message.
type ClassifyInput struct {
	SessionID   string          `json:"session_id"`
	Text        string          `json:"text"`
	Stage       Stage           `json:"stage"`
	History     []Message       `json:"history"`
	Application LoanApplication `json:"application"`
	HasPending  bool            `json:"has_pending"`
}

// AwaitingField returns the first required field still missing, which is what
// the previous assistant turn asked for.
func (in ClassifyInput) AwaitingField() FieldName {
	if in.Stage != StageEngagement && in.Stage != StageNeedsAssessment {
		return ""
	}
	if missing := in.Application.Missing(); len(missing) > 0 {
		return missing[0]
	}
	return ""
}

// ClassifyOutput is what the graph returns: the parsed intent plus usage cost.
// SchemaError is set instead of Result when the reply could not be parsed.
type ClassifyOutput struct {
	Result      IntentResult
	CostUSD     float64
	SchemaError string
}
