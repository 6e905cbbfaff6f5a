package model

// DisplayKind tells the caller how to render a structured payload.
type DisplayKind string

const (
	DisplayDecision     DisplayKind = "decision"
	DisplaySanction     DisplayKind = "sanction"
	DisplayHypothetical DisplayKind = "hypothetical"
	DisplayPreview      DisplayKind = "modification_preview"
	DisplayKnowledge    DisplayKind = "knowledge"
)

// Display is the optional structured payload attached to a response.
type Display struct {
	Kind          DisplayKind           `json:"kind"`
	Decision      *UnderwritingDecision `json:"decision,omitempty"`
	Sanction      *SanctionTerms        `json:"sanction,omitempty"`
	Options       []TenureOption        `json:"options,omitempty"`
	ImpliedTenure *int                  `json:"implied_tenure,omitempty"`
	Pending       *PendingModification  `json:"pending,omitempty"`
	Knowledge     []string              `json:"knowledge,omitempty"`
}

// AutoAdvance asks the caller to send ContinuationToken after the delay.
type AutoAdvance struct {
	DelaySeconds int `json:"delay_seconds"`
}

// Response is what HandleQuery returns for one turn.
type Response struct {
	SessionID   string               `json:"session_id"`
	Text        string               `json:"response_text"`
	Stage       Stage                `json:"stage"`
	Display     *Display             `json:"structured_display,omitempty"`
	Suggestions []string             `json:"suggestions,omitempty"`
	AutoAdvance *AutoAdvance         `json:"auto_advance,omitempty"`
	Application LoanApplication      `json:"loan_application"`
	Intent      Intent               `json:"intent,omitempty"`
	Source      ClassificationSource `json:"source,omitempty"`
	Failed      bool                 `json:"failed,omitempty"`
}
