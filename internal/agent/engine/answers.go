package engine

import (
	"fmt"

	"github.com/loan-orchestrator-poc/server/internal/agent/knowledge"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	"github.com/loan-orchestrator-poc/server/internal/agent/rules"
)

// answerFactual replies from the knowledge base in any stage, including closure.
func (e *Engine) answerFactual(t *turn) {
	hits := e.kb.Search(t.text, 2)
	if len(hits) == 0 {
		t.say("I don't have a specific answer for that. I can help with interest rates, eligibility, EMI, documents, fees and prepayment.")
		return
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	t.resp.Display = &model.Display{Kind: model.DisplayKnowledge, Knowledge: texts}
	t.say(texts[0])
	if t.s.Pending != nil {
		t.say("Your pending change is still waiting. Reply yes to apply it or no to keep your details.")
	}
}

func (e *Engine) answerObjection(t *turn) {
	kind := t.res.Extracted.Objection
	t.say(knowledge.ObjectionReply(kind))

	app := t.s.Application
	if kind == model.ObjectionCost && app.LoanAmount != nil && e.policy.MaxTenure > app.TenureMonths {
		emi := rules.ComputeEMI(*app.LoanAmount, app.InterestRate, e.policy.MaxTenure)
		t.say(fmt.Sprintf("For example, over %d months your EMI would be %s.", e.policy.MaxTenure, inr(emi)))
		t.suggest(fmt.Sprintf("Make it %d months", e.policy.MaxTenure))
	}
	if kind == "" {
		t.suggest("Tell me about interest rates")
	}
}
