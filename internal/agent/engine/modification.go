package engine

import (
	"fmt"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	"github.com/loan-orchestrator-poc/server/internal/agent/rules"
)

// hypotheticalTenures are the representative tenures shown for what-if questions.
var hypotheticalTenures = []int{12, 24, 36, 48, 60}

// diffFields lists the input fields whose values differ between a and b.
func diffFields(a, b model.LoanApplication) []model.FieldName {
	var out []model.FieldName
	for _, f := range []model.FieldName{
		model.FieldLoanAmount, model.FieldMonthlySalary, model.FieldEmploymentStatus,
		model.FieldCity, model.FieldTenureMonths,
	} {
		if fieldValue(a, f) != fieldValue(b, f) {
			out = append(out, f)
		}
	}
	return out
}

// openModification stages a change without touching the committed application.
// A second modify while one is pending builds on the pending proposal.
func (e *Engine) openModification(t *turn) {
	s := t.s
	base := s.Application
	returnStage := s.Stage
	if s.Pending != nil {
		base = s.Pending.Proposed
		returnStage = s.Pending.ReturnStage
	}

	proposed := base.Clone()
	t.res.Extracted.Apply(&proposed)
	changed := diffFields(s.Application, proposed)

	if len(changed) == 0 {
		if invalid := t.res.Extracted.InvalidFields(); len(invalid) > 0 {
			t.say(capitalize(t.res.Extracted.Problem(invalid[0])) + ". Your details are unchanged.")
			return
		}
		if s.Pending != nil {
			s.Pending = nil
			s.Stage = returnStage
			t.say("That's the same as what I already have, so there's nothing to change.")
			t.resp.AutoAdvance = e.autoAdvance(s)
			return
		}
		t.say("That matches what I already have, so nothing needs to change. What would you like to update?")
		return
	}

	material := false
	for _, f := range changed {
		if f.Material() {
			material = true
		}
	}

	pending := &model.PendingModification{
		Proposed:      proposed,
		ChangedFields: changed,
		Material:      material,
		ReturnStage:   returnStage,
		CreatedAt:     t.now,
	}
	if proposed.LoanAmount != nil {
		pending.PreviewEMI = rules.ComputeEMI(*proposed.LoanAmount, proposed.InterestRate, proposed.TenureMonths)
	}
	if in, ok := rules.InputFrom(proposed); ok && !e.policy.RequiresEscalation(in.LoanAmount) {
		d := rules.Evaluate(e.policy, in)
		pending.Preview = &d
	}

	s.Pending = pending
	s.Stage = model.StageModification
	t.resp.Display = &model.Display{Kind: model.DisplayPreview, Pending: pending.Clone()}

	t.say("Here's the change: " + describeChanges(s.Application, proposed, changed) + ".")
	if pending.PreviewEMI > 0 {
		t.say(fmt.Sprintf("Your EMI would be %s for %d months.", inr(pending.PreviewEMI), proposed.TenureMonths))
	}
	if pending.Preview != nil {
		t.say(previewText(pending.Preview))
	}
	if material {
		t.say("Since this affects your eligibility, I'll need to re-verify your details.")
	}
	t.say("Shall I apply this change?")
	t.suggest("Yes, apply it", "No, keep the original")
}

func previewText(d *model.UnderwritingDecision) string {
	switch d.Decision {
	case model.DecisionApproved:
		return "Based on your current credit profile this would likely be approved."
	case model.DecisionConditional:
		return "This would likely need additional income proof."
	default:
		return "This would likely not be approved as it stands."
	}
}

func (e *Engine) handlePending(t *turn) {
	s := t.s
	switch t.res.Intent {
	case model.IntentConfirm:
		e.commitModification(t)
	case model.IntentReject:
		p := s.Pending
		s.Pending = nil
		s.Stage = p.ReturnStage
		t.say("No problem, I've kept your original details.")
		t.resp.AutoAdvance = e.autoAdvance(s)
	case model.IntentModify, model.IntentProvideDetails:
		e.openModification(t)
	default:
		e.remindPending(t)
	}
}

func (e *Engine) remindPending(t *turn) {
	p := t.s.Pending
	t.say("You have a change waiting: " + describeChanges(t.s.Application, p.Proposed, p.ChangedFields) + ". Reply yes to apply it or no to keep your original details.")
	t.suggest("Yes, apply it", "No, keep the original")
}

// commitModification applies the pending change. Any change to an
// underwriting input other than tenure restarts from verification; a tenure
// change keeps the verified credit profile and re-runs underwriting.
func (e *Engine) commitModification(t *turn) {
	s := t.s
	p := s.Pending
	app := &s.Application

	app.LoanAmount = p.Proposed.LoanAmount
	app.MonthlySalary = p.Proposed.MonthlySalary
	app.EmploymentStatus = p.Proposed.EmploymentStatus
	app.City = p.Proposed.City
	app.TenureMonths = p.Proposed.TenureMonths
	s.Pending = nil
	s.Closed = false
	e.checkAmountEscalation(t)

	summary := summarize(*app, p.ChangedFields)
	switch {
	case p.Material:
		app.ResetAssessment()
		s.Stage = model.StageVerification
		t.say("Done, I've updated your " + summary + ". Let me re-verify your details.")
	case app.CreditScore == nil:
		s.Stage = model.StageVerification
		t.say("Done, I've updated your " + summary + ".")
	default:
		app.Underwriting = nil
		app.Decision = model.DecisionPending
		app.ResetSanction()
		s.Stage = model.StageUnderwriting
		t.say("Done, I've updated your " + summary + ". Let me recalculate your offer.")
	}

	if app.Escalated {
		t.say(e.escalationText(*app))
		return
	}
	t.resp.AutoAdvance = e.autoAdvance(s)
}

// answerHypothetical runs what-if maths against copies only; the session's
// application and pending change are left exactly as they were.
func (e *Engine) answerHypothetical(t *turn) {
	app := t.s.Application
	ex := t.res.Extracted
	rate := app.InterestRate

	if ex.EMI.IsValid() {
		emi := ex.EMI.Value
		options := make([]model.TenureOption, 0, len(hypotheticalTenures))
		for _, n := range hypotheticalTenures {
			options = append(options, model.TenureOption{TenureMonths: n, EMI: emi, Principal: rules.ImpliedPrincipal(emi, rate, n)})
		}
		display := &model.Display{Kind: model.DisplayHypothetical, Options: options}

		t.say(fmt.Sprintf("With an EMI of %s at %s you could borrow:", inr(emi), percent(rate)))
		for _, o := range options {
			t.say(fmt.Sprintf("%s over %d months;", inr(o.Principal), o.TenureMonths))
		}
		if app.LoanAmount != nil {
			if n, err := rules.ImpliedTenure(*app.LoanAmount, emi, rate); err == nil {
				display.ImpliedTenure = model.Ptr(n)
				t.say(fmt.Sprintf("For your current %s, that EMI means about %d months.", inr(*app.LoanAmount), n))
			} else {
				t.say(fmt.Sprintf("That EMI wouldn't cover the interest on your current %s.", inr(*app.LoanAmount)))
			}
		}
		t.resp.Display = display
		return
	}

	proposed := app.Clone()
	changed := ex.Apply(&proposed)
	if proposed.LoanAmount == nil {
		t.say("Tell me an amount or a monthly EMI you have in mind and I'll work out the options.")
		t.suggest("What if I paid ₹10,000 EMI?", "What if I borrowed ₹5 lakhs?")
		return
	}

	amount := *proposed.LoanAmount
	options := make([]model.TenureOption, 0, len(hypotheticalTenures))
	for _, n := range hypotheticalTenures {
		options = append(options, model.TenureOption{TenureMonths: n, EMI: rules.ComputeEMI(amount, rate, n), Principal: amount})
	}
	display := &model.Display{Kind: model.DisplayHypothetical, Options: options}

	if len(changed) > 0 {
		t.say(fmt.Sprintf("With %s, your EMI would be %s over %d months.",
			summarize(proposed, changed), inr(rules.ComputeEMI(amount, rate, proposed.TenureMonths)), proposed.TenureMonths))
	} else {
		t.say(fmt.Sprintf("For %s at %s, here is how the EMI changes with tenure.", inr(amount), percent(rate)))
	}
	if in, ok := rules.InputFrom(proposed); ok && len(changed) > 0 {
		d := rules.Evaluate(e.policy, in)
		display.Decision = &d
		t.say(previewText(&d))
	}
	t.resp.Display = display
}
