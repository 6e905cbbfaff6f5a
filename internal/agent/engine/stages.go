package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loan-orchestrator-poc/server/internal/agent/intent"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	"github.com/loan-orchestrator-poc/server/internal/agent/rules"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

const (
	escalationAmount = "amount_above_automated_limit"
	escalationKYC    = "kyc_failed"
)

// turn is the mutable state of one HandleQuery call under the session lock.
type turn struct {
	ctx       context.Context
	s         *model.Session
	text      string
	res       model.IntentResult
	violation bool
	report    *model.BureauReport
	now       time.Time
	resp      *model.Response
}

func (t *turn) say(parts ...string) {
	for _, p := range parts {
		if p == "" {
			continue
		}
		if t.resp.Text != "" {
			t.resp.Text += " "
		}
		t.resp.Text += p
	}
}

func (t *turn) suggest(s ...string) {
	t.resp.Suggestions = append(t.resp.Suggestions, s...)
}

// advances reports whether the intent lets a complete stage move on.
func advances(i model.Intent) bool {
	switch i {
	case model.IntentProvideDetails, model.IntentConfirm, model.IntentModify, model.IntentAutoContinue:
		return true
	}
	return false
}

func (e *Engine) dispatch(t *turn) {
	s := t.s
	switch t.res.Intent {
	case model.IntentFactual:
		e.answerFactual(t)
		return
	case model.IntentObjection:
		e.answerObjection(t)
		return
	case model.IntentHypothetical:
		e.answerHypothetical(t)
		return
	}

	if t.violation && !intent.ValidFor(s.Stage, t.res.TargetHandler) {
		e.holdStage(t)
		return
	}
	if s.Pending != nil {
		e.handlePending(t)
		return
	}
	if t.res.Intent == model.IntentModify && s.Stage.AllowsModification() {
		e.openModification(t)
		return
	}

	switch s.Stage {
	case model.StageEngagement:
		e.handleEngagement(t)
	case model.StageNeedsAssessment:
		e.handleNeedsAssessment(t)
	case model.StageVerification:
		e.handleVerification(t)
	case model.StageUnderwriting:
		e.handleUnderwriting(t)
	case model.StageSanction:
		e.handleSanction(t)
	case model.StageClosure:
		e.handleClosure(t)
	default:
		// modification without a pending change; resume the main line
		s.Stage = model.StageNeedsAssessment
		e.handleNeedsAssessment(t)
	}
}

func (e *Engine) handleEngagement(t *turn) {
	switch t.res.Intent {
	case model.IntentProvideDetails, model.IntentConfirm, model.IntentModify:
		t.s.Stage = model.StageNeedsAssessment
		e.handleNeedsAssessment(t)
	case model.IntentReject:
		t.say("No problem. If you change your mind, just tell me how much you'd like to borrow.")
	default:
		if !t.res.Extracted.Empty() {
			t.s.Stage = model.StageNeedsAssessment
			e.handleNeedsAssessment(t)
			return
		}
		t.say(welcomeText)
		t.suggest(fieldSuggestions[model.FieldLoanAmount]...)
	}
}

func (e *Engine) handleNeedsAssessment(t *turn) {
	s := t.s
	app := &s.Application

	changed, ok := e.collectDetails(t)
	if !ok {
		return
	}
	if !advances(t.res.Intent) && len(changed) == 0 {
		t.say("I have everything I need: " + summarize(*app, model.RequiredFields) + ". Shall I go ahead with verification?")
		t.suggest("Yes, proceed")
		return
	}

	s.Stage = model.StageVerification
	t.say("Thanks! Let me verify your details. This will only take a moment.")
	t.resp.AutoAdvance = e.autoAdvance(s)
}

// collectDetails applies extracted fields and asks for whatever is still
// wrong or missing. ok is true once the application is complete and nothing
// else has to be asked.
func (e *Engine) collectDetails(t *turn) (changed []model.FieldName, ok bool) {
	app := &t.s.Application

	changed = t.res.Extracted.Apply(app)
	e.checkAmountEscalation(t)
	if len(changed) > 0 {
		t.say("Got it: " + summarize(*app, changed) + ".")
	}

	if invalid := t.res.Extracted.InvalidFields(); len(invalid) > 0 {
		f := invalid[0]
		t.say(fmt.Sprintf("%s.", capitalize(t.res.Extracted.Problem(f))))
		if q, known := fieldQuestions[f]; known {
			t.say(q)
			t.suggest(fieldSuggestions[f]...)
		} else {
			t.say(fmt.Sprintf("Please choose a tenure between %d and %d months.", e.policy.MinTenure, e.policy.MaxTenure))
		}
		return changed, false
	}

	if app.Escalated {
		t.say(e.escalationText(*app))
		return changed, false
	}

	if missing := app.Missing(); len(missing) > 0 {
		if t.res.Intent == model.IntentReject {
			t.say("No problem. We can pick this up whenever you're ready.")
			return changed, false
		}
		t.say(fieldQuestions[missing[0]])
		t.suggest(fieldSuggestions[missing[0]]...)
		return changed, false
	}
	return changed, true
}

// holdStage answers a message whose target handler the current stage cannot
// reach. Details are still recorded, but the stage stays put and the
// customer is asked for what the stage needs.
func (e *Engine) holdStage(t *turn) {
	s := t.s
	logx.Warn().
		Err(errx.StageViolation(fmt.Errorf("%s from %s", t.res.TargetHandler, s.Stage), errx.StageViolationMessage)).
		Str("session_id", s.ID).
		Str("intent", string(t.res.Intent)).
		Msg("Transition held")

	switch {
	case s.Pending != nil:
		e.remindPending(t)
	case s.Stage == model.StageEngagement || s.Stage == model.StageNeedsAssessment:
		if _, ok := e.collectDetails(t); ok {
			t.say("Before we move on, please confirm your details: " + summarize(s.Application, model.RequiredFields) + ".")
			t.suggest("Yes, proceed")
		}
	default:
		t.say("Let's finish this step first.")
		if next := e.autoAdvance(s); next != nil {
			t.resp.AutoAdvance = next
		} else {
			t.say("Ask me anything about your loan, or tell me if you'd like to change something.")
		}
	}
}

func (e *Engine) handleVerification(t *turn) {
	s := t.s
	app := &s.Application

	switch {
	case !app.Complete():
		s.Stage = model.StageNeedsAssessment
		e.handleNeedsAssessment(t)
		return
	case app.Escalated:
		t.say(e.escalationText(*app))
		return
	case t.res.Intent == model.IntentReject:
		t.say("No problem, I've paused your application. Say continue whenever you're ready.")
		t.suggest("Continue")
		return
	case t.report == nil:
		t.say("Your verification is in progress.")
		t.resp.AutoAdvance = e.autoAdvance(s)
		return
	}

	app.CreditScore = model.Ptr(t.report.CreditScore)
	app.KYCVerified = model.Ptr(t.report.KYCVerified)

	if !t.report.KYCVerified {
		app.Escalated = true
		app.EscalationReason = escalationKYC
		e.recorder.RecordEscalation(t.ctx, escalationKYC)
		t.say(e.escalationText(*app))
		return
	}

	s.Stage = model.StageUnderwriting
	t.say(fmt.Sprintf("Verification complete. Your KYC is confirmed and your credit score is %d. I'm now assessing your application.", t.report.CreditScore))
	t.resp.AutoAdvance = e.autoAdvance(s)
}

func (e *Engine) handleUnderwriting(t *turn) {
	s := t.s
	app := &s.Application

	if app.Underwriting == nil {
		in, ok := rules.InputFrom(*app)
		if !ok {
			s.Stage = model.StageVerification
			t.say("I need to re-verify your details first.")
			t.resp.AutoAdvance = e.autoAdvance(s)
			return
		}
		if t.res.Intent == model.IntentReject {
			t.say("No problem, I've paused your application. Say continue whenever you're ready.")
			t.suggest("Continue")
			return
		}
		d := rules.Evaluate(e.policy, in)
		d.DecidedAt = t.now
		app.Underwriting = &d
		app.Decision = d.Decision
		e.recorder.RecordDecision(t.ctx, string(d.Decision), d.RejectionReason)
	}

	d := app.Underwriting
	t.resp.Display = &model.Display{Kind: model.DisplayDecision, Decision: cloneDecision(d)}
	switch d.Decision {
	case model.DecisionApproved:
		s.Stage = model.StageSanction
		t.say(fmt.Sprintf("Good news! Your loan of %s is approved. Your EMI will be %s for %d months. Preparing your sanction terms now.",
			inr(d.Input.LoanAmount), inr(d.EMI), d.Input.TenureMonths))
		t.resp.AutoAdvance = e.autoAdvance(s)
	case model.DecisionConditional:
		s.Stage = model.StageSanction
		t.say(fmt.Sprintf("Your loan of %s is conditionally approved. We'll need your latest salary slip to finalise it. Preparing your sanction terms now.",
			inr(d.Input.LoanAmount)))
		t.resp.AutoAdvance = e.autoAdvance(s)
	default:
		t.say(fmt.Sprintf("I'm sorry, we can't approve %s right now because %s.", inr(d.Input.LoanAmount), e.explainRejection(d)))
		if d.RejectionReason != model.ReasonCreditScore && d.EligibleLimit > 0 {
			t.say(fmt.Sprintf("You may qualify for up to %s.", inr(d.EligibleLimit)))
		}
		t.say("You can change the amount or tenure and I'll reassess.")
		t.suggest("Try a lower amount", "Choose a longer tenure", "Talk to an advisor")
	}
}

func (e *Engine) explainRejection(d *model.UnderwritingDecision) string {
	switch d.RejectionReason {
	case model.ReasonCreditScore:
		return fmt.Sprintf("your credit score is below our minimum of %d", e.policy.MinCreditScore)
	case model.ReasonFOIRExceeded:
		return fmt.Sprintf("the EMI would take more than %.0f%% of your monthly salary", e.policy.MaxFOIR*100)
	case model.ReasonAmountExceeded:
		return "the amount is above what your profile qualifies for"
	}
	return "the application details are incomplete"
}

func (e *Engine) handleSanction(t *turn) {
	s := t.s
	app := &s.Application

	if !app.Decision.Sanctionable() {
		s.Stage = model.StageUnderwriting
		e.handleUnderwriting(t)
		return
	}

	terms := e.sanctionTerms(*app)
	if !app.SanctionComplete {
		app.EMIAmount = model.Ptr(terms.EMI)
		app.ProcessingFee = model.Ptr(terms.ProcessingFee)
		app.SanctionComplete = true
	}

	s.Stage = model.StageClosure
	t.resp.Display = &model.Display{Kind: model.DisplaySanction, Sanction: &terms}
	t.say(fmt.Sprintf("Here are your sanctioned terms: %s for %d months at %s. EMI %s, processing fee %s, total payable %s.",
		inr(terms.LoanAmount), terms.TenureMonths, percent(terms.InterestRate), inr(terms.EMI), inr(terms.ProcessingFee), inr(terms.TotalPayable)))
	if len(terms.RequiredDocuments) > 0 {
		t.say("Please share your " + strings.ReplaceAll(strings.Join(terms.RequiredDocuments, ", "), "_", " ") + " to complete the process.")
	}
	t.resp.AutoAdvance = e.autoAdvance(s)
}

func (e *Engine) sanctionTerms(app model.LoanApplication) model.SanctionTerms {
	amount := *app.LoanAmount
	emi := rules.ComputeEMI(amount, app.InterestRate, app.TenureMonths)
	fee := rules.ProcessingFee(e.policy, amount)
	interest := rules.TotalInterest(amount, app.InterestRate, app.TenureMonths)

	terms := model.SanctionTerms{
		LoanAmount:    amount,
		TenureMonths:  app.TenureMonths,
		InterestRate:  app.InterestRate,
		EMI:           emi,
		ProcessingFee: fee,
		TotalInterest: interest,
		TotalPayable:  amount + interest + fee,
		Milestones:    rules.AmortizationSchedule(amount, app.InterestRate, app.TenureMonths, rules.DefaultMilestones(app.TenureMonths)),
	}
	if app.Underwriting != nil {
		terms.RequiredDocuments = append([]string(nil), app.Underwriting.RequiredDocuments...)
	}
	if app.Documents != nil {
		terms.Documents = append([]model.DocumentRef(nil), app.Documents...)
	}
	return terms
}

func (e *Engine) handleClosure(t *turn) {
	s := t.s
	app := s.Application
	if !s.Closed && app.SanctionComplete {
		s.Closed = true
		t.say(fmt.Sprintf("Congratulations! Your personal loan of %s is sanctioned. Your EMI of %s starts next month and our team will contact you about disbursement.",
			inr(*app.LoanAmount), inr(*app.EMIAmount)))
		t.say("Is there anything else I can help you with?")
		return
	}
	if t.res.Intent == model.IntentGreeting {
		t.say("Hello again!")
	}
	t.say("Your application is complete. Ask me anything about your loan, or tell me if you'd like to change something.")
}

// autoAdvance returns the continuation directive for work still pending in s.Stage.
func (e *Engine) autoAdvance(s *model.Session) *model.AutoAdvance {
	app := s.Application
	switch {
	case s.Stage == model.StageVerification && app.CreditScore == nil:
		return &model.AutoAdvance{DelaySeconds: e.flow.VerificationDelay}
	case s.Stage == model.StageUnderwriting && app.Underwriting == nil:
		return &model.AutoAdvance{DelaySeconds: e.flow.UnderwritingDelay}
	case s.Stage == model.StageSanction && !app.SanctionComplete:
		return &model.AutoAdvance{DelaySeconds: e.flow.SanctionDelay}
	case s.Stage == model.StageClosure && !s.Closed:
		return &model.AutoAdvance{DelaySeconds: e.flow.ClosureDelay}
	}
	return nil
}

// checkAmountEscalation flags amounts beyond automated underwriting and
// clears that flag once the amount is back in range.
func (e *Engine) checkAmountEscalation(t *turn) {
	app := &t.s.Application
	if app.LoanAmount == nil {
		return
	}
	over := e.policy.RequiresEscalation(*app.LoanAmount)
	switch {
	case over && !app.Escalated:
		app.Escalated = true
		app.EscalationReason = escalationAmount
		e.recorder.RecordEscalation(t.ctx, escalationAmount)
	case !over && app.Escalated && app.EscalationReason == escalationAmount:
		app.Escalated = false
		app.EscalationReason = ""
	}
}

func (e *Engine) escalationText(app model.LoanApplication) string {
	if app.EscalationReason == escalationKYC {
		return "We couldn't complete your KYC automatically, so I've passed your application to a relationship manager who will contact you shortly."
	}
	return fmt.Sprintf("Loans above %s need a review by a relationship manager. I've flagged your application and they will contact you. If you'd prefer to continue online, tell me a lower amount.",
		inr(e.policy.MaxAutomatedAmount))
}

func cloneDecision(d *model.UnderwritingDecision) *model.UnderwritingDecision {
	if d == nil {
		return nil
	}
	c := d.Clone()
	return &c
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
