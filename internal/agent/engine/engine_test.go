package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loan-orchestrator-poc/server/internal/agent/intent"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	"github.com/loan-orchestrator-poc/server/internal/agent/repo"
	"github.com/loan-orchestrator-poc/server/internal/agent/rules"
	"github.com/loan-orchestrator-poc/server/internal/agent/verification"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
	"github.com/loan-orchestrator-poc/server/internal/observability"
)

const fullDetails = "I need a loan of 5 lakhs, salary 80k, salaried, Mumbai"

var testFlow = model.FlowConfig{VerificationDelay: 2, UnderwritingDelay: 2, SanctionDelay: 3, ClosureDelay: 3}

// blockingRunner never answers before the caller's deadline.
type blockingRunner struct{}

func (blockingRunner) Invoke(ctx context.Context, _ model.ClassifyInput) (model.ClassifyOutput, error) {
	<-ctx.Done()
	return model.ClassifyOutput{}, ctx.Err()
}

type runnerFunc func(ctx context.Context, in model.ClassifyInput) (model.ClassifyOutput, error)

func (f runnerFunc) Invoke(ctx context.Context, in model.ClassifyInput) (model.ClassifyOutput, error) {
	return f(ctx, in)
}

func llmClassifier(r runnerFunc) *intent.Classifier {
	return intent.NewClassifier(intent.Options{
		Runner:    r,
		Config:    model.NLUModelConfig{Timeout: time.Second, RatePerMinute: 600},
		Extractor: NewExtractor(rules.DefaultPolicy()),
	})
}

type harness struct {
	engine *Engine
	repo   model.SessionRepository
	bureau *verification.MockBureau
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	r := repo.NewMemorySessionRepository(0)
	bureau := verification.NewMockBureau(750)
	return &harness{
		engine: newEngine(t, r, intent.NewClassifier(intent.Options{Extractor: NewExtractor(rules.DefaultPolicy())}), verification.NewVerifier(bureau, time.Second)),
		repo:   r,
		bureau: bureau,
	}
}

func newEngine(t *testing.T, r model.SessionRepository, c *intent.Classifier, v *verification.Verifier) *Engine {
	t.Helper()
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	e, err := New(Options{
		Repo:       r,
		Classifier: c,
		Verifier:   v,
		Flow:       testFlow,
		Recorder:   observability.NewNoop(),
		Clock:      func() time.Time { return clock },
	})
	require.NoError(t, err)
	return e
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	id, err := h.engine.StartSession(context.Background())
	require.NoError(t, err)
	return id
}

func (h *harness) say(t *testing.T, id, text string) *model.Response {
	t.Helper()
	resp, err := h.engine.HandleQuery(context.Background(), id, text)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.False(t, resp.Failed)
	return resp
}

// runToClosure drives a session through every stage with continuation tokens.
func (h *harness) runToClosure(t *testing.T, id string) []*model.Response {
	t.Helper()
	out := []*model.Response{h.say(t, id, fullDetails)}
	for i := 0; i < 4; i++ {
		out = append(out, h.say(t, id, model.ContinuationToken))
	}
	return out
}

func TestStartSession(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	s, err := h.engine.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StageEngagement, s.Stage)
	assert.Equal(t, 60, s.Application.TenureMonths)
	assert.Equal(t, 10.5, s.Application.InterestRate)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, model.RoleAssistant, s.Messages[0].Role)
}

func TestFullSentenceMovesToVerification(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	resp := h.say(t, id, fullDetails)

	assert.Equal(t, model.StageVerification, resp.Stage)
	assert.Equal(t, model.IntentProvideDetails, resp.Intent)
	assert.Equal(t, model.SourceFallback, resp.Source)
	require.NotNil(t, resp.AutoAdvance)
	assert.Equal(t, testFlow.VerificationDelay, resp.AutoAdvance.DelaySeconds)

	app := resp.Application
	require.True(t, app.Complete())
	assert.Equal(t, int64(500000), *app.LoanAmount)
	assert.Equal(t, int64(80000), *app.MonthlySalary)
	assert.Equal(t, model.EmploymentSalaried, *app.EmploymentStatus)
	assert.Equal(t, "mumbai", *app.City)
}

func TestAsksForMissingFields(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	resp := h.say(t, id, "I want to borrow 3 lakhs")
	assert.Equal(t, model.StageNeedsAssessment, resp.Stage)
	assert.Nil(t, resp.AutoAdvance)
	assert.Contains(t, resp.Text, fieldQuestions[model.FieldMonthlySalary])

	resp = h.say(t, id, "60000")
	assert.Equal(t, int64(60000), *resp.Application.MonthlySalary)
	assert.Contains(t, resp.Text, fieldQuestions[model.FieldEmploymentStatus])
}

func TestInvalidValueIsReasked(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.say(t, id, "I want to borrow 3 lakhs")

	resp := h.say(t, id, "my salary is 3000")
	assert.Equal(t, model.StageNeedsAssessment, resp.Stage)
	assert.Nil(t, resp.Application.MonthlySalary)
	assert.Contains(t, resp.Text, "Monthly salary must be between")
}

func TestFullFlowReachesClosure(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	resps := h.runToClosure(t, id)
	stages := []model.Stage{
		model.StageVerification, model.StageUnderwriting, model.StageSanction,
		model.StageClosure, model.StageClosure,
	}
	for i, want := range stages {
		assert.Equal(t, want, resps[i].Stage, "turn %d", i)
	}

	underwriting := resps[1]
	assert.Equal(t, 750, *underwriting.Application.CreditScore)
	assert.True(t, *underwriting.Application.KYCVerified)
	assert.Equal(t, testFlow.UnderwritingDelay, underwriting.AutoAdvance.DelaySeconds)

	decision := resps[2]
	require.NotNil(t, decision.Display)
	assert.Equal(t, model.DisplayDecision, decision.Display.Kind)
	assert.Equal(t, model.DecisionApproved, decision.Display.Decision.Decision)
	assert.Equal(t, testFlow.SanctionDelay, decision.AutoAdvance.DelaySeconds)

	sanction := resps[3]
	require.NotNil(t, sanction.Display)
	terms := sanction.Display.Sanction
	require.NotNil(t, terms)
	assert.Equal(t, rules.ComputeEMI(500000, 10.5, 60), terms.EMI)
	assert.Equal(t, int64(10000), terms.ProcessingFee)
	assert.Equal(t, terms.LoanAmount+terms.TotalInterest+terms.ProcessingFee, terms.TotalPayable)
	assert.True(t, sanction.Application.SanctionComplete)
	assert.Equal(t, testFlow.ClosureDelay, sanction.AutoAdvance.DelaySeconds)

	closed := resps[4]
	assert.Nil(t, closed.AutoAdvance)
	assert.Contains(t, closed.Text, "Congratulations")

	s, err := h.engine.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, s.Closed)
	// continuation tokens are not stored as user messages
	userMsgs := 0
	for _, m := range s.Messages {
		if m.Role == model.RoleUser {
			userMsgs++
			assert.NotEqual(t, model.ContinuationToken, m.Text)
		}
	}
	assert.Equal(t, 1, userMsgs)
	assert.Len(t, s.Messages, 7)
}

func TestStageRankNeverDecreasesWithoutModification(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	rank := model.StageEngagement.Rank()
	for _, resp := range h.runToClosure(t, id) {
		assert.GreaterOrEqual(t, resp.Stage.Rank(), rank)
		rank = resp.Stage.Rank()
	}
}

func TestContinuationIsIdempotentAtClosure(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.runToClosure(t, id)

	before, err := h.engine.GetSession(context.Background(), id)
	require.NoError(t, err)
	resp := h.say(t, id, model.ContinuationToken)
	assert.Equal(t, model.StageClosure, resp.Stage)
	assert.Nil(t, resp.AutoAdvance)
	assert.Equal(t, before.Application, resp.Application)
}

func TestHypotheticalDoesNotMutate(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.runToClosure(t, id)

	before, err := h.engine.GetSession(context.Background(), id)
	require.NoError(t, err)

	resp := h.say(t, id, "what if I paid 6000 EMI?")
	assert.Equal(t, model.IntentHypothetical, resp.Intent)
	require.NotNil(t, resp.Display)
	assert.Equal(t, model.DisplayHypothetical, resp.Display.Kind)
	require.Len(t, resp.Display.Options, 5)
	for i, o := range resp.Display.Options {
		assert.Equal(t, hypotheticalTenures[i], o.TenureMonths)
		assert.Equal(t, int64(6000), o.EMI)
		assert.Equal(t, rules.ImpliedPrincipal(6000, 10.5, o.TenureMonths), o.Principal)
	}
	require.NotNil(t, resp.Display.ImpliedTenure)

	after, err := h.engine.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, before.Stage, after.Stage)
	assert.Equal(t, before.Application, after.Application)
	assert.Nil(t, after.Pending)
}

func TestHypotheticalAmountPreview(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.runToClosure(t, id)

	resp := h.say(t, id, "what if I borrowed 8 lakhs?")
	require.NotNil(t, resp.Display)
	require.Len(t, resp.Display.Options, 5)
	assert.Equal(t, int64(800000), resp.Display.Options[0].Principal)
	require.NotNil(t, resp.Display.Decision)
	assert.Equal(t, int64(500000), *resp.Application.LoanAmount)
}

func TestModificationConfirmedAfterTimeout(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.runToClosure(t, id)

	resp := h.say(t, id, "actually make it 8 lakhs")
	assert.Equal(t, model.StageModification, resp.Stage)
	require.NotNil(t, resp.Display)
	assert.Equal(t, model.DisplayPreview, resp.Display.Kind)
	pending := resp.Display.Pending
	require.NotNil(t, pending)
	assert.True(t, pending.Material)
	assert.Equal(t, model.StageClosure, pending.ReturnStage)
	assert.Equal(t, rules.ComputeEMI(800000, 10.5, 60), pending.PreviewEMI)
	assert.Equal(t, int64(500000), *resp.Application.LoanAmount, "committed application is untouched")

	slow := intent.NewClassifier(intent.Options{
		Runner: blockingRunner{},
		Config: model.NLUModelConfig{Timeout: 20 * time.Millisecond, MaxRetries: 1, RatePerMinute: 600},
	})
	e := newEngine(t, h.repo, slow, verification.NewVerifier(h.bureau, time.Second))

	resp, err := e.HandleQuery(context.Background(), id, "yes go ahead")
	require.NoError(t, err)
	assert.Equal(t, model.SourceFallback, resp.Source)
	assert.Equal(t, model.IntentConfirm, resp.Intent)
	assert.Equal(t, model.StageVerification, resp.Stage)
	assert.Equal(t, int64(800000), *resp.Application.LoanAmount)
	assert.Nil(t, resp.Application.CreditScore)
	assert.Nil(t, resp.Application.Underwriting)
	assert.False(t, resp.Application.SanctionComplete)
	require.NotNil(t, resp.AutoAdvance)

	s, err := h.engine.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, s.Pending)
	assert.False(t, s.Closed)
}

func TestModificationRejectedKeepsOriginal(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.runToClosure(t, id)
	before, err := h.engine.GetSession(context.Background(), id)
	require.NoError(t, err)

	h.say(t, id, "actually make it 8 lakhs")
	resp := h.say(t, id, "no, keep the original")

	assert.Equal(t, model.IntentReject, resp.Intent)
	assert.Equal(t, model.StageClosure, resp.Stage)
	assert.Nil(t, resp.AutoAdvance)
	assert.Equal(t, before.Application, resp.Application)
}

func TestTenureChangeKeepsVerification(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.runToClosure(t, id)

	resp := h.say(t, id, "can you change the tenure to 36 months")
	require.Equal(t, model.StageModification, resp.Stage)
	assert.False(t, resp.Display.Pending.Material)

	resp = h.say(t, id, "yes")
	assert.Equal(t, model.StageUnderwriting, resp.Stage)
	assert.Equal(t, 36, resp.Application.TenureMonths)
	assert.Equal(t, 750, *resp.Application.CreditScore)
	assert.Nil(t, resp.Application.Underwriting)
	require.NotNil(t, resp.AutoAdvance)
	assert.Equal(t, testFlow.UnderwritingDelay, resp.AutoAdvance.DelaySeconds)

	resp = h.say(t, id, model.ContinuationToken)
	require.NotNil(t, resp.Display)
	assert.Equal(t, 36, resp.Display.Decision.Input.TenureMonths)
	assert.Equal(t, model.StageSanction, resp.Stage)
}

func TestFactualKeepsStage(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.say(t, id, fullDetails)

	resp := h.say(t, id, "what documents do I need?")
	assert.Equal(t, model.IntentFactual, resp.Intent)
	assert.Equal(t, model.StageVerification, resp.Stage)
	require.NotNil(t, resp.Display)
	assert.Equal(t, model.DisplayKnowledge, resp.Display.Kind)
	assert.Contains(t, resp.Text, "identity proof")
	assert.Nil(t, resp.Application.CreditScore)
}

func TestObjectionOffersLongerTenure(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.say(t, id, fullDetails)

	resp := h.say(t, id, "this is too expensive")
	assert.Equal(t, model.IntentObjection, resp.Intent)
	assert.Equal(t, model.StageVerification, resp.Stage)
	assert.Contains(t, resp.Text, inr(rules.ComputeEMI(500000, 10.5, 84)))
}

func TestLargeAmountEscalates(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	resp := h.say(t, id, "I need a loan of 60 lakhs, salary 2 lakhs, salaried, Mumbai")
	assert.Equal(t, model.StageNeedsAssessment, resp.Stage)
	assert.True(t, resp.Application.Escalated)
	assert.Equal(t, escalationAmount, resp.Application.EscalationReason)
	assert.Nil(t, resp.AutoAdvance)
	assert.Contains(t, resp.Text, "relationship manager")

	resp = h.say(t, id, "ok make it 5 lakhs then")
	assert.False(t, resp.Application.Escalated)
	assert.Equal(t, model.StageVerification, resp.Stage)
}

func TestKYCFailureEscalates(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.bureau.FailKYC(id)

	h.say(t, id, fullDetails)
	resp := h.say(t, id, model.ContinuationToken)

	assert.Equal(t, model.StageVerification, resp.Stage)
	assert.True(t, resp.Application.Escalated)
	assert.Equal(t, escalationKYC, resp.Application.EscalationReason)
	assert.Nil(t, resp.AutoAdvance)
}

func TestLowCreditScoreIsRejected(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.bureau.SetScore(id, 600)

	h.say(t, id, fullDetails)
	h.say(t, id, model.ContinuationToken)
	resp := h.say(t, id, model.ContinuationToken)

	assert.Equal(t, model.StageUnderwriting, resp.Stage)
	assert.Equal(t, model.DecisionRejected, resp.Application.Decision)
	assert.Equal(t, model.ReasonCreditScore, resp.Display.Decision.RejectionReason)
	assert.Nil(t, resp.AutoAdvance)
	assert.NotEmpty(t, resp.Suggestions)
}

func TestRequiredModelMissingFailsTurn(t *testing.T) {
	r := repo.NewMemorySessionRepository(0)
	c := intent.NewClassifier(intent.Options{Config: model.NLUModelConfig{Required: true}})
	e := newEngine(t, r, c, verification.NewVerifier(verification.NewMockBureau(750), time.Second))

	id, err := e.StartSession(context.Background())
	require.NoError(t, err)

	resp, err := e.HandleQuery(context.Background(), id, fullDetails)
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Equal(t, genericFailureText, resp.Text)
	assert.Equal(t, model.StageEngagement, resp.Stage)

	s, err := e.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, s.Messages, 1)
}

func TestMissingVerifierFailsTurn(t *testing.T) {
	r := repo.NewMemorySessionRepository(0)
	e := newEngine(t, r, intent.NewClassifier(intent.Options{}), nil)

	id, err := e.StartSession(context.Background())
	require.NoError(t, err)
	_, err = e.HandleQuery(context.Background(), id, fullDetails)
	require.NoError(t, err)

	resp, err := e.HandleQuery(context.Background(), id, model.ContinuationToken)
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Equal(t, model.StageVerification, resp.Stage)
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.HandleQuery(context.Background(), "missing", "hello")
	assert.True(t, errx.IsKind(err, errx.KindNotFound))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Repo: repo.NewMemorySessionRepository(0)})
	assert.Error(t, err)
}

func TestAttachDocument(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	_, err := h.engine.AttachDocument(context.Background(), id, model.DocumentRef{Kind: "salary_slip"})
	assert.Error(t, err)

	s, err := h.engine.AttachDocument(context.Background(), id, model.DocumentRef{Kind: "salary_slip", URI: "s3://docs/slip.pdf"})
	require.NoError(t, err)
	require.Len(t, s.Application.Documents, 1)
	assert.NotEmpty(t, s.Application.Documents[0].ID)

	resps := h.runToClosure(t, id)
	require.Len(t, resps[3].Display.Sanction.Documents, 1)
}

func TestConcurrentQueriesOnOneSession(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.HandleQuery(context.Background(), id, "hello")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	s, err := h.engine.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, s.Messages, 1+2*n)
	assert.Equal(t, int64(n), s.Version)
	assert.Zero(t, h.engine.locks.size())
}

func TestQueriesAppliedInArrivalOrder(t *testing.T) {
	r := repo.NewMemorySessionRepository(0)
	started := make(chan struct{})
	slowFirst := llmClassifier(func(_ context.Context, in model.ClassifyInput) (model.ClassifyOutput, error) {
		if in.Text == "first message" {
			close(started)
			time.Sleep(300 * time.Millisecond)
		}
		return model.ClassifyOutput{Result: model.IntentResult{
			Intent:        model.IntentGreeting,
			TargetHandler: model.HandlerForStage(in.Stage),
			Confidence:    0.9,
		}}, nil
	})
	e := newEngine(t, r, slowFirst, verification.NewVerifier(verification.NewMockBureau(750), time.Second))
	id, err := e.StartSession(context.Background())
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := e.HandleQuery(context.Background(), id, "first message")
		firstDone <- err
	}()
	<-started

	_, err = e.HandleQuery(context.Background(), id, "second message")
	require.NoError(t, err)
	require.NoError(t, <-firstDone)

	s, err := e.GetSession(context.Background(), id)
	require.NoError(t, err)
	var userTexts []string
	for _, m := range s.Messages {
		if m.Role == model.RoleUser {
			userTexts = append(userTexts, m.Text)
		}
	}
	assert.Equal(t, []string{"first message", "second message"}, userTexts)
	assert.Zero(t, e.locks.size())
}

func TestHandlerOutsideStageHoldsTransition(t *testing.T) {
	r := repo.NewMemorySessionRepository(0)
	verifier := verification.NewVerifier(verification.NewMockBureau(750), time.Second)
	toClosure := llmClassifier(func(context.Context, model.ClassifyInput) (model.ClassifyOutput, error) {
		return model.ClassifyOutput{Result: model.IntentResult{
			Intent:        model.IntentProvideDetails,
			TargetHandler: model.HandlerClosure,
			Confidence:    0.9,
		}}, nil
	})
	e := newEngine(t, r, toClosure, verifier)
	id, err := e.StartSession(context.Background())
	require.NoError(t, err)

	resp, err := e.HandleQuery(context.Background(), id, fullDetails)
	require.NoError(t, err)
	assert.Equal(t, model.SourceLLM, resp.Source)
	assert.Equal(t, model.StageEngagement, resp.Stage)
	assert.Nil(t, resp.AutoAdvance)
	assert.True(t, resp.Application.Complete(), "details are still recorded")
	assert.Contains(t, resp.Text, "please confirm your details")
	assert.NotContains(t, resp.Text, "Let me verify")

	fallback := newEngine(t, r, intent.NewClassifier(intent.Options{Extractor: NewExtractor(rules.DefaultPolicy())}), verifier)
	resp, err = fallback.HandleQuery(context.Background(), id, "yes")
	require.NoError(t, err)
	assert.Equal(t, model.StageVerification, resp.Stage)
}

func TestSessionQueue(t *testing.T) {
	q := newSessionQueue()
	first := q.Enqueue("a")
	abandoned := q.Enqueue("a")
	third := q.Enqueue("a")
	other := q.Enqueue("b")
	assert.Equal(t, 2, q.size())

	require.NoError(t, first.Wait(context.Background()))
	require.NoError(t, other.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, third.Wait(ctx), context.DeadlineExceeded)

	abandoned.Release()
	select {
	case <-third.ready:
		t.Fatal("third ticket served before the first was released")
	default:
	}

	first.Release()
	require.NoError(t, third.Wait(context.Background()))
	third.Release()
	third.Release()
	other.Release()
	assert.Zero(t, q.size())

	unlock, err := q.Lock(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, q.size())
	unlock()
	assert.Zero(t, q.size())
}

func TestINR(t *testing.T) {
	tests := map[int64]string{
		0:        "₹0",
		999:      "₹999",
		1234:     "₹1,234",
		500000:   "₹5,00,000",
		12345678: "₹1,23,45,678",
		-250000:  "-₹2,50,000",
	}
	for v, want := range tests {
		assert.Equal(t, want, inr(v))
	}
}
