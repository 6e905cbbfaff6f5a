package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loan-orchestrator-poc/server/internal/agent/extract"
	"github.com/loan-orchestrator-poc/server/internal/agent/intent"
	"github.com/loan-orchestrator-poc/server/internal/agent/knowledge"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	"github.com/loan-orchestrator-poc/server/internal/agent/rules"
	"github.com/loan-orchestrator-poc/server/internal/agent/verification"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
	"github.com/loan-orchestrator-poc/server/internal/observability"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

const (
	// attempts at the locked read-modify-write before giving up on a busy session
	maxSaveAttempts = 3

	welcomeText        = "Hello! I can help you get a personal loan in a few minutes. How much would you like to borrow?"
	genericFailureText = "Sorry, something went wrong on our side. Please try again in a moment."
)

// Options wires the engine's collaborators. Repo and Classifier are required.
type Options struct {
	Repo       model.SessionRepository
	Classifier *intent.Classifier
	Verifier   *verification.Verifier
	Policy     rules.Policy
	Flow       model.FlowConfig
	Knowledge  *knowledge.Base
	Recorder   *observability.Recorder
	Clock      func() time.Time
	NewID      func() string
}

// Engine runs the loan conversation state machine. Each HandleQuery call is
// one unit of work: take a place in the session's queue, classify, then
// wait for the earlier messages and reload, mutate and save.
type Engine struct {
	repo       model.SessionRepository
	classifier *intent.Classifier
	verifier   *verification.Verifier
	policy     rules.Policy
	flow       model.FlowConfig
	kb         *knowledge.Base
	recorder   *observability.Recorder
	now        func() time.Time
	newID      func() string
	locks      *sessionQueue
}

func New(opts Options) (*Engine, error) {
	if opts.Repo == nil {
		return nil, errx.Fatal(errors.New("session repository is nil"), errx.ConfigErrorMessage)
	}
	if opts.Classifier == nil {
		return nil, errx.Fatal(errors.New("intent classifier is nil"), errx.ConfigErrorMessage)
	}
	if opts.Policy.DefaultTenure == 0 {
		opts.Policy = rules.DefaultPolicy()
	}
	if opts.Knowledge == nil {
		opts.Knowledge = knowledge.MustDefault()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{
		repo:       opts.Repo,
		classifier: opts.Classifier,
		verifier:   opts.Verifier,
		policy:     opts.Policy,
		flow:       opts.Flow,
		kb:         opts.Knowledge,
		recorder:   opts.Recorder,
		now:        opts.Clock,
		newID:      opts.NewID,
		locks:      newSessionQueue(),
	}, nil
}

// NewExtractor returns an extractor bounded by the policy's tenure limits.
func NewExtractor(p rules.Policy) *extract.Extractor {
	b := extract.DefaultBounds()
	if p.MinTenure > 0 && p.MaxTenure >= p.MinTenure {
		b.MinTenure, b.MaxTenure = p.MinTenure, p.MaxTenure
	}
	return extract.New(b)
}

// StartSession creates a session in the engagement stage.
func (e *Engine) StartSession(ctx context.Context) (string, error) {
	now := e.now()
	s := &model.Session{
		ID:          e.newID(),
		Stage:       model.StageEngagement,
		Application: model.NewLoanApplication(e.policy.DefaultTenure, e.policy.DefaultRate),
		Messages:    []model.Message{{Role: model.RoleAssistant, Text: welcomeText, At: now}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.repo.Create(ctx, s); err != nil {
		return "", err
	}
	logx.Info().Str("session_id", s.ID).Msg("Session started")
	return s.ID, nil
}

// GetSession returns a snapshot of the session.
func (e *Engine) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return e.repo.Load(ctx, id)
}

// AttachDocument threads a document reference onto the application. The
// engine never reads the document itself.
func (e *Engine) AttachDocument(ctx context.Context, id string, doc model.DocumentRef) (*model.Session, error) {
	if strings.TrimSpace(doc.URI) == "" {
		return nil, errx.Validation(errors.New("document uri is empty"), "document reference needs a uri")
	}
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		s, err := e.repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.ID == "" {
			doc.ID = e.newID()
		}
		if doc.AttachedAt.IsZero() {
			doc.AttachedAt = e.now()
		}
		s.Application.Documents = append(s.Application.Documents, doc)
		s.UpdatedAt = e.now()

		err = e.repo.Save(ctx, s)
		if errx.IsKind(err, errx.KindConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, errx.NewKind(errx.KindConflict, fmt.Errorf("session %s stayed busy", id), errx.SessionConflictMessage)
}

// HandleQuery processes one user message. Messages for the same session are
// applied in the order they arrived. The returned error is reserved for an
// unknown session, cancellation and storage failures; a missing required
// dependency yields a Response with Failed set.
func (e *Engine) HandleQuery(ctx context.Context, id, text string) (*model.Response, error) {
	snap, err := e.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.classifier.Ready(); err != nil {
		return e.failed(snap, err), nil
	}

	place := e.locks.Enqueue(id)
	defer place.Release()

	// the model call overlaps with earlier messages still being applied
	in := classifyInput(snap, text)
	cls := e.classifier.Classify(ctx, in)

	if err := place.Wait(ctx); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		s, err := e.repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if fresh := classifyInput(s, text); routingChanged(in, fresh) {
			logx.Debug().Str("session_id", id).Str("stage", string(s.Stage)).Msg("Session moved while classifying, reclassifying")
			in = fresh
			cls = e.classifier.Classify(ctx, in)
		}

		var report *model.BureauReport
		if needsReport(s, cls.Result.Intent) {
			req, _ := verification.RequestFrom(s.ID, s.Application)
			r, err := e.verifier.Verify(ctx, req)
			if err != nil {
				return e.failed(s, err), nil
			}
			report = &r
		}

		resp, err := e.apply(ctx, s, text, cls, report)
		if errx.IsKind(err, errx.KindConflict) {
			logx.Warn().Str("session_id", id).Int("attempt", attempt+1).Msg("Session changed during turn, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
	return nil, errx.NewKind(errx.KindConflict, fmt.Errorf("session %s stayed busy", id), errx.SessionConflictMessage)
}

func classifyInput(s *model.Session, text string) model.ClassifyInput {
	return model.ClassifyInput{
		SessionID:   s.ID,
		Text:        text,
		Stage:       s.Stage,
		History:     s.Messages,
		Application: s.Application,
		HasPending:  s.Pending != nil,
	}
}

// routingChanged reports whether the session moved between two snapshots in
// a way that changes how a message is routed.
func routingChanged(a, b model.ClassifyInput) bool {
	return a.Stage != b.Stage || a.HasPending != b.HasPending || a.AwaitingField() != b.AwaitingField()
}

// apply runs the turn against s, which the caller loaded while holding the
// session. A conflict error means s went stale before it could be saved.
func (e *Engine) apply(ctx context.Context, s *model.Session, text string, cls model.Classification, report *model.BureauReport) (*model.Response, error) {
	now := e.now()
	t := &turn{
		ctx:       ctx,
		s:         s,
		text:      text,
		res:       cls.Result,
		violation: cls.StageViolation,
		report:    report,
		now:       now,
		resp:      &model.Response{SessionID: s.ID},
	}
	from := s.Stage
	if cls.Result.Intent != model.IntentAutoContinue {
		s.Messages = append(s.Messages, model.Message{Role: model.RoleUser, Text: text, At: now})
	}

	e.dispatch(t)

	t.resp.Stage = s.Stage
	t.resp.Intent = cls.Result.Intent
	t.resp.Source = cls.Source
	t.resp.Application = s.Application.Clone()
	s.Messages = append(s.Messages, model.Message{Role: model.RoleAssistant, Text: t.resp.Text, At: now})
	s.UpdatedAt = now

	if err := e.repo.Save(ctx, s); err != nil {
		return nil, err
	}

	e.recorder.RecordTransition(ctx, string(from), string(s.Stage))
	logx.Info().
		Str("session_id", s.ID).
		Str("stage", string(from)).
		Str("next_stage", string(s.Stage)).
		Str("intent", string(cls.Result.Intent)).
		Str("source", string(cls.Source)).
		Str("fallback_reason", cls.FallbackReason).
		Bool("stage_violation", cls.StageViolation).
		Float64("confidence", cls.Result.Confidence).
		Msg("Turn handled")
	return t.resp, nil
}

func (e *Engine) failed(s *model.Session, err error) *model.Response {
	logx.Error().Err(err).Str("session_id", s.ID).Str("stage", string(s.Stage)).Msg("Turn failed on configuration")
	return &model.Response{
		SessionID:   s.ID,
		Text:        genericFailureText,
		Stage:       s.Stage,
		Application: s.Application.Clone(),
		Failed:      true,
	}
}

// needsReport tells whether this turn will run verification and so needs a
// bureau report fetched before the session lock is taken.
func needsReport(s *model.Session, i model.Intent) bool {
	if s.Stage != model.StageVerification || s.Pending != nil || s.Application.Escalated || !s.Application.Complete() {
		return false
	}
	switch i {
	case model.IntentFactual, model.IntentObjection, model.IntentHypothetical, model.IntentModify, model.IntentReject:
		return false
	}
	return true
}
