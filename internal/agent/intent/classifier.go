package intent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/loan-orchestrator-poc/server/internal/agent/extract"
	"github.com/loan-orchestrator-poc/server/internal/agent/graph"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
	"github.com/loan-orchestrator-poc/server/internal/observability"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

// Options configures a Classifier. Runner may be nil, in which case every
// message goes through the fallback matcher.
type Options struct {
	Runner    graph.Runner
	Config    model.NLUModelConfig
	Extractor *extract.Extractor
	Recorder  *observability.Recorder
}

// Classifier turns a message into a tagged Classification. It tries the
// language model first and falls back to the Matcher on any failure.
type Classifier struct {
	runner   graph.Runner
	limiter  *rate.Limiter
	cfg      model.NLUModelConfig
	ex       *extract.Extractor
	matcher  *Matcher
	recorder *observability.Recorder
}

func NewClassifier(opts Options) *Classifier {
	ex := opts.Extractor
	if ex == nil {
		ex = extract.New(extract.DefaultBounds())
	}
	return &Classifier{
		runner:   opts.Runner,
		limiter:  newLimiter(opts.Config.RatePerMinute),
		cfg:      opts.Config,
		ex:       ex,
		matcher:  NewMatcher(ex),
		recorder: opts.Recorder,
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Ready returns a fatal configuration error when the language model is
// required but was never configured.
func (c *Classifier) Ready() error {
	if c.cfg.Required && c.runner == nil {
		return errx.Fatal(errors.New("language model is required but not configured"), errx.ConfigErrorMessage)
	}
	return nil
}

// Classify never fails: whatever happens on the model path, the caller gets
// a well-formed result with confidence in [0,1].
func (c *Classifier) Classify(ctx context.Context, in model.ClassifyInput) model.Classification {
	if strings.TrimSpace(in.Text) == model.ContinuationToken {
		cls := model.Classification{
			Result: model.IntentResult{
				Intent:        model.IntentAutoContinue,
				TargetHandler: model.HandlerForStage(in.Stage),
				Confidence:    1,
				Reasoning:     "continuation token",
			},
			Source: model.SourceReserved,
		}
		c.record(ctx, cls)
		return cls
	}

	if c.runner == nil {
		return c.fallback(ctx, in, model.FallbackNotConfigured, 0, 0)
	}

	var (
		reason   string
		attempts int
		cost     float64
	)
	for attempt := 0; attempt <= c.cfg.Retries(); attempt++ {
		if attempt > 0 && !sleep(ctx, c.cfg.RetryBackoff) {
			break
		}
		if !c.limiter.Allow() {
			reason = model.FallbackRateLimited
			break
		}
		attempts++

		out, timedOut, err := c.invoke(ctx, in)
		cost += out.CostUSD
		switch {
		case err == nil && out.SchemaError == "":
			res := c.sanitize(in, out.Result)
			cls := model.Classification{
				Result:         res,
				Source:         model.SourceLLM,
				Attempts:       attempts,
				CostUSD:        cost,
				StageViolation: !ValidFor(in.Stage, res.TargetHandler),
			}
			if cls.StageViolation {
				logx.Warn().
					Err(errx.StageViolation(fmt.Errorf("%s from %s", res.TargetHandler, in.Stage), errx.StageViolationMessage)).
					Str("session_id", in.SessionID).
					Str("intent", string(res.Intent)).
					Msg("NLU routed outside the current stage")
			}
			c.record(ctx, cls)
			return cls
		case err == nil:
			logx.Warn().Str("session_id", in.SessionID).Str("problem", out.SchemaError).Msg("NLU reply rejected by schema")
			return c.fallback(ctx, in, model.FallbackSchema, attempts, cost)
		case timedOut:
			logx.Warn().Str("session_id", in.SessionID).Dur("timeout", c.cfg.Timeout).Msg("NLU call timed out")
			return c.fallback(ctx, in, model.FallbackTimeout, attempts, cost)
		default:
			logx.Warn().Err(errx.Transient(err, errx.NLUErrorMessage)).Str("session_id", in.SessionID).Int("attempt", attempts).Msg("NLU call failed")
			reason = model.FallbackTransport
		}
		if ctx.Err() != nil {
			break
		}
	}
	if reason == "" {
		reason = model.FallbackTransport
	}
	return c.fallback(ctx, in, reason, attempts, cost)
}

func (c *Classifier) invoke(ctx context.Context, in model.ClassifyInput) (model.ClassifyOutput, bool, error) {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := c.runner.Invoke(callCtx, in)
	timedOut := err != nil && (errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded))

	outcome := "ok"
	switch {
	case timedOut:
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case out.SchemaError != "":
		outcome = "schema_violation"
	}
	c.recorder.RecordLLMCall(ctx, time.Since(start), outcome)
	return out, timedOut, err
}

func (c *Classifier) fallback(ctx context.Context, in model.ClassifyInput, reason string, attempts int, cost float64) model.Classification {
	res := c.matcher.Match(in)
	logx.Debug().
		Str("session_id", in.SessionID).
		Str("stage", string(in.Stage)).
		Str("intent", string(res.Intent)).
		Str("fallback_reason", reason).
		Msg("classified by fallback matcher")

	cls := model.Classification{
		Result:         res,
		Source:         model.SourceFallback,
		FallbackReason: reason,
		Attempts:       attempts,
		CostUSD:        cost,
	}
	c.record(ctx, cls)
	return cls
}

// sanitize enforces the invariants the engine relies on regardless of what the model said.
func (c *Classifier) sanitize(in model.ClassifyInput, res model.IntentResult) model.IntentResult {
	if !res.Intent.Valid() || res.Intent == model.IntentAutoContinue {
		res.Intent = model.IntentUnknown
	}
	if math.IsNaN(res.Confidence) {
		res.Confidence = 0
	}
	res.Confidence = math.Max(0, math.Min(1, res.Confidence))
	// an unknown handler is routed; a known one outside the stage is kept and flagged by the caller
	if !res.TargetHandler.Valid() {
		res.TargetHandler = Route(in.Stage, res.Intent, in.HasPending)
	}

	local := c.ex.Extract(in.Text, in.AwaitingField())
	res.Extracted = fillAbsent(res.Extracted, local)
	return res
}

// fillAbsent copies fields the model did not mention from the deterministic extraction.
func fillAbsent(dst, src model.ExtractedData) model.ExtractedData {
	if dst.LoanAmount.IsAbsent() {
		dst.LoanAmount = src.LoanAmount
	}
	if dst.MonthlySalary.IsAbsent() {
		dst.MonthlySalary = src.MonthlySalary
	}
	if dst.EmploymentStatus.IsAbsent() {
		dst.EmploymentStatus = src.EmploymentStatus
	}
	if dst.City.IsAbsent() {
		dst.City = src.City
	}
	if dst.TenureMonths.IsAbsent() {
		dst.TenureMonths = src.TenureMonths
	}
	if dst.EMI.IsAbsent() {
		dst.EMI = src.EMI
	}
	if dst.Objection == "" {
		dst.Objection = src.Objection
	}
	return dst
}

func (c *Classifier) record(ctx context.Context, cls model.Classification) {
	c.recorder.RecordClassification(ctx, string(cls.Source), string(cls.Result.Intent), cls.FallbackReason)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
