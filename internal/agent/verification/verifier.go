package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

const (
	defaultTimeout = 3 * time.Second
	reportTTL      = 10 * time.Minute
	sourceFallback = "heuristic"
)

// heuristic scores used when the bureau cannot be reached
var fallbackScores = map[model.EmploymentStatus]int{
	model.EmploymentSalaried:     700,
	model.EmploymentContract:     680,
	model.EmploymentSelfEmployed: 670,
	model.EmploymentUnemployed:   600,
}

// Verifier runs the credit/KYC lookup with a bounded timeout. Bureau failures
// degrade to a conservative heuristic report; they never reach the customer.
type Verifier struct {
	bureau  model.CreditBureau
	timeout time.Duration
	reports *cache.Cache
}

func NewVerifier(bureau model.CreditBureau, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Verifier{
		bureau:  bureau,
		timeout: timeout,
		reports: cache.New(reportTTL, 2*reportTTL),
	}
}

// RequestFrom builds the bureau request for a complete application.
func RequestFrom(sessionID string, app model.LoanApplication) (model.BureauRequest, bool) {
	if !app.Complete() {
		return model.BureauRequest{}, false
	}
	return model.BureauRequest{
		SessionID:        sessionID,
		EmploymentStatus: *app.EmploymentStatus,
		City:             *app.City,
		MonthlySalary:    *app.MonthlySalary,
		LoanAmount:       *app.LoanAmount,
	}, true
}

// Verify returns a report for req. The only error is a missing bureau.
func (v *Verifier) Verify(ctx context.Context, req model.BureauRequest) (model.BureauReport, error) {
	if v == nil || v.bureau == nil {
		return model.BureauReport{}, errx.Fatal(errors.New("credit bureau not configured"), errx.ConfigErrorMessage)
	}

	key := cacheKey(req)
	if r, ok := v.reports.Get(key); ok {
		return r.(model.BureauReport), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	report, err := v.bureau.Lookup(callCtx, req)
	if err != nil {
		logx.Warn().Err(errx.Transient(err, errx.BureauErrorMessage)).Str("session_id", req.SessionID).Msg("Bureau lookup failed, using heuristic report")
		return Heuristic(req), nil
	}
	v.reports.SetDefault(key, report)
	return report, nil
}

// Heuristic is the report used when the bureau is unavailable.
func Heuristic(req model.BureauRequest) model.BureauReport {
	score, ok := fallbackScores[req.EmploymentStatus]
	if !ok {
		score = 600
	}
	return model.BureauReport{CreditScore: score, KYCVerified: true, Source: sourceFallback}
}

func cacheKey(req model.BureauRequest) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", req.SessionID, req.EmploymentStatus, req.City, req.MonthlySalary, req.LoanAmount)
}
