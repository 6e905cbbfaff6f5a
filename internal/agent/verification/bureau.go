package verification

import (
	"context"
	"sync"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

// MockBureau stands in for the external credit and KYC provider.
// Every applicant gets DefaultScore unless a per-session override is set.
type MockBureau struct {
	DefaultScore int

	mu      sync.RWMutex
	scores  map[string]int
	kycFail map[string]bool
	err     error
}

func NewMockBureau(defaultScore int) *MockBureau {
	return &MockBureau{
		DefaultScore: defaultScore,
		scores:       map[string]int{},
		kycFail:      map[string]bool{},
	}
}

// SetScore pins the score returned for a session.
func (b *MockBureau) SetScore(sessionID string, score int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scores[sessionID] = score
}

// FailKYC makes KYC fail for a session.
func (b *MockBureau) FailKYC(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kycFail[sessionID] = true
}

// SetError makes every lookup fail with err until cleared with nil.
func (b *MockBureau) SetError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *MockBureau) Lookup(ctx context.Context, req model.BureauRequest) (model.BureauReport, error) {
	if err := ctx.Err(); err != nil {
		return model.BureauReport{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.err != nil {
		return model.BureauReport{}, b.err
	}

	score := b.DefaultScore
	if s, ok := b.scores[req.SessionID]; ok {
		score = s
	}
	return model.BureauReport{
		CreditScore: score,
		KYCVerified: !b.kycFail[req.SessionID],
		Source:      "mock_bureau",
	}, nil
}
