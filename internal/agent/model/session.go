package model

import (
	"context"
	"time"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// PendingModification is a proposed change waiting for the customer's confirmation.
type PendingModification struct {
	Proposed      LoanApplication       `json:"proposed"`
	ChangedFields []FieldName           `json:"changed_fields"`
	Material      bool                  `json:"material"`
	Preview       *UnderwritingDecision `json:"preview,omitempty"`
	PreviewEMI    int64                 `json:"preview_emi"`
	ReturnStage   Stage                 `json:"return_stage"`
	CreatedAt     time.Time             `json:"created_at"`
}

// Clone returns a deep copy.
func (p *PendingModification) Clone() *PendingModification {
	if p == nil {
		return nil
	}
	out := *p
	out.Proposed = p.Proposed.Clone()
	out.ChangedFields = append([]FieldName(nil), p.ChangedFields...)
	if p.Preview != nil {
		d := p.Preview.Clone()
		out.Preview = &d
	}
	return &out
}

// Session is the unit of state the engine reads, mutates and writes back per turn.
type Session struct {
	ID          string               `json:"id"`
	Stage       Stage                `json:"stage"`
	Messages    []Message            `json:"-"`
	Application LoanApplication      `json:"application"`
	Pending     *PendingModification `json:"pending,omitempty"`
	Closed      bool                 `json:"closed"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	// Version is bumped by every successful save and guards against lost updates.
	Version int64 `json:"version"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.Application = s.Application.Clone()
	out.Pending = s.Pending.Clone()
	return &out
}

// SessionRepository persists sessions. Save is an atomic compare-and-swap on
// Version; a stale write fails with a conflict error.
type SessionRepository interface {
	// Create stores a brand new session.
	Create(ctx context.Context, s *Session) error

	// Load returns the session or a not-found error.
	Load(ctx context.Context, id string) (*Session, error)

	// Save persists s if the stored version still equals s.Version and then increments it.
	Save(ctx context.Context, s *Session) error
}

// BureauRequest carries the minimum applicant data a credit bureau needs.
type BureauRequest struct {
	SessionID        string
	EmploymentStatus EmploymentStatus
	City             string
	MonthlySalary    int64
	LoanAmount       int64
}

// BureauReport is the credit/KYC lookup result.
type BureauReport struct {
	CreditScore int    `json:"credit_score"`
	KYCVerified bool   `json:"kyc_ok"`
	Source      string `json:"source"`
}

// CreditBureau looks up credit score and KYC status.
type CreditBureau interface {
	Lookup(ctx context.Context, req BureauRequest) (BureauReport, error)
}
