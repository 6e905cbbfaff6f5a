package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
)

// MemorySessionRepository is an in-process store for single-instance
// deployments and tests. Stored sessions are copies; callers never share
// state with the store.
type MemorySessionRepository struct {
	mu    sync.Mutex
	items *cache.Cache
	ttl   time.Duration
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	exp := cache.NoExpiration
	if ttl > 0 {
		exp = ttl
	}
	return &MemorySessionRepository{items: cache.New(exp, 10*time.Minute), ttl: exp}
}

func (r *MemorySessionRepository) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.items.Add(s.ID, s.Clone(), r.ttl); err != nil {
		return errx.NewKind(errx.KindConflict, err, errx.SessionConflictMessage)
	}
	return nil
}

func (r *MemorySessionRepository) Load(_ context.Context, id string) (*model.Session, error) {
	v, ok := r.items.Get(id)
	if !ok {
		return nil, errx.NewKind(errx.KindNotFound, fmt.Errorf("session %s", id), errx.SessionNotFoundMessage)
	}
	return v.(*model.Session).Clone(), nil
}

func (r *MemorySessionRepository) Save(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.items.Get(s.ID)
	if !ok {
		return errx.NewKind(errx.KindNotFound, fmt.Errorf("session %s", s.ID), errx.SessionNotFoundMessage)
	}
	if stored := v.(*model.Session); stored.Version != s.Version {
		err := fmt.Errorf("session %s at version %d, write based on %d: %w", s.ID, stored.Version, s.Version, errx.ErrVersionConflict)
		return errx.NewKind(errx.KindConflict, err, errx.SessionConflictMessage)
	}

	next := s.Clone()
	next.Version++
	r.items.Set(s.ID, next, r.ttl)
	s.Version = next.Version
	return nil
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
