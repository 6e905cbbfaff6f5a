package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
)

func newRedisRepo(t *testing.T, ttl time.Duration) (*RedisSessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSessionRepository(rdb, ttl), mr
}

func newSession(id string) *model.Session {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.Session{
		ID:          id,
		Stage:       model.StageEngagement,
		Application: model.NewLoanApplication(60, 10.5),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func stores(t *testing.T) map[string]model.SessionRepository {
	r, _ := newRedisRepo(t, 0)
	return map[string]model.SessionRepository{
		"redis":  r,
		"memory": NewMemorySessionRepository(0),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := newSession("s1")
			require.NoError(t, store.Create(ctx, s))

			loaded, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, model.StageEngagement, loaded.Stage)
			assert.Empty(t, loaded.Messages)
			assert.Equal(t, int64(0), loaded.Version)

			loaded.Stage = model.StageNeedsAssessment
			loaded.Application.LoanAmount = model.Ptr(int64(500000))
			loaded.Messages = append(loaded.Messages,
				model.Message{Role: model.RoleUser, Text: "5 lakhs", At: s.CreatedAt},
				model.Message{Role: model.RoleAssistant, Text: "What is your salary?", At: s.CreatedAt},
			)
			require.NoError(t, store.Save(ctx, loaded))
			assert.Equal(t, int64(1), loaded.Version)

			again, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, model.StageNeedsAssessment, again.Stage)
			assert.Equal(t, int64(500000), *again.Application.LoanAmount)
			require.Len(t, again.Messages, 2)
			assert.Equal(t, "What is your salary?", again.Messages[1].Text)
			assert.Equal(t, int64(1), again.Version)

			again.Messages = append(again.Messages, model.Message{Role: model.RoleUser, Text: "80k"})
			require.NoError(t, store.Save(ctx, again))
			final, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, final.Messages, 3)
		})
	}
}

func TestSessionStaleSaveConflicts(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Create(ctx, newSession("s1")))

			a, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			b, err := store.Load(ctx, "s1")
			require.NoError(t, err)

			a.Stage = model.StageNeedsAssessment
			require.NoError(t, store.Save(ctx, a))

			b.Stage = model.StageClosure
			err = store.Save(ctx, b)
			require.Error(t, err)
			assert.True(t, errx.IsKind(err, errx.KindConflict))
			assert.True(t, errors.Is(err, errx.ErrVersionConflict))

			got, _ := store.Load(ctx, "s1")
			assert.Equal(t, model.StageNeedsAssessment, got.Stage)
		})
	}
}

func TestSessionNotFoundAndDuplicate(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "missing")
			assert.True(t, errx.IsKind(err, errx.KindNotFound))

			err = store.Save(ctx, newSession("missing"))
			assert.True(t, errx.IsKind(err, errx.KindNotFound))

			require.NoError(t, store.Create(ctx, newSession("dup")))
			err = store.Create(ctx, newSession("dup"))
			assert.True(t, errx.IsKind(err, errx.KindConflict))
		})
	}
}

func TestSessionLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionRepository(0)
	require.NoError(t, store.Create(ctx, newSession("s1")))

	a, _ := store.Load(ctx, "s1")
	a.Application.LoanAmount = model.Ptr(int64(1))

	b, _ := store.Load(ctx, "s1")
	assert.Nil(t, b.Application.LoanAmount)
}

func TestConcurrentSavesOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Create(ctx, newSession("s1")))

			const writers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			snapshots := make([]*model.Session, writers)
			for i := range snapshots {
				s, err := store.Load(ctx, "s1")
				require.NoError(t, err)
				snapshots[i] = s
			}
			for _, s := range snapshots {
				wg.Add(1)
				go func(s *model.Session) {
					defer wg.Done()
					if store.Save(ctx, s) == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}(s)
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisRepo(t, time.Hour)

	s := newSession("s1")
	require.NoError(t, store.Create(ctx, s))
	s.Messages = []model.Message{{Role: model.RoleUser, Text: "hi"}}
	require.NoError(t, store.Save(ctx, s))

	assert.Equal(t, time.Hour, mr.TTL("session:s1:state"))
	assert.Equal(t, time.Hour, mr.TTL("conversation:s1:messages"))
}

func TestRedisLoadErrors(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	store := NewRedisSessionRepository(db, 0)

	mock.ExpectGet("session:s1:state").SetErr(errors.New("connection refused"))
	_, err := store.Load(ctx, "s1")
	assert.True(t, errx.IsKind(err, errx.KindTransientExternal))

	mock.ExpectGet("session:s2:state").RedisNil()
	_, err = store.Load(ctx, "s2")
	assert.True(t, errx.IsKind(err, errx.KindNotFound))

	mock.ExpectGet("session:s3:state").SetVal(`{"id":"s3","stage":"verification","version":3}`)
	mock.ExpectLRange("conversation:s3:messages", 0, -1).SetErr(errors.New("i/o timeout"))
	_, err = store.Load(ctx, "s3")
	assert.True(t, errx.IsKind(err, errx.KindTransientExternal))

	mock.ExpectGet("session:s4:state").SetVal(`not json`)
	_, err = store.Load(ctx, "s4")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPicksStore(t *testing.T) {
	s, err := New(model.ConversationConfig{Store: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemorySessionRepository{}, s)

	_, err = New(model.ConversationConfig{Store: "redis"}, nil)
	assert.True(t, errx.IsFatal(err))

	_, err = New(model.ConversationConfig{Store: "postgres"}, nil)
	assert.True(t, errx.IsFatal(err))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s, err = New(model.ConversationConfig{Store: "REDIS"}, rdb)
	require.NoError(t, err)
	assert.IsType(t, &RedisSessionRepository{}, s)
}
