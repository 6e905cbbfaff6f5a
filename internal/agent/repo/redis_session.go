package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

// RedisSessionRepository keeps the session document under one key and the
// message history as a list under another. Save is a WATCH/MULTI transaction
// over both keys guarded by the stored version.
type RedisSessionRepository struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisSessionRepository(rdb redis.UniversalClient, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) stateKey(sessionID string) string {
	return fmt.Sprintf("session:%s:state", sessionID)
}

func (r *RedisSessionRepository) messagesKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s:messages", sessionID)
}

func (r *RedisSessionRepository) Create(ctx context.Context, s *model.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		logx.Error().Err(err).Str("session_id", s.ID).Msg("failed to marshal session")
		return fmt.Errorf("marshal session: %w", err)
	}
	key := r.stateKey(s.ID)

	ok, err := r.rdb.SetNX(ctx, key, b, r.ttl).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to create session in redis")
		return errx.WrapRedis(err)
	}
	if !ok {
		return errx.NewKind(errx.KindConflict, fmt.Errorf("session %s already exists", s.ID), errx.SessionConflictMessage)
	}

	if len(s.Messages) > 0 {
		if err := r.pushMessages(ctx, r.rdb, s.ID, s.Messages); err != nil {
			return errx.WrapRedis(err)
		}
	}
	return nil
}

func (r *RedisSessionRepository) Load(ctx context.Context, id string) (*model.Session, error) {
	key := r.stateKey(id)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.NewKind(errx.KindNotFound, err, errx.SessionNotFoundMessage)
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		logx.Error().Err(err).Str("session_id", id).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	msgs, err := r.loadMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Messages = msgs
	return &s, nil
}

func (r *RedisSessionRepository) loadMessages(ctx context.Context, id string) ([]model.Message, error) {
	key := r.messagesKey(id)
	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]model.Message, 0, len(rows))
	for i, row := range rows {
		var m model.Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			logx.Error().Err(err).Str("session_id", id).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *RedisSessionRepository) Save(ctx context.Context, s *model.Session) error {
	stateKey, msgKey := r.stateKey(s.ID), r.messagesKey(s.ID)

	next := s.Clone()
	next.Version++
	b, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, stateKey).Bytes()
		if err != nil {
			return err
		}
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("unmarshal stored session: %w", err)
		}
		if stored.Version != s.Version {
			return fmt.Errorf("session %s at version %d, write based on %d: %w", s.ID, stored.Version, s.Version, errx.ErrVersionConflict)
		}

		n, err := tx.LLen(ctx, msgKey).Result()
		if err != nil {
			return err
		}
		var fresh []model.Message
		if int(n) < len(s.Messages) {
			fresh = s.Messages[n:]
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, stateKey, b, r.ttl)
			return r.pushMessages(ctx, pipe, s.ID, fresh)
		})
		return err
	}

	if err := r.rdb.Watch(ctx, txf, stateKey, msgKey); err != nil {
		if errors.Is(err, redis.Nil) {
			return errx.NewKind(errx.KindNotFound, err, errx.SessionNotFoundMessage)
		}
		logx.Warn().Err(err).Str("session_id", s.ID).Int64("version", s.Version).Msg("failed to save session")
		return errx.WrapRedis(err)
	}
	s.Version = next.Version
	return nil
}

func (r *RedisSessionRepository) pushMessages(ctx context.Context, c redis.Cmdable, id string, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key := r.messagesKey(id)
	vals := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		vals = append(vals, b)
	}
	if err := c.RPush(ctx, key, vals...).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push messages to redis")
		return err
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if err := c.Expire(ctx, key, r.ttl).Err(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return err
		}
	}
	return nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
