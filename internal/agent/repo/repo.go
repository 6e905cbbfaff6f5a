package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	errx "github.com/loan-orchestrator-poc/server/internal/core/error"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// New picks the session store named by cfg.Store.
func New(cfg model.ConversationConfig, rdb redis.UniversalClient) (model.SessionRepository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "", StoreMemory:
		return NewMemorySessionRepository(cfg.TTL), nil
	case StoreRedis:
		if rdb == nil {
			return nil, errx.Fatal(errors.New("SESSION_STORE=redis but REDIS_URL is not set"), errx.ConfigErrorMessage)
		}
		return NewRedisSessionRepository(rdb, cfg.TTL), nil
	default:
		return nil, errx.Fatal(fmt.Errorf("unknown session store %q", cfg.Store), errx.ConfigErrorMessage)
	}
}
