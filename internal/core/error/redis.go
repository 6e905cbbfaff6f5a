package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// ErrVersionConflict is returned when an optimistic write loses the race.
var ErrVersionConflict = errors.New("version conflict")

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrVersionConflict) {
		return New(err, http.StatusConflict, RedisErrorMessage)
	}

	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
