package rate

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned once a window's budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter read and write failures. Callers fail
	// closed on it.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRedisUnavailable, op, err)
}
