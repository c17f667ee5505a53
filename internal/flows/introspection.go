package flows

import (
	"context"
	"time"
)

type IntrospectionSessionStore interface {
	ActiveSessionCount(ctx context.Context) (int, error)
	Ping(ctx context.Context) (time.Duration, error)
}

type IntrospectionDeps struct {
	SessionStore      IntrospectionSessionStore
	EngineNotReadyErr error
}

// HealthStatus is a point-in-time view of the session backend.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
	ActiveSessions int
}

// RunHealth pings Redis and reads the live session counter. The returned
// error is non-nil whenever Redis is unreachable.
func RunHealth(ctx context.Context, deps IntrospectionDeps) (HealthStatus, error) {
	if deps.SessionStore == nil {
		return HealthStatus{}, deps.EngineNotReadyErr
	}

	latency, err := deps.SessionStore.Ping(ctx)
	if err != nil {
		return HealthStatus{RedisLatency: latency}, err
	}

	count, err := deps.SessionStore.ActiveSessionCount(ctx)
	if err != nil {
		return HealthStatus{RedisLatency: latency}, err
	}

	return HealthStatus{
		RedisAvailable: true,
		RedisLatency:   latency,
		ActiveSessions: count,
	}, nil
}
