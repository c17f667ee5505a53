package rate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// window is one family of fixed-window counters sharing a key prefix, a
// budget and a lifetime.
type window struct {
	prefix string
	limit  int64
	ttl    time.Duration
}

func (w window) key(subject string) string { return w.prefix + subject }

// Limiter throttles failed logins per account and per client IP, and refresh
// calls per session, with Redis counters.
type Limiter struct {
	rdb       redis.UniversalClient
	account   window
	ip        window
	refresh   window
	ipOn      bool
	refreshOn bool
}

// New creates a [Limiter] on rdb. prefix namespaces every counter key and
// defaults to "rl".
func New(rdb redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	login := func(tag string) window {
		return window{prefix: prefix + tag, limit: int64(cfg.MaxLoginAttempts), ttl: cfg.LoginCooldownDuration}
	}
	return &Limiter{
		rdb:       rdb,
		account:   login(":l:"),
		ip:        login(":li:"),
		refresh:   window{prefix: prefix + ":r:", limit: int64(cfg.MaxRefreshAttempts), ttl: cfg.RefreshCooldownDuration},
		ipOn:      cfg.EnableIPThrottle,
		refreshOn: cfg.EnableRefreshThrottle,
	}
}

// counter is one concrete key inside a window family.
type counter struct {
	w   window
	key string
}

// loginKeys lists the counters one login attempt touches. Emails are folded
// so case variants share a budget.
func (l *Limiter) loginKeys(email, ip string) []counter {
	keys := []counter{{l.account, l.account.key(strings.ToLower(email))}}
	if l.ipOn && ip != "" {
		keys = append(keys, counter{l.ip, l.ip.key(ip)})
	}
	return keys
}

// CheckLogin reports ErrRateLimited when the account or the IP has spent its
// failed-login budget. It consumes nothing.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	for _, k := range l.loginKeys(email, ip) {
		n, err := l.count(ctx, k.key)
		if err != nil {
			return err
		}
		if n >= k.w.limit {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin records one failed login against the account and the IP.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	for _, k := range l.loginKeys(email, ip) {
		if err := l.hit(ctx, k.w, k.key); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the failed-login counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	keys := l.loginKeys(email, ip)
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.key
	}
	if err := l.rdb.Del(ctx, names...).Err(); err != nil {
		return unavailable("reset login", err)
	}
	return nil
}

// CheckRefresh consumes one unit of the session's refresh budget.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	if !l.refreshOn {
		return nil
	}
	return l.hit(ctx, l.refresh, l.refresh.key(sessionID))
}

// GetLoginAttempts returns the failure counter of an account. An absent key
// reads as zero, so the answer says nothing about whether the account exists.
func (l *Limiter) GetLoginAttempts(ctx context.Context, email string) (int, error) {
	n, err := l.count(ctx, l.account.key(strings.ToLower(email)))
	return int(n), err
}

func (l *Limiter) count(ctx context.Context, key string) (int64, error) {
	n, err := l.rdb.Get(ctx, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, unavailable("read counter", err)
	case n < 0:
		return 0, nil
	}
	return n, nil
}

// hit increments key and returns ErrRateLimited once it passes w.limit. The
// expiry is set only by the hit that opens the window.
func (l *Limiter) hit(ctx context.Context, w window, key string) error {
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return unavailable("increment", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, w.ttl).Err(); err != nil {
			return unavailable("expire", err)
		}
	}
	if n > w.limit {
		return ErrRateLimited
	}
	return nil
}
