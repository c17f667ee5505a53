// Command campusauth-loadtest drives the engine's hot paths (stateless
// validation, strict validation and refresh) against Redis and prints
// throughput and latency percentiles for each.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type options struct {
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
	rotate      bool
}

// holder is one simulated client; refresh may replace both of its tokens.
type holder struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func (h *holder) accessToken() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.access
}

type phase struct {
	name string
	op   func(ctx context.Context, h *holder) error
}

type result struct {
	name     string
	wall     time.Duration
	samples  []time.Duration
	failures int
}

func main() {
	var o options
	flag.IntVar(&o.sessions, "sessions", 10000, "number of sessions to issue")
	flag.IntVar(&o.concurrency, "concurrency", 256, "number of concurrent workers")
	flag.IntVar(&o.ops, "ops", 100000, "operations per phase")
	flag.StringVar(&o.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address; empty starts miniredis")
	flag.StringVar(&o.prefix, "prefix", "ca-load", "session key prefix")
	flag.BoolVar(&o.rotate, "rotate", true, "rotate refresh tokens on every refresh")
	flag.Parse()

	if err := run(context.Background(), o); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	if o.sessions <= 0 || o.concurrency <= 0 || o.ops <= 0 {
		return fmt.Errorf("sessions, concurrency and ops must be positive")
	}

	rdb, stop, err := redisClient(o.redisAddr)
	if err != nil {
		return err
	}
	defer stop()

	users, err := store.Open(ctx, ":memory:")
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer users.Close()

	cfg := campusauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("campusauth-loadtest-secret-0123456789")
	cfg.Session.RedisPrefix = o.prefix
	cfg.Security.EnableRefreshRotation = o.rotate
	// Workers refresh the same sessions far faster than any person would.
	cfg.Security.EnableRefreshThrottle = false

	engine, err := campusauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(users).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	holders, err := issue(ctx, engine, o.sessions)
	if err != nil {
		return err
	}

	phases := []phase{
		{"verify", func(ctx context.Context, h *holder) error {
			_, err := engine.Validate(ctx, h.accessToken(), campusauth.ModeJWTOnly)
			return err
		}},
		{"verify-strict", func(ctx context.Context, h *holder) error {
			_, err := engine.Validate(ctx, h.accessToken(), campusauth.ModeStrict)
			return err
		}},
		{"refresh", func(ctx context.Context, h *holder) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			res, err := engine.Refresh(ctx, h.refresh)
			if err != nil {
				return err
			}
			h.access = res.AccessToken
			if res.RefreshToken != "" {
				h.refresh = res.RefreshToken
			}
			return nil
		}},
	}

	fmt.Println("---- results ----")
	for i, p := range phases {
		report(drive(ctx, p, holders, o, int64(i+1)))
	}

	snap := engine.MetricsSnapshot()
	var validated uint64
	for _, n := range snap.Histograms[campusauth.MetricValidateLatency] {
		validated += n
	}
	fmt.Printf("engine: validate_count=%d refresh_success=%d refresh_failure=%d reuse_detected=%d\n",
		validated,
		snap.Counters[campusauth.MetricRefreshSuccess],
		snap.Counters[campusauth.MetricRefreshFailure],
		snap.Counters[campusauth.MetricRefreshReuseDetected])
	return nil
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return rdb, func() { _ = rdb.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return rdb, func() { _ = rdb.Close(); mr.Close() }, nil
}

// issue creates n sessions spread evenly over the campus roles.
func issue(ctx context.Context, engine *campusauth.Engine, n int) ([]*holder, error) {
	fmt.Printf("issuing %d sessions...\n", n)
	start := time.Now()
	roles := campusauth.Roles()
	holders := make([]*holder, n)
	for i := range holders {
		pair, err := engine.Issue(ctx, campusauth.Identity{
			ID:    fmt.Sprintf("user-%d", i),
			Email: fmt.Sprintf("user%d@campus.test", i),
			Role:  roles[i%len(roles)],
		})
		if err != nil {
			return nil, fmt.Errorf("issue session %d: %w", i, err)
		}
		holders[i] = &holder{access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	fmt.Printf("issued in %s\n", time.Since(start).Round(time.Millisecond))
	return holders, nil
}

// drive splits o.ops calls of p.op across o.concurrency workers, each
// picking holders at random and keeping its own latency samples.
func drive(ctx context.Context, p phase, holders []*holder, o options, seed int64) result {
	jobs := make(chan struct{}, o.concurrency)
	type partial struct {
		samples  []time.Duration
		failures int
	}
	parts := make([]partial, o.concurrency)

	var wg sync.WaitGroup
	start := time.Now()
	for w := range parts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed*7919 + int64(w)))
			part := &parts[w]
			for range jobs {
				h := holders[rng.Intn(len(holders))]
				t0 := time.Now()
				if err := p.op(ctx, h); err != nil {
					part.failures++
				}
				part.samples = append(part.samples, time.Since(t0))
			}
		}()
	}
	for i := 0; i < o.ops; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	res := result{name: p.name, wall: time.Since(start), samples: make([]time.Duration, 0, o.ops)}
	for _, part := range parts {
		res.samples = append(res.samples, part.samples...)
		res.failures += part.failures
	}
	slices.Sort(res.samples)
	return res
}

// quantile reads q from sorted samples by nearest rank.
func quantile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(q * float64(len(sorted)-1))
	return sorted[min(max(i, 0), len(sorted)-1)]
}

func report(r result) {
	rate := 0.0
	if r.wall > 0 {
		rate = float64(len(r.samples)) / r.wall.Seconds()
	}
	fmt.Printf("%-14s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		r.name, len(r.samples), r.failures, r.wall.Round(time.Millisecond), rate,
		quantile(r.samples, 0.50).Round(time.Microsecond),
		quantile(r.samples, 0.95).Round(time.Microsecond),
		quantile(r.samples, 0.99).Round(time.Microsecond))
}
