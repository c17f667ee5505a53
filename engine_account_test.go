package campusauth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegisterDefaults(t *testing.T) {
	te := newTestEngine(t, testConfig())

	id, err := te.Register(context.Background(), RegisterRequest{Email: "Grace@Campus.edu", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id.Role != RoleStudent {
		t.Fatalf("expected default role student, got %q", id.Role)
	}
	if id.DisplayName != "grace" || id.Email != "grace@campus.edu" {
		t.Fatalf("unexpected identity %+v", id)
	}

	stored, err := te.creds.GetUserByID(context.Background(), id.ID)
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}
	if !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %q", stored.PasswordHash)
	}
}

func TestRegisterValidation(t *testing.T) {
	te := newTestEngine(t, testConfig())

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"bad email", RegisterRequest{Email: "nope", Password: "secret1"}, ErrAccountInvalid},
		{"bad role", RegisterRequest{Email: "a@b.co", Password: "secret1", Role: "dean"}, ErrRoleInvalid},
		{"short password", RegisterRequest{Email: "a@b.co", Password: "12345"}, ErrPasswordPolicy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := te.Register(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.register(t, "a@b.co", "secret1", "")

	if _, err := te.Register(context.Background(), RegisterRequest{Email: "A@b.co", Password: "secret2"}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricAccountCreationDuplicate]; got != 1 {
		t.Fatalf("expected duplicate metric 1, got %d", got)
	}
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	te := newTestEngine(t, testConfig())
	want := te.register(t, "prof@campus.edu", "secret1", RoleFaculty)

	pair, err := te.Login(context.Background(), "prof@campus.edu", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	res, err := te.Verify(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Identity != want {
		t.Fatalf("identity mismatch: got %+v want %+v", res.Identity, want)
	}
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.register(t, "ada@campus.edu", "secret1", "")

	_, wrongPass := te.Login(context.Background(), "ada@campus.edu", "nope-nope")
	_, unknown := te.Login(context.Background(), "ghost@campus.edu", "secret1")

	if !errors.Is(wrongPass, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", wrongPass, unknown)
	}
	if wrongPass.Error() != unknown.Error() {
		t.Fatalf("error text must not reveal account existence: %q vs %q", wrongPass, unknown)
	}
}

func TestLoginRateLimitedAfterFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 3
	te := newTestEngine(t, cfg)
	te.register(t, "ada@campus.edu", "secret1", "")

	ctx := WithClientIP(context.Background(), "10.1.1.1")
	for i := 0; i < 3; i++ {
		if _, err := te.Login(ctx, "ada@campus.edu", "wrong-pass"); err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}
	if _, err := te.Login(ctx, "ada@campus.edu", "secret1"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
}

func TestLoginRateLimiterDownFailsOpen(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.register(t, "ada@campus.edu", "secret1", "")
	te.mr.Close()

	// Redis also backs sessions, so issuance fails, but not as a rate limit.
	_, err := te.Login(context.Background(), "ada@campus.edu", "secret1")
	if errors.Is(err, ErrLoginRateLimited) {
		t.Fatal("limiter outage must not be reported as rate limiting")
	}
	if !errors.Is(err, ErrSessionCreationFailed) {
		t.Fatalf("expected ErrSessionCreationFailed, got %v", err)
	}
}

func TestMeReflectsStore(t *testing.T) {
	te := newTestEngine(t, testConfig())
	id := te.register(t, "ada@campus.edu", "secret1", "")

	got, err := te.Me(context.Background(), id.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if got != id {
		t.Fatalf("me mismatch: got %+v want %+v", got, id)
	}

	if _, err := te.Me(context.Background(), "u-missing"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked for deleted account, got %v", err)
	}
}

func TestListUsersFiltersByRole(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.register(t, "s1@campus.edu", "secret1", RoleStudent)
	te.register(t, "s2@campus.edu", "secret1", RoleStudent)
	te.register(t, "f1@campus.edu", "secret1", RoleFaculty)

	students, err := te.ListUsers(context.Background(), RoleStudent)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(students))
	}
	for _, s := range students {
		if s.Role != RoleStudent {
			t.Fatalf("unexpected role in result: %+v", s)
		}
	}

	all, err := te.ListUsers(context.Background(), "")
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 users, got %d (%v)", len(all), err)
	}

	if _, err := te.ListUsers(context.Background(), "dean"); !errors.Is(err, ErrRoleInvalid) {
		t.Fatalf("expected ErrRoleInvalid, got %v", err)
	}
}

func TestClientIPContext(t *testing.T) {
	base := context.Background()
	if got := ClientIP(base); got != "" {
		t.Fatalf("expected empty IP, got %q", got)
	}
	if WithClientIP(base, "") != base {
		t.Fatal("empty IP must not wrap the context")
	}
	if got := ClientIP(WithClientIP(base, "192.0.2.7")); got != "192.0.2.7" {
		t.Fatalf("got %q", got)
	}
}
