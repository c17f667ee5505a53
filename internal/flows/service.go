package flows

import "context"

// Deps is every dependency set the flows need. The root engine fills it once
// at build time.
type Deps struct {
	Issue         IssueDeps
	Refresh       RefreshDeps
	Validate      ValidateDeps
	Logout        LogoutDeps
	Login         LoginDeps
	Account       AccountDeps
	Introspection IntrospectionDeps
}

// Service binds Deps to the Run* functions so the engine can call them
// without threading dependencies through every method.
type Service struct {
	d *Deps
}

// New freezes deps into a Service.
func New(deps Deps) Service {
	return Service{d: &deps}
}

// Initialized is false for the zero Service.
func (s Service) Initialized() bool {
	return s.d != nil && s.d.Validate.ParseAccess != nil
}

func (s Service) Issue(ctx context.Context, subject IssueSubject) IssueResult {
	return RunIssue(ctx, subject, s.d.Issue)
}

func (s Service) Refresh(ctx context.Context, token string) RefreshResult {
	return RunRefresh(ctx, token, s.d.Refresh)
}

func (s Service) Validate(ctx context.Context, token string, strict bool) ValidateResult {
	return RunValidate(ctx, token, strict, s.d.Validate)
}

func (s Service) Logout(ctx context.Context, sessionID string) error {
	return RunLogout(ctx, sessionID, s.d.Logout)
}

func (s Service) LogoutByAccessToken(ctx context.Context, token string) (string, error) {
	return RunLogoutByAccessToken(ctx, token, s.d.Logout)
}

func (s Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return RunLogin(ctx, email, password, s.d.Login)
}

func (s Service) CreateAccount(ctx context.Context, req AccountCreateRequest) (*AccountUserRecord, error) {
	return RunCreateAccount(ctx, req, s.d.Account)
}

func (s Service) Health(ctx context.Context) (HealthStatus, error) {
	return RunHealth(ctx, s.d.Introspection)
}
