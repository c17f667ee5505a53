package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/campusauth/jwt"
	"github.com/MrEthical07/campusauth/session"
)

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSessionID
	IssueFailureSecret
	IssueFailureSaveSession
	IssueFailureIssueAccess
	IssueFailureIssueRefresh
)

// IssueSubject is the identity a new token pair is bound to.
type IssueSubject struct {
	UserID      string
	Email       string
	DisplayName string
	Role        string
}

// IssueResult carries the minted pair or failure metadata.
type IssueResult struct {
	Failure          IssueFailureKind
	Err              error
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type IssueSessionStore interface {
	Save(ctx context.Context, sess *session.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// IssueDeps captures token issuance dependencies.
type IssueDeps struct {
	Now               func() time.Time
	RefreshTTL        time.Duration
	NewSessionID      func() (string, error)
	NewRefreshSecret  func() ([32]byte, error)
	HashRefreshSecret func([32]byte) [32]byte
	EncodeRefreshID   func([32]byte) string
	CreateAccess      func(jwt.Principal) (string, time.Time, error)
	CreateRefresh     func(jwt.Principal, string, time.Time) (string, error)
	SessionStore      IssueSessionStore
}

// RunIssue records a session and mints its access and refresh tokens. The
// caller validates the subject first.
func RunIssue(ctx context.Context, subject IssueSubject, deps IssueDeps) IssueResult {
	sessionID, err := deps.NewSessionID()
	if err != nil {
		return IssueResult{Failure: IssueFailureSessionID, Err: err}
	}

	secret, err := deps.NewRefreshSecret()
	if err != nil {
		return IssueResult{Failure: IssueFailureSecret, Err: err, SessionID: sessionID}
	}

	now := deps.Now()
	refreshExpiresAt := now.Add(deps.RefreshTTL)

	sess := &session.Session{
		SessionID:   sessionID,
		UserID:      subject.UserID,
		Email:       subject.Email,
		DisplayName: subject.DisplayName,
		Role:        subject.Role,
		RefreshHash: deps.HashRefreshSecret(secret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   refreshExpiresAt.Unix(),
	}
	if err := deps.SessionStore.Save(ctx, sess); err != nil {
		return IssueResult{Failure: IssueFailureSaveSession, Err: err, SessionID: sessionID}
	}

	principal := jwt.Principal{
		UserID:    subject.UserID,
		Email:     subject.Email,
		Name:      subject.DisplayName,
		Role:      subject.Role,
		SessionID: sessionID,
	}

	access, accessExpiresAt, err := deps.CreateAccess(principal)
	if err != nil {
		_ = deps.SessionStore.Delete(ctx, sessionID)
		return IssueResult{Failure: IssueFailureIssueAccess, Err: err, SessionID: sessionID}
	}

	refresh, err := deps.CreateRefresh(principal, deps.EncodeRefreshID(secret), refreshExpiresAt)
	if err != nil {
		_ = deps.SessionStore.Delete(ctx, sessionID)
		return IssueResult{Failure: IssueFailureIssueRefresh, Err: err, SessionID: sessionID}
	}

	return IssueResult{
		SessionID:        sessionID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}
}
