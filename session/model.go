package session

// Session is the server-side record behind one login.
//
// RefreshHash holds sha256 of the refresh secret currently accepted for the
// session. The secret itself is never stored.
type Session struct {
	SessionID   string
	UserID      string
	Email       string
	DisplayName string
	Role        string
	RefreshHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}
