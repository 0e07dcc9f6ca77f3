package domain

import "time"

// SessionStatus tracks the progress of the latest auth action.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusLoading   SessionStatus = "loading"
	StatusSucceeded SessionStatus = "succeeded"
	StatusFailed    SessionStatus = "failed"
)

// AuthSession is the client's view of who is signed in.
type AuthSession struct {
	IsAuthenticated bool          `json:"isAuthenticated"`
	User            *User         `json:"user"`
	Status          SessionStatus `json:"status"`
	Error           string        `json:"error,omitempty"`
}

// NewAuthSession returns the bootstrap state.
func NewAuthSession() AuthSession {
	return AuthSession{Status: StatusIdle}
}

// RefreshToken is a server-side refresh credential bound to one user.
type RefreshToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
