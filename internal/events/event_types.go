package events

import (
	"time"

	"github.com/adworks/ad-portal/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoginSucceeded EventType = "login_succeeded"
	EventLoggedOut      EventType = "logged_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventSessionExpired EventType = "session_expired"
)

// Event represents a session lifecycle change.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with the current time.
func New(eventType EventType, payload interface{}) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload}
}

// LoginSucceededPayload payload.
type LoginSucceededPayload struct {
	User *domain.User `json:"user"`
}

// LoggedOutPayload payload.
type LoggedOutPayload struct {
	RemoteError string `json:"remote_error,omitempty"`
}

// TokenRefreshedPayload payload.
type TokenRefreshedPayload struct {
	Passive     bool         `json:"passive"`
	AccessToken string       `json:"-"`
	User        *domain.User `json:"user,omitempty"`
}

// SessionExpiredPayload payload.
type SessionExpiredPayload struct {
	Redirect string `json:"redirect"`
	Reason   string `json:"reason"`
}
