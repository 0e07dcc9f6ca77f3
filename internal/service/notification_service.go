package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/events"
)

const maxPendingNotifications = 50

// Notification levels.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Notification is a toast message for the console.
type Notification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NotificationService turns session events into toast messages.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	pending []Notification
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events and returns a function that
// unsubscribes them.
func (n *NotificationService) RegisterHandlers() func() {
	if n.dispatcher == nil {
		return func() {}
	}
	unsubscribers := []func(){
		n.dispatcher.Subscribe(events.EventLoginSucceeded, n.handleLoginSucceeded),
		n.dispatcher.Subscribe(events.EventLoggedOut, n.handleLoggedOut),
		n.dispatcher.Subscribe(events.EventSessionExpired, n.handleSessionExpired),
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

// Drain returns queued notifications oldest first and empties the queue.
func (n *NotificationService) Drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.pending
	n.pending = nil
	return out
}

func (n *NotificationService) handleLoginSucceeded(_ context.Context, event events.Event) error {
	message := "Login successful"
	if payload, ok := event.Payload.(events.LoginSucceededPayload); ok && payload.User != nil && payload.User.FullName != "" {
		message = fmt.Sprintf("Welcome back, %s", payload.User.FullName)
	}
	n.push(event, LevelSuccess, message)
	return nil
}

func (n *NotificationService) handleLoggedOut(_ context.Context, event events.Event) error {
	n.push(event, LevelInfo, "You have been signed out")
	return nil
}

func (n *NotificationService) handleSessionExpired(_ context.Context, event events.Event) error {
	n.push(event, LevelWarning, "Your session has expired, please sign in again")
	return nil
}

func (n *NotificationService) push(event events.Event, level, message string) {
	n.logger.Debug("notification queued", zap.String("event_type", string(event.Type)), zap.String("level", level))

	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, Notification{Level: level, Message: message, At: event.Timestamp})
	if over := len(n.pending) - maxPendingNotifications; over > 0 {
		n.pending = n.pending[over:]
	}
}
