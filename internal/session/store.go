package session

import (
	"sync"

	"github.com/adworks/ad-portal/internal/domain"
)

// Listener observes every committed session change.
type Listener func(domain.AuthSession)

// SyncInput carries a partial update; nil fields are left unchanged.
type SyncInput struct {
	IsAuthenticated *bool
	User            *domain.User
}

// Store holds the AuthSession. It changes only through the transitions below
// and notifies listeners after each one, outside its lock.
type Store struct {
	mu        sync.RWMutex
	state     domain.AuthSession
	nextID    int
	listeners map[int]Listener
}

// NewStore returns a store in the bootstrap state.
func NewStore() *Store {
	return &Store{state: domain.NewAuthSession(), listeners: make(map[int]Listener)}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() domain.AuthSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.state)
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) begin() {
	s.apply(func(st *domain.AuthSession) {
		st.Status = domain.StatusLoading
		st.Error = ""
	})
}

func (s *Store) authenticated(user *domain.User) {
	s.apply(func(st *domain.AuthSession) {
		st.IsAuthenticated = true
		st.User = user
		st.Status = domain.StatusSucceeded
		st.Error = ""
	})
}

func (s *Store) loginFailed(message string) {
	s.apply(func(st *domain.AuthSession) {
		st.IsAuthenticated = false
		st.User = nil
		st.Status = domain.StatusFailed
		st.Error = message
	})
}

// failed records an error without touching who is signed in.
func (s *Store) failed(message string) {
	s.apply(func(st *domain.AuthSession) {
		st.Status = domain.StatusFailed
		st.Error = message
	})
}

func (s *Store) succeeded() {
	s.apply(func(st *domain.AuthSession) {
		st.Status = domain.StatusSucceeded
		st.Error = ""
	})
}

func (s *Store) settleUnauthenticated() {
	s.apply(func(st *domain.AuthSession) {
		st.IsAuthenticated = false
		st.User = nil
		st.Status = domain.StatusSucceeded
		st.Error = ""
	})
}

func (s *Store) expired(message string) {
	s.apply(func(st *domain.AuthSession) {
		*st = domain.NewAuthSession()
		st.Status = domain.StatusFailed
		st.Error = message
	})
}

func (s *Store) reset() {
	s.apply(func(st *domain.AuthSession) {
		*st = domain.NewAuthSession()
	})
}

func (s *Store) sync(in SyncInput) {
	s.apply(func(st *domain.AuthSession) {
		if in.IsAuthenticated != nil {
			st.IsAuthenticated = *in.IsAuthenticated
		}
		if in.User != nil {
			st.User = in.User
		}
	})
}

func (s *Store) apply(mutate func(*domain.AuthSession)) {
	s.mu.Lock()
	mutate(&s.state)
	snapshot := clone(s.state)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func clone(st domain.AuthSession) domain.AuthSession {
	if st.User != nil {
		user := *st.User
		st.User = &user
	}
	return st
}
