// Package session keeps the operator's belief about who is logged in.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"stockdesk/src/storage"

	"github.com/sirupsen/logrus"
)

// Durable storage keys.
const (
	UserIDKey = "userId"
	RoleKey   = "userRole"
)

const storageTimeout = 2 * time.Second

type Role string

const (
	RoleNone  Role = ""
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// ParseRole normalizes the role names the backend has used over time.
func ParseRole(value string) Role {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ROLE_ADMIN", "ADMIN":
		return RoleAdmin
	case "ROLE_USER", "USER":
		return RoleUser
	default:
		return RoleNone
	}
}

// Session is an immutable snapshot of the store.
type Session struct {
	Authenticated bool   `json:"authenticated"`
	Role          Role   `json:"role"`
	UserID        string `json:"userId,omitempty"`
}

// IsAdmin only holds for an authenticated session.
func (s Session) IsAdmin() bool {
	return s.Authenticated && s.Role == RoleAdmin
}

// Store is the single record of the session shared by every page.
type Store struct {
	mutex       sync.Mutex
	state       Session
	storage     storage.Storage
	logger      *logrus.Logger
	subscribers map[int]func(Session)
	nextID      int
}

func NewStore(s storage.Storage, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		storage:     s,
		logger:      logger,
		subscribers: make(map[int]func(Session)),
	}
}

// Hydrate loads the session persisted by a previous run. Any read failure
// leaves the store logged out.
func (s *Store) Hydrate(ctx context.Context) Session {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	next := Session{}
	userID, err := s.storage.Get(ctx, UserIDKey)
	switch {
	case err == nil && userID != "":
		next.Authenticated = true
		next.UserID = userID
		role, err := s.storage.Get(ctx, RoleKey)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.WithError(err).Warn("could not read stored role")
		}
		next.Role = ParseRole(role)
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		s.logger.WithError(err).Warn("could not read stored session, starting logged out")
	}

	return s.apply(func(Session) Session { return next }, nil)
}

func (s *Store) Snapshot() Session {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Subscribe registers fn for every change; the returned func unregisters it.
func (s *Store) Subscribe(fn func(Session)) func() {
	s.mutex.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mutex.Unlock()

	return func() {
		s.mutex.Lock()
		delete(s.subscribers, id)
		s.mutex.Unlock()
	}
}

func (s *Store) SetAuthenticated(authenticated bool) Session {
	return s.apply(func(cur Session) Session {
		cur.Authenticated = authenticated
		if !authenticated {
			cur.Role = RoleNone
			cur.UserID = ""
		}
		return cur
	}, s.persist)
}

func (s *Store) SetRole(role Role) Session {
	return s.apply(func(cur Session) Session {
		cur.Role = role
		return cur
	}, s.persist)
}

func (s *Store) SetUserID(userID string) Session {
	return s.apply(func(cur Session) Session {
		cur.UserID = userID
		return cur
	}, s.persist)
}

// Login records a server-confirmed identity as one transition.
func (s *Store) Login(userID string, role Role) Session {
	return s.apply(func(Session) Session {
		return Session{Authenticated: true, Role: role, UserID: userID}
	}, s.persist)
}

// Logout clears memory and storage. Calling it again changes nothing.
func (s *Store) Logout() Session {
	return s.apply(func(Session) Session { return Session{} }, s.persist)
}

// Replace installs next only if the store still holds expected, so a result
// computed from an older snapshot cannot undo a newer transition.
func (s *Store) Replace(expected, next Session) (Session, bool) {
	applied := false
	state := s.apply(func(cur Session) Session {
		if cur != expected {
			return cur
		}
		applied = true
		return next
	}, func(state Session) {
		if applied {
			s.persist(state)
		}
	})
	return state, applied
}

// apply runs one transition under the lock, mirrors it to storage, and
// notifies subscribers once the lock is released.
func (s *Store) apply(transition func(Session) Session, persist func(Session)) Session {
	s.mutex.Lock()
	prev := s.state
	next := transition(prev)
	s.state = next
	if persist != nil {
		persist(next)
	}
	subscribers := make([]func(Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mutex.Unlock()

	if prev != next {
		for _, fn := range subscribers {
			fn(next)
		}
	}
	return next
}

// persist mirrors state to storage. Failures are logged; memory stays authoritative.
func (s *Store) persist(state Session) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	log := s.logger.WithField("component", "session")
	if !state.Authenticated {
		if err := s.storage.Delete(ctx, UserIDKey, RoleKey); err != nil {
			log.WithError(err).Warn("could not clear stored session")
		}
		return
	}

	if state.UserID != "" {
		if err := s.storage.Set(ctx, UserIDKey, state.UserID, 0); err != nil {
			log.WithError(err).Warn("could not store user id")
		}
	} else if err := s.storage.Delete(ctx, UserIDKey); err != nil {
		log.WithError(err).Warn("could not clear user id")
	}

	if state.Role != RoleNone {
		if err := s.storage.Set(ctx, RoleKey, string(state.Role), 0); err != nil {
			log.WithError(err).Warn("could not store role")
		}
	} else if err := s.storage.Delete(ctx, RoleKey); err != nil {
		log.WithError(err).Warn("could not clear role")
	}
}
