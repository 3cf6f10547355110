package server

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/parleychat/parley/pkg/model"
)

// ErrAlreadyBound is returned by Bind when another live session already
// holds the username.
var ErrAlreadyBound = errors.New("server: username already bound to a live session")

// SessionManager owns all connection sessions. Sessions are keyed by a
// random non-zero handle; authenticated sessions are additionally
// indexed by username for O(1) private-message and moderation lookups.
type SessionManager struct {
	mu         sync.RWMutex
	sessions   map[uint32]*model.Session // handle -> session
	byUsername map[string]uint32         // username -> handle (authenticated only)
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:   make(map[uint32]*model.Session),
		byUsername: make(map[string]uint32),
	}
}

// Create creates a new unauthenticated session and returns its handle.
func (sm *SessionManager) Create() uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Generate random session handle
	var id uint32
	for {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		id = binary.BigEndian.Uint32(b)
		if id != 0 {
			if _, exists := sm.sessions[id]; !exists {
				break
			}
		}
	}

	sm.sessions[id] = &model.Session{ID: id}
	return id
}

// Bind attaches a username to a session, promoting it to
// authenticated. Fails with ErrAlreadyBound if another live session
// already holds the username; the username stays unique across all
// authenticated sessions.
func (sm *SessionManager) Bind(handle uint32, username string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[handle]
	if !ok {
		return errors.New("server: no such session")
	}
	if other, taken := sm.byUsername[username]; taken && other != handle {
		return ErrAlreadyBound
	}
	if s.Username != "" {
		delete(sm.byUsername, s.Username)
	}
	s.Username = username
	sm.byUsername[username] = handle
	return nil
}

// Get returns a snapshot of a session, or false if the handle is dead.
func (sm *SessionManager) Get(handle uint32) (model.Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[handle]
	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

// GetByUsername returns a snapshot of the live session bound to a
// username, or false if the user is not connected.
func (sm *SessionManager) GetByUsername(username string) (model.Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	handle, ok := sm.byUsername[username]
	if !ok {
		return model.Session{}, false
	}
	s, ok := sm.sessions[handle]
	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

// UpdateProfile sets the profile picture and status of a session.
func (sm *SessionManager) UpdateProfile(handle uint32, picture, status string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[handle]; ok {
		s.Picture = picture
		s.Status = status
	}
}

// SetStatus sets only the status tag of a session.
func (sm *SessionManager) SetStatus(handle uint32, status string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[handle]; ok {
		s.Status = status
	}
}

// SetUnread flips a session's unread marker.
func (sm *SessionManager) SetUnread(handle uint32, unread bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[handle]; ok {
		s.HasUnread = unread
	}
}

// Remove destroys a session. Idempotent: removing a dead handle is a
// no-op, so the disconnect teardown may race a kick without harm.
func (sm *SessionManager) Remove(handle uint32) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[handle]; ok {
		if s.Username != "" {
			delete(sm.byUsername, s.Username)
		}
		delete(sm.sessions, handle)
	}
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
