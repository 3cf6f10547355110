package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parleychat/parley/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling. Its
// transactions are not isolated: Tx hands back a view of the same
// store with no-op Commit/Rollback, which is sufficient for the
// single-writer paths the server exercises in tests.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID int64
	nextBanID  int64

	usersByUsername map[string]*model.User
	bans            map[string]*model.RoomBan // "room\x00username" -> ban
}

var _ DataProviderFactory = (*MemoryStore)(nil)
var _ DataStore = (*MemoryStore)(nil)

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return &MemoryStore{
		now:             func() time.Time { return time.Now().UTC() },
		nextUserID:      1,
		nextBanID:       1,
		usersByUsername: make(map[string]*model.User),
		bans:            make(map[string]*model.RoomBan),
	}
}

func banKey(room, username string) string {
	return room + "\x00" + username
}

// NonTx returns the store itself.
func (s *MemoryStore) NonTx() DataStore {
	return s
}

// Tx returns a non-isolated transaction view of the store.
func (s *MemoryStore) Tx(_ context.Context) (DataStoreTx, error) {
	return &memoryTx{s}, nil
}

type memoryTx struct {
	*MemoryStore
}

func (t *memoryTx) Rollback() error { return nil }
func (t *memoryTx) Commit() error   { return nil }

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateUser inserts a credential record and returns it with the assigned ID.
func (s *MemoryStore) CreateUser(username, passwordHash string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("datastore: create user: empty password hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return nil, ErrUserExists
	}
	u := &model.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	s.nextUserID++
	s.usersByUsername[username] = u

	cp := *u
	return &cp, nil
}

// GetUserByUsername retrieves a user by username, (nil, nil) when absent.
func (s *MemoryStore) GetUserByUsername(username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// ListUsers returns all registered users ordered by ID.
func (s *MemoryStore) ListUsers() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// CreateRoomBan adds a deny-list entry; banning twice is a no-op.
func (s *MemoryStore) CreateRoomBan(room, username, bannedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := banKey(room, username)
	if _, exists := s.bans[key]; exists {
		return nil
	}
	s.bans[key] = &model.RoomBan{
		ID:        s.nextBanID,
		Room:      room,
		Username:  username,
		BannedBy:  bannedBy,
		CreatedAt: s.now(),
	}
	s.nextBanID++
	return nil
}

// DeleteRoomBan removes a deny-list entry; no-op when absent.
func (s *MemoryStore) DeleteRoomBan(room, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bans, banKey(room, username))
	return nil
}

// IsBanned reports whether a username is on a room's deny-list.
func (s *MemoryStore) IsBanned(room, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.bans[banKey(room, username)]
	return ok, nil
}

// ListRoomBans returns every deny-list entry ordered by ID.
func (s *MemoryStore) ListRoomBans() ([]model.RoomBan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bans := make([]model.RoomBan, 0, len(s.bans))
	for _, b := range s.bans {
		bans = append(bans, *b)
	}
	sort.Slice(bans, func(i, j int) bool { return bans[i].ID < bans[j].ID })
	return bans, nil
}
