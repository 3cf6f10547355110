package datastore

import (
	"context"
	"errors"

	"github.com/parleychat/parley/pkg/model"
)

// ErrUserExists is returned by CreateUser when the username is taken.
// Usernames are never re-registered; the row is immutable once written.
var ErrUserExists = errors.New("datastore: username already registered")

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface for all Parley entities.
// The default implementation is SQLite; MemoryStore backs the tests.
type DataStore interface {
	ConfigProvider

	UserReadProvider
	UserWriteProvider

	BanReadProvider
	BanWriteProvider
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

type ConfigProvider interface {
	Close() error
}

type UserReadProvider interface {
	GetUserByUsername(username string) (*model.User, error)
	ListUsers() ([]model.User, error)
}

type UserWriteProvider interface {
	CreateUser(username, passwordHash string) (*model.User, error)
}

type BanReadProvider interface {
	IsBanned(room, username string) (bool, error)
	ListRoomBans() ([]model.RoomBan, error)
}

type BanWriteProvider interface {
	CreateRoomBan(room, username, bannedBy string) error
	DeleteRoomBan(room, username string) error
}
