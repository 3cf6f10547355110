// Package server implements the Parley chat server.
package server

import (
	"context"

	"github.com/parleychat/parley/pkg/datastore"
	"github.com/parleychat/parley/pkg/filestore"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string // TCP bind address (e.g. ":8888")
	DBPath      string // SQLite database path
	FileDir     string // directory for uploaded file blobs
	RoomsFile   string // YAML file defining rooms to create on startup
	MetricsAddr string // HTTP bind address for /metrics endpoint (empty = disabled)

	// CLI-only actions (run and exit)
	ExportUsers bool // export all users as YAML and exit
	ExportBans  bool // export all room bans as YAML and exit
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store datastore.DataProviderFactory
	Files *filestore.Store
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:  ":8888",
		MetricsAddr: ":8889",
		DBPath:      "parley.db",
		FileDir:     "file_storage",
	}
}

// Server is the main Parley server.
type Server struct {
	cfg      Config
	sessions *SessionManager
	rooms    *RoomRegistry
	metrics  *Metrics
	store    datastore.DataProviderFactory
	files    *filestore.Store
	listener interface{ Close() error }
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		sessions: NewSessionManager(),
		rooms:    NewRoomRegistry(),
		metrics:  NewMetrics(),
		store:    deps.Store,
		files:    deps.Files,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Rooms returns the room registry.
func (s *Server) Rooms() *RoomRegistry {
	return s.rooms
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
