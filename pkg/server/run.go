package server

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DefaultRoom is created at startup so LIST never returns an empty
// server on first run.
const DefaultRoom = "lobby"

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}
	if s.files == nil {
		return fmt.Errorf("server: missing file store dependency")
	}
	st := s.store
	defer func() { _ = st.NonTx().Close() }()

	// Ensure the default room exists
	if s.rooms.CreateRoom(DefaultRoom) {
		slog.Info("created default room", "room", DefaultRoom)
	}

	// Load rooms from YAML config if provided
	if s.cfg.RoomsFile != "" {
		if err := LoadRoomsFromYAML(s.cfg.RoomsFile, s.rooms); err != nil {
			slog.Error("failed to load rooms config", "err", err)
		}
	}

	// Seed per-room deny-lists from persisted bans
	if err := s.loadPersistedBans(); err != nil {
		return err
	}

	// Start listener
	if err := s.startListener(); err != nil {
		return err
	}

	slog.Info("Parley server running", "addr", s.cfg.ListenAddr)

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// loadPersistedBans reloads every room ban row into the registry
// deny-lists so bans survive restarts.
func (s *Server) loadPersistedBans() error {
	bans, err := s.store.NonTx().ListRoomBans()
	if err != nil {
		return fmt.Errorf("server: load bans: %w", err)
	}
	byRoom := make(map[string][]string)
	for _, b := range bans {
		byRoom[b.Room] = append(byRoom[b.Room], b.Username)
	}
	s.rooms.LoadBans(byRoom)
	if len(bans) > 0 {
		slog.Info("loaded persisted room bans", "count", len(bans))
	}
	return nil
}

// startListener opens the TCP listener and spawns the accept loop.
func (s *Server) startListener() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln

	handler := newConnHandler()
	slog.Info("listening", "addr", s.cfg.ListenAddr)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					slog.Error("accept error", "err", err)
					continue
				}
			}
			go s.handleConn(handler, conn)
		}
	}()

	return nil
}
