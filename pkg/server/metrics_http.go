package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :8889 by default — configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("parley_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("parley_connections_active", "Current active connections.", "gauge",
		m.ActiveConnections.Load())
	write("parley_connections_total", "Lifetime TCP connections accepted.", "counter",
		m.TotalConnections.Load())
	write("parley_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("parley_auth_success_total", "Successful authentication attempts.", "counter",
		m.SuccessfulAuths.Load())
	write("parley_auth_failed_total", "Failed authentication attempts.", "counter",
		m.FailedAuths.Load())

	write("parley_room_messages_total", "Room broadcasts relayed.", "counter",
		m.RoomMessagesSent.Load())
	write("parley_private_messages_total", "Private messages relayed.", "counter",
		m.PrivateMessagesSent.Load())
	write("parley_unread_replayed_total", "Unread messages replayed on reconnect.", "counter",
		m.UnreadReplayed.Load())

	write("parley_rooms_created_total", "Rooms created.", "counter",
		m.RoomsCreated.Load())

	write("parley_kicks_total", "Users kicked.", "counter",
		m.KickCount.Load())
	write("parley_bans_total", "Users banned.", "counter",
		m.BanCount.Load())
	write("parley_grants_total", "Moderator grants.", "counter",
		m.GrantCount.Load())
	write("parley_revokes_total", "Moderator revocations.", "counter",
		m.RevokeCount.Load())

	write("parley_files_stored_total", "Files accepted for storage.", "counter",
		m.FilesStored.Load())
	write("parley_files_fetched_total", "Files served to clients.", "counter",
		m.FilesFetched.Load())
}
