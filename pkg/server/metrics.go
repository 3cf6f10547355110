package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime TCP connections accepted
	ActiveConnections atomic.Int64 // current active connections
	FailedAuths       atomic.Int64 // failed authentication attempts
	SuccessfulAuths   atomic.Int64 // successful authentication attempts
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Chat counters
	RoomMessagesSent    atomic.Int64 // room broadcasts relayed
	PrivateMessagesSent atomic.Int64 // private messages relayed
	UnreadReplayed      atomic.Int64 // unread messages replayed on reconnect

	// Room counters
	RoomsCreated atomic.Int64 // rooms created during this run

	// Moderation counters
	KickCount   atomic.Int64 // users kicked
	BanCount    atomic.Int64 // users banned
	GrantCount  atomic.Int64 // moderator grants
	RevokeCount atomic.Int64 // moderator revocations

	// File counters
	FilesStored  atomic.Int64 // files accepted via SEND_FILE
	FilesFetched atomic.Int64 // files served via GET_FILE
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	RoomMessagesSent    int64 `json:"room_messages_sent"`
	PrivateMessagesSent int64 `json:"private_messages_sent"`
	UnreadReplayed      int64 `json:"unread_replayed"`

	RoomsCreated int64 `json:"rooms_created"`

	KickCount   int64 `json:"kick_count"`
	BanCount    int64 `json:"ban_count"`
	GrantCount  int64 `json:"grant_count"`
	RevokeCount int64 `json:"revoke_count"`

	FilesStored  int64 `json:"files_stored"`
	FilesFetched int64 `json:"files_fetched"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:              uptime.Truncate(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		SuccessfulAuths:     m.SuccessfulAuths.Load(),
		FailedAuths:         m.FailedAuths.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		RoomMessagesSent:    m.RoomMessagesSent.Load(),
		PrivateMessagesSent: m.PrivateMessagesSent.Load(),
		UnreadReplayed:      m.UnreadReplayed.Load(),
		RoomsCreated:        m.RoomsCreated.Load(),
		KickCount:           m.KickCount.Load(),
		BanCount:            m.BanCount.Load(),
		GrantCount:          m.GrantCount.Load(),
		RevokeCount:         m.RevokeCount.Load(),
		FilesStored:         m.FilesStored.Load(),
		FilesFetched:        m.FilesFetched.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"room_msgs", s.RoomMessagesSent,
		"private_msgs", s.PrivateMessagesSent,
		"unread_replayed", s.UnreadReplayed,
		"files_stored", s.FilesStored,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
