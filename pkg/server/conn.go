package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/parleychat/parley/pkg/protocol"
)

// connWriter wraps a client connection with a write mutex so that
// frames pushed from other sessions (room broadcasts, private
// messages, kick notifications) never interleave with frames written
// by the connection's own handler goroutine. Pushed frames go through
// an ordered queue drained by a single goroutine, so the order they
// were enqueued in is the order they reach the peer.
type connWriter struct {
	wmu  sync.Mutex // serializes frame writes to conn
	conn net.Conn

	qmu      sync.Mutex
	qcond    *sync.Cond
	queue    [][]byte
	inFlight bool
	closed   bool
}

func newConnWriter(conn net.Conn) *connWriter {
	w := &connWriter{conn: conn}
	w.qcond = sync.NewCond(&w.qmu)
	go w.writeLoop()
	return w
}

// WriteFrame writes one length-prefixed frame under the write lock.
func (w *connWriter) WriteFrame(payload []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return protocol.WriteFrame(w.conn, payload)
}

// WriteText writes a server text response as a single frame.
func (w *connWriter) WriteText(msg string) error {
	return w.WriteFrame([]byte(msg))
}

// Enqueue appends a pushed frame to the outbound queue. It never
// blocks on the peer, so it is safe to call while holding registry
// locks. Frames enqueued after Close are dropped.
func (w *connWriter) Enqueue(msg string) {
	w.qmu.Lock()
	if !w.closed {
		w.queue = append(w.queue, []byte(msg))
		w.qcond.Signal()
	}
	w.qmu.Unlock()
}

// Close stops the queue. Frames already enqueued are still written;
// later Enqueue calls are dropped.
func (w *connWriter) Close() {
	w.qmu.Lock()
	w.closed = true
	w.qcond.Broadcast()
	w.qmu.Unlock()
}

// Flush blocks until every enqueued frame has been written.
func (w *connWriter) Flush() {
	w.qmu.Lock()
	for len(w.queue) > 0 || w.inFlight {
		w.qcond.Wait()
	}
	w.qmu.Unlock()
}

func (w *connWriter) writeLoop() {
	for {
		w.qmu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.qcond.Wait()
		}
		if len(w.queue) == 0 {
			w.qmu.Unlock()
			return
		}
		payload := w.queue[0]
		w.queue = w.queue[1:]
		w.inFlight = true
		w.qmu.Unlock()

		err := w.WriteFrame(payload)

		w.qmu.Lock()
		w.inFlight = false
		if err != nil {
			w.closed = true
			w.queue = nil
		}
		w.qcond.Broadcast()
		w.qmu.Unlock()

		if err != nil {
			slog.Error("push write failed", "err", err)
			return
		}
	}
}

// connHandler tracks the writer for every live session so handlers can
// push frames to sessions other than their own.
type connHandler struct {
	mu      sync.RWMutex
	connMap map[uint32]*connWriter // session handle -> writer
}

func newConnHandler() *connHandler {
	return &connHandler{connMap: make(map[uint32]*connWriter)}
}

// setConn registers a session's writer (for pushing events).
func (ch *connHandler) setConn(handle uint32, w *connWriter) {
	ch.mu.Lock()
	ch.connMap[handle] = w
	ch.mu.Unlock()
}

// removeConn removes a session's writer.
func (ch *connHandler) removeConn(handle uint32) {
	ch.mu.Lock()
	delete(ch.connMap, handle)
	ch.mu.Unlock()
}

// writer returns the writer for a session handle, if still connected.
func (ch *connHandler) writer(handle uint32) (*connWriter, bool) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	w, ok := ch.connMap[handle]
	return w, ok
}

// pushTo delivers a text frame to another session via its outbound
// queue. A slow or dead peer never blocks or fails the session that
// triggered the push.
func (ch *connHandler) pushTo(handle uint32, msg string) {
	if w, ok := ch.writer(handle); ok {
		w.Enqueue(msg)
	}
}

// handleConn handles a single client connection lifecycle: session
// creation, the frame read loop, and the exactly-once teardown cascade
// (room detach, session removal, writer deregistration).
func (s *Server) handleConn(handler *connHandler, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	remoteAddr := conn.RemoteAddr().String()
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("new connection", "remote", remoteAddr)

	handle := s.sessions.Create()

	w := newConnWriter(conn)
	handler.setConn(handle, w)

	defer func() {
		// Teardown cascade on disconnect. Membership survives in the
		// room registry with the handle zeroed; the handle itself is
		// never reused for this user.
		sess, _ := s.sessions.Get(handle)
		s.rooms.Detach(handle)
		handler.removeConn(handle)
		s.sessions.Remove(handle)
		w.Close()
		s.metrics.ActiveConnections.Add(-1)
		s.metrics.TotalDisconnects.Add(1)
		if sess.Authenticated() {
			slog.Info("client disconnected", "user", sess.Username, "session", handle)
		} else {
			slog.Info("client disconnected", "remote", remoteAddr, "session", handle)
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("read error", "session", handle, "err", err)
			return
		}

		req, err := protocol.ParseRequest(frame)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownVerb) {
				_ = w.WriteText(respInvalidCommand)
			} else {
				_ = w.WriteText(respInvalidRequest)
			}
			continue
		}

		if !s.dispatch(handler, handle, w, req) {
			return
		}
	}
}

// dispatch routes one parsed request. Returns false when the
// connection should close (EXIT).
func (s *Server) dispatch(handler *connHandler, handle uint32, w *connWriter, req *protocol.Request) bool {
	sess, ok := s.sessions.Get(handle)
	if !ok {
		return false
	}

	// Unauthenticated sessions may only register or authenticate.
	// Once a session is bound to a user it stays bound for its
	// lifetime; re-registering or re-authenticating would let a new
	// identity inherit the old one's room standing.
	if !sess.Authenticated() {
		switch req.Verb {
		case protocol.VerbRegister:
			s.handleRegister(w, req)
		case protocol.VerbAuthenticate:
			s.handleAuthenticate(handler, handle, w, req)
		case protocol.VerbExit:
			return false
		default:
			_ = w.WriteText(respInvalidCommand)
		}
		return true
	}

	switch req.Verb {
	case protocol.VerbJoin:
		s.handleJoin(handle, sess, w, req)
	case protocol.VerbLeave:
		s.handleLeave(handle, w, req)
	case protocol.VerbSendRoom:
		s.handleSendRoom(handler, handle, w, req)
	case protocol.VerbSendPrivate:
		s.handleSendPrivate(handler, sess, w, req)
	case protocol.VerbList:
		s.handleList(w)
	case protocol.VerbKickUser:
		s.handleKick(handler, handle, w, req)
	case protocol.VerbBanUser:
		s.handleBan(handler, handle, sess, w, req)
	case protocol.VerbGrantModerator:
		s.handleGrantModerator(handler, handle, w, req)
	case protocol.VerbRevokeModerator:
		s.handleRevokeModerator(handler, handle, w, req)
	case protocol.VerbShowProfile:
		s.handleShowProfile(w, req)
	case protocol.VerbUpdateProfile:
		s.handleUpdateProfile(handle, w, req)
	case protocol.VerbSendFile:
		s.handleSendFile(handle, w, req)
	case protocol.VerbGetFile:
		s.handleGetFile(handle, w, req)
	case protocol.VerbExit:
		return false
	default:
		_ = w.WriteText(respInvalidCommand)
	}
	return true
}
