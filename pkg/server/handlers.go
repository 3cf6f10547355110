package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parleychat/parley/pkg/authz"
	"github.com/parleychat/parley/pkg/crypto"
	"github.com/parleychat/parley/pkg/datastore"
	"github.com/parleychat/parley/pkg/filestore"
	"github.com/parleychat/parley/pkg/model"
	"github.com/parleychat/parley/pkg/protocol"
)

// Response strings are part of the wire contract; clients match on
// them verbatim.
const (
	respInvalidCommand = "Invalid command."
	respInvalidRequest = "Invalid request."

	respRegisterOK       = "Registration successful!"
	respRegisterTaken    = "Registration failed. Username already exists."
	respRegisterFailed   = "Registration failed."
	respAuthOK           = "Authentication successful!"
	respAuthFailed       = "Authentication failed. Invalid credentials."
	respAuthAlreadyBound = "Authentication failed. User already logged in."

	respProfileUpdated = "Profile updated successfully!"
	respFileSaved      = "File saved successfully!"
	respFileSaveFailed = "Failed to save file."
	respFileNotFound   = "File not found."

	moderatorStatusTag = "[Moderator]"
)

// handleRegister creates a new credential row. Check-and-insert runs
// inside one transaction so two racing registrations of the same
// username can never both succeed.
func (s *Server) handleRegister(w *connWriter, req *protocol.Request) {
	username := req.Args[0]
	password := string(req.Tail)
	if model.ValidateUsername(username) != nil || password == "" {
		_ = w.WriteText(respInvalidRequest)
		return
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		slog.Error("password hash failed", "err", err)
		_ = w.WriteText(respInvalidRequest)
		return
	}

	tx, err := s.store.Tx(context.Background())
	if err != nil {
		slog.Error("register tx begin failed", "err", err)
		_ = w.WriteText(respRegisterFailed)
		return
	}
	if _, err := tx.CreateUser(username, hash); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, datastore.ErrUserExists) {
			_ = w.WriteText(respRegisterTaken)
			return
		}
		slog.Error("create user failed", "user", username, "err", err)
		_ = w.WriteText(respRegisterFailed)
		return
	}
	if err := tx.Commit(); err != nil {
		slog.Error("register commit failed", "user", username, "err", err)
		_ = w.WriteText(respRegisterFailed)
		return
	}

	slog.Info("user registered", "user", username)
	_ = w.WriteText(respRegisterOK)
}

// handleAuthenticate verifies credentials, binds the username to the
// session, and replays unread room history accumulated while the user
// was offline.
func (s *Server) handleAuthenticate(handler *connHandler, handle uint32, w *connWriter, req *protocol.Request) {
	username := req.Args[0]
	password := string(req.Tail)

	user, err := s.store.NonTx().GetUserByUsername(username)
	if err != nil {
		slog.Error("user lookup failed", "user", username, "err", err)
		_ = w.WriteText(respAuthFailed)
		return
	}
	if user == nil {
		s.metrics.FailedAuths.Add(1)
		_ = w.WriteText(respAuthFailed)
		return
	}
	ok, err := crypto.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		s.metrics.FailedAuths.Add(1)
		_ = w.WriteText(respAuthFailed)
		return
	}

	if err := s.sessions.Bind(handle, username); err != nil {
		s.metrics.FailedAuths.Add(1)
		_ = w.WriteText(respAuthAlreadyBound)
		return
	}

	s.metrics.SuccessfulAuths.Add(1)
	slog.Info("client authenticated", "user", username, "session", handle)
	_ = w.WriteText(respAuthOK)

	// Reattach surviving room memberships and replay unread history:
	// one summary frame naming the rooms, then each message in send
	// order, oldest room entries first. Marking read happens inside
	// UnreadMessages, so a second reconnect replays nothing.
	if s.rooms.Attach(username, handle) {
		s.sessions.SetUnread(handle, true)

		summary := s.rooms.UnreadSummary(handle)
		var b strings.Builder
		b.WriteString("[Notification] You have unread messages in the chat rooms:")
		for _, name := range summary {
			b.WriteString("\n  - ")
			b.WriteString(name)
		}
		_ = w.WriteText(b.String())

		msgs := s.rooms.UnreadMessages(handle)
		for _, msg := range msgs {
			_ = w.WriteText(msg)
		}
		s.metrics.UnreadReplayed.Add(int64(len(msgs)))
		s.sessions.SetUnread(handle, false)
	}
}

func (s *Server) handleJoin(handle uint32, sess model.Session, w *connWriter, req *protocol.Request) {
	roomName := req.Args[0]
	if model.ValidateRoomName(roomName) != nil {
		_ = w.WriteText(respInvalidRequest)
		return
	}

	if s.rooms.CreateRoom(roomName) {
		s.metrics.RoomsCreated.Add(1)
		slog.Info("room created", "room", roomName, "user", sess.Username)
	}
	if err := s.rooms.Join(roomName, handle, sess.Username); err != nil {
		_ = w.WriteText("You are banned from the chat room: " + roomName)
		return
	}
	_ = w.WriteText("Joined chat room: " + roomName)
}

func (s *Server) handleLeave(handle uint32, w *connWriter, req *protocol.Request) {
	roomName := req.Args[0]
	s.rooms.Leave(roomName, handle)
	_ = w.WriteText("Left chat room: " + roomName)
}

func (s *Server) handleSendRoom(handler *connHandler, handle uint32, w *connWriter, req *protocol.Request) {
	roomName := req.Args[0]
	body := string(req.Tail)
	if model.ValidateMessageBody(body) != nil {
		_ = w.WriteText(respInvalidRequest)
		return
	}

	if d := authz.Authorize(authz.ActionBroadcast, s.rooms.Standing(roomName, handle)); !d.Allowed {
		_ = w.WriteText("You are not a member of the chat room: " + roomName)
		return
	}

	// Delivery happens at the serialization point, so every recipient
	// sees broadcasts in history order.
	_, err := s.rooms.Broadcast(roomName, handle, body, handler.pushTo)
	if err != nil {
		// Membership can vanish between the check and the broadcast
		// (concurrent kick); same denial either way.
		_ = w.WriteText("You are not a member of the chat room: " + roomName)
		return
	}
	s.metrics.RoomMessagesSent.Add(1)
}

func (s *Server) handleSendPrivate(handler *connHandler, sess model.Session, w *connWriter, req *protocol.Request) {
	recipient := req.Args[0]
	body := string(req.Tail)
	if model.ValidateMessageBody(body) != nil {
		_ = w.WriteText(respInvalidRequest)
		return
	}

	// Delivery to an offline or unknown recipient is a silent no-op.
	target, ok := s.sessions.GetByUsername(recipient)
	if !ok {
		return
	}
	handler.pushTo(target.ID, fmt.Sprintf("[Private] %s: %s", sess.Username, body))
	s.metrics.PrivateMessagesSent.Add(1)
}

func (s *Server) handleList(w *connWriter) {
	_ = w.WriteText(strings.Join(s.rooms.ListRooms(), "\n"))
}

func (s *Server) handleKick(handler *connHandler, handle uint32, w *connWriter, req *protocol.Request) {
	roomName, target := req.Args[0], req.Args[1]

	if d := authz.Authorize(authz.ActionKick, s.rooms.Standing(roomName, handle)); !d.Allowed {
		_ = w.WriteText("You do not have sufficient privileges to kick users from chat room: " + roomName)
		return
	}

	targetHandle, wasMember := s.rooms.Kick(roomName, target)
	if !wasMember {
		return
	}
	s.metrics.KickCount.Add(1)
	slog.Info("user kicked", "room", roomName, "user", target)
	if targetHandle != 0 {
		handler.pushTo(targetHandle, "You have been kicked from the chat room: "+roomName)
	}
}

func (s *Server) handleBan(handler *connHandler, handle uint32, sess model.Session, w *connWriter, req *protocol.Request) {
	roomName, target := req.Args[0], req.Args[1]

	if d := authz.Authorize(authz.ActionBan, s.rooms.Standing(roomName, handle)); !d.Allowed {
		_ = w.WriteText("You do not have sufficient privileges to ban users from chat room: " + roomName)
		return
	}

	targetHandle, _ := s.rooms.Ban(roomName, target)
	if err := s.store.NonTx().CreateRoomBan(roomName, target, sess.Username); err != nil {
		slog.Error("ban persist failed", "room", roomName, "user", target, "err", err)
	}
	s.metrics.BanCount.Add(1)
	slog.Info("user banned", "room", roomName, "user", target, "by", sess.Username)
	if targetHandle != 0 {
		handler.pushTo(targetHandle, "You have been banned from the chat room: "+roomName)
	}
}

func (s *Server) handleGrantModerator(handler *connHandler, handle uint32, w *connWriter, req *protocol.Request) {
	roomName, target := req.Args[0], req.Args[1]

	if d := authz.Authorize(authz.ActionGrantModerator, s.rooms.Standing(roomName, handle)); !d.Allowed {
		_ = w.WriteText("You do not have sufficient privileges to grant moderator rights in chat room: " + roomName)
		return
	}

	if !s.rooms.GrantModerator(roomName, target) {
		return
	}
	s.metrics.GrantCount.Add(1)
	slog.Info("moderator granted", "room", roomName, "user", target)
	if sess, ok := s.sessions.GetByUsername(target); ok {
		s.sessions.SetStatus(sess.ID, moderatorStatusTag)
		handler.pushTo(sess.ID, "You have been granted moderator rights in the chat room: "+roomName)
	}
}

func (s *Server) handleRevokeModerator(handler *connHandler, handle uint32, w *connWriter, req *protocol.Request) {
	roomName, target := req.Args[0], req.Args[1]

	if d := authz.Authorize(authz.ActionRevokeModerator, s.rooms.Standing(roomName, handle)); !d.Allowed {
		_ = w.WriteText("You do not have sufficient privileges to revoke moderator rights in chat room: " + roomName)
		return
	}

	if !s.rooms.RevokeModerator(roomName, target) {
		return
	}
	s.metrics.RevokeCount.Add(1)
	slog.Info("moderator revoked", "room", roomName, "user", target)
	if sess, ok := s.sessions.GetByUsername(target); ok {
		s.sessions.SetStatus(sess.ID, "")
		handler.pushTo(sess.ID, "Your moderator rights have been revoked in the chat room: "+roomName)
	}
}

func (s *Server) handleShowProfile(w *connWriter, req *protocol.Request) {
	username := req.Args[0]
	sess, ok := s.sessions.GetByUsername(username)
	if !ok {
		return
	}
	profile := fmt.Sprintf("[Profile]\nUsername: %s\nProfile Picture: %s\nStatus Message: %s",
		sess.Username, sess.Picture, sess.Status)
	_ = w.WriteText(profile)
}

func (s *Server) handleUpdateProfile(handle uint32, w *connWriter, req *protocol.Request) {
	picture := req.Args[0]
	status := string(req.Tail)
	s.sessions.UpdateProfile(handle, picture, status)
	_ = w.WriteText(respProfileUpdated)
}

func (s *Server) handleSendFile(handle uint32, w *connWriter, req *protocol.Request) {
	roomName, name := req.Args[0], req.Args[1]

	if d := authz.Authorize(authz.ActionSendFile, s.rooms.Standing(roomName, handle)); !d.Allowed {
		_ = w.WriteText("You are not a member of the chat room: " + roomName)
		return
	}

	if err := s.files.Write(name, req.Tail); err != nil {
		if !errors.Is(err, filestore.ErrInvalidName) {
			slog.Error("file write failed", "name", name, "err", err)
		}
		_ = w.WriteText(respFileSaveFailed)
		return
	}
	s.metrics.FilesStored.Add(1)
	slog.Info("file stored", "room", roomName, "name", name, "bytes", len(req.Tail))
	_ = w.WriteText(respFileSaved)
}

func (s *Server) handleGetFile(handle uint32, w *connWriter, req *protocol.Request) {
	roomName, name := req.Args[0], req.Args[1]

	if d := authz.Authorize(authz.ActionGetFile, s.rooms.Standing(roomName, handle)); !d.Allowed {
		_ = w.WriteText("You are not a member of the chat room: " + roomName)
		return
	}

	data, err := s.files.Read(name)
	if err != nil {
		_ = w.WriteText(respFileNotFound)
		return
	}
	s.metrics.FilesFetched.Add(1)
	_ = w.WriteFrame(data)
}
