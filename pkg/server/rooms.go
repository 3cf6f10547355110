package server

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/parleychat/parley/pkg/authz"
)

var (
	// ErrBanned is returned by Join when the username is on the
	// room's deny-list.
	ErrBanned = errors.New("server: banned from room")
	// ErrNotMember is returned by Broadcast when the sender is not a
	// current member of the room.
	ErrNotMember = errors.New("server: not a member of room")
)

// member is one username's standing in a room. The live handle is 0
// while the user is offline; membership itself survives disconnects,
// which is what makes offline unread replay possible. lastRead indexes
// into the room history: everything at or beyond it is unread.
type member struct {
	handle    uint32
	moderator bool
	lastRead  int
}

// room is the state of one chat room. Rooms are created lazily on
// first join and never destroyed, even when empty.
type room struct {
	name    string
	members map[string]*member // username -> standing
	banned  map[string]bool    // deny-list, consulted by Join
	history []string           // append-only formatted broadcast entries
}

// RoomRegistry owns every room. One registry mutex serializes all
// mutations: membership changes and broadcast serialization points
// cannot interleave, so a broadcast's recipient snapshot is exact.
// No network I/O ever happens under the lock; callers deliver to the
// returned handles afterwards.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewRoomRegistry creates an empty room registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*room)}
}

// getOrCreate returns the named room, creating it lazily.
// Caller must hold r.mu.
func (r *RoomRegistry) getOrCreate(name string) *room {
	rm, ok := r.rooms[name]
	if !ok {
		rm = &room{
			name:    name,
			members: make(map[string]*member),
			banned:  make(map[string]bool),
		}
		r.rooms[name] = rm
	}
	return rm
}

// findByHandle returns the member entry owned by a live handle.
// Caller must hold r.mu.
func (rm *room) findByHandle(handle uint32) (string, *member) {
	for username, m := range rm.members {
		if m.handle == handle && handle != 0 {
			return username, m
		}
	}
	return "", nil
}

// CreateRoom creates an empty room if absent (startup bootstrap).
// Reports whether the room was newly created.
func (r *RoomRegistry) CreateRoom(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[name]; ok {
		return false
	}
	r.getOrCreate(name)
	return true
}

// Join adds the session to a room, creating the room if absent.
// Rejoining is a no-op success that reattaches the live handle. Fails
// with ErrBanned if the username is on the room's deny-list. New
// members start with their read marker at the current end of history;
// messages sent before they joined are not replayed to them.
//
// The first member of a room becomes its moderator. Without this there
// would be no path to a room's first grant, since granting itself
// requires moderator standing.
func (r *RoomRegistry) Join(roomName string, handle uint32, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.getOrCreate(roomName)
	if rm.banned[username] {
		return ErrBanned
	}
	if m, ok := rm.members[username]; ok {
		m.handle = handle
		return nil
	}
	rm.members[username] = &member{
		handle:    handle,
		moderator: len(rm.members) == 0,
		lastRead:  len(rm.history),
	}
	return nil
}

// Leave removes the session's membership (and moderator flag) from a
// room. No-op if the room or membership is absent.
func (r *RoomRegistry) Leave(roomName string, handle uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return
	}
	if username, m := rm.findByHandle(handle); m != nil {
		delete(rm.members, username)
	}
}

// Broadcast serializes one room message: it verifies membership,
// appends the formatted entry to history, and invokes deliver for the
// live handle of every other member, all under the registry lock.
// Members present at this instant are exactly the set that receives
// the message, and because deliver runs at the serialization point,
// each recipient sees broadcasts in history order. deliver must not
// block; it should only enqueue. Live recipients' (and the sender's)
// read markers advance past the new entry so only offline members
// accumulate unread history.
func (r *RoomRegistry) Broadcast(roomName string, sender uint32, body string, deliver func(handle uint32, entry string)) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return "", ErrNotMember
	}
	senderName, senderMember := rm.findByHandle(sender)
	if senderMember == nil {
		return "", ErrNotMember
	}

	entry := fmt.Sprintf("[%s] %s: %s", roomName, senderName, body)
	rm.history = append(rm.history, entry)

	for username, m := range rm.members {
		if username == senderName {
			continue
		}
		if m.handle != 0 {
			if deliver != nil {
				deliver(m.handle, entry)
			}
			m.lastRead = len(rm.history)
		}
	}
	senderMember.lastRead = len(rm.history)
	return entry, nil
}

// ListRooms returns all room names in lexicographic order.
func (r *RoomRegistry) ListRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Standing returns the session's membership snapshot for a room, as
// consumed by the authorization engine.
func (r *RoomRegistry) Standing(roomName string, handle uint32) authz.Standing {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return authz.Standing{}
	}
	if _, m := rm.findByHandle(handle); m != nil {
		return authz.Standing{Member: true, Moderator: m.moderator}
	}
	return authz.Standing{}
}

// IsMember reports whether the handle is a live member of the room.
func (r *RoomRegistry) IsMember(roomName string, handle uint32) bool {
	return r.Standing(roomName, handle).Member
}

// IsModerator reports whether the handle is a live moderator of the room.
func (r *RoomRegistry) IsModerator(roomName string, handle uint32) bool {
	return r.Standing(roomName, handle).Moderator
}

// GrantModerator marks a member as moderator. No-op (false) if the
// username is not a member; moderators are always a subset of members.
func (r *RoomRegistry) GrantModerator(roomName, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return false
	}
	m, ok := rm.members[username]
	if !ok {
		return false
	}
	m.moderator = true
	return true
}

// RevokeModerator clears a member's moderator flag. Self-revocation is
// not special-cased: a room can lose its last moderator.
func (r *RoomRegistry) RevokeModerator(roomName, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return false
	}
	m, ok := rm.members[username]
	if !ok {
		return false
	}
	m.moderator = false
	return true
}

// Kick removes a username from a room's members (and moderators).
// Returns the member's live handle (0 if offline) and whether the
// username was a member at all.
func (r *RoomRegistry) Kick(roomName, username string) (handle uint32, wasMember bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeMember(roomName, username)
}

// Ban removes a username like Kick and additionally adds it to the
// room's deny-list, so a later Join fails with ErrBanned. Banning a
// non-member still records the deny-list entry.
func (r *RoomRegistry) Ban(roomName, username string) (handle uint32, wasMember bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, wasMember = r.removeMember(roomName, username)
	r.getOrCreate(roomName).banned[username] = true
	return handle, wasMember
}

// removeMember deletes the member entry. Caller must hold r.mu.
func (r *RoomRegistry) removeMember(roomName, username string) (uint32, bool) {
	rm, ok := r.rooms[roomName]
	if !ok {
		return 0, false
	}
	m, ok := rm.members[username]
	if !ok {
		return 0, false
	}
	delete(rm.members, username)
	return m.handle, true
}

// LoadBans seeds deny-lists from persisted ban rows at startup,
// creating the referenced rooms as needed.
func (r *RoomRegistry) LoadBans(rooms map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomName, usernames := range rooms {
		rm := r.getOrCreate(roomName)
		for _, u := range usernames {
			rm.banned[u] = true
		}
	}
}

// Attach reconnects a returning user's live handle to every room where
// their membership survived a disconnect. Returns true when the user
// has unread history in at least one of those rooms.
func (r *RoomRegistry) Attach(username string, handle uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	unread := false
	for _, rm := range r.rooms {
		if m, ok := rm.members[username]; ok {
			m.handle = handle
			if m.lastRead < len(rm.history) {
				unread = true
			}
		}
	}
	return unread
}

// Detach clears the live handle from every member entry owned by it.
// This is the disconnect cascade: membership, moderator flags, and
// read markers stay; only the handle dies. Idempotent.
func (r *RoomRegistry) Detach(handle uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle == 0 {
		return
	}
	for _, rm := range r.rooms {
		for _, m := range rm.members {
			if m.handle == handle {
				m.handle = 0
			}
		}
	}
}

// UnreadSummary returns, in lexicographic order, the rooms in which
// the handle's member entry has history beyond its read marker.
func (r *RoomRegistry) UnreadSummary(handle uint32) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name, rm := range r.rooms {
		if _, m := rm.findByHandle(handle); m != nil && m.lastRead < len(rm.history) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// UnreadMessages returns all unread history entries for the handle,
// rooms in lexicographic order and entries oldest-first within each
// room, and advances the read markers. A second call without new
// messages returns nothing: replay is exactly-once per reconnect.
func (r *RoomRegistry) UnreadMessages(handle uint32) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name, rm := range r.rooms {
		if _, m := rm.findByHandle(handle); m != nil && m.lastRead < len(rm.history) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		rm := r.rooms[name]
		_, m := rm.findByHandle(handle)
		out = append(out, rm.history[m.lastRead:]...)
		m.lastRead = len(rm.history)
	}
	return out
}

// RoomCount returns the number of rooms.
func (r *RoomRegistry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
