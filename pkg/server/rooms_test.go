package server

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBroadcastReachesExactlyCurrentMembers(t *testing.T) {
	rr := NewRoomRegistry()

	if err := rr.Join("general", 1, "alice"); err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	if err := rr.Join("general", 2, "bob"); err != nil {
		t.Fatalf("Join bob: %v", err)
	}
	if err := rr.Join("other", 3, "carol"); err != nil {
		t.Fatalf("Join carol: %v", err)
	}

	var recipients []uint32
	entry, err := rr.Broadcast("general", 1, "hello", func(h uint32, _ string) {
		recipients = append(recipients, h)
	})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if want := "[general] alice: hello"; entry != want {
		t.Fatalf("Broadcast entry: want %q got %q", want, entry)
	}
	if diff := cmp.Diff([]uint32{2}, recipients); diff != "" {
		t.Fatalf("Broadcast recipients mismatch (-want +got):\n%s", diff)
	}

	// Non-members cannot broadcast.
	if _, err := rr.Broadcast("general", 3, "hi", nil); !errors.Is(err, ErrNotMember) {
		t.Fatalf("Broadcast non-member: want ErrNotMember got %v", err)
	}
	if _, err := rr.Broadcast("missing", 1, "hi", nil); !errors.Is(err, ErrNotMember) {
		t.Fatalf("Broadcast missing room: want ErrNotMember got %v", err)
	}
}

func TestFirstJoinerIsModerator(t *testing.T) {
	rr := NewRoomRegistry()

	if err := rr.Join("general", 1, "alice"); err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	if err := rr.Join("general", 2, "bob"); err != nil {
		t.Fatalf("Join bob: %v", err)
	}

	if !rr.IsModerator("general", 1) {
		t.Fatalf("IsModerator: first joiner is not moderator")
	}
	if rr.IsModerator("general", 2) {
		t.Fatalf("IsModerator: second joiner unexpectedly moderator")
	}
}

func TestGrantRevokeModerator(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	_ = rr.Join("general", 2, "bob")

	if !rr.GrantModerator("general", "bob") {
		t.Fatalf("GrantModerator bob: refused")
	}
	if !rr.IsModerator("general", 2) {
		t.Fatalf("IsModerator bob: false after grant")
	}

	// Granting to a non-member is a no-op.
	if rr.GrantModerator("general", "mallory") {
		t.Fatalf("GrantModerator non-member: accepted")
	}

	// Unrestricted self-revoke: a room can end up without moderators.
	if !rr.RevokeModerator("general", "alice") {
		t.Fatalf("RevokeModerator alice: refused")
	}
	if !rr.RevokeModerator("general", "bob") {
		t.Fatalf("RevokeModerator bob: refused")
	}
	if rr.IsModerator("general", 1) || rr.IsModerator("general", 2) {
		t.Fatalf("moderator flags survived revoke")
	}
}

func TestKickRemovesMembership(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	_ = rr.Join("general", 2, "bob")

	handle, wasMember := rr.Kick("general", "bob")
	if !wasMember || handle != 2 {
		t.Fatalf("Kick: wasMember=%t handle=%d", wasMember, handle)
	}
	if rr.IsMember("general", 2) {
		t.Fatalf("IsMember: bob still a member after kick")
	}

	// Kicked users may rejoin.
	if err := rr.Join("general", 2, "bob"); err != nil {
		t.Fatalf("Join after kick: %v", err)
	}

	if _, wasMember := rr.Kick("general", "mallory"); wasMember {
		t.Fatalf("Kick non-member: reported membership")
	}
}

func TestBanBlocksJoin(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	_ = rr.Join("general", 2, "bob")

	handle, wasMember := rr.Ban("general", "bob")
	if !wasMember || handle != 2 {
		t.Fatalf("Ban: wasMember=%t handle=%d", wasMember, handle)
	}
	if err := rr.Join("general", 2, "bob"); !errors.Is(err, ErrBanned) {
		t.Fatalf("Join after ban: want ErrBanned got %v", err)
	}

	// The ban is scoped to one room.
	if err := rr.Join("other", 2, "bob"); err != nil {
		t.Fatalf("Join other room after ban: %v", err)
	}

	// Banning a non-member still seeds the deny-list.
	rr.Ban("general", "mallory")
	if err := rr.Join("general", 3, "mallory"); !errors.Is(err, ErrBanned) {
		t.Fatalf("Join by pre-banned user: want ErrBanned got %v", err)
	}
}

func TestLoadBansSeedsDenyLists(t *testing.T) {
	rr := NewRoomRegistry()
	rr.LoadBans(map[string][]string{"general": {"bob"}, "other": {"carol"}})

	if err := rr.Join("general", 1, "bob"); !errors.Is(err, ErrBanned) {
		t.Fatalf("Join: want ErrBanned got %v", err)
	}
	if err := rr.Join("general", 2, "carol"); err != nil {
		t.Fatalf("Join carol in general: %v", err)
	}
	if err := rr.Join("other", 2, "carol"); !errors.Is(err, ErrBanned) {
		t.Fatalf("Join other: want ErrBanned got %v", err)
	}
}

func TestDetachKeepsMembership(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	_ = rr.Join("general", 2, "bob")

	rr.Detach(2)
	rr.Detach(2) // idempotent

	// A detached member receives no live deliveries...
	var recipients []uint32
	_, err := rr.Broadcast("general", 1, "hello", func(h uint32, _ string) {
		recipients = append(recipients, h)
	})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(recipients) != 0 {
		t.Fatalf("Broadcast recipients after detach: %v", recipients)
	}

	// ...but is still a member and can reattach under a new handle.
	unread := rr.Attach("bob", 7)
	if !unread {
		t.Fatalf("Attach: expected unread history")
	}
	if !rr.IsMember("general", 7) {
		t.Fatalf("IsMember: bob not reattached")
	}
}

func TestUnreadReplayExactlyOnce(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	_ = rr.Join("general", 2, "bob")

	rr.Detach(2)
	if _, err := rr.Broadcast("general", 1, "first", nil); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if _, err := rr.Broadcast("general", 1, "second", nil); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	if !rr.Attach("bob", 9) {
		t.Fatalf("Attach: expected unread history")
	}
	if diff := cmp.Diff([]string{"general"}, rr.UnreadSummary(9)); diff != "" {
		t.Fatalf("UnreadSummary mismatch (-want +got):\n%s", diff)
	}

	want := []string{"[general] alice: first", "[general] alice: second"}
	if diff := cmp.Diff(want, rr.UnreadMessages(9)); diff != "" {
		t.Fatalf("UnreadMessages mismatch (-want +got):\n%s", diff)
	}

	// Replay happens once; a second reconnect has nothing to deliver.
	if got := rr.UnreadMessages(9); len(got) != 0 {
		t.Fatalf("UnreadMessages second call: %v", got)
	}
	rr.Detach(9)
	if rr.Attach("bob", 10) {
		t.Fatalf("Attach: reported unread after full replay")
	}
}

func TestUnreadSpansRooms(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("zeta", 1, "alice")
	_ = rr.Join("alpha", 1, "alice")
	_ = rr.Join("zeta", 2, "bob")
	_ = rr.Join("alpha", 2, "bob")

	rr.Detach(2)
	_, _ = rr.Broadcast("zeta", 1, "z1", nil)
	_, _ = rr.Broadcast("alpha", 1, "a1", nil)
	_, _ = rr.Broadcast("zeta", 1, "z2", nil)

	rr.Attach("bob", 5)
	if diff := cmp.Diff([]string{"alpha", "zeta"}, rr.UnreadSummary(5)); diff != "" {
		t.Fatalf("UnreadSummary mismatch (-want +got):\n%s", diff)
	}

	// Rooms sorted, entries oldest-first within each room.
	want := []string{"[alpha] alice: a1", "[zeta] alice: z1", "[zeta] alice: z2"}
	if diff := cmp.Diff(want, rr.UnreadMessages(5)); diff != "" {
		t.Fatalf("UnreadMessages mismatch (-want +got):\n%s", diff)
	}
}

func TestLiveDeliveryDoesNotAccumulateUnread(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	_ = rr.Join("general", 2, "bob")

	_, _ = rr.Broadcast("general", 1, "hello", func(uint32, string) {})

	// Bob saw the message live; nothing to replay after a reconnect.
	rr.Detach(2)
	if rr.Attach("bob", 4) {
		t.Fatalf("Attach: live-delivered message counted as unread")
	}
}

func TestListRoomsSorted(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("zeta", 1, "alice")
	_ = rr.Join("alpha", 1, "alice")
	rr.CreateRoom("mid")

	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, rr.ListRooms()); diff != "" {
		t.Fatalf("ListRooms mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	if err := rr.Join("general", 1, "alice"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	_ = rr.Join("general", 2, "bob")
	var recipients []uint32
	_, err := rr.Broadcast("general", 2, "hi", func(h uint32, _ string) {
		recipients = append(recipients, h)
	})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if diff := cmp.Diff([]uint32{1}, recipients); diff != "" {
		t.Fatalf("recipients after rejoin (-want +got):\n%s", diff)
	}
}

func TestConcurrentBroadcastsKeepHistoryConsistent(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	_ = rr.Join("general", 2, "bob")
	rr.Detach(2)

	const n = 50
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			_, _ = rr.Broadcast("general", 1, fmt.Sprintf("msg-%d", i), nil)
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	rr.Attach("bob", 5)
	if got := rr.UnreadMessages(5); len(got) != n {
		t.Fatalf("UnreadMessages: want %d entries got %d", n, len(got))
	}
}

// deliver runs at the broadcast serialization point, so concurrent
// senders cannot reorder what a recipient sees relative to history.
func TestBroadcastDeliveryOrderMatchesHistory(t *testing.T) {
	rr := NewRoomRegistry()
	_ = rr.Join("general", 1, "alice")
	_ = rr.Join("general", 2, "bob")
	_ = rr.Join("general", 3, "carol")
	_ = rr.Join("general", 4, "dave")
	rr.Detach(4)

	// Appends race only if deliver ever escapes the registry lock.
	var seen []string
	deliver := func(h uint32, entry string) {
		if h == 3 {
			seen = append(seen, entry)
		}
	}

	const n = 50
	done := make(chan struct{})
	for _, sender := range []uint32{1, 2} {
		go func(sender uint32) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < n; i++ {
				_, _ = rr.Broadcast("general", sender, fmt.Sprintf("m-%d", i), deliver)
			}
		}(sender)
	}
	<-done
	<-done

	rr.Attach("dave", 9)
	history := rr.UnreadMessages(9)
	if len(history) != 2*n {
		t.Fatalf("history length: want %d got %d", 2*n, len(history))
	}
	if diff := cmp.Diff(history, seen); diff != "" {
		t.Fatalf("delivery order diverges from history (-want +got):\n%s", diff)
	}
}
