package server

import (
	"errors"
	"testing"
)

func TestSessionCreateUniqueHandles(t *testing.T) {
	sm := NewSessionManager()

	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		h := sm.Create()
		if h == 0 {
			t.Fatalf("Create: zero handle")
		}
		if seen[h] {
			t.Fatalf("Create: duplicate handle %d", h)
		}
		seen[h] = true
	}
	if sm.Count() != 100 {
		t.Fatalf("Count: want 100 got %d", sm.Count())
	}
}

func TestSessionBind(t *testing.T) {
	sm := NewSessionManager()
	h1 := sm.Create()
	h2 := sm.Create()

	if err := sm.Bind(h1, "alice"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := sm.Bind(h2, "alice"); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("Bind duplicate: want ErrAlreadyBound got %v", err)
	}

	sess, ok := sm.Get(h1)
	if !ok || sess.Username != "alice" || !sess.Authenticated() {
		t.Fatalf("Get after bind: ok=%t sess=%+v", ok, sess)
	}
	if _, ok := sm.GetByUsername("alice"); !ok {
		t.Fatalf("GetByUsername: missing alice")
	}

	// The username frees up once the holding session is gone.
	sm.Remove(h1)
	if err := sm.Bind(h2, "alice"); err != nil {
		t.Fatalf("Bind after remove: %v", err)
	}
}

func TestSessionRemoveIdempotent(t *testing.T) {
	sm := NewSessionManager()
	h := sm.Create()
	if err := sm.Bind(h, "alice"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	sm.Remove(h)
	sm.Remove(h)

	if _, ok := sm.Get(h); ok {
		t.Fatalf("Get: session survived Remove")
	}
	if _, ok := sm.GetByUsername("alice"); ok {
		t.Fatalf("GetByUsername: index survived Remove")
	}
	if sm.Count() != 0 {
		t.Fatalf("Count: want 0 got %d", sm.Count())
	}
}

func TestSessionSnapshotIsolation(t *testing.T) {
	sm := NewSessionManager()
	h := sm.Create()
	if err := sm.Bind(h, "alice"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	snap, _ := sm.Get(h)
	snap.Picture = "tampered"
	snap.Status = "tampered"

	cur, _ := sm.Get(h)
	if cur.Picture != "" || cur.Status != "" {
		t.Fatalf("snapshot mutation leaked into manager: %+v", cur)
	}
}

func TestSessionUpdateProfile(t *testing.T) {
	sm := NewSessionManager()
	h := sm.Create()
	if err := sm.Bind(h, "alice"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	sm.UpdateProfile(h, "cat.png", "away")
	sess, _ := sm.Get(h)
	if sess.Picture != "cat.png" || sess.Status != "away" {
		t.Fatalf("UpdateProfile: got %+v", sess)
	}

	sm.SetStatus(h, "[Moderator]")
	sess, _ = sm.Get(h)
	if sess.Status != "[Moderator]" || sess.Picture != "cat.png" {
		t.Fatalf("SetStatus: got %+v", sess)
	}
}
