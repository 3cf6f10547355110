package model

// Session represents an active client connection (in-memory only).
// Username is empty until the connection authenticates. The handle ID
// is unique for the lifetime of the connection and is the only thing
// handed out to other components; they never hold a *Session across
// a disconnect.
type Session struct {
	ID        uint32
	Username  string
	Picture   string // free-form profile picture reference
	Status    string // free-form status tag, e.g. "[Moderator]"
	HasUnread bool
}

// Authenticated reports whether the session has a bound username.
func (s *Session) Authenticated() bool {
	return s.Username != ""
}
