package model

import "time"

// RoomBan represents a persisted per-room deny-list entry. A banned
// username cannot rejoin the room until the ban row is deleted.
type RoomBan struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	BannedBy  string    `json:"banned_by"`
	CreatedAt time.Time `json:"created_at"`
}
