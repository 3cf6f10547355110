package server

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/parleychat/parley/pkg/datastore"
	"github.com/parleychat/parley/pkg/model"
	"gopkg.in/yaml.v3"
)

// RoomYAML represents a room in YAML config.
type RoomYAML struct {
	Name string `yaml:"name"`
}

// RoomsConfig is the top-level YAML config for rooms.
type RoomsConfig struct {
	Rooms []RoomYAML `yaml:"rooms"`
}

// UserYAML represents a user in YAML export. Password hashes are
// deliberately not exported.
type UserYAML struct {
	ID        int64  `yaml:"id"`
	Username  string `yaml:"username"`
	CreatedAt string `yaml:"created_at"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// BanYAML represents one room ban in YAML export.
type BanYAML struct {
	Room      string `yaml:"room"`
	Username  string `yaml:"username"`
	BannedBy  string `yaml:"banned_by,omitempty"`
	CreatedAt string `yaml:"created_at"`
}

// BansExport is the top-level YAML for ban export.
type BansExport struct {
	Bans []BanYAML `yaml:"bans"`
}

// LoadRoomsFromYAML reads a rooms YAML file and creates the rooms in
// the registry at startup.
func LoadRoomsFromYAML(path string, rooms *RoomRegistry) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read rooms config: %w", err)
	}
	return ImportRoomsFromYAML(data, rooms)
}

// ImportRoomsFromYAML parses YAML data and creates the rooms.
func ImportRoomsFromYAML(data []byte, rooms *RoomRegistry) error {
	var cfg RoomsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse rooms config: %w", err)
	}

	created := 0
	for _, r := range cfg.Rooms {
		if err := model.ValidateRoomName(r.Name); err != nil {
			slog.Error("skipping invalid room name from config", "name", r.Name, "err", err)
			continue
		}
		if rooms.CreateRoom(r.Name) {
			created++
			slog.Debug("created room from config", "name", r.Name)
		}
	}

	slog.Info("imported rooms from YAML", "count", len(cfg.Rooms), "created", created)
	return nil
}

// ExportRoomsYAML exports all rooms as YAML.
func ExportRoomsYAML(rooms *RoomRegistry) ([]byte, error) {
	cfg := RoomsConfig{}
	for _, name := range rooms.ListRooms() {
		cfg.Rooms = append(cfg.Rooms, RoomYAML{Name: name})
	}
	return yaml.Marshal(&cfg)
}

// ExportUsersYAML exports all users as YAML.
func ExportUsersYAML(st datastore.DataStore) ([]byte, error) {
	users, err := st.ListUsers()
	if err != nil {
		return nil, err
	}

	export := UsersExport{}
	for _, u := range users {
		export.Users = append(export.Users, UserYAML{
			ID:        u.ID,
			Username:  u.Username,
			CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return yaml.Marshal(&export)
}

// ExportBansYAML exports all room bans as YAML.
func ExportBansYAML(st datastore.DataStore) ([]byte, error) {
	bans, err := st.ListRoomBans()
	if err != nil {
		return nil, err
	}

	export := BansExport{}
	for _, b := range bans {
		export.Bans = append(export.Bans, BanYAML{
			Room:      b.Room,
			Username:  b.Username,
			BannedBy:  b.BannedBy,
			CreatedAt: b.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return yaml.Marshal(&export)
}
