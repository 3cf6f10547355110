package model

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

const MaxRoomNameLength = 64

var ErrRoomNameEmpty = errors.New("room name must not be empty")
var ErrRoomNameTooLong = fmt.Errorf("room name must not exceed %d characters", MaxRoomNameLength)
var ErrRoomNameInvalidChars = errors.New("room name must not contain control characters or the ':' delimiter")

// ValidateRoomName checks that a room name is non-empty, within length
// limits, and free of control characters and the protocol delimiter.
// Room names are case-sensitive identifiers.
func ValidateRoomName(name string) error {
	if name == "" {
		return ErrRoomNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	for _, r := range name {
		if r == ':' || unicode.IsControl(r) {
			return ErrRoomNameInvalidChars
		}
	}
	return nil
}
