package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const MessageMaxBodyLength = 2000

var ErrMessageBodyTooLong = fmt.Errorf("message body exceeds %d characters", MessageMaxBodyLength)
var ErrMessageBodyEmpty = errors.New("message body cannot be empty")

// ValidateMessageBody checks a chat message body before it is formatted
// and appended to room history.
func ValidateMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrMessageBodyEmpty
	}
	if utf8.RuneCountInString(body) > MessageMaxBodyLength {
		return ErrMessageBodyTooLong
	}
	return nil
}
