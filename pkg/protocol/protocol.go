// Package protocol defines the wire framing and request grammar for Parley.
//
// Every message in either direction is one frame:
//
//	[4-byte big-endian length][payload]
//
// Request payloads are "COMMAND[:arg1[:arg2...]]" with ':' as the field
// separator. Commands that carry free-form content (message bodies,
// profile text, file bytes) take it as the rest of the frame, so the
// content may contain the delimiter, newlines, or arbitrary binary.
// Response payloads are UTF-8 text, except GET_FILE's success response
// which is the raw file bytes.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize is the maximum payload size of a single frame (1 MiB).
// It bounds file transfers and protects the server from hostile length
// prefixes.
const MaxFrameSize = 1 << 20

// WriteFrame writes a length-prefixed frame to a writer.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("protocol: frame too large: %d bytes", len(payload))
	}

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(payload))) //nolint:gosec // length already bounds-checked above
	if _, err := w.Write(lenBuf); err != nil {
		return fmt.Errorf("protocol: write length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from a reader. It reads
// exactly the declared number of payload bytes before returning, so a
// payload split across many socket reads arrives intact.
func ReadFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("protocol: read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("protocol: frame too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return payload, nil
}

// WriteText writes a text response as a single frame.
func WriteText(w io.Writer, text string) error {
	return WriteFrame(w, []byte(text))
}
