// Package nativemsg implements the browser native-messaging transport: the
// engine runs as a host process the extension spawns, exchanging
// length-prefixed JSON frames over stdin/stdout.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// maxInboundSize caps frames read from the browser.
	maxInboundSize = 64 * 1024 * 1024
	// maxOutboundSize is the browser-imposed limit on host messages.
	maxOutboundSize = 1024 * 1024
)

// ReadFrame reads one native-messaging frame: a little-endian uint32 length
// followed by that many bytes of JSON. Returns io.EOF when the peer closed
// the stream cleanly.
func ReadFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}
	if length > maxInboundSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}
	return buf, nil
}

// WriteFrame marshals v and writes it as one native-messaging frame.
func WriteFrame(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if len(body) > maxOutboundSize {
		return fmt.Errorf("frame of %d bytes exceeds outbound limit", len(body))
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(body))); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write frame body: %w", err)
	}
	return nil
}
