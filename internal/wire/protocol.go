// Package wire defines the framed request/response protocol spoken between
// host processes and the bridge server.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize is the maximum allowed frame payload (16 MiB).
const MaxMessageSize = 16 << 20

// Operations understood by the bridge.
const (
	OpCreate  = "create"
	OpLoad    = "load"
	OpExecute = "execute"
	OpRun     = "run"
	OpClose   = "close"
)

// Request is the JSON payload sent from a host to the bridge.
// Data and Command are raw bytes so journals and command lines containing NUL
// or invalid UTF-8 survive the round trip.
type Request struct {
	ID      uint64 `json:"id"`
	Op      string `json:"op"`
	Handle  uint64 `json:"handle,omitempty"`
	Source  string `json:"source,omitempty"`
	Data    []byte `json:"data,omitempty"`
	Command []byte `json:"command,omitempty"`
}

// Response is the JSON payload sent from the bridge back to a host. Kind is
// empty on success and names the error class otherwise.
type Response struct {
	ID     uint64 `json:"id"`
	Handle uint64 `json:"handle,omitempty"`
	Output []byte `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// WriteMessage writes a length-prefixed JSON message to w.
// The frame format is: 4-byte big-endian length prefix followed by the JSON payload.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message size %d exceeds maximum %d", len(data), MaxMessageSize)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads a length-prefixed JSON message from r and decodes it into v.
// A clean end of stream before the length prefix is returned as io.EOF.
func ReadMessage(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("read length prefix: %w", err)
	}

	if length > MaxMessageSize {
		return fmt.Errorf("message size %d exceeds maximum %d", length, MaxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}
