package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ericghara/no-doze/internal/errors"
)

// MaxMessageSize bounds a single wire message. Anything larger is a protocol
// violation.
const MaxMessageSize = 64 * 1024

// Encoder writes newline-delimited JSON messages. Safe for concurrent use;
// each message is written and flushed atomically.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one message followed by a newline and flushes
func (e *Encoder) Encode(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if len(data) >= MaxMessageSize {
		return errors.ErrMalformedMessage(fmt.Errorf("message of %d bytes exceeds limit", len(data)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return errors.ErrConnectionLost(err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return errors.ErrConnectionLost(err)
	}
	if err := e.w.Flush(); err != nil {
		return errors.ErrConnectionLost(err)
	}
	return nil
}

// Decoder reads newline-delimited JSON messages. Owned by a single reader
// goroutine.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), MaxMessageSize)
	return &Decoder{scanner: scanner}
}

// Decode reads the next message. Returns io.EOF wrapped as a transport error
// when the peer closes the connection cleanly.
func (d *Decoder) Decode() (Message, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return Message{}, errors.ErrConnectionLost(err)
		}
		return Message{}, errors.ErrConnectionLost(io.EOF)
	}

	var msg Message
	if err := json.Unmarshal(d.scanner.Bytes(), &msg); err != nil {
		return Message{}, errors.ErrMalformedMessage(err)
	}
	if msg.Type == "" {
		return Message{}, errors.ErrMalformedMessage(fmt.Errorf("missing message type"))
	}
	return msg, nil
}
