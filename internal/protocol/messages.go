// Package protocol defines the wire contract between the per-user client and
// the privileged daemon: newline-delimited JSON messages over a unix stream
// socket.
package protocol

// Version is the wire protocol version. The daemon rejects hellos carrying a
// different version.
const Version = 1

// Type discriminates wire messages
type Type string

const (
	// TypeHello opens a session; carries the session id and peer identity
	TypeHello Type = "hello"
	// TypeInhibit requests or releases sleep inhibition for the session
	TypeInhibit Type = "inhibit"
	// TypeAck confirms acceptance of an inhibit message by sequence number
	TypeAck Type = "ack"
	// TypeError reports a daemon-side failure to the client
	TypeError Type = "error"
	// TypePing and TypePong carry session liveness probes
	TypePing Type = "ping"
	TypePong Type = "pong"
	// TypePrepareSleep tells clients the system is about to suspend and a
	// last-chance check may be worthwhile
	TypePrepareSleep Type = "prepare-sleep"
	// TypeResume tells clients the system woke from suspend
	TypeResume Type = "resume"
)

// Error kinds carried in TypeError messages
const (
	ErrKindLockAcquisition = "lock-acquisition"
	ErrKindProtocol        = "protocol-violation"
)

// Message is the wire envelope. Unused fields are omitted per type.
type Message struct {
	Type    Type   `json:"type"`
	Version int    `json:"version"`
	Session string `json:"session,omitempty"`
	UID     uint32 `json:"uid,omitempty"`
	PID     int    `json:"pid,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
	Inhibit bool   `json:"inhibit,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// NewHello builds a session-opening message
func NewHello(session string, uid uint32, pid int) Message {
	return Message{Type: TypeHello, Version: Version, Session: session, UID: uid, PID: pid}
}

// NewInhibit builds an inhibition request or release
func NewInhibit(seq uint64, inhibit bool) Message {
	return Message{Type: TypeInhibit, Version: Version, Seq: seq, Inhibit: inhibit}
}

// NewAck builds an acknowledgement for an accepted inhibit message
func NewAck(seq uint64) Message {
	return Message{Type: TypeAck, Version: Version, Seq: seq}
}

// NewError builds a daemon error report
func NewError(kind, detail string) Message {
	return Message{Type: TypeError, Version: Version, Kind: kind, Detail: detail}
}

// NewPing builds a liveness probe
func NewPing(seq uint64) Message {
	return Message{Type: TypePing, Version: Version, Seq: seq}
}

// NewPong builds a liveness reply echoing the ping's sequence number
func NewPong(seq uint64) Message {
	return Message{Type: TypePong, Version: Version, Seq: seq}
}

// NewPrepareSleep builds the pre-suspend broadcast event
func NewPrepareSleep() Message {
	return Message{Type: TypePrepareSleep, Version: Version}
}

// NewResume builds the post-suspend broadcast event
func NewResume() Message {
	return Message{Type: TypeResume, Version: Version}
}
