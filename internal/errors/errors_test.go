package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"Check failed", ErrCheckFailed("plex", fmt.Errorf("boom")), ErrPredicate},
		{"Check timeout", ErrCheckTimeout("plex"), ErrPredicate},
		{"Connection lost", ErrConnectionLost(fmt.Errorf("EOF")), ErrTransport},
		{"Pong timeout", ErrPongTimeout(2), ErrTransport},
		{"Stale sequence", ErrStaleSequence(1, 5), ErrProtocolViolation},
		{"Malformed message", ErrMalformedMessage(fmt.Errorf("bad json")), ErrProtocolViolation},
		{"Unexpected message", ErrUnexpectedMessage("ack"), ErrProtocolViolation},
		{"Peer mismatch", ErrPeerMismatch(1000, 1001), ErrProtocolViolation},
		{"Inhibit call", ErrInhibitCall(fmt.Errorf("dbus down")), ErrLockAcquisition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !stderrors.Is(tt.err, tt.sentinel) {
				t.Errorf("Expected %v to match sentinel %v", tt.err, tt.sentinel)
			}
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	if stderrors.Is(ErrCheckFailed("x", fmt.Errorf("e")), ErrTransport) {
		t.Error("Predicate error should not classify as transport error")
	}
	if stderrors.Is(ErrStaleSequence(1, 2), ErrLockAcquisition) {
		t.Error("Protocol violation should not classify as lock acquisition error")
	}
}
