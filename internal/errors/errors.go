package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classifying failures across package boundaries
var (
	// ErrPredicate marks a condition check failure; retried per policy
	ErrPredicate = errors.New("predicate error")
	// ErrTransport marks a broken IPC channel; treated as connection loss
	ErrTransport = errors.New("transport error")
	// ErrLockAcquisition marks a failed system sleep-lock call; retried with backoff
	ErrLockAcquisition = errors.New("lock acquisition error")
	// ErrProtocolViolation marks an out-of-order or malformed message
	ErrProtocolViolation = errors.New("protocol violation")
)

// Condition-related errors

// ErrCheckFailed returns an error for a failed condition check
func ErrCheckFailed(name string, err error) error {
	return fmt.Errorf("%w: condition %s check failed: %v", ErrPredicate, name, err)
}

// ErrCheckTimeout returns an error for a condition check that exceeded its deadline
func ErrCheckTimeout(name string) error {
	return fmt.Errorf("%w: condition %s check timed out", ErrPredicate, name)
}

// ErrConditionDisabled returns an error indicating a condition was disabled
// after too many consecutive failures
func ErrConditionDisabled(name string, failures int) error {
	return fmt.Errorf("condition %s disabled after %d consecutive failures", name, failures)
}

// Transport-related errors

// ErrConnectionLost returns an error for a lost daemon connection
func ErrConnectionLost(err error) error {
	return fmt.Errorf("%w: connection lost: %v", ErrTransport, err)
}

// ErrPongTimeout returns an error for a session that missed too many pongs
func ErrPongTimeout(missed int) error {
	return fmt.Errorf("%w: %d consecutive pongs missed", ErrTransport, missed)
}

// ErrSocketListen returns an error for socket listen failures
func ErrSocketListen(path string, err error) error {
	return fmt.Errorf("failed to listen on %s: %w", path, err)
}

// ErrSocketPerms returns an error for socket permission setup failures
func ErrSocketPerms(path string, err error) error {
	return fmt.Errorf("failed to restrict permissions on %s: %w", path, err)
}

// Protocol-related errors

// ErrStaleSequence returns an error for a message with a non-increasing
// sequence number
func ErrStaleSequence(got, last uint64) error {
	return fmt.Errorf("%w: sequence %d not greater than last accepted %d", ErrProtocolViolation, got, last)
}

// ErrMalformedMessage returns an error for an undecodable message
func ErrMalformedMessage(err error) error {
	return fmt.Errorf("%w: malformed message: %v", ErrProtocolViolation, err)
}

// ErrUnexpectedMessage returns an error for a message type that is invalid in
// the current session state
func ErrUnexpectedMessage(msgType string) error {
	return fmt.Errorf("%w: unexpected message type %q", ErrProtocolViolation, msgType)
}

// ErrPeerMismatch returns an error when the claimed uid does not match the
// socket peer credentials
func ErrPeerMismatch(claimed, actual uint32) error {
	return fmt.Errorf("%w: hello claims uid %d but peer is uid %d", ErrProtocolViolation, claimed, actual)
}

// Lock-related errors

// ErrInhibitCall returns an error for a failed logind Inhibit call
func ErrInhibitCall(err error) error {
	return fmt.Errorf("%w: logind inhibit call failed: %v", ErrLockAcquisition, err)
}

// Config-related errors

// ErrConfigLoad returns an error for configuration loading failures
func ErrConfigLoad(path string, err error) error {
	return fmt.Errorf("failed to load config from %s: %w", path, err)
}
