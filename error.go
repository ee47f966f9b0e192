// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"errors"
	"fmt"
)

var (
	// ErrDisconnected is wrapped by every rejection caused by session loss.
	ErrDisconnected = errors.New("captp: disconnected")
	// ErrClosed is returned by a transport after Close.
	ErrClosed = errors.New("captp: transport closed")
	// ErrAlreadySettled is returned when a Resolver is used twice.
	ErrAlreadySettled = errors.New("captp: promise already settled")
	// ErrNotCallable rejects a method call on plain data.
	ErrNotCallable = errors.New("captp: target is not callable")
	// ErrNoSuchMethod rejects a call to a method an Object does not define.
	ErrNoSuchMethod = errors.New("captp: no such method")
	// ErrUnknownTarget rejects a CALL whose target slot is not ours.
	ErrUnknownTarget = errors.New("captp: unknown target")
	// ErrNoBootstrap answers BOOTSTRAP on a session without a bootstrap value.
	ErrNoBootstrap = errors.New("captp: no bootstrap object")
	// ErrReservedKey rejects data maps that use the "@qclass" key.
	ErrReservedKey = errors.New("captp: reserved key @qclass")
	// ErrUnsupportedValue rejects values the codec cannot pass by copy.
	ErrUnsupportedValue = errors.New("captp: unsupported value")
	// ErrForeignReference rejects a presence or promise owned by another session.
	ErrForeignReference = errors.New("captp: reference belongs to another session")
	// ErrPromiseCycle rejects resolving a promise to itself.
	ErrPromiseCycle = errors.New("captp: promise resolved to itself")
)

// MalformedSlotError reports a slot marker whose index is outside the
// message's slot list.
type MalformedSlotError struct {
	Index int
	Len   int
}

func (e *MalformedSlotError) Error() string {
	return fmt.Sprintf("captp: slot index %d out of range [0,%d)", e.Index, e.Len)
}

// Violation names a class of peer misbehavior.
type Violation string

const (
	ViolationUnknownAnswer   Violation = "unknown-answer"
	ViolationDoubleResolve   Violation = "double-resolve"
	ViolationUnknownPromise  Violation = "unknown-promise"
	ViolationDuplicateAnswer Violation = "duplicate-question"
	ViolationMalformed       Violation = "malformed"
	ViolationUnknownType     Violation = "unknown-type"
)

// ProtocolError describes a message the peer should not have sent.
// It is logged and counted; it does not end the session.
type ProtocolError struct {
	Kind Violation
	Type Tag
	ID   string
	Err  error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("captp: protocol violation %s in %s", e.Kind, e.Type)
	if e.ID != "" {
		msg += " id=" + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RemoteError is an exception forwarded by the peer.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return "captp: remote: " + e.Message
	}
	return fmt.Sprintf("captp: remote %s: %s", e.Name, e.Message)
}

// DisconnectedError carries the reason a session ended.
// Every promise rejected by one teardown receives the same *DisconnectedError.
type DisconnectedError struct {
	Reason error
}

func (e *DisconnectedError) Error() string {
	if e.Reason == nil {
		return ErrDisconnected.Error()
	}
	return ErrDisconnected.Error() + ": " + e.Reason.Error()
}

// Is reports ErrDisconnected as a match.
func (e *DisconnectedError) Is(target error) bool {
	return target == ErrDisconnected
}

func (e *DisconnectedError) Unwrap() error {
	return e.Reason
}
