// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package comms

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTarget means an inbound message addressed a wire slot never
	// exported to that peer.
	ErrUnknownTarget = errors.New("comms: unknown target")
	// ErrForgedSlot means a peer referenced a slot it claims we allocated
	// but we never sent it.
	ErrForgedSlot = errors.New("comms: forged slot")
	// ErrSlotReused means a peer referenced a wire slot after its entry
	// was released.
	ErrSlotReused = errors.New("comms: wire slot reused after release")
	// ErrNotResolver means a promise identifier was offered where only its
	// resolver grants authority.
	ErrNotResolver = errors.New("comms: not a resolver")
	// ErrNoResolver means the promise has no live resolver: it was not
	// imported, or it has already been settled.
	ErrNoResolver = errors.New("comms: promise has no resolver")
	// ErrNotSendable rejects sending a resolver or an unknown import.
	ErrNotSendable = errors.New("comms: slot cannot be sent to this peer")
	// ErrUnknownEvent rejects an inbound event with an unrecognized type.
	ErrUnknownEvent = errors.New("comms: unknown event type")
)

// SlotError records which translation failed.
type SlotError struct {
	Op   string
	Peer PeerID
	Slot fmt.Stringer
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Peer, e.Slot, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}
