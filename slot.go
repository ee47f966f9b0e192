// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"fmt"
	"strconv"
)

// Kind is the namespace of a [Slot].
type Kind byte

const (
	// KindObject names an object: a local export or a remote presence.
	KindObject Kind = 'o'
	// KindPromise names a promise: a local export or a remote import.
	KindPromise Kind = 'p'
	// KindAnswer names the answer to an outstanding question.
	// Only used as a CALL target or promise argument for pipelining.
	KindAnswer Kind = 'q'
)

// Slot is a peer-relative wire identifier.
//
// Local reports which side allocated the identifier: true ("+") means this
// side, false ("-") means the peer. Slots in a message are written from the
// sender's point of view and flipped by the receiver, so the same referent
// reads o+3 on one side and o-3 on the other.
type Slot struct {
	Kind  Kind
	Local bool
	ID    uint32
}

// String formats s as kind, sign and decimal id, e.g. "o+3" or "p-12".
func (s Slot) String() string {
	sign := byte('-')
	if s.Local {
		sign = '+'
	}
	buf := make([]byte, 0, 12)
	buf = append(buf, byte(s.Kind), sign)
	return string(strconv.AppendUint(buf, uint64(s.ID), 10))
}

// Flip returns the slot as the peer names it.
func (s Slot) Flip() Slot {
	s.Local = !s.Local
	return s
}

// IsZero reports whether s is the zero Slot.
func (s Slot) IsZero() bool {
	return s == Slot{}
}

// ParseSlot parses the textual form produced by [Slot.String].
func ParseSlot(text string) (Slot, error) {
	if len(text) < 3 {
		return Slot{}, fmt.Errorf("captp: parse slot %q: too short", text)
	}
	var s Slot
	switch k := Kind(text[0]); k {
	case KindObject, KindPromise, KindAnswer:
		s.Kind = k
	default:
		return Slot{}, fmt.Errorf("captp: parse slot %q: unknown kind %q", text, text[0])
	}
	switch text[1] {
	case '+':
		s.Local = true
	case '-':
	default:
		return Slot{}, fmt.Errorf("captp: parse slot %q: missing sign", text)
	}
	id, err := strconv.ParseUint(text[2:], 10, 32)
	if err != nil {
		return Slot{}, fmt.Errorf("captp: parse slot %q: %w", text, err)
	}
	if id == 0 {
		return Slot{}, fmt.Errorf("captp: parse slot %q: zero id", text)
	}
	s.ID = uint32(id)
	return s, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Slot) MarshalText() ([]byte, error) {
	if s.IsZero() {
		return nil, fmt.Errorf("captp: marshal zero slot")
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Slot) UnmarshalText(text []byte) error {
	v, err := ParseSlot(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
