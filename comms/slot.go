// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package comms

import (
	"fmt"
	"strconv"
)

// Kind is the namespace of a slot.
type Kind byte

const (
	KindObject   Kind = 'o'
	KindPromise  Kind = 'p'
	KindResolver Kind = 'r'
)

// WireSlot names a reference on the link to one peer.
//
// Local is relative to the side writing the slot: "ro+4" is allocated by
// the writer, "ro-4" by the reader. The same referent is written ro+4 by
// one side and ro-4 by the other. Resolvers never appear on the wire.
type WireSlot struct {
	Kind  Kind
	Local bool
	ID    uint32
}

// Flip returns the slot as the other side writes it.
func (s WireSlot) Flip() WireSlot {
	s.Local = !s.Local
	return s
}

func (s WireSlot) String() string {
	return "r" + signed(s.Kind, s.Local, s.ID)
}

// MarshalText implements encoding.TextMarshaler.
func (s WireSlot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *WireSlot) UnmarshalText(text []byte) error {
	v, err := ParseWireSlot(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseWireSlot parses "ro+N", "ro-N", "rp+N" or "rp-N".
func ParseWireSlot(text string) (WireSlot, error) {
	if len(text) < 1 || text[0] != 'r' {
		return WireSlot{}, fmt.Errorf("comms: parse wire slot %q: missing r prefix", text)
	}
	k, local, id, err := parseSigned(text[1:])
	if err != nil || k == KindResolver {
		if err == nil {
			err = fmt.Errorf("resolvers are not wire slots")
		}
		return WireSlot{}, fmt.Errorf("comms: parse wire slot %q: %w", text, err)
	}
	return WireSlot{Kind: k, Local: local, ID: id}, nil
}

// LocalSlot names a reference in the kernel's own numbering.
//
// Local is true for references the kernel originated (exports) and false
// for references imported from some peer. Imported promises carry a
// paired resolver of kind KindResolver with its own id.
type LocalSlot struct {
	Kind  Kind
	Local bool
	ID    uint32
}

func (s LocalSlot) String() string {
	return "k" + signed(s.Kind, s.Local, s.ID)
}

// ParseLocalSlot parses "ko±N", "kp±N" or "kr±N".
func ParseLocalSlot(text string) (LocalSlot, error) {
	if len(text) < 1 || text[0] != 'k' {
		return LocalSlot{}, fmt.Errorf("comms: parse local slot %q: missing k prefix", text)
	}
	k, local, id, err := parseSigned(text[1:])
	if err != nil {
		return LocalSlot{}, fmt.Errorf("comms: parse local slot %q: %w", text, err)
	}
	return LocalSlot{Kind: k, Local: local, ID: id}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s LocalSlot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LocalSlot) UnmarshalText(text []byte) error {
	v, err := ParseLocalSlot(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func signed(k Kind, local bool, id uint32) string {
	sign := byte('-')
	if local {
		sign = '+'
	}
	buf := make([]byte, 0, 12)
	buf = append(buf, byte(k), sign)
	return string(strconv.AppendUint(buf, uint64(id), 10))
}

func parseSigned(text string) (Kind, bool, uint32, error) {
	if len(text) < 3 {
		return 0, false, 0, fmt.Errorf("too short")
	}
	k := Kind(text[0])
	switch k {
	case KindObject, KindPromise, KindResolver:
	default:
		return 0, false, 0, fmt.Errorf("unknown kind %q", text[0])
	}
	var local bool
	switch text[1] {
	case '+':
		local = true
	case '-':
	default:
		return 0, false, 0, fmt.Errorf("missing sign")
	}
	id, err := strconv.ParseUint(text[2:], 10, 32)
	if err != nil {
		return 0, false, 0, err
	}
	if id == 0 {
		return 0, false, 0, fmt.Errorf("zero id")
	}
	return k, local, uint32(id), nil
}
