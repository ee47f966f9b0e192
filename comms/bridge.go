// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package comms

import (
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event types carried between peers.
const (
	EventDeliver = "deliver"
	EventNotify  = "notify"
)

// WireData is a serialized value whose slots are written for the link.
type WireData struct {
	Body  string     `json:"body"`
	Slots []WireSlot `json:"slots"`
}

// KernelData is a serialized value whose slots are kernel slots.
type KernelData struct {
	Body  string
	Slots []LocalSlot
}

// Event is one message on the link to a peer.
//
//	deliver { target, method, args, result? }
//	notify  { promise, rejected?, data }
type Event struct {
	Type     string    `json:"type"`
	Target   *WireSlot `json:"target,omitempty"`
	Method   string    `json:"method,omitempty"`
	Args     *WireData `json:"args,omitempty"`
	Result   *WireSlot `json:"result,omitempty"`
	Promise  *WireSlot `json:"promise,omitempty"`
	Rejected bool      `json:"rejected,omitempty"`
	Data     *WireData `json:"data,omitempty"`
}

// Kernel is the collaborator that owns the objects behind kernel slots.
type Kernel interface {
	// Deliver invokes method on target. A non-nil result is the resolver
	// the kernel uses, through Bridge.Settle, to answer the caller.
	Deliver(target LocalSlot, method string, args KernelData, result *LocalSlot) error
	// Resolve settles the promise paired with resolver.
	Resolve(resolver LocalSlot, rejected bool, data KernelData) error
}

// Sender writes an event to a peer.
type Sender func(peer PeerID, ev *Event) error

// Bridge connects peers' links to a kernel through a Translator.
type Bridge struct {
	t      *Translator
	kernel Kernel
	send   Sender
	log    *slog.Logger
}

// NewBridge returns a bridge translating between k and the links written
// by send. A nil logger discards.
func NewBridge(t *Translator, k Kernel, send Sender, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Bridge{t: t, kernel: k, send: send, log: log}
}

// Translator returns the bridge's translator.
func (b *Bridge) Translator() *Translator {
	return b.t
}

var eventHandlers = map[string]func(b *Bridge, peer PeerID, ev *Event) error{
	EventDeliver: (*Bridge).handleDeliver,
	EventNotify:  (*Bridge).handleNotify,
}

// Dispatch routes one inbound event from peer by its type.
func (b *Bridge) Dispatch(peer PeerID, ev *Event) error {
	h, ok := eventHandlers[ev.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	if err := h(b, peer, ev); err != nil {
		b.log.Warn("inbound event rejected", "peer", peer, "type", ev.Type, "error", err)
		return err
	}
	return nil
}

// DispatchJSON decodes one event and dispatches it.
func (b *Bridge) DispatchJSON(peer PeerID, raw []byte) error {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("comms: decode event from %s: %w", peer, err)
	}
	return b.Dispatch(peer, &ev)
}

func (b *Bridge) handleDeliver(peer PeerID, ev *Event) error {
	if ev.Target == nil || ev.Method == "" {
		return fmt.Errorf("comms: deliver from %s: missing target or method", peer)
	}
	target, err := b.t.MapInboundTarget(peer, *ev.Target)
	if err != nil {
		return err
	}
	args, err := b.inbound(peer, ev.Args)
	if err != nil {
		return err
	}
	var result *LocalSlot
	if ev.Result != nil {
		r, err := b.t.MapInboundResolver(peer, *ev.Result)
		if err != nil {
			return err
		}
		result = &r
	}
	return b.kernel.Deliver(target, ev.Method, args, result)
}

func (b *Bridge) handleNotify(peer PeerID, ev *Event) error {
	if ev.Promise == nil {
		return fmt.Errorf("comms: notify from %s: missing promise", peer)
	}
	r, err := b.t.MapInboundResolver(peer, *ev.Promise)
	if err != nil {
		return err
	}
	data, err := b.inbound(peer, ev.Data)
	if err != nil {
		return err
	}
	if err := b.kernel.Resolve(r, ev.Rejected, data); err != nil {
		return err
	}
	_, err = b.t.Resolve(r)
	return err
}

func (b *Bridge) inbound(peer PeerID, d *WireData) (KernelData, error) {
	if d == nil {
		return KernelData{}, nil
	}
	out := KernelData{Body: d.Body, Slots: make([]LocalSlot, len(d.Slots))}
	for i, ws := range d.Slots {
		ls, err := b.t.MapInboundSlot(peer, ws)
		if err != nil {
			return KernelData{}, err
		}
		out.Slots[i] = ls
	}
	return out, nil
}

func (b *Bridge) outbound(peer PeerID, d KernelData) (*WireData, error) {
	out := &WireData{Body: d.Body, Slots: make([]WireSlot, len(d.Slots))}
	for i, ls := range d.Slots {
		ws, err := b.t.MapOutbound(peer, ls)
		if err != nil {
			return nil, err
		}
		out.Slots[i] = ws
	}
	return out, nil
}

// SendDeliver sends a method invocation on target to peer. result, if
// non-nil, is a kernel promise the peer will settle with a notify.
func (b *Bridge) SendDeliver(peer PeerID, target LocalSlot, method string, args KernelData, result *LocalSlot) error {
	ws, err := b.t.MapOutbound(peer, target)
	if err != nil {
		return err
	}
	wargs, err := b.outbound(peer, args)
	if err != nil {
		return err
	}
	ev := &Event{Type: EventDeliver, Target: &ws, Method: method, Args: wargs}
	if result != nil {
		rs, err := b.t.MapOutbound(peer, *result)
		if err != nil {
			return err
		}
		ev.Result = &rs
	}
	return b.send(peer, ev)
}

// SendNotify tells peer that a kernel promise it was given has settled.
func (b *Bridge) SendNotify(peer PeerID, promise LocalSlot, rejected bool, data KernelData) error {
	ws, err := b.t.MapOutbound(peer, promise)
	if err != nil {
		return err
	}
	return b.notify(peer, ws, rejected, data)
}

// Settle uses resolver to answer the peer that handed the kernel its
// promise. The resolver is consumed.
func (b *Bridge) Settle(resolver LocalSlot, rejected bool, data KernelData) error {
	e, err := b.t.Resolve(resolver)
	if err != nil {
		return err
	}
	if e.Outbound == (WireSlot{}) {
		return &SlotError{Op: "settle", Peer: e.Peer, Slot: e.Local, Err: ErrNotSendable}
	}
	return b.notify(e.Peer, e.Outbound, rejected, data)
}

func (b *Bridge) notify(peer PeerID, ws WireSlot, rejected bool, data KernelData) error {
	wdata, err := b.outbound(peer, data)
	if err != nil {
		return err
	}
	return b.send(peer, &Event{Type: EventNotify, Promise: &ws, Rejected: rejected, Data: wdata})
}
