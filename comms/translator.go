// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package comms

import (
	"cmp"
	"log/slog"
	"slices"
)

// PeerID identifies a remote peer.
type PeerID string

// Entry is one clist row: the kernel's name for a reference, how this
// side writes it to the peer, and how the peer writes it to us.
type Entry struct {
	Local    LocalSlot
	Outbound WireSlot
	Inbound  WireSlot
	Peer     PeerID
}

type pair struct {
	promise LocalSlot
	peer    PeerID
}

// clist is the per-peer translation table.
type clist struct {
	byInbound   map[WireSlot]*Entry
	byLocal     map[LocalSlot]*Entry
	released    map[WireSlot]struct{}
	lastObject  uint32
	lastPromise uint32
	connections int
}

func newClist() *clist {
	return &clist{
		byInbound: make(map[WireSlot]*Entry),
		byLocal:   make(map[LocalSlot]*Entry),
		released:  make(map[WireSlot]struct{}),
	}
}

// Translator maps between kernel slots and each peer's wire slots and
// keeps imported promises paired with their resolvers.
//
// A Translator is not safe for concurrent use; it belongs to the kernel's
// single event loop.
type Translator struct {
	log   *slog.Logger
	peers map[PeerID]*clist

	lastImport   uint32
	lastPromise  uint32
	lastResolver uint32

	// resolverOf maps an imported promise to its resolver; pairs maps
	// the resolver back. Both entries go when the resolver is used.
	resolverOf map[LocalSlot]LocalSlot
	pairs      map[LocalSlot]pair

	onReset []func(peer PeerID, first bool)
}

// NewTranslator returns an empty translator. A nil logger discards.
func NewTranslator(log *slog.Logger) *Translator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Translator{
		log:        log,
		peers:      make(map[PeerID]*clist),
		resolverOf: make(map[LocalSlot]LocalSlot),
		pairs:      make(map[LocalSlot]pair),
	}
}

func (t *Translator) table(peer PeerID) *clist {
	c, ok := t.peers[peer]
	if !ok {
		c = newClist()
		t.peers[peer] = c
	}
	return c
}

// MapInboundTarget translates the target of an inbound delivery. The
// target must be something previously sent to peer.
func (t *Translator) MapInboundTarget(peer PeerID, ws WireSlot) (LocalSlot, error) {
	if c, ok := t.peers[peer]; ok {
		if e, ok := c.byInbound[ws]; ok {
			return e.Local, nil
		}
	}
	return LocalSlot{}, &SlotError{Op: "map inbound target", Peer: peer, Slot: ws, Err: ErrUnknownTarget}
}

// MapInboundSlot translates a slot carried in an inbound message,
// allocating on first sight. A peer-allocated object becomes a fresh
// import; a peer-allocated promise becomes a fresh promise paired with a
// fresh resolver. Repeated calls for the same wire slot return the same
// kernel slot.
//
// A slot the peer claims we allocated must already be in the clist, and a
// wire slot whose entry was released stays closed.
func (t *Translator) MapInboundSlot(peer PeerID, ws WireSlot) (LocalSlot, error) {
	c := t.table(peer)
	if e, ok := c.byInbound[ws]; ok {
		return e.Local, nil
	}
	if _, ok := c.released[ws]; ok {
		t.log.Warn("wire slot reused after release", "peer", peer, "slot", ws)
		return LocalSlot{}, &SlotError{Op: "map inbound slot", Peer: peer, Slot: ws, Err: ErrSlotReused}
	}
	if !ws.Local || ws.Kind == KindResolver {
		return LocalSlot{}, &SlotError{Op: "map inbound slot", Peer: peer, Slot: ws, Err: ErrForgedSlot}
	}
	var ls LocalSlot
	switch ws.Kind {
	case KindObject:
		t.lastImport++
		ls = LocalSlot{Kind: KindObject, ID: t.lastImport}
	case KindPromise:
		t.lastPromise++
		t.lastResolver++
		ls = LocalSlot{Kind: KindPromise, ID: t.lastPromise}
		r := LocalSlot{Kind: KindResolver, ID: t.lastResolver}
		t.resolverOf[ls] = r
		t.pairs[r] = pair{promise: ls, peer: peer}
	}
	c.add(&Entry{Local: ls, Outbound: ws.Flip(), Inbound: ws, Peer: peer})
	t.log.Debug("imported", "peer", peer, "slot", ws, "local", ls)
	return ls, nil
}

// MapInboundResolver returns the resolver paired with the promise the
// peer names by ws. It never returns the promise itself.
func (t *Translator) MapInboundResolver(peer PeerID, ws WireSlot) (LocalSlot, error) {
	if ws.Kind != KindPromise {
		return LocalSlot{}, &SlotError{Op: "map inbound resolver", Peer: peer, Slot: ws, Err: ErrNoResolver}
	}
	ls, err := t.MapInboundSlot(peer, ws)
	if err != nil {
		return LocalSlot{}, err
	}
	r, ok := t.resolverOf[ls]
	if !ok {
		return LocalSlot{}, &SlotError{Op: "map inbound resolver", Peer: peer, Slot: ws, Err: ErrNoResolver}
	}
	return r, nil
}

// MapOutbound translates a kernel slot for a message to peer, allocating
// a wire slot on first sight. Resolvers are never sent, and imports can
// only be sent back to the peer they came from.
func (t *Translator) MapOutbound(peer PeerID, ls LocalSlot) (WireSlot, error) {
	c := t.table(peer)
	if e, ok := c.byLocal[ls]; ok {
		return e.Outbound, nil
	}
	if ls.Kind == KindResolver || !ls.Local {
		return WireSlot{}, &SlotError{Op: "map outbound", Peer: peer, Slot: ls, Err: ErrNotSendable}
	}
	var id uint32
	if ls.Kind == KindPromise {
		c.lastPromise++
		id = c.lastPromise
	} else {
		c.lastObject++
		id = c.lastObject
	}
	ws := WireSlot{Kind: ls.Kind, Local: true, ID: id}
	c.add(&Entry{Local: ls, Outbound: ws, Inbound: ws.Flip(), Peer: peer})
	t.log.Debug("exported", "peer", peer, "local", ls, "slot", ws)
	return ws, nil
}

// Resolve consumes resolver and returns the clist entry of the promise it
// settles. A resolver works once; a promise identifier never works.
func (t *Translator) Resolve(resolver LocalSlot) (Entry, error) {
	if resolver.Kind != KindResolver {
		return Entry{}, &SlotError{Op: "resolve", Slot: resolver, Err: ErrNotResolver}
	}
	p, ok := t.pairs[resolver]
	if !ok {
		return Entry{}, &SlotError{Op: "resolve", Slot: resolver, Err: ErrNoResolver}
	}
	delete(t.pairs, resolver)
	delete(t.resolverOf, p.promise)
	if c, ok := t.peers[p.peer]; ok {
		if e, ok := c.byLocal[p.promise]; ok {
			return *e, nil
		}
	}
	return Entry{Local: p.promise, Peer: p.peer}, nil
}

// Release retires the clist entry for ws. Later references to ws from
// that peer fail with ErrSlotReused.
func (t *Translator) Release(peer PeerID, ws WireSlot) bool {
	c, ok := t.peers[peer]
	if !ok {
		return false
	}
	e, ok := c.byInbound[ws]
	if !ok {
		return false
	}
	delete(c.byInbound, ws)
	delete(c.byLocal, e.Local)
	c.released[ws] = struct{}{}
	return true
}

// OnReset registers fn to run whenever a peer's connection is replaced.
// first is true for the first connection to that peer.
func (t *Translator) OnReset(fn func(peer PeerID, first bool)) {
	t.onReset = append(t.onReset, fn)
}

// Reset records a new connection to peer. The clist is kept, so
// references handed out earlier keep their identity.
func (t *Translator) Reset(peer PeerID) {
	c := t.table(peer)
	first := c.connections == 0
	c.connections++
	t.log.Info("peer connection reset", "peer", peer, "first", first)
	for _, fn := range t.onReset {
		fn(peer, first)
	}
}

// Entries returns peer's clist ordered by kernel slot.
func (t *Translator) Entries(peer PeerID) []Entry {
	c, ok := t.peers[peer]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(c.byLocal))
	for _, e := range c.byLocal {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if n := cmp.Compare(a.Local.Kind, b.Local.Kind); n != 0 {
			return n
		}
		if a.Local.Local != b.Local.Local {
			if a.Local.Local {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Local.ID, b.Local.ID)
	})
	return out
}

func (c *clist) add(e *Entry) {
	c.byInbound[e.Inbound] = e
	c.byLocal[e.Local] = e
}
