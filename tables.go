// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"cmp"
	"slices"
)

// exportTable maps local capabilities sent to the peer to the slots this
// side allocated for them. Entries are never reassigned within a session.
type exportTable struct {
	lastObject  uint32
	lastPromise uint32
	bySlot      map[Slot]any
	byVal       map[any]Slot
	// fresh lists exports made since the last mark.
	fresh []Slot
}

func newExportTable() exportTable {
	return exportTable{bySlot: make(map[Slot]any), byVal: make(map[any]Slot)}
}

func (t *exportTable) lookup(v any) (Slot, bool) {
	s, ok := t.byVal[v]
	return s, ok
}

func (t *exportTable) value(s Slot) (any, bool) {
	v, ok := t.bySlot[s]
	return v, ok
}

func (t *exportTable) mark() {
	t.fresh = t.fresh[:0]
}

// withdraw removes the exports made since the last mark. Their slots
// were never sent, so a later send exports the values anew.
func (t *exportTable) withdraw() {
	for _, s := range t.fresh {
		delete(t.byVal, t.bySlot[s])
		delete(t.bySlot, s)
	}
	t.fresh = t.fresh[:0]
}

func (t *exportTable) add(v any, kind Kind) Slot {
	var id uint32
	if kind == KindPromise {
		t.lastPromise++
		id = t.lastPromise
	} else {
		t.lastObject++
		id = t.lastObject
	}
	s := Slot{Kind: kind, Local: true, ID: id}
	t.bySlot[s] = v
	t.byVal[v] = s
	t.fresh = append(t.fresh, s)
	return s
}

// importTable tracks presences and promises received from the peer.
// A promise leaves the pending maps when RESOLVE settles it and is kept in
// settled so later references to its slot keep their identity.
type importTable struct {
	bySlot    map[Slot]any
	byVal     map[any]Slot
	resolvers map[Slot]*Resolver
	settled   map[Slot]*Promise
}

func newImportTable() importTable {
	return importTable{
		bySlot:    make(map[Slot]any),
		byVal:     make(map[any]Slot),
		resolvers: make(map[Slot]*Resolver),
		settled:   make(map[Slot]*Promise),
	}
}

func (t *importTable) add(s Slot, v any) {
	t.bySlot[s] = v
	t.byVal[v] = s
}

func (t *importTable) addPromise(s Slot, p *Promise, r *Resolver) {
	t.add(s, p)
	t.resolvers[s] = r
}

// take removes the pending promise at s and returns its resolver.
func (t *importTable) take(s Slot) (*Resolver, bool) {
	r, ok := t.resolvers[s]
	if !ok {
		return nil, false
	}
	p := t.bySlot[s].(*Promise)
	delete(t.resolvers, s)
	delete(t.bySlot, s)
	delete(t.byVal, p)
	t.settled[s] = p
	return r, true
}

// pendingSlots returns the slots of unsettled imported promises in id order.
func (t *importTable) pendingSlots() []Slot {
	out := make([]Slot, 0, len(t.resolvers))
	for s := range t.resolvers {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Slot) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

type question struct {
	id       uint32
	method   string
	promise  *Promise
	resolver *Resolver
}

// questionTable holds calls this side made that await RETURN.
type questionTable struct {
	last    uint32
	pending map[uint32]*question
}

func newQuestionTable() questionTable {
	return questionTable{pending: make(map[uint32]*question)}
}

func (t *questionTable) alloc(s *Session, method string) *question {
	t.last++
	p, r := NewPromise()
	p.sess = s
	p.origin = Slot{Kind: KindAnswer, Local: true, ID: t.last}
	q := &question{id: t.last, method: method, promise: p, resolver: r}
	t.pending[q.id] = q
	return q
}

func (t *questionTable) remove(id uint32) (*question, bool) {
	q, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return q, ok
}

// ids returns outstanding question ids in ascending order.
func (t *questionTable) ids() []uint32 {
	out := make([]uint32, 0, len(t.pending))
	for id := range t.pending {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
