// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"fmt"
)

// Object is a local capability that can be exported to a peer.
// Invoke may return a *Promise to answer asynchronously.
//
// Exported objects are identified by interface equality, so the dynamic
// type must be comparable (pointer receivers are the usual choice).
type Object interface {
	Invoke(method string, args []any) (any, error)
}

// Method is one entry of a [Far] method table.
type Method func(args ...any) (any, error)

// Far is an [Object] backed by a fixed method table.
type Far struct {
	iface   string
	methods map[string]Method
}

// NewFar returns an object named iface answering the given methods.
func NewFar(iface string, methods map[string]Method) *Far {
	return &Far{iface: iface, methods: methods}
}

// Interface returns the name given to NewFar.
func (f *Far) Interface() string {
	return f.iface
}

// Invoke implements Object.
func (f *Far) Invoke(method string, args []any) (any, error) {
	m, ok := f.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchMethod, f.iface, method)
	}
	return m(args...)
}

func (f *Far) String() string {
	return "Far(" + f.iface + ")"
}

// Presence is the local proxy for an object that lives on the peer.
// Its only operation is an eventual method call.
type Presence struct {
	sess *Session
	slot Slot
}

// Call sends method to the remote object and returns the eventual result.
func (p *Presence) Call(method string, args ...any) *Promise {
	return p.sess.call(p.slot, method, args)
}

// Slot returns the import slot the presence was created for.
func (p *Presence) Slot() Slot {
	return p.slot
}

func (p *Presence) String() string {
	return "Presence(" + p.slot.String() + ")"
}

// E eventually invokes method on target.
//
// Presences and promises from a session are called through the session;
// a pending remote promise pipelines the call to the answer or import it
// stands for. A pending local promise queues the call until it settles.
// Local objects are invoked directly. Anything else rejects with
// ErrNotCallable.
func E(target any, method string, args ...any) *Promise {
	switch t := target.(type) {
	case *Presence:
		return t.Call(method, args...)
	case *Promise:
		tp := t.tail()
		switch tp.state {
		case fulfilled:
			v, _ := tp.outcome.GetRight()
			return E(v, method, args...)
		case rejected:
			err, _ := tp.outcome.GetLeft()
			return Rejected(err)
		}
		if tp.sess != nil {
			return tp.sess.call(tp.origin, method, args)
		}
		p, r := NewPromise()
		tp.Then(func(v any) {
			_ = r.Resolve(E(v, method, args...))
		}, func(err error) {
			_ = r.Reject(err)
		})
		return p
	case Object:
		return invoke(t, method, args)
	}
	return Rejected(fmt.Errorf("%w: %T", ErrNotCallable, target))
}

// invoke runs a local method; a panic becomes a rejection.
func invoke(obj Object, method string, args []any) (p *Promise) {
	defer func() {
		if r := recover(); r != nil {
			p = Rejected(fmt.Errorf("captp: method %s panicked: %v", method, r))
		}
	}()
	v, err := obj.Invoke(method, args)
	if err != nil {
		return Rejected(err)
	}
	return Resolved(v)
}
