// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"code.hybscloud.com/kont"
)

// Outcome is a settled promise result: Left holds the rejection,
// Right the fulfillment value.
type Outcome = kont.Either[error, any]

type promiseState uint8

const (
	pending promiseState = iota
	fulfilled
	rejected
)

// Promise is an eventual value. A Promise is not safe for concurrent use;
// it belongs to the goroutine that drives its session.
//
// Settlement callbacks registered with Then run synchronously, in
// registration order, at the moment the promise settles (or immediately if
// it already has).
type Promise struct {
	state    promiseState
	outcome  Outcome
	handlers []func(Outcome)
	// follow is the pending promise this one adopted.
	follow *Promise

	// sess and origin are set on promises that stand in for a remote
	// answer or an imported promise; calls on them pipeline to origin.
	sess   *Session
	origin Slot
}

// Resolver is the authority to settle exactly one Promise.
// Holding the Promise alone never grants it.
type Resolver struct {
	p    *Promise
	used bool
}

// NewPromise returns a pending promise and its resolver.
func NewPromise() (*Promise, *Resolver) {
	p := &Promise{}
	return p, &Resolver{p: p}
}

// Resolved returns a promise resolved to v.
func Resolved(v any) *Promise {
	p, r := NewPromise()
	_ = r.Resolve(v)
	return p
}

// Rejected returns a promise rejected with err.
func Rejected(err error) *Promise {
	p, r := NewPromise()
	_ = r.Reject(err)
	return p
}

// Resolve fulfills the promise with v. If v is a *Promise the promise
// adopts its eventual outcome. Returns ErrAlreadySettled on reuse.
func (r *Resolver) Resolve(v any) error {
	if r.used {
		return ErrAlreadySettled
	}
	r.used = true
	r.p.resolve(v)
	return nil
}

// Reject rejects the promise with err. Returns ErrAlreadySettled on reuse.
func (r *Resolver) Reject(err error) error {
	if r.used {
		return ErrAlreadySettled
	}
	r.used = true
	r.p.settle(kont.Left[error, any](err))
	return nil
}

func (p *Promise) resolve(v any) {
	q, ok := v.(*Promise)
	if !ok {
		p.settle(kont.Right[error, any](v))
		return
	}
	for t := q; t != nil; t = t.follow {
		if t == p {
			p.settle(kont.Left[error, any](ErrPromiseCycle))
			return
		}
	}
	if q.state != pending {
		p.settle(q.outcome)
		return
	}
	p.follow = q
	q.onSettle(p.settle)
}

// settle applies o once; later calls are no-ops.
func (p *Promise) settle(o Outcome) {
	if p.state != pending {
		return
	}
	if o.IsLeft() {
		p.state = rejected
	} else {
		p.state = fulfilled
	}
	p.outcome = o
	p.follow = nil
	hs := p.handlers
	p.handlers = nil
	for _, h := range hs {
		h(o)
	}
}

func (p *Promise) onSettle(h func(Outcome)) {
	if p.state != pending {
		h(p.outcome)
		return
	}
	p.handlers = append(p.handlers, h)
}

// Then registers settlement callbacks. Either may be nil.
func (p *Promise) Then(onFulfilled func(any), onRejected func(error)) {
	p.onSettle(func(o Outcome) {
		if err, ok := o.GetLeft(); ok {
			if onRejected != nil {
				onRejected(err)
			}
			return
		}
		if onFulfilled != nil {
			v, _ := o.GetRight()
			onFulfilled(v)
		}
	})
}

// Settled reports whether the promise has been fulfilled or rejected.
func (p *Promise) Settled() bool {
	return p.state != pending
}

// Outcome returns the settlement and true, or false while pending.
func (p *Promise) Outcome() (Outcome, bool) {
	if p.state == pending {
		var zero Outcome
		return zero, false
	}
	return p.outcome, true
}

// Result returns the fulfillment value or the rejection.
// Both are nil while the promise is pending.
func (p *Promise) Result() (any, error) {
	switch p.state {
	case fulfilled:
		v, _ := p.outcome.GetRight()
		return v, nil
	case rejected:
		err, _ := p.outcome.GetLeft()
		return nil, err
	}
	return nil, nil
}

// tail returns the last promise in the adoption chain.
func (p *Promise) tail() *Promise {
	for p.follow != nil {
		p = p.follow
	}
	return p
}
