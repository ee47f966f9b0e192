// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/captp"
)

// pair connects two sessions over a Pipe. Server options configure the
// second session.
func pair(serverOpts ...captp.Option) (client, server *captp.Session) {
	a, b := captp.Pipe()
	return captp.NewSession(a), captp.NewSession(b, serverOpts...)
}

// settle drains sessions and returns p's result. p must settle.
func settle(t testing.TB, p *captp.Promise, sessions ...*captp.Session) (any, error) {
	t.Helper()
	captp.Drain(sessions...)
	if !p.Settled() {
		t.Fatalf("promise pending after drain")
	}
	return p.Result()
}

func mustSettle(t testing.TB, p *captp.Promise, sessions ...*captp.Session) any {
	t.Helper()
	v, err := settle(t, p, sessions...)
	if err != nil {
		t.Fatalf("promise rejected: %v", err)
	}
	return v
}

func newCounter() *captp.Far {
	var n int64
	return captp.NewFar("Counter", map[string]captp.Method{
		"incr": func(args ...any) (any, error) {
			by := int64(1)
			if len(args) > 0 {
				by = args[0].(int64)
			}
			n += by
			return n, nil
		},
		"get": func(...any) (any, error) {
			return n, nil
		},
	})
}

// newMaker answers "counter" with a fresh counter, "echo" with its first
// argument and "call" by calling its first argument back.
func newMaker() *captp.Far {
	return captp.NewFar("Maker", map[string]captp.Method{
		"counter": func(...any) (any, error) {
			return newCounter(), nil
		},
		"echo": func(args ...any) (any, error) {
			return args[0], nil
		},
		"same": func(args ...any) (any, error) {
			return args[0] == args[1], nil
		},
		"fail": func(args ...any) (any, error) {
			return nil, errors.New(args[0].(string))
		},
		"panic": func(...any) (any, error) {
			panic("boom")
		},
		"call": func(args ...any) (any, error) {
			return captp.E(args[0], args[1].(string)), nil
		},
		"add1": func(args ...any) (any, error) {
			in := args[0].(*captp.Promise)
			p, r := captp.NewPromise()
			in.Then(func(v any) {
				_ = r.Resolve(v.(int64) + 1)
			}, func(err error) {
				_ = r.Reject(err)
			})
			return p, nil
		},
	})
}

// rawPeer drives the far end of a pipe by hand.
type rawPeer struct {
	tb  testing.TB
	end *captp.PipeEnd
}

func (r rawPeer) send(m *captp.Message) {
	r.tb.Helper()
	if err := r.end.Send(m); err != nil {
		r.tb.Fatalf("raw send %s: %v", m, err)
	}
}

func (r rawPeer) recv() *captp.Message {
	r.tb.Helper()
	m, err := r.end.Recv()
	if err != nil {
		r.tb.Fatalf("raw recv: %v", err)
	}
	return m
}

// withRaw returns a session on one end of a pipe and a raw peer on the other.
func withRaw(tb testing.TB, opts ...captp.Option) (*captp.Session, rawPeer) {
	a, b := captp.Pipe()
	return captp.NewSession(a, opts...), rawPeer{tb: tb, end: b}
}

func data(body string, slots ...captp.Slot) *captp.CapData {
	return &captp.CapData{Body: body, Slots: slots}
}

func slot(tb testing.TB, text string) captp.Slot {
	tb.Helper()
	s, err := captp.ParseSlot(text)
	if err != nil {
		tb.Fatalf("ParseSlot(%q): %v", text, err)
	}
	return s
}

func slotPtr(tb testing.TB, text string) *captp.Slot {
	tb.Helper()
	s := slot(tb, text)
	return &s
}
