// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package captp implements the capability transfer protocol: two sessions
// exchange object references and promises over a message transport, and
// may invoke methods on results before those results have settled.
//
// A peer can only act on references it was given. References travel as
// [Slot] descriptors listed beside each serialized value, and the body
// names them by position, so a message can never forge a slot it does not
// carry.
//
// # Architecture
//
//   - Codec: [Marshaler] converts values to [CapData] and back. Objects,
//     presences and promises become slots; data is passed by copy.
//   - Tables: each [Session] owns its export, import, question and answer
//     tables and the counters that allocate their identifiers.
//   - Engine: [Session.Deliver] dispatches BOOTSTRAP, CALL, RETURN, RESOLVE
//     and ABORT by tag. [Session.Bootstrap], [E] and [Presence.Call] send.
//   - Promises: [Promise] settles exactly once, and only through its
//     [Resolver]. Settlement outcomes are [code.hybscloud.com/kont.Either].
//   - Transport: [Pipe] creates an in-memory pair over lock-free SPSC queues
//     from [code.hybscloud.com/lfq]; [StreamTransport] frames JSON over a
//     byte stream. Sends return [code.hybscloud.com/iox.ErrWouldBlock] on
//     backpressure and the session queues them in order.
//
// # Concurrency
//
// A session is single-threaded. Inbound messages are handled one at a time
// in arrival order, and promise callbacks run synchronously on the same
// goroutine. Nothing in a session is locked.
//
//   - Stepping: [Session.Step] handles at most one message without blocking,
//     suited to a proactor loop. [Drain] steps sessions until quiescent.
//   - Blocking: [Await] steps until a promise settles, backing off with
//     [code.hybscloud.com/iox.Backoff].
//   - Goroutines: [Conn] owns a session on its own goroutine over an
//     [io.ReadWriteCloser]; [Conn.Do] and [Conn.Await] reach it.
//
// Losing the transport ends the session: every outstanding question and
// imported promise rejects with one shared [*DisconnectedError].
//
// # Example
//
//	a, b := captp.Pipe()
//	counter := captp.NewFar("Counter", map[string]captp.Method{
//		"incr": func(args ...any) (any, error) { n++; return n, nil },
//	})
//	server := captp.NewSession(b, captp.WithBootstrap(counter))
//	client := captp.NewSession(a)
//	p := captp.E(client.Bootstrap(), "incr") // pipelined
//	v, err := captp.Await(ctx, p, client, server)
package captp
