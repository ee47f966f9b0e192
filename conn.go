// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"context"
	"io"

	"code.hybscloud.com/iox"
	"golang.org/x/sync/errgroup"
)

// connOutbound bounds messages queued for the writer goroutine before the
// session starts using its backlog.
const connOutbound = 64

// Conn runs a Session over a byte stream.
//
// Three goroutines cooperate: a reader decoding inbound messages, a writer
// encoding outbound ones, and a loop that owns the session and is the only
// goroutine to touch it. Application code reaches the session through Do
// and Await, which run on the loop.
type Conn struct {
	sess   *Session
	stream *StreamTransport
	g      *errgroup.Group

	out     chan *Message
	inbound chan *Message
	calls   chan func()
	wake    chan struct{}
	lost    chan error
	done    chan struct{}
}

// connTransport hands outbound messages to the writer goroutine without
// blocking the loop.
type connTransport struct {
	out    chan *Message
	closed bool
}

func (t *connTransport) Send(m *Message) error {
	if t.closed {
		return ErrClosed
	}
	select {
	case t.out <- m:
		return nil
	default:
		return iox.ErrWouldBlock
	}
}

func (t *connTransport) Recv() (*Message, error) {
	return nil, iox.ErrWouldBlock
}

func (t *connTransport) Close() error {
	if !t.closed {
		t.closed = true
		close(t.out)
	}
	return nil
}

// NewConn starts a session on rwc. The session closes when ctx is done,
// when the stream fails, when the peer aborts, or on Close.
func NewConn(ctx context.Context, rwc io.ReadWriteCloser, opts ...Option) *Conn {
	c := &Conn{
		stream:  NewStreamTransport(rwc),
		out:     make(chan *Message, connOutbound),
		inbound: make(chan *Message),
		calls:   make(chan func()),
		wake:    make(chan struct{}, 1),
		lost:    make(chan error, 2),
		done:    make(chan struct{}),
	}
	c.sess = NewSession(&connTransport{out: c.out}, opts...)
	c.sess.start()
	g, ctx := errgroup.WithContext(ctx)
	c.g = g
	g.Go(c.receive)
	g.Go(c.transmit)
	g.Go(func() error { return c.loop(ctx) })
	return c
}

func (c *Conn) report(err error) {
	select {
	case c.lost <- err:
	default:
	}
}

func (c *Conn) receive() error {
	for {
		m, err := c.stream.Recv()
		if err != nil {
			c.report(err)
			return nil
		}
		select {
		case c.inbound <- m:
		case <-c.done:
			return nil
		}
	}
}

func (c *Conn) transmit() error {
	for m := range c.out {
		if err := c.stream.Send(m); err != nil {
			c.report(err)
			_ = c.stream.Close()
			for range c.out {
			}
			return err
		}
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	return c.stream.Close()
}

func (c *Conn) loop(ctx context.Context) error {
	defer close(c.done)
	for c.sess.State() != Closed {
		select {
		case m := <-c.inbound:
			_ = c.sess.Deliver(m)
		case fn := <-c.calls:
			fn()
		case <-c.wake:
		case err := <-c.lost:
			c.sess.disconnect(err)
		case <-ctx.Done():
			select {
			case err := <-c.lost:
				c.sess.disconnect(err)
			default:
				_ = c.sess.Close(context.Cause(ctx))
			}
		}
		c.sess.flush()
	}
	return nil
}

// Do runs fn on the goroutine that owns the session and waits for it to
// return. It returns the session's close error if the session has ended.
func (c *Conn) Do(fn func(s *Session)) error {
	ran := make(chan struct{})
	select {
	case c.calls <- func() { fn(c.sess); close(ran) }:
	case <-c.done:
		return c.Err()
	}
	<-ran
	return nil
}

// Await runs fn on the session goroutine and waits for the promise it
// returns to settle, or for ctx to end.
func (c *Conn) Await(ctx context.Context, fn func(s *Session) *Promise) (any, error) {
	type result struct {
		v   any
		err error
	}
	res := make(chan result, 1)
	err := c.Do(func(s *Session) {
		fn(s).Then(func(v any) {
			res <- result{v: v}
		}, func(err error) {
			res <- result{err: err}
		})
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-res:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close aborts the session with reason and waits for the goroutines.
func (c *Conn) Close(reason error) error {
	_ = c.Do(func(s *Session) { _ = s.Close(reason) })
	return c.Wait()
}

// Wait blocks until the connection's goroutines exit and returns the
// first stream write error, if any.
func (c *Conn) Wait() error {
	return c.g.Wait()
}

// Done is closed once the session has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the session's *DisconnectedError after Done, else nil.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.sess.Err()
	default:
		return nil
	}
}

// Stats returns the session's table sizes.
func (c *Conn) Stats() (Stats, error) {
	var st Stats
	err := c.Do(func(s *Session) { st = s.Stats() })
	return st, err
}
