// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// Transport carries messages between two sessions in order, without
// duplication. Send and Recv are non-blocking: either may return
// iox.ErrWouldBlock, after which the caller retries later. Once the
// transport is closed and drained both return ErrClosed.
type Transport interface {
	Send(m *Message) error
	Recv() (*Message, error)
	Close() error
}

// pipeCapacity bounds each direction of a Pipe. Small enough that a burst
// of pipelined calls exercises the session backlog.
const pipeCapacity = 8

// PipeEnd is one side of an in-memory transport created by [Pipe].
// Each end must be used by a single goroutine.
type PipeEnd struct {
	sendQ  *lfq.SPSC[*Message]
	recvQ  *lfq.SPSC[*Message]
	closed *atomix.Uint32
	serial Serial
}

// pipePair holds both ends and their queues in a single allocation.
type pipePair struct {
	a      PipeEnd
	b      PipeEnd
	closed atomix.Uint32
	ab     lfq.SPSC[*Message]
	ba     lfq.SPSC[*Message]
}

// Pipe creates a connected pair of in-memory transports backed by
// bounded lock-free SPSC queues, one per direction. Closing either end
// closes both.
func Pipe() (*PipeEnd, *PipeEnd) {
	s := nextSerial()
	pair := &pipePair{}
	pair.ab.Init(pipeCapacity)
	pair.ba.Init(pipeCapacity)
	pair.a = PipeEnd{sendQ: &pair.ab, recvQ: &pair.ba, closed: &pair.closed, serial: s}
	pair.b = PipeEnd{sendQ: &pair.ba, recvQ: &pair.ab, closed: &pair.closed, serial: s}
	return &pair.a, &pair.b
}

// Serial returns the serial shared by both ends of the pipe.
func (p *PipeEnd) Serial() Serial {
	return p.serial
}

// Send enqueues m, returning iox.ErrWouldBlock when the queue is full.
func (p *PipeEnd) Send(m *Message) error {
	if p.closed.Load() != 0 {
		return ErrClosed
	}
	return p.sendQ.Enqueue(&m)
}

// Recv dequeues the next message, returning iox.ErrWouldBlock when none
// is ready. Messages sent before Close are still delivered.
func (p *PipeEnd) Recv() (*Message, error) {
	m, err := p.recvQ.Dequeue()
	if err == nil {
		return m, nil
	}
	if p.closed.Load() == 0 {
		return nil, iox.ErrWouldBlock
	}
	// The peer may have enqueued between the dequeue and the close check.
	if m, err = p.recvQ.Dequeue(); err == nil {
		return m, nil
	}
	return nil, ErrClosed
}

// Close closes both directions. It never blocks and may be called twice.
func (p *PipeEnd) Close() error {
	p.closed.Add(1)
	return nil
}
