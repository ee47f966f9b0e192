// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"errors"
	"fmt"
	"io"
	"net"

	jsoniter "github.com/json-iterator/go"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// StreamTransport frames messages as a stream of JSON values over a
// byte stream. Unlike [Pipe], Send and Recv block; use it through [Conn]
// or from goroutines that do not own a session.
type StreamTransport struct {
	rwc io.ReadWriteCloser
	rd  *readTracker
	enc *jsoniter.Encoder
	dec *jsoniter.Decoder
}

// NewStreamTransport returns a transport reading and writing rwc.
func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	rd := &readTracker{r: rwc}
	return &StreamTransport{
		rwc: rwc,
		rd:  rd,
		enc: wireJSON.NewEncoder(rwc),
		dec: wireJSON.NewDecoder(rd),
	}
}

// readTracker remembers the last error of the stream under the decoder,
// which reports running out of input as a syntax error.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

// Send writes m as one JSON value followed by a newline.
func (t *StreamTransport) Send(m *Message) error {
	if err := t.enc.Encode(m); err != nil {
		return closedOr(fmt.Errorf("captp: write %s: %w", m.Type, err), err)
	}
	return nil
}

// Recv reads the next message. End of stream is reported as ErrClosed.
func (t *StreamTransport) Recv() (*Message, error) {
	m := new(Message)
	if err := t.dec.Decode(m); err != nil {
		if t.rd.err != nil {
			err = t.rd.err
		}
		return nil, closedOr(fmt.Errorf("captp: read: %w", err), err)
	}
	return m, nil
}

// Close closes the underlying stream.
func (t *StreamTransport) Close() error {
	return t.rwc.Close()
}

func closedOr(wrapped, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return wrapped
}
