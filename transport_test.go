// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp_test

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"code.hybscloud.com/captp"
	"code.hybscloud.com/iox"
)

func TestPipeFIFO(t *testing.T) {
	a, b := captp.Pipe()
	for i := uint32(1); i <= 5; i++ {
		if err := a.Send(&captp.Message{Type: captp.TagBootstrap, QuestionID: i}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := uint32(1); i <= 5; i++ {
		m, err := b.Recv()
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if m.QuestionID != i {
			t.Fatalf("got q%d, want q%d", m.QuestionID, i)
		}
	}
	if _, err := b.Recv(); !iox.IsWouldBlock(err) {
		t.Fatalf("empty recv: %v", err)
	}
}

func TestPipeFull(t *testing.T) {
	a, b := captp.Pipe()
	n := 0
	for {
		err := a.Send(&captp.Message{Type: captp.TagBootstrap, QuestionID: uint32(n + 1)})
		if iox.IsWouldBlock(err) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n > 1<<16 {
			t.Fatalf("pipe never filled")
		}
	}
	if n == 0 {
		t.Fatalf("pipe accepted nothing")
	}
	if _, err := b.Recv(); err != nil {
		t.Fatal(err)
	}
	if err := a.Send(&captp.Message{Type: captp.TagBootstrap, QuestionID: 999}); err != nil {
		t.Fatalf("send after recv: %v", err)
	}
}

func TestPipeClose(t *testing.T) {
	a, b := captp.Pipe()
	if err := a.Send(&captp.Message{Type: captp.TagAbort}); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := b.Send(&captp.Message{Type: captp.TagAbort}); !errors.Is(err, captp.ErrClosed) {
		t.Fatalf("send on closed pipe: %v", err)
	}
	// Messages queued before Close are still delivered.
	if m, err := b.Recv(); err != nil || m.Type != captp.TagAbort {
		t.Fatalf("queued message: %v %v", m, err)
	}
	if _, err := b.Recv(); !errors.Is(err, captp.ErrClosed) {
		t.Fatalf("drained recv: %v", err)
	}
	if _, err := a.Recv(); !errors.Is(err, captp.ErrClosed) {
		t.Fatalf("closer recv: %v", err)
	}
}

func TestPipeConcurrent(t *testing.T) {
	skipRace(t)
	a, b := captp.Pipe()
	const n = 1000
	var wg sync.WaitGroup
	wg.Go(func() {
		var bo iox.Backoff
		for i := uint32(1); i <= n; {
			err := a.Send(&captp.Message{Type: captp.TagBootstrap, QuestionID: i})
			if iox.IsWouldBlock(err) {
				bo.Wait()
				continue
			}
			bo.Reset()
			i++
		}
	})
	var bo iox.Backoff
	for want := uint32(1); want <= n; {
		m, err := b.Recv()
		if iox.IsWouldBlock(err) {
			bo.Wait()
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if m.QuestionID != want {
			t.Fatalf("got q%d, want q%d", m.QuestionID, want)
		}
		bo.Reset()
		want++
	}
	wg.Wait()
}

func TestStreamTransport(t *testing.T) {
	c1, c2 := net.Pipe()
	a := captp.NewStreamTransport(c1)
	b := captp.NewStreamTransport(c2)

	sent := &captp.Message{
		Type:     captp.TagReturn,
		AnswerID: 2,
		Result:   data(`[{"@qclass":"slot","index":0}]`, slot(t, "p+1")),
	}
	errc := make(chan error, 1)
	go func() { errc <- a.Send(sent) }()
	got, err := b.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if got.Type != captp.TagReturn || got.AnswerID != 2 || got.Result.Body != sent.Result.Body ||
		len(got.Result.Slots) != 1 || got.Result.Slots[0] != sent.Result.Slots[0] {
		t.Fatalf("got %+v", got)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Recv(); !errors.Is(err, captp.ErrClosed) {
		t.Fatalf("recv after peer close: %v", err)
	}
	if err := a.Send(sent); !errors.Is(err, captp.ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestStreamTransportGarbage(t *testing.T) {
	c1, c2 := net.Pipe()
	b := captp.NewStreamTransport(c2)
	go func() {
		_, _ = c1.Write([]byte("{not json\n"))
		_ = c1.Close()
	}()
	_, err := b.Recv()
	if err == nil || errors.Is(err, captp.ErrClosed) {
		t.Fatalf("got %v, want a decode error", err)
	}
	_ = b.Close()
}

func TestStreamTransportTrailingNewline(t *testing.T) {
	c1, c2 := net.Pipe()
	b := captp.NewStreamTransport(c2)
	go func() {
		_, _ = c1.Write([]byte(`{"type":"BOOTSTRAP","questionId":1}` + "\n"))
		_, _ = c1.Write([]byte("\n  \n"))
		_ = c1.Close()
	}()
	m, err := b.Recv()
	if err != nil || m.Type != captp.TagBootstrap || m.QuestionID != 1 {
		t.Fatalf("got %v %v", m, err)
	}
	if _, err := b.Recv(); !errors.Is(err, captp.ErrClosed) {
		t.Fatalf("recv at end of stream: %v", err)
	}
}

func TestStreamTransportBadSlot(t *testing.T) {
	c1, c2 := net.Pipe()
	b := captp.NewStreamTransport(c2)
	go func() {
		_, _ = c1.Write([]byte(`{"type":"CALL","questionId":4,"target":"zz9","method":{"name":"get","args":{"body":"[]","slots":[]}}}` + "\n"))
		_, _ = c1.Write([]byte(`{"type":"RETURN","answerId":2,"result":{"body":"null","slots":["o+1","q"]}}` + "\n"))
		_ = c1.Close()
	}()
	m, err := b.Recv()
	if err != nil {
		t.Fatalf("recv call: %v", err)
	}
	if m.Type != captp.TagCall || m.QuestionID != 4 || m.Method == nil || m.Method.Name != "get" {
		t.Fatalf("got %+v", m)
	}
	if err := m.Validate(); err == nil || !strings.Contains(err.Error(), "zz9") {
		t.Fatalf("validate: %v", err)
	}
	m, err = b.Recv()
	if err != nil {
		t.Fatalf("recv return: %v", err)
	}
	if m.AnswerID != 2 || m.Result == nil || len(m.Result.Slots) != 2 {
		t.Fatalf("got %+v", m)
	}
	if err := m.Validate(); err == nil {
		t.Fatalf("validate accepted a bad result slot")
	}
}
