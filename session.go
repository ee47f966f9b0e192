// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"fmt"
	"log/slog"

	"code.hybscloud.com/iox"
)

// State is the lifecycle state of a Session.
type State uint8

const (
	Unstarted State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// maxCriticalFaults is the number of malformed BOOTSTRAP messages after
// which the session is aborted.
const maxCriticalFaults = 2

// Session is one side of a CapTP connection.
//
// A Session is single-threaded: inbound delivery (Deliver, Step), outbound
// calls (Bootstrap, E, Presence.Call) and promise callbacks must all run on
// the goroutine that owns it. [Conn] provides such a goroutine for stream
// transports; [Drain] and [Await] drive sessions on the calling goroutine.
type Session struct {
	serial    Serial
	transport Transport
	state     State
	log       *slog.Logger
	metrics   *Metrics

	bootstrap     any
	bootstrapFunc func() (any, error)

	exports   exportTable
	imports   importTable
	questions questionTable
	answers   map[uint32]*Promise
	marshal   Marshaler

	// backlog holds messages the transport refused with ErrWouldBlock,
	// in send order.
	backlog []*Message
	// afterSend runs once the message being serialized has been queued.
	afterSend []func()

	criticalFaults int
	violations     int
	// fault is the last violation seen by the current Deliver.
	fault *ProtocolError

	closeErr *DisconnectedError
	onClose  []func(error)
}

// Stats is a snapshot of a session's table sizes.
type Stats struct {
	Exports    int
	Imports    int
	Settled    int
	Questions  int
	Answers    int
	Backlog    int
	Violations int
}

// NewSession returns an Unstarted session sending on t.
func NewSession(t Transport, opts ...Option) *Session {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		serial:        nextSerial(),
		transport:     t,
		metrics:       o.metrics,
		bootstrap:     o.bootstrap,
		bootstrapFunc: o.bootstrapFunc,
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s.log = logger.With("session", s.serial)
	if o.name != "" {
		s.log = s.log.With("name", o.name)
	}
	s.resetTables()
	s.marshal = Marshaler{ValToSlot: s.valToSlot, SlotToVal: s.slotToVal}
	return s
}

func (s *Session) resetTables() {
	s.exports = newExportTable()
	s.imports = newImportTable()
	s.questions = newQuestionTable()
	s.answers = make(map[uint32]*Promise)
}

// Serial returns the session's process-wide serial number.
func (s *Session) Serial() Serial {
	return s.serial
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Err returns the *DisconnectedError the session closed with, or nil.
func (s *Session) Err() error {
	if s.closeErr == nil {
		return nil
	}
	return s.closeErr
}

// OnClose registers fn to run once when the session closes.
func (s *Session) OnClose(fn func(error)) {
	if s.state == Closed {
		fn(s.closeErr)
		return
	}
	s.onClose = append(s.onClose, fn)
}

// Stats returns current table sizes.
func (s *Session) Stats() Stats {
	return Stats{
		Exports:    len(s.exports.bySlot),
		Imports:    len(s.imports.bySlot),
		Settled:    len(s.imports.settled),
		Questions:  len(s.questions.pending),
		Answers:    len(s.answers),
		Backlog:    len(s.backlog),
		Violations: s.violations,
	}
}

// Marshaler returns the session's slot codec.
func (s *Session) Marshaler() Marshaler {
	return s.marshal
}

func (s *Session) start() {
	if s.state == Unstarted {
		s.state = Active
		s.metrics.started()
	}
}

// Bootstrap asks the peer for its bootstrap object. The returned promise
// may be used as a call target at once; calls pipeline on the answer.
func (s *Session) Bootstrap() *Promise {
	if s.state == Closed {
		return Rejected(s.closeErr)
	}
	s.start()
	q := s.questions.alloc(s, "")
	s.metrics.questionAdded()
	s.send(&Message{Type: TagBootstrap, QuestionID: q.id})
	return q.promise
}

// call sends CALL to target, a slot in this side's naming.
func (s *Session) call(target Slot, method string, args []any) *Promise {
	if s.state == Closed {
		return Rejected(s.closeErr)
	}
	s.start()
	if args == nil {
		args = []any{}
	}
	data, err := s.serialize(args)
	if err != nil {
		return Rejected(fmt.Errorf("captp: serialize arguments of %s: %w", method, err))
	}
	q := s.questions.alloc(s, method)
	s.metrics.questionAdded()
	s.send(&Message{
		Type:       TagCall,
		QuestionID: q.id,
		Target:     &target,
		Method:     &CallMethod{Name: method, Args: data},
	})
	return q.promise
}

// Close sends ABORT carrying reason, then tears the session down.
// Closing a closed session is a no-op.
func (s *Session) Close(reason error) error {
	if s.state == Closed {
		return nil
	}
	if reason == nil {
		reason = ErrClosed
	}
	s.flush()
	if s.state != Closed && len(s.backlog) == 0 {
		data, err := s.marshal.Serialize(reason)
		if err == nil {
			if err = s.transport.Send(&Message{Type: TagAbort, Exception: &data}); err == nil {
				s.metrics.sent(TagAbort)
			}
		}
	}
	s.disconnect(reason)
	return nil
}

// send queues m behind any backlog. A transport failure other than
// ErrWouldBlock is session-fatal.
func (s *Session) send(m *Message) {
	if s.state == Closed {
		return
	}
	if len(s.backlog) > 0 {
		s.backlog = append(s.backlog, m)
	} else if err := s.transport.Send(m); err != nil {
		if !iox.IsWouldBlock(err) {
			s.disconnect(err)
			return
		}
		s.backlog = append(s.backlog, m)
	}
	s.metrics.sent(m.Type)
	hooks := s.afterSend
	s.afterSend = nil
	for _, h := range hooks {
		h()
	}
}

// flush retries the backlog and reports whether anything was sent.
func (s *Session) flush() bool {
	progress := false
	for len(s.backlog) > 0 && s.state != Closed {
		if err := s.transport.Send(s.backlog[0]); err != nil {
			if iox.IsWouldBlock(err) {
				return progress
			}
			s.disconnect(err)
			return true
		}
		s.backlog[0] = nil
		s.backlog = s.backlog[1:]
		progress = true
	}
	return progress
}

// disconnect rejects every outstanding question and imported promise with
// one shared reason and discards all tables.
func (s *Session) disconnect(reason error) {
	if s.state == Closed {
		return
	}
	wasActive := s.state == Active
	s.state = Closed
	derr := &DisconnectedError{Reason: reason}
	s.closeErr = derr

	questions := s.questions
	imports := s.imports
	s.resetTables()
	s.backlog = nil
	s.afterSend = nil

	s.metrics.questionsDone(len(questions.pending))
	s.metrics.closed(wasActive)
	s.log.Info("session closed", "reason", reason,
		"questions", len(questions.pending), "imports", len(imports.resolvers))

	_ = s.transport.Close()
	for _, id := range questions.ids() {
		_ = questions.pending[id].resolver.Reject(derr)
	}
	for _, slot := range imports.pendingSlots() {
		_ = imports.resolvers[slot].Reject(derr)
	}
	hooks := s.onClose
	s.onClose = nil
	for _, fn := range hooks {
		fn(derr)
	}
}

// valToSlot names v for the peer, exporting it on first sight.
func (s *Session) valToSlot(v any) (Slot, error) {
	switch t := v.(type) {
	case *Presence:
		if t.sess != s {
			return Slot{}, ErrForeignReference
		}
		return t.slot, nil
	case *Promise:
		if slot, ok := s.imports.byVal[t]; ok {
			return slot, nil
		}
		if t.sess == s && t.state == pending && t.follow == nil && t.origin.Kind == KindAnswer {
			if _, ok := s.questions.pending[t.origin.ID]; ok {
				return t.origin, nil
			}
		}
		if slot, ok := s.exports.lookup(t); ok {
			return slot, nil
		}
		slot := s.exports.add(t, KindPromise)
		s.afterSend = append(s.afterSend, func() {
			t.onSettle(func(o Outcome) {
				s.sendResolve(slot, o)
			})
		})
		return slot, nil
	case Object:
		if slot, ok := s.exports.lookup(t); ok {
			return slot, nil
		}
		return s.exports.add(t, KindObject), nil
	}
	return Slot{}, fmt.Errorf("%w: %T is not a capability", ErrUnsupportedValue, v)
}

// slotToVal materializes a slot named by the peer.
func (s *Session) slotToVal(wire Slot) (any, error) {
	slot := wire.Flip()
	if slot.Local {
		switch slot.Kind {
		case KindObject, KindPromise:
			if v, ok := s.exports.value(slot); ok {
				return v, nil
			}
		case KindAnswer:
			if q, ok := s.questions.pending[slot.ID]; ok {
				return q.promise, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, slot)
	}
	switch slot.Kind {
	case KindObject:
		if v, ok := s.imports.bySlot[slot]; ok {
			return v, nil
		}
		p := &Presence{sess: s, slot: slot}
		s.imports.add(slot, p)
		return p, nil
	case KindPromise:
		if v, ok := s.imports.bySlot[slot]; ok {
			return v, nil
		}
		if p, ok := s.imports.settled[slot]; ok {
			return p, nil
		}
		p, r := NewPromise()
		p.sess = s
		p.origin = slot
		s.imports.addPromise(slot, p, r)
		return p, nil
	case KindAnswer:
		if p, ok := s.answers[slot.ID]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, slot)
}

// answer records p as the answer to the peer's question id and returns
// its settlement once known.
func (s *Session) answer(id uint32, p *Promise) {
	s.answers[id] = p
	p.onSettle(func(o Outcome) {
		s.sendOutcome(&Message{Type: TagReturn, AnswerID: id}, o)
	})
}

func (s *Session) sendResolve(slot Slot, o Outcome) {
	s.sendOutcome(&Message{Type: TagResolve, PromiseID: &slot}, o)
}

// sendOutcome fills result or exception of m from o and sends it.
func (s *Session) sendOutcome(m *Message, o Outcome) {
	if s.state == Closed {
		return
	}
	if err, ok := o.GetLeft(); ok {
		m.Exception = s.exception(err)
		s.send(m)
		return
	}
	v, _ := o.GetRight()
	data, err := s.serialize(v)
	if err != nil {
		s.log.Debug("result not serializable", "msg", m.String(), "error", err)
		m.Exception = s.exception(fmt.Errorf("captp: serialize result: %w", err))
		s.send(m)
		return
	}
	m.Result = &data
	s.send(m)
}

// serialize encodes v for the message about to be sent. A failure
// withdraws the exports it made along with their pending hooks.
func (s *Session) serialize(v any) (CapData, error) {
	s.exports.mark()
	data, err := s.marshal.Serialize(v)
	if err != nil {
		s.exports.withdraw()
		s.afterSend = nil
	}
	return data, err
}

// exception serializes err; errors never reference slots.
func (s *Session) exception(err error) *CapData {
	data, serr := s.marshal.Serialize(err)
	if serr != nil {
		data, _ = s.marshal.Serialize(fmt.Errorf("captp: unserializable exception"))
	}
	return &data
}

// settleFrom applies a result or exception to r.
func (s *Session) settleFrom(r *Resolver, result, exception *CapData) {
	if result != nil {
		v, err := s.marshal.Unserialize(*result)
		if err != nil {
			_ = r.Reject(err)
			return
		}
		_ = r.Resolve(v)
		return
	}
	v, err := s.marshal.Unserialize(*exception)
	if err != nil {
		_ = r.Reject(err)
		return
	}
	_ = r.Reject(asError(v))
}

func asError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &RemoteError{Name: "Error", Message: fmt.Sprint(v)}
}

func (s *Session) violation(pe *ProtocolError) {
	s.violations++
	s.fault = pe
	s.metrics.violation(pe.Kind)
	s.log.Warn("protocol violation", "kind", pe.Kind, "type", pe.Type, "id", pe.ID, "error", pe.Err)
}
