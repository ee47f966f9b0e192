// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"fmt"
	"strconv"
)

type handler func(s *Session, m *Message)

// handlers routes validated inbound messages by tag.
var handlers = map[Tag]handler{
	TagBootstrap: (*Session).handleBootstrap,
	TagCall:      (*Session).handleCall,
	TagReturn:    (*Session).handleReturn,
	TagResolve:   (*Session).handleResolve,
	TagAbort:     (*Session).handleAbort,
}

// Deliver processes one inbound message. Messages must be delivered in
// arrival order, one at a time, on the goroutine that owns the session.
//
// Peer misbehavior is returned as a *ProtocolError after being logged and
// counted; the session stays usable. Delivering to a closed session
// returns its *DisconnectedError.
func (s *Session) Deliver(m *Message) error {
	if s.state == Closed {
		return s.closeErr
	}
	s.start()
	s.metrics.received(m.Type)
	s.fault = nil
	if err := m.Validate(); err != nil {
		s.malformed(m, err)
	} else {
		handlers[m.Type](s, m)
	}
	if pe := s.fault; pe != nil {
		s.fault = nil
		return pe
	}
	return nil
}

// malformed rejects whatever entry m names. A recurring malformed
// BOOTSTRAP ends the session.
func (s *Session) malformed(m *Message, err error) {
	kind := ViolationMalformed
	if _, ok := handlers[m.Type]; !ok {
		kind = ViolationUnknownType
	}
	pe := &ProtocolError{Kind: kind, Type: m.Type, Err: err}
	switch m.Type {
	case TagBootstrap:
		s.violation(pe)
		s.criticalFaults++
		if s.criticalFaults >= maxCriticalFaults {
			_ = s.Close(pe)
		}
	case TagCall:
		pe.ID = idString(m.QuestionID)
		s.violation(pe)
		if m.QuestionID != 0 {
			if _, dup := s.answers[m.QuestionID]; !dup {
				s.answer(m.QuestionID, Rejected(pe))
			}
		}
	case TagReturn:
		pe.ID = idString(m.AnswerID)
		s.violation(pe)
		if q, ok := s.questions.remove(m.AnswerID); ok {
			s.metrics.questionsDone(1)
			_ = q.resolver.Reject(pe)
		}
	case TagResolve:
		if m.PromiseID != nil {
			pe.ID = m.PromiseID.String()
		}
		s.violation(pe)
		if m.PromiseID != nil {
			if r, ok := s.imports.take(m.PromiseID.Flip()); ok {
				_ = r.Reject(pe)
			}
		}
	case TagAbort:
		s.violation(pe)
		s.disconnect(pe)
	default:
		s.violation(pe)
	}
}

func idString(id uint32) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}

func (s *Session) handleBootstrap(m *Message) {
	if _, dup := s.answers[m.QuestionID]; dup {
		s.violation(&ProtocolError{Kind: ViolationDuplicateAnswer, Type: m.Type, ID: idString(m.QuestionID)})
		return
	}
	s.answer(m.QuestionID, s.bootstrapValue())
}

func (s *Session) bootstrapValue() (p *Promise) {
	switch {
	case s.bootstrapFunc != nil:
		defer func() {
			if r := recover(); r != nil {
				p = Rejected(fmt.Errorf("captp: bootstrap factory panicked: %v", r))
			}
		}()
		v, err := s.bootstrapFunc()
		if err != nil {
			return Rejected(err)
		}
		return Resolved(v)
	case s.bootstrap != nil:
		return Resolved(s.bootstrap)
	}
	return Rejected(ErrNoBootstrap)
}

func (s *Session) handleCall(m *Message) {
	id := m.QuestionID
	if _, dup := s.answers[id]; dup {
		s.violation(&ProtocolError{Kind: ViolationDuplicateAnswer, Type: m.Type, ID: idString(id)})
		return
	}
	target, err := s.target(*m.Target)
	if err != nil {
		s.log.Debug("call rejected", "id", id, "error", err)
		s.answer(id, Rejected(err))
		return
	}
	args, err := s.arguments(m.Method.Args)
	if err != nil {
		s.log.Warn("malformed call arguments", "id", id, "error", err)
		s.answer(id, Rejected(err))
		return
	}
	s.answer(id, E(target, m.Method.Name, args...))
}

// target resolves a CALL target without allocating: only our exports and
// our answers to the peer's questions can be called.
func (s *Session) target(wire Slot) (any, error) {
	slot := wire.Flip()
	switch {
	case slot.Local && slot.Kind != KindAnswer:
		if v, ok := s.exports.value(slot); ok {
			return v, nil
		}
	case !slot.Local && slot.Kind == KindAnswer:
		if p, ok := s.answers[slot.ID]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, slot)
}

func (s *Session) arguments(d CapData) ([]any, error) {
	v, err := s.marshal.Unserialize(d)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("captp: call arguments are %T, not a list", v)
}

func (s *Session) handleReturn(m *Message) {
	q, ok := s.questions.remove(m.AnswerID)
	if !ok {
		s.violation(&ProtocolError{Kind: ViolationUnknownAnswer, Type: m.Type, ID: idString(m.AnswerID)})
		return
	}
	s.metrics.questionsDone(1)
	s.settleFrom(q.resolver, m.Result, m.Exception)
}

func (s *Session) handleResolve(m *Message) {
	slot := m.PromiseID.Flip()
	r, ok := s.imports.take(slot)
	if !ok {
		kind := ViolationUnknownPromise
		if _, settled := s.imports.settled[slot]; settled {
			kind = ViolationDoubleResolve
		}
		s.violation(&ProtocolError{Kind: kind, Type: m.Type, ID: slot.String()})
		return
	}
	s.settleFrom(r, m.Result, m.Exception)
}

func (s *Session) handleAbort(m *Message) {
	v, err := s.marshal.Unserialize(*m.Exception)
	if err != nil {
		s.disconnect(err)
		return
	}
	s.disconnect(asError(v))
}
