// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"errors"
	"fmt"
)

// Tag discriminates wire messages.
type Tag string

const (
	TagBootstrap Tag = "BOOTSTRAP"
	TagCall      Tag = "CALL"
	TagReturn    Tag = "RETURN"
	TagResolve   Tag = "RESOLVE"
	TagAbort     Tag = "ABORT"
)

// CallMethod is the method descriptor of a CALL.
type CallMethod struct {
	Name string  `json:"name"`
	Args CapData `json:"args"`
}

// Message is one wire message. Field use per tag:
//
//	BOOTSTRAP { questionId }
//	CALL      { questionId, target, method }
//	RETURN    { answerId, result | exception }
//	RESOLVE   { promiseId, result | exception }
//	ABORT     { exception }
//
// Question ids start at 1; zero means absent.
type Message struct {
	Type       Tag         `json:"type"`
	QuestionID uint32      `json:"questionId,omitempty"`
	AnswerID   uint32      `json:"answerId,omitempty"`
	PromiseID  *Slot       `json:"promiseId,omitempty"`
	Target     *Slot       `json:"target,omitempty"`
	Method     *CallMethod `json:"method,omitempty"`
	Result     *CapData    `json:"result,omitempty"`
	Exception  *CapData    `json:"exception,omitempty"`

	// badSlot is the first slot text that failed to parse on decode.
	badSlot error
}

// wireMessage mirrors Message with slots kept as text.
type wireMessage struct {
	Type       Tag          `json:"type"`
	QuestionID uint32       `json:"questionId,omitempty"`
	AnswerID   uint32       `json:"answerId,omitempty"`
	PromiseID  *string      `json:"promiseId,omitempty"`
	Target     *string      `json:"target,omitempty"`
	Method     *wireMethod  `json:"method,omitempty"`
	Result     *wireCapData `json:"result,omitempty"`
	Exception  *wireCapData `json:"exception,omitempty"`
}

type wireMethod struct {
	Name string      `json:"name"`
	Args wireCapData `json:"args"`
}

type wireCapData struct {
	Body  string   `json:"body"`
	Slots []string `json:"slots"`
}

// UnmarshalJSON decodes a message. A slot that does not parse leaves
// the message readable and makes Validate fail, so the peer's question
// is answered with an exception instead of the stream being dropped.
func (m *Message) UnmarshalJSON(b []byte) error {
	var w wireMessage
	if err := wireJSON.Unmarshal(b, &w); err != nil {
		return err
	}
	*m = Message{Type: w.Type, QuestionID: w.QuestionID, AnswerID: w.AnswerID}
	m.PromiseID = m.slotPtr(w.PromiseID)
	m.Target = m.slotPtr(w.Target)
	if w.Method != nil {
		m.Method = &CallMethod{Name: w.Method.Name, Args: m.capData(w.Method.Args)}
	}
	if w.Result != nil {
		d := m.capData(*w.Result)
		m.Result = &d
	}
	if w.Exception != nil {
		d := m.capData(*w.Exception)
		m.Exception = &d
	}
	return nil
}

func (m *Message) slot(text string) (Slot, bool) {
	s, err := ParseSlot(text)
	if err != nil {
		if m.badSlot == nil {
			m.badSlot = err
		}
		return Slot{}, false
	}
	return s, true
}

func (m *Message) slotPtr(text *string) *Slot {
	if text == nil {
		return nil
	}
	if s, ok := m.slot(*text); ok {
		return &s
	}
	return nil
}

func (m *Message) capData(w wireCapData) CapData {
	d := CapData{Body: w.Body}
	if w.Slots != nil {
		d.Slots = make([]Slot, len(w.Slots))
		for i, text := range w.Slots {
			d.Slots[i], _ = m.slot(text)
		}
	}
	return d
}

var (
	errMissingQuestion = errors.New("missing questionId")
	errMissingAnswer   = errors.New("missing answerId")
	errMissingTarget   = errors.New("missing target")
	errMissingMethod   = errors.New("missing method")
	errMissingPromise  = errors.New("missing promiseId")
	errOutcomeArity    = errors.New("exactly one of result and exception required")
)

// Validate checks the fields the tag requires.
func (m *Message) Validate() error {
	if m.badSlot != nil {
		return m.badSlot
	}
	switch m.Type {
	case TagBootstrap:
		if m.QuestionID == 0 {
			return errMissingQuestion
		}
	case TagCall:
		switch {
		case m.QuestionID == 0:
			return errMissingQuestion
		case m.Target == nil:
			return errMissingTarget
		case m.Method == nil || m.Method.Name == "":
			return errMissingMethod
		}
	case TagReturn:
		if m.AnswerID == 0 {
			return errMissingAnswer
		}
		if (m.Result == nil) == (m.Exception == nil) {
			return errOutcomeArity
		}
	case TagResolve:
		if m.PromiseID == nil {
			return errMissingPromise
		}
		if m.PromiseID.Kind != KindPromise {
			return fmt.Errorf("promiseId %s is not a promise slot", m.PromiseID)
		}
		if (m.Result == nil) == (m.Exception == nil) {
			return errOutcomeArity
		}
	case TagAbort:
		if m.Exception == nil {
			return fmt.Errorf("missing exception")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

func (m *Message) String() string {
	switch m.Type {
	case TagBootstrap:
		return fmt.Sprintf("BOOTSTRAP q%d", m.QuestionID)
	case TagCall:
		name := ""
		if m.Method != nil {
			name = m.Method.Name
		}
		return fmt.Sprintf("CALL q%d %v.%s", m.QuestionID, m.Target, name)
	case TagReturn:
		return fmt.Sprintf("RETURN a%d", m.AnswerID)
	case TagResolve:
		return fmt.Sprintf("RESOLVE %v", m.PromiseID)
	}
	return string(m.Type)
}
