// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const (
	qclassKey   = "@qclass"
	qclassSlot  = "slot"
	qclassError = "error"

	// maxDepth bounds nesting of passed data in both directions.
	maxDepth = 64
)

// bodyJSON encodes CapData bodies. UseNumber keeps numbers as text so
// integers and floats decode to the type they were sent as.
var bodyJSON = jsoniter.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// CapData is a serialized value: a JSON body plus the slots it references.
// Capabilities in the body are positional indices into Slots, never raw
// slot names, so a peer can only name what the message itself carries.
type CapData struct {
	Body  string `json:"body"`
	Slots []Slot `json:"slots"`
}

// Marshaler converts between values and CapData.
//
// ValToSlot is consulted for every capability (Object, *Promise, *Presence)
// the first time it appears in one Serialize call; SlotToVal for every slot
// the first time its index appears in one Unserialize call. The Session
// implements both against its reference tables.
type Marshaler struct {
	ValToSlot func(v any) (Slot, error)
	SlotToVal func(s Slot) (any, error)
}

// Serialize encodes v. Data is passed by copy: nil, bool, strings, numbers,
// errors, slices and string-keyed maps. Capabilities are passed by slot.
func (m Marshaler) Serialize(v any) (CapData, error) {
	enc := encoder{m: m, index: make(map[any]int)}
	tree, err := enc.encode(v, 0)
	if err != nil {
		return CapData{}, err
	}
	body, err := bodyJSON.MarshalToString(tree)
	if err != nil {
		return CapData{}, fmt.Errorf("captp: encode body: %w", err)
	}
	return CapData{Body: body, Slots: enc.slots}, nil
}

// Unserialize decodes d. A slot index outside d.Slots fails with
// *MalformedSlotError.
func (m Marshaler) Unserialize(d CapData) (any, error) {
	var tree any
	if err := bodyJSON.UnmarshalFromString(d.Body, &tree); err != nil {
		return nil, fmt.Errorf("captp: decode body: %w", err)
	}
	dec := decoder{m: m, slots: d.Slots, vals: make([]any, len(d.Slots)), done: make([]bool, len(d.Slots))}
	return dec.decode(tree, 0)
}

type encoder struct {
	m     Marshaler
	slots []Slot
	index map[any]int
}

func (e *encoder) encode(v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedValue, maxDepth)
	}
	switch t := v.(type) {
	case nil, bool, string:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return uint64(t), nil
	case uint8:
		return uint64(t), nil
	case uint16:
		return uint64(t), nil
	case uint32:
		return uint64(t), nil
	case uint64:
		return t, nil
	case float32:
		return e.float(float64(t))
	case float64:
		return e.float(t)
	case *Promise, *Presence, Object:
		return e.slotRef(t)
	case error:
		return errorBody(t), nil
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			y, err := e.encode(x, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = y
		}
		return out, nil
	case map[string]any:
		if _, ok := t[qclassKey]; ok {
			return nil, ErrReservedKey
		}
		out := make(map[string]any, len(t))
		for k, x := range t {
			y, err := e.encode(x, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = y
		}
		return out, nil
	}
	return e.reflect(reflect.ValueOf(v), depth)
}

func (e *encoder) float(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	// Floats always carry a fraction or exponent on the wire.
	text := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(text, ".eE") {
		text += ".0"
	}
	return jsoniter.Number(text), nil
}

// reflect handles typed slices and string-keyed maps.
func (e *encoder) reflect(rv reflect.Value, depth int) (any, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			y, err := e.encode(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = y
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if k == qclassKey {
				return nil, ErrReservedKey
			}
			y, err := e.encode(iter.Value().Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = y
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, rv.Type())
}

func (e *encoder) slotRef(v any) (any, error) {
	if !reflect.TypeOf(v).Comparable() {
		return nil, fmt.Errorf("%w: capability %T is not comparable", ErrUnsupportedValue, v)
	}
	idx, ok := e.index[v]
	if !ok {
		s, err := e.m.ValToSlot(v)
		if err != nil {
			return nil, err
		}
		idx = len(e.slots)
		e.slots = append(e.slots, s)
		e.index[v] = idx
	}
	return map[string]any{qclassKey: qclassSlot, "index": idx}, nil
}

func errorBody(err error) map[string]any {
	name := "Error"
	var re *RemoteError
	if errors.As(err, &re) {
		return map[string]any{qclassKey: qclassError, "name": re.Name, "message": re.Message}
	}
	return map[string]any{qclassKey: qclassError, "name": name, "message": err.Error()}
}

type decoder struct {
	m     Marshaler
	slots []Slot
	vals  []any
	done  []bool
}

// number is satisfied by both encoding/json and jsoniter number types.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// decodeNumber maps a fraction or exponent to float64, other integers
// to int64, and integers past MaxInt64 to uint64.
func decodeNumber(n number) (any, error) {
	text := n.String()
	if strings.ContainsAny(text, ".eE") {
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("captp: decode number %s: %w", text, err)
		}
		return f, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	u, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("captp: decode number %s: %w", text, err)
	}
	return u, nil
}

func (d *decoder) decode(x any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedValue, maxDepth)
	}
	switch t := x.(type) {
	case number:
		return decodeNumber(t)
	case []any:
		out := make([]any, len(t))
		for i, y := range t {
			v, err := d.decode(y, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		if q, ok := t[qclassKey]; ok {
			return d.special(q, t)
		}
		out := make(map[string]any, len(t))
		for k, y := range t {
			v, err := d.decode(y, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return x, nil
}

func (d *decoder) special(q any, t map[string]any) (any, error) {
	switch q {
	case qclassSlot:
		n, ok := t["index"].(number)
		if !ok {
			return nil, fmt.Errorf("captp: slot marker without index")
		}
		i64, err := n.Int64()
		if err != nil || i64 < 0 || i64 >= int64(len(d.slots)) {
			return nil, &MalformedSlotError{Index: int(i64), Len: len(d.slots)}
		}
		idx := int(i64)
		if d.done[idx] {
			return d.vals[idx], nil
		}
		v, err := d.m.SlotToVal(d.slots[idx])
		if err != nil {
			return nil, err
		}
		d.vals[idx], d.done[idx] = v, true
		return v, nil
	case qclassError:
		name, _ := t["name"].(string)
		msg, _ := t["message"].(string)
		return &RemoteError{Name: name, Message: msg}, nil
	}
	return nil, fmt.Errorf("captp: unknown @qclass %v", q)
}
