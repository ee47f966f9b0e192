// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp_test

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"code.hybscloud.com/captp"
)

// fakeTable is a codec table that exports every capability as a fresh
// object slot.
type fakeTable struct {
	slots map[any]captp.Slot
	vals  map[captp.Slot]any
	calls int
}

func newFakeTable() *fakeTable {
	return &fakeTable{slots: make(map[any]captp.Slot), vals: make(map[captp.Slot]any)}
}

func (f *fakeTable) marshaler() captp.Marshaler {
	return captp.Marshaler{
		ValToSlot: func(v any) (captp.Slot, error) {
			f.calls++
			if s, ok := f.slots[v]; ok {
				return s, nil
			}
			s := captp.Slot{Kind: captp.KindObject, Local: true, ID: uint32(len(f.slots) + 1)}
			f.slots[v] = s
			f.vals[s] = v
			return s, nil
		},
		SlotToVal: func(s captp.Slot) (any, error) {
			f.calls++
			if v, ok := f.vals[s]; ok {
				return v, nil
			}
			return nil, captp.ErrUnknownTarget
		},
	}
}

func TestSerializeData(t *testing.T) {
	m := newFakeTable().marshaler()
	cases := []struct {
		in   any
		body string
		out  any
	}{
		{nil, `null`, nil},
		{true, `true`, true},
		{"hi", `"hi"`, "hi"},
		{42, `42`, int64(42)},
		{uint8(7), `7`, int64(7)},
		{1.5, `1.5`, 1.5},
		{[]any{1, "a"}, `[1,"a"]`, []any{int64(1), "a"}},
		{map[string]any{"b": 1, "a": nil}, `{"a":null,"b":1}`, map[string]any{"a": nil, "b": int64(1)}},
		{[]string{"x", "y"}, `["x","y"]`, []any{"x", "y"}},
		{map[string]int{"n": 3}, `{"n":3}`, map[string]any{"n": int64(3)}},
		{int64(math.MaxInt64), `9223372036854775807`, int64(math.MaxInt64)},
		{float64(2), `2.0`, float64(2)},
		{float32(-3), `-3.0`, float64(-3)},
		{1e21, `1e+21`, 1e21},
		{uint64(math.MaxUint64), `18446744073709551615`, uint64(math.MaxUint64)},
		{[]any{2.0, 2}, `[2.0,2]`, []any{2.0, int64(2)}},
	}
	for _, tc := range cases {
		d, err := m.Serialize(tc.in)
		if err != nil {
			t.Fatalf("Serialize(%#v): %v", tc.in, err)
		}
		if d.Body != tc.body || len(d.Slots) != 0 {
			t.Fatalf("Serialize(%#v): got %s %v, want %s", tc.in, d.Body, d.Slots, tc.body)
		}
		v, err := m.Unserialize(d)
		if err != nil {
			t.Fatalf("Unserialize(%s): %v", d.Body, err)
		}
		if !reflect.DeepEqual(v, tc.out) {
			t.Fatalf("Unserialize(%s): got %#v, want %#v", d.Body, v, tc.out)
		}
	}
}

func TestSerializeSlotsByPosition(t *testing.T) {
	table := newFakeTable()
	m := table.marshaler()
	a, b := newCounter(), newCounter()

	d, err := m.Serialize(map[string]any{"x": []any{a, b, a}})
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Slots) != 2 {
		t.Fatalf("slots: %v", d.Slots)
	}
	if strings.Contains(d.Body, "o+") {
		t.Fatalf("slot name leaked into body: %s", d.Body)
	}
	if table.calls != 2 {
		t.Fatalf("ValToSlot called %d times, want 2", table.calls)
	}

	table.calls = 0
	v, err := m.Unserialize(d)
	if err != nil {
		t.Fatal(err)
	}
	xs := v.(map[string]any)["x"].([]any)
	if xs[0] != a || xs[1] != b || xs[2] != a {
		t.Fatalf("capabilities: %v", xs)
	}
	if table.calls != 2 {
		t.Fatalf("SlotToVal called %d times, want 2", table.calls)
	}
}

func TestSerializeRejects(t *testing.T) {
	m := newFakeTable().marshaler()
	cases := []struct {
		name string
		in   any
		want error
	}{
		{"reserved key", map[string]any{"@qclass": "slot"}, captp.ErrReservedKey},
		{"typed reserved key", map[string]string{"@qclass": "x"}, captp.ErrReservedKey},
		{"nan", math.NaN(), captp.ErrUnsupportedValue},
		{"inf", []any{math.Inf(1)}, captp.ErrUnsupportedValue},
		{"channel", make(chan int), captp.ErrUnsupportedValue},
		{"int keys", map[int]any{1: 1}, captp.ErrUnsupportedValue},
		{"struct", struct{ A int }{1}, captp.ErrUnsupportedValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Serialize(tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSerializeDepth(t *testing.T) {
	m := newFakeTable().marshaler()
	var v any = "leaf"
	for range 100 {
		v = []any{v}
	}
	if _, err := m.Serialize(v); !errors.Is(err, captp.ErrUnsupportedValue) {
		t.Fatalf("got %v", err)
	}
	body := strings.Repeat("[", 100) + strings.Repeat("]", 100)
	if _, err := m.Unserialize(captp.CapData{Body: body}); !errors.Is(err, captp.ErrUnsupportedValue) {
		t.Fatalf("decode: got %v", err)
	}
}

func TestSerializeErrors(t *testing.T) {
	m := newFakeTable().marshaler()
	d, err := m.Serialize(errors.New("oops"))
	if err != nil {
		t.Fatal(err)
	}
	v, err := m.Unserialize(d)
	if err != nil {
		t.Fatal(err)
	}
	re, ok := v.(*captp.RemoteError)
	if !ok || re.Name != "Error" || re.Message != "oops" {
		t.Fatalf("got %#v", v)
	}

	d, _ = m.Serialize(&captp.RemoteError{Name: "RangeError", Message: "too big"})
	v, _ = m.Unserialize(d)
	if re := v.(*captp.RemoteError); re.Name != "RangeError" || re.Message != "too big" {
		t.Fatalf("remote error renamed: %#v", re)
	}
}

func TestUnserializeMalformed(t *testing.T) {
	m := newFakeTable().marshaler()
	cases := []struct {
		name string
		d    captp.CapData
	}{
		{"syntax", captp.CapData{Body: `{`}},
		{"index past end", captp.CapData{Body: `{"@qclass":"slot","index":1}`, Slots: []captp.Slot{{Kind: captp.KindObject, ID: 1}}}},
		{"negative index", captp.CapData{Body: `{"@qclass":"slot","index":-1}`}},
		{"missing index", captp.CapData{Body: `{"@qclass":"slot"}`}},
		{"unknown qclass", captp.CapData{Body: `{"@qclass":"bigint","digits":"1"}`}},
		{"unknown slot", captp.CapData{Body: `{"@qclass":"slot","index":0}`, Slots: []captp.Slot{{Kind: captp.KindObject, ID: 9}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if v, err := m.Unserialize(tc.d); err == nil {
				t.Fatalf("accepted as %#v", v)
			}
		})
	}

	_, err := m.Unserialize(captp.CapData{Body: `[{"@qclass":"slot","index":2}]`})
	var mse *captp.MalformedSlotError
	if !errors.As(err, &mse) || mse.Index != 2 || mse.Len != 0 {
		t.Fatalf("got %v", err)
	}
}
