package wire

import (
	"bytes"
	"math"
	"reflect"
	"testing"

	errspkg "github.com/couriermq/courier/internal/errors"
)

func TestClassifyLadder(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Tag
	}{
		{"nil", nil, TagNull},
		{"string", "hello", TagString},
		{"empty string", "", TagString},
		{"bytes", []byte{1, 2, 3}, TagBytes},
		{"zero", 0, TagUint},
		{"int", 42, TagUint},
		{"max int32", math.MaxInt32, TagUint},
		{"uint16", uint16(9), TagUint},
		{"integral float", float64(7), TagUint},
		{"negative int", -1, TagObject},
		{"past int32", int64(math.MaxInt32) + 1, TagObject},
		{"fractional float", 3.5, TagObject},
		{"negative float", -2.0, TagObject},
		{"nan", math.NaN(), TagObject},
		{"bool", true, TagObject},
		{"map", map[string]any{"a": 1}, TagObject},
		{"struct", struct{ A int }{1}, TagObject},
		{"slice", []any{"a", 1}, TagArray},
		{"int slice", []int{1, 2}, TagArray},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Classify(tt.in)
			if err != nil {
				t.Fatalf("Classify(%v): %v", tt.in, err)
			}
			if v.Tag() != tt.want {
				t.Errorf("Classify(%v) tag = %v, want %v", tt.in, v.Tag(), tt.want)
			}
		})
	}
}

type pairList []int

func (pairList) WireTypeName() string         { return "pairList" }
func (pairList) MarshalWire() ([]byte, error) { return []byte(`[0]`), nil }

// array-like values classify as arrays even when they carry their own
// marshalling
func TestClassifyArrayBeatsMarshaler(t *testing.T) {
	v, err := Classify(pairList{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if v.Tag() != TagArray {
		t.Errorf("tag = %v, want %v", v.Tag(), TagArray)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "broker", "broker"},
		{"bytes", []byte{0, 0xFF, 7}, []byte{0, 0xFF, 7}},
		{"uint", 42, uint64(42)},
		{"uint zero", 0, uint64(0)},
		{"array", []any{"a", 1, nil}, []any{"a", uint64(1), nil}},
		{"nested array", []any{[]any{"x"}}, []any{[]any{"x"}}},
		{"object", map[string]any{"a": float64(1)}, map[string]any{"a": float64(1)}},
		{"negative via json", -5, float64(-5)},
		{"fraction via json", 1.25, float64(1.25)},
		{"nan via json", math.NaN(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriteBuffer()
			if err := Serialize(w, tt.in); err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			got, err := Deserialize(NewReadBuffer(w.Drain()))
			if err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("round trip = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEncodedShape(t *testing.T) {
	w := NewWriteBuffer()
	if err := Serialize(w, "hi"); err != nil {
		t.Fatal(err)
	}
	if got := w.Drain(); !bytes.Equal(got, []byte{byte(TagString), 0x02, 'h', 'i'}) {
		t.Errorf("string frame = %x", got)
	}

	if err := Serialize(w, 300); err != nil {
		t.Fatal(err)
	}
	if got := w.Drain(); !bytes.Equal(got, []byte{byte(TagUint), 0xAC, 0x02}) {
		t.Errorf("uint frame = %x", got)
	}

	if err := Serialize(w, nil); err != nil {
		t.Fatal(err)
	}
	if got := w.Drain(); !bytes.Equal(got, []byte{byte(TagNull)}) {
		t.Errorf("null frame = %x", got)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	for _, tag := range []byte{7, 0x20, 0xFF} {
		_, err := Decode(NewReadBuffer([]byte{tag}))
		if !errspkg.IsKind(err, errspkg.KindUnsupported) {
			t.Errorf("tag 0x%02x: err = %v, want unsupported", tag, err)
		}
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	// a full string frame, cut one byte short
	w := NewWriteBuffer()
	if err := Serialize(w, "courier"); err != nil {
		t.Fatal(err)
	}
	frame := w.Drain()
	_, err := Decode(NewReadBuffer(frame[:len(frame)-1]))
	if !errspkg.IsKind(err, errspkg.KindEndOfStream) {
		t.Errorf("err = %v, want end of stream", err)
	}
}

func TestMaterializeMalformedObject(t *testing.T) {
	if _, err := Materialize(Object(`{"broken`)); err == nil {
		t.Error("expected error for malformed JSON body")
	}
}

func TestDecodeArrayCountBeyondBuffer(t *testing.T) {
	// array claiming 200 elements with no bodies behind it
	in := []byte{byte(TagArray), 0xC8, 0x01}
	if _, err := Decode(NewReadBuffer(in)); !errspkg.IsKind(err, errspkg.KindEndOfStream) {
		t.Errorf("err = %v, want end of stream", err)
	}
}
