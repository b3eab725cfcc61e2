package wire

import (
	"errors"
	"reflect"
	"testing"

	"github.com/couriermq/courier/internal/jsoncodec"
)

type temperature struct {
	Celsius float64 `json:"celsius"`
}

func (temperature) WireTypeName() string { return "temperature" }

func (tm temperature) MarshalWire() ([]byte, error) {
	return jsoncodec.Marshal(tm)
}

type brokenMarshal struct {
	Label string
}

func (brokenMarshal) WireTypeName() string { return "broken" }

func (brokenMarshal) MarshalWire() ([]byte, error) {
	return nil, errors.New("marshal refused")
}

func TestMarshalledRoundTripWithReviver(t *testing.T) {
	reg := NewReviverRegistry()
	err := reg.Register("temperature", func(data []byte) (any, error) {
		var tm temperature
		if err := jsoncodec.Unmarshal(data, &tm); err != nil {
			return nil, err
		}
		return tm, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	w := NewWriteBuffer()
	if err := Serialize(w, temperature{Celsius: 21.5}); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	v, err := Decode(NewReadBuffer(w.Drain()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Tag() != TagMarshalled {
		t.Fatalf("tag = %v, want %v", v.Tag(), TagMarshalled)
	}

	// route the lookup through the test registry
	raw := v.(Marshalled)
	var body marshalledBody
	if err := jsoncodec.Unmarshal(raw, &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.Type != "temperature" {
		t.Fatalf("type = %q", body.Type)
	}
	fn, ok := reg.Lookup(body.Type)
	if !ok {
		t.Fatal("reviver not found")
	}
	got, err := fn(body.Data)
	if err != nil {
		t.Fatalf("revive: %v", err)
	}
	if got != (temperature{Celsius: 21.5}) {
		t.Fatalf("revived = %#v", got)
	}
}

func TestMarshalledWithoutReviverDecodesGeneric(t *testing.T) {
	w := NewWriteBuffer()
	if err := Serialize(w, temperature{Celsius: -3}); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := Deserialize(NewReadBuffer(w.Drain()))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	want := map[string]any{"celsius": float64(-3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestFailedMarshalFallsBackToGeneric(t *testing.T) {
	v, err := Classify(brokenMarshal{Label: "x"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if v.Tag() != TagObject {
		t.Fatalf("tag = %v, want %v", v.Tag(), TagObject)
	}

	got, err := Materialize(v)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	want := map[string]any{"Label": "x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestReviverRegistryRules(t *testing.T) {
	reg := NewReviverRegistry()
	nop := func([]byte) (any, error) { return nil, nil }

	if err := reg.Register("", nop); err == nil {
		t.Error("empty name should fail")
	}
	if err := reg.Register("x", nil); err == nil {
		t.Error("nil reviver should fail")
	}
	if err := reg.Register("x", nop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register("x", nop); err == nil {
		t.Error("duplicate name should fail")
	}
	if _, ok := reg.Lookup("x"); !ok {
		t.Error("Lookup should find registered name")
	}
}
