package wire

import (
	"math"
	"reflect"

	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/jsoncodec"
)

// Classify maps an arbitrary value onto the protocol's closed value set.
// The dispatch order is part of the protocol: nil, then string, then byte
// string, then a non-negative integer that fits 32 bits, then array, then a
// value carrying its own marshalling, then the generic JSON fallback.
//
// A number that is negative or not integral falls through to the JSON
// fallback rather than the UnsignedInt tag. That is intentional; the wire
// format has no tag for signed or fractional numbers.
func Classify(v any) (Value, error) {
	if v == nil {
		return Null{}, nil
	}
	if val, ok := v.(Value); ok {
		return val, nil
	}

	switch x := v.(type) {
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n := rv.Int(); n >= 0 && n <= math.MaxInt32 {
			return Uint(n), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if n := rv.Uint(); n <= math.MaxInt32 {
			return Uint(n), nil
		}
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == math.Trunc(f) && f >= 0 && f <= math.MaxInt32 {
			return Uint(f), nil
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			// JSON has no representation for non-finite numbers; they
			// encode as null
			return Object([]byte("null")), nil
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return Bytes(b), nil
		}
		elems := make(Array, rv.Len())
		for i := range elems {
			ev, err := Classify(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			elems[i] = ev
		}
		return elems, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return Null{}, nil
		}
	}

	if m, ok := v.(Marshaler); ok {
		if raw, err := marshalBody(m); err == nil {
			return Marshalled(raw), nil
		}
		// a failed custom marshal falls back to the generic encoding of
		// the original value
	}

	raw, err := jsoncodec.Marshal(v)
	if err != nil {
		return nil, errspkg.Normalize("wire.Classify", err)
	}
	return Object(raw), nil
}

// Encode writes one classified value to w.
func Encode(w *WriteBuffer, v Value) error {
	if v == nil {
		v = Null{}
	}
	switch x := v.(type) {
	case Null:
		w.PushByte(byte(TagNull))
	case String:
		w.PushByte(byte(TagString))
		w.PushUvarint(uint64(len(x)))
		w.Push([]byte(x))
	case Uint:
		w.PushByte(byte(TagUint))
		w.PushUvarint(uint64(x))
	case Bytes:
		w.PushByte(byte(TagBytes))
		w.PushUvarint(uint64(len(x)))
		w.Push(x)
	case Array:
		w.PushByte(byte(TagArray))
		w.PushUvarint(uint64(len(x)))
		for _, elem := range x {
			if err := Encode(w, elem); err != nil {
				return err
			}
		}
	case Object:
		w.PushByte(byte(TagObject))
		w.PushUvarint(uint64(len(x)))
		w.Push(x)
	case Marshalled:
		w.PushByte(byte(TagMarshalled))
		w.PushUvarint(uint64(len(x)))
		w.Push(x)
	default:
		return errspkg.New(errspkg.KindUnsupported, "wire.Encode", "unencodable value %T", v)
	}
	return nil
}

// Serialize classifies v and writes the result to w.
func Serialize(w *WriteBuffer, v any) error {
	val, err := Classify(v)
	if err != nil {
		return err
	}
	return Encode(w, val)
}
