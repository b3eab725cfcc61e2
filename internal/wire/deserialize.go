package wire

import (
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/jsoncodec"
)

// Decode reads one tagged value from r. JSON bodies are captured verbatim
// and not validated here; Materialize reports malformed JSON when the value
// is turned back into a Go value.
func Decode(r *ReadBuffer) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch Tag(tag) {
	case TagNull:
		return Null{}, nil
	case TagString:
		b, err := r.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		return String(b), nil
	case TagUint:
		v, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		return Uint(v), nil
	case TagObject:
		b, err := r.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		return Object(b), nil
	case TagArray:
		count, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if count > uint64(r.Remaining()) {
			return nil, errspkg.New(errspkg.KindEndOfStream, "wire.Decode", "array count %d exceeds %d remaining bytes", count, r.Remaining())
		}
		elems := make(Array, count)
		for i := range elems {
			elem, err := Decode(r)
			if err != nil {
				return nil, err
			}
			elems[i] = elem
		}
		return elems, nil
	case TagMarshalled:
		b, err := r.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		return Marshalled(b), nil
	case TagBytes:
		b, err := r.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		return Bytes(b), nil
	default:
		return nil, errspkg.New(errspkg.KindUnsupported, "wire.Decode", "unknown tag 0x%02x", tag)
	}
}

// Materialize turns a decoded value into a plain Go value: Null becomes nil,
// String a string, UnsignedInt a uint64, RawBytes a []byte, Array a []any,
// GenericObject its decoded JSON value, and MarshalledObject the revived
// value (or its generic decoding when no reviver is registered).
func Materialize(v Value) (any, error) {
	switch x := v.(type) {
	case nil, Null:
		return nil, nil
	case String:
		return string(x), nil
	case Uint:
		return uint64(x), nil
	case Bytes:
		return []byte(x), nil
	case Array:
		out := make([]any, len(x))
		for i, elem := range x {
			mv, err := Materialize(elem)
			if err != nil {
				return nil, err
			}
			out[i] = mv
		}
		return out, nil
	case Object:
		var out any
		if err := jsoncodec.Unmarshal(x, &out); err != nil {
			return nil, errspkg.Normalize("wire.Materialize", err)
		}
		return out, nil
	case Marshalled:
		return reviveBody(x)
	default:
		return nil, errspkg.New(errspkg.KindUnsupported, "wire.Materialize", "unknown value %T", v)
	}
}

// Deserialize reads one tagged value from r and materializes it.
func Deserialize(r *ReadBuffer) (any, error) {
	v, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Materialize(v)
}
