// Package wire implements the tagged binary serialization protocol used for
// every frame courier puts on the network: a one-byte tag, a type-specific
// body, and base-128 varint length prefixes. The protocol is not
// self-describing beyond the per-value tag; readers must know how many
// logical values a frame carries.
package wire

// Tag identifies the shape of one encoded value.
type Tag byte

const (
	TagNull       Tag = 0 // no body
	TagString     Tag = 1 // varint length + UTF-8 bytes
	TagUint       Tag = 2 // varint value, no length prefix
	TagObject     Tag = 3 // varint length + JSON bytes
	TagArray      Tag = 4 // varint count + that many encoded values
	TagMarshalled Tag = 5 // varint length + JSON bytes with revival metadata
	TagBytes      Tag = 6 // varint length + raw bytes
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagNull:
		return "Null"
	case TagString:
		return "String"
	case TagUint:
		return "UnsignedInt"
	case TagObject:
		return "GenericObject"
	case TagArray:
		return "Array"
	case TagMarshalled:
		return "MarshalledObject"
	case TagBytes:
		return "RawBytes"
	default:
		return "Unknown"
	}
}

// Value is one decoded or to-be-encoded protocol value. The set of
// implementations is closed; Decode never produces anything else and Encode
// accepts nothing else.
type Value interface {
	Tag() Tag
	isValue()
}

// Null is the encoded form of nil.
type Null struct{}

// String is a UTF-8 string value.
type String string

// Uint is a non-negative integer value. Encoding only ever produces values
// that fit 32 bits, but a decoded frame may carry up to 64.
type Uint uint64

// Bytes is an opaque byte-string value.
type Bytes []byte

// Array is an ordered sequence of values.
type Array []Value

// Object is a generic value carried as JSON. The raw bytes are kept verbatim
// so that decoding and re-encoding an object is byte-stable.
type Object []byte

// Marshalled is a rich value carried as JSON alongside the type name used to
// revive it on the far side. Like Object, the raw bytes are kept verbatim.
type Marshalled []byte

func (Null) Tag() Tag       { return TagNull }
func (String) Tag() Tag     { return TagString }
func (Uint) Tag() Tag       { return TagUint }
func (Bytes) Tag() Tag      { return TagBytes }
func (Array) Tag() Tag      { return TagArray }
func (Object) Tag() Tag     { return TagObject }
func (Marshalled) Tag() Tag { return TagMarshalled }

func (Null) isValue()       {}
func (String) isValue()     {}
func (Uint) isValue()       {}
func (Bytes) isValue()      {}
func (Array) isValue()      {}
func (Object) isValue()     {}
func (Marshalled) isValue() {}
