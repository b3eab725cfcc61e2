// Package envelope builds and parses courier's signed, optionally encrypted
// message frames. A frame carries, in order: topic, encrypted flag, headers,
// payload, sign algorithm id, and the signature. The signature covers the
// serialized headers and the serialized plaintext payload, so tampering with
// either is detected even when the payload itself is encrypted.
package envelope

import (
	"bytes"
	"time"

	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/wire"
)

// Options carries the optional knobs for Create and Parse. A non-empty
// EncryptionKey turns encryption on for Create and is required by Parse for
// frames flagged as encrypted. SignAlgorithm defaults to sha512 and is only
// consulted by Create; Parse takes the algorithm from the frame.
type Options struct {
	Headers       map[string]any
	EncryptionKey []byte
	Salt          []byte
	SignAlgorithm string
}

// Message is the result of parsing a frame. It is a read-only snapshot;
// mutating it has no effect on the bytes it was parsed from.
type Message struct {
	Topic     string
	Headers   map[string]any
	Payload   any
	Encrypted bool
	Algorithm string
}

// Create serializes, signs, and optionally encrypts one message frame.
//
// The carried headers are the caller's plus two stamped fields: "timestamp"
// (epoch milliseconds) and "byteLength". byteLength records the
// post-encryption payload size minus one; the off-by-one is preserved for
// wire compatibility and the field is informational only.
func Create(topic string, payload any, opts Options) ([]byte, error) {
	algorithm := opts.SignAlgorithm
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	algID, err := AlgorithmID(algorithm)
	if err != nil {
		return nil, err
	}

	pw := wire.NewWriteBuffer()
	if err := wire.Serialize(pw, payload); err != nil {
		return nil, err
	}
	plain := pw.Drain()

	var (
		flag       wire.Uint
		ciphertext []byte
	)
	bodyLen := len(plain)
	if len(opts.EncryptionKey) > 0 {
		ciphertext, err = encryptPayload(plain, opts.EncryptionKey, opts.Salt)
		if err != nil {
			return nil, err
		}
		flag = 1
		bodyLen = len(ciphertext)
	}

	headers := make(map[string]any, len(opts.Headers)+2)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	headers["timestamp"] = time.Now().UnixMilli()
	headers["byteLength"] = bodyLen - 1

	hw := wire.NewWriteBuffer()
	if err := wire.Serialize(hw, headers); err != nil {
		return nil, err
	}
	headerBytes := hw.Drain()

	signature, err := computeDigest(algorithm, headerBytes, plain)
	if err != nil {
		return nil, err
	}

	w := wire.NewWriteBuffer()
	if err := wire.Encode(w, wire.String(topic)); err != nil {
		return nil, err
	}
	if err := wire.Encode(w, flag); err != nil {
		return nil, err
	}
	w.Push(headerBytes)
	if flag == 1 {
		if err := wire.Encode(w, wire.Bytes(ciphertext)); err != nil {
			return nil, err
		}
	} else {
		w.Push(plain)
	}
	if err := wire.Encode(w, wire.Uint(algID)); err != nil {
		return nil, err
	}
	if err := wire.Encode(w, wire.Bytes(signature)); err != nil {
		return nil, err
	}
	return w.Drain(), nil
}

// Parse decodes one frame, decrypts the payload when flagged, and verifies
// the signature. Nothing is returned on failure; a frame is accepted whole
// or rejected whole.
func Parse(frame []byte, opts Options) (*Message, error) {
	r := wire.NewReadBuffer(frame)

	topicV, err := wire.Decode(r)
	if err != nil {
		return nil, err
	}
	topic, ok := topicV.(wire.String)
	if !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.Parse", "topic field is %v, want String", topicV.Tag())
	}

	flagV, err := wire.Decode(r)
	if err != nil {
		return nil, err
	}
	flag, ok := flagV.(wire.Uint)
	if !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.Parse", "encrypted flag is %v, want UnsignedInt", flagV.Tag())
	}

	headerStart := r.Pos()
	headerV, err := wire.Decode(r)
	if err != nil {
		return nil, err
	}
	if _, ok := headerV.(wire.Object); !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.Parse", "headers field is %v, want GenericObject", headerV.Tag())
	}
	headerSpan := r.Span(headerStart)

	payloadStart := r.Pos()
	payloadV, err := wire.Decode(r)
	if err != nil {
		return nil, err
	}
	payloadSpan := r.Span(payloadStart)

	algV, err := wire.Decode(r)
	if err != nil {
		return nil, err
	}
	algID, ok := algV.(wire.Uint)
	if !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.Parse", "algorithm field is %v, want UnsignedInt", algV.Tag())
	}

	sigV, err := wire.Decode(r)
	if err != nil {
		return nil, err
	}
	signature, ok := sigV.(wire.Bytes)
	if !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.Parse", "signature field is %v, want RawBytes", sigV.Tag())
	}

	encrypted := flag == 1

	// the digest input is the payload as originally signed: the decrypted
	// bytes for an encrypted frame, the transmitted bytes otherwise
	plainSpan := payloadSpan
	var payload any
	if ct, isBinary := payloadV.(wire.Bytes); encrypted && isBinary {
		if len(opts.EncryptionKey) == 0 {
			return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.Parse", "frame is encrypted and no encryption key was given")
		}
		plain, err := decryptPayload(ct, opts.EncryptionKey, opts.Salt)
		if err != nil {
			return nil, err
		}
		payload, err = wire.Deserialize(wire.NewReadBuffer(plain))
		if err != nil {
			return nil, err
		}
		plainSpan = plain
	} else {
		payload, err = wire.Materialize(payloadV)
		if err != nil {
			return nil, err
		}
	}

	algorithm, err := AlgorithmName(int(algID))
	if err != nil {
		return nil, err
	}
	want, err := computeDigest(algorithm, headerSpan, plainSpan)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(want, signature) {
		return nil, errspkg.New(errspkg.KindInvalidSignature, "envelope.Parse", "signature mismatch for topic %q", string(topic))
	}

	var headers map[string]any
	headersAny, err := wire.Materialize(headerV)
	if err != nil {
		return nil, err
	}
	headers, ok = headersAny.(map[string]any)
	if !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.Parse", "headers do not decode to an object")
	}

	return &Message{
		Topic:     string(topic),
		Headers:   headers,
		Payload:   payload,
		Encrypted: encrypted,
		Algorithm: algorithm,
	}, nil
}
