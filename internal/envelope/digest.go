package envelope

import (
	"crypto/sha512"

	errspkg "github.com/couriermq/courier/internal/errors"
)

// digestChunkSize is the window the signed bytes are streamed through the
// hash in. Hashing in windows is functionally identical to one Write over
// the whole buffer.
const digestChunkSize = 3072

// computeDigest hashes the serialized headers followed by the serialized
// plaintext payload with the named algorithm. Names outside the registry
// fail as invalid; registered names without an implementation fail as not
// implemented.
func computeDigest(algorithm string, headers, payload []byte) ([]byte, error) {
	if _, err := AlgorithmID(algorithm); err != nil {
		return nil, err
	}
	if algorithm != "sha512" {
		return nil, errspkg.New(errspkg.KindNotImplemented, "envelope.computeDigest", "sign algorithm %q has no implementation", algorithm)
	}

	buf := make([]byte, 0, len(headers)+len(payload))
	buf = append(buf, headers...)
	buf = append(buf, payload...)

	h := sha512.New()
	for off := 0; off < len(buf); off += digestChunkSize {
		end := min(off+digestChunkSize, len(buf))
		h.Write(buf[off:end])
	}
	return h.Sum(nil), nil
}
