package envelope

import (
	errspkg "github.com/couriermq/courier/internal/errors"
)

// DefaultAlgorithm is the signing algorithm used when the caller does not
// pick one.
const DefaultAlgorithm = "sha512"

// algorithmNames maps wire algorithm ids (the index) to algorithm names.
// The table is part of the wire format; only sha512 has a working digest
// today, the rest are reserved identifiers that fail at use.
var algorithmNames = []string{
	"md5",
	"ripemd160",
	"sha1",
	"sha224",
	"sha256",
	"sha384",
	"sha3-384",
	"sha512",
	"sha3-512",
	"blake2b512",
	"blake2s256",
	"shake128",
	"shake256",
}

var algorithmIDs = make(map[string]int, len(algorithmNames))

func init() {
	for i, name := range algorithmNames {
		algorithmIDs[name] = i
	}
}

// AlgorithmID resolves an algorithm name to its wire id.
func AlgorithmID(name string) (int, error) {
	id, ok := algorithmIDs[name]
	if !ok {
		return 0, errspkg.New(errspkg.KindInvalidArgument, "envelope.AlgorithmID", "unknown sign algorithm %q", name)
	}
	return id, nil
}

// AlgorithmName resolves a wire id back to its algorithm name.
func AlgorithmName(id int) (string, error) {
	if id < 0 || id >= len(algorithmNames) {
		return "", errspkg.New(errspkg.KindInvalidArgument, "envelope.AlgorithmName", "unknown sign algorithm id %d", id)
	}
	return algorithmNames[id], nil
}

// Algorithms returns the registered algorithm names in wire-id order.
func Algorithms() []string {
	out := make([]string, len(algorithmNames))
	copy(out, algorithmNames)
	return out
}
