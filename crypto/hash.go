package crypto

import (
	"crypto/sha256"

	"github.com/quids/quids/core/types"
	"golang.org/x/crypto/blake2b"
)

// stateRootContextTag domain-separates the state-root keyed hash from the
// transaction-hash keyed hash in core/types.
const stateRootContextTag = "QUIDS-STATE-ROOT-V1"

// KeyedHash computes a keyed blake2b-256 digest over the concatenation of
// data, using the state-root domain tag as key. Used by the StateManager
// to fold sorted, serialized accounts into a single 32-byte state root.
func KeyedHash(data ...[]byte) types.Hash {
	h, err := blake2b.New256([]byte(stateRootContextTag))
	if err != nil {
		panic(err)
	}
	for _, b := range data {
		h.Write(b)
	}
	return types.BytesToHash(h.Sum(nil))
}

// SHA256 computes the SHA-256 digest over the concatenation of data.
func SHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// SHA256Hash computes SHA256 and returns it as a types.Hash.
func SHA256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(SHA256(data...))
}
