package storage

import (
	"encoding/binary"

	"github.com/quids/quids/core/types"
)

// Key prefixes. Block number is encoded as a big-endian u64 suffix so
// that header/proof keys for adjacent blocks sort adjacently in the
// underlying KV store (§6 "Persisted layout").
const (
	prefixHeader  byte = 'h'
	prefixProof   byte = 'p'
	prefixTx      byte = 't'
	prefixAccount byte = 'a'
)

func headerKey(blockNumber uint64) []byte {
	k := make([]byte, 1+8)
	k[0] = prefixHeader
	binary.BigEndian.PutUint64(k[1:], blockNumber)
	return k
}

func proofKey(blockNumber uint64) []byte {
	k := make([]byte, 1+8)
	k[0] = prefixProof
	binary.BigEndian.PutUint64(k[1:], blockNumber)
	return k
}

func txKey(hash types.Hash) []byte {
	k := make([]byte, 1+types.HashLength)
	k[0] = prefixTx
	copy(k[1:], hash.Bytes())
	return k
}

// accountKey implements the spec's address∥block history key: the
// address first so that a given account's history sorts contiguously,
// followed by the big-endian block number so each account's entries sort
// in block order.
func accountKey(addr types.Address, blockNumber uint64) []byte {
	k := make([]byte, 1+types.AddressLength+8)
	k[0] = prefixAccount
	copy(k[1:], addr.Bytes())
	binary.BigEndian.PutUint64(k[1+types.AddressLength:], blockNumber)
	return k
}
