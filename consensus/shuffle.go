// shuffle.go adapts the beacon chain committee-selection machinery
// (committee_selection.go) to PoBPC witness selection (§4.9). Only the
// pure swap-or-not shuffle survives unmodified: the rest of that file's
// functions take a *BeaconStateV2 that has no analogue here, so witness
// weighting is reimplemented from scratch in consensus.go, reusing this
// shuffle plus the weighted-rejection-sampling pattern from
// ComputeProposerIndex.
package consensus

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// ShuffleRoundCount is the number of rounds in the swap-or-not shuffle.
const ShuffleRoundCount = 90

var (
	ErrShuffleZeroIndexCount = errors.New("consensus: zero index count")
	ErrShuffleInvalidIndex   = errors.New("consensus: shuffle index out of range")
)

// ComputeShuffledIndex implements the swap-or-not shuffle from the beacon
// chain spec: given an index, total count, and seed, returns the shuffled
// position. Used to produce a deterministic candidate order for weighted
// witness selection.
func ComputeShuffledIndex(index, indexCount uint64, seed [32]byte) (uint64, error) {
	if indexCount == 0 {
		return 0, ErrShuffleZeroIndexCount
	}
	if index >= indexCount {
		return 0, fmt.Errorf("%w: %d >= %d", ErrShuffleInvalidIndex, index, indexCount)
	}
	if indexCount == 1 {
		return 0, nil
	}

	cur := index
	for round := uint64(0); round < ShuffleRoundCount; round++ {
		var pivotInput [33]byte
		copy(pivotInput[:32], seed[:])
		pivotInput[32] = byte(round)
		pivotHash := sha256.Sum256(pivotInput[:])
		pivot := binary.LittleEndian.Uint64(pivotHash[:8]) % indexCount

		flip := (pivot + indexCount - cur) % indexCount
		position := flip
		if cur > flip {
			position = cur
		}

		var srcInput [37]byte
		copy(srcInput[:32], seed[:])
		srcInput[32] = byte(round)
		binary.LittleEndian.PutUint32(srcInput[33:], uint32(position/256))
		source := sha256.Sum256(srcInput[:])

		byteIdx := (position % 256) / 8
		bitIdx := position % 8
		if (source[byteIdx]>>bitIdx)&1 != 0 {
			cur = flip
		}
	}
	return cur, nil
}

// weightedRandByte derives a deterministic pseudo-random byte from seed and
// a monotonically increasing attempt counter, following
// ComputeProposerIndex's seed||counter hashing pattern.
func weightedRandByte(seed [32]byte, attempt uint64) byte {
	var buf [40]byte
	copy(buf[:32], seed[:])
	binary.LittleEndian.PutUint64(buf[32:], attempt)
	h := sha256.Sum256(buf[:])
	return h[attempt%32]
}
