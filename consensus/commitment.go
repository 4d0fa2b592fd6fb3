package consensus

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/quids/quids/zkproof"
)

// deriveBatchCommitment expands batchHash deterministically into a
// normalized QuantumState, the same SHA-256(seed||counter) expansion
// proofs.deriveQuantumState uses, so that any party can independently
// reconstruct the commitment the batch's ZK proof was generated against
// from the public batch hash alone.
func deriveBatchCommitment(dimension int, batchHash [32]byte) zkproof.QuantumState {
	state := make(zkproof.QuantumState, dimension)
	for i := 0; i < dimension; i++ {
		var counter [4]byte
		binary.BigEndian.PutUint32(counter[:], uint32(i))
		h := sha256.New()
		h.Write(batchHash[:])
		h.Write(counter[:])
		digest := h.Sum(nil)
		re := unitFloat(digest[0:8])
		im := unitFloat(digest[8:16])
		state[i] = complex(re, im)
	}
	state.Normalize()
	return state
}

func unitFloat(b []byte) float64 {
	u := binary.BigEndian.Uint64(b)
	return (float64(u)/math.MaxUint64)*2 - 1
}

// hashTxBytes computes batch_hash = H(tx_hashes): SHA-256 over the
// concatenation of each transaction's own SHA-256 hash, in order (§4.9).
func hashTxBytes(txs [][]byte) [32]byte {
	concatenated := make([]byte, 0, len(txs)*sha256.Size)
	for _, tx := range txs {
		sum := sha256.Sum256(tx)
		concatenated = append(concatenated, sum[:]...)
	}
	return sha256.Sum256(concatenated)
}
