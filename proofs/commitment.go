// Package proofs implements the three §4 provers that sit around the
// StateManager and ZKProofEngine: StateTransitionProver (C5), FraudProver
// (C6), and EmergencyExitProver (C7). All three share one job before
// handing off to zkproof.Engine: encoding a commitment (a state-root
// diff, a fraud claim, an account balance) as an opaque QuantumState
// witness.
package proofs

import (
	"encoding/binary"
	"math"

	"github.com/quids/quids/crypto"
	"github.com/quids/quids/zkproof"
)

// DefaultCommitmentDimension is the size of the commitment vectors this
// package derives for the ZKProofEngine, chosen to give measurementCount
// a handful of qubits to sample without being expensive to generate.
const DefaultCommitmentDimension = 16

// deriveQuantumState expands seed deterministically into a normalized
// QuantumState of the given dimension: SHA-256(seed || counter) supplies
// 16 bytes per amplitude, interpreted as a (real, imag) pair in [-1, 1].
// Two calls with equal seed and dimension always produce equal states,
// which is what lets an honest verifier rebuild the same commitment the
// prover generated against.
func deriveQuantumState(dimension int, seed []byte) zkproof.QuantumState {
	state := make(zkproof.QuantumState, dimension)
	for i := 0; i < dimension; i++ {
		var counter [4]byte
		binary.BigEndian.PutUint32(counter[:], uint32(i))
		digest := crypto.SHA256(seed, counter[:])
		re := unitFloat(digest[0:8])
		im := unitFloat(digest[8:16])
		state[i] = complex(re, im)
	}
	state.Normalize()
	return state
}

// unitFloat maps 8 bytes of hash output to a float64 in [-1, 1].
func unitFloat(b []byte) float64 {
	u := binary.BigEndian.Uint64(b)
	return (float64(u)/math.MaxUint64)*2 - 1
}
