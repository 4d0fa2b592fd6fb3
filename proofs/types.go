package proofs

import (
	"errors"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/zkproof"
)

// Shared prover errors.
var (
	ErrNilBatch           = errors.New("proofs: batch is nil or empty")
	ErrNonceSequence      = errors.New("proofs: transaction sequence has non-monotonic or gapped per-sender nonces")
	ErrNilProof           = errors.New("proofs: proof is nil")
	ErrPostRootMismatch   = errors.New("proofs: replayed post-state root does not match the proof's recorded root")
	ErrExitProofInvalid   = errors.New("proofs: exit proof failed ZK verification")
	ErrExitRootMismatch   = errors.New("proofs: exit proof's recorded state root no longer matches current state")
)

// StateTransitionProof binds a claimed (pre-root, post-root) pair to the
// transaction sequence that produced it, plus the ZK proof of the
// underlying commitment (§3 StateTransitionProof).
type StateTransitionProof struct {
	PreStateRoot  types.Hash
	PostStateRoot types.Hash
	Transactions  []*types.Transaction
	ProofBlob     *zkproof.ZKProof
}

// ExitProof attests that Address held Balance at StateRoot (§4.7).
type ExitProof struct {
	Address   types.Address
	Balance   uint64
	StateRoot types.Hash
	ProofBlob *zkproof.ZKProof
}

// validateNonceSequence checks that, for every sender appearing more
// than once in txs, each subsequent occurrence's nonce is exactly one
// greater than the previous. This is a defense-in-depth check alongside
// StateManager.ApplyTransaction's own per-account nonce enforcement: it
// catches a malformed batch (duplicate or reordered nonces for one
// sender) before any state mutation is attempted.
func validateNonceSequence(txs []*types.Transaction) error {
	last := make(map[types.Address]uint64)
	seen := make(map[types.Address]bool)
	for _, tx := range txs {
		if seen[tx.Sender] && tx.Nonce != last[tx.Sender]+1 {
			return ErrNonceSequence
		}
		last[tx.Sender] = tx.Nonce
		seen[tx.Sender] = true
	}
	return nil
}
