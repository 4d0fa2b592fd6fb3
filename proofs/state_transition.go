package proofs

import (
	"github.com/quids/quids/core/types"
	"github.com/quids/quids/state"
	"github.com/quids/quids/zkproof"
)

// StateTransitionProver implements C5: it produces and verifies proofs
// binding (pre-root, post-root, transactions).
type StateTransitionProver struct {
	engine    *zkproof.Engine
	dimension int
}

// NewStateTransitionProver creates a prover backed by engine, using
// DefaultCommitmentDimension for its commitment vectors.
func NewStateTransitionProver(engine *zkproof.Engine) *StateTransitionProver {
	return &StateTransitionProver{engine: engine, dimension: DefaultCommitmentDimension}
}

// Generate computes pre_root from pre, applies batch to a clone to
// obtain post_root, encodes the (pre, post) diff as a commitment state,
// and bundles the resulting ZK proof into a StateTransitionProof (§4.5).
func (p *StateTransitionProver) Generate(pre *state.StateManager, batch *types.Batch) (*StateTransitionProof, error) {
	if batch == nil || len(batch.Transactions) == 0 {
		return nil, ErrNilBatch
	}
	if err := validateNonceSequence(batch.Transactions); err != nil {
		return nil, err
	}

	preRoot := pre.StateRoot()
	working := pre.Clone()
	for _, tx := range batch.Transactions {
		if err := working.ApplyTransaction(tx); err != nil {
			return nil, err
		}
	}
	postRoot := working.StateRoot()

	commitment := deriveQuantumState(p.dimension, transitionSeed(preRoot, postRoot))
	zkp, err := p.engine.Generate(commitment)
	if err != nil {
		return nil, err
	}

	return &StateTransitionProof{
		PreStateRoot:  preRoot,
		PostStateRoot: postRoot,
		Transactions:  batch.Transactions,
		ProofBlob:     zkp,
	}, nil
}

// Verify replays proof.Transactions against pre, checks the resulting
// root matches proof.PostStateRoot, and verifies the embedded ZK proof
// against the same commitment encoding Generate used (§4.5). It also
// re-checks per-sender nonce monotonicity.
func (p *StateTransitionProver) Verify(pre *state.StateManager, proof *StateTransitionProof) (bool, error) {
	if proof == nil {
		return false, ErrNilProof
	}
	if err := validateNonceSequence(proof.Transactions); err != nil {
		return false, err
	}

	working := pre.Clone()
	for _, tx := range proof.Transactions {
		if err := working.ApplyTransaction(tx); err != nil {
			return false, err
		}
	}
	if working.StateRoot() != proof.PostStateRoot {
		return false, ErrPostRootMismatch
	}

	commitment := deriveQuantumState(p.dimension, transitionSeed(proof.PreStateRoot, proof.PostStateRoot))
	result, err := p.engine.Verify(proof.ProofBlob, commitment)
	if err != nil {
		return false, err
	}
	return result.Verdict == zkproof.VALID, nil
}

func transitionSeed(preRoot, postRoot types.Hash) []byte {
	seed := make([]byte, 0, types.HashLength*2)
	seed = append(seed, preRoot.Bytes()...)
	seed = append(seed, postRoot.Bytes()...)
	return seed
}
