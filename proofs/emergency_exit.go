package proofs

import (
	"encoding/binary"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/metrics"
	"github.com/quids/quids/state"
	"github.com/quids/quids/zkproof"
)

// EmergencyExitProver implements C7: account-specific withdrawal proofs
// against a state root, for the case a sequencer stops producing valid
// batches and users need to exit funds against the last-known-good root
// without cooperation from the rollup.
type EmergencyExitProver struct {
	engine    *zkproof.Engine
	dimension int
}

// NewEmergencyExitProver creates an EmergencyExitProver backed by engine.
func NewEmergencyExitProver(engine *zkproof.Engine) *EmergencyExitProver {
	return &EmergencyExitProver{engine: engine, dimension: DefaultCommitmentDimension}
}

// GenerateExitProof attests that addr held its current balance at sm's
// current state root (§4.7).
func (p *EmergencyExitProver) GenerateExitProof(sm *state.StateManager, addr types.Address) (*ExitProof, error) {
	root := sm.StateRoot()
	account := sm.GetAccount(addr)

	commitment := deriveQuantumState(p.dimension, exitSeed(addr, root, account.Balance))
	zkp, err := p.engine.Generate(commitment)
	if err != nil {
		return nil, err
	}

	return &ExitProof{
		Address:   addr,
		Balance:   account.Balance,
		StateRoot: root,
		ProofBlob: zkp,
	}, nil
}

// VerifyExitProof recomputes the commitment proof.Address/Balance/
// StateRoot binds and validates the embedded ZK proof against it. It
// does not consult live state; ProcessEmergencyExit does that.
func (p *EmergencyExitProver) VerifyExitProof(proof *ExitProof) (bool, error) {
	if proof == nil {
		return false, ErrNilProof
	}
	commitment := deriveQuantumState(p.dimension, exitSeed(proof.Address, proof.StateRoot, proof.Balance))
	result, err := p.engine.Verify(proof.ProofBlob, commitment)
	if err != nil {
		return false, err
	}
	return result.Verdict == zkproof.VALID, nil
}

// ProcessEmergencyExit verifies proof, checks it is still rooted in sm's
// current state, and zeroes the account's balance: funds are considered
// withdrawn on L1, so any subsequent exit proof for the same address
// shows balance 0 (§4.7).
func (p *EmergencyExitProver) ProcessEmergencyExit(sm *state.StateManager, proof *ExitProof) error {
	ok, err := p.VerifyExitProof(proof)
	if err != nil {
		return err
	}
	if !ok {
		return ErrExitProofInvalid
	}
	if sm.StateRoot() != proof.StateRoot {
		return ErrExitRootMismatch
	}

	account := sm.GetAccount(proof.Address)
	account.Balance = 0
	sm.AddAccount(proof.Address, account)
	metrics.EmergencyExitsProcessed.Inc()
	return nil
}

func exitSeed(addr types.Address, root types.Hash, balance uint64) []byte {
	seed := make([]byte, 0, types.AddressLength+types.HashLength+8)
	seed = append(seed, addr.Bytes()...)
	seed = append(seed, root.Bytes()...)
	var balBuf [8]byte
	binary.BigEndian.PutUint64(balBuf[:], balance)
	seed = append(seed, balBuf[:]...)
	return seed
}
