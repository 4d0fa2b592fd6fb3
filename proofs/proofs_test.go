package proofs

import (
	"math/rand"
	"testing"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/state"
	"github.com/quids/quids/zkproof"
)

func testEngine() *zkproof.Engine {
	config := zkproof.DefaultConfig()
	config.NoiseProbability = 0
	return zkproof.New(config, rand.New(rand.NewSource(1)))
}

func fundedState(addr types.Address, balance uint64) *state.StateManager {
	sm := state.New()
	sm.AddAccount(addr, types.Account{Address: addr, Balance: balance})
	return sm
}

func addrFixture(b byte) types.Address {
	var a types.Address
	a[len(a)-1] = b
	return a
}

func TestStateTransitionProverGenerateVerify(t *testing.T) {
	alice, bob := addrFixture(1), addrFixture(2)
	sm := fundedState(alice, 1000)

	tx := types.NewTransaction(alice, bob, 100, 1, 21000, 1, 1000)
	batch := &types.Batch{BatchID: 1, Transactions: []*types.Transaction{tx}}

	prover := NewStateTransitionProver(testEngine())
	proof, err := prover.Generate(sm, batch)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if proof.PreStateRoot != sm.StateRoot() {
		t.Fatalf("pre-root mismatch")
	}

	ok, err := prover.Verify(sm, proof)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected genuine state transition proof to verify")
	}
}

func TestStateTransitionProverDetectsRootMismatch(t *testing.T) {
	alice, bob := addrFixture(1), addrFixture(2)
	sm := fundedState(alice, 1000)
	tx := types.NewTransaction(alice, bob, 100, 1, 21000, 1, 1000)
	batch := &types.Batch{BatchID: 1, Transactions: []*types.Transaction{tx}}

	prover := NewStateTransitionProver(testEngine())
	proof, err := prover.Generate(sm, batch)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	proof.PostStateRoot[0] ^= 0xFF
	if _, err := prover.Verify(sm, proof); err != ErrPostRootMismatch {
		t.Fatalf("got %v, want ErrPostRootMismatch", err)
	}
}

// TestFraudProverS3 covers scenario S3: a fraud proof over a tampered
// post-state root is confirmed as fraud.
func TestFraudProverS3(t *testing.T) {
	alice, bob := addrFixture(1), addrFixture(2)
	sm := fundedState(alice, 1000)
	tx := types.NewTransaction(alice, bob, 100, 1, 21000, 1, 1000)

	prover := NewFraudProver(testEngine())
	tamperedRoot := sm.StateRoot()
	tamperedRoot[0] ^= 0xFF // claim an incorrect post-root

	proof, err := prover.GenerateFraudProof(sm, tamperedRoot, []*types.Transaction{tx})
	if err != nil {
		t.Fatalf("GenerateFraudProof: %v", err)
	}

	verdict, msg, err := prover.Verify(sm, proof)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict != FraudConfirmed {
		t.Fatalf("got verdict %s (%s), want FraudConfirmed", verdict, msg)
	}
}

func TestFraudProverNoFraud(t *testing.T) {
	alice, bob := addrFixture(1), addrFixture(2)
	sm := fundedState(alice, 1000)
	tx := types.NewTransaction(alice, bob, 100, 1, 21000, 1, 1000)

	working := sm.Clone()
	if err := working.ApplyTransaction(tx); err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	genuinePostRoot := working.StateRoot()

	prover := NewFraudProver(testEngine())
	proof, err := prover.GenerateFraudProof(sm, genuinePostRoot, []*types.Transaction{tx})
	if err != nil {
		t.Fatalf("GenerateFraudProof: %v", err)
	}

	verdict, _, err := prover.Verify(sm, proof)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict != NoFraud {
		t.Fatalf("got verdict %s, want NoFraud", verdict)
	}
}

func TestBisectionDisputeConverges(t *testing.T) {
	dispute := NewBisectionDispute(1, 0, 16)

	var a, b types.Hash
	a[0] = 1
	b[0] = 1 // agree for a while

	for !dispute.IsConverged() {
		start, end, err := dispute.BisectionStep(a, b)
		if err != nil {
			break
		}
		if end-start <= 1 {
			b[0] = 2 // introduce divergence at the final step
		}
	}
	if !dispute.IsConverged() {
		t.Fatalf("expected bisection to converge within step bound")
	}
}

func TestEmergencyExitProverRoundTrip(t *testing.T) {
	addr := addrFixture(9)
	sm := fundedState(addr, 500)

	prover := NewEmergencyExitProver(testEngine())
	proof, err := prover.GenerateExitProof(sm, addr)
	if err != nil {
		t.Fatalf("GenerateExitProof: %v", err)
	}
	if proof.Balance != 500 {
		t.Fatalf("got balance %d, want 500", proof.Balance)
	}

	ok, err := prover.VerifyExitProof(proof)
	if err != nil {
		t.Fatalf("VerifyExitProof: %v", err)
	}
	if !ok {
		t.Fatalf("expected exit proof to verify")
	}

	if err := prover.ProcessEmergencyExit(sm, proof); err != nil {
		t.Fatalf("ProcessEmergencyExit: %v", err)
	}
	if got := sm.GetAccount(addr).Balance; got != 0 {
		t.Fatalf("got balance %d after exit, want 0", got)
	}

	// A second exit proof against the now-zeroed account reflects the
	// withdrawal.
	second, err := prover.GenerateExitProof(sm, addr)
	if err != nil {
		t.Fatalf("GenerateExitProof (second): %v", err)
	}
	if second.Balance != 0 {
		t.Fatalf("got balance %d, want 0 after exit", second.Balance)
	}
}

func TestEmergencyExitProverRejectsStaleRoot(t *testing.T) {
	addr := addrFixture(9)
	sm := fundedState(addr, 500)

	prover := NewEmergencyExitProver(testEngine())
	proof, err := prover.GenerateExitProof(sm, addr)
	if err != nil {
		t.Fatalf("GenerateExitProof: %v", err)
	}

	// Mutate state after the proof was generated.
	other := addrFixture(10)
	sm.AddAccount(other, types.Account{Address: other, Balance: 1})

	if err := prover.ProcessEmergencyExit(sm, proof); err != ErrExitRootMismatch {
		t.Fatalf("got %v, want ErrExitRootMismatch", err)
	}
}
