package rollup

import (
	"math/rand"
	"testing"
	"time"

	"github.com/quids/quids/consensus"
	"github.com/quids/quids/core/types"
	"github.com/quids/quids/core/types/errs"
	"github.com/quids/quids/crypto"
	"github.com/quids/quids/executor"
	"github.com/quids/quids/mev"
	"github.com/quids/quids/proofs"
	"github.com/quids/quids/state"
	"github.com/quids/quids/zkproof"
)

func testZKEngine() *zkproof.Engine {
	config := zkproof.DefaultConfig()
	config.NoiseProbability = 0
	return zkproof.New(config, rand.New(rand.NewSource(1)))
}

func addrFixture(b byte) types.Address {
	var a types.Address
	a[len(a)-1] = b
	return a
}

func signedTx(t *testing.T, priv []byte, senderAddr, recipientAddr types.Address, amount, nonce uint64) *types.Transaction {
	t.Helper()
	tx := types.NewTransaction(senderAddr, recipientAddr, amount, nonce, 21000, 1, 1000)
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tx
}

func newTestProcessor(t *testing.T) (*BatchProcessor, []byte, types.Address, types.Address) {
	t.Helper()
	_, alicePriv, err := crypto.GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	alice := addrFixture(1)
	bob := addrFixture(2)

	sm := state.New()
	sm.AddAccount(alice, types.Account{Address: alice, Balance: 10_000})

	cfg := DefaultConfig()
	cfg.MaxBatchSize = 10
	cfg.MinBatchSize = 1

	bp := New(cfg, sm, mev.New(nil), executor.New(executor.DefaultConfig()), proofs.NewStateTransitionProver(testZKEngine()),
		consensus.New(consensus.DefaultConfig(), testZKEngine()), nil, nil)
	return bp, alicePriv, alice, bob
}

func TestAdmitTransactionRejectsSelfTransfer(t *testing.T) {
	bp, priv, alice, _ := newTestProcessor(t)
	tx := signedTx(t, priv, alice, alice, 10, 1)
	if err := bp.AdmitTransaction(tx, 0, time.Unix(0, 0)); err != ErrSelfTransfer {
		t.Fatalf("got %v, want ErrSelfTransfer", err)
	}
}

func TestWrapErrorCarriesSharedTaxonomyKind(t *testing.T) {
	wrapped := WrapError(ErrOverloaded)
	if !errs.Is(wrapped, errs.Overload) {
		t.Fatalf("got kind %v, want Overload", errs.KindOf(wrapped))
	}
	if WrapError(nil) != nil {
		t.Fatalf("WrapError(nil) should return nil")
	}
}

func TestAdmitTransactionRejectsOversizedPayload(t *testing.T) {
	bp, priv, alice, bob := newTestProcessor(t)
	tx := signedTx(t, priv, alice, bob, 10, 1)
	if err := bp.AdmitTransaction(tx, 129*1024, time.Unix(0, 0)); err != ErrPayloadTooLarge {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}
}

func TestShouldCutBatchOnMaxWait(t *testing.T) {
	bp, priv, alice, bob := newTestProcessor(t)
	now := time.Unix(100, 0)
	tx := signedTx(t, priv, alice, bob, 10, 1)
	if err := bp.AdmitTransaction(tx, 0, now); err != nil {
		t.Fatalf("AdmitTransaction: %v", err)
	}
	if bp.ShouldCutBatch(now) {
		t.Fatalf("expected no cut immediately after one admission")
	}
	later := now.Add(bp.config.MaxWaitTime + time.Millisecond)
	if !bp.ShouldCutBatch(later) {
		t.Fatalf("expected cut once MaxWaitTime elapses with >= MinBatchSize pending")
	}
}

func TestProcessBatchAndFinalizeWithConsensus(t *testing.T) {
	bp, priv, alice, bob := newTestProcessor(t)
	now := time.Unix(200, 0)
	tx := signedTx(t, priv, alice, bob, 500, 1)
	if err := bp.AdmitTransaction(tx, 0, now); err != nil {
		t.Fatalf("AdmitTransaction: %v", err)
	}

	// Register 7 witnesses on the processor's consensus engine so the
	// round has a quorum to draw from.
	type key struct {
		id   string
		priv []byte
	}
	keys := make([]key, 7)
	for i := 0; i < 7; i++ {
		pub, pv, err := crypto.GenerateEd25519Key()
		if err != nil {
			t.Fatalf("GenerateEd25519Key: %v", err)
		}
		id := string(rune('a' + i))
		bp.pobpc.RegisterWitness(id, pub, now)
		keys[i] = key{id: id, priv: pv}
	}

	var seed [32]byte
	pc, err := bp.ProcessBatch(now, seed)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(pc.Batch.Transactions) != 1 {
		t.Fatalf("got %d transactions in batch, want 1", len(pc.Batch.Transactions))
	}
	if got := bp.state.GetAccount(bob).Balance; got != 500 {
		t.Fatalf("got bob balance %d after ProcessBatch, want 500", got)
	}

	keyByID := make(map[string][]byte, len(keys))
	for _, k := range keys {
		keyByID[k.id] = k.priv
	}
	for i := 0; i < 5; i++ {
		id := pc.SelectedWitness[i]
		sig, err := crypto.SignRaw(crypto.SchemeEd25519, keyByID[id], pc.ConsensusProof.BatchHash[:])
		if err != nil {
			t.Fatalf("SignRaw: %v", err)
		}
		if err := bp.SubmitWitnessVote(pc, id, sig, now); err != nil {
			t.Fatalf("SubmitWitnessVote: %v", err)
		}
	}

	var retrySeed [32]byte
	batch, err := bp.Finalize(pc, now, retrySeed)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if batch.BatchID != pc.Batch.BatchID {
		t.Fatalf("got batch id %d, want %d", batch.BatchID, pc.Batch.BatchID)
	}
}

func TestFinalizeRetriesThenAbandons(t *testing.T) {
	bp, priv, alice, bob := newTestProcessor(t)
	now := time.Unix(300, 0)
	tx := signedTx(t, priv, alice, bob, 10, 1)
	if err := bp.AdmitTransaction(tx, 0, now); err != nil {
		t.Fatalf("AdmitTransaction: %v", err)
	}
	bp.pobpc.RegisterWitness("w1", make([]byte, 32), now)

	var seed [32]byte
	pc, err := bp.ProcessBatch(now, seed)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	var retrySeed [32]byte
	retrySeed[0] = 1
	if _, err := bp.Finalize(pc, now, retrySeed); err != ErrConsensusPending {
		t.Fatalf("got %v, want ErrConsensusPending on first failed finalize", err)
	}
	if _, err := bp.Finalize(pc, now, retrySeed); err != ErrConsensusFailed {
		t.Fatalf("got %v, want ErrConsensusFailed on second failed finalize", err)
	}
}
