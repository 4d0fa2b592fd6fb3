package storage

import (
	"testing"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/proofs"
	"github.com/quids/quids/zkproof"
)

func fixtureBatch() (*types.Batch, *proofs.StateTransitionProof) {
	var alice, bob types.Address
	alice[len(alice)-1] = 1
	bob[len(bob)-1] = 2

	tx := types.NewTransaction(alice, bob, 100, 1, 21000, 1, 1000)
	batch := &types.Batch{
		BatchID:      7,
		Timestamp:    1234,
		ValidatorID:  "v1",
		Transactions: []*types.Transaction{tx},
	}
	proof := &proofs.StateTransitionProof{
		PreStateRoot:  types.HexToHash("0xaa"),
		PostStateRoot: types.HexToHash("0xbb"),
		Transactions:  batch.Transactions,
		ProofBlob:     &zkproof.ZKProof{ProofData: []byte("proof")},
	}
	return batch, proof
}

func TestPutBatchRoundTripsHeaderAndProof(t *testing.T) {
	s := New(NewMemKV())
	batch, proof := fixtureBatch()
	if err := s.PutBatch(batch, proof); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	header, err := s.GetHeader(batch.BatchID)
	if err != nil {
		t.Fatalf("GetHeader: %v", err)
	}
	if header.Number != batch.BatchID {
		t.Fatalf("got header number %d, want %d", header.Number, batch.BatchID)
	}
	if header.StateRoot != proof.PostStateRoot {
		t.Fatalf("got state root %v, want %v", header.StateRoot, proof.PostStateRoot)
	}
	if header.PreviousHash != proof.PreStateRoot {
		t.Fatalf("got previous hash %v, want %v", header.PreviousHash, proof.PreStateRoot)
	}

	gotProof, err := s.GetProof(batch.BatchID)
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	if gotProof.PostStateRoot != proof.PostStateRoot {
		t.Fatalf("got proof post root %v, want %v", gotProof.PostStateRoot, proof.PostStateRoot)
	}
}

func TestPutBatchRoundTripsTransactionAndAccountHistory(t *testing.T) {
	s := New(NewMemKV())
	batch, proof := fixtureBatch()
	if err := s.PutBatch(batch, proof); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	tx := batch.Transactions[0]
	rec, err := s.GetTransaction(tx.Hash())
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if rec.BlockNumber != batch.BatchID {
		t.Fatalf("got block number %d, want %d", rec.BlockNumber, batch.BatchID)
	}
	if rec.Transaction.Amount != tx.Amount {
		t.Fatalf("got amount %d, want %d", rec.Transaction.Amount, tx.Amount)
	}

	for _, addr := range [2]types.Address{tx.Sender, tx.Recipient} {
		got, err := s.GetAccountActivity(addr, batch.BatchID)
		if err != nil {
			t.Fatalf("GetAccountActivity(%v): %v", addr, err)
		}
		if got != tx.Hash() {
			t.Fatalf("got activity %v, want tx hash %v", got, tx.Hash())
		}
	}
}

func TestGetMissingKeysReturnErrNotFound(t *testing.T) {
	s := New(NewMemKV())
	if _, err := s.GetHeader(999); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := s.GetTransaction(types.Hash{}); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	kv := NewMemKV()
	s := New(kv)
	batch, proof := fixtureBatch()
	if err := s.PutBatch(batch, proof); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()

	batch2, proof2 := fixtureBatch()
	batch2.BatchID = 8
	if err := s.PutBatch(batch2, proof2); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	if _, err := snap.Get(headerKey(8)); err != ErrNotFound {
		t.Fatalf("snapshot should not see writes made after it was taken, got err=%v", err)
	}
	if _, err := snap.Get(headerKey(7)); err != nil {
		t.Fatalf("snapshot should still see pre-existing data: %v", err)
	}
}
