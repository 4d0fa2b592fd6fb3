package storage

import (
	"encoding/json"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/proofs"
)

// BlockHeader is the per-batch header record (§6): `{number, state_root,
// previous_hash, timestamp}`. PreviousHash is the batch's pre-state root,
// which by construction equals the previous batch's post-state root.
type BlockHeader struct {
	Number       uint64     `json:"number"`
	StateRoot    types.Hash `json:"state_root"`
	PreviousHash types.Hash `json:"previous_hash"`
	Timestamp    uint64     `json:"timestamp"`
}

// TxRecord is a transaction record stored by hash, noting which block it
// landed in.
type TxRecord struct {
	BlockNumber uint64             `json:"block_number"`
	Transaction *types.Transaction `json:"transaction"`
}

// Store implements rollup.BatchStore on top of a KV backend, laying out
// block headers, state-transition proofs, transaction records, and
// account histories per §6. Store itself doesn't import the rollup
// package: it satisfies rollup.BatchStore structurally, the same way the
// teacher's txpool satisfies interfaces it never imports the definer of.
type Store struct {
	kv KV
}

// New wraps kv as a Store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// PutBatch persists a finalized batch's header, proof, transaction
// records, and touched-account history entries (§6). A failed write is
// returned to the caller as the KV store's own error, unwrapped; writes
// made earlier in the same call are not rolled back.
func (s *Store) PutBatch(batch *types.Batch, proof *proofs.StateTransitionProof) error {
	header := BlockHeader{
		Number:       batch.BatchID,
		StateRoot:    proof.PostStateRoot,
		PreviousHash: proof.PreStateRoot,
		Timestamp:    batch.Timestamp,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if err := s.kv.Put(headerKey(batch.BatchID), headerBytes); err != nil {
		return err
	}

	proofBytes, err := json.Marshal(proof)
	if err != nil {
		return err
	}
	if err := s.kv.Put(proofKey(batch.BatchID), proofBytes); err != nil {
		return err
	}

	for _, tx := range batch.Transactions {
		txHash := tx.Hash()
		recBytes, err := json.Marshal(TxRecord{BlockNumber: batch.BatchID, Transaction: tx})
		if err != nil {
			return err
		}
		if err := s.kv.Put(txKey(txHash), recBytes); err != nil {
			return err
		}
		for _, addr := range [2]types.Address{tx.Sender, tx.Recipient} {
			if err := s.kv.Put(accountKey(addr, batch.BatchID), txHash.Bytes()); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetHeader returns the block header recorded for blockNumber.
func (s *Store) GetHeader(blockNumber uint64) (*BlockHeader, error) {
	raw, err := s.kv.Get(headerKey(blockNumber))
	if err != nil {
		return nil, err
	}
	var h BlockHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// GetProof returns the state-transition proof recorded for blockNumber.
func (s *Store) GetProof(blockNumber uint64) (*proofs.StateTransitionProof, error) {
	raw, err := s.kv.Get(proofKey(blockNumber))
	if err != nil {
		return nil, err
	}
	var p proofs.StateTransitionProof
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetTransaction looks up a transaction record by its hash.
func (s *Store) GetTransaction(hash types.Hash) (*TxRecord, error) {
	raw, err := s.kv.Get(txKey(hash))
	if err != nil {
		return nil, err
	}
	var rec TxRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetAccountActivity returns the hash of the last transaction, recorded
// at blockNumber, that touched addr (as sender or recipient).
func (s *Store) GetAccountActivity(addr types.Address, blockNumber uint64) (types.Hash, error) {
	raw, err := s.kv.Get(accountKey(addr, blockNumber))
	if err != nil {
		return types.Hash{}, err
	}
	return types.BytesToHash(raw), nil
}

// Compact asks the underlying KV store to compact its keyspace.
func (s *Store) Compact() error {
	return s.kv.Compact()
}

// Snapshot returns a point-in-time read-only view of the store.
func (s *Store) Snapshot() (Snapshot, error) {
	return s.kv.Snapshot()
}

// Close releases the underlying KV store.
func (s *Store) Close() error {
	return s.kv.Close()
}
