package executor

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/quids/quids/core/types"
)

// dependentBatches partitions txs, in order, into a sequence of batches
// such that no two transactions within the same batch are dependent
// (§4.10): two transactions are dependent iff they share any of
// {sender, recipient}. Batches execute in parallel internally but must
// be applied sequentially across batches to preserve per-sender nonce
// ordering and cross-batch determinism (property 1).
//
// The partition is greedy and order-preserving: a transaction joins the
// current batch if its touched-address set is disjoint from every
// transaction already placed in that batch, otherwise it starts a new
// batch. This is deliberately the coarse rule the spec retains (Open
// Questions: a finer read/write-set analysis would only ever permit
// more parallelism, never change correctness).
func dependentBatches(txs []*types.Transaction) [][]int {
	if len(txs) == 0 {
		return nil
	}

	var batches [][]int
	touched := mapset.NewThreadUnsafeSet[types.Address]()
	var current []int

	for i, tx := range txs {
		txAddrs := mapset.NewThreadUnsafeSet(tx.Sender, tx.Recipient)
		if len(current) > 0 && touched.Intersect(txAddrs).Cardinality() > 0 {
			batches = append(batches, current)
			current = nil
			touched = mapset.NewThreadUnsafeSet[types.Address]()
		}
		current = append(current, i)
		touched = touched.Union(txAddrs)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
