package executor

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/quids/quids/core/types"
)

// DependencyBatches exposes dependentBatches (scheduler.go) for callers
// outside this package that want to inspect, rather than execute, the
// grouping ExecuteBatch would use: each returned slice is a group of
// txs indices with no address overlap within the group (so ExecuteBatch
// runs them in parallel), with groups themselves applied in order.
func DependencyBatches(txs []*types.Transaction) [][]int {
	return dependentBatches(txs)
}

// DependencyGraph renders txs' dependency-batch grouping as a Graphviz
// DOT graph: one node per transaction, labeled with its batch number,
// and an edge from every transaction in batch N to every transaction in
// batch N+1 — batch N+1 cannot start until batch N's writes are visible.
// Transactions within the same batch have no edges between them, since
// ExecuteBatch runs them concurrently. Used by the inspect CLI command
// for operator debugging of the executor's parallelism decisions.
func DependencyGraph(txs []*types.Transaction) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	batches := DependencyBatches(txs)

	nodesByBatch := make([][]dot.Node, len(batches))
	for bi, batch := range batches {
		nodes := make([]dot.Node, len(batch))
		for i, idx := range batch {
			nodes[i] = g.Node(fmt.Sprintf("tx%d", idx)).Label(fmt.Sprintf("tx[%d]\\nbatch %d", idx, bi))
		}
		nodesByBatch[bi] = nodes
	}
	for bi := 1; bi < len(nodesByBatch); bi++ {
		for _, prev := range nodesByBatch[bi-1] {
			for _, cur := range nodesByBatch[bi] {
				g.Edge(prev, cur)
			}
		}
	}
	return g
}

// DependencyDOT returns the DOT-language source of DependencyGraph(txs).
func DependencyDOT(txs []*types.Transaction) string {
	return DependencyGraph(txs).String()
}
