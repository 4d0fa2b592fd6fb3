// Package mev implements the MEVOrderingEngine (C8): fair transaction
// ordering, a commitment scheme binding an ordering to its hash, and
// sandwich/frontrunning detection heuristics. Grounded on the teacher's
// core/mev.go detection style and txpool/priority.go's heap-backed pool.
package mev

import (
	"container/heap"
	"sync"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/crypto"
)

// frontrunGasRatio and frontrunWindowNanos implement the spec's
// frontrunning heuristic: consecutive txs to the same recipient where
// tx1.GasPrice > 1.5 * tx2.GasPrice and they arrived within 1ms (§4.8).
const (
	frontrunGasRatio   = 1.5
	frontrunWindowNanos = uint64(1_000_000) // 1ms in nanoseconds
)

// PriorityFunc scores a transaction for ordering purposes; higher sorts
// first. The default is transaction amount, matching the spec, but is
// pluggable (§4.8).
type PriorityFunc func(tx *types.Transaction) uint64

// DefaultPriority orders by amount descending.
func DefaultPriority(tx *types.Transaction) uint64 { return tx.Amount }

// entry wraps a transaction with its priority score for the internal heap.
type entry struct {
	tx       *types.Transaction
	priority uint64
	index    int
}

type priorityHeap []*entry

func (h priorityHeap) Len() int            { return len(h) }
func (h priorityHeap) Less(i, j int) bool  { return h[i].priority > h[j].priority } // max-heap
func (h priorityHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *priorityHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// OrderingCommitment stamps a chosen transaction ordering with its
// fairness hash and the time it was created (§3).
type OrderingCommitment struct {
	BatchHash    types.Hash
	Transactions []*types.Transaction
	Timestamp    uint64
}

// SandwichCandidate flags three consecutive transactions that look like
// a sandwich attack: tx1 and tx3 share a sender, and all three share the
// same recipient as tx1 (§4.8).
type SandwichCandidate struct {
	FrontIndex, VictimIndex, BackIndex int
}

// FrontrunCandidate flags two consecutive transactions to the same
// recipient where the first materially outbids the second within a
// tight time window (§4.8).
type FrontrunCandidate struct {
	FirstIndex, SecondIndex int
}

// Engine accumulates pending transactions and produces fair orderings,
// fairness commitments, and MEV-pattern detections.
type Engine struct {
	mu       sync.Mutex
	priority PriorityFunc
	pending  priorityHeap
}

// New creates an Engine using priority for ordering. A nil priority uses
// DefaultPriority (amount descending).
func New(priority PriorityFunc) *Engine {
	if priority == nil {
		priority = DefaultPriority
	}
	e := &Engine{priority: priority}
	heap.Init(&e.pending)
	return e
}

// Add enqueues tx for the next ordering.
func (e *Engine) Add(tx *types.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	heap.Push(&e.pending, &entry{tx: tx, priority: e.priority(tx)})
}

// Pending returns the number of queued transactions.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Len()
}

// GetOptimalOrdering drains all pending transactions in descending
// priority order (§4.8). Transactions of equal priority come out in
// whatever order the heap yields, which is not necessarily arrival order.
func (e *Engine) GetOptimalOrdering() []*types.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*types.Transaction, 0, e.pending.Len())
	for e.pending.Len() > 0 {
		out = append(out, heap.Pop(&e.pending).(*entry).tx)
	}
	return out
}

// ComputeFairnessHash is SHA-256 over a canonical sender||recipient||
// amount||nonce concatenation of txs, in order (§4.8).
func ComputeFairnessHash(txs []*types.Transaction) types.Hash {
	var buf []byte
	for _, tx := range txs {
		var amountBuf, nonceBuf [8]byte
		putUint64(amountBuf[:], tx.Amount)
		putUint64(nonceBuf[:], tx.Nonce)
		buf = append(buf, tx.Sender.Bytes()...)
		buf = append(buf, tx.Recipient.Bytes()...)
		buf = append(buf, amountBuf[:]...)
		buf = append(buf, nonceBuf[:]...)
	}
	return crypto.SHA256Hash(buf)
}

// CreateOrderingCommitment stamps txs with a timestamp and their
// fairness hash (§4.8).
func CreateOrderingCommitment(txs []*types.Transaction, timestamp uint64) *OrderingCommitment {
	return &OrderingCommitment{
		BatchHash:    ComputeFairnessHash(txs),
		Transactions: txs,
		Timestamp:    timestamp,
	}
}

// DetectSandwich scans txs for the three-transaction sandwich pattern
// (§4.8): tx[i] and tx[i+2] share a sender, and tx[i], tx[i+1], tx[i+2]
// all share the same recipient.
func DetectSandwich(txs []*types.Transaction) []SandwichCandidate {
	var out []SandwichCandidate
	for i := 0; i+2 < len(txs); i++ {
		t1, t2, t3 := txs[i], txs[i+1], txs[i+2]
		if t1.Sender == t3.Sender && t2.Recipient == t1.Recipient && t3.Recipient == t1.Recipient {
			out = append(out, SandwichCandidate{FrontIndex: i, VictimIndex: i + 1, BackIndex: i + 2})
		}
	}
	return out
}

// DetectFrontrun scans consecutive transaction pairs to the same
// recipient for the frontrunning pattern (§4.8): tx1.GasPrice >
// frontrunGasRatio * tx2.GasPrice and their timestamps are within 1ms.
func DetectFrontrun(txs []*types.Transaction) []FrontrunCandidate {
	var out []FrontrunCandidate
	for i := 0; i+1 < len(txs); i++ {
		t1, t2 := txs[i], txs[i+1]
		if t1.Recipient != t2.Recipient {
			continue
		}
		if float64(t1.GasPrice) <= frontrunGasRatio*float64(t2.GasPrice) {
			continue
		}
		if absDiffUint64(t1.Timestamp, t2.Timestamp) >= frontrunWindowNanos {
			continue
		}
		out = append(out, FrontrunCandidate{FirstIndex: i, SecondIndex: i + 1})
	}
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func absDiffUint64(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
