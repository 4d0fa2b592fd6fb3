// Package rollup implements BatchProcessor (C11): the top-level pipeline
// that takes admitted transactions through MEV-resistant ordering,
// applies them to the authenticated state, attaches a state-transition
// proof, and hands the result to batch consensus for witness
// countersignature before persistence and broadcast (§4.11):
//
//	ingress -> MEVOrderingEngine -> StateManager -> StateTransitionProver
//	        -> BatchConsensus -> persistence/broadcast
//
// Grounded on the teacher's rollup/sequencer.go batching loop (admission,
// sealing, history), generalized from a raw-byte L1-submission queue to
// the spec's validated, proven, witnessed batch pipeline.
package rollup

import (
	"time"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/proofs"
)

// Config holds BatchProcessor batching policy (§4.11).
type Config struct {
	MaxBatchSize int
	MinBatchSize int
	MaxWaitTime  time.Duration

	// MaxDataSize bounds a transaction's associated payload, if any
	// (§4.11's 128 KiB data-size admission check). The transfer-only
	// Transaction type this module carries (core/types/transaction.go)
	// has no variable-length payload field, so AdmitTransaction checks
	// this bound against an optional out-of-band payload argument rather
	// than against the Transaction itself; callers that never pass a
	// payload always satisfy it trivially.
	MaxDataSize int

	// RateLimitWindow and RateLimitMax implement the "sender not
	// rate-limited" admission check: at most RateLimitMax admitted
	// transactions per sender per RateLimitWindow.
	RateLimitWindow time.Duration
	RateLimitMax    int

	// OverloadThreshold is the queue-depth fraction (of QueueCapacity)
	// above which AdmitTransaction reports ErrOverloaded (§4.11's
	// overload signal: queue depth > 80% of capacity).
	OverloadThreshold float64
	QueueCapacity     int
}

// DefaultConfig returns the spec's default batching policy.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:      100,
		MinBatchSize:      1,
		MaxWaitTime:       time.Second,
		MaxDataSize:       128 * 1024,
		RateLimitWindow:   time.Second,
		RateLimitMax:      50,
		OverloadThreshold: 0.8,
		QueueCapacity:     1000,
	}
}

// MEVFlags reports the MEV patterns detected in a processed batch's
// final ordering, surfaced for monitoring rather than blocking admission
// (§4.8 detection is advisory; the ordering itself is the defense).
type MEVFlags struct {
	Sandwiches []SandwichFlag
	Frontruns  []FrontrunFlag
}

// SandwichFlag names the indices, within a processed batch, of a
// detected sandwich pattern.
type SandwichFlag struct {
	FrontIndex, VictimIndex, BackIndex int
}

// FrontrunFlag names the indices of a detected frontrunning pattern.
type FrontrunFlag struct {
	FirstIndex, SecondIndex int
}

// Broadcaster is the peer-broadcast surface BatchProcessor publishes to
// (§5 "Peer broadcast"): broadcast(topic, bytes). A concrete
// implementation lives in the broadcast package; BatchProcessor only
// depends on this interface so it can be tested without a live hub.
type Broadcaster interface {
	Publish(topic string, payload []byte) error
}

// BatchStore is the persistence surface BatchProcessor writes committed
// batches to (§6): the block header `{number, state_root, previous_hash,
// timestamp}`, the state-transition proof, and (derived by the store
// itself from batch.Transactions) transaction records by hash and
// account histories keyed by address∥block. A concrete implementation
// lives in the storage package.
type BatchStore interface {
	PutBatch(batch *types.Batch, proof *proofs.StateTransitionProof) error
}
