// Package consensus implements BatchConsensus (C9), the Proof-of-Batch-
// Proof-Consensus (PoBPC) witness protocol (§4.9): batches of pending
// transaction bytes are proven with a zero-knowledge batch proof, a
// weighted-random committee of witnesses is asked to countersign the
// proof's batch hash, and the batch commits once a supermajority of
// witness signatures verify.
//
// Witness selection reuses the beacon-chain swap-or-not shuffle
// (shuffle.go, grounded on committee_selection.go) and weighted-
// rejection-sampling pattern (ComputeProposerIndex) with reliability
// score standing in for effective balance. Vote participation is
// tracked with the bitfield helpers adapted from
// attestation_aggregator.go (bitfield.go). AddTransaction rejects
// transaction bytes this BatchConsensus has already seen, in any round,
// using a github.com/holiman/bloomfilter/v2 filter that is never cleared,
// the same seen-set idiom go-ethereum's state snapshot
// generator uses ahead of its trie walk.
package consensus

import (
	"errors"
	"hash"
	"hash/fnv"
	"sync"
	"time"

	"github.com/holiman/bloomfilter/v2"

	"github.com/quids/quids/crypto"
	"github.com/quids/quids/zkproof"
)

// Config holds BatchConsensus tunables (§4.9).
type Config struct {
	MaxTransactions    int
	BatchInterval      time.Duration
	WitnessCount       int
	ConsensusThreshold float64

	// QueueCapacity bounds the pending transaction-byte queue.
	// AddTransaction fails once it is reached. Defaults to 10x
	// MaxTransactions if zero.
	QueueCapacity int

	// CommitmentDimension sizes the QuantumState derived for the batch's
	// ZK proof.
	CommitmentDimension int
}

// DefaultConfig returns the spec's default tunables.
func DefaultConfig() Config {
	return Config{
		MaxTransactions:     100,
		BatchInterval:       time.Second,
		WitnessCount:        7,
		ConsensusThreshold:  0.67,
		QueueCapacity:       1000,
		CommitmentDimension: 16,
	}
}

// BatchState is a batch's position in the OPEN -> PROOF_GENERATED ->
// COLLECTING_VOTES -> COMMITTED|ABANDONED state machine (§4.9).
type BatchState uint8

const (
	StateOpen BatchState = iota
	StateProofGenerated
	StateCollectingVotes
	StateCommitted
	StateAbandoned
)

func (s BatchState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateProofGenerated:
		return "PROOF_GENERATED"
	case StateCollectingVotes:
		return "COLLECTING_VOTES"
	case StateCommitted:
		return "COMMITTED"
	case StateAbandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

// WitnessInfo tracks a registered witness's signing key and reliability.
type WitnessInfo struct {
	NodeID           string
	PublicKey        []byte
	ReliabilityScore float64
	LastActive       time.Time
}

// BatchProof is the consensus-layer proof artifact (§3): a ZK proof over
// the batch's transaction-hash commitment plus accumulating witness
// signatures.
type BatchProof struct {
	ProofData         []byte
	BatchHash         [32]byte
	Timestamp         int64
	TransactionCount  int
	WitnessSignatures [][]byte
}

// Consensus errors.
var (
	ErrQueueFull             = errors.New("consensus: transaction queue is full")
	ErrNoPendingTxs          = errors.New("consensus: no pending transactions to batch")
	ErrUnknownBatch          = errors.New("consensus: unknown batch hash")
	ErrUnknownWitness        = errors.New("consensus: unknown witness id")
	ErrBadWitnessVote        = errors.New("consensus: witness signature does not verify")
	ErrWrongBatchState       = errors.New("consensus: batch is not accepting votes")
	ErrNoWitnessesRegistered = errors.New("consensus: no witnesses registered")
	ErrDuplicateTransaction  = errors.New("consensus: transaction already seen")
)

// dedupMaxElements/dedupFalsePositiveRate size the bloom filter AddTransaction
// uses to reject transaction bytes it has already seen (in this or any
// earlier round), before they reach the pending queue at all. There is no
// exact check behind the filter, so a false positive rejects a new
// transaction.
const (
	dedupMaxElements       = 1_000_000
	dedupFalsePositiveRate = 0.001
)

// round is the internal bookkeeping for one batch's journey through the
// state machine; BatchProof itself only carries the spec's public fields.
type round struct {
	proof    *BatchProof
	state    BatchState
	opened   time.Time
	selected []string          // witness node IDs chosen for this round
	votes    map[string][]byte // node ID -> signature, once submitted
	bits     []byte            // participation bitfield over `selected`
}

// BatchConsensus implements PoBPC.
type BatchConsensus struct {
	mu sync.Mutex

	config Config
	engine *zkproof.Engine

	pending [][]byte // queued raw transaction bytes, not yet batched

	witnesses map[string]*WitnessInfo
	rounds    map[[32]byte]*round

	seen       *bloomfilter.Filter // probabilistic seen-tx-bytes set, guards pending
	seenHasher hash.Hash64
}

// New creates a BatchConsensus backed by engine for ZK batch proofs.
func New(config Config, engine *zkproof.Engine) *BatchConsensus {
	d := DefaultConfig()
	if config.MaxTransactions <= 0 {
		config.MaxTransactions = d.MaxTransactions
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = config.MaxTransactions * 10
	}
	if config.CommitmentDimension <= 0 {
		config.CommitmentDimension = d.CommitmentDimension
	}
	if config.WitnessCount <= 0 {
		config.WitnessCount = d.WitnessCount
	}
	if config.ConsensusThreshold <= 0 {
		config.ConsensusThreshold = d.ConsensusThreshold
	}
	if config.BatchInterval <= 0 {
		config.BatchInterval = d.BatchInterval
	}
	seen, err := bloomfilter.NewOptimal(dedupMaxElements, dedupFalsePositiveRate)
	if err != nil {
		// Only fails for a degenerate element count or rate, both fixed
		// constants above.
		panic(err)
	}
	return &BatchConsensus{
		config:     config,
		engine:     engine,
		witnesses:  make(map[string]*WitnessInfo),
		rounds:     make(map[[32]byte]*round),
		seen:       seen,
		seenHasher: fnv.New64a(),
	}
}

// AddTransaction enqueues a raw transaction for the next batch (§4.9).
func (c *BatchConsensus) AddTransaction(txBytes []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) >= c.config.QueueCapacity {
		return ErrQueueFull
	}
	c.seenHasher.Reset()
	c.seenHasher.Write(txBytes)
	if c.seen.Contains(c.seenHasher) {
		return ErrDuplicateTransaction
	}
	c.seen.Add(c.seenHasher)

	cp := make([]byte, len(txBytes))
	copy(cp, txBytes)
	c.pending = append(c.pending, cp)
	return nil
}

// PendingCount returns the number of queued, not-yet-batched transactions.
func (c *BatchConsensus) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// RegisterWitness adds or updates a witness with an initial reliability
// score of 1.0 (§4.9). Re-registering an existing node ID replaces its
// public key but preserves its accrued reliability.
func (c *BatchConsensus) RegisterWitness(nodeID string, publicKey []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.witnesses[nodeID]; ok {
		w.PublicKey = publicKey
		w.LastActive = now
		return
	}
	c.witnesses[nodeID] = &WitnessInfo{
		NodeID:           nodeID,
		PublicKey:        publicKey,
		ReliabilityScore: 1.0,
		LastActive:       now,
	}
}

// WitnessInfoFor returns a copy of the registered witness's info, if any.
func (c *BatchConsensus) WitnessInfoFor(nodeID string) (WitnessInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.witnesses[nodeID]
	if !ok {
		return WitnessInfo{}, false
	}
	return *w, true
}

// GenerateBatchProof drains up to MaxTransactions pending transactions,
// computes batch_hash = H(tx_hashes), and produces a ZK proof of the
// batch commitment (§4.9). The returned proof has no witness signatures
// yet; SelectWitnesses/SubmitWitnessVote populate them.
func (c *BatchConsensus) GenerateBatchProof(now time.Time) (*BatchProof, error) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil, ErrNoPendingTxs
	}
	n := len(c.pending)
	if n > c.config.MaxTransactions {
		n = c.config.MaxTransactions
	}
	batchTxs := c.pending[:n]
	c.pending = c.pending[n:]
	c.mu.Unlock()

	batchHash := hashTxBytes(batchTxs)
	commitment := deriveBatchCommitment(c.config.CommitmentDimension, batchHash)
	zkp, err := c.engine.Generate(commitment)
	if err != nil {
		return nil, err
	}

	proof := &BatchProof{
		ProofData:        zkp.ProofData,
		BatchHash:        batchHash,
		Timestamp:        now.UnixNano(),
		TransactionCount: n,
	}

	c.mu.Lock()
	c.rounds[batchHash] = &round{
		proof:  proof,
		state:  StateProofGenerated,
		opened: now,
		votes:  make(map[string][]byte),
	}
	c.mu.Unlock()
	return proof, nil
}

// SelectWitnesses performs a weighted random selection (without
// replacement) of WitnessCount witnesses for batchHash's round, weighted
// by reliability_score and deterministic given seed (§4.9). It also
// transitions the round to COLLECTING_VOTES.
func (c *BatchConsensus) SelectWitnesses(batchHash [32]byte, seed [32]byte) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rounds[batchHash]
	if !ok {
		return nil, ErrUnknownBatch
	}
	if len(c.witnesses) == 0 {
		return nil, ErrNoWitnessesRegistered
	}

	ids := make([]string, 0, len(c.witnesses))
	for id := range c.witnesses {
		ids = append(ids, id)
	}
	sortStrings(ids)

	n := uint64(len(ids))
	order := make([]int, n)
	for i := range order {
		shuffled, err := ComputeShuffledIndex(uint64(i), n, seed)
		if err != nil {
			return nil, err
		}
		order[i] = int(shuffled)
	}

	want := c.config.WitnessCount
	if want > len(ids) {
		want = len(ids)
	}
	selected := make([]string, 0, want)
	used := make(map[int]bool, want)

	maxAttempts := len(order) * 64
	attempt := uint64(0)
	for len(selected) < want && int(attempt) < maxAttempts {
		pos := order[int(attempt)%len(order)]
		attempt++
		if used[pos] {
			continue
		}
		w := c.witnesses[ids[pos]].ReliabilityScore
		randByte := weightedRandByte(seed, attempt)
		if w*255 >= float64(randByte) {
			selected = append(selected, ids[pos])
			used[pos] = true
		}
	}
	// Fill any shortfall (low-reliability witnesses repeatedly rejected
	// the coin flip) from the remaining shuffled order, so a round never
	// starves when enough registered witnesses exist.
	for _, pos := range order {
		if len(selected) >= want {
			break
		}
		if !used[pos] {
			selected = append(selected, ids[pos])
			used[pos] = true
		}
	}

	r.selected = selected
	r.bits = nil
	r.state = StateCollectingVotes
	return append([]string(nil), selected...), nil
}

// SubmitWitnessVote verifies sig against the named witness's registered
// public key over batchHash, records the vote, and updates the witness's
// reliability via EMA: r <- 0.9*r + 0.1*(success?1:0) (§4.9).
func (c *BatchConsensus) SubmitWitnessVote(batchHash [32]byte, witnessID string, sig []byte, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rounds[batchHash]
	if !ok {
		return ErrUnknownBatch
	}
	if r.state != StateCollectingVotes {
		return ErrWrongBatchState
	}
	w, ok := c.witnesses[witnessID]
	if !ok {
		return ErrUnknownWitness
	}

	valid := crypto.VerifyRaw(crypto.SchemeEd25519, w.PublicKey, r.proof.BatchHash[:], sig)
	w.ReliabilityScore = 0.9*w.ReliabilityScore + 0.1*boolToFloat(valid)
	w.LastActive = now

	if !valid {
		return ErrBadWitnessVote
	}

	r.votes[witnessID] = sig
	r.proof.WitnessSignatures = append(r.proof.WitnessSignatures, sig)
	if idx := indexOf(r.selected, witnessID); idx >= 0 {
		r.bits = SetBit(r.bits, idx)
	}

	if c.reachedConsensusLocked(r) {
		r.state = StateCommitted
	}
	return nil
}

// HasReachedConsensus reports whether proof's verified witness signatures
// meet the configured threshold (§4.9). Signatures are re-verified
// against each selected witness's registered public key here, rather
// than trusted from submission bookkeeping, so the guarantee holds even
// if a caller passes around an independently-obtained BatchProof copy.
func (c *BatchConsensus) HasReachedConsensus(proof *BatchProof) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rounds[proof.BatchHash]
	if !ok {
		return false
	}
	return c.reachedConsensusLocked(r)
}

// reachedConsensusLocked must be called with c.mu held.
func (c *BatchConsensus) reachedConsensusLocked(r *round) bool {
	if len(r.selected) == 0 {
		return false
	}
	valid := c.validSignatureCountLocked(r)
	return float64(valid)/float64(len(r.selected)) >= c.config.ConsensusThreshold
}

func (c *BatchConsensus) validSignatureCountLocked(r *round) int {
	valid := 0
	for _, nodeID := range r.selected {
		sig, ok := r.votes[nodeID]
		if !ok {
			continue
		}
		w, ok := c.witnesses[nodeID]
		if !ok {
			continue
		}
		if crypto.VerifyRaw(crypto.SchemeEd25519, w.PublicKey, r.proof.BatchHash[:], sig) {
			valid++
		}
	}
	return valid
}

// Confidence returns the fraction of selected witnesses whose votes
// verify (§4.9).
func (c *BatchConsensus) Confidence(batchHash [32]byte) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rounds[batchHash]
	if !ok || len(r.selected) == 0 {
		return 0
	}
	return float64(c.validSignatureCountLocked(r)) / float64(len(r.selected))
}

// State returns a round's current BatchState.
func (c *BatchConsensus) State(batchHash [32]byte) (BatchState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rounds[batchHash]
	if !ok {
		return 0, false
	}
	return r.state, true
}

// CheckTimeouts abandons any round in PROOF_GENERATED or
// COLLECTING_VOTES that has been open for more than 3*BatchInterval
// without reaching consensus (the stop()/timeout semantics of §9: a
// batch whose witness collection times out is abandoned without being
// committed), returning the hashes abandoned in this call.
func (c *BatchConsensus) CheckTimeouts(now time.Time) [][32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var abandoned [][32]byte
	deadline := 3 * c.config.BatchInterval
	for hash, r := range c.rounds {
		if r.state == StateCommitted || r.state == StateAbandoned {
			continue
		}
		if now.Sub(r.opened) > deadline {
			r.state = StateAbandoned
			abandoned = append(abandoned, hash)
		}
	}
	return abandoned
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// sortStrings is a small insertion sort over witness node IDs (at most a
// few dozen per round) so SelectWitnesses' shuffle input order is
// deterministic across calls without pulling in "sort" for so small a
// slice.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
