package rollup

import (
	"errors"
	"sync"
	"time"

	"github.com/quids/quids/consensus"
	"github.com/quids/quids/core/types"
	"github.com/quids/quids/core/types/errs"
	"github.com/quids/quids/executor"
	"github.com/quids/quids/metrics"
	"github.com/quids/quids/mev"
	"github.com/quids/quids/proofs"
	"github.com/quids/quids/state"
)

// ErrorKind classifies BatchProcessor failures per the error taxonomy
// (§7). It does not replace Go's error values; Classify maps an error
// returned by this package to its kind for callers implementing the
// taxonomy's retry/abandon policy.
type ErrorKind uint8

const (
	KindInvalidTransaction ErrorKind = iota
	KindStateRule
	KindProofFailure
	KindConsensusFailure
	KindOverload
	KindIOFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidTransaction:
		return "InvalidTransaction"
	case KindStateRule:
		return "StateRule"
	case KindProofFailure:
		return "ProofFailure"
	case KindConsensusFailure:
		return "ConsensusFailure"
	case KindOverload:
		return "Overload"
	case KindIOFailure:
		return "IOFailure"
	default:
		return "Unknown"
	}
}

// Admission errors (InvalidTransaction/Overload kinds, §4.11/§7).
var (
	ErrSelfTransfer     = errors.New("rollup: sender and recipient must differ")
	ErrZeroAmount       = errors.New("rollup: amount must be non-zero")
	ErrBadSignatureLen  = errors.New("rollup: signature is missing (all zero bytes)")
	ErrGasOutOfBounds   = errors.New("rollup: gas limit outside bounds")
	ErrPayloadTooLarge  = errors.New("rollup: transaction payload exceeds MaxDataSize")
	ErrRateLimited      = errors.New("rollup: sender exceeded the admission rate limit")
	ErrOverloaded       = errors.New("rollup: queue depth exceeds the overload threshold")
	ErrNoPendingBatch   = errors.New("rollup: no pending transactions to cut a batch from")
	ErrConsensusPending = errors.New("rollup: consensus not yet reached; retry with fresh witnesses")
	ErrConsensusFailed  = errors.New("rollup: consensus failed after retry; batch abandoned")
)

// Classify maps a BatchProcessor error to its §7 taxonomy kind. Errors
// this package never returns (e.g. raw StateManager/proofs errors
// surfaced unwrapped) classify as KindStateRule, the taxonomy's
// catch-all for state-application failures.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrSelfTransfer), errors.Is(err, ErrZeroAmount),
		errors.Is(err, ErrBadSignatureLen), errors.Is(err, ErrGasOutOfBounds),
		errors.Is(err, ErrPayloadTooLarge):
		return KindInvalidTransaction
	case errors.Is(err, ErrOverloaded), errors.Is(err, ErrRateLimited):
		return KindOverload
	case errors.Is(err, ErrConsensusPending), errors.Is(err, ErrConsensusFailed):
		return KindConsensusFailure
	case errors.Is(err, proofs.ErrPostRootMismatch):
		return KindProofFailure
	default:
		return KindStateRule
	}
}

// errsKind maps this package's local ErrorKind to the shared errs.Kind
// taxonomy (errs.Kind starts at 1 so the zero value stays "unset").
func (k ErrorKind) errsKind() errs.Kind {
	switch k {
	case KindInvalidTransaction:
		return errs.InvalidTransaction
	case KindStateRule:
		return errs.StateRule
	case KindProofFailure:
		return errs.ProofFailure
	case KindConsensusFailure:
		return errs.ConsensusFailure
	case KindOverload:
		return errs.Overload
	case KindIOFailure:
		return errs.IOFailure
	default:
		return errs.StateRule
	}
}

// WrapError classifies err per Classify and wraps it as a *errs.QuidsError
// carrying the shared taxonomy Kind, for callers outside this package
// (cmd/quids, logging/alerting) that want to dispatch on errs.Kind rather
// than rollup's local ErrorKind. Returns nil if err is nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(Classify(err).errsKind(), err)
}

// PendingCommit bundles one batch's state-transition proof and
// in-flight consensus round, awaiting witness votes before it can be
// finalized (§4.11 pipeline step BatchConsensus).
type PendingCommit struct {
	Batch           *types.Batch
	PreStateRoot    types.Hash
	StateProof      *proofs.StateTransitionProof
	ConsensusProof  *consensus.BatchProof
	SelectedWitness []string
	retried         bool
}

// BatchProcessor implements C11: ingress validation, MEV-ordered
// batching, state transition proving, consensus witnessing, and
// persistence/broadcast.
type BatchProcessor struct {
	mu     sync.Mutex
	config Config

	state    *state.StateManager
	mev      *mev.Engine
	exec     *executor.ParallelExecutor
	prover   *proofs.StateTransitionProver
	pobpc    *consensus.BatchConsensus
	store    BatchStore
	broker   Broadcaster
	pipeline *metrics.PipelineCollector

	nextBatchID    uint64
	firstEnqueued  time.Time
	rateWindow     map[types.Address]*rateCounter
}

type rateCounter struct {
	windowStart time.Time
	count       int
}

// New creates a BatchProcessor wiring the given components. store and
// broker may be nil (persistence/broadcast are then skipped, useful for
// tests that only care about the proving/consensus pipeline). exec may
// be nil, in which case a default-sized ParallelExecutor is created.
func New(config Config, sm *state.StateManager, mevEngine *mev.Engine, exec *executor.ParallelExecutor, prover *proofs.StateTransitionProver, pobpc *consensus.BatchConsensus, store BatchStore, broker Broadcaster) *BatchProcessor {
	d := DefaultConfig()
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = d.MaxBatchSize
	}
	if config.MinBatchSize <= 0 {
		config.MinBatchSize = d.MinBatchSize
	}
	if config.MaxWaitTime <= 0 {
		config.MaxWaitTime = d.MaxWaitTime
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = d.RateLimitWindow
	}
	if config.RateLimitMax <= 0 {
		config.RateLimitMax = d.RateLimitMax
	}
	if config.OverloadThreshold <= 0 {
		config.OverloadThreshold = d.OverloadThreshold
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = d.QueueCapacity
	}
	if exec == nil {
		exec = executor.New(executor.DefaultConfig())
	}
	return &BatchProcessor{
		config:      config,
		state:       sm,
		mev:         mevEngine,
		exec:        exec,
		prover:      prover,
		pobpc:       pobpc,
		store:       store,
		broker:      broker,
		pipeline:    metrics.NewPipelineCollector(),
		nextBatchID: 1,
		rateWindow:  make(map[types.Address]*rateCounter),
	}
}

// PipelineMetrics returns the BatchProcessor's client_golang-backed
// collector, for mounting its own /metrics endpoint alongside the
// hand-rolled PrometheusExporter's.
func (p *BatchProcessor) PipelineMetrics() *metrics.PipelineCollector {
	return p.pipeline
}

// AdmitTransaction validates tx against the §4.11 ingress rules and, on
// success, enqueues it for the next batch. payloadSize is the size in
// bytes of any out-of-band data associated with tx (0 if none); it is
// checked against MaxDataSize since Transaction itself carries no
// variable-length payload field in this domain.
func (p *BatchProcessor) AdmitTransaction(tx *types.Transaction, payloadSize int, now time.Time) error {
	if tx.Sender == tx.Recipient {
		return ErrSelfTransfer
	}
	if tx.Amount == 0 {
		return ErrZeroAmount
	}
	if tx.Signature == ([types.SignatureLength]byte{}) {
		return ErrBadSignatureLen
	}
	if tx.GasLimit < types.MinGasLimit || tx.GasLimit > types.MaxGasLimit {
		return ErrGasOutOfBounds
	}
	if payloadSize > p.config.MaxDataSize {
		metrics.TxRejected.Inc()
		return ErrPayloadTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mev.Pending() >= int(float64(p.config.QueueCapacity)*p.config.OverloadThreshold) {
		metrics.TxRejected.Inc()
		return ErrOverloaded
	}
	if !p.admitRateLocked(tx.Sender, now) {
		metrics.TxRejected.Inc()
		return ErrRateLimited
	}
	if p.mev.Pending() == 0 {
		p.firstEnqueued = now
	}
	p.mev.Add(tx)
	metrics.TxAdmitted.Inc()
	metrics.TxPending.Set(int64(p.mev.Pending()))
	if p.broker != nil {
		txHash := tx.Hash()
		if err := p.broker.Publish("tx", txHash.Bytes()); err == nil {
			metrics.BroadcastMessagesPublished.Inc()
		}
	}
	return nil
}

func (p *BatchProcessor) admitRateLocked(sender types.Address, now time.Time) bool {
	rc, ok := p.rateWindow[sender]
	if !ok || now.Sub(rc.windowStart) >= p.config.RateLimitWindow {
		p.rateWindow[sender] = &rateCounter{windowStart: now, count: 1}
		return true
	}
	if rc.count >= p.config.RateLimitMax {
		return false
	}
	rc.count++
	return true
}

// ShouldCutBatch reports whether the current pending queue should be
// sealed into a batch now: MaxBatchSize reached, or MaxWaitTime elapsed
// with at least MinBatchSize pending (§4.11).
func (p *BatchProcessor) ShouldCutBatch(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.mev.Pending()
	if n == 0 {
		return false
	}
	if n >= p.config.MaxBatchSize {
		return true
	}
	return n >= p.config.MinBatchSize && now.Sub(p.firstEnqueued) >= p.config.MaxWaitTime
}

// ProcessBatch drains the pending queue in MEV-fair order, applies it to
// state through the ParallelExecutor, attaches a state-transition proof,
// and opens a BatchConsensus round over it (§4.11 pipeline through
// BatchConsensus). It does not persist or broadcast; call Finalize once
// consensus is reached.
func (p *BatchProcessor) ProcessBatch(now time.Time, witnessSeed [32]byte) (*PendingCommit, error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		metrics.BatchProcessTime.Observe(float64(d.Milliseconds()))
		p.pipeline.BatchAssemblySeconds.Observe(d.Seconds())
	}()

	p.mu.Lock()
	if p.mev.Pending() == 0 {
		p.mu.Unlock()
		return nil, ErrNoPendingBatch
	}
	ordered := p.mev.GetOptimalOrdering()
	batchID := p.nextBatchID
	p.nextBatchID++
	p.mu.Unlock()

	batch := &types.Batch{
		BatchID:      batchID,
		Timestamp:    uint64(now.Unix()),
		Transactions: ordered,
	}

	preRoot := p.state.StateRoot()
	proofStart := time.Now()
	stateProof, err := p.prover.Generate(p.state, batch)
	proofDuration := time.Since(proofStart)
	metrics.ProofGenerateTime.Observe(float64(proofDuration.Milliseconds()))
	p.pipeline.ProofGenSeconds.Observe(proofDuration.Seconds())
	if err != nil {
		metrics.ProofsRejected.Inc()
		return nil, err
	}
	metrics.ProofsGenerated.Inc()
	if _, err := p.exec.ExecuteBatch(p.state, ordered); err != nil {
		return nil, err
	}
	metrics.BatchesSealed.Inc()
	metrics.TxPending.Set(int64(p.mev.Pending()))

	for _, tx := range ordered {
		if err := p.pobpc.AddTransaction(tx.Serialize()); err != nil {
			return nil, err
		}
	}
	consensusProof, err := p.pobpc.GenerateBatchProof(now)
	if err != nil {
		return nil, err
	}
	selected, err := p.pobpc.SelectWitnesses(consensusProof.BatchHash, witnessSeed)
	if err != nil {
		return nil, err
	}

	return &PendingCommit{
		Batch:           batch,
		PreStateRoot:    preRoot,
		StateProof:      stateProof,
		ConsensusProof:  consensusProof,
		SelectedWitness: selected,
	}, nil
}

// SubmitWitnessVote forwards a witness's vote to the underlying
// BatchConsensus round for pc.
func (p *BatchProcessor) SubmitWitnessVote(pc *PendingCommit, witnessID string, sig []byte, now time.Time) error {
	if err := p.pobpc.SubmitWitnessVote(pc.ConsensusProof.BatchHash, witnessID, sig, now); err != nil {
		return err
	}
	metrics.WitnessVotesReceived.Inc()
	if p.broker != nil {
		if err := p.broker.Publish("witness_vote", append([]byte(witnessID+":"), sig...)); err == nil {
			metrics.BroadcastMessagesPublished.Inc()
		}
	}
	return nil
}

// Finalize checks whether pc's consensus round has reached threshold. On
// success it persists and broadcasts the batch and returns it. On
// failure it retries once with a fresh witness selection (returning
// ErrConsensusPending so the caller collects another round of votes);
// a second failure abandons the batch (ErrConsensusFailed), matching
// the §7 ConsensusFailure policy.
func (p *BatchProcessor) Finalize(pc *PendingCommit, now time.Time, retrySeed [32]byte) (*types.Batch, error) {
	if p.pobpc.HasReachedConsensus(pc.ConsensusProof) {
		if p.store != nil {
			if err := p.store.PutBatch(pc.Batch, pc.StateProof); err != nil {
				metrics.StorageErrors.Inc()
				return nil, err
			}
			metrics.StoragePuts.Inc()
		}
		if p.broker != nil {
			if err := p.broker.Publish("state_update", pc.StateProof.PostStateRoot.Bytes()); err != nil {
				return nil, err
			}
			metrics.BroadcastMessagesPublished.Inc()
		}
		metrics.BatchesFinalized.Inc()
		metrics.ConsensusRoundsReached.Inc()
		return pc.Batch, nil
	}
	if pc.retried {
		metrics.BatchesAbandoned.Inc()
		return nil, ErrConsensusFailed
	}
	selected, err := p.pobpc.SelectWitnesses(pc.ConsensusProof.BatchHash, retrySeed)
	if err != nil {
		return nil, err
	}
	pc.SelectedWitness = selected
	pc.retried = true
	metrics.ConsensusRoundsRetried.Inc()
	return nil, ErrConsensusPending
}

// DetectMEV reports the sandwich/frontrunning patterns present in an
// already-ordered batch, for monitoring (§4.8 is advisory once ordering
// has been applied).
func DetectMEV(txs []*types.Transaction) MEVFlags {
	var flags MEVFlags
	for _, s := range mev.DetectSandwich(txs) {
		flags.Sandwiches = append(flags.Sandwiches, SandwichFlag{FrontIndex: s.FrontIndex, VictimIndex: s.VictimIndex, BackIndex: s.BackIndex})
	}
	for _, f := range mev.DetectFrontrun(txs) {
		flags.Frontruns = append(flags.Frontruns, FrontrunFlag{FirstIndex: f.FirstIndex, SecondIndex: f.SecondIndex})
	}
	return flags
}
