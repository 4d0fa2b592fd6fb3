package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/metrics"
	"github.com/quids/quids/state"
)

// Config holds ParallelExecutor sizing (§4.10/§5).
type Config struct {
	// Workers sizes the transaction worker pool; 0 means hardware
	// parallelism (runtime.NumCPU()).
	Workers int

	// MaxParallelContracts bounds how many distinct contract addresses
	// may execute concurrently (calls to the same address always
	// serialize regardless of this bound).
	MaxParallelContracts int64
}

// DefaultConfig returns the spec's default executor sizing.
func DefaultConfig() Config {
	return Config{Workers: 0, MaxParallelContracts: 16}
}

// ErrExecutorStopped is returned by ExecuteBatch/ExecuteContractCall
// once Stop has been called; in-flight work finishes but no new batch
// is admitted (§5 Cancellation).
var ErrExecutorStopped = errors.New("executor: stopped")

// Metrics holds the running counters and averages required by §4.10,
// all updated under a single lock (matching the spec's "metrics
// recorded under a single lock" requirement verbatim, rather than a
// bank of independent atomics).
type Metrics struct {
	mu sync.Mutex

	txProcessed, txFailed             int64
	contractsProcessed, contractsFailed int64
	totalTxTime, totalContractTime    time.Duration
	wallClock                        time.Duration
}

func (m *Metrics) recordTx(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.txFailed++
		return
	}
	m.txProcessed++
	m.totalTxTime += d
}

func (m *Metrics) recordContract(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.contractsFailed++
		return
	}
	m.contractsProcessed++
	m.totalContractTime += d
}

func (m *Metrics) addWallClock(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallClock += d
}

// Snapshot is a point-in-time copy of Metrics suitable for export.
type Snapshot struct {
	TxProcessed, TxFailed               int64
	ContractsProcessed, ContractsFailed int64
	AvgTxTime, AvgContractTime          time.Duration
	WallClock                           time.Duration
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		TxProcessed:        m.txProcessed,
		TxFailed:           m.txFailed,
		ContractsProcessed: m.contractsProcessed,
		ContractsFailed:    m.contractsFailed,
		WallClock:          m.wallClock,
	}
	if m.txProcessed > 0 {
		s.AvgTxTime = m.totalTxTime / time.Duration(m.txProcessed)
	}
	if m.contractsProcessed > 0 {
		s.AvgContractTime = m.totalContractTime / time.Duration(m.contractsProcessed)
	}
	return s
}

// ParallelExecutor implements C10: it receives exclusive mutation
// rights over a StateManager for the duration of a batch (§3
// Ownership), partitions the batch into dependency-independent
// sub-batches (scheduler.go), and executes each sub-batch across a
// work-stealing pool (pool.go) while fine-grained address locks
// (lock.go) preserve per-sender ordering guarantees.
type ParallelExecutor struct {
	config Config
	locker shardedLocker
	metrics Metrics

	contractMu    sync.Mutex
	contractLocks map[types.Address]*sync.Mutex
	contractSem   *semaphore.Weighted

	stopped stopFlag
}

// stopFlag is a tiny mutex-guarded boolean for Stop()/ErrExecutorStopped.
type stopFlag struct {
	mu sync.Mutex
	v  bool
}

func (f *stopFlag) set()        { f.mu.Lock(); f.v = true; f.mu.Unlock() }
func (f *stopFlag) isSet() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.v }

// New creates a ParallelExecutor with the given sizing.
func New(config Config) *ParallelExecutor {
	if config.MaxParallelContracts <= 0 {
		config.MaxParallelContracts = DefaultConfig().MaxParallelContracts
	}
	return &ParallelExecutor{
		config:        config,
		contractLocks: make(map[types.Address]*sync.Mutex),
		contractSem:   semaphore.NewWeighted(config.MaxParallelContracts),
	}
}

// Metrics returns the executor's running counters.
func (e *ParallelExecutor) Metrics() *Metrics { return &e.metrics }

// Stop signals the executor to admit no further batches; batches
// already in ExecuteBatch finish normally (§5 Cancellation: in-flight
// transactions finish, pending work is not applied).
func (e *ParallelExecutor) Stop() { e.stopped.set() }

// ExecuteBatch applies txs to sm, exploiting independence between
// non-conflicting transactions for parallelism while guaranteeing the
// resulting state root is identical to serial application in the given
// order (property 1). It returns the number of transactions in the
// dependency batches that completed before the first error. On error,
// every earlier dependency batch has been applied to sm; the failing
// transaction leaves sm unchanged (ApplyTransaction's own atomicity),
// but other transactions of the same dependency batch run to completion
// and may have been applied without being counted in the returned number.
func (e *ParallelExecutor) ExecuteBatch(sm *state.StateManager, txs []*types.Transaction) (int, error) {
	if e.stopped.isSet() {
		return 0, ErrExecutorStopped
	}
	start := time.Now()
	defer func() {
		d := time.Since(start)
		e.metrics.addWallClock(d)
		metrics.ExecutorBatchWallClock.Observe(float64(d.Milliseconds()))
	}()

	applied := 0
	for _, batch := range dependentBatches(txs) {
		if len(batch) == 1 {
			tx := txs[batch[0]]
			if err := e.applyOne(sm, tx); err != nil {
				return applied, err
			}
			applied++
			continue
		}

		pool := NewPool(e.config.Workers)
		tasks := make([]*Task, len(batch))
		for i, idx := range batch {
			tx := txs[idx]
			tasks[i] = &Task{
				ID:     idx,
				Weight: tx.GasLimit,
				Execute: func() error { return e.applyOne(sm, tx) },
			}
		}
		pool.SubmitByWeight(tasks)
		if err := pool.Run(); err != nil {
			return applied, err
		}
		applied += len(batch)
	}
	return applied, nil
}

func (e *ParallelExecutor) applyOne(sm *state.StateManager, tx *types.Transaction) error {
	unlock := e.locker.lockAddrs(tx.Sender, tx.Recipient)
	defer unlock()

	start := time.Now()
	err := sm.ApplyTransaction(tx)
	e.metrics.recordTx(time.Since(start), err)
	return err
}

// ExecuteContractCall runs fn under the per-address serialization and
// global max_parallel_contracts bound described in §4.10: calls to the
// same address always serialize; calls to different addresses may run
// concurrently up to MaxParallelContracts. There is no contract
// execution engine in this domain (transfers only); this is the
// extension point a bridge or future opcode interpreter would call
// through.
func (e *ParallelExecutor) ExecuteContractCall(ctx context.Context, addr types.Address, fn func() error) error {
	if e.stopped.isSet() {
		return ErrExecutorStopped
	}
	if err := e.contractSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.contractSem.Release(1)

	lock := e.contractLockFor(addr)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := fn()
	e.metrics.recordContract(time.Since(start), err)
	return err
}

func (e *ParallelExecutor) contractLockFor(addr types.Address) *sync.Mutex {
	e.contractMu.Lock()
	defer e.contractMu.Unlock()
	l, ok := e.contractLocks[addr]
	if !ok {
		l = &sync.Mutex{}
		e.contractLocks[addr] = l
	}
	return l
}
