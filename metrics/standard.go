package metrics

// Pre-defined metrics for the quids rollup node. All metrics live in
// DefaultRegistry so they are globally accessible without passing a registry
// around.

var (
	// ---- Batch pipeline metrics (C11 BatchProcessor) ----

	// BatchesSealed counts batches cut from the pending queue.
	BatchesSealed = DefaultRegistry.Counter("batch.sealed")
	// BatchProcessTime records ProcessBatch wall-clock duration in milliseconds.
	BatchProcessTime = DefaultRegistry.Histogram("batch.process_ms")
	// BatchesFinalized counts batches that reached consensus and were persisted.
	BatchesFinalized = DefaultRegistry.Counter("batch.finalized")
	// BatchesAbandoned counts batches that failed consensus after retry.
	BatchesAbandoned = DefaultRegistry.Counter("batch.abandoned")

	// ---- Transaction admission metrics ----

	// TxPending tracks the number of transactions waiting for the next batch.
	TxPending = DefaultRegistry.Gauge("tx.pending")
	// TxAdmitted counts transactions accepted by AdmitTransaction.
	TxAdmitted = DefaultRegistry.Counter("tx.admitted")
	// TxRejected counts transactions rejected at admission (any §7 InvalidTransaction/Overload cause).
	TxRejected = DefaultRegistry.Counter("tx.rejected")

	// ---- Parallel execution metrics (C10 ParallelExecutor) ----

	// ExecutorTasksExecuted counts transactions applied through the work-stealing pool.
	ExecutorTasksExecuted = DefaultRegistry.Counter("executor.tasks_executed")
	// ExecutorTasksStolen counts tasks picked up by an idle worker from a busy one's deque.
	ExecutorTasksStolen = DefaultRegistry.Counter("executor.tasks_stolen")
	// ExecutorBatchWallClock records ExecuteBatch wall-clock duration in milliseconds.
	ExecutorBatchWallClock = DefaultRegistry.Histogram("executor.batch_wall_ms")

	// ---- ZK proof metrics ----

	// ProofsGenerated counts state-transition proofs produced.
	ProofsGenerated = DefaultRegistry.Counter("proof.generated")
	// ProofsRejected counts proofs that failed verification (ProofFailure kind).
	ProofsRejected = DefaultRegistry.Counter("proof.rejected")
	// ProofGenerateTime records proof generation duration in milliseconds.
	ProofGenerateTime = DefaultRegistry.Histogram("proof.generate_ms")

	// ---- Consensus metrics (PoBPC) ----

	// WitnessVotesReceived counts individual witness votes submitted.
	WitnessVotesReceived = DefaultRegistry.Counter("consensus.witness_votes")
	// ConsensusRoundsReached counts rounds that reached quorum on the first attempt.
	ConsensusRoundsReached = DefaultRegistry.Counter("consensus.rounds_reached")
	// ConsensusRoundsRetried counts rounds that needed a witness-selection retry.
	ConsensusRoundsRetried = DefaultRegistry.Counter("consensus.rounds_retried")

	// ---- Fraud / exit proof metrics ----

	// FraudChallengesOpened counts bisection disputes opened.
	FraudChallengesOpened = DefaultRegistry.Counter("fraud.challenges_opened")
	// EmergencyExitsProcessed counts emergency exit proofs accepted.
	EmergencyExitsProcessed = DefaultRegistry.Counter("fraud.emergency_exits")

	// ---- Storage / broadcast metrics ----

	// StoragePuts counts successful BatchStore writes.
	StoragePuts = DefaultRegistry.Counter("storage.puts")
	// StorageErrors counts failed BatchStore operations.
	StorageErrors = DefaultRegistry.Counter("storage.errors")
	// BroadcastMessagesPublished counts messages published to any topic.
	BroadcastMessagesPublished = DefaultRegistry.Counter("broadcast.published")
)
