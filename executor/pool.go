// Package executor implements ParallelExecutor (C10): dependency-aware
// scheduling of transactions across a worker pool, preserving the
// serial-application semantics required by property 1 (the post-root
// must not depend on worker count or interleaving).
//
// The worker pool itself is adapted from the teacher's gigagas
// work-stealing scheduler (core/work_stealing.go): each worker owns a
// local deque of tasks and steals from peers when idle. This version
// generalizes the task payload from an EVM gas-cost estimate to a
// generic weight, and replaces the hand-rolled sync.WaitGroup fan-out
// with golang.org/x/sync/errgroup so a failing task's error surfaces to
// the caller instead of being silently swallowed.
package executor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quids/quids/metrics"
)

// Task is a unit of schedulable work with an estimated weight used for
// load-balancing heuristics (SubmitByWeight). Weight is typically a gas
// estimate but is otherwise opaque to the pool.
type Task struct {
	ID      int
	Weight  uint64
	Execute func() error
}

// workDeque is a double-ended queue supporting Push/Pop from the back
// (owner) and Steal from the front (thieves). A mutex is used rather
// than a lock-free structure; steals are infrequent relative to local
// pops so the contention is acceptable.
type workDeque struct {
	mu    sync.Mutex
	items []*Task
}

func (d *workDeque) Push(task *Task) {
	d.mu.Lock()
	d.items = append(d.items, task)
	d.mu.Unlock()
}

func (d *workDeque) Pop() (*Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return nil, false
	}
	n := len(d.items) - 1
	task := d.items[n]
	d.items = d.items[:n]
	return task, true
}

func (d *workDeque) Steal() (*Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return nil, false
	}
	task := d.items[0]
	d.items = d.items[1:]
	return task, true
}

func (d *workDeque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// PoolMetrics tracks worker-pool performance counters.
type PoolMetrics struct {
	TasksExecuted atomic.Uint64
	TasksFailed   atomic.Uint64
	TasksStolen   atomic.Uint64
	TotalWeight   atomic.Uint64
	IdleNanos     atomic.Int64
}

// Snapshot returns a copy of the current metrics.
func (m *PoolMetrics) Snapshot() (executed, failed, stolen, weight uint64, idle time.Duration) {
	return m.TasksExecuted.Load(), m.TasksFailed.Load(), m.TasksStolen.Load(),
		m.TotalWeight.Load(), time.Duration(m.IdleNanos.Load())
}

// Pool is a work-stealing worker pool sized by hardware parallelism
// (§5 "worker pool sized by hardware parallelism").
type Pool struct {
	workers int
	deques  []*workDeque
	metrics PoolMetrics
}

// NewPool creates a pool with numWorkers goroutines. If numWorkers <= 0,
// defaults to runtime.NumCPU().
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	deques := make([]*workDeque, numWorkers)
	for i := range deques {
		deques[i] = &workDeque{}
	}
	return &Pool{workers: numWorkers, deques: deques}
}

func (p *Pool) Workers() int           { return p.workers }
func (p *Pool) Metrics() *PoolMetrics  { return &p.metrics }

// Submit distributes tasks across worker deques using round-robin.
func (p *Pool) Submit(tasks []*Task) {
	for i, task := range tasks {
		p.deques[i%p.workers].Push(task)
	}
}

// SubmitByWeight distributes tasks to the deque with the smallest
// accumulated weight, for better balance across heterogeneous tasks.
func (p *Pool) SubmitByWeight(tasks []*Task) {
	loads := make([]uint64, p.workers)
	for _, task := range tasks {
		minIdx := 0
		for j := 1; j < p.workers; j++ {
			if loads[j] < loads[minIdx] {
				minIdx = j
			}
		}
		p.deques[minIdx].Push(task)
		loads[minIdx] += task.Weight
	}
}

// Run executes all submitted tasks using the work-stealing strategy and
// blocks until every task has been attempted. It returns the first error
// returned by any task (all tasks still run to completion; this is not
// a cancelling errgroup).
func (p *Pool) Run() error {
	var eg errgroup.Group
	for w := 0; w < p.workers; w++ {
		workerID := w
		eg.Go(func() error {
			return p.workerLoop(workerID)
		})
	}
	return eg.Wait()
}

func (p *Pool) workerLoop(workerID int) error {
	myDeque := p.deques[workerID]
	var firstErr error

	for {
		task, ok := myDeque.Pop()
		if ok {
			if err := p.executeTask(task, false); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}

		idleStart := time.Now()
		stolen := false
		for i := 1; i < p.workers; i++ {
			victimID := (workerID + i) % p.workers
			task, ok = p.deques[victimID].Steal()
			if ok {
				p.metrics.IdleNanos.Add(time.Since(idleStart).Nanoseconds())
				if err := p.executeTask(task, true); err != nil && firstErr == nil {
					firstErr = err
				}
				stolen = true
				break
			}
		}

		if !stolen {
			p.metrics.IdleNanos.Add(time.Since(idleStart).Nanoseconds())
			return firstErr
		}
	}
}

func (p *Pool) executeTask(task *Task, wasStolen bool) error {
	err := task.Execute()
	if err != nil {
		p.metrics.TasksFailed.Add(1)
		return err
	}
	p.metrics.TasksExecuted.Add(1)
	p.metrics.TotalWeight.Add(task.Weight)
	metrics.ExecutorTasksExecuted.Inc()
	if wasStolen {
		p.metrics.TasksStolen.Add(1)
		metrics.ExecutorTasksStolen.Inc()
	}
	return nil
}

// RunTasks submits and runs tasks in one call.
func (p *Pool) RunTasks(tasks []*Task) error {
	p.Submit(tasks)
	return p.Run()
}

// TotalPendingTasks returns the sum of tasks across all deques.
func (p *Pool) TotalPendingTasks() int {
	total := 0
	for _, d := range p.deques {
		total += d.Len()
	}
	return total
}
