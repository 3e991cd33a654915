package vm

import (
	"sync"

	"github.com/rubinchain/rubin-node/consensus"
)

// TxResult is one contract tx's outcome within a block, keyed by its
// canonical index so results can be reordered after concurrent
// execution.
type TxResult struct {
	Index int
	Out   *VMOut
	Err   error
}

// MultiContractExecutor is the parallel driver of spec §4.2: it shards
// a block's contract txs across a worker pool, each worker running an
// isolated ContractExecutor over a copy-on-write view of the state
// committed before the block, then checks for cross-transaction
// conflicts and falls back to a sequential re-run when one is found.
type MultiContractExecutor struct {
	newRuntime func() ContractRuntime
	pool       *shellPool
	workers    int

	mu        sync.Mutex
	interrupt bool
}

// NewMultiContractExecutor builds a driver with one shard per worker,
// each shard's ContractExecutor drawing interpreter shells from a
// shared pool sized to workers.
func NewMultiContractExecutor(workers int, newRuntime func() ContractRuntime) *MultiContractExecutor {
	if workers < 1 {
		workers = 1
	}
	return &MultiContractExecutor{
		newRuntime: newRuntime,
		pool:       newShellPool(workers, newRuntime),
		workers:    workers,
	}
}

// Interrupt requests that ExecuteBlock stop starting new txs at the
// next opportunity. It does not abort a tx already in flight.
func (m *MultiContractExecutor) Interrupt() {
	m.mu.Lock()
	m.interrupt = true
	m.mu.Unlock()
}

func (m *MultiContractExecutor) interrupted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interrupt
}

// ExecuteBlock runs every entry of txs (already filtered to contract
// txs, in the block's canonical order) against base, the
// ContractContext committed by every earlier block. It returns
// per-tx results in canonical order plus the resulting post-state.
//
// It first attempts the parallel pass; if the conflict check trips,
// it discards that result and re-runs sequentially, returning the
// sequential result instead. Either way the caller observes output
// "as if" execution had been sequential, per spec §4.2's invariant.
func (m *MultiContractExecutor) ExecuteBlock(txs []*consensus.Tx, base MapContractContext, env ExecuteEnv) ([]TxResult, MapContractContext, error) {
	results := m.runParallel(txs, base, env)
	if !hasConflict(results) {
		post, err := applyResults(base, results)
		return results, post, err
	}
	results = m.runSequential(txs, base, env)
	post, err := applyResults(base, results)
	return results, post, err
}

// runParallel partitions txs into m.workers contiguous shards (block
// order preserved within each shard) and runs each shard on its own
// ContractExecutor seeded with a clone of base.
func (m *MultiContractExecutor) runParallel(txs []*consensus.Tx, base MapContractContext, env ExecuteEnv) []TxResult {
	results := make([]TxResult, len(txs))
	if len(txs) == 0 {
		return results
	}
	shards := m.workers
	if shards > len(txs) {
		shards = len(txs)
	}
	per := (len(txs) + shards - 1) / shards

	var wg sync.WaitGroup
	for s := 0; s < shards; s++ {
		start := s * per
		end := start + per
		if start >= len(txs) {
			break
		}
		if end > len(txs) {
			end = len(txs)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			rt := m.pool.get()
			defer m.pool.release(rt)
			exec := NewContractExecutor(rt, m.pool)
			exec.data = base.Clone()
			for i := start; i < end; i++ {
				if m.interrupted() {
					results[i] = TxResult{Index: i, Err: consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "interrupted")}
					continue
				}
				out, err := exec.ExecuteTx(txs[i], i, env)
				results[i] = TxResult{Index: i, Out: out, Err: err}
			}
		}(start, end)
	}
	wg.Wait()
	return results
}

// runSequential is the fallback path: one ContractExecutor, one
// shell, txs applied strictly in canonical order.
func (m *MultiContractExecutor) runSequential(txs []*consensus.Tx, base MapContractContext, env ExecuteEnv) []TxResult {
	results := make([]TxResult, len(txs))
	rt := m.pool.get()
	defer m.pool.release(rt)
	exec := NewContractExecutor(rt, m.pool)
	exec.data = base.Clone()
	for i, tx := range txs {
		if m.interrupted() {
			results[i] = TxResult{Index: i, Err: consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "interrupted")}
			continue
		}
		out, err := exec.ExecuteTx(tx, i, env)
		results[i] = TxResult{Index: i, Out: out, Err: err}
	}
	return results
}

// hasConflict implements spec §4.2's pairwise check: for i < j, tx_j
// reading an address tx_i wrote invalidates the parallel pass. Errored
// txs contribute no reads or writes; they cannot conflict.
func hasConflict(results []TxResult) bool {
	for j := 1; j < len(results); j++ {
		if results[j].Err != nil || results[j].Out == nil {
			continue
		}
		for i := 0; i < j; i++ {
			if results[i].Err != nil || results[i].Out == nil {
				continue
			}
			for addr := range results[j].Out.TxPrevData {
				if _, wrote := results[i].Out.TxFinalData[addr]; wrote {
					return true
				}
			}
		}
	}
	return false
}

// applyResults folds every non-errored result's writes onto a clone
// of base, in canonical index order, and surfaces the first tx error
// encountered (a contract tx failing during block-connect execution
// invalidates the whole block).
func applyResults(base MapContractContext, results []TxResult) (MapContractContext, error) {
	post := base.Clone()
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Out == nil {
			continue
		}
		for addr, ctx := range r.Out.TxFinalData {
			post[addr] = ctx
		}
	}
	return post, nil
}
