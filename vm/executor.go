package vm

import (
	"github.com/golang/snappy"
	"github.com/rubinchain/rubin-node/consensus"
)

// callFrame is one entry on the reentrancy stack.
type callFrame struct {
	addr ContractID
}

// ContractExecutor is the single-threaded deterministic interpreter
// host, per spec §4.1. One ContractExecutor never runs two txs
// concurrently; MultiContractExecutor owns one per worker.
type ContractExecutor struct {
	runtime ContractRuntime
	pool    *shellPool

	data  MapContractContext // committed post-state of earlier txs this block
	cache MapContractContext // post-state of the tx currently in flight

	stack   []callFrame
	env     ExecuteEnv
	txIndex int
}

// NewContractExecutor wires a ContractExecutor to a concrete
// interpreter binding and an interpreter-shell pool shared across the
// worker that owns this executor.
func NewContractExecutor(runtime ContractRuntime, pool *shellPool) *ContractExecutor {
	return &ContractExecutor{
		runtime: runtime,
		pool:    pool,
		data:    MapContractContext{},
		cache:   MapContractContext{},
	}
}

func (e *ContractExecutor) get(addr ContractID) (ContractContext, bool) {
	if c, ok := e.cache[addr]; ok {
		return c, true
	}
	c, ok := e.data[addr]
	return c, ok
}

// Publish binds fresh code to addr. addr must not already resolve to
// any context (committed or cached); code must fit MAX_CONTRACT_FILE_LEN.
func (e *ContractExecutor) Publish(addr ContractID, code []byte) error {
	if len(code) > maxContractFileLen {
		return consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "contract code exceeds MAX_CONTRACT_FILE_LEN")
	}
	if _, ok := e.get(addr); ok {
		return consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "contract address already published")
	}
	code = decompressContractCode(code)
	if len(code) > maxContractFileLen {
		return consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "decompressed contract code exceeds MAX_CONTRACT_FILE_LEN")
	}
	if err := e.runtime.Load(addr, code); err != nil {
		return consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "publish: "+err.Error())
	}
	e.cache[addr] = ContractContext{Data: append([]byte(nil), code...)}
	return nil
}

// decompressContractCode undoes the snappy compression a publisher
// may apply to keep the wire payload under MAX_CONTRACT_FILE_LEN.
// Lua source is not itself snappy-framed, so an input that fails to
// decode as a snappy block is treated as already-uncompressed.
func decompressContractCode(code []byte) []byte {
	decoded, err := snappy.Decode(nil, code)
	if err != nil {
		return code
	}
	return decoded
}

// Call runs fn(args) against addr's already-published code. It is the
// entry point both for a top-level call-contract tx and for a nested
// internal_call.
func (e *ContractExecutor) Call(addr ContractID, fn string, args []byte, out *VMOut, fuel *int32) ([]byte, error) {
	for _, f := range e.stack {
		if f.addr == addr {
			return nil, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "reentrancy: address already on call stack")
		}
	}
	if len(e.stack) >= maxInternalCallNum {
		return nil, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "internal call depth exceeds MAX_INTERNAL_CALL_NUM")
	}
	ctx, ok := e.get(addr)
	if !ok {
		return nil, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "call: contract address not found")
	}
	if out.TxPrevData == nil {
		out.TxPrevData = MapContractContext{}
	}
	if _, seen := out.TxPrevData[addr]; !seen {
		out.TxPrevData[addr] = ctx
	}

	if err := e.runtime.Load(addr, ctx.Data); err != nil {
		return nil, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "call: "+err.Error())
	}

	e.stack = append(e.stack, callFrame{addr: addr})
	defer func() { e.stack = e.stack[:len(e.stack)-1] }()

	host := &hostCallbacks{exec: e, out: out, fuel: fuel}
	ret, consumed, err := e.runtime.Invoke(addr, fn, args, host, *fuel)
	*fuel -= consumed
	out.RunningTimes += consumed
	if *fuel < 0 {
		return nil, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "call: out of fuel")
	}
	if err != nil {
		return nil, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "call: "+err.Error())
	}

	newData, err := e.runtime.Dump(addr)
	if err != nil {
		return nil, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "call: dump state: "+err.Error())
	}
	e.cache[addr] = ContractContext{
		FromBlockHash: e.env.BlockHash,
		FromTxIndex:   uint32(e.txIndex),
		Data:          newData,
	}
	return ret, nil
}

// Commit merges cache into data (a tx succeeded) and returns the
// merged post-state for the txs that will feed hashMerkleRootWithData.
func (e *ContractExecutor) Commit() MapContractContext {
	for k, v := range e.cache {
		e.data[k] = v
	}
	e.cache = MapContractContext{}
	return e.data.Clone()
}

// ClearCache discards the current tx's staged writes (tx aborted).
func (e *ContractExecutor) ClearCache() {
	e.cache = MapContractContext{}
}

// ClearAll resets both data and cache, used between blocks.
func (e *ContractExecutor) ClearAll() {
	e.data = MapContractContext{}
	e.cache = MapContractContext{}
}

// ExecuteTx is the top-level entry validation calls per tx.
func (e *ContractExecutor) ExecuteTx(tx *consensus.Tx, txIndex int, env ExecuteEnv) (*VMOut, error) {
	out := &VMOut{
		TxPrevData:       MapContractContext{},
		TxFinalData:      MapContractContext{},
		ContractCoinsOut: map[ContractID]int64{},
	}
	fuel := int32(maxContractCall)
	e.env = env
	e.txIndex = txIndex

	switch tx.Type {
	case consensus.TX_TYPE_PUBLISH_CONTRACT:
		if err := e.Publish(ContractID(tx.ContractAddr), tx.ContractCode); err != nil {
			e.ClearCache()
			return nil, err
		}
	case consensus.TX_TYPE_CALL_CONTRACT:
		ret, err := e.Call(ContractID(tx.ContractAddr), tx.ContractFn, tx.ContractArgs, out, &fuel)
		if err != nil {
			e.ClearCache()
			return nil, err
		}
		out.ReturnValue = ret
	default:
		return out, nil
	}

	for addr, ctx := range e.cache {
		out.TxFinalData[addr] = ctx
	}
	e.Commit()
	return out, nil
}
