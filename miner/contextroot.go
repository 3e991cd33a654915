package miner

import (
	"sort"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/vm"
)

// serializeContractContext canonically encodes a tx's read or write
// set into the single opaque blob consensus.HashMerkleRootWithPrevData
// and HashMerkleRootWithData hash alongside the tx's own hash, per
// invariant 1. Entries are sorted by contract address so two
// executions that touch the same set of contracts through different
// internal-call orders still commit identical bytes.
func serializeContractContext(ctx vm.MapContractContext) []byte {
	if len(ctx) == 0 {
		return nil
	}
	addrs := make([]vm.ContractID, 0, len(ctx))
	for a := range ctx {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return string(addrs[i][:]) < string(addrs[j][:]) })

	var b []byte
	for _, a := range addrs {
		c := ctx[a]
		b = append(b, a[:]...)
		b = append(b, c.FromBlockHash[:]...)
		b = consensus.AppendU32le(b, c.FromTxIndex)
		b = consensus.AppendCompactSize(b, uint64(len(c.Data)))
		b = append(b, c.Data...)
	}
	return b
}

// ContractRootsResult carries everything BuildTemplate needs to fill
// in a header's three Merkle roots plus the committed post-state that
// becomes the next block's base.
type ContractRootsResult struct {
	HashMerkleRoot             [32]byte
	HashMerkleRootWithPrevData [32]byte
	HashMerkleRootWithData     [32]byte
	PostState                  vm.MapContractContext
}

// buildContractRoots executes every contract tx in vtx (in canonical
// block order; coinbase/stake/ordinary txs contribute an empty
// context leaf) and computes all three roots invariant 1 requires.
// This is the miner-side mirror of block-connect: a validator
// independently recomputes the same three roots from the same vtx, so
// the miner must reach an identical result or its own block will be
// rejected by every other node.
func buildContractRoots(vtx []*consensus.Tx, executor *vm.MultiContractExecutor, base vm.MapContractContext, env vm.ExecuteEnv) (*ContractRootsResult, error) {
	type indexed struct {
		origIndex int
		tx        *consensus.Tx
	}
	var contractTxs []indexed
	for i, tx := range vtx {
		if tx.Type == consensus.TX_TYPE_PUBLISH_CONTRACT || tx.Type == consensus.TX_TYPE_CALL_CONTRACT {
			contractTxs = append(contractTxs, indexed{origIndex: i, tx: tx})
		}
	}

	prevByTx := make([][]byte, len(vtx))
	finalByTx := make([][]byte, len(vtx))
	post := base.Clone()

	if len(contractTxs) > 0 {
		sub := make([]*consensus.Tx, len(contractTxs))
		for i, c := range contractTxs {
			sub[i] = c.tx
		}
		results, subPost, err := executor.ExecuteBlock(sub, base, env)
		if err != nil {
			return nil, err
		}
		post = subPost
		for i, r := range results {
			orig := contractTxs[i].origIndex
			if r.Out != nil {
				prevByTx[orig] = serializeContractContext(r.Out.TxPrevData)
				finalByTx[orig] = serializeContractContext(r.Out.TxFinalData)
			}
		}
	}

	txRoot, err := consensus.HashMerkleRoot(vtx)
	if err != nil {
		return nil, err
	}
	prevRoot, err := consensus.HashMerkleRootWithPrevData(vtx, prevByTx)
	if err != nil {
		return nil, err
	}
	finalRoot, err := consensus.HashMerkleRootWithData(vtx, finalByTx)
	if err != nil {
		return nil, err
	}
	return &ContractRootsResult{
		HashMerkleRoot:             txRoot,
		HashMerkleRootWithPrevData: prevRoot,
		HashMerkleRootWithData:     finalRoot,
		PostState:                  post,
	}, nil
}
