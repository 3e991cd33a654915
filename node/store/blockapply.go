package store

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/crypto"
	"github.com/rubinchain/rubin-node/vm"
)

// BranchTxValidator authorizes a branch-protocol tx (create-branch,
// sync-branch-info, trans-step1/2, report, prove, report-reward,
// lock/unlock-mine-coin) beyond the UTXO conservation check every tx
// type gets uniformly through ApplyNonCoinbaseTxBasic. daemon.go wires
// this to branch.BranchDb plus a HeaderSigVerifier and BranchRPC
// client; a nil validator rejects any block containing a branch tx,
// so a UTXO-only node never silently skips branch authorization.
type BranchTxValidator interface {
	ValidateBranchTx(tx *consensus.Tx, height uint64, header consensus.BlockHeader) error
}

// ContractExecutor is the subset of vm.MultiContractExecutor's surface
// ApplyBlock needs to independently recompute a candidate block's two
// contract-state Merkle roots from its publish/call-contract txs.
type ContractExecutor interface {
	ExecuteBlock(txs []*consensus.Tx, base vm.MapContractContext, env vm.ExecuteEnv) ([]vm.TxResult, vm.MapContractContext, error)
}

// ApplyDeps carries the external collaborators ApplyBlock needs beyond
// the UTXO set. Any field may be left nil to disable that class of
// tx; a block that then contains one of those tx types is rejected
// rather than silently accepted without the check.
type ApplyDeps struct {
	Verifier   consensus.ScriptVerifier
	Branch     BranchTxValidator
	Executor   ContractExecutor
	Env        vm.ExecuteEnv
	ParentPost vm.MapContractContext // contract state committed by the parent block
}

func isBranchTxType(t consensus.TxType) bool {
	switch t {
	case consensus.TX_TYPE_CREATE_BRANCH,
		consensus.TX_TYPE_SYNC_BRANCH_INFO,
		consensus.TX_TYPE_TRANS_STEP1,
		consensus.TX_TYPE_TRANS_STEP2,
		consensus.TX_TYPE_REPORT,
		consensus.TX_TYPE_PROVE,
		consensus.TX_TYPE_REPORT_REWARD,
		consensus.TX_TYPE_LOCK_MINE_COIN,
		consensus.TX_TYPE_UNLOCK_MINE_COIN:
		return true
	default:
		return false
	}
}

func isContractTxType(t consensus.TxType) bool {
	return t == consensus.TX_TYPE_PUBLISH_CONTRACT || t == consensus.TX_TYPE_CALL_CONTRACT
}

// ValidateBlockHeaderStage1 performs the header-only checks Stage0-3
// needs before a block's ancestry/fork-choice slot is decided: PoW,
// expected target and MTP timestamp against ctx's ancestor window
// (skipped when the window is empty, i.e. the parent is not yet
// known), local-clock future-drift, and the ordinary tx Merkle root.
// The two contract-state roots are checked later, in ApplyBlock, since
// they require executing the block's contract txs.
func ValidateBlockHeaderStage1(p crypto.CryptoProvider, block *consensus.ParsedBlock, ctx consensus.BlockValidationContext) error {
	if block == nil {
		return fmt.Errorf("block: nil")
	}
	hdr := block.Header

	if len(ctx.AncestorHeaders) > 0 {
		exp, err := consensus.BlockExpectedTarget(ctx.AncestorHeaders, ctx.Height, hdr.Target)
		if err != nil {
			return err
		}
		if hdr.Target != exp {
			return consensus.NewError(consensus.BLOCK_ERR_TARGET_INVALID, "target does not match expected retarget")
		}
		medianTs, err := consensus.MedianPastTimestamp(ctx.AncestorHeaders, ctx.Height)
		if err != nil {
			return err
		}
		if hdr.Timestamp <= medianTs {
			return consensus.NewError(consensus.BLOCK_ERR_TIMESTAMP_OLD, "timestamp not after median past timestamp")
		}
	}
	if ctx.LocalTimeSet && hdr.Timestamp > ctx.LocalTime+consensus.MAX_FUTURE_DRIFT {
		return consensus.NewError(consensus.BLOCK_ERR_TIMESTAMP_FUTURE, "timestamp exceeds max future drift")
	}

	hash, err := consensus.BlockHeaderHash(p, hdr)
	if err != nil {
		return err
	}
	if bytes.Compare(hash[:], hdr.Target[:]) >= 0 {
		return consensus.NewError(consensus.BLOCK_ERR_POW_INVALID, "header hash does not meet target")
	}

	txRoot, err := consensus.HashMerkleRoot(block.Vtx)
	if err != nil {
		return err
	}
	if txRoot != hdr.HashMerkleRoot {
		return consensus.NewError(consensus.BLOCK_ERR_MERKLE_INVALID, "hashMerkleRoot mismatch")
	}
	return nil
}

// ApplyBlockResult carries the outputs of a successful ApplyBlock a
// caller needs to advance chainstate: the contract-state map the block
// committed (base for the next block's ApplyDeps.ParentPost).
type ApplyBlockResult struct {
	PostState vm.MapContractContext
}

// ApplyBlock is the Stage4 body-validation entrypoint: it authorizes
// every tx (UTXO conservation and covenant spend rules uniformly via
// consensus.ApplyNonCoinbaseTxBasic, branch-protocol rules for branch
// txs via deps.Branch, contract execution and both contract-state
// roots via deps.Executor), mutates utxoSet in place to the
// post-block UTXO set, and verifies the coinbase pays at most the
// block subsidy plus collected fees.
//
// utxoSet is mutated in place rather than copied: callers that need
// the pre-image (to compute an undo record) must snapshot it first, as
// ApplyBlockIfBestTip does with preUtxo before calling computeUndoForBlock.
func ApplyBlock(
	p crypto.CryptoProvider,
	chainID [32]byte,
	block *consensus.ParsedBlock,
	utxoSet map[consensus.Outpoint]consensus.UtxoEntry,
	ctx consensus.BlockValidationContext,
	deps ApplyDeps,
) (*ApplyBlockResult, error) {
	if block == nil {
		return nil, fmt.Errorf("block: nil")
	}
	if len(block.Vtx) == 0 {
		return nil, consensus.NewError(consensus.BLOCK_ERR_PARSE, "block has no transactions")
	}
	if block.Vtx[0].Type != consensus.TX_TYPE_COINBASE {
		return nil, consensus.NewError(consensus.BLOCK_ERR_LINKAGE_INVALID, "vtx[0] must be coinbase")
	}

	var totalFees uint64
	var contractTxs []*consensus.Tx
	for i := 1; i < len(block.Vtx); i++ {
		tx := block.Vtx[i]

		if isBranchTxType(tx.Type) {
			if deps.Branch == nil {
				return nil, consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "branch tx present but no branch validator configured")
			}
			if err := deps.Branch.ValidateBranchTx(tx, ctx.Height, block.Header); err != nil {
				return nil, err
			}
		}
		if isContractTxType(tx.Type) {
			contractTxs = append(contractTxs, tx)
		}

		txid, err := tx.TxHash()
		if err != nil {
			return nil, err
		}
		summary, err := consensus.ApplyNonCoinbaseTxBasic(tx, txid, utxoSet, ctx.Height, block.Header.Timestamp, deps.Verifier)
		if err != nil {
			return nil, err
		}
		totalFees, err = addFee(totalFees, summary.Fee)
		if err != nil {
			return nil, err
		}

		// ApplyNonCoinbaseTxBasic validates against a scratch copy of
		// utxoSet and never mutates it (its contract is a pure
		// conservation/authorization check); commit its effects onto
		// the real set here so tx i+1 sees tx i's spends.
		for _, in := range tx.Inputs {
			delete(utxoSet, consensus.Outpoint{Txid: in.PrevTxid, Vout: in.PrevVout})
		}
		for vout, out := range tx.Outputs {
			utxoSet[consensus.Outpoint{Txid: txid, Vout: uint32(vout)}] = consensus.UtxoEntry{
				Value:             out.Value,
				CovenantType:      out.CovenantType,
				CovenantData:      append([]byte(nil), out.CovenantData...),
				CreationHeight:    ctx.Height,
				CreatedByCoinbase: false,
			}
		}
	}

	post := deps.ParentPost
	if len(contractTxs) > 0 {
		if deps.Executor == nil {
			return nil, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "contract tx present but no executor configured")
		}
		results, subPost, err := deps.Executor.ExecuteBlock(contractTxs, deps.ParentPost, deps.Env)
		if err != nil {
			return nil, err
		}
		post = subPost

		prevByTx := make([][]byte, len(block.Vtx))
		finalByTx := make([][]byte, len(block.Vtx))
		ci := 0
		for i, tx := range block.Vtx {
			if !isContractTxType(tx.Type) {
				continue
			}
			r := results[ci]
			ci++
			if r.Out != nil {
				prevByTx[i] = serializeContractContext(r.Out.TxPrevData)
				finalByTx[i] = serializeContractContext(r.Out.TxFinalData)
			}
		}
		prevRoot, err := consensus.HashMerkleRootWithPrevData(block.Vtx, prevByTx)
		if err != nil {
			return nil, err
		}
		finalRoot, err := consensus.HashMerkleRootWithData(block.Vtx, finalByTx)
		if err != nil {
			return nil, err
		}
		if prevRoot != block.Header.HashMerkleRootWithPrevData {
			return nil, consensus.NewError(consensus.BLOCK_ERR_MERKLE_INVALID, "hashMerkleRootWithPrevData mismatch")
		}
		if finalRoot != block.Header.HashMerkleRootWithData {
			return nil, consensus.NewError(consensus.BLOCK_ERR_MERKLE_INVALID, "hashMerkleRootWithData mismatch")
		}
	}

	coinbase := block.Vtx[0]
	var coinbaseOut uint64
	for _, out := range coinbase.Outputs {
		var err error
		coinbaseOut, err = addFee(coinbaseOut, out.Value)
		if err != nil {
			return nil, err
		}
	}
	subsidy := consensus.BlockSubsidy(ctx.Height, 0)
	maxCoinbase, err := addFee(subsidy, totalFees)
	if err != nil {
		return nil, err
	}
	if coinbaseOut > maxCoinbase {
		return nil, consensus.NewError(consensus.BLOCK_ERR_SUBSIDY_EXCEEDED, "coinbase pays more than subsidy plus fees")
	}
	txid, err := coinbase.TxHash()
	if err != nil {
		return nil, err
	}
	for vout, out := range coinbase.Outputs {
		utxoSet[consensus.Outpoint{Txid: txid, Vout: uint32(vout)}] = consensus.UtxoEntry{
			Value:             out.Value,
			CovenantType:      out.CovenantType,
			CovenantData:      append([]byte(nil), out.CovenantData...),
			CreationHeight:    ctx.Height,
			CreatedByCoinbase: true,
		}
	}

	return &ApplyBlockResult{PostState: post}, nil
}

func addFee(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, consensus.NewError(consensus.TX_ERR_VALUE_CONSERVATION, "u64 overflow accumulating fee/subsidy")
	}
	return sum, nil
}

// serializeContractContext canonically encodes a tx's read or write
// set into the opaque blob hashMerkleRootWithPrevData/
// hashMerkleRootWithData hash alongside the tx's own hash. This is a
// deliberate copy of miner.serializeContractContext, not an import of
// it: the miner runs this once to build a candidate it controls end
// to end, while block-connect must reproduce the identical bytes for
// a block it received from the network, so the two call sites are
// kept independent rather than sharing a hidden miner-package
// dependency from the validation path.
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
