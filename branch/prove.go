package branch

import (
	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/spv"
	"github.com/rubinchain/rubin-node/vm"
	"golang.org/x/crypto/sha3"
)

func sha3Sum(b []byte) [32]byte {
	return sha3.Sum256(b)
}

// CheckProveReportTx validates a prove of a TX report, per spec.md
// §4.3's four-step check_prove_report_tx.
//
// The output each input spent is read from the matching ProveItem's
// own SPV-proved source tx (item i+1 proves vin[i]'s prevout) rather
// than from a live UTXO set — a prove tx must
// stand on its own evidence, not on chain state that may have moved
// on since the reported block.
// For a contract-call reported tx, prove_data carries two trailing
// items beyond "reported tx + one per input": item[N] proves the
// pre-call context leaf against hashMerkleRootWithPrevData, item[N+1]
// proves the post-call context leaf against hashMerkleRootWithData.
// Both share the reported tx's own position in prove_data (index 0)
// rather than TxBytes; only their SpvProof is used.
func CheckProveReportTx(tx *consensus.Tx, branchHeader consensus.BlockHeader, verifier consensus.ScriptVerifier, executor *vm.ContractExecutor, env vm.ExecuteEnv) error {
	if tx.Type != consensus.TX_TYPE_PROVE || tx.ReportType != consensus.REPORT_TYPE_TX {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "not a tx-report prove")
	}
	if len(tx.ProveData) == 0 {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prove_data is empty")
	}

	// Step 1: the first prove-data item is the reported tx itself.
	reportedItem := tx.ProveData[0]
	reported, err := consensus.ParseTx(reportedItem.TxBytes)
	if err != nil {
		return err
	}
	reportedHash, err := reported.TxHash()
	if err != nil {
		return err
	}
	if reportedHash != tx.ReportedTxHash {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prove_data[0] does not match reported_tx_hash")
	}
	if err := verifySpvAgainstRoot(reportedItem.SpvProof, reportedHash, branchHeader.HashMerkleRoot); err != nil {
		return err
	}

	wantItems := len(reported.Inputs) + 1
	isContractCall := reported.Type == consensus.TX_TYPE_CALL_CONTRACT && executor != nil
	if isContractCall {
		wantItems += 2
	}
	if len(tx.ProveData) != wantItems {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prove_data length does not match reported tx input count")
	}

	// Step 2: every input's source tx, each independently SPV-proved.
	var valueIn, valueOut uint64
	for i, in := range reported.Inputs {
		item := tx.ProveData[i+1]
		src, err := consensus.ParseTx(item.TxBytes)
		if err != nil {
			return err
		}
		srcHash, err := src.TxHash()
		if err != nil {
			return err
		}
		if srcHash != in.PrevTxid {
			return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prove_data source tx hash does not match vin[i].prevout.hash")
		}
		if int(in.PrevVout) >= len(src.Outputs) {
			return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prevout.n out of range")
		}
		if err := verifySpvAgainstRoot(item.SpvProof, srcHash, branchHeader.HashMerkleRoot); err != nil {
			return err
		}
		out := src.Outputs[in.PrevVout]
		valueIn, err = addU64Checked(valueIn, out.Value)
		if err != nil {
			return err
		}
		// contract-transferred coins relax signature checking: the
		// spending authority for a COV_TYPE_CONTRACT_OWNED output is
		// the contract's own execution, not a signature.
		if out.CovenantType == consensus.COV_TYPE_CONTRACT_OWNED {
			continue
		}
		if err := verifier.Verify(in.ScriptSig, out.CovenantData, out.Value, reported, i, 0); err != nil {
			return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "script verification failed: "+err.Error())
		}
	}
	for _, out := range reported.Outputs {
		var err error
		valueOut, err = addU64Checked(valueOut, out.Value)
		if err != nil {
			return err
		}
	}

	// Step 3: value conservation. Contract-coin in/out balances are not
	// checked here.
	if valueIn < valueOut {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "value_in less than value_out")
	}

	// Step 4: if the reported tx is a smart-contract call, re-execute
	// it against the supplied ContractPrevData and check both
	// pre/post-state Merkle roots. The two trailing prove_data items
	// carry the SpvProof for each; their TxBytes is unused.
	if isContractCall {
		prevProof := tx.ProveData[len(tx.ProveData)-2].SpvProof
		postProof := tx.ProveData[len(tx.ProveData)-1].SpvProof
		if err := reExecuteAndVerify(executor, reported, int(tx.ContractDataReport.ReportedTxIndex), env, branchHeader, prevProof, postProof); err != nil {
			return err
		}
	}
	return nil
}

func reExecuteAndVerify(executor *vm.ContractExecutor, reported *consensus.Tx, txIndex int, env vm.ExecuteEnv, header consensus.BlockHeader, prevProof, postProof []byte) error {
	reportedHash, err := reported.TxHash()
	if err != nil {
		return err
	}
	out, err := executor.ExecuteTx(reported, txIndex, env)
	if err != nil {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "re-execution failed: "+err.Error())
	}
	prevLeaf := hashTxWithContext(reportedHash, out.TxPrevData)
	if err := verifySpvAgainstRoot(prevProof, prevLeaf, header.HashMerkleRootWithPrevData); err != nil {
		return err
	}
	postLeaf := hashTxWithContext(reportedHash, out.TxFinalData)
	if err := verifySpvAgainstRoot(postProof, postLeaf, header.HashMerkleRootWithData); err != nil {
		return err
	}
	return nil
}

// hashTxWithContext folds a tx's staged contract read/write set into
// a single leaf value, node-hashed against the plain tx leaf so it
// commits to both the tx and its contract-data context the same way
// hashMerkleRootWithPrevData/hashMerkleRootWithData do.
func hashTxWithContext(txHash [32]byte, ctx vm.MapContractContext) [32]byte {
	contextLeaf := consensus.MerkleLeafHash(txHash)
	for _, c := range ctx {
		contextLeaf = consensus.MerkleNodeHash(contextLeaf, consensus.MerkleLeafHash(sha3Sum(c.Data)))
	}
	return contextLeaf
}

func verifySpvAgainstRoot(proofBytes []byte, leaf [32]byte, root [32]byte) error {
	if proofBytes == nil {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "missing spv proof")
	}
	p, err := spv.ParseProof(proofBytes)
	if err != nil {
		return err
	}
	matched, _, err := spv.Verify(p, root)
	if err != nil {
		return err
	}
	if !containsHash(matched, leaf) {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "spv proof does not cover leaf")
	}
	return nil
}

func addU64Checked(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "value overflow")
	}
	return sum, nil
}

// CheckProveCoinbaseTx validates a prove of a COINBASE or MERKLETREE
// report: the full ordered tx list is provided (one ProveItem per
// tx, TxBytes only; SpvProof unused for the coinbase item itself),
// hashMerkleRoot is recomputed and compared, and the fee of every tx
// after the coinbase is summed against the coinbase's payout, except a
// trans-step2 tx at index 1, which is skipped.
func CheckProveCoinbaseTx(tx *consensus.Tx, branchHeader consensus.BlockHeader, resolveOutpoint func(consensus.Outpoint) (consensus.UtxoEntry, bool)) error {
	if tx.Type != consensus.TX_TYPE_PROVE {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "not a prove tx")
	}
	if len(tx.ProveData) == 0 {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prove_data is empty")
	}

	txs := make([]*consensus.Tx, len(tx.ProveData))
	txids := make([][32]byte, len(tx.ProveData))
	for i, item := range tx.ProveData {
		parsed, err := consensus.ParseTx(item.TxBytes)
		if err != nil {
			return err
		}
		h, err := parsed.TxHash()
		if err != nil {
			return err
		}
		txs[i] = parsed
		txids[i] = h
	}
	root, err := consensus.MerkleRootTxids(txids)
	if err != nil {
		return err
	}
	if root != branchHeader.HashMerkleRoot {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "recomputed hashMerkleRoot does not match header (mutation detected)")
	}

	var totalFees uint64
	for i, t := range txs {
		if i == 0 {
			continue // coinbase itself
		}
		if t.Type == consensus.TX_TYPE_TRANS_STEP2 && i == 1 {
			continue // stake tx pays no fee on a branch chain
		}
		var valueIn, valueOut uint64
		for _, in := range t.Inputs {
			entry, ok := resolveOutpoint(consensus.Outpoint{Txid: in.PrevTxid, Vout: in.PrevVout})
			if !ok {
				return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prove tx references an unresolved outpoint")
			}
			valueIn, err = addU64Checked(valueIn, entry.Value)
			if err != nil {
				return err
			}
		}
		for _, out := range t.Outputs {
			valueOut, err = addU64Checked(valueOut, out.Value)
			if err != nil {
				return err
			}
		}
		if valueIn < valueOut {
			return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "tx in prove_data spends more than it receives")
		}
		totalFees, err = addU64Checked(totalFees, valueIn-valueOut)
		if err != nil {
			return err
		}
	}

	var coinbasePayout uint64
	for _, out := range txs[0].Outputs {
		coinbasePayout, err = addU64Checked(coinbasePayout, out.Value)
		if err != nil {
			return err
		}
	}
	// Branches carry no block subsidy: the coinbase must pay exactly
	// the sum of fees, per spec.md §4.3.
	if coinbasePayout != totalFees {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "coinbase payout does not equal sum of fees")
	}
	return nil
}

// CheckReportRewardTransaction validates the reward payout after a
// successful report, per spec.md §4.3.
func CheckReportRewardTransaction(tx *consensus.Tx, reportTx *consensus.Tx, reportConfirmed bool, reportAge uint64, status ReportStatus, mortgageCoinFromTx [32]byte, stakeValue uint64, reporterScriptPubKey []byte) error {
	if reportTx == nil || !reportConfirmed {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "report_tx must exist and be confirmed on the active chain")
	}
	if reportAge < consensus.REPORT_OUTOF_HEIGHT {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prove window has not elapsed")
	}
	if status == ReportStatusProved {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "report already proved")
	}
	if len(tx.Inputs) == 0 || tx.Inputs[0].PrevTxid != mortgageCoinFromTx || tx.Inputs[0].PrevVout != 0 {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "vin[0] must consume the cheater's mortgage-coin stake")
	}
	if len(tx.Outputs) == 0 {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "missing reward output")
	}
	if string(tx.Outputs[0].CovenantData) != string(reporterScriptPubKey) {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "vout[0] does not pay the reporter")
	}
	if tx.Outputs[0].Value < stakeValue/2 {
		return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "reward below half the cheater's stake")
	}
	return nil
}

// CheckLockMortgageMineCoinTx and CheckUnlockMortgageMineCoinTx both
// anchor a branch-local mortgage-coin lock/unlock to a report or
// prove tx confirmed on the main chain, per spec.md §4.3 and
// DESIGN.md's Open Question #4 decision: both bubble a connection
// failure identically, since both require the remote check.
func CheckLockMortgageMineCoinTx(tx *consensus.Tx, rpc BranchRPC, selfBranchID uint32) error {
	return checkMortgageCoinAnchor(tx, rpc, selfBranchID)
}

func CheckUnlockMortgageMineCoinTx(tx *consensus.Tx, rpc BranchRPC, selfBranchID uint32) error {
	return checkMortgageCoinAnchor(tx, rpc, selfBranchID)
}

func checkMortgageCoinAnchor(tx *consensus.Tx, rpc BranchRPC, selfBranchID uint32) error {
	confirmations, branchID, coinPreoutHash, found, err := rpc.GetAnchorTx(tx.AnchorTxID)
	if err != nil {
		return err // ConnectionFailed bubbles unchanged, per Open Question #4.
	}
	if !found {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "anchor tx not found on main chain")
	}
	if confirmations < consensus.REPORT_LOCK_COIN_HEIGHT {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "anchor tx has insufficient confirmations")
	}
	if branchID != selfBranchID {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "anchor tx does not point at this branch")
	}
	if coinPreoutHash != tx.CoinPreoutHash {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "anchor tx does not point at this coin_preout_hash")
	}
	return nil
}
