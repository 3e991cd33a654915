package consensus

// transfer.go implements the step-1/step-2 cross-chain transfer matching
// rule at the heart of check_branch_transaction: a step2 tx is only valid
// if reverting its branch-specific fields reproduces the hash the matching
// step1 committed to.

// RevertStep2 reconstructs the "revert" transform of a step2 transaction:
// clear the from-branch/from-tx fields, clear the stake input's scriptSig
// when the coin being acknowledged is a mortgage coin, and substitute an
// empty SPV proof when the transfer originates from a branch (the proof
// bytes are excluded from the commitment because different observers may
// carry different, equally valid encodings of the same inclusion proof).
func RevertStep2(step2 *Tx, spentIsMortgageCoin bool) (*Tx, error) {
	if step2.Type != TX_TYPE_TRANS_STEP2 {
		return nil, txerr(TX_ERR_BRANCH_INVALID, "RevertStep2 requires a trans-step2 tx")
	}
	reverted := *step2
	reverted.FromBranchID = 0
	reverted.FromTxHash = [32]byte{}
	reverted.SpvProof = nil
	reverted.Inputs = append([]TxIn(nil), step2.Inputs...)
	if spentIsMortgageCoin && len(reverted.Inputs) > 0 {
		stake := reverted.Inputs[0]
		stake.ScriptSig = nil
		reverted.Inputs[0] = stake
	}
	return &reverted, nil
}

// GetBranchOut sums the value of from_tx's outputs marked for cross-chain
// transfer to destBranchID: outputs tagged OP_TRANS_BRANCH toward a branch
// destination, or OP_RETURN OP_TRANS_BRANCH when destBranchID is MAIN. The
// tagging itself is decoded by ScriptOps (out of scope here); this function
// takes the already-decoded per-output destination list.
func GetBranchOut(fromTx *Tx, outputDestBranch []uint32, destBranchID uint32) (uint64, error) {
	if len(outputDestBranch) != len(fromTx.Outputs) {
		return 0, txerr(TX_ERR_BRANCH_INVALID, "output destination slice length mismatch")
	}
	var sum uint64
	for i, out := range fromTx.Outputs {
		if outputDestBranch[i] != destBranchID {
			continue
		}
		var err error
		sum, err = addU64(sum, out.Value)
		if err != nil {
			return 0, err
		}
	}
	return sum, nil
}

// CheckBranchTransaction implements check_branch_transaction's core
// matching predicate (spec §4.3). Confirmation-count and RPC-based checks
// against the source chain are the caller's responsibility (crosschain
// package); this function only checks what is derivable from the two
// transactions themselves.
func CheckBranchTransaction(selfBranchID uint32, step2, fromTx *Tx, outputDestBranch []uint32, fromTxSpendsMortgageCoin bool, valueOut uint64) error {
	if step2.Type != TX_TYPE_TRANS_STEP2 {
		return txerr(TX_ERR_BRANCH_INVALID, "not a trans-step2 tx")
	}
	if step2.FromBranchID == selfBranchID {
		return txerr(TX_ERR_BRANCH_INVALID, "from_branch_id must differ from self_branch_id")
	}

	if fromTx.Type == TX_TYPE_MORTGAGE {
		mine, err := ParseMortgageScript(fromTx.Outputs[0].CovenantData)
		if err != nil {
			return err
		}
		if mine.Kind != MORTGAGE_SCRIPT_MINE {
			return txerr(TX_ERR_BRANCH_INVALID, "mortgage from_tx output is not a mortgage-mine script")
		}
		coinOut, err := findMortgageCoinOutput(step2)
		if err != nil {
			return err
		}
		coin, err := ParseMortgageScript(coinOut.CovenantData)
		if err != nil {
			return err
		}
		if coin.Kind != MORTGAGE_SCRIPT_COIN || coin.KeyID != mine.KeyID || coin.Height != mine.Height {
			return txerr(TX_ERR_BRANCH_INVALID, "mortgage-coin (keyid,height) does not match mortgage-mine commitment")
		}
	}

	reverted, err := RevertStep2(step2, fromTx.Type == TX_TYPE_MORTGAGE)
	if err != nil {
		return err
	}
	revertedHash, err := reverted.TxHash()
	if err != nil {
		return err
	}
	if fromTx.Type != TX_TYPE_TRANS_STEP1 {
		return txerr(TX_ERR_BRANCH_INVALID, "from_tx must be a trans-step1")
	}
	if revertedHash != fromTx.SendToTxHash {
		return txerr(TX_ERR_BRANCH_INVALID, "revert(step2).hash does not match step1.send_to_hash")
	}

	branchOut, err := GetBranchOut(fromTx, outputDestBranch, selfBranchID)
	if err != nil {
		return err
	}
	if step2.InAmount != branchOut {
		return txerr(TX_ERR_BRANCH_INVALID, "in_amount does not equal branch_out(from_tx)")
	}

	// When from_tx originates on a branch rather than MAIN, any
	// branch-recharge outputs return unused collateral to that branch and
	// are already excluded by GetBranchOut's destBranchID filter above.
	if valueOut > step2.InAmount {
		return txerr(TX_ERR_BRANCH_INVALID, "value_out exceeds in_amount")
	}

	return nil
}

func findMortgageCoinOutput(step2 *Tx) (*TxOut, error) {
	var found *TxOut
	for i := range step2.Outputs {
		out := &step2.Outputs[i]
		if out.CovenantType != COV_TYPE_MORTGAGE_COIN {
			continue
		}
		if found != nil {
			return nil, txerr(TX_ERR_BRANCH_INVALID, "step2 has more than one mortgage-coin output")
		}
		found = out
	}
	if found == nil {
		return nil, txerr(TX_ERR_BRANCH_INVALID, "step2 has no mortgage-coin output")
	}
	return found, nil
}
