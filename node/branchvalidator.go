package node

import (
	"fmt"

	"github.com/rubinchain/rubin-node/branch"
	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/crosschain"
	"github.com/rubinchain/rubin-node/node/store"
	"github.com/rubinchain/rubin-node/vm"
)

// BranchAdapter implements store.BranchTxValidator against a running
// daemon's BranchDb, KeyOwnershipVerifier, and crosschain.Registry. It
// is the concrete realization of the seam blockapply.go leaves
// external: every branch-protocol tx type ApplyBlock sees is
// dispatched here to the matching branch package function.
//
// Two gaps are disclosed rather than guessed at, per the same
// convention consensus.ScriptVerifier itself uses (nil verifier
// rejects, no silent bypass):
//   - PROVE (and report-reward) of a report against a branch other
//     than Self needs that branch's own historical UTXO/contract
//     state, which this node does not replay (it only tracks synced
//     headers via BranchDb).
//   - Re-executing a same-chain PROVE's reported CALL_CONTRACT tx
//     needs the contract state as committed immediately before the
//     reported block, which this store does not retain once later
//     blocks have advanced past it (only the current tip's post-state
//     is kept) — see DESIGN.md's Open Question on point-in-time
//     contract-state resolution.
//
// Both report a clear error rather than skip the corresponding check.
type BranchAdapter struct {
	Self       uint32
	DB         *store.DB
	BranchDB   *branch.BranchDb
	Sig        *KeyOwnershipVerifier
	CrossChain *crosschain.Registry
}

func (a *BranchAdapter) mainRPC() (branch.BranchRPC, error) {
	c, ok := a.CrossChain.Client(consensus.MAIN_BRANCH_ID)
	if !ok {
		return nil, fmt.Errorf("branch: no crosschain client configured for main branch")
	}
	return c, nil
}

// heightOf resolves a block hash's height via the block index, for
// report age and contract-data-claim lineage checks.
func (a *BranchAdapter) heightOf(hash [32]byte) (uint64, bool, error) {
	e, ok, err := a.DB.GetIndex(hash)
	if err != nil || !ok {
		return 0, ok, err
	}
	return e.Height, true, nil
}

// isAncestor walks target's PrevHash chain (target itself included)
// looking for candidate, stopping at genesis or at the first block
// missing from the index.
func (a *BranchAdapter) isAncestor(candidate, target [32]byte) (bool, error) {
	cur := target
	for {
		if cur == candidate {
			return true, nil
		}
		e, ok, err := a.DB.GetIndex(cur)
		if err != nil {
			return false, err
		}
		if !ok || e.Height == 0 {
			return false, nil
		}
		cur = e.PrevHash
	}
}

func (a *BranchAdapter) ValidateBranchTx(tx *consensus.Tx, height uint64, header consensus.BlockHeader) error {
	switch tx.Type {
	case consensus.TX_TYPE_SYNC_BRANCH_INFO:
		return a.validateSyncBranchInfo(tx)

	case consensus.TX_TYPE_REPORT:
		return a.validateReport(tx, height)

	case consensus.TX_TYPE_REPORT_REWARD:
		return a.validateReportReward(tx, height)

	case consensus.TX_TYPE_LOCK_MINE_COIN:
		rpc, err := a.mainRPC()
		if err != nil {
			return err
		}
		return branch.CheckLockMortgageMineCoinTx(tx, rpc, a.Self)

	case consensus.TX_TYPE_UNLOCK_MINE_COIN:
		rpc, err := a.mainRPC()
		if err != nil {
			return err
		}
		return branch.CheckUnlockMortgageMineCoinTx(tx, rpc, a.Self)

	case consensus.TX_TYPE_CREATE_BRANCH:
		return a.validateCreateBranch(tx)

	case consensus.TX_TYPE_TRANS_STEP1:
		return a.validateTransStep1(tx)

	case consensus.TX_TYPE_TRANS_STEP2:
		return a.validateTransStep2(tx)

	case consensus.TX_TYPE_PROVE:
		return a.validateProve(tx, height)

	default:
		return fmt.Errorf("branch: unsupported branch tx type %v", tx.Type)
	}
}

func (a *BranchAdapter) validateSyncBranchInfo(tx *consensus.Tx) error {
	stakeTx, err := consensus.ParseTxBytes(tx.BranchInfo.StakeTxData)
	if err != nil {
		return fmt.Errorf("branch: sync-branch-info stake_tx_data: %w", err)
	}
	if len(stakeTx.Inputs) != 1 {
		return fmt.Errorf("branch: sync-branch-info stake tx must have exactly one input")
	}
	if err := branch.CheckBranchBlockInfoTx(tx, a.BranchDB, a.Sig, stakeTx.Inputs[0].ScriptSig, stakeTx.Outputs[0].CovenantData, tx.BranchInfo.Header.Timestamp); err != nil {
		return err
	}
	hash, err := branch.HeaderHash(tx.BranchInfo.Header)
	if err != nil {
		return err
	}
	// Recorded so a later PROVE against this branch/block pair can
	// resolve the header locally (CheckBranchBlockInfoTx's own
	// duplicate check already used this same key to reject a resync).
	return a.BranchDB.PutBranchBlock(tx.BranchInfo.BranchID, hash, consensus.BlockHeaderBytes(tx.BranchInfo.Header))
}

// rpcFor generalizes mainRPC to any configured branch, for
// trans-step2's from_tx resolution: from_branch_id may name the main
// chain or any other branch this node's crosschain registry knows how
// to reach.
func (a *BranchAdapter) rpcFor(branchID uint32) (branch.BranchRPC, error) {
	c, ok := a.CrossChain.Client(branchID)
	if !ok {
		return nil, fmt.Errorf("branch: no crosschain client configured for branch %d", branchID)
	}
	return c, nil
}

func (a *BranchAdapter) validateReport(tx *consensus.Tx, height uint64) error {
	if tx.ReportType == consensus.REPORT_TYPE_CONTRACT_DATA {
		readHeight, ok, err := a.heightOf(tx.ContractDataReport.ReadBlockHash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("branch: contract-data report references unknown read block")
		}
		proveHeight, ok, err := a.heightOf(tx.ContractDataReport.ProveBlockHash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("branch: contract-data report references unknown prove block")
		}
		ancestor, err := a.isAncestor(tx.ContractDataReport.ReadBlockHash, tx.ContractDataReport.ProveBlockHash)
		if err != nil {
			return err
		}
		if err := branch.CheckReportContractDataTx(tx, branch.ContractDataClaim{
			RecordedReadBlockHash:     tx.ContractDataReport.ReadBlockHash,
			RecordedReadTxIndex:       tx.ContractDataReport.ReadTxIndex,
			RecordedReadHeight:        readHeight,
			ReportedTxIndex:           tx.ContractDataReport.ReportedTxIndex,
			ProveBlockHash:            tx.ContractDataReport.ProveBlockHash,
			ProveTxIndex:              tx.ContractDataReport.ProveTxIndex,
			ProveHeight:               proveHeight,
			ReportedIsAncestorOfProve: ancestor,
		}); err != nil {
			return err
		}
		return a.recordReport(tx, height)
	}

	reportedHeight, ok, err := a.heightOf(tx.ReportedBlockHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("branch: report references unknown block")
	}
	if reportedHeight > height {
		return fmt.Errorf("branch: reported block is not an ancestor of the reporting block")
	}
	header, ok, err := a.DB.GetHeader(tx.ReportedBlockHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("branch: reported block header not found")
	}
	if err := branch.CheckReportCheatTx(tx, *header, height-reportedHeight); err != nil {
		return err
	}
	return a.recordReport(tx, height)
}

// recordReport advances the report/prove flag to REPORTED and stashes
// the report tx itself, keyed by its own hash, so a later report-reward
// tx (which only carries that hash as AnchorTxID) can look the report
// back up.
func (a *BranchAdapter) recordReport(tx *consensus.Tx, height uint64) error {
	flag := consensus.ReportFlagHash(tx.ReportType, tx.ReportedBranchID, tx.ReportedBlockHash, tx.ReportedTxHash)
	if err := a.BranchDB.AdvanceReportStatus(flag, branch.ReportStatusReported); err != nil {
		return err
	}
	txBytes, err := tx.Marshal()
	if err != nil {
		return err
	}
	reportHash, err := tx.TxHash()
	if err != nil {
		return err
	}
	return a.BranchDB.PutReportTx(reportHash, height, txBytes)
}

// validateCreateBranch admits a brand-new branch ID into BranchDb,
// keyed by the create-branch tx's own hash as its genesis commitment;
// later sync-branch-info/report/prove traffic against branch_id can
// then pass BranchDb's known-branch checks.
func (a *BranchAdapter) validateCreateBranch(tx *consensus.Tx) error {
	if tx.BranchID == consensus.MAIN_BRANCH_ID || tx.BranchID == a.Self {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "invalid branch_id for create-branch")
	}
	known, err := a.BranchDB.BranchKnown(tx.BranchID)
	if err != nil {
		return err
	}
	if known {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "branch already created")
	}
	txHash, err := tx.TxHash()
	if err != nil {
		return err
	}
	return a.BranchDB.RegisterBranch(tx.BranchID, txHash[:])
}

// validateTransStep1 has nothing to check against local or remote
// state on its own: consensus.CheckBranchTransaction's matching rule
// only fires once the corresponding step2 lands, on whichever chain
// dest_branch_id names. All this validator can reject up front is a
// transfer aimed at nowhere useful.
func (a *BranchAdapter) validateTransStep1(tx *consensus.Tx) error {
	if tx.DestBranchID == a.Self {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "dest_branch_id must differ from self_branch_id")
	}
	return nil
}

// validateTransStep2 resolves from_tx on from_branch_id's chain via
// crosschain RPC, then runs consensus.CheckBranchTransaction's pure
// matching predicate directly — the confirmation-depth check this
// validator already did against the same RPC round trip makes
// branch.CheckBranchTransaction's own second lookup redundant.
func (a *BranchAdapter) validateTransStep2(tx *consensus.Tx) error {
	rpc, err := a.rpcFor(tx.FromBranchID)
	if err != nil {
		return err
	}
	fromTx, confirmations, found, err := rpc.GetBranchChainTx(tx.FromBranchID, tx.FromTxHash)
	if err != nil {
		return err
	}
	if !found {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "from_tx not found on source chain")
	}
	if confirmations < consensus.BRANCH_CHAIN_MATURITY+1 {
		return consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "from_tx has insufficient confirmations on source chain")
	}

	// No per-output branch-destination covenant exists in this wire
	// format: trans-step1 names a single tx-level dest_branch_id, so
	// every one of from_tx's outputs is treated as destined there.
	outputDestBranch := make([]uint32, len(fromTx.Outputs))
	for i := range outputDestBranch {
		outputDestBranch[i] = fromTx.DestBranchID
	}
	var valueOut uint64
	for _, out := range tx.Outputs {
		valueOut, err = addU64Checked(valueOut, out.Value)
		if err != nil {
			return err
		}
	}
	return consensus.CheckBranchTransaction(a.Self, tx, fromTx, outputDestBranch, fromTx.Type == consensus.TX_TYPE_MORTGAGE, valueOut)
}

func addU64Checked(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, consensus.NewError(consensus.TX_ERR_VALUE_CONSERVATION, "u64 overflow")
	}
	return sum, nil
}

// validateProve dispatches a PROVE tx by report_type, scoped to
// disputes against this node's own chain — see BranchAdapter's doc
// comment for why a foreign branch_id, and a same-chain CALL_CONTRACT
// re-execution, are each explicitly declined rather than approximated.
func (a *BranchAdapter) validateProve(tx *consensus.Tx, height uint64) error {
	if tx.ReportedBranchID != a.Self {
		return fmt.Errorf("branch: prove against branch %d requires that chain's own historical state, which this node does not replay; not implemented", tx.ReportedBranchID)
	}
	header, ok, err := a.DB.GetHeader(tx.ReportedBlockHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("branch: prove references unknown block")
	}

	switch tx.ReportType {
	case consensus.REPORT_TYPE_TX:
		if len(tx.ProveData) == 0 {
			return consensus.NewError(consensus.TX_ERR_REPORT_INVALID, "prove_data is empty")
		}
		if reported, err := consensus.ParseTx(tx.ProveData[0].TxBytes); err == nil && reported.Type == consensus.TX_TYPE_CALL_CONTRACT {
			return fmt.Errorf("branch: proving a contract-call report needs the reported block's pre-execution contract state, which this store no longer retains once later blocks have advanced past it; not implemented")
		}
		if err := branch.CheckProveReportTx(tx, *header, a.Sig, nil, vm.ExecuteEnv{}); err != nil {
			return err
		}
	case consensus.REPORT_TYPE_COINBASE, consensus.REPORT_TYPE_MERKLETREE:
		if err := branch.CheckProveCoinbaseTx(tx, *header, a.resolveLiveOutpoint); err != nil {
			return err
		}
	default:
		return fmt.Errorf("branch: report_type %v cannot be proved directly", tx.ReportType)
	}

	flag := consensus.ReportFlagHash(tx.ReportType, tx.ReportedBranchID, tx.ReportedBlockHash, tx.ReportedTxHash)
	return a.BranchDB.AdvanceReportStatus(flag, branch.ReportStatusProved)
}

// resolveLiveOutpoint backs CheckProveCoinbaseTx's fee recomputation
// with the current UTXO set rather than a point-in-time snapshot at
// the reported block's height — correct so long as none of that
// block's spent prevouts have themselves been spent again since,
// which holds for the common case of proving a report shortly after
// it lands. See DESIGN.md's Open Question on point-in-time UTXO
// resolution for the general case this does not cover.
func (a *BranchAdapter) resolveLiveOutpoint(point consensus.Outpoint) (consensus.UtxoEntry, bool) {
	entry, ok, err := a.DB.GetUTXO(point)
	if err != nil {
		return consensus.UtxoEntry{}, false
	}
	return entry, ok
}

// validateReportReward validates a report-reward tx by looking up the
// report it rewards (via BranchDb's report-tx-hash index, populated by
// recordReport), deriving the cheater's stake and the reporter's
// payout key from the reported block's own stake tx, and delegating
// the payout-shape check to branch.CheckReportRewardTransaction.
//
// Only same-chain reports can be rewarded here, for the same reason
// validateProve only handles same-chain disputes: the cheater's
// mortgage-coin stake and the reported block's body are both local
// chain state this node only has for its own branch.
func (a *BranchAdapter) validateReportReward(tx *consensus.Tx, height uint64) error {
	reportBytes, reportHeight, found, err := a.BranchDB.GetReportTx(tx.AnchorTxID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("branch: report-reward anchor_tx_id does not match any recorded report")
	}
	reportTx, err := consensus.ParseTxBytes(reportBytes)
	if err != nil {
		return err
	}
	if reportTx.ReportedBranchID != a.Self {
		return fmt.Errorf("branch: report-reward for branch %d requires that chain's own coin/block state, which this node does not replay; not implemented", reportTx.ReportedBranchID)
	}

	flag := consensus.ReportFlagHash(reportTx.ReportType, reportTx.ReportedBranchID, reportTx.ReportedBlockHash, reportTx.ReportedTxHash)
	status, err := a.BranchDB.GetReportStatus(flag)
	if err != nil {
		return err
	}

	blockBytes, ok, err := a.DB.GetBlockBytes(reportTx.ReportedBlockHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("branch: reported block body not found")
	}
	parsed, err := consensus.ParseBlockBytes(blockBytes)
	if err != nil {
		return err
	}
	if len(parsed.Vtx) < 2 {
		return fmt.Errorf("branch: reported block has no stake tx")
	}
	stakeTx := parsed.Vtx[1] // invariant 3: vtx[1] is the branch chain's stake tx.
	if len(stakeTx.Inputs) == 0 || len(stakeTx.Outputs) == 0 {
		return fmt.Errorf("branch: reported block's stake tx is malformed")
	}
	mortgageCoinFromTx := stakeTx.Inputs[0].PrevTxid
	stakeValue := stakeTx.Outputs[0].Value

	pub, _, err := splitPubkeySig(reportTx.Inputs[0].ScriptSig)
	if err != nil {
		return fmt.Errorf("branch: report-reward: %w", err)
	}
	reporterKeyID, err := a.Sig.Provider.SHA3_256(pub)
	if err != nil {
		return err
	}

	return branch.CheckReportRewardTransaction(tx, reportTx, true, height-reportHeight, status, mortgageCoinFromTx, stakeValue, reporterKeyID[:])
}
