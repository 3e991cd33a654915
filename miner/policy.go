// Package miner assembles candidate blocks: mempool selection under
// policy budgets, contract re-execution to fill in the two contract
// Merkle roots, and PoS stake signing, per spec.md §4.5.
package miner

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/rubinchain/rubin-node/consensus"
)

// TemplatePolicy reserves block-weight budget for contract and
// branch-protocol payloads before the general mempool is packed, so a
// flood of ordinary transactions cannot starve them out. Grounded on
// original_source/src/mining/mining.cpp's Reserve*BlockDataSize knobs.
type TemplatePolicy struct {
	ReservePubContractBlockDataSize  uint64
	ReserveCallContractBlockDataSize uint64
	ReserveBranchTxBlockDataSize     uint64
}

func DefaultTemplatePolicy() TemplatePolicy {
	return TemplatePolicy{
		ReservePubContractBlockDataSize:  200_000,
		ReserveCallContractBlockDataSize: 200_000,
		ReserveBranchTxBlockDataSize:     200_000,
	}
}

// MempoolTx is one candidate the daemon's mempool offers the miner:
// the parsed tx plus the fee it pays.
type MempoolTx struct {
	Tx  *consensus.Tx
	Fee uint64
}

func isBranchProtocolType(t consensus.TxType) bool {
	switch t {
	case consensus.TX_TYPE_CREATE_BRANCH, consensus.TX_TYPE_TRANS_STEP1, consensus.TX_TYPE_TRANS_STEP2,
		consensus.TX_TYPE_SYNC_BRANCH_INFO, consensus.TX_TYPE_MORTGAGE, consensus.TX_TYPE_REDEEM_MORTGAGE_STATEMENT,
		consensus.TX_TYPE_REPORT, consensus.TX_TYPE_PROVE, consensus.TX_TYPE_REPORT_REWARD,
		consensus.TX_TYPE_LOCK_MINE_COIN, consensus.TX_TYPE_UNLOCK_MINE_COIN:
		return true
	default:
		return false
	}
}

// SelectionResult is the outcome of packing the mempool under policy:
// the chosen txs in the order they are appended after the
// coinbase/stake prefix, and the fee total they pay.
type SelectionResult struct {
	Txs      []MempoolTx
	TotalFee uint64
}

// SelectTransactions buckets candidates by category, reserves policy's
// budget for the publish-contract/call-contract/branch-protocol
// buckets, spends everything left over on ordinary txs, and packs each
// bucket highest-fee-rate first.
func SelectTransactions(candidates []MempoolTx, policy TemplatePolicy, maxWeight uint64) SelectionResult {
	var general, pubContract, callContract, branchTx []MempoolTx
	for _, c := range candidates {
		switch {
		case c.Tx.Type == consensus.TX_TYPE_PUBLISH_CONTRACT:
			pubContract = append(pubContract, c)
		case c.Tx.Type == consensus.TX_TYPE_CALL_CONTRACT:
			callContract = append(callContract, c)
		case isBranchProtocolType(c.Tx.Type):
			branchTx = append(branchTx, c)
		default:
			general = append(general, c)
		}
	}

	reserved := policy.ReservePubContractBlockDataSize + policy.ReserveCallContractBlockDataSize + policy.ReserveBranchTxBlockDataSize
	var generalBudget uint64
	if maxWeight > reserved {
		generalBudget = maxWeight - reserved
	}

	total := uint256.NewInt(0)
	var out []MempoolTx
	pack := func(bucket []MempoolTx, budget uint64) {
		sortByFeeRateDesc(bucket)
		var used uint64
		for _, c := range bucket {
			w := txWeight(c.Tx)
			if used+w > budget {
				continue
			}
			used += w
			out = append(out, c)
			total.Add(total, uint256.NewInt(c.Fee))
		}
	}
	pack(pubContract, policy.ReservePubContractBlockDataSize)
	pack(callContract, policy.ReserveCallContractBlockDataSize)
	pack(branchTx, policy.ReserveBranchTxBlockDataSize)
	pack(general, generalBudget)

	return SelectionResult{Txs: out, TotalFee: total.Uint64()}
}

func txWeight(tx *consensus.Tx) uint64 {
	b, err := tx.Marshal()
	if err != nil {
		return ^uint64(0) // unmarshalable candidate never fits any budget
	}
	return uint64(len(b))
}

// sortByFeeRateDesc orders a bucket by fee/weight descending, using
// uint256 for the cross-multiplied comparison so a fee near the coin's
// mineable cap can never overflow a uint64 product against a
// multi-hundred-KB tx weight.
func sortByFeeRateDesc(bucket []MempoolTx) {
	sort.SliceStable(bucket, func(i, j int) bool {
		wi, wj := txWeight(bucket[i].Tx), txWeight(bucket[j].Tx)
		if wi == 0 || wj == 0 {
			return bucket[i].Fee > bucket[j].Fee
		}
		lhs := new(uint256.Int).Mul(uint256.NewInt(bucket[i].Fee), uint256.NewInt(wj))
		rhs := new(uint256.Int).Mul(uint256.NewInt(bucket[j].Fee), uint256.NewInt(wi))
		return lhs.Gt(rhs)
	})
}
