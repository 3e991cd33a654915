package consensus

import "math/big"

// Wire-format bounds. These cap allocation sizes during parsing; they are not
// tuned for a specific deployment and may be raised by a future featurebit.
const (
	MAX_TX_INPUTS        = 1 << 16
	MAX_TX_OUTPUTS       = 1 << 16
	MAX_SCRIPT_SIG_BYTES = 1 << 16
	MAX_WITNESS_ITEMS    = 1 << 12

	// MAX_DATA_LEN bounds any single opaque payload blob (contract code,
	// SPV proof bytes, prove-data items) carried in an extended tx field.
	MAX_DATA_LEN = 1 << 20 // 1 MiB
)

// Proof-of-work / retarget parameters for the main chain header chain.
const (
	TARGET_BLOCK_INTERVAL = 150 // seconds
	WINDOW_SIZE           = 2016
)

var (
	POW_LIMIT      = [32]byte{0x00, 0x00, 0xff, 0xff}
	maxTargetBig   = new(big.Int).SetBytes(POW_LIMIT[:])
	targetBlockIntervalBig = big.NewInt(int64(TARGET_BLOCK_INTERVAL) * int64(WINDOW_SIZE))
)

// Subsidy schedule for the main chain. Branch chains never mint a subsidy
// (spec invariant: coinbase == sum(fees) on every branch block); the miner
// package enforces that separately from BlockSubsidy.
const (
	MINEABLE_CAP            = 21_000_000_00000000
	EMISSION_SPEED_FACTOR   = 19
	TAIL_EMISSION_PER_BLOCK = 6000

	// SUBSIDY_DURATION_BLOCKS/SUBSIDY_TOTAL_MINED back the flat-schedule
	// blockRewardForHeight helper, a single expected-reward number kept
	// separate from the halving curve BlockSubsidy implements for
	// consensus validation.
	SUBSIDY_DURATION_BLOCKS = 210_000 * 64
	SUBSIDY_TOTAL_MINED     = MINEABLE_CAP
)

// Featurebit (BIP9-style) signalling window.
const (
	SIGNAL_WINDOW    = 2016
	SIGNAL_THRESHOLD = 1815 // ~90%
)

// Block-level extra error codes used by the block/UTXO layer.
const (
	BLOCK_ERR_TARGET_INVALID   ErrorCode = "BLOCK_ERR_TARGET_INVALID"
	BLOCK_ERR_TIMESTAMP_OLD    ErrorCode = "BLOCK_ERR_TIMESTAMP_OLD"
	BLOCK_ERR_TIMESTAMP_FUTURE ErrorCode = "BLOCK_ERR_TIMESTAMP_FUTURE"
	BLOCK_ERR_COINBASE_INVALID ErrorCode = "BLOCK_ERR_COINBASE_INVALID"
	BLOCK_ERR_SUBSIDY_EXCEEDED ErrorCode = "BLOCK_ERR_SUBSIDY_EXCEEDED"
	BLOCK_ERR_STAKE_INVALID    ErrorCode = "BLOCK_ERR_STAKE_INVALID"

	TX_ERR_COINBASE_IMMATURE   ErrorCode = "TX_ERR_COINBASE_IMMATURE"
	TX_ERR_VALUE_CONSERVATION ErrorCode = "TX_ERR_VALUE_CONSERVATION"
	TX_ERR_MISSING_UTXO_ENTRY ErrorCode = "TX_ERR_MISSING_UTXO_ENTRY"
	TX_ERR_BRANCH_INVALID      ErrorCode = "TX_ERR_BRANCH_INVALID"
	TX_ERR_CONTRACT_INVALID    ErrorCode = "TX_ERR_CONTRACT_INVALID"
	TX_ERR_REPORT_INVALID      ErrorCode = "TX_ERR_REPORT_INVALID"
)

// COINBASE_MATURITY blocks before a coinbase output may be spent.
const COINBASE_MATURITY = 100

// MAX_FUTURE_DRIFT bounds how far a header timestamp may exceed local time.
const MAX_FUTURE_DRIFT = 2 * 60 * 60

// MAX_BLOCK_WEIGHT is the miner's total block-template budget, mirroring the
// teacher's block-weight cap; the miner package carves its contract and
// branch payload reserves out of this budget before packing general txs.
const MAX_BLOCK_WEIGHT = 4_000_000

// MAIN is the reserved branch_id of the root chain.
const MAIN_BRANCH_ID = 0

// Covenant types recognized by the UTXO apply layer. COV_TYPE_P2PK is a
// plain pay-to-key output verified by the external script verifier.
// COV_TYPE_MORTGAGE_COIN and COV_TYPE_CONTRACT_OWNED carry structured
// covenant_data this package parses directly (mortgage lifecycle, contract
// balance accounting) rather than delegating fully to script evaluation.
const (
	COV_TYPE_P2PK           uint16 = 0
	COV_TYPE_MORTGAGE_COIN  uint16 = 1
	COV_TYPE_CONTRACT_OWNED uint16 = 2
)

// Branch/contract/report-prove protocol constants (spec §6 "Constants").
const (
	BRANCH_CHAIN_MATURITY  = 30
	CUSHION_HEIGHT         = 6
	REPORT_OUTOF_HEIGHT    = 1440
	REPORT_LOCK_COIN_HEIGHT = 60
	REDEEM_SAFE_HEIGHT     = 1440

	MAX_CONTRACT_FILE_LEN = 65536
	MAX_CONTRACT_CALL     = 15000
	MAX_INTERNAL_CALL_NUM = 30
)

// addU64 adds two uint64 fee/value amounts, rejecting overflow rather than
// wrapping, since a wrapped sum could let sum_out silently exceed sum_in.
func addU64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, txerr(TX_ERR_VALUE_CONSERVATION, "u64 overflow")
	}
	return sum, nil
}
