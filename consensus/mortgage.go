package consensus

// mortgage.go unifies what the source project split across
// GetMortgageMineData and GetMortgageCoinData into one parser, per the
// design note calling out that duplication: parse_mortgage_script decides
// which of the two shapes it is looking at from length alone and returns a
// single normalized result.

// MortgageScriptKind distinguishes the two places a mortgage commitment is
// recorded: the step-1 script on MAIN that locks collateral, and the
// mortgage-coin covenant_data on the destination branch that step-2 mints.
type MortgageScriptKind uint8

const (
	MORTGAGE_SCRIPT_MINE MortgageScriptKind = iota
	MORTGAGE_SCRIPT_COIN
)

const (
	mortgageMineScriptLen = 4 + 8 + 20 // branch_id, height, keyid
	mortgageCoinScriptLen = 8 + 20     // height, keyid
)

// MortgageScript is the normalized result of parse_mortgage_script: a
// (kind, branch_or_from, height, keyid) tuple regardless of which of the
// two wire shapes produced it.
type MortgageScript struct {
	Kind          MortgageScriptKind
	BranchOrFrom  uint32
	Height        uint64
	KeyID         [20]byte
}

// ParseMortgageScript decodes either a mortgage step-1 script
// (OP_MINE_BRANCH_MORTGAGE branch_id height keyid) or a mortgage-coin
// covenant_data blob (height keyid), inferring the shape from length.
func ParseMortgageScript(data []byte) (*MortgageScript, error) {
	switch len(data) {
	case mortgageMineScriptLen:
		off := 0
		branchID, err := readU32le(data, &off)
		if err != nil {
			return nil, err
		}
		height, err := readU64le(data, &off)
		if err != nil {
			return nil, err
		}
		keyBytes, err := readBytes(data, &off, 20)
		if err != nil {
			return nil, err
		}
		var keyID [20]byte
		copy(keyID[:], keyBytes)
		return &MortgageScript{Kind: MORTGAGE_SCRIPT_MINE, BranchOrFrom: branchID, Height: height, KeyID: keyID}, nil

	case mortgageCoinScriptLen:
		off := 0
		height, err := readU64le(data, &off)
		if err != nil {
			return nil, err
		}
		keyBytes, err := readBytes(data, &off, 20)
		if err != nil {
			return nil, err
		}
		var keyID [20]byte
		copy(keyID[:], keyBytes)
		return &MortgageScript{Kind: MORTGAGE_SCRIPT_COIN, Height: height, KeyID: keyID}, nil

	default:
		return nil, txerr(TX_ERR_COVENANT_TYPE_INVALID, "mortgage script length matches neither mine nor coin shape")
	}
}

// MortgageCoinState tracks where in the report/prove/redeem lifecycle a
// mortgage-coin UTXO sits, mirroring the report-flag state machine but
// scoped to one coin_preout_hash.
type MortgageCoinState uint8

const (
	MORTGAGE_COIN_FREE MortgageCoinState = iota
	MORTGAGE_COIN_LOCKED
)

// checkMortgageCoinSpend authorizes spending a mortgage-coin UTXO. Per the
// lifecycle invariant, a mortgage coin is spendable only by: (a) the branch
// miner signing a stake block, (b) a lock-mine-coin tx after a valid
// report, or (c) an unlock-mine-coin tx after a valid prove or a
// redeem-after-maturity flow. This function does not consult the
// report/prove state (BranchProtocol owns that state machine); it only
// enforces which tx types may spend a mortgage coin and each type's checks.
func checkMortgageCoinSpend(entry UtxoEntry, in TxIn, tx *Tx, inIndex int, height uint64, blockTimestamp uint64, verifier ScriptVerifier) error {
	ms, err := ParseMortgageScript(entry.CovenantData)
	if err != nil {
		return err
	}
	if ms.Kind != MORTGAGE_SCRIPT_COIN {
		return txerr(TX_ERR_COVENANT_TYPE_INVALID, "covenant_data is not a mortgage-coin script")
	}

	switch tx.Type {
	case TX_TYPE_NORMAL, TX_TYPE_COINBASE:
		// Stake-signed spend: the block's own signature over
		// GetHashNoSignData authenticates key ownership, not scriptSig,
		// so this path only needs the key-id match; the caller (miner
		// block-connect logic) has already verified the stake signature
		// before this coin is considered spent.
		return verifyKeyIDBinding(ms.KeyID, in.ScriptSig, verifier, entry, tx, inIndex)

	case TX_TYPE_LOCK_MINE_COIN:
		if tx.CoinPreoutHash != in.PrevTxid {
			return txerr(TX_ERR_COVENANT_TYPE_INVALID, "lock-mine-coin coin_preout_hash mismatch")
		}
		return nil

	case TX_TYPE_UNLOCK_MINE_COIN:
		if tx.CoinPreoutHash != in.PrevTxid {
			return txerr(TX_ERR_COVENANT_TYPE_INVALID, "unlock-mine-coin coin_preout_hash mismatch")
		}
		return nil

	case TX_TYPE_REDEEM_MORTGAGE_STATEMENT:
		if height < entry.CreationHeight+REDEEM_SAFE_HEIGHT {
			return txerr(TX_ERR_TIMELOCK_NOT_MET, "mortgage redeem before REDEEM_SAFE_HEIGHT")
		}
		return verifyKeyIDBinding(ms.KeyID, in.ScriptSig, verifier, entry, tx, inIndex)

	default:
		return txerr(TX_ERR_COVENANT_TYPE_INVALID, "tx type may not spend a mortgage-coin UTXO")
	}
}

func verifyKeyIDBinding(keyID [20]byte, scriptSig []byte, verifier ScriptVerifier, entry UtxoEntry, tx *Tx, inIndex int) error {
	if verifier == nil {
		return txerr(TX_ERR_COVENANT_TYPE_INVALID, "no script verifier configured")
	}
	return verifier.Verify(scriptSig, keyID[:], entry.Value, tx, inIndex, 0)
}
