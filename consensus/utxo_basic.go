package consensus

// ScriptVerifier is the external pure-function collaborator the spec
// carves out of scope: verify(script, amount, tx, in_index, flags). The
// UTXO apply layer never evaluates opcodes itself; it calls out to this
// interface for anything covenant_type P2PK marks as script-gated.
type ScriptVerifier interface {
	Verify(scriptSig []byte, covenantData []byte, amount uint64, tx *Tx, inIndex int, flags uint32) error
}

type Outpoint struct {
	Txid [32]byte
	Vout uint32
}

type UtxoEntry struct {
	Value             uint64
	CovenantType      uint16
	CovenantData      []byte
	CreationHeight    uint64
	CreatedByCoinbase bool
}

type UtxoApplySummary struct {
	Fee       uint64
	UtxoCount uint64
}

// ApplyNonCoinbaseTxBasic applies tx's inputs/outputs against utxoSet,
// returning the fee it pays. Covenant-specific spend authorization
// (signature/script checks, mortgage-coin lifecycle gating) is left to
// checkSpendCovenant; this function only enforces value conservation and
// coinbase maturity, which apply uniformly regardless of covenant type.
func ApplyNonCoinbaseTxBasic(tx *Tx, txid [32]byte, utxoSet map[Outpoint]UtxoEntry, height uint64, blockTimestamp uint64, verifier ScriptVerifier) (*UtxoApplySummary, error) {
	if tx == nil {
		return nil, txerr(TX_ERR_PARSE, "nil tx")
	}
	if len(tx.Inputs) == 0 {
		return nil, txerr(TX_ERR_PARSE, "non-coinbase must have at least one input")
	}

	work := make(map[Outpoint]UtxoEntry, len(utxoSet))
	for k, v := range utxoSet {
		work[k] = v
	}

	var sumIn uint64
	for i, in := range tx.Inputs {
		op := Outpoint{Txid: in.PrevTxid, Vout: in.PrevVout}
		entry, ok := work[op]
		if !ok {
			return nil, txerr(TX_ERR_MISSING_UTXO, "utxo not found")
		}

		if entry.CreatedByCoinbase && height < entry.CreationHeight+COINBASE_MATURITY {
			return nil, txerr(TX_ERR_COINBASE_IMMATURE, "coinbase immature")
		}

		if err := checkSpendCovenant(entry, in, tx, i, height, blockTimestamp, verifier); err != nil {
			return nil, err
		}

		var err error
		sumIn, err = addU64(sumIn, entry.Value)
		if err != nil {
			return nil, err
		}

		delete(work, op)
	}

	var sumOut uint64
	for i, out := range tx.Outputs {
		var err error
		sumOut, err = addU64(sumOut, out.Value)
		if err != nil {
			return nil, err
		}

		op := Outpoint{Txid: txid, Vout: uint32(i)}
		work[op] = UtxoEntry{
			Value:             out.Value,
			CovenantType:      out.CovenantType,
			CovenantData:      append([]byte(nil), out.CovenantData...),
			CreationHeight:    height,
			CreatedByCoinbase: false,
		}
	}

	if sumOut > sumIn {
		return nil, txerr(TX_ERR_VALUE_CONSERVATION, "sum_out exceeds sum_in")
	}

	return &UtxoApplySummary{
		Fee:       sumIn - sumOut,
		UtxoCount: uint64(len(work)),
	}, nil
}

// checkSpendCovenant authorizes spending entry from tx.Inputs[inIndex].
// COV_TYPE_P2PK defers entirely to the external ScriptVerifier.
// COV_TYPE_MORTGAGE_COIN enforces the mortgage-coin lifecycle (spendable
// only by the branch miner's stake signature, a lock-mine-coin after
// report, or an unlock-mine-coin after prove/redeem) via checkMortgageCoinSpend.
// COV_TYPE_CONTRACT_OWNED is only ever debited by the contract executor
// through send_coins, never by an ordinary tx input.
func checkSpendCovenant(entry UtxoEntry, in TxIn, tx *Tx, inIndex int, height uint64, blockTimestamp uint64, verifier ScriptVerifier) error {
	switch entry.CovenantType {
	case COV_TYPE_P2PK:
		if verifier == nil {
			return txerr(TX_ERR_COVENANT_TYPE_INVALID, "no script verifier configured")
		}
		return verifier.Verify(in.ScriptSig, entry.CovenantData, entry.Value, tx, inIndex, 0)

	case COV_TYPE_MORTGAGE_COIN:
		return checkMortgageCoinSpend(entry, in, tx, inIndex, height, blockTimestamp, verifier)

	case COV_TYPE_CONTRACT_OWNED:
		return txerr(TX_ERR_COVENANT_TYPE_INVALID, "contract-owned coins are not spendable by ordinary tx inputs")

	default:
		return txerr(TX_ERR_COVENANT_TYPE_INVALID, "unsupported covenant in basic apply")
	}
}
