package consensus

import "testing"

func TestParseMortgageScript_MineShape(t *testing.T) {
	var data []byte
	data = AppendU32le(data, 7)
	data = AppendU64le(data, 100)
	data = append(data, make([]byte, 20)...)
	ms, err := ParseMortgageScript(data)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ms.Kind != MORTGAGE_SCRIPT_MINE || ms.BranchOrFrom != 7 || ms.Height != 100 {
		t.Fatalf("unexpected parse result: %+v", ms)
	}
}

func TestParseMortgageScript_CoinShape(t *testing.T) {
	var data []byte
	data = AppendU64le(data, 100)
	data = append(data, make([]byte, 20)...)
	ms, err := ParseMortgageScript(data)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ms.Kind != MORTGAGE_SCRIPT_COIN || ms.Height != 100 {
		t.Fatalf("unexpected parse result: %+v", ms)
	}
}

func TestParseMortgageScript_BadLength(t *testing.T) {
	if _, err := ParseMortgageScript([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for unrecognized length")
	}
}

func TestCheckMortgageCoinSpend_LockMineCoin_RequiresPreoutMatch(t *testing.T) {
	var covData []byte
	covData = AppendU64le(covData, 100)
	covData = append(covData, make([]byte, 20)...)
	entry := UtxoEntry{Value: 1000, CovenantType: COV_TYPE_MORTGAGE_COIN, CovenantData: covData, CreationHeight: 1}
	in := TxIn{PrevTxid: [32]byte{9}}
	tx := &Tx{Type: TX_TYPE_LOCK_MINE_COIN, CoinPreoutHash: [32]byte{9}}
	if err := checkMortgageCoinSpend(entry, in, tx, 0, 500, 0, nil); err != nil {
		t.Fatalf("expected success on matching preout: %v", err)
	}
	tx.CoinPreoutHash = [32]byte{1}
	if err := checkMortgageCoinSpend(entry, in, tx, 0, 500, 0, nil); err == nil {
		t.Fatalf("expected rejection on mismatched preout")
	}
}

func TestCheckMortgageCoinSpend_RedeemBeforeSafeHeightRejected(t *testing.T) {
	var covData []byte
	covData = AppendU64le(covData, 100)
	covData = append(covData, make([]byte, 20)...)
	entry := UtxoEntry{Value: 1000, CovenantType: COV_TYPE_MORTGAGE_COIN, CovenantData: covData, CreationHeight: 100}
	in := TxIn{PrevTxid: [32]byte{9}}
	tx := &Tx{Type: TX_TYPE_REDEEM_MORTGAGE_STATEMENT}
	err := checkMortgageCoinSpend(entry, in, tx, 0, 100+REDEEM_SAFE_HEIGHT-1, 0, nil)
	if mustTxErrCode(t, err) != TX_ERR_TIMELOCK_NOT_MET {
		t.Fatalf("expected TX_ERR_TIMELOCK_NOT_MET, got %v", err)
	}
}
