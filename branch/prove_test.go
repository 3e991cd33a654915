package branch

import (
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
)

func TestCheckReportRewardTransaction(t *testing.T) {
	var mortgageFrom [32]byte
	mortgageFrom[0] = 0x11
	reporterPubKey := []byte("reporter-script-pubkey")

	reportTx := &consensus.Tx{Type: consensus.TX_TYPE_REPORT, ReportType: consensus.REPORT_TYPE_MERKLETREE}

	base := func() *consensus.Tx {
		return &consensus.Tx{
			Type:   consensus.TX_TYPE_REPORT_REWARD,
			Inputs: []consensus.TxIn{{PrevTxid: mortgageFrom, PrevVout: 0}},
			Outputs: []consensus.TxOut{
				{Value: 600, CovenantData: reporterPubKey},
			},
		}
	}

	if err := CheckReportRewardTransaction(base(), reportTx, true, consensus.REPORT_OUTOF_HEIGHT, ReportStatusReported, mortgageFrom, 1000, reporterPubKey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := CheckReportRewardTransaction(base(), reportTx, true, consensus.REPORT_OUTOF_HEIGHT-1, ReportStatusReported, mortgageFrom, 1000, reporterPubKey); err == nil {
		t.Fatal("expected error: prove window not yet elapsed")
	}

	if err := CheckReportRewardTransaction(base(), reportTx, true, consensus.REPORT_OUTOF_HEIGHT, ReportStatusProved, mortgageFrom, 1000, reporterPubKey); err == nil {
		t.Fatal("expected error: already proved")
	}

	if err := CheckReportRewardTransaction(base(), nil, false, consensus.REPORT_OUTOF_HEIGHT, ReportStatusReported, mortgageFrom, 1000, reporterPubKey); err == nil {
		t.Fatal("expected error: report_tx must exist and be confirmed")
	}

	low := base()
	low.Outputs[0].Value = 400
	if err := CheckReportRewardTransaction(low, reportTx, true, consensus.REPORT_OUTOF_HEIGHT, ReportStatusReported, mortgageFrom, 1000, reporterPubKey); err == nil {
		t.Fatal("expected error: reward below half the cheater's stake")
	}

	wrongOutput := base()
	wrongOutput.Outputs[0].CovenantData = []byte("someone-else")
	if err := CheckReportRewardTransaction(wrongOutput, reportTx, true, consensus.REPORT_OUTOF_HEIGHT, ReportStatusReported, mortgageFrom, 1000, reporterPubKey); err == nil {
		t.Fatal("expected error: vout[0] must pay the reporter")
	}

	wrongInput := base()
	wrongInput.Inputs[0].PrevVout = 1
	if err := CheckReportRewardTransaction(wrongInput, reportTx, true, consensus.REPORT_OUTOF_HEIGHT, ReportStatusReported, mortgageFrom, 1000, reporterPubKey); err == nil {
		t.Fatal("expected error: vin[0] must consume the cheater's mortgage-coin stake")
	}
}

func TestCheckLockAndUnlockMortgageMineCoinTx(t *testing.T) {
	var anchor, coinPreout [32]byte
	anchor[0] = 0x22
	coinPreout[0] = 0x33
	tx := &consensus.Tx{Type: consensus.TX_TYPE_MORTGAGE, AnchorTxID: anchor, CoinPreoutHash: coinPreout}

	ok := &fakeAnchorRPC{confirmations: consensus.REPORT_LOCK_COIN_HEIGHT, branchID: 4, coinPreoutHash: coinPreout, found: true}
	if err := CheckLockMortgageMineCoinTx(tx, ok, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckUnlockMortgageMineCoinTx(tx, ok, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	notFound := &fakeAnchorRPC{found: false}
	if err := CheckLockMortgageMineCoinTx(tx, notFound, 4); err == nil {
		t.Fatal("expected error: anchor tx not found")
	}
	if err := CheckUnlockMortgageMineCoinTx(tx, notFound, 4); err == nil {
		t.Fatal("expected error: anchor tx not found")
	}

	lowConf := &fakeAnchorRPC{confirmations: consensus.REPORT_LOCK_COIN_HEIGHT - 1, branchID: 4, coinPreoutHash: coinPreout, found: true}
	if err := CheckLockMortgageMineCoinTx(tx, lowConf, 4); err == nil {
		t.Fatal("expected error: insufficient confirmations")
	}

	wrongBranch := &fakeAnchorRPC{confirmations: consensus.REPORT_LOCK_COIN_HEIGHT, branchID: 5, coinPreoutHash: coinPreout, found: true}
	if err := CheckLockMortgageMineCoinTx(tx, wrongBranch, 4); err == nil {
		t.Fatal("expected error: anchor tx does not point at this branch")
	}

	rpcErr := &fakeAnchorRPC{err: errConnFailed}
	if err := CheckLockMortgageMineCoinTx(tx, rpcErr, 4); err != errConnFailed {
		t.Fatalf("expected the connection failure to bubble unchanged, got %v", err)
	}
	if err := CheckUnlockMortgageMineCoinTx(tx, rpcErr, 4); err != errConnFailed {
		t.Fatalf("expected the connection failure to bubble unchanged, got %v", err)
	}
}

type fakeAnchorRPC struct {
	confirmations  uint64
	branchID       uint32
	coinPreoutHash [32]byte
	found          bool
	err            error
}

func (f *fakeAnchorRPC) GetBranchChainTransaction(branchID uint32, txHash [32]byte) (uint64, [32]byte, bool, error) {
	return 0, [32]byte{}, false, nil
}

func (f *fakeAnchorRPC) GetBranchChainTx(branchID uint32, txHash [32]byte) (*consensus.Tx, uint64, bool, error) {
	return nil, 0, false, nil
}

func (f *fakeAnchorRPC) GetAnchorTx(anchorTxID [32]byte) (uint64, uint32, [32]byte, bool, error) {
	return f.confirmations, f.branchID, f.coinPreoutHash, f.found, f.err
}

var errConnFailed = consensus.NewError(consensus.TX_ERR_BRANCH_INVALID, "connection failed")

func TestCheckProveCoinbaseTx_FeeConservation(t *testing.T) {
	src := &consensus.Tx{Type: consensus.TX_TYPE_NORMAL, Outputs: []consensus.TxOut{{Value: 1000}}}
	srcBytes, err := src.Marshal()
	if err != nil {
		t.Fatalf("src.Marshal: %v", err)
	}
	srcHash, err := src.TxHash()
	if err != nil {
		t.Fatalf("src.TxHash: %v", err)
	}

	spend := &consensus.Tx{
		Type:    consensus.TX_TYPE_NORMAL,
		Inputs:  []consensus.TxIn{{PrevTxid: srcHash, PrevVout: 0}},
		Outputs: []consensus.TxOut{{Value: 900}},
	}
	spendBytes, err := spend.Marshal()
	if err != nil {
		t.Fatalf("spend.Marshal: %v", err)
	}

	coinbase := &consensus.Tx{Type: consensus.TX_TYPE_COINBASE, Outputs: []consensus.TxOut{{Value: 100}}}
	coinbaseBytes, err := coinbase.Marshal()
	if err != nil {
		t.Fatalf("coinbase.Marshal: %v", err)
	}

	txids := make([][32]byte, 2)
	coinbaseHash, err := coinbase.TxHash()
	if err != nil {
		t.Fatalf("coinbase.TxHash: %v", err)
	}
	spendHash, err := spend.TxHash()
	if err != nil {
		t.Fatalf("spend.TxHash: %v", err)
	}
	txids[0] = coinbaseHash
	txids[1] = spendHash
	root, err := consensus.MerkleRootTxids(txids)
	if err != nil {
		t.Fatalf("MerkleRootTxids: %v", err)
	}
	header := consensus.BlockHeader{HashMerkleRoot: root}

	resolve := func(op consensus.Outpoint) (consensus.UtxoEntry, bool) {
		if op.Txid == srcHash && op.Vout == 0 {
			return consensus.UtxoEntry{Value: 1000}, true
		}
		return consensus.UtxoEntry{}, false
	}

	prove := &consensus.Tx{
		Type: consensus.TX_TYPE_PROVE,
		ProveData: []consensus.ProveItem{
			{TxBytes: coinbaseBytes},
			{TxBytes: spendBytes},
		},
	}
	if err := CheckProveCoinbaseTx(prove, header, resolve); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badCoinbase := &consensus.Tx{Type: consensus.TX_TYPE_COINBASE, Outputs: []consensus.TxOut{{Value: 50}}}
	badCoinbaseBytes, err := badCoinbase.Marshal()
	if err != nil {
		t.Fatalf("badCoinbase.Marshal: %v", err)
	}
	badProve := &consensus.Tx{
		Type: consensus.TX_TYPE_PROVE,
		ProveData: []consensus.ProveItem{
			{TxBytes: badCoinbaseBytes},
			{TxBytes: spendBytes},
		},
	}
	if err := CheckProveCoinbaseTx(badProve, header, resolve); err == nil {
		t.Fatal("expected a substituted coinbase to fail the recomputed hashMerkleRoot check")
	}
	_ = srcBytes
}
