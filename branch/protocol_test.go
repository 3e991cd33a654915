package branch

import (
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/spv"
)

type fakeBranchRPC struct {
	confirmations uint64
	foundHash     [32]byte
	found         bool
	err           error
	called        bool

	tx *consensus.Tx
}

func (f *fakeBranchRPC) GetBranchChainTransaction(branchID uint32, txHash [32]byte) (uint64, [32]byte, bool, error) {
	f.called = true
	return f.confirmations, f.foundHash, f.found, f.err
}

func (f *fakeBranchRPC) GetBranchChainTx(branchID uint32, txHash [32]byte) (*consensus.Tx, uint64, bool, error) {
	f.called = true
	return f.tx, f.confirmations, f.found, f.err
}

func (f *fakeBranchRPC) GetAnchorTx(anchorTxID [32]byte) (uint64, uint32, [32]byte, bool, error) {
	return 0, 0, [32]byte{}, false, nil
}

func buildStep2FromPair(t *testing.T, selfBranchID uint32, inAmount uint64) (*consensus.Tx, *consensus.Tx) {
	t.Helper()
	step2 := &consensus.Tx{
		Type:         consensus.TX_TYPE_TRANS_STEP2,
		FromBranchID: 5,
		InAmount:     inAmount,
		Outputs:      []consensus.TxOut{{Value: inAmount}},
	}
	reverted, err := consensus.RevertStep2(step2, false)
	if err != nil {
		t.Fatalf("RevertStep2: %v", err)
	}
	revertedHash, err := reverted.TxHash()
	if err != nil {
		t.Fatalf("reverted.TxHash: %v", err)
	}
	fromTx := &consensus.Tx{
		Type:         consensus.TX_TYPE_TRANS_STEP1,
		SendToTxHash: revertedHash,
		Outputs:      []consensus.TxOut{{Value: inAmount}},
	}
	return step2, fromTx
}

func TestCheckBranchTransaction_FastPathSkipsRPC(t *testing.T) {
	step2, fromTx := buildStep2FromPair(t, 9, 100)
	rpc := &fakeBranchRPC{}
	err := CheckBranchTransaction(rpc, 9, step2, fromTx, []uint32{9}, false, 50, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rpc.called {
		t.Fatal("fast path must not call the RPC")
	}
}

func TestCheckBranchTransaction_NotFoundOnSourceChain(t *testing.T) {
	step2, fromTx := buildStep2FromPair(t, 9, 100)
	rpc := &fakeBranchRPC{found: false}
	err := CheckBranchTransaction(rpc, 9, step2, fromTx, []uint32{9}, false, 50, false)
	if err == nil {
		t.Fatal("expected error when from_tx is not found on source chain")
	}
}

func TestCheckBranchTransaction_InsufficientConfirmations(t *testing.T) {
	step2, fromTx := buildStep2FromPair(t, 9, 100)
	fromHash, _ := fromTx.TxHash()
	rpc := &fakeBranchRPC{found: true, foundHash: fromHash, confirmations: consensus.BRANCH_CHAIN_MATURITY}
	err := CheckBranchTransaction(rpc, 9, step2, fromTx, []uint32{9}, false, 50, false)
	if err == nil {
		t.Fatal("expected error on insufficient confirmations")
	}
}

func TestCheckBranchTransaction_Confirmed(t *testing.T) {
	step2, fromTx := buildStep2FromPair(t, 9, 100)
	fromHash, _ := fromTx.TxHash()
	rpc := &fakeBranchRPC{found: true, foundHash: fromHash, confirmations: consensus.BRANCH_CHAIN_MATURITY + 1}
	err := CheckBranchTransaction(rpc, 9, step2, fromTx, []uint32{9}, false, 50, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type fakeHeaderSig struct {
	ok  bool
	err error
}

func (f *fakeHeaderSig) VerifyBranchHeaderSignature(header consensus.BlockHeader, sig []byte, stakeScriptPubKey []byte) (bool, error) {
	return f.ok, f.err
}

func TestCheckBranchBlockInfoTx(t *testing.T) {
	db := openTestDb(t)
	if err := db.RegisterBranch(3, nil); err != nil {
		t.Fatalf("RegisterBranch: %v", err)
	}

	header := consensus.BlockHeader{Timestamp: 1000, BranchID: 3}
	tx := &consensus.Tx{
		Type: consensus.TX_TYPE_SYNC_BRANCH_INFO,
		BranchInfo: consensus.BranchBlockInfo{
			Header:   header,
			BranchID: 3,
		},
	}

	if err := CheckBranchBlockInfoTx(tx, db, &fakeHeaderSig{ok: false}, nil, nil, 1000); err == nil {
		t.Fatal("expected signature verification failure to be rejected")
	}

	if err := CheckBranchBlockInfoTx(tx, db, &fakeHeaderSig{ok: true}, nil, nil, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hash, err := HeaderHash(header)
	if err != nil {
		t.Fatalf("headerHash: %v", err)
	}
	if err := db.PutBranchBlock(3, hash, nil); err != nil {
		t.Fatalf("PutBranchBlock: %v", err)
	}
	if err := CheckBranchBlockInfoTx(tx, db, &fakeHeaderSig{ok: true}, nil, nil, 1000); err == nil {
		t.Fatal("expected duplicate branch header to be rejected")
	}

	unknown := &consensus.Tx{
		Type: consensus.TX_TYPE_SYNC_BRANCH_INFO,
		BranchInfo: consensus.BranchBlockInfo{
			Header:   header,
			BranchID: 99,
		},
	}
	if err := CheckBranchBlockInfoTx(unknown, db, &fakeHeaderSig{ok: true}, nil, nil, 1000); err == nil {
		t.Fatal("expected unknown branch to be rejected")
	}
}

func txids(n int) [][32]byte {
	ids := make([][32]byte, n)
	for i := range ids {
		ids[i][0] = byte(i + 1)
	}
	return ids
}

func TestCheckReportCheatTx_TxReport(t *testing.T) {
	ids := txids(5)
	root, err := consensus.MerkleRootTxids(ids)
	if err != nil {
		t.Fatalf("MerkleRootTxids: %v", err)
	}
	proof, err := spv.Build(ids, map[[32]byte]bool{ids[2]: true})
	if err != nil {
		t.Fatalf("spv.Build: %v", err)
	}
	header := consensus.BlockHeader{HashMerkleRoot: root}

	tx := &consensus.Tx{
		Type:              consensus.TX_TYPE_REPORT,
		ReportType:        consensus.REPORT_TYPE_TX,
		ReportedTxHash:    ids[2],
		PartialMerkleTree: proof.Marshal(),
	}
	if err := CheckReportCheatTx(tx, header, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx.ReportedTxHash = ids[0]
	if err := CheckReportCheatTx(tx, header, 0); err == nil {
		t.Fatal("expected error when the proof does not cover reported_tx_hash")
	}
}

func TestCheckReportCheatTx_MerkletreeAge(t *testing.T) {
	tx := &consensus.Tx{Type: consensus.TX_TYPE_REPORT, ReportType: consensus.REPORT_TYPE_MERKLETREE}
	header := consensus.BlockHeader{}
	if err := CheckReportCheatTx(tx, header, consensus.REDEEM_SAFE_HEIGHT); err != nil {
		t.Fatalf("unexpected error at the boundary: %v", err)
	}
	if err := CheckReportCheatTx(tx, header, consensus.REDEEM_SAFE_HEIGHT+1); err == nil {
		t.Fatal("expected error past the redeem-safe age")
	}
}

func TestCheckReportCheatTx_ContractDataRedirects(t *testing.T) {
	tx := &consensus.Tx{Type: consensus.TX_TYPE_REPORT, ReportType: consensus.REPORT_TYPE_CONTRACT_DATA}
	if err := CheckReportCheatTx(tx, consensus.BlockHeader{}, 0); err == nil {
		t.Fatal("expected CheckReportCheatTx to reject contract-data reports directly")
	}
}

func TestCheckProveContractData(t *testing.T) {
	cases := []struct {
		name      string
		claim     ContractDataClaim
		sustained bool
	}{
		{
			name:      "not an ancestor: unrelated chains sustain the fraud claim",
			claim:     ContractDataClaim{ReportedIsAncestorOfProve: false},
			sustained: true,
		},
		{
			name: "prove strictly newer height sustains the fraud claim",
			claim: ContractDataClaim{
				ReportedIsAncestorOfProve: true,
				RecordedReadHeight:        10,
				ProveHeight:               11,
			},
			sustained: true,
		},
		{
			name: "same height, prove between read and reported index sustains",
			claim: ContractDataClaim{
				ReportedIsAncestorOfProve: true,
				RecordedReadHeight:        10,
				ProveHeight:               10,
				RecordedReadTxIndex:       2,
				ProveTxIndex:              3,
				ReportedTxIndex:           5,
			},
			sustained: true,
		},
		{
			name: "correct read-before-write ordering is not sustained",
			claim: ContractDataClaim{
				ReportedIsAncestorOfProve: true,
				RecordedReadHeight:        10,
				ProveHeight:               9,
			},
			sustained: false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := CheckProveContractData(c.claim)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.sustained {
				t.Fatalf("expected sustained=%v, got %v", c.sustained, got)
			}
		})
	}
}
