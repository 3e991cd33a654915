package miner

import (
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/vm"
)

type fakeMortgageCoinSource struct {
	coin  consensus.Outpoint
	entry consensus.UtxoEntry
	err   error
}

func (f *fakeMortgageCoinSource) SelectStakeCoin(branchID uint32) (consensus.Outpoint, consensus.UtxoEntry, error) {
	return f.coin, f.entry, f.err
}

func newTestMiner() *Miner {
	rt := newFakeRuntime()
	return &Miner{
		BranchID: 7,
		Policy:   DefaultTemplatePolicy(),
		Executor: vm.NewMultiContractExecutor(1, func() vm.ContractRuntime { return rt }),
		Coins:    &fakeMortgageCoinSource{coin: consensus.Outpoint{Txid: [32]byte{9}}, entry: consensus.UtxoEntry{Value: 500, CovenantData: []byte("keyid")}},
		Signer:   &fakeStakeSigner{sig: []byte("sig")},
	}
}

func TestBuildGenesisTemplate_HasNoStakeTx(t *testing.T) {
	m := newTestMiner()
	blk, err := m.BuildGenesisTemplate(1000)
	if err != nil {
		t.Fatalf("BuildGenesisTemplate: %v", err)
	}
	if len(blk.Vtx) != 1 {
		t.Fatalf("expected genesis to contain only the coinbase, got %d txs", len(blk.Vtx))
	}
	if blk.Vtx[0].Type != consensus.TX_TYPE_COINBASE {
		t.Fatal("vtx[0] must be the coinbase")
	}
	if blk.Header.BranchID != m.BranchID {
		t.Fatal("header must carry the miner's branch id")
	}
}

func TestBuildTemplate_SecondBlockIsStakeSigned(t *testing.T) {
	m := newTestMiner()
	tip := ChainTip{Height: 0, ContractData: vm.MapContractContext{}}

	blk, err := m.BuildTemplate(tip, nil, 2000)
	if err != nil {
		t.Fatalf("BuildTemplate: %v", err)
	}
	if len(blk.Vtx) != 2 {
		t.Fatalf("expected coinbase + stake tx with no mempool candidates, got %d", len(blk.Vtx))
	}
	if blk.Vtx[1].Inputs[0].PrevTxid != [32]byte{9} {
		t.Fatal("stake tx must spend the coin the MortgageCoinSource selected")
	}
	if len(blk.Vtx[1].Inputs[0].ScriptSig) == 0 {
		t.Fatal("stake tx must be signed before the template is returned")
	}
}

func TestBuildTemplate_CoinbasePaysExactlyCollectedFees(t *testing.T) {
	m := newTestMiner()
	tip := ChainTip{Height: 5, ContractData: vm.MapContractContext{}}
	candidate := MempoolTx{Tx: mkTx(0), Fee: 42}

	blk, err := m.BuildTemplate(tip, []MempoolTx{candidate}, 3000)
	if err != nil {
		t.Fatalf("BuildTemplate: %v", err)
	}
	if blk.Vtx[0].Outputs[0].Value != 42 {
		t.Fatalf("branch coinbase must equal collected fees exactly (no subsidy), got %d", blk.Vtx[0].Outputs[0].Value)
	}
}

func TestBuildTemplate_PropagatesCoinSelectionError(t *testing.T) {
	m := newTestMiner()
	m.Coins = &fakeMortgageCoinSource{err: errSignFailed}
	_, err := m.BuildTemplate(ChainTip{ContractData: vm.MapContractContext{}}, nil, 1)
	if err == nil {
		t.Fatal("expected mortgage-coin selection failure to abort template construction")
	}
}
