package miner

import (
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
)

func mkTx(covenantDataLen int) *consensus.Tx {
	return &consensus.Tx{
		Version: 1,
		Type:    consensus.TX_TYPE_NORMAL,
		Outputs: []consensus.TxOut{{Value: 1, CovenantData: make([]byte, covenantDataLen)}},
	}
}

func TestSelectTransactions_ReservesContractBudgetSeparately(t *testing.T) {
	policy := TemplatePolicy{
		ReservePubContractBlockDataSize:  1000,
		ReserveCallContractBlockDataSize: 1000,
		ReserveBranchTxBlockDataSize:     1000,
	}
	pub := MempoolTx{Tx: &consensus.Tx{Type: consensus.TX_TYPE_PUBLISH_CONTRACT, ContractCode: make([]byte, 100)}, Fee: 10}
	call := MempoolTx{Tx: &consensus.Tx{Type: consensus.TX_TYPE_CALL_CONTRACT, ContractFn: "f"}, Fee: 20}
	general := MempoolTx{Tx: mkTx(10), Fee: 5}

	res := SelectTransactions([]MempoolTx{pub, call, general}, policy, 10_000)
	if len(res.Txs) != 3 {
		t.Fatalf("expected all 3 candidates packed, got %d", len(res.Txs))
	}
	if res.TotalFee != 35 {
		t.Fatalf("expected total fee 35, got %d", res.TotalFee)
	}
}

func TestSelectTransactions_GeneralBudgetExcludesReservedSpace(t *testing.T) {
	policy := TemplatePolicy{
		ReservePubContractBlockDataSize:  100,
		ReserveCallContractBlockDataSize: 0,
		ReserveBranchTxBlockDataSize:     0,
	}
	maxWeight := 100 + uint64(len(mustMarshal(t, mkTx(0)))) // after the reserve, room for exactly one ordinary tx
	small := MempoolTx{Tx: mkTx(0), Fee: 1}
	big := MempoolTx{Tx: mkTx(0), Fee: 2}

	res := SelectTransactions([]MempoolTx{small, big}, policy, maxWeight)
	if len(res.Txs) != 1 {
		t.Fatalf("expected exactly 1 tx to fit budget, got %d", len(res.Txs))
	}
	if res.TotalFee != 2 {
		t.Fatalf("expected the higher-fee tx to be chosen, got fee %d", res.TotalFee)
	}
}

func TestSelectTransactions_PrefersHigherFeeRate(t *testing.T) {
	policy := TemplatePolicy{}
	cheap := MempoolTx{Tx: mkTx(1000), Fee: 1} // low fee, big weight -> bad rate
	rich := MempoolTx{Tx: mkTx(0), Fee: 100}   // high fee, tiny weight -> great rate

	res := SelectTransactions([]MempoolTx{cheap, rich}, policy, 1<<20)
	if len(res.Txs) != 2 {
		t.Fatalf("expected both to fit a generous budget, got %d", len(res.Txs))
	}
	if res.Txs[0].Fee != 100 {
		t.Fatalf("expected the better fee-rate tx packed first, got fee %d first", res.Txs[0].Fee)
	}
}

func mustMarshal(t *testing.T, tx *consensus.Tx) []byte {
	t.Helper()
	b, err := tx.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
