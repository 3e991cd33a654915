package miner

import (
	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/vm"
)

// ChainTip is the minimal view of chain state BuildTemplate needs: the
// block the new template extends, its own hash (for the new header's
// PrevHash), and the contract post-state it committed.
type ChainTip struct {
	Height       uint64
	Hash         [32]byte
	Header       consensus.BlockHeader
	ContractData vm.MapContractContext
}

// Miner assembles a candidate block for one branch: coinbase plus, for
// every height past genesis, a PoS stake tx spending a mortgage coin,
// plus mempool txs packed under TemplatePolicy, then all three Merkle
// roots and the stake signature.
type Miner struct {
	BranchID uint32
	Policy   TemplatePolicy
	Executor *vm.MultiContractExecutor
	Coins    MortgageCoinSource
	Signer   StakeSigner
}

// BuildGenesisTemplate constructs a branch's height-0 bootstrap block:
// no stake tx, since there is no mortgage coin yet — the second block
// (height 1, built by BuildTemplate) is the first one a miner stakes
// and is the only way the branch leaves genesis.
func (m *Miner) BuildGenesisTemplate(timestamp uint64) (*consensus.ParsedBlock, error) {
	coinbase := &consensus.Tx{
		Version: 1,
		Type:    consensus.TX_TYPE_COINBASE,
		Outputs: []consensus.TxOut{{Value: 0, CovenantType: consensus.COV_TYPE_P2PK}},
	}
	vtx := []*consensus.Tx{coinbase}

	roots, err := buildContractRoots(vtx, m.Executor, vm.MapContractContext{}, vm.ExecuteEnv{})
	if err != nil {
		return nil, err
	}
	header := consensus.BlockHeader{
		Version:                    1,
		HashMerkleRoot:             roots.HashMerkleRoot,
		HashMerkleRootWithPrevData: roots.HashMerkleRootWithPrevData,
		HashMerkleRootWithData:     roots.HashMerkleRootWithData,
		Timestamp:                  timestamp,
		BranchID:                   m.BranchID,
	}
	return &consensus.ParsedBlock{Header: header, Vtx: vtx}, nil
}

// BuildTemplate produces height tip.Height+1's block, signed and
// ready for submission. Branch chains mint no subsidy (invariant 6):
// the coinbase output is exactly the fee total the packed txs pay.
func (m *Miner) BuildTemplate(tip ChainTip, candidates []MempoolTx, timestamp uint64) (*consensus.ParsedBlock, error) {
	nextHeight := tip.Height + 1

	coinbase := &consensus.Tx{Version: 1, Type: consensus.TX_TYPE_COINBASE, LockTime: uint32(nextHeight)}
	vtx := []*consensus.Tx{coinbase}

	// Every post-genesis block is stake-signed; the height-1 case is
	// the special one spec.md calls out — it must be mined by the
	// mortgage-coin owner, since it is the only way the branch leaves
	// genesis — but the mechanics here are identical at every height.
	var stakeTx *consensus.Tx
	coin, entry, err := m.Coins.SelectStakeCoin(m.BranchID)
	if err != nil {
		return nil, err
	}
	stakeTx = buildStakeTx(coin, entry)
	vtx = append(vtx, stakeTx)

	sel := SelectTransactions(candidates, m.Policy, consensus.MAX_BLOCK_WEIGHT)
	for _, c := range sel.Txs {
		vtx = append(vtx, c.Tx)
	}
	coinbase.Outputs = []consensus.TxOut{{Value: sel.TotalFee, CovenantType: consensus.COV_TYPE_P2PK}}

	roots, err := buildContractRoots(vtx, m.Executor, tip.ContractData, vm.ExecuteEnv{PrevBlockHeader: tip.Header})
	if err != nil {
		return nil, err
	}

	header := consensus.BlockHeader{
		Version:                    1,
		PrevHash:                   tip.Hash,
		HashMerkleRoot:             roots.HashMerkleRoot,
		HashMerkleRootWithPrevData: roots.HashMerkleRootWithPrevData,
		HashMerkleRootWithData:     roots.HashMerkleRootWithData,
		Timestamp:                  timestamp,
		BranchID:                   m.BranchID,
	}

	if err := SignStakeInput(stakeTx, header, m.Signer); err != nil {
		return nil, err
	}

	return &consensus.ParsedBlock{Header: header, Vtx: vtx}, nil
}
