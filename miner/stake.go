package miner

import (
	"golang.org/x/crypto/sha3"

	"github.com/rubinchain/rubin-node/consensus"
)

// StakeSigner is the external pure-function collaborator that turns
// GetHashNoSignData(header) into the scriptSig proving ownership of
// the mortgage-coin key, mirroring consensus.ScriptVerifier and
// branch.HeaderSigVerifier's "push signing/verification out of this
// package" shape. A concrete binding lives in node's KeyStore.
type StakeSigner interface {
	Sign(hash [32]byte) ([]byte, error)
}

// MortgageCoinSource resolves the one mortgage-coin UTXO a branch
// miner is entitled to sign the next block's stake input with.
type MortgageCoinSource interface {
	SelectStakeCoin(branchID uint32) (consensus.Outpoint, consensus.UtxoEntry, error)
}

// buildStakeTx builds vtx[1] for a branch block: a single input
// spending the selected mortgage-coin UTXO, a single output re-minting
// the same coin back to its own covenant — the mortgage coin's value
// and covenant never change on a stake spend, only the ScriptSig
// proving key ownership is attached.
func buildStakeTx(coin consensus.Outpoint, entry consensus.UtxoEntry) *consensus.Tx {
	return &consensus.Tx{
		Version: 1,
		Type:    consensus.TX_TYPE_NORMAL,
		Inputs: []consensus.TxIn{{
			PrevTxid: coin.Txid,
			PrevVout: coin.Vout,
			Sequence: ^uint32(0),
		}},
		Outputs: []consensus.TxOut{{
			Value:        entry.Value,
			CovenantType: consensus.COV_TYPE_MORTGAGE_COIN,
			CovenantData: entry.CovenantData,
		}},
	}
}

// SignStakeInput signs header's GetHashNoSignData with signer and
// writes the result into stakeTx's sole input's ScriptSig. Callers
// must finalize every other header field first (both contract roots
// included), since the signature commits everything GetHashNoSignData
// returns except Nonce.
func SignStakeInput(stakeTx *consensus.Tx, header consensus.BlockHeader, signer StakeSigner) error {
	hash := sha3.Sum256(consensus.GetHashNoSignData(header))
	sig, err := signer.Sign(hash)
	if err != nil {
		return err
	}
	stakeTx.Inputs[0].ScriptSig = sig
	return nil
}
