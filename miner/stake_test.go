package miner

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/sha3"

	"github.com/rubinchain/rubin-node/consensus"
)

type fakeStakeSigner struct {
	lastHash [32]byte
	sig      []byte
	err      error
}

func (f *fakeStakeSigner) Sign(hash [32]byte) ([]byte, error) {
	f.lastHash = hash
	if f.err != nil {
		return nil, f.err
	}
	return f.sig, nil
}

func TestBuildStakeTx_RemintsCoinUnchanged(t *testing.T) {
	coin := consensus.Outpoint{Txid: [32]byte{1}, Vout: 3}
	entry := consensus.UtxoEntry{Value: 1000, CovenantType: consensus.COV_TYPE_MORTGAGE_COIN, CovenantData: []byte("keyid")}

	tx := buildStakeTx(coin, entry)
	if tx.Inputs[0].PrevTxid != coin.Txid || tx.Inputs[0].PrevVout != coin.Vout {
		t.Fatal("stake tx must spend the selected mortgage-coin outpoint")
	}
	if tx.Outputs[0].Value != entry.Value || tx.Outputs[0].CovenantType != consensus.COV_TYPE_MORTGAGE_COIN {
		t.Fatal("stake tx must remint the same value/covenant")
	}
	if !bytes.Equal(tx.Outputs[0].CovenantData, entry.CovenantData) {
		t.Fatal("stake tx must preserve the mortgage-coin's keyid binding")
	}
}

func TestSignStakeInput_SignsGetHashNoSignData(t *testing.T) {
	coin := consensus.Outpoint{Txid: [32]byte{1}}
	entry := consensus.UtxoEntry{Value: 1000, CovenantData: []byte("keyid")}
	tx := buildStakeTx(coin, entry)
	header := consensus.BlockHeader{Version: 1, Timestamp: 123, Nonce: 999}
	signer := &fakeStakeSigner{sig: []byte("sig-bytes")}

	if err := SignStakeInput(tx, header, signer); err != nil {
		t.Fatalf("SignStakeInput: %v", err)
	}
	if !bytes.Equal(tx.Inputs[0].ScriptSig, []byte("sig-bytes")) {
		t.Fatal("expected the signer's signature written into scriptSig")
	}
	wantHash := sha3.Sum256(consensus.GetHashNoSignData(header))
	if signer.lastHash != wantHash {
		t.Fatal("signer must be asked to sign GetHashNoSignData, not the full header (Nonce excluded)")
	}

	// Nonce must not affect what gets signed.
	header2 := header
	header2.Nonce = 1
	signer2 := &fakeStakeSigner{sig: []byte("sig-bytes")}
	if err := SignStakeInput(tx, header2, signer2); err != nil {
		t.Fatalf("SignStakeInput: %v", err)
	}
	if signer2.lastHash != signer.lastHash {
		t.Fatal("Nonce must be excluded from the signed commitment")
	}
}

func TestSignStakeInput_PropagatesSignerError(t *testing.T) {
	tx := buildStakeTx(consensus.Outpoint{}, consensus.UtxoEntry{})
	signer := &fakeStakeSigner{err: errSignFailed}
	if err := SignStakeInput(tx, consensus.BlockHeader{}, signer); err == nil {
		t.Fatal("expected signer error to propagate")
	}
}

var errSignFailed = &signError{"signing failed"}

type signError struct{ msg string }

func (e *signError) Error() string { return e.msg }
