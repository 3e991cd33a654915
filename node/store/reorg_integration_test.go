package store

import (
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/crypto"
)

func maxTargetForTest() [32]byte {
	var t [32]byte
	for i := range t {
		t[i] = 0xff
	}
	return t
}

func makeCoinbaseOnlyBlockBytes(t *testing.T, p crypto.CryptoProvider, height uint64, prev [32]byte, ts uint64) ([]byte, consensus.ParsedBlock) {
	t.Helper()

	cb := &consensus.Tx{
		Version:  1,
		Type:     consensus.TX_TYPE_COINBASE,
		Outputs: []consensus.TxOut{{
			Value:        0,
			CovenantType: consensus.COV_TYPE_P2PK,
			CovenantData: make([]byte, 33),
		}},
		LockTime: uint32(height), // coinbase rule: locktime MUST equal block height
	}

	vtx := []*consensus.Tx{cb}
	merkle, err := consensus.HashMerkleRoot(vtx)
	if err != nil {
		t.Fatalf("HashMerkleRoot: %v", err)
	}

	hdr := consensus.BlockHeader{
		Version:        1,
		PrevHash:       prev,
		HashMerkleRoot: merkle,
		Timestamp:      ts,
		Target:         maxTargetForTest(),
		Nonce:          0,
	}

	blk := consensus.ParsedBlock{Header: hdr, Vtx: vtx}
	b, err := consensus.BlockBytes(&blk)
	if err != nil {
		t.Fatalf("BlockBytes: %v", err)
	}
	return b, blk
}

func TestReorgToTip_Integration(t *testing.T) {
	p := crypto.DevStdCryptoProvider{}
	var chainID [32]byte
	chainID[0] = 1

	// Build a self-contained genesis block (no profile dependency).
	genBytes, genBlock := makeCoinbaseOnlyBlockBytes(t, p, 0, [32]byte{}, 1)

	db, err := Open(t.TempDir(), "00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00"+"00")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitGenesis(p, chainID, genBytes); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	genHash, err := consensus.BlockHeaderHash(p, genBlock.Header)
	if err != nil {
		t.Fatalf("genesis hash: %v", err)
	}

	// Main chain: G -> B1 -> B2
	b1Bytes, b1 := makeCoinbaseOnlyBlockBytes(t, p, 1, genHash, 2)
	dec, err := db.ApplyBlockIfBestTip(p, chainID, b1Bytes, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply b1: %v", err)
	}
	if dec != ApplyAppliedAsTip {
		t.Fatalf("unexpected decision for b1: %s", dec)
	}
	b1Hash, _ := consensus.BlockHeaderHash(p, b1.Header)

	b2Bytes, b2 := makeCoinbaseOnlyBlockBytes(t, p, 2, b1Hash, 3)
	dec, err = db.ApplyBlockIfBestTip(p, chainID, b2Bytes, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply b2: %v", err)
	}
	if dec != ApplyAppliedAsTip {
		t.Fatalf("unexpected decision for b2: %s", dec)
	}
	_ = b2 // ensure parsed path compiled

	// Fork chain from B1: F2 -> F3 (longer => higher cumulative work).
	f2Bytes, f2 := makeCoinbaseOnlyBlockBytes(t, p, 2, b1Hash, 4)
	_, _ = db.ApplyBlockIfBestTip(p, chainID, f2Bytes, ApplyOptions{}) // may or may not trigger reorg; either is fine
	f2Hash, _ := consensus.BlockHeaderHash(p, f2.Header)

	f3Bytes, f3 := makeCoinbaseOnlyBlockBytes(t, p, 3, f2Hash, 5)
	dec, err = db.ApplyBlockIfBestTip(p, chainID, f3Bytes, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply f3: %v", err)
	}
	if dec != ApplyAppliedAsTip {
		t.Fatalf("unexpected decision for f3: %s", dec)
	}

	// Tip should now be f3 (either by reorg or linear extension).
	f3Hash, _ := consensus.BlockHeaderHash(p, f3.Header)
	m := db.Manifest()
	if m == nil || m.TipHashHex == "" {
		t.Fatalf("expected manifest to be set")
	}
	if len(m.TipHashHex) != 64 {
		t.Fatalf("unexpected tip hash hex length: %d", len(m.TipHashHex))
	}
	if m.TipHashHex != hex32(f3Hash) {
		t.Fatalf("expected tip f3 %s, got %s", hex32(f3Hash), m.TipHashHex)
	}
}
