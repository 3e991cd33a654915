package store

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/crypto"
)

func hasErrCode(err error, code consensus.ErrorCode) bool {
	return err != nil && strings.HasPrefix(err.Error(), string(code))
}

func makeTestCoinbaseTx(height uint64) *consensus.Tx {
	return &consensus.Tx{
		Version:  1,
		Type:     consensus.TX_TYPE_COINBASE,
		Outputs:  []consensus.TxOut{{Value: 0, CovenantType: consensus.COV_TYPE_P2PK, CovenantData: make([]byte, 33)}},
		LockTime: uint32(height),
	}
}

func makeTestBlockBytes(p crypto.CryptoProvider, height uint64, prevHash [32]byte, ts uint64, target [32]byte, merkleOverride *[32]byte) ([]byte, consensus.BlockHeader, [32]byte, error) {
	cb := makeTestCoinbaseTx(height)
	vtx := []*consensus.Tx{cb}

	merkle, err := consensus.HashMerkleRoot(vtx)
	if err != nil {
		return nil, consensus.BlockHeader{}, [32]byte{}, err
	}
	if merkleOverride != nil {
		merkle = *merkleOverride
	}

	h := consensus.BlockHeader{
		Version:        1,
		PrevHash:       prevHash,
		HashMerkleRoot: merkle,
		Timestamp:      ts,
		Target:         target,
		Nonce:          1,
	}
	b, err := consensus.BlockBytes(&consensus.ParsedBlock{Header: h, Vtx: vtx})
	if err != nil {
		return nil, consensus.BlockHeader{}, [32]byte{}, err
	}
	bh, err := consensus.BlockHeaderHash(p, h)
	if err != nil {
		return nil, consensus.BlockHeader{}, [32]byte{}, err
	}
	return b, h, bh, nil
}

func mustBig(t *testing.T, x *big.Int, err error) *big.Int {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return x
}

func TestImportStage0To3_Stage1_InvalidHeader_MarksIndex(t *testing.T) {
	p := crypto.DevStdCryptoProvider{}

	chainID := [32]byte{0x01}
	db, err := Open(t.TempDir(), hex.EncodeToString(chainID[:]))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var maxTarget [32]byte
	for i := range maxTarget {
		maxTarget[i] = 0xff
	}
	genesisBytes, genesisHeader, genesisHash, err := makeTestBlockBytes(p, 0, [32]byte{}, 1, maxTarget, nil)
	if err != nil {
		t.Fatalf("make genesis: %v", err)
	}
	if err := db.InitGenesis(p, chainID, genesisBytes); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}

	t.Run("merkle invalid => INVALID_HEADER", func(t *testing.T) {
		badMerkle := genesisHeader.HashMerkleRoot
		badMerkle[0] ^= 0x01

		blockBytes, header, blockHash, err := makeTestBlockBytes(p, 1, genesisHash, 2, maxTarget, &badMerkle)
		if err != nil {
			t.Fatalf("make block: %v", err)
		}

		_, err = db.ImportStage0To3(p, blockBytes, Stage03Options{})
		if !hasErrCode(err, consensus.BLOCK_ERR_MERKLE_INVALID) {
			t.Fatalf("expected %s, got %v (header=%x)", consensus.BLOCK_ERR_MERKLE_INVALID, err, consensus.BlockHeaderBytes(header))
		}

		idx, ok, err := db.GetIndex(blockHash)
		if err != nil || !ok || idx == nil {
			t.Fatalf("GetIndex: ok=%v err=%v", ok, err)
		}
		if idx.Status != BlockStatusInvalidHeader {
			t.Fatalf("expected status INVALID_HEADER (%d), got %d", BlockStatusInvalidHeader, idx.Status)
		}
	})

	t.Run("target invalid => INVALID_HEADER", func(t *testing.T) {
		var wrongTarget [32]byte
		binary.LittleEndian.PutUint64(wrongTarget[0:8], 1) // deterministic but != maxTarget

		blockBytes, _, blockHash, err := makeTestBlockBytes(p, 1, genesisHash, 2, wrongTarget, nil)
		if err != nil {
			t.Fatalf("make block: %v", err)
		}
		_, err = db.ImportStage0To3(p, blockBytes, Stage03Options{})
		if !hasErrCode(err, consensus.BLOCK_ERR_TARGET_INVALID) {
			t.Fatalf("expected %s, got %v", consensus.BLOCK_ERR_TARGET_INVALID, err)
		}
		idx, ok, err := db.GetIndex(blockHash)
		if err != nil || !ok || idx == nil {
			t.Fatalf("GetIndex: ok=%v err=%v", ok, err)
		}
		if idx.Status != BlockStatusInvalidHeader {
			t.Fatalf("expected status INVALID_HEADER (%d), got %d", BlockStatusInvalidHeader, idx.Status)
		}
	})

	t.Run("timestamp old => INVALID_HEADER", func(t *testing.T) {
		blockBytes, _, blockHash, err := makeTestBlockBytes(p, 1, genesisHash, 1, maxTarget, nil)
		if err != nil {
			t.Fatalf("make block: %v", err)
		}
		_, err = db.ImportStage0To3(p, blockBytes, Stage03Options{})
		if !hasErrCode(err, consensus.BLOCK_ERR_TIMESTAMP_OLD) {
			t.Fatalf("expected %s, got %v", consensus.BLOCK_ERR_TIMESTAMP_OLD, err)
		}
		idx, ok, err := db.GetIndex(blockHash)
		if err != nil || !ok || idx == nil {
			t.Fatalf("GetIndex: ok=%v err=%v", ok, err)
		}
		if idx.Status != BlockStatusInvalidHeader {
			t.Fatalf("expected status INVALID_HEADER (%d), got %d", BlockStatusInvalidHeader, idx.Status)
		}
	})

	t.Run("timestamp future (local_time) => INVALID_HEADER", func(t *testing.T) {
		localTime := uint64(10)
		ts := localTime + consensus.MAX_FUTURE_DRIFT + 1

		blockBytes, _, blockHash, err := makeTestBlockBytes(p, 1, genesisHash, ts, maxTarget, nil)
		if err != nil {
			t.Fatalf("make block: %v", err)
		}
		_, err = db.ImportStage0To3(p, blockBytes, Stage03Options{LocalTime: localTime, LocalTimeSet: true})
		if !hasErrCode(err, consensus.BLOCK_ERR_TIMESTAMP_FUTURE) {
			t.Fatalf("expected %s, got %v", consensus.BLOCK_ERR_TIMESTAMP_FUTURE, err)
		}
		idx, ok, err := db.GetIndex(blockHash)
		if err != nil || !ok || idx == nil {
			t.Fatalf("GetIndex: ok=%v err=%v", ok, err)
		}
		if idx.Status != BlockStatusInvalidHeader {
			t.Fatalf("expected status INVALID_HEADER (%d), got %d", BlockStatusInvalidHeader, idx.Status)
		}
	})

	t.Run("valid header produces non-invalid index", func(t *testing.T) {
		blockBytes, _, blockHash, err := makeTestBlockBytes(p, 1, genesisHash, 2, maxTarget, nil)
		if err != nil {
			t.Fatalf("make block: %v", err)
		}
		res, err := db.ImportStage0To3(p, blockBytes, Stage03Options{})
		if err != nil {
			t.Fatalf("expected ok, got %v", err)
		}
		if res == nil {
			t.Fatalf("expected result")
		}
		idx, ok, err := db.GetIndex(blockHash)
		if err != nil || !ok || idx == nil {
			t.Fatalf("GetIndex: ok=%v err=%v", ok, err)
		}
		if idx.Status.IsInvalid() {
			t.Fatalf("expected non-invalid status, got %d", idx.Status)
		}
		if idx.CumulativeWork == nil || idx.CumulativeWork.Sign() < 0 {
			t.Fatalf("expected non-negative cumulative work")
		}
		w, err := WorkFromTarget(maxTarget)
		_ = mustBig(t, w, err)
	})
}
