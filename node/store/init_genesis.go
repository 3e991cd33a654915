package store

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/crypto"

	bolt "go.etcd.io/bbolt"
)

// InitGenesis initializes an empty chain DB by applying the genesis block and writing
// all required persistence entities (utxo/index/undo/manifest).
//
// Caller MUST ensure genesisBlockBytes and chainID correspond to the same chain-instance profile.
func (d *DB) InitGenesis(p crypto.CryptoProvider, chainID [32]byte, genesisBlockBytes []byte) error {
	if d == nil {
		return fmt.Errorf("db: nil")
	}
	if p == nil {
		return fmt.Errorf("crypto provider required")
	}
	if d.manifest != nil {
		return fmt.Errorf("chain already initialized (manifest exists)")
	}
	if len(genesisBlockBytes) == 0 {
		return fmt.Errorf("genesis block bytes required")
	}

	block, err := consensus.ParseBlockBytes(genesisBlockBytes)
	if err != nil {
		return err
	}
	headerHash, err := consensus.BlockHeaderHash(p, block.Header)
	if err != nil {
		return err
	}
	work, err := WorkFromTarget(block.Header.Target)
	if err != nil {
		return err
	}

	if err := ValidateBlockHeaderStage1(p, block, consensus.BlockValidationContext{Height: 0}); err != nil {
		return err
	}

	utxo := make(map[consensus.Outpoint]consensus.UtxoEntry)
	if _, err := ApplyBlock(p, chainID, block, utxo, consensus.BlockValidationContext{Height: 0}, ApplyDeps{}); err != nil {
		return err
	}

	undo, created, err := computeUndoForBlock(block, nil)
	if err != nil {
		return err
	}
	undo.Created = created

	index := BlockIndexEntry{
		Height:         0,
		PrevHash:       [32]byte{},
		CumulativeWork: new(big.Int).Set(work),
		Status:         BlockStatusValid,
	}

	chainIDHex := hex.EncodeToString(chainID[:])
	m := &Manifest{
		SchemaVersion: SchemaVersionV1,
		ChainIDHex:    chainIDHex,

		TipHashHex:           hex32(headerHash),
		TipHeight:            0,
		TipCumulativeWorkDec: work.Text(10),

		LastAppliedBlockHashHex: hex32(headerHash),
		LastAppliedHeight:       0,
	}

	headerBytes := consensus.BlockHeaderBytes(block.Header)

	// Deterministic iteration for persistence (stable ordering).
	type kv struct {
		k consensus.Outpoint
		v consensus.UtxoEntry
	}
	items := make([]kv, 0, len(utxo))
	for k, v := range utxo {
		items = append(items, kv{k: k, v: v})
	}
	sort.Slice(items, func(i, j int) bool {
		ki := encodeOutpointKey(items[i].k)
		kj := encodeOutpointKey(items[j].k)
		return bytes.Compare(ki, kj) < 0
	})

	undoBytes, err := encodeUndoRecord(undo)
	if err != nil {
		return err
	}
	indexBytes, err := encodeIndexEntry(index)
	if err != nil {
		return err
	}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketHeaders).Put(headerHash[:], headerBytes); err != nil {
			return err
		}
		if err := tx.Bucket(bucketBlocks).Put(headerHash[:], genesisBlockBytes); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIndex).Put(headerHash[:], indexBytes); err != nil {
			return err
		}
		if err := tx.Bucket(bucketUndo).Put(headerHash[:], undoBytes); err != nil {
			return err
		}
		bu := tx.Bucket(bucketUtxo)
		for _, it := range items {
			val, err := encodeUtxoEntry(it.v)
			if err != nil {
				return err
			}
			if err := bu.Put(encodeOutpointKey(it.k), val); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return d.SetManifest(m)
}

// computeUndoForBlock derives the undo record for block: which spent
// UTXOs must be restored and which outpoints it created (so a reorg
// can delete them), given utxo as the pre-block UTXO set. utxo may be
// nil only for genesis, which has no inputs to restore.
func computeUndoForBlock(
	block *consensus.ParsedBlock,
	utxo map[consensus.Outpoint]consensus.UtxoEntry,
) (UndoRecord, []consensus.Outpoint, error) {
	if block == nil {
		return UndoRecord{}, nil, fmt.Errorf("block nil")
	}
	undo := UndoRecord{}
	created := make([]consensus.Outpoint, 0, 16)

	for txi, tx := range block.Vtx {
		isCoinbase := txi == 0

		if !isCoinbase {
			for _, in := range tx.Inputs {
				op := consensus.Outpoint{Txid: in.PrevTxid, Vout: in.PrevVout}
				if utxo == nil {
					return UndoRecord{}, nil, fmt.Errorf("undo: missing utxo map for non-coinbase")
				}
				prev, ok := utxo[op]
				if !ok {
					return UndoRecord{}, nil, fmt.Errorf("undo: missing utxo %x:%d", op.Txid, op.Vout)
				}
				undo.Spent = append(undo.Spent, UndoSpent{OutPoint: op, RestoredEntry: prev})
			}
		}

		txid, err := tx.TxHash()
		if err != nil {
			return UndoRecord{}, nil, err
		}
		for vout := range tx.Outputs {
			created = append(created, consensus.Outpoint{Txid: txid, Vout: uint32(vout)})
		}
	}
	return undo, created, nil
}

