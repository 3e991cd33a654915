package store

import (
	"fmt"

	"github.com/rubinchain/rubin-node/consensus"

	bolt "go.etcd.io/bbolt"
)

func parseBlockHeaderBytesStrict(b []byte) (consensus.BlockHeader, error) {
	h, err := consensus.ParseBlockHeaderBytes(b)
	if err != nil {
		return consensus.BlockHeader{}, fmt.Errorf("block-header-bytes: %w", err)
	}
	return *h, nil
}

func (d *DB) GetHeader(hash [32]byte) (*consensus.BlockHeader, bool, error) {
	var out *consensus.BlockHeader
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeaders).Get(hash[:])
		if v == nil {
			return nil
		}
		h, err := parseBlockHeaderBytesStrict(v)
		if err != nil {
			return err
		}
		out = &h
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

func (d *DB) LoadUTXOSet() (map[consensus.Outpoint]consensus.UtxoEntry, error) {
	utxo := make(map[consensus.Outpoint]consensus.UtxoEntry)
	err := d.db.View(func(tx *bolt.Tx) error {
		bu := tx.Bucket(bucketUtxo)
		return bu.ForEach(func(k, v []byte) error {
			p, err := decodeOutpointKey(k)
			if err != nil {
				return err
			}
			e, err := decodeUtxoEntry(v)
			if err != nil {
				return err
			}
			utxo[p] = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return utxo, nil
}
