package branch

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Per SPEC_FULL.md's storage decision, branch state rides the node's
// existing bbolt handle in its own buckets rather than a second store
// engine: OpenBranchDb takes an already-open *bolt.DB (node/store's DB
// opens it) and only adds what BranchProtocol needs on top.
var (
	bucketKnownBranches = []byte("branch_known")
	bucketBranchBlocks  = []byte("branch_blocks")
	bucketReportFlags   = []byte("report_flags")
	bucketReportTxs     = []byte("report_txs")
)

type BranchDb struct {
	db *bolt.DB
}

func OpenBranchDb(db *bolt.DB) (*BranchDb, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketKnownBranches, bucketBranchBlocks, bucketReportFlags, bucketReportTxs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &BranchDb{db: db}, nil
}

func branchKey(branchID uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, branchID)
	return b
}

func branchBlockKey(branchID uint32, headerHash [32]byte) []byte {
	k := branchKey(branchID)
	return append(k, headerHash[:]...)
}

// RegisterBranch marks branchID known, storing info (typically its
// genesis/anchor commitment) so later sync-branch-info txs against it
// can pass CheckBranchBlockInfoTx's known-branch check.
func (d *BranchDb) RegisterBranch(branchID uint32, info []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKnownBranches).Put(branchKey(branchID), info)
	})
}

func (d *BranchDb) BranchKnown(branchID uint32) (bool, error) {
	var known bool
	err := d.db.View(func(tx *bolt.Tx) error {
		known = tx.Bucket(bucketKnownBranches).Get(branchKey(branchID)) != nil
		return nil
	})
	return known, err
}

// PutBranchBlock records a synced branch header, keyed by (branchID,
// headerHash), so a later duplicate sync-branch-info tx is rejected.
func (d *BranchDb) PutBranchBlock(branchID uint32, headerHash [32]byte, headerBytes []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBranchBlocks).Put(branchBlockKey(branchID, headerHash), headerBytes)
	})
}

func (d *BranchDb) HasBranchBlock(branchID uint32, headerHash [32]byte) (bool, error) {
	var seen bool
	err := d.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(bucketBranchBlocks).Get(branchBlockKey(branchID, headerHash)) != nil
		return nil
	})
	return seen, err
}

func (d *BranchDb) GetBranchBlock(branchID uint32, headerHash [32]byte) ([]byte, bool, error) {
	var out []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBranchBlocks).Get(branchBlockKey(branchID, headerHash))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

// GetReportStatus returns a report_flag_hash's current state, defaulting
// to ReportStatusNone when never seen.
func (d *BranchDb) GetReportStatus(flagHash [32]byte) (ReportStatus, error) {
	var status ReportStatus
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReportFlags).Get(flagHash[:])
		if len(v) == 1 {
			status = ReportStatus(v[0])
		}
		return nil
	})
	return status, err
}

// AdvanceReportStatus moves flagHash's state machine forward
// (NONE -> REPORTED -> PROVED, or directly NONE -> PROVED), per
// spec.md §4.3: "A prove without a prior report is still accepted (it
// simply sets PROVED)." Any other requested transition — including
// re-reporting an already-reported claim, or reporting one already
// proved — is rejected rather than silently accepted or ignored.
func (d *BranchDb) AdvanceReportStatus(flagHash [32]byte, to ReportStatus) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketReportFlags)
		var from ReportStatus
		if v := bucket.Get(flagHash[:]); len(v) == 1 {
			from = ReportStatus(v[0])
		}
		switch {
		case from == ReportStatusNone && to == ReportStatusReported:
		case from == ReportStatusReported && to == ReportStatusProved:
		case from == ReportStatusNone && to == ReportStatusProved:
		default:
			return fmt.Errorf("report flag: invalid transition %d -> %d", from, to)
		}
		return bucket.Put(flagHash[:], []byte{byte(to)})
	})
}

// PutReportTx records an accepted report tx's raw bytes and the height
// it was mined at, keyed by its own tx hash — the same hash a matching
// report-reward tx names as AnchorTxID — so a report-reward tx (which
// arrives long after the report tx has scrolled out of any live
// mempool) can look up the report it is rewarding.
func (d *BranchDb) PutReportTx(reportTxHash [32]byte, height uint64, txBytes []byte) error {
	v := make([]byte, 8+len(txBytes))
	binary.BigEndian.PutUint64(v, height)
	copy(v[8:], txBytes)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReportTxs).Put(reportTxHash[:], v)
	})
}

// GetReportTx returns the report tx bytes and height previously stored
// under reportTxHash by PutReportTx, if any.
func (d *BranchDb) GetReportTx(reportTxHash [32]byte) (txBytes []byte, height uint64, found bool, err error) {
	err = d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReportTxs).Get(reportTxHash[:])
		if v == nil {
			return nil
		}
		if len(v) < 8 {
			return fmt.Errorf("report_txs: corrupt record")
		}
		height = binary.BigEndian.Uint64(v[:8])
		txBytes = append([]byte(nil), v[8:]...)
		found = true
		return nil
	})
	return txBytes, height, found, err
}

func (d *BranchDb) Close() error {
	return d.db.Close()
}
