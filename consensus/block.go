package consensus

// BLOCK_HEADER_BYTES is the fixed encoded size of BlockHeader.
const BLOCK_HEADER_BYTES = 4 + 32 + 32 + 32 + 32 + 8 + 32 + 8 + 4

// BlockHeader carries the three Merkle roots a branch/main block commits:
// the ordinary tx-hash root, and the pre/post contract-state roots that let
// a fraud proof pin a stale contract read to a specific block/tx.
type BlockHeader struct {
	Version                    uint32
	PrevHash                   [32]byte
	HashMerkleRoot             [32]byte
	HashMerkleRootWithPrevData [32]byte
	HashMerkleRootWithData     [32]byte
	Timestamp                  uint64
	Target                     [32]byte
	Nonce                      uint64
	BranchID                   uint32
}

// BlockHeaderBytes returns the fixed-size canonical encoding of h. It never
// fails: every field is fixed width.
func BlockHeaderBytes(h BlockHeader) []byte {
	b := make([]byte, 0, BLOCK_HEADER_BYTES)
	b = AppendU32le(b, h.Version)
	b = append(b, h.PrevHash[:]...)
	b = append(b, h.HashMerkleRoot[:]...)
	b = append(b, h.HashMerkleRootWithPrevData[:]...)
	b = append(b, h.HashMerkleRootWithData[:]...)
	b = AppendU64le(b, h.Timestamp)
	b = append(b, h.Target[:]...)
	b = AppendU64le(b, h.Nonce)
	b = AppendU32le(b, h.BranchID)
	return b
}

// ParseBlockHeaderBytes decodes a fixed BLOCK_HEADER_BYTES-length buffer.
func ParseBlockHeaderBytes(b []byte) (*BlockHeader, error) {
	if len(b) != BLOCK_HEADER_BYTES {
		return nil, txerr(BLOCK_ERR_PARSE, "block header length mismatch")
	}
	off := 0
	h := &BlockHeader{}
	var err error
	if h.Version, err = readU32le(b, &off); err != nil {
		return nil, err
	}
	if err := readFixed32(b, &off, &h.PrevHash); err != nil {
		return nil, err
	}
	if err := readFixed32(b, &off, &h.HashMerkleRoot); err != nil {
		return nil, err
	}
	if err := readFixed32(b, &off, &h.HashMerkleRootWithPrevData); err != nil {
		return nil, err
	}
	if err := readFixed32(b, &off, &h.HashMerkleRootWithData); err != nil {
		return nil, err
	}
	if h.Timestamp, err = readU64le(b, &off); err != nil {
		return nil, err
	}
	if err := readFixed32(b, &off, &h.Target); err != nil {
		return nil, err
	}
	if h.Nonce, err = readU64le(b, &off); err != nil {
		return nil, err
	}
	if h.BranchID, err = readU32le(b, &off); err != nil {
		return nil, err
	}
	return h, nil
}

func readFixed32(b []byte, off *int, dst *[32]byte) error {
	v, err := readBytes(b, off, 32)
	if err != nil {
		return err
	}
	copy(dst[:], v)
	return nil
}

// GetHashNoSignData returns the header bytes the miner signs to produce a
// PoS stake signature: everything except Nonce, which is not part of the
// signed commitment on a stake-signed (non-PoW) branch block.
func GetHashNoSignData(h BlockHeader) []byte {
	cp := h
	cp.Nonce = 0
	return BlockHeaderBytes(cp)
}

// ParsedBlock is a fully decoded block: header plus the ordered transaction
// list. vtx[0] is always the coinbase; on a branch chain vtx[1] must be the
// stake transaction (invariant 3).
type ParsedBlock struct {
	Header BlockHeader
	Vtx    []*Tx
}

func ParseBlockBytes(b []byte) (*ParsedBlock, error) {
	if len(b) < BLOCK_HEADER_BYTES {
		return nil, txerr(BLOCK_ERR_PARSE, "block too short for header")
	}
	header, err := ParseBlockHeaderBytes(b[:BLOCK_HEADER_BYTES])
	if err != nil {
		return nil, err
	}
	off := BLOCK_HEADER_BYTES
	rest := b
	n, _, err := readCompactSize(rest, &off)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, txerr(BLOCK_ERR_PARSE, "block has no transactions")
	}
	vtx := make([]*Tx, n)
	for i := range vtx {
		txLen, _, err := readCompactSize(rest, &off)
		if err != nil {
			return nil, err
		}
		if txLen > MAX_DATA_LEN {
			return nil, txerr(BLOCK_ERR_WEIGHT_EXCEEDED, "encoded tx exceeds size cap")
		}
		txBytes, err := readBytes(rest, &off, int(txLen))
		if err != nil {
			return nil, err
		}
		tx, err := ParseTx(txBytes)
		if err != nil {
			return nil, err
		}
		vtx[i] = tx
	}
	if off != len(rest) {
		return nil, txerr(BLOCK_ERR_PARSE, "trailing bytes after block")
	}
	if len(vtx) > 0 && vtx[0].Type != TX_TYPE_COINBASE {
		return nil, txerr(BLOCK_ERR_LINKAGE_INVALID, "vtx[0] must be coinbase")
	}
	return &ParsedBlock{Header: *header, Vtx: vtx}, nil
}

// BlockBytes re-encodes a parsed block to its canonical wire form.
func BlockBytes(blk *ParsedBlock) ([]byte, error) {
	b := BlockHeaderBytes(blk.Header)
	b = AppendCompactSize(b, uint64(len(blk.Vtx)))
	for _, tx := range blk.Vtx {
		txBytes, err := tx.Marshal()
		if err != nil {
			return nil, err
		}
		b = AppendCompactSize(b, uint64(len(txBytes)))
		b = append(b, txBytes...)
	}
	return b, nil
}

// txContextLeaves builds the ordered leaf preimages for the pre/post
// contract-state roots: H(tx_hash ‖ contract_data), one per tx, in block
// order, per invariant 2. contextByTx supplies the per-tx opaque data (may
// be nil/empty for non-contract txs, which still contribute a leaf keyed
// only by tx_hash so all three roots commit the same leaf order).
func txContextLeaves(vtx []*Tx, contextByTx [][]byte) ([][32]byte, error) {
	if len(contextByTx) != len(vtx) {
		return nil, txerr(BLOCK_ERR_MERKLE_INVALID, "context slice length mismatch")
	}
	txids := make([][32]byte, len(vtx))
	for i, tx := range vtx {
		h, err := tx.TxHash()
		if err != nil {
			return nil, err
		}
		txids[i] = h
	}
	leaves := make([][32]byte, len(vtx))
	for i, txid := range txids {
		leaves[i] = sha3_256(append(append([]byte(nil), txid[:]...), contextByTx[i]...))
	}
	return leaves, nil
}

// HashMerkleRoot computes the ordinary tx-hash Merkle root of a block.
func HashMerkleRoot(vtx []*Tx) ([32]byte, error) {
	txids := make([][32]byte, len(vtx))
	for i, tx := range vtx {
		h, err := tx.TxHash()
		if err != nil {
			return [32]byte{}, err
		}
		txids[i] = h
	}
	return MerkleRootTxids(txids)
}

// HashMerkleRootWithPrevData computes the pre-state contract root: leaves
// are H(tx_hash ‖ prev_contract_data), same leaf order as HashMerkleRoot.
func HashMerkleRootWithPrevData(vtx []*Tx, prevDataByTx [][]byte) ([32]byte, error) {
	leaves, err := txContextLeaves(vtx, prevDataByTx)
	if err != nil {
		return [32]byte{}, err
	}
	return MerkleRootTxids(leaves)
}

// HashMerkleRootWithData computes the post-state contract root: leaves are
// H(tx_hash ‖ post_contract_data), same leaf order as HashMerkleRoot.
func HashMerkleRootWithData(vtx []*Tx, postDataByTx [][]byte) ([32]byte, error) {
	leaves, err := txContextLeaves(vtx, postDataByTx)
	if err != nil {
		return [32]byte{}, err
	}
	return MerkleRootTxids(leaves)
}
