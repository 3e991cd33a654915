package consensus

// TxType discriminates the base transaction shape from its branch/contract
// extensions. The legacy vin/vout section is identical across every type;
// type-specific fields are appended after it using the discriminator below,
// bit-exact, because hashMerkleRoot and friends commit the encoded bytes.
type TxType uint8

const (
	TX_TYPE_NORMAL TxType = iota
	TX_TYPE_COINBASE
	TX_TYPE_CREATE_BRANCH
	TX_TYPE_TRANS_STEP1
	TX_TYPE_TRANS_STEP2
	TX_TYPE_SYNC_BRANCH_INFO
	TX_TYPE_MORTGAGE
	TX_TYPE_REDEEM_MORTGAGE_STATEMENT
	TX_TYPE_REPORT
	TX_TYPE_PROVE
	TX_TYPE_REPORT_REWARD
	TX_TYPE_LOCK_MINE_COIN
	TX_TYPE_UNLOCK_MINE_COIN
	TX_TYPE_PUBLISH_CONTRACT
	TX_TYPE_CALL_CONTRACT
)

func (t TxType) valid() bool { return t <= TX_TYPE_CALL_CONTRACT }

type TxIn struct {
	PrevTxid  [32]byte
	PrevVout  uint32
	ScriptSig []byte
	Sequence  uint32
	Witness   [][]byte
}

type TxOut struct {
	Value        uint64
	CovenantType uint16
	CovenantData []byte
}

// ReportType distinguishes what a report/prove tx is making a claim about.
type ReportType uint8

const (
	REPORT_TYPE_TX ReportType = iota
	REPORT_TYPE_COINBASE
	REPORT_TYPE_MERKLETREE
	REPORT_TYPE_CONTRACT_DATA
)

func (t ReportType) valid() bool { return t <= REPORT_TYPE_CONTRACT_DATA }

// BranchBlockInfo is the compact header+height+stake payload carried by a
// sync-branch-info transaction from a branch chain up to MAIN.
type BranchBlockInfo struct {
	Header      BlockHeader
	Height      uint64
	BranchID    uint32
	StakeTxData []byte
}

// ProveItem is one (tx_bytes, spv_proof) pair inside a prove transaction's
// prove_data vector: one per input being proven, plus, for a MERKLETREE
// prove, the coinbase and every other block tx in order.
type ProveItem struct {
	TxBytes  []byte
	SpvProof []byte
}

// Tx is the base transaction plus every type's optional extension fields.
// Only the fields relevant to tx.Type are populated; encoding/decoding is
// driven entirely by the discriminator so unused fields never touch the
// wire.
type Tx struct {
	Version  uint32
	Type     TxType
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32

	// trans-step1
	DestBranchID uint32
	SendToTxHash [32]byte // hash of the revert-transform of the expected step2

	// trans-step2
	FromBranchID uint32
	FromTxHash   [32]byte
	InAmount     uint64
	SpvProof     []byte // required when FromBranchID != MAIN_BRANCH_ID

	// create-branch / sync-branch-info
	BranchID   uint32
	BranchInfo BranchBlockInfo

	// report / prove (report is a subset of prove's fields)
	ReportType         ReportType
	ReportedBranchID   uint32
	ReportedBlockHash  [32]byte
	ReportedTxHash     [32]byte
	PartialMerkleTree  []byte
	ContractDataReport ContractDataReport
	ProveData          []ProveItem

	// lock-mine-coin / unlock-mine-coin
	AnchorTxID     [32]byte // report_tx_id or prove_tx_id
	CoinPreoutHash [32]byte

	// publish-contract / call-contract
	ContractAddr [20]byte
	ContractCode []byte
	ContractFn   string
	ContractArgs []byte
}

// ContractDataReport is the CONTRACT_DATA report payload: a claim that a tx
// read contract c stale, i.e. read from an earlier commit than the branch's
// mainline actually held at read time. ProveBlockHash/ProveTxIndex name the
// newer write this claim rests on — a location distinct from both the
// original read (ReadBlockHash/ReadTxIndex) and the accused tx's own
// position (ReportedTxIndex).
type ContractDataReport struct {
	ContractAddr    [20]byte
	ReadBlockHash   [32]byte
	ReadTxIndex     uint32
	ReportedTxIndex uint32
	ProveBlockHash  [32]byte
	ProveTxIndex    uint32
}

// TxHash returns the consensus-critical hash of the encoded transaction. It
// is the leaf value hashMerkleRoot commits, per invariant: every
// consensus-relevant field is covered by this hash.
func (tx *Tx) TxHash() ([32]byte, error) {
	b, err := tx.Marshal()
	if err != nil {
		return [32]byte{}, err
	}
	return sha3_256(b), nil
}

func (tx *Tx) Marshal() ([]byte, error) {
	if !tx.Type.valid() {
		return nil, txerr(TX_ERR_PARSE, "unknown tx_type")
	}
	if len(tx.Inputs) > MAX_TX_INPUTS {
		return nil, txerr(TX_ERR_PARSE, "too many inputs")
	}
	if len(tx.Outputs) > MAX_TX_OUTPUTS {
		return nil, txerr(TX_ERR_PARSE, "too many outputs")
	}

	var b []byte
	b = AppendU32le(b, tx.Version)
	b = append(b, byte(tx.Type))

	b = AppendCompactSize(b, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		b = append(b, in.PrevTxid[:]...)
		b = AppendU32le(b, in.PrevVout)
		if len(in.ScriptSig) > MAX_SCRIPT_SIG_BYTES {
			return nil, txerr(TX_ERR_PARSE, "scriptSig too long")
		}
		b = AppendCompactSize(b, uint64(len(in.ScriptSig)))
		b = append(b, in.ScriptSig...)
		b = AppendU32le(b, in.Sequence)
		if len(in.Witness) > MAX_WITNESS_ITEMS {
			return nil, txerr(TX_ERR_WITNESS_OVERFLOW, "too many witness items")
		}
		b = AppendCompactSize(b, uint64(len(in.Witness)))
		for _, w := range in.Witness {
			b = AppendCompactSize(b, uint64(len(w)))
			b = append(b, w...)
		}
	}

	b = AppendCompactSize(b, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		b = AppendU64le(b, out.Value)
		b = AppendU16le(b, out.CovenantType)
		if len(out.CovenantData) > MAX_DATA_LEN {
			return nil, txerr(TX_ERR_PARSE, "covenant_data too long")
		}
		b = AppendCompactSize(b, uint64(len(out.CovenantData)))
		b = append(b, out.CovenantData...)
	}

	b = AppendU32le(b, tx.LockTime)

	var err error
	b, err = tx.marshalExtension(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (tx *Tx) marshalExtension(b []byte) ([]byte, error) {
	switch tx.Type {
	case TX_TYPE_NORMAL, TX_TYPE_COINBASE:
		return b, nil

	case TX_TYPE_TRANS_STEP1:
		b = AppendU32le(b, tx.DestBranchID)
		b = append(b, tx.SendToTxHash[:]...)
		return b, nil

	case TX_TYPE_TRANS_STEP2:
		b = AppendU32le(b, tx.FromBranchID)
		b = append(b, tx.FromTxHash[:]...)
		b = AppendU64le(b, tx.InAmount)
		if tx.FromBranchID != MAIN_BRANCH_ID && len(tx.SpvProof) == 0 {
			return nil, txerr(TX_ERR_PARSE, "trans-step2 from a branch requires spv_proof")
		}
		if len(tx.SpvProof) > MAX_DATA_LEN {
			return nil, txerr(TX_ERR_PARSE, "spv_proof too long")
		}
		b = AppendCompactSize(b, uint64(len(tx.SpvProof)))
		b = append(b, tx.SpvProof...)
		return b, nil

	case TX_TYPE_CREATE_BRANCH:
		b = AppendU32le(b, tx.BranchID)
		return b, nil

	case TX_TYPE_SYNC_BRANCH_INFO:
		hdrBytes := BlockHeaderBytes(tx.BranchInfo.Header)
		b = append(b, hdrBytes...)
		b = AppendU64le(b, tx.BranchInfo.Height)
		b = AppendU32le(b, tx.BranchInfo.BranchID)
		if len(tx.BranchInfo.StakeTxData) > MAX_DATA_LEN {
			return nil, txerr(TX_ERR_PARSE, "stake_tx_data too long")
		}
		b = AppendCompactSize(b, uint64(len(tx.BranchInfo.StakeTxData)))
		b = append(b, tx.BranchInfo.StakeTxData...)
		return b, nil

	case TX_TYPE_MORTGAGE, TX_TYPE_REDEEM_MORTGAGE_STATEMENT:
		return b, nil

	case TX_TYPE_REPORT:
		return tx.marshalReportCommon(b)

	case TX_TYPE_PROVE:
		var err error
		b, err = tx.marshalReportCommon(b)
		if err != nil {
			return nil, err
		}
		b = AppendCompactSize(b, uint64(len(tx.ProveData)))
		for _, item := range tx.ProveData {
			if len(item.TxBytes) > MAX_DATA_LEN || len(item.SpvProof) > MAX_DATA_LEN {
				return nil, txerr(TX_ERR_PARSE, "prove_data item too long")
			}
			b = AppendCompactSize(b, uint64(len(item.TxBytes)))
			b = append(b, item.TxBytes...)
			b = AppendCompactSize(b, uint64(len(item.SpvProof)))
			b = append(b, item.SpvProof...)
		}
		return b, nil

	case TX_TYPE_REPORT_REWARD:
		b = append(b, tx.AnchorTxID[:]...)
		return b, nil

	case TX_TYPE_LOCK_MINE_COIN, TX_TYPE_UNLOCK_MINE_COIN:
		b = append(b, tx.AnchorTxID[:]...)
		b = append(b, tx.CoinPreoutHash[:]...)
		return b, nil

	case TX_TYPE_PUBLISH_CONTRACT:
		if len(tx.ContractCode) > MAX_CONTRACT_FILE_LEN {
			return nil, txerr(TX_ERR_CONTRACT_INVALID, "contract code exceeds MAX_CONTRACT_FILE_LEN")
		}
		b = append(b, tx.ContractAddr[:]...)
		b = AppendCompactSize(b, uint64(len(tx.ContractCode)))
		b = append(b, tx.ContractCode...)
		return b, nil

	case TX_TYPE_CALL_CONTRACT:
		b = append(b, tx.ContractAddr[:]...)
		fn := []byte(tx.ContractFn)
		b = AppendCompactSize(b, uint64(len(fn)))
		b = append(b, fn...)
		if len(tx.ContractArgs) > MAX_DATA_LEN {
			return nil, txerr(TX_ERR_CONTRACT_INVALID, "contract args exceed MAX_DATA_LEN")
		}
		b = AppendCompactSize(b, uint64(len(tx.ContractArgs)))
		b = append(b, tx.ContractArgs...)
		return b, nil

	default:
		return nil, txerr(TX_ERR_PARSE, "unknown tx_type")
	}
}

func (tx *Tx) marshalReportCommon(b []byte) ([]byte, error) {
	if !tx.ReportType.valid() {
		return nil, txerr(TX_ERR_PARSE, "unknown report_type")
	}
	b = append(b, byte(tx.ReportType))
	b = AppendU32le(b, tx.ReportedBranchID)
	b = append(b, tx.ReportedBlockHash[:]...)
	b = append(b, tx.ReportedTxHash[:]...)
	if len(tx.PartialMerkleTree) > MAX_DATA_LEN {
		return nil, txerr(TX_ERR_PARSE, "partial_merkle_tree too long")
	}
	b = AppendCompactSize(b, uint64(len(tx.PartialMerkleTree)))
	b = append(b, tx.PartialMerkleTree...)
	if tx.ReportType == REPORT_TYPE_CONTRACT_DATA {
		b = append(b, tx.ContractDataReport.ContractAddr[:]...)
		b = append(b, tx.ContractDataReport.ReadBlockHash[:]...)
		b = AppendU32le(b, tx.ContractDataReport.ReadTxIndex)
		b = AppendU32le(b, tx.ContractDataReport.ReportedTxIndex)
		b = append(b, tx.ContractDataReport.ProveBlockHash[:]...)
		b = AppendU32le(b, tx.ContractDataReport.ProveTxIndex)
	}
	return b, nil
}

// ParseTx decodes a Tx from its canonical wire encoding, requiring b to
// hold exactly one transaction with no trailing bytes.
func ParseTx(b []byte) (*Tx, error) {
	tx, used, err := parseTxPrefix(b)
	if err != nil {
		return nil, err
	}
	if used != len(b) {
		return nil, txerr(TX_ERR_PARSE, "trailing bytes after tx")
	}
	return tx, nil
}

// ParseTxBytes is an alias for ParseTx, named for symmetry with
// consensus.ParseBlockBytes: it decodes exactly one transaction with no
// trailing bytes.
func ParseTxBytes(b []byte) (*Tx, error) {
	return ParseTx(b)
}

// ParseTxBytesPrefix decodes one transaction from the front of b and
// reports how many bytes it consumed, for callers that hold a stream of
// concatenated transactions (p2p compact-block prefilled/blocktxn
// payloads) rather than a single self-contained buffer.
func ParseTxBytesPrefix(b []byte) (*Tx, int, error) {
	return parseTxPrefix(b)
}

func parseTxPrefix(b []byte) (*Tx, int, error) {
	off := 0
	tx := &Tx{}

	v, err := readU32le(b, &off)
	if err != nil {
		return nil, 0, err
	}
	tx.Version = v

	typByte, err := readU8(b, &off)
	if err != nil {
		return nil, 0, err
	}
	tx.Type = TxType(typByte)
	if !tx.Type.valid() {
		return nil, 0, txerr(TX_ERR_PARSE, "unknown tx_type")
	}

	nIn, _, err := readCompactSize(b, &off)
	if err != nil {
		return nil, 0, err
	}
	if nIn > MAX_TX_INPUTS {
		return nil, 0, txerr(TX_ERR_PARSE, "too many inputs")
	}
	tx.Inputs = make([]TxIn, nIn)
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		txid, err := readBytes(b, &off, 32)
		if err != nil {
			return nil, 0, err
		}
		copy(in.PrevTxid[:], txid)
		if in.PrevVout, err = readU32le(b, &off); err != nil {
			return nil, 0, err
		}
		ssLen, _, err := readCompactSize(b, &off)
		if err != nil {
			return nil, 0, err
		}
		if ssLen > MAX_SCRIPT_SIG_BYTES {
			return nil, 0, txerr(TX_ERR_PARSE, "scriptSig too long")
		}
		ss, err := readBytes(b, &off, int(ssLen))
		if err != nil {
			return nil, 0, err
		}
		in.ScriptSig = append([]byte(nil), ss...)
		if in.Sequence, err = readU32le(b, &off); err != nil {
			return nil, 0, err
		}
		nWit, _, err := readCompactSize(b, &off)
		if err != nil {
			return nil, 0, err
		}
		if nWit > MAX_WITNESS_ITEMS {
			return nil, 0, txerr(TX_ERR_WITNESS_OVERFLOW, "too many witness items")
		}
		in.Witness = make([][]byte, nWit)
		for j := range in.Witness {
			wLen, _, err := readCompactSize(b, &off)
			if err != nil {
				return nil, 0, err
			}
			if wLen > MAX_DATA_LEN {
				return nil, 0, txerr(TX_ERR_WITNESS_OVERFLOW, "witness item too long")
			}
			w, err := readBytes(b, &off, int(wLen))
			if err != nil {
				return nil, 0, err
			}
			in.Witness[j] = append([]byte(nil), w...)
		}
	}

	nOut, _, err := readCompactSize(b, &off)
	if err != nil {
		return nil, 0, err
	}
	if nOut > MAX_TX_OUTPUTS {
		return nil, 0, txerr(TX_ERR_PARSE, "too many outputs")
	}
	tx.Outputs = make([]TxOut, nOut)
	for i := range tx.Outputs {
		out := &tx.Outputs[i]
		if out.Value, err = readU64le(b, &off); err != nil {
			return nil, 0, err
		}
		if out.CovenantType, err = readU16le(b, &off); err != nil {
			return nil, 0, err
		}
		cdLen, _, err := readCompactSize(b, &off)
		if err != nil {
			return nil, 0, err
		}
		if cdLen > MAX_DATA_LEN {
			return nil, 0, txerr(TX_ERR_PARSE, "covenant_data too long")
		}
		cd, err := readBytes(b, &off, int(cdLen))
		if err != nil {
			return nil, 0, err
		}
		out.CovenantData = append([]byte(nil), cd...)
	}

	if tx.LockTime, err = readU32le(b, &off); err != nil {
		return nil, 0, err
	}

	if err := tx.parseExtension(b, &off); err != nil {
		return nil, 0, err
	}
	return tx, off, nil
}

func (tx *Tx) parseExtension(b []byte, off *int) error {
	switch tx.Type {
	case TX_TYPE_NORMAL, TX_TYPE_COINBASE, TX_TYPE_MORTGAGE, TX_TYPE_REDEEM_MORTGAGE_STATEMENT:
		return nil

	case TX_TYPE_TRANS_STEP1:
		var err error
		if tx.DestBranchID, err = readU32le(b, off); err != nil {
			return err
		}
		h, err := readBytes(b, off, 32)
		if err != nil {
			return err
		}
		copy(tx.SendToTxHash[:], h)
		return nil

	case TX_TYPE_TRANS_STEP2:
		var err error
		if tx.FromBranchID, err = readU32le(b, off); err != nil {
			return err
		}
		h, err := readBytes(b, off, 32)
		if err != nil {
			return err
		}
		copy(tx.FromTxHash[:], h)
		if tx.InAmount, err = readU64le(b, off); err != nil {
			return err
		}
		n, _, err := readCompactSize(b, off)
		if err != nil {
			return err
		}
		if n > MAX_DATA_LEN {
			return txerr(TX_ERR_PARSE, "spv_proof too long")
		}
		proof, err := readBytes(b, off, int(n))
		if err != nil {
			return err
		}
		tx.SpvProof = append([]byte(nil), proof...)
		if tx.FromBranchID != MAIN_BRANCH_ID && len(tx.SpvProof) == 0 {
			return txerr(TX_ERR_PARSE, "trans-step2 from a branch requires spv_proof")
		}
		return nil

	case TX_TYPE_CREATE_BRANCH:
		var err error
		tx.BranchID, err = readU32le(b, off)
		return err

	case TX_TYPE_SYNC_BRANCH_INFO:
		hdr, err := readBytes(b, off, BLOCK_HEADER_BYTES)
		if err != nil {
			return err
		}
		h, err := ParseBlockHeaderBytes(hdr)
		if err != nil {
			return err
		}
		tx.BranchInfo.Header = *h
		if tx.BranchInfo.Height, err = readU64le(b, off); err != nil {
			return err
		}
		if tx.BranchInfo.BranchID, err = readU32le(b, off); err != nil {
			return err
		}
		n, _, err := readCompactSize(b, off)
		if err != nil {
			return err
		}
		if n > MAX_DATA_LEN {
			return txerr(TX_ERR_PARSE, "stake_tx_data too long")
		}
		st, err := readBytes(b, off, int(n))
		if err != nil {
			return err
		}
		tx.BranchInfo.StakeTxData = append([]byte(nil), st...)
		return nil

	case TX_TYPE_REPORT:
		return tx.parseReportCommon(b, off)

	case TX_TYPE_PROVE:
		if err := tx.parseReportCommon(b, off); err != nil {
			return err
		}
		n, _, err := readCompactSize(b, off)
		if err != nil {
			return err
		}
		tx.ProveData = make([]ProveItem, n)
		for i := range tx.ProveData {
			tl, _, err := readCompactSize(b, off)
			if err != nil {
				return err
			}
			if tl > MAX_DATA_LEN {
				return txerr(TX_ERR_PARSE, "prove_data tx_bytes too long")
			}
			txBytes, err := readBytes(b, off, int(tl))
			if err != nil {
				return err
			}
			tx.ProveData[i].TxBytes = append([]byte(nil), txBytes...)

			sl, _, err := readCompactSize(b, off)
			if err != nil {
				return err
			}
			if sl > MAX_DATA_LEN {
				return txerr(TX_ERR_PARSE, "prove_data spv_proof too long")
			}
			spv, err := readBytes(b, off, int(sl))
			if err != nil {
				return err
			}
			tx.ProveData[i].SpvProof = append([]byte(nil), spv...)
		}
		return nil

	case TX_TYPE_REPORT_REWARD:
		id, err := readBytes(b, off, 32)
		if err != nil {
			return err
		}
		copy(tx.AnchorTxID[:], id)
		return nil

	case TX_TYPE_LOCK_MINE_COIN, TX_TYPE_UNLOCK_MINE_COIN:
		id, err := readBytes(b, off, 32)
		if err != nil {
			return err
		}
		copy(tx.AnchorTxID[:], id)
		preout, err := readBytes(b, off, 32)
		if err != nil {
			return err
		}
		copy(tx.CoinPreoutHash[:], preout)
		return nil

	case TX_TYPE_PUBLISH_CONTRACT:
		addr, err := readBytes(b, off, 20)
		if err != nil {
			return err
		}
		copy(tx.ContractAddr[:], addr)
		n, _, err := readCompactSize(b, off)
		if err != nil {
			return err
		}
		if n > MAX_CONTRACT_FILE_LEN {
			return txerr(TX_ERR_CONTRACT_INVALID, "contract code exceeds MAX_CONTRACT_FILE_LEN")
		}
		code, err := readBytes(b, off, int(n))
		if err != nil {
			return err
		}
		tx.ContractCode = append([]byte(nil), code...)
		return nil

	case TX_TYPE_CALL_CONTRACT:
		addr, err := readBytes(b, off, 20)
		if err != nil {
			return err
		}
		copy(tx.ContractAddr[:], addr)
		fnLen, _, err := readCompactSize(b, off)
		if err != nil {
			return err
		}
		fn, err := readBytes(b, off, int(fnLen))
		if err != nil {
			return err
		}
		tx.ContractFn = string(fn)
		argLen, _, err := readCompactSize(b, off)
		if err != nil {
			return err
		}
		if argLen > MAX_DATA_LEN {
			return txerr(TX_ERR_CONTRACT_INVALID, "contract args exceed MAX_DATA_LEN")
		}
		args, err := readBytes(b, off, int(argLen))
		if err != nil {
			return err
		}
		tx.ContractArgs = append([]byte(nil), args...)
		return nil

	default:
		return txerr(TX_ERR_PARSE, "unknown tx_type")
	}
}

func (tx *Tx) parseReportCommon(b []byte, off *int) error {
	rt, err := readU8(b, off)
	if err != nil {
		return err
	}
	tx.ReportType = ReportType(rt)
	if !tx.ReportType.valid() {
		return txerr(TX_ERR_PARSE, "unknown report_type")
	}
	if tx.ReportedBranchID, err = readU32le(b, off); err != nil {
		return err
	}
	bh, err := readBytes(b, off, 32)
	if err != nil {
		return err
	}
	copy(tx.ReportedBlockHash[:], bh)
	th, err := readBytes(b, off, 32)
	if err != nil {
		return err
	}
	copy(tx.ReportedTxHash[:], th)

	n, _, err := readCompactSize(b, off)
	if err != nil {
		return err
	}
	if n > MAX_DATA_LEN {
		return txerr(TX_ERR_PARSE, "partial_merkle_tree too long")
	}
	pmt, err := readBytes(b, off, int(n))
	if err != nil {
		return err
	}
	tx.PartialMerkleTree = append([]byte(nil), pmt...)

	if tx.ReportType == REPORT_TYPE_CONTRACT_DATA {
		addr, err := readBytes(b, off, 20)
		if err != nil {
			return err
		}
		copy(tx.ContractDataReport.ContractAddr[:], addr)
		rbh, err := readBytes(b, off, 32)
		if err != nil {
			return err
		}
		copy(tx.ContractDataReport.ReadBlockHash[:], rbh)
		if tx.ContractDataReport.ReadTxIndex, err = readU32le(b, off); err != nil {
			return err
		}
		if tx.ContractDataReport.ReportedTxIndex, err = readU32le(b, off); err != nil {
			return err
		}
		pbh, err := readBytes(b, off, 32)
		if err != nil {
			return err
		}
		copy(tx.ContractDataReport.ProveBlockHash[:], pbh)
		if tx.ContractDataReport.ProveTxIndex, err = readU32le(b, off); err != nil {
			return err
		}
	}
	return nil
}

// ReportFlagHash is the canonical key by which a report and its matching
// prove collate, per GLOSSARY "Report-flag hash": a hash over the report
// type and its (branch, block, tx) identity.
func ReportFlagHash(reportType ReportType, branchID uint32, blockHash, txHash [32]byte) [32]byte {
	var b []byte
	b = append(b, byte(reportType))
	b = AppendU32le(b, branchID)
	b = append(b, blockHash[:]...)
	b = append(b, txHash[:]...)
	return sha3_256(b)
}
