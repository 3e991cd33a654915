package consensus

// MerkleLeafHash applies the domain-separated leaf transform
// (0x00 ‖ txid) a Merkle tree's bottom row uses, exported so packages
// that build partial trees (spv) hash leaves identically to
// MerkleRootTxids without duplicating the prefix byte.
func MerkleLeafHash(txid [32]byte) [32]byte {
	var preimage [1 + 32]byte
	preimage[0] = 0x00
	copy(preimage[1:], txid[:])
	return sha3_256(preimage[:])
}

// MerkleNodeHash applies the domain-separated internal-node transform
// (0x01 ‖ left ‖ right).
func MerkleNodeHash(left, right [32]byte) [32]byte {
	var preimage [1 + 32 + 32]byte
	preimage[0] = 0x01
	copy(preimage[1:33], left[:])
	copy(preimage[33:], right[:])
	return sha3_256(preimage[:])
}

func MerkleRootTxids(txids [][32]byte) ([32]byte, error) {
	var zero [32]byte
	if len(txids) == 0 {
		return zero, txerr(TX_ERR_PARSE, "merkle: empty tx list")
	}

	level := make([][32]byte, len(txids))
	for i, txid := range txids {
		level[i] = MerkleLeafHash(txid)
	}

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i == len(level)-1 {
				// Odd promotion rule: carry forward unchanged.
				next = append(next, level[i])
				i++
				continue
			}
			next = append(next, MerkleNodeHash(level[i], level[i+1]))
			i += 2
		}
		level = next
	}

	return level[0], nil
}
