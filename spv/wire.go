package spv

import "github.com/rubinchain/rubin-node/consensus"

// Marshal encodes a Proof as it travels inside a tx's spv_proof /
// partial_merkle_tree bytes: num_leaves, then the hash list, then the
// flag bits packed one byte at a time (matching BIP37's own wire
// layout, minus its bit-within-byte packing which isn't worth the
// complexity here — one bool per byte is fine at this scale).
func (p *Proof) Marshal() []byte {
	b := consensus.AppendCompactSize(nil, uint64(p.NumLeaves))
	b = consensus.AppendCompactSize(b, uint64(len(p.Hashes)))
	for _, h := range p.Hashes {
		b = append(b, h[:]...)
	}
	b = consensus.AppendCompactSize(b, uint64(len(p.Flags)))
	for _, f := range p.Flags {
		if f {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	}
	return b
}

// ParseProof decodes what Marshal produces.
func ParseProof(b []byte) (*Proof, error) {
	numLeaves, n, err := consensus.DecodeCompactSize(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]

	numHashes, n, err := consensus.DecodeCompactSize(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]
	hashes := make([][32]byte, numHashes)
	for i := range hashes {
		if len(b) < 32 {
			return nil, consensus.NewError(consensus.TX_ERR_PARSE, "spv: truncated hash list")
		}
		copy(hashes[i][:], b[:32])
		b = b[32:]
	}

	numFlags, n, err := consensus.DecodeCompactSize(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]
	if uint64(len(b)) < numFlags {
		return nil, consensus.NewError(consensus.TX_ERR_PARSE, "spv: truncated flag list")
	}
	flags := make([]bool, numFlags)
	for i := range flags {
		flags[i] = b[i] != 0
	}

	return &Proof{NumLeaves: int(numLeaves), Hashes: hashes, Flags: flags}, nil
}
