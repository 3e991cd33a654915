// Package spv builds and verifies partial Merkle trees over a block's
// transactions, using the same domain-separated leaf/node hashing
// consensus.MerkleRootTxids uses so a proof's recomputed root always
// matches the full tree's root.
package spv

import "github.com/rubinchain/rubin-node/consensus"

// Proof is a partial Merkle tree: a depth-first flag walk plus the
// hashes revealed along the way, standard BIP37 shape.
type Proof struct {
	NumLeaves int
	Hashes    [][32]byte
	Flags     []bool
}

// Build constructs a Proof over txids (in block order) that proves
// inclusion of every hash in matched.
func Build(txids [][32]byte, matched map[[32]byte]bool) (*Proof, error) {
	if len(txids) == 0 {
		return nil, consensus.NewError(consensus.TX_ERR_PARSE, "spv: empty tx list")
	}
	match := make([]bool, len(txids))
	for i, id := range txids {
		match[i] = matched[id]
	}
	p := &Proof{NumLeaves: len(txids)}
	b := &builder{txids: txids, match: match, height: treeHeight(len(txids))}
	b.walk(0, b.height, p)
	return p, nil
}

func treeHeight(n int) int {
	h := 0
	for (1 << h) < n {
		h++
	}
	return h
}

// nodesAt returns how many nodes exist at the given height for a tree
// with nLeaves leaves, following the same "halve, rounding up"
// reduction consensus.MerkleRootTxids's odd-node carry-forward rule
// implies at each level.
func nodesAt(nLeaves, height int) int {
	n := nLeaves
	for h := 0; h < height; h++ {
		n = (n + 1) / 2
	}
	return n
}

type builder struct {
	txids  [][32]byte
	match  []bool
	height int
}

func (b *builder) hashAt(pos, height int) [32]byte {
	if height == 0 {
		return consensus.MerkleLeafHash(b.txids[pos])
	}
	left := b.hashAt(pos*2, height-1)
	if pos*2+1 < nodesAt(len(b.txids), height-1) {
		right := b.hashAt(pos*2+1, height-1)
		return consensus.MerkleNodeHash(left, right)
	}
	return left
}

func (b *builder) anyMatchAt(pos, height int) bool {
	if height == 0 {
		return pos < len(b.match) && b.match[pos]
	}
	if b.anyMatchAt(pos*2, height-1) {
		return true
	}
	if pos*2+1 < nodesAt(len(b.txids), height-1) {
		return b.anyMatchAt(pos*2+1, height-1)
	}
	return false
}

func (b *builder) walk(pos, height int, p *Proof) {
	match := b.anyMatchAt(pos, height)
	p.Flags = append(p.Flags, match)
	if height == 0 {
		// Leaves travel as the raw txid; the verifier applies MerkleLeafHash.
		p.Hashes = append(p.Hashes, b.txids[pos])
		return
	}
	if !match {
		p.Hashes = append(p.Hashes, b.hashAt(pos, height))
		return
	}
	b.walk(pos*2, height-1, p)
	if pos*2+1 < nodesAt(len(b.txids), height-1) {
		b.walk(pos*2+1, height-1, p)
	}
}

// Verify recomputes the root a Proof implies, returning the matched
// txids and their leaf indices in tree order. It fails closed: any
// structural inconsistency (flags/hashes exhausted, root mismatch) is
// an error rather than a partial result.
func Verify(p *Proof, root [32]byte) ([][32]byte, []int, error) {
	if p.NumLeaves <= 0 {
		return nil, nil, consensus.NewError(consensus.TX_ERR_PARSE, "spv: empty proof")
	}
	v := &verifier{p: p}
	got, err := v.walk(0, treeHeight(p.NumLeaves))
	if err != nil {
		return nil, nil, err
	}
	if len(v.matched) == 0 {
		return nil, nil, consensus.NewError(consensus.TX_ERR_PARSE, "spv: proof matches nothing")
	}
	if got != root {
		return nil, nil, consensus.NewError(consensus.TX_ERR_PARSE, "spv: root mismatch")
	}
	return v.matched, v.indices, nil
}

type verifier struct {
	p        *Proof
	hi, fi   int
	matched  [][32]byte
	indices  []int
}

func (v *verifier) walk(pos, height int) ([32]byte, error) {
	if v.fi >= len(v.p.Flags) {
		return [32]byte{}, consensus.NewError(consensus.TX_ERR_PARSE, "spv: flags exhausted")
	}
	match := v.p.Flags[v.fi]
	v.fi++

	if height == 0 || !match {
		if v.hi >= len(v.p.Hashes) {
			return [32]byte{}, consensus.NewError(consensus.TX_ERR_PARSE, "spv: hashes exhausted")
		}
		hv := v.p.Hashes[v.hi]
		v.hi++
		if height == 0 {
			if match {
				v.matched = append(v.matched, hv)
				v.indices = append(v.indices, pos)
			}
			return consensus.MerkleLeafHash(hv), nil
		}
		return hv, nil
	}

	left, err := v.walk(pos*2, height-1)
	if err != nil {
		return [32]byte{}, err
	}
	if pos*2+1 < nodesAt(v.p.NumLeaves, height-1) {
		right, err := v.walk(pos*2+1, height-1)
		if err != nil {
			return [32]byte{}, err
		}
		return consensus.MerkleNodeHash(left, right), nil
	}
	return left, nil
}
