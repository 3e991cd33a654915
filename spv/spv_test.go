package spv

import (
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
)

func txids(n int) [][32]byte {
	out := make([][32]byte, n)
	for i := range out {
		out[i][0] = byte(i + 1)
	}
	return out
}

func TestBuildVerify_SingleMatch(t *testing.T) {
	ids := txids(7)
	root, err := consensus.MerkleRootTxids(ids)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	p, err := Build(ids, map[[32]byte]bool{ids[3]: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	matched, indices, err := Verify(p, root)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(matched) != 1 || matched[0] != ids[3] {
		t.Fatalf("expected exactly ids[3] matched, got %v", matched)
	}
	if len(indices) != 1 || indices[0] != 3 {
		t.Fatalf("expected index 3, got %v", indices)
	}
}

func TestBuildVerify_MultipleMatchesEveryLeafCountShape(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 8, 9, 15, 16} {
		ids := txids(n)
		root, err := consensus.MerkleRootTxids(ids)
		if err != nil {
			t.Fatalf("n=%d root: %v", n, err)
		}
		want := map[[32]byte]bool{ids[0]: true, ids[n-1]: true}
		p, err := Build(ids, want)
		if err != nil {
			t.Fatalf("n=%d build: %v", n, err)
		}
		matched, _, err := Verify(p, root)
		if err != nil {
			t.Fatalf("n=%d verify: %v", n, err)
		}
		gotSet := map[[32]byte]bool{}
		for _, m := range matched {
			gotSet[m] = true
		}
		for want := range want {
			if !gotSet[want] {
				t.Fatalf("n=%d expected %x matched", n, want)
			}
		}
	}
}

func TestVerify_WrongRootRejected(t *testing.T) {
	ids := txids(4)
	p, err := Build(ids, map[[32]byte]bool{ids[0]: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var badRoot [32]byte
	badRoot[0] = 0xff
	if _, _, err := Verify(p, badRoot); err == nil {
		t.Fatalf("expected root mismatch error")
	}
}

func TestBuild_EmptyRejected(t *testing.T) {
	if _, err := Build(nil, nil); err == nil {
		t.Fatalf("expected error for empty tx list")
	}
}
