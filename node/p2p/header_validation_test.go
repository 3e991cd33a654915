package p2p

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/crypto"
)

func TestValidateHeadersProfilePassAndLinkageFail(t *testing.T) {
	var cp crypto.DevStdCryptoProvider

	parent := consensus.BlockHeader{
		Version:   1,
		Timestamp: 1000,
		Target:    consensus.POW_LIMIT,
		Nonce:     1,
	}
	parentHash, err := consensus.BlockHeaderHash(cp, parent)
	if err != nil {
		t.Fatal(err)
	}

	h1 := consensus.BlockHeader{
		Version:   1,
		PrevHash:  parentHash,
		Timestamp: 2000,
		Target:    consensus.POW_LIMIT,
		Nonce:     2,
	}
	// Grind the nonce until h1 meets its own target, so the pass case
	// also clears the PoW check.
	for {
		h1Hash, err := consensus.BlockHeaderHash(cp, h1)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Compare(h1Hash[:], h1.Target[:]) < 0 {
			break
		}
		h1.Nonce++
	}
	ctx := consensus.BlockValidationContext{
		Height:          1,
		AncestorHeaders: []consensus.BlockHeader{parent},
		LocalTime:       10_000,
		LocalTimeSet:    true,
	}
	if err := ValidateHeadersProfile(cp, []consensus.BlockHeader{h1}, ctx); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}

	// Linkage mismatch should fail.
	hBad := h1
	hBad.PrevHash[0] ^= 0xff
	if err := ValidateHeadersProfile(cp, []consensus.BlockHeader{hBad}, ctx); err == nil || !errors.Is(err, ErrHeaderLinkageInvalid) {
		t.Fatalf("expected %v, got %v", ErrHeaderLinkageInvalid, err)
	}
}
