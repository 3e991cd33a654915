package node

import (
	"fmt"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/crypto"
	"golang.org/x/crypto/sha3"
)

func stakeHeaderDigest(header consensus.BlockHeader) ([32]byte, error) {
	return sha3.Sum256(consensus.GetHashNoSignData(header)), nil
}

const (
	mldsa87PubkeyLen = 2592
	mldsa87SigLen    = 4627
)

// mldsaVerifier is the capability a crypto.CryptoProvider optionally
// exposes for signature verification; only WolfcryptDylibProvider
// implements it today (crypto.DevStdCryptoProvider does not, since
// verifying a real ML-DSA-87 signature needs the shim's math, not
// just a hash function).
type mldsaVerifier interface {
	VerifyMLDSA87(pubkey []byte, sig []byte, digest32 [32]byte) bool
}

func splitPubkeySig(b []byte) (pubkey, sig []byte, err error) {
	if len(b) != mldsa87PubkeyLen+mldsa87SigLen {
		return nil, nil, fmt.Errorf("expected %d-byte pubkey||sig, got %d", mldsa87PubkeyLen+mldsa87SigLen, len(b))
	}
	return b[:mldsa87PubkeyLen], b[mldsa87PubkeyLen:], nil
}

// KeyOwnershipVerifier implements consensus.ScriptVerifier and
// branch.HeaderSigVerifier against ML-DSA-87: a scriptSig (or stake
// script) is pubkey||sig, covenant_data/keyid is SHA3-256(pubkey) per
// spec.md's key-id binding.
//
// Without a wolfcrypt shim bound into Provider, this refuses rather
// than accepts: a devnet without a shim can produce blocks (KeyStore
// falls back to a placeholder signer) but cannot validate the
// signatures on them, so it must not silently treat every spend as
// authorized.
type KeyOwnershipVerifier struct {
	Provider crypto.CryptoProvider
}

func (v *KeyOwnershipVerifier) Verify(scriptSig []byte, covenantData []byte, amount uint64, tx *consensus.Tx, inIndex int, flags uint32) error {
	if len(covenantData) != 20 {
		return fmt.Errorf("script verify: covenant_data must be a 20-byte keyid")
	}
	pub, sig, err := splitPubkeySig(scriptSig)
	if err != nil {
		return fmt.Errorf("script verify: %w", err)
	}
	keyID, err := v.Provider.SHA3_256(pub)
	if err != nil {
		return err
	}
	if string(keyID[:20]) != string(covenantData) {
		return fmt.Errorf("script verify: keyid mismatch")
	}
	digest, err := tx.TxHash()
	if err != nil {
		return err
	}
	mv, ok := v.Provider.(mldsaVerifier)
	if !ok {
		return fmt.Errorf("script verify: signature verification requires a wolfcrypt shim")
	}
	if !mv.VerifyMLDSA87(pub, sig, digest) {
		return fmt.Errorf("script verify: signature invalid")
	}
	return nil
}

// VerifyBranchHeaderSignature checks a branch block header's PoS
// signature: sig is a bare ML-DSA-87 detached signature,
// stakeScriptPubKey is the mortgage coin's covenant P2PK pubkey, both
// over sha3.Sum256(GetHashNoSignData(header)), the same digest
// miner.SignStakeInput signs.
func (v *KeyOwnershipVerifier) VerifyBranchHeaderSignature(header consensus.BlockHeader, sig []byte, stakeScriptPubKey []byte) (bool, error) {
	if len(stakeScriptPubKey) != mldsa87PubkeyLen {
		return false, fmt.Errorf("branch header verify: stake script must carry a %d-byte pubkey", mldsa87PubkeyLen)
	}
	if len(sig) != mldsa87SigLen {
		return false, fmt.Errorf("branch header verify: signature must be %d bytes", mldsa87SigLen)
	}
	mv, ok := v.Provider.(mldsaVerifier)
	if !ok {
		return false, fmt.Errorf("branch header verify: signature verification requires a wolfcrypt shim")
	}
	digest, err := stakeHeaderDigest(header)
	if err != nil {
		return false, err
	}
	return mv.VerifyMLDSA87(stakeScriptPubKey, sig, digest), nil
}
