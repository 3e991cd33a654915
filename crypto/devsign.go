package crypto

import "golang.org/x/crypto/sha3"

// DevSignPlaceholder is a dev-only stand-in for a real ML-DSA-87 signature,
// used when neither strict mode nor a wolfcrypt shim with signing support is
// available. It is deterministic in sk and digest32 so SignStakeInput's
// nonce-exclusion invariant holds under test, but it carries no
// cryptographic authenticity guarantee and MUST NOT be accepted by any
// consensus-facing verifier.
//
// Strict/FIPS deployments MUST use WolfcryptDylibProvider.SignMLDSA87 instead
// (see node.KeyStore.Sign).
func DevSignPlaceholder(sk []byte, digest32 [32]byte) []byte {
	h := sha3.NewShake256()
	_, _ = h.Write([]byte("RUBIN-DEV-SIGN-PLACEHOLDER-v1"))
	_, _ = h.Write(sk)
	_, _ = h.Write(digest32[:])
	out := make([]byte, 4627) // matches ML-DSA-87 signature length
	_, _ = h.Read(out)
	return out
}
