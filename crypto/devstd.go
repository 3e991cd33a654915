package crypto

import "golang.org/x/crypto/sha3"

// DevStdCryptoProvider backs CryptoProvider with golang.org/x/crypto/sha3.
// It is the default provider wired by cmd/rubin-node; a deployment that
// needs an HSM-backed hash path builds wolfcrypt_dylib_provider.go instead.
type DevStdCryptoProvider struct{}

func (p DevStdCryptoProvider) SHA3_256(input []byte) ([32]byte, error) {
	return sha3.Sum256(input), nil
}
