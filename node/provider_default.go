//go:build !wolfcrypt_dylib

package node

import (
	"fmt"

	"github.com/rubinchain/rubin-node/crypto"
)

// LoadCryptoProvider returns the crypto backend this binary was built
// against: the software SHA3-256 provider absent the wolfcrypt_dylib build
// tag, or the wolfcrypt shim loader when built with it (provider_wolfcrypt.go).
// A binary built without the tag cannot honor RUBIN_WOLFCRYPT_STRICT=1, since
// it has no HSM/shim signing or verification path to fall back to strictly.
func LoadCryptoProvider() (crypto.CryptoProvider, func(), error) {
	if WolfcryptStrict() {
		return nil, func() {}, fmt.Errorf("strict mode requires a binary built with the wolfcrypt_dylib tag")
	}
	return crypto.DevStdCryptoProvider{}, func() {}, nil
}
