//go:build wolfcrypt_dylib

package node

import (
	"os"

	"github.com/rubinchain/rubin-node/crypto"
)

// LoadCryptoProvider loads the wolfcrypt shim named by RUBIN_WOLFCRYPT_SHIM_PATH,
// falling back to the software provider when the variable is unset.
func LoadCryptoProvider() (crypto.CryptoProvider, func(), error) {
	if path, ok := os.LookupEnv("RUBIN_WOLFCRYPT_SHIM_PATH"); ok && path != "" {
		prov, err := crypto.LoadWolfcryptDylibProviderFromEnv()
		if err != nil {
			return nil, func() {}, err
		}
		return prov, func() { prov.Close() }, nil
	}
	return crypto.DevStdCryptoProvider{}, func() {}, nil
}
