package node

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rubinchain/rubin-node/crypto"
)

// dev keystore format backed by AES-256-KW:
// - strict mode: requires wolfcrypt shim keywrap/signing symbols
// - non-strict mode: allows software AES-KW and a placeholder signer for dev/test environments

type keyWrapProvider interface {
	HasKeyManagement() bool
	KeyWrap(kek, keyIn []byte) ([]byte, error)
	KeyUnwrap(kek, wrapped []byte) ([]byte, error)
}

type signingProvider interface {
	HasSigning() bool
	SignMLDSA87(sk []byte, digest32 [32]byte) ([]byte, error)
}

type KeyStoreV1 struct {
	Version      string `json:"version"` // "RBKSv1"
	SuiteID      uint8  `json:"suite_id"`
	PubkeyHex    string `json:"pubkey_hex"`
	KeyIDHex     string `json:"key_id_hex"`
	WrapAlg      string `json:"wrap_alg"` // "AES-256-KW"
	WrappedSKHex string `json:"wrapped_sk_hex"`
}

func WolfcryptStrict() bool {
	v := os.Getenv("RUBIN_WOLFCRYPT_STRICT")
	return v == "1" || strings.EqualFold(v, "true")
}

func mustLen(b []byte, n int, name string) error {
	if len(b) != n {
		return fmt.Errorf("%s must be %d bytes (got %d)", name, n, len(b))
	}
	return nil
}

func keywrap(kek, keyIn []byte, km keyWrapProvider) ([]byte, error) {
	if km != nil {
		return km.KeyWrap(kek, keyIn)
	}
	return crypto.AESKeyWrapRFC3394(kek, keyIn)
}

func keyunwrap(strict bool, kek, wrapped []byte, km keyWrapProvider) ([]byte, error) {
	if km != nil {
		return km.KeyUnwrap(kek, wrapped)
	}
	if strict {
		return nil, fmt.Errorf("keyunwrap requires shim in strict mode")
	}
	return crypto.AESKeyUnwrapRFC3394(kek, wrapped)
}

// KeyStore holds an operator's mortgage-coin (staking) key wrapped at rest
// under a KEK, plus the crypto collaborators needed to unwrap it on demand
// and turn it into a signature. It satisfies miner.StakeSigner.
type KeyStore struct {
	ks       KeyStoreV1
	kek      []byte
	provider crypto.CryptoProvider
	monitor  *crypto.HSMMonitor
	strict   bool
}

// OpenKeyStore loads a KeyStoreV1 JSON document from path and binds it to
// kek (the AES-256 key-encryption-key protecting the wrapped secret key) and
// provider (used both for keywrap, when it implements keyWrapProvider/
// signingProvider, and as the fallback dev-mode path otherwise). monitor may
// be nil, in which case Sign never refuses on HSM-health grounds.
func OpenKeyStore(path string, kek []byte, provider crypto.CryptoProvider, monitor *crypto.HSMMonitor) (*KeyStore, error) {
	ks, err := readKeystore(path)
	if err != nil {
		return nil, err
	}
	if err := mustLen(kek, 32, "kek"); err != nil {
		return nil, err
	}
	return &KeyStore{
		ks:       *ks,
		kek:      kek,
		provider: provider,
		monitor:  monitor,
		strict:   WolfcryptStrict(),
	}, nil
}

// Sign implements miner.StakeSigner: it unwraps the keystore's secret key
// and produces a detached signature over hash. It refuses to sign while an
// attached HSMMonitor reports anything but the normal state, and refuses to
// fall back to the dev-mode placeholder signer in strict mode.
func (k *KeyStore) Sign(hash [32]byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("keystore: nil")
	}
	if k.monitor != nil && !k.monitor.CanSign() {
		return nil, fmt.Errorf("keystore: signing unavailable, HSM state=%s", k.monitor.State())
	}

	wrapped, err := hexDecodeStrict(k.ks.WrappedSKHex)
	if err != nil {
		return nil, fmt.Errorf("wrapped_sk_hex: %w", err)
	}
	km, _ := k.provider.(keyWrapProvider)
	sk, err := keyunwrap(k.strict, k.kek, wrapped, km)
	if err != nil {
		return nil, fmt.Errorf("keystore: unwrap: %w", err)
	}

	if signer, ok := k.provider.(signingProvider); ok && signer.HasSigning() {
		return signer.SignMLDSA87(sk, hash)
	}
	if k.strict {
		return nil, fmt.Errorf("keystore: signing requires wolfcrypt shim in strict mode")
	}
	return crypto.DevSignPlaceholder(sk, hash), nil
}

// PubkeyHex returns the keystore's public key (hex-encoded).
func (k *KeyStore) PubkeyHex() string { return k.ks.PubkeyHex }

// KeyIDHex returns the keystore's key_id = SHA3-256(pubkey), hex-encoded.
func (k *KeyStore) KeyIDHex() string { return k.ks.KeyIDHex }

func hexDecodeStrict(s string) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(s), "")
	return hex.DecodeString(cleaned)
}

// ExportWrapped wraps sk under kek and writes a KeyStoreV1 document to out.
func ExportWrapped(provider crypto.CryptoProvider, out string, suiteID uint8, pubkeyHex, skHex, kekHex string) error {
	pub, err := hexDecodeStrict(pubkeyHex)
	if err != nil {
		return fmt.Errorf("pubkey-hex: %w", err)
	}
	kek, err := hexDecodeStrict(kekHex)
	if err != nil {
		return fmt.Errorf("kek-hex: %w", err)
	}
	if err := mustLen(kek, 32, "kek"); err != nil {
		return err
	}
	sk, err := hexDecodeStrict(skHex)
	if err != nil {
		return fmt.Errorf("sk-hex: %w", err)
	}
	if len(sk) == 0 || len(sk)%8 != 0 {
		return fmt.Errorf("sk must be non-zero multiple of 8 bytes (AES-KW requirement)")
	}

	keyID, err := provider.SHA3_256(pub)
	if err != nil {
		return err
	}
	km, _ := provider.(keyWrapProvider)
	if WolfcryptStrict() && (km == nil || !km.HasKeyManagement()) {
		return fmt.Errorf("keymgr requires wolfcrypt shim keywrap symbols in strict mode")
	}
	wrapped, err := keywrap(kek, sk, km)
	if err != nil {
		return err
	}

	ks := KeyStoreV1{
		Version:      "RBKSv1",
		SuiteID:      suiteID,
		PubkeyHex:    hex.EncodeToString(pub),
		KeyIDHex:     hex.EncodeToString(keyID[:]),
		WrapAlg:      "AES-256-KW",
		WrappedSKHex: hex.EncodeToString(wrapped),
	}
	b, err := json.Marshal(ks)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(out, b, 0o600)
}

func readKeystore(path string) (*KeyStoreV1, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided
	if err != nil {
		return nil, err
	}
	var ks KeyStoreV1
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, err
	}
	if ks.Version != "RBKSv1" {
		return nil, fmt.Errorf("unsupported keystore version: %q", ks.Version)
	}
	if strings.ToUpper(ks.WrapAlg) != "AES-256-KW" {
		return nil, fmt.Errorf("unsupported wrap_alg: %q", ks.WrapAlg)
	}
	return &ks, nil
}

// ImportWrapped re-wraps a keystore's secret key under a new KEK (rotation).
func ImportWrapped(provider crypto.CryptoProvider, in, out, oldKekHex, newKekHex string) error {
	km, _ := provider.(keyWrapProvider)
	strict := WolfcryptStrict()
	if strict && (km == nil || !km.HasKeyManagement()) {
		return fmt.Errorf("keymgr requires wolfcrypt shim keywrap symbols in strict mode")
	}

	ks, err := readKeystore(in)
	if err != nil {
		return err
	}

	oldKek, err := hexDecodeStrict(oldKekHex)
	if err != nil {
		return fmt.Errorf("old-kek-hex: %w", err)
	}
	if err := mustLen(oldKek, 32, "old-kek"); err != nil {
		return err
	}
	newKek, err := hexDecodeStrict(newKekHex)
	if err != nil {
		return fmt.Errorf("new-kek-hex: %w", err)
	}
	if err := mustLen(newKek, 32, "new-kek"); err != nil {
		return err
	}
	wrapped, err := hexDecodeStrict(ks.WrappedSKHex)
	if err != nil {
		return fmt.Errorf("wrapped_sk_hex: %w", err)
	}

	plain, err := keyunwrap(strict, oldKek, wrapped, km)
	if err != nil {
		return err
	}
	newWrapped, err := keywrap(newKek, plain, km)
	if err != nil {
		return err
	}
	ks.WrappedSKHex = hex.EncodeToString(newWrapped)

	b, err := json.Marshal(ks)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(out, b, 0o600)
}

// VerifyPubkey checks a keystore's embedded key_id against SHA3-256(pubkey)
// and, if expectedKeyIDHex is non-empty, against that expected value. It
// returns the computed key_id (hex).
func VerifyPubkey(provider crypto.CryptoProvider, in, expectedKeyIDHex string) (string, error) {
	ks, err := readKeystore(in)
	if err != nil {
		return "", err
	}
	pub, err := hexDecodeStrict(ks.PubkeyHex)
	if err != nil {
		return "", fmt.Errorf("pubkey_hex: %w", err)
	}

	keyID, err := provider.SHA3_256(pub)
	if err != nil {
		return "", err
	}
	gotHex := hex.EncodeToString(keyID[:])
	if ks.KeyIDHex != "" && !strings.EqualFold(ks.KeyIDHex, gotHex) {
		return "", fmt.Errorf("keystore key_id mismatch: embedded=%s computed=%s", ks.KeyIDHex, gotHex)
	}
	if expectedKeyIDHex != "" {
		exp := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(expectedKeyIDHex), "0x"))
		if exp != gotHex {
			return "", fmt.Errorf("expected key_id mismatch: expected=%s computed=%s", exp, gotHex)
		}
	}
	return gotHex, nil
}
