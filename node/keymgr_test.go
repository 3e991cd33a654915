package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rubinchain/rubin-node/crypto"
)

func TestVerifyPubkey(t *testing.T) {
	td := t.TempDir()
	ksPath := filepath.Join(td, "k.json")

	// Minimal keystore, no wrapped key needed for verify-pubkey.
	if err := os.WriteFile(ksPath, []byte(`{
  "version": "RBKSv1",
  "suite_id": 1,
  "pubkey_hex": "11",
  "key_id_hex": "",
  "wrap_alg": "AES-256-KW",
  "wrapped_sk_hex": "00"
}`), 0o600); err != nil {
		t.Fatal(err)
	}

	// VerifyPubkey should compute key_id and not crash even if wrapped_sk_hex is junk.
	out, err := VerifyPubkey(crypto.DevStdCryptoProvider{}, ksPath, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 64 {
		t.Fatalf("expected 32-byte key_id hex, got %q", out)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	td := t.TempDir()
	p := crypto.DevStdCryptoProvider{}

	kek := make([]byte, 32)
	for i := range kek {
		kek[i] = byte(i)
	}
	kekHex := hexEncodeForTest(kek)
	sk := []byte("0123456789abcdef") // 16 bytes, multiple of 8
	skHex := hexEncodeForTest(sk)
	pub := []byte{0x01, 0x02, 0x03}
	pubHex := hexEncodeForTest(pub)

	ksPath := filepath.Join(td, "k.json")
	if err := ExportWrapped(p, ksPath, 1, pubHex, skHex, kekHex); err != nil {
		t.Fatalf("ExportWrapped: %v", err)
	}

	ks, err := OpenKeyStore(ksPath, kek, p, nil)
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}
	sig, err := ks.Sign([32]byte{1})
	if err != nil {
		t.Fatalf("Sign (dev-mode fallback): %v", err)
	}
	if len(sig) == 0 {
		t.Fatalf("expected non-empty signature")
	}

	newKek := make([]byte, 32)
	for i := range newKek {
		newKek[i] = byte(255 - i)
	}
	newKekHex := hexEncodeForTest(newKek)
	rotatedPath := filepath.Join(td, "k2.json")
	if err := ImportWrapped(p, ksPath, rotatedPath, kekHex, newKekHex); err != nil {
		t.Fatalf("ImportWrapped: %v", err)
	}
	ks2, err := OpenKeyStore(rotatedPath, newKek, p, nil)
	if err != nil {
		t.Fatalf("OpenKeyStore (rotated): %v", err)
	}
	if _, err := ks2.Sign([32]byte{2}); err != nil {
		t.Fatalf("Sign after rotation: %v", err)
	}
}

func hexEncodeForTest(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}
