package crypto

import "testing"

func TestDevStdSHA3_256_Deterministic(t *testing.T) {
	p := DevStdCryptoProvider{}
	a, err := p.SHA3_256([]byte("abc"))
	if err != nil {
		t.Fatalf("SHA3_256 returned error: %v", err)
	}
	b, err := p.SHA3_256([]byte("abc"))
	if err != nil {
		t.Fatalf("SHA3_256 returned error: %v", err)
	}
	if a != b {
		t.Fatalf("expected deterministic output for identical input")
	}
}

func TestDevStdSHA3_256_DistinctInputsDiffer(t *testing.T) {
	p := DevStdCryptoProvider{}
	a, err := p.SHA3_256([]byte("abc"))
	if err != nil {
		t.Fatalf("SHA3_256 returned error: %v", err)
	}
	b, err := p.SHA3_256([]byte("abd"))
	if err != nil {
		t.Fatalf("SHA3_256 returned error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct outputs for distinct inputs")
	}
}

func TestDevStdSHA3_256_EmptyInput(t *testing.T) {
	p := DevStdCryptoProvider{}
	if _, err := p.SHA3_256(nil); err != nil {
		t.Fatalf("SHA3_256(nil) returned error: %v", err)
	}
}
