// gen-conformance-fixtures writes CV-PARSE conformance vectors:
// hex-encoded transactions paired with the txid this module's
// consensus package is expected to compute for them, consumed by
// formal-trace as a cross-check against consensus.ParseTx/TxHash.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rubinchain/rubin-node/consensus"
)

type fixtureFile struct {
	Gate    string           `json:"gate"`
	Vectors []map[string]any `json:"vectors"`
}

func mustLoadFixture(path string) *fixtureFile {
	b, err := os.ReadFile(path)
	if err != nil {
		fatalf("read %s: %v", path, err)
	}
	var f fixtureFile
	if err := json.Unmarshal(b, &f); err != nil {
		fatalf("parse %s: %v", path, err)
	}
	return &f
}

func mustWriteFixture(path string, f *fixtureFile) {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		fatalf("marshal %s: %v", path, err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(path, b, 0o600); err != nil {
		fatalf("write %s: %v", path, err)
	}
}

func findVector(f *fixtureFile, id string) map[string]any {
	for _, v := range f.Vectors {
		if v["id"] == id {
			return v
		}
	}
	return nil
}

func repoRootFromGoModule() (string, error) {
	out, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		return "", err
	}
	gomod := strings.TrimSpace(string(out))
	if gomod == "" || gomod == os.DevNull {
		return "", fmt.Errorf("not inside a Go module")
	}
	return filepath.Dir(gomod), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func mustTxid(tx *consensus.Tx) [32]byte {
	id, err := tx.TxHash()
	if err != nil {
		fatalf("tx hash: %v", err)
	}
	return id
}

// coinbaseVector and normalVector build one well-formed transaction of
// each shape ParseTx accepts, so CV-PARSE always has at
// least one vector per base tx type.
func coinbaseVector(id string) map[string]any {
	tx := &consensus.Tx{
		Version: 1,
		Type:    consensus.TX_TYPE_COINBASE,
		Outputs: []consensus.TxOut{{
			Value:        5_000_000_000,
			CovenantType: consensus.COV_TYPE_P2PK,
			CovenantData: make([]byte, 20),
		}},
	}
	b, err := tx.Marshal()
	if err != nil {
		fatalf("marshal coinbase: %v", err)
	}
	txid := mustTxid(tx)
	return map[string]any{
		"id":        id,
		"op":        "parse_tx",
		"tx_hex":    hex.EncodeToString(b),
		"expect_ok": true,
		"txid":      hex.EncodeToString(txid[:]),
	}
}

func normalVector(id string) map[string]any {
	tx := &consensus.Tx{
		Version: 1,
		Type:    consensus.TX_TYPE_NORMAL,
		Inputs: []consensus.TxIn{{
			PrevTxid:  [32]byte{1},
			PrevVout:  0,
			ScriptSig: make([]byte, mldsa87PubkeyLenForFixtures+mldsa87SigLenForFixtures),
			Sequence:  0xffffffff,
		}},
		Outputs: []consensus.TxOut{{
			Value:        4_999_990_000,
			CovenantType: consensus.COV_TYPE_P2PK,
			CovenantData: make([]byte, 20),
		}},
	}
	b, err := tx.Marshal()
	if err != nil {
		fatalf("marshal normal tx: %v", err)
	}
	txid := mustTxid(tx)
	return map[string]any{
		"id":        id,
		"op":        "parse_tx",
		"tx_hex":    hex.EncodeToString(b),
		"expect_ok": true,
		"txid":      hex.EncodeToString(txid[:]),
	}
}

// mldsa87PubkeyLenForFixtures/mldsa87SigLenForFixtures mirror the
// node package's ML-DSA-87 pubkey||sig scriptSig convention without
// importing it, since these fixtures only need believable lengths, not
// a real signature.
const (
	mldsa87PubkeyLenForFixtures = 2592
	mldsa87SigLenForFixtures    = 4627
)

func runGeneratorCLI() {
	repoRoot, err := repoRootFromGoModule()
	if err != nil {
		fatalf("repo root: %v", err)
	}
	outDir := filepath.Join(repoRoot, "conformance", "fixtures")
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		fatalf("mkdir %s: %v", outDir, err)
	}
	outPath := filepath.Join(outDir, "CV-PARSE.json")

	f := &fixtureFile{Gate: "CV-PARSE"}
	if existing, statErr := os.Stat(outPath); statErr == nil && !existing.IsDir() {
		f = mustLoadFixture(outPath)
	}
	f.Gate = "CV-PARSE"

	for _, v := range []map[string]any{coinbaseVector("coinbase-basic"), normalVector("normal-basic")} {
		if existing := findVector(f, v["id"].(string)); existing != nil {
			continue
		}
		f.Vectors = append(f.Vectors, v)
	}

	mustWriteFixture(outPath, f)
	fmt.Fprintf(os.Stdout, "wrote %s (%d vectors)\n", outPath, len(f.Vectors))
}

func main() {
	runGeneratorCLI()
}
