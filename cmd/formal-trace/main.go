// formal-trace replays CV-* conformance fixtures through this module's
// consensus package and emits one JSON Lines trace per vector, so an
// external formal-verification harness can diff Go behavior against a
// reference model vector-by-vector.
package main

import (
	"bytes"
	"crypto/sha3"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rubinchain/rubin-node/consensus"
)

type traceHeader struct {
	Type                  string `json:"type"`
	SchemaVersion         int    `json:"schema_version"`
	GeneratedAtUTC        string `json:"generated_at_utc"`
	RepoCommit            string `json:"repo_commit"`
	GoVersion             string `json:"go_version"`
	FixturesDigestSHA3256 string `json:"fixtures_digest_sha3_256"`
}

type traceEntry struct {
	Type     string         `json:"type"`
	Gate     string         `json:"gate"`
	VectorID string         `json:"vector_id"`
	Op       string         `json:"op"`
	Ok       bool           `json:"ok"`
	Err      string         `json:"err"`
	Inputs   map[string]any `json:"inputs"`
	Outputs  map[string]any `json:"outputs"`
}

type parseFixture struct {
	Gate    string        `json:"gate"`
	Vectors []parseVector `json:"vectors"`
}
type parseVector struct {
	ID       string `json:"id"`
	Op       string `json:"op"`
	TxHex    string `json:"tx_hex"`
	ExpectOk bool   `json:"expect_ok"`
}

func mustGitCommit() string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return "UNKNOWN"
	}
	return strings.TrimSpace(string(out))
}

func mustGoVersion() string {
	out, err := exec.Command("go", "version").Output()
	if err != nil {
		return "UNKNOWN"
	}
	return strings.TrimSpace(string(out))
}

func sha3hex(b []byte) string {
	h := sha3.Sum256(b)
	return hex.EncodeToString(h[:])
}

func listFixtureNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := filepath.Match("CV-*.json", entry.Name())
		if err != nil {
			return nil, err
		}
		if matched {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func readFixtureFile(dir, name string) ([]byte, error) {
	return fs.ReadFile(os.DirFS(dir), name)
}

func digestFixtures(dir string) (string, error) {
	names, err := listFixtureNames(dir)
	if err != nil {
		return "", err
	}
	sum := sha3.New256()
	for _, name := range names {
		b, err := readFixtureFile(dir, name)
		if err != nil {
			return "", err
		}
		_, _ = sum.Write([]byte(name))
		_, _ = sum.Write([]byte{0})
		_, _ = sum.Write(b)
		_, _ = sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func txErrString(err error) string {
	if err == nil {
		return ""
	}
	if te, ok := err.(*consensus.TxError); ok {
		return string(te.Code)
	}
	return err.Error()
}

func main() {
	var fixturesDir string
	var outPath string
	flag.StringVar(&fixturesDir, "fixtures-dir", "conformance/fixtures", "path to conformance fixtures dir")
	flag.StringVar(&outPath, "out", "rubin-formal/traces/go_trace_v1.jsonl", "output JSONL path")
	flag.Parse()

	fixturesDigest, err := digestFixtures(fixturesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fixtures digest: %v\n", err)
		os.Exit(2)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(2)
	}
	var traceBuf bytes.Buffer

	hdr := traceHeader{
		Type:                  "header",
		SchemaVersion:         1,
		GeneratedAtUTC:        time.Now().UTC().Format(time.RFC3339Nano),
		RepoCommit:            mustGitCommit(),
		GoVersion:             mustGoVersion(),
		FixturesDigestSHA3256: fixturesDigest,
	}
	if err := writeJSON(&traceBuf, hdr); err != nil {
		fmt.Fprintf(os.Stderr, "write header: %v\n", err)
		os.Exit(2)
	}

	names, err := listFixtureNames(fixturesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list fixtures: %v\n", err)
		os.Exit(2)
	}

	for _, name := range names {
		b, err := readFixtureFile(fixturesDir, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", filepath.Join(fixturesDir, name), err)
			os.Exit(2)
		}

		var gateProbe struct {
			Gate string `json:"gate"`
		}
		if err := json.Unmarshal(b, &gateProbe); err != nil {
			fmt.Fprintf(os.Stderr, "parse gate %s: %v\n", filepath.Join(fixturesDir, name), err)
			os.Exit(2)
		}

		switch gateProbe.Gate {
		case "CV-PARSE":
			var fx parseFixture
			if err := json.Unmarshal(b, &fx); err != nil {
				fmt.Fprintf(os.Stderr, "unmarshal %s: %v\n", filepath.Join(fixturesDir, name), err)
				os.Exit(2)
			}
			for _, v := range fx.Vectors {
				txBytes, _ := hex.DecodeString(v.TxHex)
				tx, err := consensus.ParseTxBytes(txBytes)
				var txidHex string
				if err == nil {
					txid, terr := tx.TxHash()
					if terr != nil {
						err = terr
					} else {
						txidHex = hex.EncodeToString(txid[:])
					}
				}
				e := traceEntry{
					Type:     "entry",
					Gate:     fx.Gate,
					VectorID: v.ID,
					Op:       v.Op,
					Ok:       err == nil,
					Err:      txErrString(err),
					Inputs: map[string]any{
						"tx_hex": v.TxHex,
					},
					Outputs: map[string]any{
						"txid": txidHex,
					},
				}
				if err := writeJSON(&traceBuf, e); err != nil {
					fmt.Fprintf(os.Stderr, "write: %v\n", err)
					os.Exit(2)
				}
			}

		default:
			// non-critical gate for this trace pass: skip silently.
			continue
		}
	}

	if bytes.Count(traceBuf.Bytes(), []byte("\n")) < 2 {
		fmt.Fprintf(os.Stderr, "no entries written\n")
		os.Exit(2)
	}
	if err := os.WriteFile(outPath, traceBuf.Bytes(), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "write out: %v\n", err)
		os.Exit(2)
	}
}
