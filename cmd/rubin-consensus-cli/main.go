// rubin-consensus-cli is a JSON-over-stdio oracle for conformance test
// suites: it decodes one request from stdin, runs the requested
// consensus primitive, and encodes one response to stdout. It exists so
// a conformance harness written in any language can exercise this
// module's exact consensus semantics without linking Go.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rubinchain/rubin-node/consensus"
)

type Request struct {
	Op    string   `json:"op"`
	TxHex string   `json:"tx_hex,omitempty"`
	Txids []string `json:"txids,omitempty"`
}

type Response struct {
	Ok        bool   `json:"ok"`
	Err       string `json:"err,omitempty"`
	TxidHex   string `json:"txid,omitempty"`
	MerkleHex string `json:"merkle_root,omitempty"`
	Consumed  int    `json:"consumed,omitempty"`
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

func errResp(err error) Response {
	return Response{Ok: false, Err: err.Error()}
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResp(os.Stdout, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		return
	}
	writeResp(os.Stdout, handle(req))
}

func handle(req Request) Response {
	switch req.Op {
	case "parse_tx":
		return opParseTx(req)
	case "merkle_root":
		return opMerkleRoot(req)
	default:
		return Response{Ok: false, Err: "unknown op"}
	}
}

func opParseTx(req Request) Response {
	txBytes, err := hex.DecodeString(req.TxHex)
	if err != nil {
		return Response{Ok: false, Err: "bad hex"}
	}
	tx, err := consensus.ParseTxBytes(txBytes)
	if err != nil {
		return errResp(err)
	}
	txid, err := tx.TxHash()
	if err != nil {
		return errResp(err)
	}
	return Response{Ok: true, TxidHex: hex.EncodeToString(txid[:]), Consumed: len(txBytes)}
}

func opMerkleRoot(req Request) Response {
	txids := make([][32]byte, 0, len(req.Txids))
	for _, h := range req.Txids {
		b, err := hex.DecodeString(h)
		if err != nil || len(b) != 32 {
			return Response{Ok: false, Err: "bad txid"}
		}
		var a [32]byte
		copy(a[:], b)
		txids = append(txids, a)
	}
	root, err := consensus.MerkleRootTxids(txids)
	if err != nil {
		return errResp(err)
	}
	return Response{Ok: true, MerkleHex: hex.EncodeToString(root[:])}
}
