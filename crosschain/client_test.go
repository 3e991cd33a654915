package crosschain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rubinchain/rubin-node/consensus"
)

func newTestServer(t *testing.T, handler func(method string, params []json.RawMessage) (interface{}, *jsonRPCError)) (*httptest.Server, BranchConfig) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, rpcErr := handler(req.Method, req.Params)
		resp := jsonRPCResponse{Error: rpcErr}
		if rpcErr == nil {
			b, err := json.Marshal(result)
			if err != nil {
				t.Fatalf("marshal result: %v", err)
			}
			resp.Result = b
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	parts := strings.Split(host, ":")
	var port int
	fmt.Sscanf(parts[1], "%d", &port)
	return srv, BranchConfig{BranchID: 1, IP: parts[0], Port: port, Username: "u", Password: "p"}
}

func TestMakeBranchTransaction(t *testing.T) {
	_, cfg := newTestServer(t, func(method string, params []json.RawMessage) (interface{}, *jsonRPCError) {
		if method != "makebranchtransaction" {
			t.Fatalf("unexpected method %q", method)
		}
		return "ok", nil
	})
	c := NewCrossChainClient(cfg)
	status, err := c.MakeBranchTransaction("deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "ok" {
		t.Fatalf("expected ok, got %q", status)
	}
}

func TestGetBranchChainTransaction_Found(t *testing.T) {
	tx := &consensus.Tx{Type: consensus.TX_TYPE_NORMAL}
	txBytes, err := tx.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	wantHash, err := tx.TxHash()
	if err != nil {
		t.Fatalf("TxHash: %v", err)
	}

	_, cfg := newTestServer(t, func(method string, params []json.RawMessage) (interface{}, *jsonRPCError) {
		return map[string]interface{}{
			"hex":           hex.EncodeToString(txBytes),
			"confirmations": 42,
		}, nil
	})
	c := NewCrossChainClient(cfg)
	confs, hash, found, err := c.GetBranchChainTransaction(1, wantHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if confs != 42 {
		t.Fatalf("expected 42 confirmations, got %d", confs)
	}
	if hash != wantHash {
		t.Fatalf("hash mismatch: got %x want %x", hash, wantHash)
	}
}

func TestGetBranchChainTransaction_ProtocolErrorMeansNotFound(t *testing.T) {
	_, cfg := newTestServer(t, func(method string, params []json.RawMessage) (interface{}, *jsonRPCError) {
		return nil, &jsonRPCError{Code: -1, Message: "no such tx"}
	})
	c := NewCrossChainClient(cfg)
	var h [32]byte
	_, _, found, err := c.GetBranchChainTransaction(1, h)
	if err != nil {
		t.Fatalf("a peer-reported not-found should not surface as an error: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestGetBranchChainTransaction_TransportFailureIsConnectionFailed(t *testing.T) {
	c := NewCrossChainClient(BranchConfig{IP: "127.0.0.1", Port: 1}) // nothing listening
	var h [32]byte
	_, _, _, err := c.GetBranchChainTransaction(1, h)
	if err == nil {
		t.Fatal("expected a transport error")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Kind != ConnectionFailed {
		t.Fatalf("expected ConnectionFailed, got %v", rpcErr.Kind)
	}
}

func TestGetAnchorTx_FallsBackFromReportToProve(t *testing.T) {
	tx := &consensus.Tx{Type: consensus.TX_TYPE_REPORT, ReportType: consensus.REPORT_TYPE_MERKLETREE, ReportedBranchID: 7}
	txBytes, err := tx.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var preout [32]byte
	preout[0] = 0x55

	_, cfg := newTestServer(t, func(method string, params []json.RawMessage) (interface{}, *jsonRPCError) {
		switch method {
		case "getreporttxdata":
			return nil, &jsonRPCError{Message: "no report tx"}
		case "getprovetxdata":
			return map[string]interface{}{
				"txhex":               hex.EncodeToString(txBytes),
				"confirmations":       10,
				"preminecoinvouthash": hex.EncodeToString(preout[:]),
			}, nil
		default:
			t.Fatalf("unexpected method %q", method)
			return nil, nil
		}
	})
	c := NewCrossChainClient(cfg)
	var anchor [32]byte
	confs, branchID, coinPreout, found, err := c.GetAnchorTx(anchor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if confs != 10 || branchID != 7 || coinPreout != preout {
		t.Fatalf("unexpected result: confs=%d branchID=%d coinPreout=%x", confs, branchID, coinPreout)
	}
}
