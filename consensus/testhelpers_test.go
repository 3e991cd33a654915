package consensus

import "testing"

// mustTxErrCode unwraps err as a *TxError and returns its Code, failing the
// test immediately if err is not of that type.
func mustTxErrCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	te, ok := err.(*TxError)
	if !ok {
		t.Fatalf("expected *TxError, got %T: %v", err, err)
	}
	return te.Code
}
