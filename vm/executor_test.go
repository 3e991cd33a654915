package vm

import (
	"testing"

	"github.com/golang/snappy"
	"github.com/rubinchain/rubin-node/consensus"
)

// fakeRuntime is a minimal ContractRuntime stand-in: it records loaded
// code by address and dispatches Invoke by function name to a
// per-instance handler table, letting tests script contract behavior
// (internal calls, send_coins, fuel spend) without a real interpreter.
type fakeRuntime struct {
	code map[ContractID][]byte
	fns  map[string]func(args []byte, host HostCalls) ([]byte, int32, error)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{code: map[ContractID][]byte{}, fns: map[string]func([]byte, HostCalls) ([]byte, int32, error){}}
}

func (r *fakeRuntime) Load(addr ContractID, code []byte) error {
	r.code[addr] = code
	return nil
}

func (r *fakeRuntime) Invoke(addr ContractID, fn string, args []byte, host HostCalls, fuel int32) ([]byte, int32, error) {
	h, ok := r.fns[fn]
	if !ok {
		return nil, 1, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "unknown fn "+fn)
	}
	return h(args, host)
}

func (r *fakeRuntime) Dump(addr ContractID) ([]byte, error) {
	return r.code[addr], nil
}

func addr(b byte) ContractID {
	var a ContractID
	a[0] = b
	return a
}

func TestPublishThenCallRoundTrip(t *testing.T) {
	rt := newFakeRuntime()
	rt.fns["greet"] = func(args []byte, host HostCalls) ([]byte, int32, error) {
		return append([]byte("hello, "), args...), 5, nil
	}
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))

	tx := &consensus.Tx{Type: consensus.TX_TYPE_PUBLISH_CONTRACT, ContractAddr: addr(1), ContractCode: []byte("code")}
	if _, err := exec.ExecuteTx(tx, 0, ExecuteEnv{}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	call := &consensus.Tx{Type: consensus.TX_TYPE_CALL_CONTRACT, ContractAddr: addr(1), ContractFn: "greet", ContractArgs: []byte("world")}
	out, err := exec.ExecuteTx(call, 1, ExecuteEnv{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(out.ReturnValue) != "hello, world" {
		t.Fatalf("got %q", out.ReturnValue)
	}
	if out.RunningTimes != 5 {
		t.Fatalf("running_times = %d, want 5", out.RunningTimes)
	}
}

func TestPublish_DecompressesSnappyEncodedCode(t *testing.T) {
	rt := newFakeRuntime()
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))

	source := []byte("function greet(name) return 'hello, ' .. name end")
	compressed := snappy.Encode(nil, source)
	if err := exec.Publish(addr(1), compressed); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if string(rt.code[addr(1)]) != string(source) {
		t.Fatalf("runtime got %q, want decompressed %q", rt.code[addr(1)], source)
	}
}

func TestPublish_PlainCodePassesThroughUnchanged(t *testing.T) {
	rt := newFakeRuntime()
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))

	source := []byte("function greet(name) return 'hello, ' .. name end")
	if err := exec.Publish(addr(1), source); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if string(rt.code[addr(1)]) != string(source) {
		t.Fatalf("runtime got %q, want unchanged %q", rt.code[addr(1)], source)
	}
}

func TestCall_UnknownAddressRejected(t *testing.T) {
	rt := newFakeRuntime()
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))
	call := &consensus.Tx{Type: consensus.TX_TYPE_CALL_CONTRACT, ContractAddr: addr(9), ContractFn: "x"}
	if _, err := exec.ExecuteTx(call, 0, ExecuteEnv{}); err == nil {
		t.Fatalf("expected error calling unpublished address")
	}
}

func TestCall_ReentrancyRejected(t *testing.T) {
	rt := newFakeRuntime()
	a, b := addr(1), addr(2)
	rt.fns["a"] = func(args []byte, host HostCalls) ([]byte, int32, error) {
		ret, err := host.InternalCall(b, "b", nil)
		return ret, 1, err
	}
	rt.fns["b"] = func(args []byte, host HostCalls) ([]byte, int32, error) {
		ret, err := host.InternalCall(a, "a", nil) // calls back into a, already on stack
		return ret, 1, err
	}
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))
	exec.data[a] = ContractContext{}
	exec.data[b] = ContractContext{}

	out := &VMOut{TxPrevData: MapContractContext{}, ContractCoinsOut: map[ContractID]int64{}}
	fuel := int32(1000)
	if _, err := exec.Call(a, "a", nil, out, &fuel); err == nil {
		t.Fatalf("expected reentrancy rejection")
	}
}

func TestCall_DepthLimitRejected(t *testing.T) {
	rt := newFakeRuntime()
	rt.fns["loop"] = func(args []byte, host HostCalls) ([]byte, int32, error) {
		// each level calls a fresh address with the same fn, growing the stack.
		var nn ContractID
		copy(nn[:], args)
		nn[19]++
		ret, err := host.InternalCall(nn, "loop", nn[:])
		return ret, 1, err
	}
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))
	for i := 0; i < maxInternalCallNum+5; i++ {
		var a ContractID
		a[19] = byte(i)
		exec.data[a] = ContractContext{}
	}
	self := ContractID{} // a[19] == 0, the first prepopulated address

	out := &VMOut{TxPrevData: MapContractContext{}, ContractCoinsOut: map[ContractID]int64{}}
	fuel := int32(1000000)
	var start [20]byte
	if _, err := exec.Call(self, "loop", start[:], out, &fuel); err == nil {
		t.Fatalf("expected depth-limit rejection")
	}
}

func TestCall_FuelExhaustionRejected(t *testing.T) {
	rt := newFakeRuntime()
	rt.fns["spend"] = func(args []byte, host HostCalls) ([]byte, int32, error) {
		return nil, 1000000, nil // consumes far more than available fuel
	}
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))
	self := addr(1)
	exec.data[self] = ContractContext{}

	out := &VMOut{TxPrevData: MapContractContext{}, ContractCoinsOut: map[ContractID]int64{}}
	fuel := int32(10)
	if _, err := exec.Call(self, "spend", nil, out, &fuel); err == nil {
		t.Fatalf("expected out-of-fuel rejection")
	}
}

func TestSendCoins_ExceedsBalanceRejected(t *testing.T) {
	rt := newFakeRuntime()
	self := addr(1)
	rt.fns["pay"] = func(args []byte, host HostCalls) ([]byte, int32, error) {
		return nil, 1, host.SendCoins([]byte{0x76, 0xa9}, 100)
	}
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))
	exec.data[self] = ContractContext{}
	exec.env = ExecuteEnv{
		OutsideBalance: func(ContractID) (int64, error) { return 10, nil },
	}

	out := &VMOut{TxPrevData: MapContractContext{}, ContractCoinsOut: map[ContractID]int64{}}
	fuel := int32(1000)
	if _, err := exec.Call(self, "pay", nil, out, &fuel); err == nil {
		t.Fatalf("expected send_coins to reject amount exceeding balance")
	}
}

func TestSendCoins_WithinBalanceRecorded(t *testing.T) {
	rt := newFakeRuntime()
	self := addr(1)
	rt.fns["pay"] = func(args []byte, host HostCalls) ([]byte, int32, error) {
		return nil, 1, host.SendCoins([]byte{0x76, 0xa9}, 5)
	}
	exec := NewContractExecutor(rt, newShellPool(1, func() ContractRuntime { return rt }))
	exec.data[self] = ContractContext{}
	exec.env = ExecuteEnv{
		OutsideBalance: func(ContractID) (int64, error) { return 10, nil },
	}

	out := &VMOut{TxPrevData: MapContractContext{}, ContractCoinsOut: map[ContractID]int64{}}
	fuel := int32(1000)
	if _, err := exec.Call(self, "pay", nil, out, &fuel); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(out.Recipients) != 1 || out.Recipients[0].Amount != 5 {
		t.Fatalf("expected one recipient of 5, got %v", out.Recipients)
	}
	if out.ContractCoinsOut[self] != 5 {
		t.Fatalf("contract_coins_out[self] = %d, want 5", out.ContractCoinsOut[self])
	}
}
