package vm

import "github.com/rubinchain/rubin-node/consensus"

// hostCallbacks implements HostCalls for one running ContractExecutor
// call session: internal_call recurses back into Call (which itself
// re-enforces the reentrancy/depth invariants), send_coins and
// get_balance implement spec §4.1's balance formula
// (outside_balance + coins_in_this_tx - coins_out_this_tx).
type hostCallbacks struct {
	exec *ContractExecutor
	out  *VMOut
	fuel *int32
}

func (h *hostCallbacks) InternalCall(addr ContractID, fn string, args []byte) ([]byte, error) {
	return h.exec.Call(addr, fn, args, h.out, h.fuel)
}

func (h *hostCallbacks) self() (ContractID, error) {
	if len(h.exec.stack) == 0 {
		return ContractID{}, consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "no contract on call stack")
	}
	return h.exec.stack[len(h.exec.stack)-1].addr, nil
}

func (h *hostCallbacks) GetBalance(addr ContractID) (int64, error) {
	var outside int64
	if h.exec.env.OutsideBalance != nil {
		v, err := h.exec.env.OutsideBalance(addr)
		if err != nil {
			return 0, err
		}
		outside = v
	}
	in := h.exec.env.CoinsInThisTx[addr]
	out := h.out.ContractCoinsOut[addr]
	return outside + in - out, nil
}

func (h *hostCallbacks) SendCoins(scriptPubKey []byte, amount uint64) error {
	self, err := h.self()
	if err != nil {
		return err
	}
	balance, err := h.GetBalance(self)
	if err != nil {
		return err
	}
	if int64(amount) > balance {
		return consensus.NewError(consensus.TX_ERR_CONTRACT_INVALID, "send_coins: amount exceeds contract balance")
	}
	h.out.Recipients = append(h.out.Recipients, Recipient{ScriptPubKey: append([]byte(nil), scriptPubKey...), Amount: amount})
	if h.out.ContractCoinsOut == nil {
		h.out.ContractCoinsOut = map[ContractID]int64{}
	}
	h.out.ContractCoinsOut[self] += int64(amount)
	return nil
}
