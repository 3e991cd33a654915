package miner

import (
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// TipNotifier fans out tip-changed events to subscribed local tooling:
// a connected subscriber gets pushed a tip-changed message the moment
// BroadcastTip is called. Subscribers that connect after a broadcast
// do not receive it.
type TipNotifier struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewTipNotifier() *TipNotifier {
	return &TipNotifier{conns: map[*websocket.Conn]struct{}{}}
}

func (n *TipNotifier) Subscribe(conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conns[conn] = struct{}{}
}

func (n *TipNotifier) Unsubscribe(conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.conns, conn)
}

type tipChangedMessage struct {
	BranchID uint32 `json:"branch_id"`
	Height   uint64 `json:"height"`
	Hash     string `json:"hash"`
}

// BroadcastTip pushes a tip-changed notification to every subscribed
// connection, dropping (and unsubscribing) any that error rather than
// letting one dead client block the others.
func (n *TipNotifier) BroadcastTip(branchID uint32, height uint64, hash [32]byte) {
	b, err := json.Marshal(tipChangedMessage{BranchID: branchID, Height: height, Hash: hex.EncodeToString(hash[:])})
	if err != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for c := range n.conns {
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			c.Close()
			delete(n.conns, c)
		}
	}
}
