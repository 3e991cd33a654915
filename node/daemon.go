package node

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/rubinchain/rubin-node/branch"
	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/crosschain"
	"github.com/rubinchain/rubin-node/crypto"
	"github.com/rubinchain/rubin-node/miner"
	"github.com/rubinchain/rubin-node/node/p2p"
	"github.com/rubinchain/rubin-node/node/store"
	"github.com/rubinchain/rubin-node/vm"
)

// networkMagic distinguishes this network's wire messages from any
// other RUBIN-derived network sharing a listen port range in a
// devnet/testnet setup; it is not consensus-critical.
const networkMagic uint32 = 0x52425430 // "RBT0"

const contractExecutorWorkers = 4

// Daemon composes every long-running subsystem a rubin-node process
// needs: block/UTXO storage (store.DB), branch dispute state
// (branch.BranchDb), parallel contract execution (vm.MultiContractExecutor),
// stake-signed block production (miner.Miner), cross-chain RPC clients
// (crosschain.Registry), and the P2P peer set. cmd/rubin-node's `start`
// command builds one of these and runs it; nothing here is reachable
// from a binary except through that path, closing the gap between the
// standalone consensus/branch/vm/miner packages and an actual daemon.
type Daemon struct {
	Cfg           Config
	ChainID       [32]byte
	Log           *logrus.Logger
	Crypto        crypto.CryptoProvider
	cryptoCleanup func()

	DB         *store.DB
	BranchDB   *branch.BranchDb
	Executor   *vm.MultiContractExecutor
	Verifier   *KeyOwnershipVerifier
	Branch     *BranchAdapter
	CrossChain *crosschain.Registry

	KeyStore *KeyStore
	Miner    *miner.Miner
}

// DaemonOptions carries the pieces NewDaemon can't derive from Config
// alone: the chain this datadir is scoped to, an optional operator
// keystore (nil disables local mining), and an optional branch/main
// RPC topology file (nil disables every branch-protocol tx type that
// needs a live cross-chain RPC).
type DaemonOptions struct {
	ChainIDHex       string
	BranchID         uint32
	KeystorePath     string
	KeystoreKEK      []byte
	BranchConfigPath string
}

// NewDaemon opens every store and binds every collaborator, but does
// not start networking or mining — that is Run's job, so a caller can
// inspect/validate a freshly opened Daemon (e.g. `rubin-node status`)
// without also standing up a listener.
func NewDaemon(cfg Config, opts DaemonOptions, log *logrus.Logger) (*Daemon, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	chainID, err := ParseChainIDHex(opts.ChainIDHex)
	if err != nil {
		return nil, err
	}

	provider, cleanup, err := LoadCryptoProvider()
	if err != nil {
		return nil, fmt.Errorf("daemon: crypto provider: %w", err)
	}

	db, err := store.Open(cfg.DataDir, opts.ChainIDHex)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("daemon: store: %w", err)
	}
	branchDB, err := branch.OpenBranchDb(db.BoltDB())
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("daemon: branch db: %w", err)
	}

	registry := &crosschain.Registry{}
	if opts.BranchConfigPath != "" {
		v := viper.New()
		v.SetConfigFile(opts.BranchConfigPath)
		if err := v.ReadInConfig(); err != nil {
			cleanup()
			return nil, fmt.Errorf("daemon: read branch config: %w", err)
		}
		registry, err = crosschain.LoadRegistry(v, "branches")
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("daemon: load branch registry: %w", err)
		}
	}

	executor := vm.NewMultiContractExecutor(contractExecutorWorkers, func() vm.ContractRuntime { return vm.NewNoopRuntime() })
	verifier := &KeyOwnershipVerifier{Provider: provider}
	branchAdapter := &BranchAdapter{Self: opts.BranchID, DB: db, BranchDB: branchDB, Sig: verifier, CrossChain: registry}

	d := &Daemon{
		Cfg:           cfg,
		ChainID:       chainID,
		Log:           log,
		Crypto:        provider,
		cryptoCleanup: cleanup,
		DB:            db,
		BranchDB:      branchDB,
		Executor:      executor,
		Verifier:      verifier,
		Branch:        branchAdapter,
		CrossChain:    registry,
	}

	if opts.KeystorePath != "" {
		ks, err := OpenKeyStore(opts.KeystorePath, opts.KeystoreKEK, provider, nil)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("daemon: keystore: %w", err)
		}
		keyID20, err := keyID20FromHex(ks.KeyIDHex())
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("daemon: keystore key-id: %w", err)
		}
		d.KeyStore = ks
		d.Miner = &miner.Miner{
			BranchID: opts.BranchID,
			Policy:   miner.DefaultTemplatePolicy(),
			Executor: executor,
			Coins:    &LocalMortgageCoinSource{DB: db, KeyID20: keyID20},
			Signer:   ks,
		}
	}

	return d, nil
}

// Close releases the crypto provider (and, transitively, any wolfcrypt
// dylib handle) and the store's bbolt file. It does not close peer
// connections started by Run; cancel Run's context first.
func (d *Daemon) Close() error {
	if d.cryptoCleanup != nil {
		d.cryptoCleanup()
	}
	return d.DB.Close()
}

// applyDeps builds the consensus-layer collaborator bundle store.ApplyBlock
// needs for the block currently at the chain's tip's contract post-state.
func (d *Daemon) applyDeps(parentPost vm.MapContractContext) store.ApplyDeps {
	return store.ApplyDeps{
		Verifier:   d.Verifier,
		Branch:     d.Branch,
		Executor:   d.Executor,
		ParentPost: parentPost,
	}
}

// ImportBlock runs a raw block through Stage0-5: header/ancestry
// checks and fork-choice (ImportStage0To3, inside ApplyBlockIfBestTip),
// then full body validation and UTXO/contract-state mutation
// (ApplyBlock, reached internally once ApplyBlockIfBestTip decides the
// candidate can attach directly) if it becomes the new best tip.
func (d *Daemon) ImportBlock(blockBytes []byte, parentPost vm.MapContractContext) (store.ApplyDecision, error) {
	now := time.Now()
	return d.DB.ApplyBlockIfBestTip(d.Crypto, d.ChainID, blockBytes, store.ApplyOptions{
		LocalTime:    uint64(now.Unix()),
		LocalTimeSet: true,
		Deps:         d.applyDeps(parentPost),
	})
}

// Run dials the configured peer set and drives each connection's
// message loop until ctx is cancelled. Each peer is dialed in its own
// goroutine at startup and is not retried on disconnect; a production
// deployment's peer manager (reconnect/backoff, inbound listener,
// address discovery) is out of scope for this pass — see DESIGN.md.
func (d *Daemon) Run(ctx context.Context) error {
	handler := &daemonPeerHandler{d: d}
	if len(d.Cfg.Peers) == 0 {
		d.Log.Info("no bootstrap peers configured, running storage/mining only")
	}
	for _, addr := range d.Cfg.Peers {
		addr := addr
		go func() {
			if err := d.runPeer(ctx, addr, handler); err != nil && ctx.Err() == nil {
				d.Log.WithError(err).WithField("peer", addr).Warn("peer session ended")
			}
		}()
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *Daemon) runPeer(ctx context.Context, addr string, handler p2p.PeerHandler) error {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	peer, err := p2p.NewPeer(conn, p2p.PeerRoleOutbound, p2p.PeerConfig{
		Magic:        networkMagic,
		LocalChainID: d.ChainID,
		Crypto:       d.Crypto,
		OurVersion: p2p.VersionPayload{
			ProtocolVersion: p2p.ProtocolVersionV1,
			Timestamp:       uint64(time.Now().Unix()),
			UserAgent:       "rubin-node",
			Relay:           true,
		},
		IdleTimeout: 5 * time.Minute,
	})
	if err != nil {
		return err
	}
	d.Log.WithField("peer", addr).Info("connected")
	return peer.Run(ctx, handler)
}

// daemonPeerHandler implements p2p.PeerHandler against a Daemon's
// store. Header-locator response (OnGetHeaders) is left minimal —
// returning no headers rather than walking a chain-index locator — since
// building that walk needs a height->hash forward index this store
// layer does not maintain yet; a peer asking us for headers simply
// gets an empty response instead of new work landing on it.
type daemonPeerHandler struct {
	d *Daemon
}

func (h *daemonPeerHandler) OnHeaders(peer *p2p.Peer, headers []consensus.BlockHeader) error {
	h.d.Log.WithField("count", len(headers)).Debug("received headers")
	return nil
}

func (h *daemonPeerHandler) OnInv(peer *p2p.Peer, vecs []p2p.InvVector) error {
	var want []p2p.InvVector
	for _, v := range vecs {
		if v.Type != p2p.InvTypeBlock {
			continue
		}
		if _, ok, err := h.d.DB.GetIndex(v.Hash); err == nil && !ok {
			want = append(want, v)
		}
	}
	if len(want) == 0 {
		return nil
	}
	payload, err := p2p.EncodeInvPayload(want)
	if err != nil {
		return err
	}
	return peer.Send(p2p.CmdGetData, payload)
}

func (h *daemonPeerHandler) OnGetData(peer *p2p.Peer, vecs []p2p.InvVector) error {
	var notFound []p2p.InvVector
	for _, v := range vecs {
		if v.Type != p2p.InvTypeBlock {
			continue
		}
		blockBytes, ok, err := h.d.DB.GetBlockBytes(v.Hash)
		if err != nil || !ok {
			notFound = append(notFound, v)
			continue
		}
		if err := peer.Send(p2p.CmdBlock, blockBytes); err != nil {
			return err
		}
	}
	if len(notFound) > 0 {
		payload, err := p2p.EncodeInvPayload(notFound)
		if err != nil {
			return err
		}
		return peer.Send(p2p.CmdNotFound, payload)
	}
	return nil
}

func (h *daemonPeerHandler) OnNotFound(peer *p2p.Peer, vecs []p2p.InvVector) error {
	h.d.Log.WithField("count", len(vecs)).Debug("peer reported notfound")
	return nil
}

func (h *daemonPeerHandler) OnGetHeaders(peer *p2p.Peer, req *p2p.GetHeadersPayload) ([]consensus.BlockHeader, error) {
	return nil, nil
}

func (h *daemonPeerHandler) OnBlock(peer *p2p.Peer, blockBytes []byte) error {
	decision, err := h.d.ImportBlock(blockBytes, vm.MapContractContext{})
	if err != nil {
		h.d.Log.WithError(err).Warn("block import failed")
		return err
	}
	h.d.Log.WithField("decision", decision).Info("block imported")
	return nil
}

func (h *daemonPeerHandler) OnTx(peer *p2p.Peer, txBytes []byte) error {
	// Mempool admission is out of scope for this pass: transactions
	// only reach chainstate inside a block today.
	return nil
}
