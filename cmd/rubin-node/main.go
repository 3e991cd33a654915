package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/node"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main's testable body: it builds the cobra command tree and
// executes it against explicit argv/stdout/stderr rather than the
// process globals, the same seam the teacher's flag-based main used
// (there argv came from flag.Parse, here from cobra).
func run(args []string, stdout, stderr *os.File) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr *os.File) *cobra.Command {
	log := logrus.New()
	log.SetOutput(stderr)

	defaults := node.DefaultConfig()
	cfg := defaults
	var peerCSV string
	var peerRepeat []string
	var branchID uint32
	var keystorePath string
	var keystoreKEKHex string
	var branchConfigPath string

	root := &cobra.Command{
		Use:           "rubin-node",
		Short:         "rubin-node runs and inspects a rubin chain daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.Network, "network", defaults.Network, "network name (devnet/testnet/mainnet)")
	root.PersistentFlags().StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	root.PersistentFlags().StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "bind address host:port")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	root.PersistentFlags().IntVar(&cfg.MaxPeers, "max-peers", defaults.MaxPeers, "max connected peers")
	root.PersistentFlags().StringVar(&peerCSV, "peers", "", "bootstrap peers, comma-separated host:port")
	root.PersistentFlags().StringArrayVar(&peerRepeat, "peer", nil, "single bootstrap peer host:port (repeatable)")
	root.PersistentFlags().Uint32Var(&branchID, "branch-id", consensus.MAIN_BRANCH_ID, "branch id this node instance serves")
	root.PersistentFlags().StringVar(&keystorePath, "keystore", "", "path to an operator keystore, enables local mining")
	root.PersistentFlags().StringVar(&keystoreKEKHex, "keystore-kek-hex", "", "hex-encoded 32-byte key-encryption-key for --keystore")
	root.PersistentFlags().StringVar(&branchConfigPath, "branch-config", "", "path to a branch/main crosschain RPC topology file")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
		if err != nil {
			return fmt.Errorf("invalid log-level: %w", err)
		}
		log.SetLevel(level)
		cfg.Peers = node.NormalizePeers(append([]string{peerCSV}, peerRepeat...)...)
		return nil
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newStartCmd(&cfg, &branchID, &keystorePath, &keystoreKEKHex, &branchConfigPath, log))
	root.AddCommand(newChainIDCmd())
	root.AddCommand(newTxIDCmd())
	root.AddCommand(newSignalsCmd())
	root.AddCommand(newKeystoreCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the daemon build identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "rubin-node (devnet build)")
			return nil
		},
	}
}

func newStartCmd(cfg *node.Config, branchID *uint32, keystorePath, keystoreKEKHex, branchConfigPath *string, log *logrus.Logger) *cobra.Command {
	var chainIDHex string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "run the daemon: open storage, connect peers, mine if a keystore is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := node.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
				return fmt.Errorf("datadir create failed: %w", err)
			}
			if strings.TrimSpace(chainIDHex) == "" {
				return fmt.Errorf("--chain-id-hex is required")
			}

			var kek []byte
			if strings.TrimSpace(*keystoreKEKHex) != "" {
				raw, err := hex.DecodeString(strings.TrimSpace(*keystoreKEKHex))
				if err != nil {
					return fmt.Errorf("keystore-kek-hex: %w", err)
				}
				kek = raw
			}

			d, err := node.NewDaemon(*cfg, node.DaemonOptions{
				ChainIDHex:       chainIDHex,
				BranchID:         *branchID,
				KeystorePath:     *keystorePath,
				KeystoreKEK:      kek,
				BranchConfigPath: *branchConfigPath,
			}, log)
			if err != nil {
				return fmt.Errorf("daemon init: %w", err)
			}
			defer d.Close()

			log.WithFields(logrus.Fields{
				"network":   cfg.Network,
				"datadir":   cfg.DataDir,
				"branch_id": *branchID,
				"mining":    d.Miner != nil,
				"peers":     len(cfg.Peers),
			}).Info("rubin-node starting")

			if dryRun {
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = d.Run(ctx)
			if err != nil && ctx.Err() != nil {
				log.Info("rubin-node stopped")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&chainIDHex, "chain-id-hex", "", "64-hex-character chain id this datadir is scoped to")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "open the daemon, log effective config, and exit without networking")
	return cmd
}

func newChainIDCmd() *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "chain-id",
		Short: "derive a chain_id from a chain instance profile document",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, cleanup, err := node.LoadCryptoProvider()
			if err != nil {
				return err
			}
			defer cleanup()
			id, err := node.DeriveChainID(provider, profilePath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(id[:]))
			return nil
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "path to a chain instance profile document, relative to spec/")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newTxIDCmd() *cobra.Command {
	var txHex string
	cmd := &cobra.Command{
		Use:   "txid",
		Short: "compute the TxHash of a hex-encoded transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := node.TxIDHex(txHex)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&txHex, "tx-hex", "", "hex-encoded transaction bytes")
	_ = cmd.MarkFlagRequired("tx-hex")
	return cmd
}

// newSignalsCmd reports a feature bit deployment's state given a
// caller-supplied list of per-window signal counts, wrapping
// consensus.FeatureBitStateAtHeightFromWindowCounts. It takes counts
// rather than scanning headers itself: computing a real window count
// needs a version-bit-tagged header range this store layer doesn't
// expose a dedicated scan for yet, so an operator (or a future `status`
// command backed by one) supplies it directly.
func newSignalsCmd() *cobra.Command {
	var name string
	var bit uint8
	var startHeight, timeoutHeight, height uint64
	var windowCountsCSV string

	cmd := &cobra.Command{
		Use:   "signals",
		Short: "evaluate a feature bit deployment's BIP9-style state at a height",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := consensus.FeatureBitDeployment{Name: name, Bit: bit, StartHeight: startHeight, TimeoutHeight: timeoutHeight}
			var counts []uint32
			if strings.TrimSpace(windowCountsCSV) != "" {
				for _, tok := range strings.Split(windowCountsCSV, ",") {
					n, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 32)
					if err != nil {
						return fmt.Errorf("window-signal-counts: %w", err)
					}
					counts = append(counts, uint32(n))
				}
			}
			eval, err := consensus.FeatureBitStateAtHeightFromWindowCounts(d, height, counts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state=%s boundary_height=%d prev_window_signal_count=%d signal_window=%d signal_threshold=%d\n",
				eval.State, eval.BoundaryHeight, eval.PrevWindowSignalCnt, eval.SignalWindow, eval.SignalThreshold)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "deployment name")
	cmd.Flags().Uint8Var(&bit, "bit", 0, "version bit (0-31)")
	cmd.Flags().Uint64Var(&startHeight, "start-height", 0, "deployment start height")
	cmd.Flags().Uint64Var(&timeoutHeight, "timeout-height", 0, "deployment timeout height")
	cmd.Flags().Uint64Var(&height, "height", 0, "height to evaluate state at")
	cmd.Flags().StringVar(&windowCountsCSV, "window-signal-counts", "", "comma-separated per-window signal counts, oldest window first")
	return cmd
}

func newKeystoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keystore",
		Short: "manage a wrapped operator keystore",
	}
	cmd.AddCommand(newKeystoreExportCmd())
	cmd.AddCommand(newKeystoreImportCmd())
	cmd.AddCommand(newKeystoreVerifyCmd())
	return cmd
}

func newKeystoreExportCmd() *cobra.Command {
	var out, pubkeyHex, skHex, kekHex string
	var suiteID uint8
	cmd := &cobra.Command{
		Use:   "export",
		Short: "wrap a secret key under a KEK and write a keystore document",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, cleanup, err := node.LoadCryptoProvider()
			if err != nil {
				return err
			}
			defer cleanup()
			return node.ExportWrapped(provider, out, suiteID, pubkeyHex, skHex, kekHex)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output keystore path")
	cmd.Flags().StringVar(&pubkeyHex, "pubkey-hex", "", "hex-encoded public key")
	cmd.Flags().StringVar(&skHex, "sk-hex", "", "hex-encoded secret key")
	cmd.Flags().StringVar(&kekHex, "kek-hex", "", "hex-encoded 32-byte key-encryption-key")
	cmd.Flags().Uint8Var(&suiteID, "suite-id", 0, "signature suite id")
	for _, f := range []string{"out", "pubkey-hex", "sk-hex", "kek-hex"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newKeystoreImportCmd() *cobra.Command {
	var in, out, oldKekHex, newKekHex string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "re-wrap a keystore's secret key under a new KEK",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, cleanup, err := node.LoadCryptoProvider()
			if err != nil {
				return err
			}
			defer cleanup()
			return node.ImportWrapped(provider, in, out, oldKekHex, newKekHex)
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "input keystore path")
	cmd.Flags().StringVar(&out, "out", "", "output keystore path")
	cmd.Flags().StringVar(&oldKekHex, "old-kek-hex", "", "hex-encoded current 32-byte KEK")
	cmd.Flags().StringVar(&newKekHex, "new-kek-hex", "", "hex-encoded new 32-byte KEK")
	for _, f := range []string{"in", "out", "old-kek-hex", "new-kek-hex"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newKeystoreVerifyCmd() *cobra.Command {
	var in, expectedKeyIDHex string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "check a keystore's embedded key_id against SHA3-256(pubkey)",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, cleanup, err := node.LoadCryptoProvider()
			if err != nil {
				return err
			}
			defer cleanup()
			keyID, err := node.VerifyPubkey(provider, in, expectedKeyIDHex)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keyID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "keystore path")
	cmd.Flags().StringVar(&expectedKeyIDHex, "expect-key-id-hex", "", "optional expected key_id to check against")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
