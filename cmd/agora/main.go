package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cmwaters/agora"
	"github.com/cmwaters/agora/consensus"
	"github.com/cmwaters/agora/ledger"
	"github.com/cmwaters/agora/pkg/sign"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(LoadConfig()).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the cli. Flags of every subcommand default to cfg.
func newRootCmd(cfg Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "agora",
		Short:        "A ledger node agreeing on blocks with BA*",
		SilenceUsage: true,
	}
	root.AddCommand(newStartCmd(cfg), newGenesisCmd(cfg))
	return root
}

func newStartCmd(cfg Config) *cobra.Command {
	var txs []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run a node until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg, txs)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Moniker, "moniker", cfg.Moniker, "human readable node name used in logs")
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "libp2p listen multiaddr")
	flags.StringSliceVar(&cfg.Peers, "peer", cfg.Peers, "peer multiaddr including /p2p/ id (repeatable)")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory of the block store, in memory if empty")
	flags.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "gossip topic shared by the network")
	flags.StringVar(&cfg.KeySeed, "key-seed", cfg.KeySeed, "hex encoded 32 byte ed25519 seed, random if empty")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warn or error")
	flags.Int64Var(&cfg.Supply, "supply", cfg.Supply, "currency supply split across the genesis accounts")
	flags.BoolVar(&cfg.Observer, "observer", cfg.Observer, "follow the chain without voting")
	flags.IntVar(&cfg.Parameters.CommitteeSize, "committee-size", cfg.Parameters.CommitteeSize, "expected voters per step")
	flags.Float64Var(&cfg.Parameters.QuorumFraction, "quorum-fraction", cfg.Parameters.QuorumFraction, "fraction of the committee needed to win a step")
	flags.IntVar(&cfg.Parameters.BlockSize, "block-size", cfg.Parameters.BlockSize, "transactions per block")
	flags.DurationVar(&cfg.Parameters.ProposalTimeout, "proposal-timeout", cfg.Parameters.ProposalTimeout, "time to collect proposals")
	flags.DurationVar(&cfg.Parameters.VoteTimeout, "vote-timeout", cfg.Parameters.VoteTimeout, "time to collect votes per step")
	flags.StringArrayVar(&txs, "tx", nil, "transaction to submit on start as id:from:to:amount (repeatable)")
	return cmd
}

func newGenesisCmd(cfg Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Print the genesis block",
		RunE: func(cmd *cobra.Command, _ []string) error {
			genesis := ledger.Genesis(cfg.Parameters.BlockSize, cfg.Supply)
			fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\n", genesis.Hash())
			for _, tx := range genesis.Transactions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", tx.Recipient, tx.Amount)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cfg.Parameters.BlockSize, "block-size", cfg.Parameters.BlockSize, "transactions per block")
	cmd.Flags().Int64Var(&cfg.Supply, "supply", cfg.Supply, "currency supply split across the genesis accounts")
	return cmd
}

func run(ctx context.Context, cfg Config, rawTxs []string) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	logger.Info().Msg(cfg.DebugString())

	txs, err := parseTransactions(rawTxs)
	if err != nil {
		return err
	}

	var signer sign.Signer
	if !cfg.Observer {
		if signer, err = newSigner(cfg.KeySeed); err != nil {
			return err
		}
	}

	var store ledger.Store = ledger.NewMemStore()
	if cfg.DataDir != "" {
		if store, err = ledger.NewBadgerStore(cfg.DataDir); err != nil {
			return err
		}
	}
	chain, err := ledger.New(cfg.Parameters.BlockSize, cfg.Supply, ledger.WithStore(store), ledger.WithLogger(logger))
	if err != nil {
		return errors.Join(err, store.Close())
	}
	defer chain.Close()

	host, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		return err
	}
	defer host.Close()
	for _, addr := range host.Addrs() {
		logger.Info().Str("addr", fmt.Sprintf("%s/p2p/%s", addr, host.ID())).Msg("listening")
	}

	for _, p := range cfg.Peers {
		info, err := peer.AddrInfoFromString(p)
		if err != nil {
			return fmt.Errorf("parsing peer %q: %w", p, err)
		}
		if err := host.Connect(ctx, *info); err != nil {
			logger.Warn().Err(err).Str("peer", p).Msg("connecting to peer")
		}
	}

	node, err := agora.New(ctx, host, cfg.Namespace, signer, chain, cfg.Parameters, logger,
		consensus.WithRoundHook(func(s consensus.RoundSummary) {
			logger.Info().
				Int64("round", s.Round).
				Str("class", s.Classification.String()).
				Bool("empty", s.Empty).
				Int("height", chain.Len()-1).
				Msg("round complete")
		}),
	)
	if err != nil {
		return err
	}
	defer node.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- node.Start(ctx)
	}()

	for _, tx := range txs {
		if err := node.SubmitTransaction(ctx, tx); err != nil {
			logger.Warn().Err(err).Int64("tx", tx.ID).Msg("gossiping transaction")
		}
	}

	return <-errCh
}

func newLogger(cfg Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, err
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("moniker", cfg.Moniker).
		Logger(), nil
}

func newSigner(seed string) (sign.Signer, error) {
	if seed == "" {
		return sign.NewKeySigner(), nil
	}
	bz, err := hex.DecodeString(seed)
	if err != nil {
		return nil, fmt.Errorf("decoding key seed: %w", err)
	}
	return sign.NewKeySignerFromSeed(bz)
}

// parseTransactions reads transactions written as id:from:to:amount
func parseTransactions(raw []string) ([]consensus.Transaction, error) {
	txs := make([]consensus.Transaction, 0, len(raw))
	for _, r := range raw {
		parts := strings.Split(r, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("transaction %q must be id:from:to:amount", r)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("transaction id %q: %w", parts[0], err)
		}
		amount, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("transaction amount %q: %w", parts[3], err)
		}
		txs = append(txs, consensus.Transaction{ID: id, Sender: parts[1], Recipient: parts[2], Amount: amount})
	}
	return txs, nil
}
