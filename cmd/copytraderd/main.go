// Package main provides the copytraderd daemon: it watches subscribed
// leader wallets for swaps and clones each one for every subscriber.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solcopy/engine/internal/cloner"
	"github.com/solcopy/engine/internal/collaborators"
	"github.com/solcopy/engine/internal/config"
	"github.com/solcopy/engine/internal/dedup"
	"github.com/solcopy/engine/internal/dispatcher"
	"github.com/solcopy/engine/internal/feed"
	"github.com/solcopy/engine/internal/ingest"
	"github.com/solcopy/engine/internal/ledger"
	"github.com/solcopy/engine/internal/orchestrator"
	"github.com/solcopy/engine/internal/poller"
	"github.com/solcopy/engine/internal/pretrade"
	"github.com/solcopy/engine/internal/store"
	"github.com/solcopy/engine/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.solcopy", "Data directory")
		configFile  = flag.String("config", "", "Path in the config directory; config.yaml is read from this path's directory, the file name is ignored (default: <data-dir>/config.yaml)")
		rpcEndpoint = flag.String("rpc", "", "Solana RPC endpoint, overrides config")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		signerPass  = flag.String("signer-passphrase", "", "Passphrase protecting local trading-wallet keys (or set SOLCOPY_SIGNER_PASSPHRASE)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("copytraderd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	configDir := *dataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	if *rpcEndpoint != "" {
		cfg.RPC.Endpoint = *rpcEndpoint
	}
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = *dataDir

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("config loaded", "path", config.ConfigPath(configDir))

	passphrase := *signerPass
	if passphrase == "" {
		passphrase = os.Getenv("SOLCOPY_SIGNER_PASSPHRASE")
	}
	if passphrase == "" {
		log.Fatal("no signer passphrase given (use -signer-passphrase or SOLCOPY_SIGNER_PASSPHRASE)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	defer st.Close()
	log.Info("store opened", "path", cfg.DBPath())

	rpcClient := rpc.New(cfg.RPC.Endpoint)

	dedupSet := dedup.New(dedup.MinCapacityPerLeader)
	streamClient := ingest.NewClient(cfg.RPC.StreamEndpoint, cfg.RPC.FallbackStreamEndpoints, cfg.RPC.StreamReconnectCap(), dedupSet, log)
	pollSvc := poller.New(rpcClient, cfg.RPC.PollInterval(), dedupSet, log)
	leaderFeed := feed.New(streamClient, pollSvc, log)

	leaders, err := activeLeaders(ctx, st)
	if err != nil {
		log.Fatal("failed to load active leader subscriptions", "error", err)
	}
	leaderFeed.SetLeaders(leaders)
	log.Info("watching leaders", "count", len(leaders))

	go leaderFeed.Run(ctx)
	go refreshLeaders(ctx, st, leaderFeed, log)

	apiManager := collaborators.NewHTTPApiManager(cfg.Api)
	notifier := collaborators.NewEventNotifier()
	signers := collaborators.NewLocalSignerFactory(st, passphrase)

	// Jito/direct-leader targeting has no grounded concrete implementation
	// in this engine (spec treats it as a free-internals collaborator);
	// leaving it nil disables the dispatcher's bundle-submission path and
	// falls back to plain SendTransactionWithOpts.
	var leaderTracker collaborators.LeaderTracker

	collab := collaborators.New(rpcClient, apiManager, notifier, st, leaderTracker, signers)

	ldgr := ledger.New(st)
	if err := rebuildLedger(ctx, ldgr, st); err != nil {
		log.Warn("ledger rebuild incomplete", "error", err)
	}

	tipPolicy := dispatcher.TipPolicy{Enabled: cfg.Jito.Enabled, TipLamports: cfg.Jito.TipLamports}
	disp := dispatcher.New(rpcClient, cfg.Trading, tipPolicy, leaderTracker, log)

	chainReader := cloner.NewRPCChainReader(rpcClient)
	orch := orchestrator.New(collab, ldgr, disp, chainReader, log)
	go orch.Run(ctx, leaderFeed.Events())

	preTradeCache := pretrade.New(apiManager, cfg.PreTrade, log)
	preTradeCache.Start(ctx)

	log.Info("copytraderd started", "version", version, "commit", commit, "rpc", cfg.RPC.Endpoint)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down...")

	cancel()
	preTradeCache.Stop()
	if err := leaderFeed.Close(); err != nil {
		log.Error("error closing feed", "error", err)
	}

	log.Info("goodbye")
}

// activeLeaders returns the distinct leader pubkeys of every active
// subscription, the initial (and periodically refreshed) watch set for
// the feed.
func activeLeaders(ctx context.Context, st store.Store) ([]solana.PublicKey, error) {
	subs, err := st.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[solana.PublicKey]bool{}
	var out []solana.PublicKey
	for _, sub := range subs {
		if seen[sub.LeaderPubkey] {
			continue
		}
		seen[sub.LeaderPubkey] = true
		out = append(out, sub.LeaderPubkey)
	}
	return out, nil
}

// refreshLeaders periodically re-reads active subscriptions so a newly
// added or deactivated subscription is reflected in the feed's watch set
// without a restart.
func refreshLeaders(ctx context.Context, st store.Store, f *feed.Feed, log *logging.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			leaders, err := activeLeaders(ctx, st)
			if err != nil {
				log.Warn("refresh active leaders failed", "error", err)
				continue
			}
			f.SetLeaders(leaders)
		}
	}
}

// rebuildLedger reloads every subscriber's open positions from the store
// at startup (spec §4.5 "rebuild on restart"), deriving the (chat ID,
// mint) pairs from each subscription owner's own position rows since the
// ledger has no other way to discover which mints a user holds.
func rebuildLedger(ctx context.Context, ldgr *ledger.Ledger, st store.Store) error {
	subs, err := st.ListActiveSubscriptions(ctx)
	if err != nil {
		return err
	}

	seenChatIDs := map[int64]bool{}
	var keys []ledger.RebuildKey
	for _, sub := range subs {
		if seenChatIDs[sub.OwnerChatID] {
			continue
		}
		seenChatIDs[sub.OwnerChatID] = true

		positions, err := st.ListOpenPositions(ctx, sub.OwnerChatID)
		if err != nil {
			return err
		}
		for _, p := range positions {
			keys = append(keys, ledger.RebuildKey{ChatID: p.UserChatID, Mint: p.Mint})
		}
	}
	return ldgr.Rebuild(ctx, keys)
}
