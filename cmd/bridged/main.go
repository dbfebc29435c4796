// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package main provides the entrypoint of bridged, the quantum-protected
// cross-chain bridge daemon: it wires the swap store, chain adapters,
// quantum module, risk gate, pricing engine, and event pipeline into one
// orchestrator, then serves operator JSON-RPC and Prometheus scrapes
// until told to stop.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChainSafe/chaindb"
	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	logging "github.com/ipfs/go-log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/quantumbridge/bridge/alerts"
	"github.com/quantumbridge/bridge/chainadapter"
	"github.com/quantumbridge/bridge/chainadapter/contracts"
	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/config"
	"github.com/quantumbridge/bridge/crypto/auth"
	"github.com/quantumbridge/bridge/crypto/quantum"
	"github.com/quantumbridge/bridge/events"
	"github.com/quantumbridge/bridge/metrics"
	"github.com/quantumbridge/bridge/orchestrator"
	"github.com/quantumbridge/bridge/pricing"
	"github.com/quantumbridge/bridge/risk"
	"github.com/quantumbridge/bridge/rpc"
	"github.com/quantumbridge/bridge/swap"
)

var log = logging.Logger("bridged")

const (
	flagConfig          = "config"
	flagListenAddr      = "listen-address"
	flagPostgresURL     = "postgres-url"
	flagRedisAddr       = "redis-addr"
	flagEthRPC          = "eth-rpc"
	flagEthContract     = "eth-bridge-contract"
	flagEthSignerKey    = "eth-signer-key"
	flagEthChainID      = "eth-chain-id"
	flagRiskScorerURL   = "risk-scorer-url"
	flagNearRPC         = "near-rpc"
	flagNearContract    = "near-bridge-contract"
	flagOperatorPubKey  = "operator-pubkey"
	flagEventStorePath  = "event-store-path"
)

func main() {
	app := &cli.App{
		Name:  "bridged",
		Usage: "Quantum-protected cross-chain bridge daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagConfig, Required: true, Usage: "path to the bridge config file"},
			&cli.StringFlag{Name: flagListenAddr, Value: "127.0.0.1:8546", Usage: "RPC listen address"},
			&cli.StringFlag{Name: flagPostgresURL, Required: true, EnvVars: []string{"BRIDGED_POSTGRES_URL"}},
			&cli.StringFlag{Name: flagRedisAddr, Value: "127.0.0.1:6379"},
			&cli.StringFlag{Name: flagEthRPC, Required: true},
			&cli.StringFlag{Name: flagEthContract, Required: true},
			&cli.StringFlag{Name: flagEthSignerKey, Required: true, EnvVars: []string{"BRIDGED_ETH_SIGNER_KEY"}},
			&cli.Uint64Flag{Name: flagEthChainID, Required: true},
			&cli.StringFlag{Name: flagRiskScorerURL, Required: true},
			&cli.StringFlag{Name: flagNearRPC, Required: true},
			&cli.StringFlag{Name: flagNearContract, Required: true},
			&cli.StringFlag{Name: flagOperatorPubKey, Usage: "hex-encoded operator ML-KEM public key, for security alert verification context"},
			&cli.StringFlag{Name: flagEventStorePath, Value: "./bridged-events.db", Usage: "badger path backing the event dedup store"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("bridged: %s", err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgHolder, err := config.NewHolder(cctx.String(flagConfig))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pgPool, err := pgxpool.New(ctx, cctx.String(flagPostgresURL))
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pgPool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cctx.String(flagRedisAddr)})
	defer redisClient.Close()

	swapStore := swap.NewPGStore(pgPool)
	quantumModule := quantum.NewModule(quantum.NewPGStore(pgPool))

	ethAdapter, err := buildEthereumAdapter(ctx, cctx)
	if err != nil {
		return fmt.Errorf("building chain-a adapter: %w", err)
	}
	nearAdapter := chainadapter.NewNearClassAdapter(
		cctx.String(flagNearRPC),
		cctx.String(flagNearContract),
		24,
		cfgHolder.Get().Timeouts.AdapterCall,
	)
	adapters := map[common.Chain]chainadapter.Adapter{
		common.ChainA: ethAdapter,
		common.ChainB: nearAdapter,
	}

	riskGate := risk.NewGate(cctx.String(flagRiskScorerURL), cfgHolder)
	reviewQueue := risk.NewRedisReviewQueue(redisClient)

	oracle := pricing.NewStaticOracle(map[string]*apd.Decimal{})
	pricingEngine := pricing.NewEngine(oracle, cfgHolder, pricing.NewRedisQuoteCache(redisClient, cfgHolder.Get().QuoteCacheTTL))

	operatorPubKey, err := decodeOperatorPubKey(cctx.String(flagOperatorPubKey))
	if err != nil {
		return fmt.Errorf("decoding operator public key: %w", err)
	}
	// bridged only ever creates (seals) security alerts for the operator's
	// external channel to verify; it never decapsulates one itself, so no
	// open function is wired here.
	authenticator := auth.NewAuthenticator(quantumModule.MessageSealer(quantum.CategoryUserAuth), nil)
	alertSink := alerts.NewRedisSink(redisClient)

	o := orchestrator.New(
		swapStore,
		adapters,
		quantumModule,
		pricingEngine,
		riskGate,
		reviewQueue,
		cfgHolder,
		authenticator,
		operatorPubKey,
		alertSink,
	)

	recovered, err := o.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering in-flight swaps: %w", err)
	}
	log.Infof("bridged: rescheduled timeouts for %d in-flight swaps", len(recovered))

	dedupDB, err := chaindb.NewBadgerDB(cctx.String(flagEventStorePath))
	if err != nil {
		return fmt.Errorf("opening event dedup store: %w", err)
	}
	defer dedupDB.Close()

	pipeline := events.NewPipeline(
		adapters,
		convertConfirmationDepth(cfgHolder.Get().ConfirmationDepth),
		events.NewBridgeDecoder(),
		events.NewChainDBDedupStore(dedupDB),
	)

	metricsRegistry := metrics.New()

	rpcServer, err := rpc.NewServer(&rpc.Config{
		Ctx:          ctx,
		Address:      cctx.String(flagListenAddr),
		Orchestrator: o,
		Metrics:      metricsRegistry,
	})
	if err != nil {
		return fmt.Errorf("building rpc server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rpcServer.Start()
	})
	g.Go(func() error {
		if err := pipeline.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("event pipeline: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return consumeEvents(gctx, pipeline, o, metricsRegistry)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// consumeEvents is the pipeline's single dispatcher task: each decoded,
// deduplicated event is forwarded to the orchestrator exactly once, which
// looks up the swap targeted by the event's quantum hash and re-drives it.
// Dispatch errors are logged, not returned -- one bad event must not bring
// down ingestion for every other swap.
func consumeEvents(ctx context.Context, pipeline *events.Pipeline, o *orchestrator.Orchestrator, m *metrics.Registry) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-pipeline.Events():
			if !ok {
				return nil
			}
			log.Debugf("bridged: observed %s event on %s, tx=%s", evt.Kind, evt.Chain, evt.SourceTxHash)
			if err := o.ObserveEvent(ctx, evt); err != nil {
				log.Errorf("bridged: dispatching %s event on %s failed: %s", evt.Kind, evt.Chain, err)
			}
			m.SetPipelineLag(string(evt.Chain), 0)
		}
	}
}

func buildEthereumAdapter(ctx context.Context, cctx *cli.Context) (*chainadapter.EthereumAdapter, error) {
	client, err := ethclient.DialContext(ctx, cctx.String(flagEthRPC))
	if err != nil {
		return nil, fmt.Errorf("dialing ethereum rpc: %w", err)
	}

	contractAddr := ethcommon.HexToAddress(cctx.String(flagEthContract))
	bridge, err := contracts.NewBridge(contractAddr, client)
	if err != nil {
		return nil, fmt.Errorf("binding bridge contract: %w", err)
	}

	privKey, err := crypto.HexToECDSA(cctx.String(flagEthSignerKey))
	if err != nil {
		return nil, fmt.Errorf("decoding eth signer key: %w", err)
	}
	chainID := new(big.Int).SetUint64(cctx.Uint64(flagEthChainID))

	txOpts := func(ctx context.Context) (*bind.TransactOpts, error) {
		return signerTxOpts(ctx, client, privKey, chainID)
	}

	return chainadapter.NewEthereumAdapter(client, bridge, contractAddr, txOpts, 18, 30*time.Second), nil
}

func signerTxOpts(ctx context.Context, client *ethclient.Client, privKey *ecdsa.PrivateKey, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(privKey, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx

	fromAddr := crypto.PubkeyToAddress(privKey.PublicKey)
	nonce, err := client.PendingNonceAt(ctx, fromAddr)
	if err != nil {
		return nil, fmt.Errorf("fetching pending nonce: %w", err)
	}
	opts.Nonce = new(big.Int).SetUint64(nonce)

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggesting gas price: %w", err)
	}
	opts.GasPrice = gasPrice

	return opts, nil
}

func convertConfirmationDepth(in map[string]uint64) map[common.Chain]uint64 {
	out := make(map[common.Chain]uint64, len(in))
	for chain, depth := range in {
		out[common.Chain(chain)] = depth
	}
	return out
}

func decodeOperatorPubKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, nil
	}
	return ethcommon.FromHex(hexKey), nil
}
