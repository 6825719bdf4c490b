package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/stellar/go/clients/horizonclient"
	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/audit"
	"github.com/lzmrd/EthXlmAtomic/internal/auction"
	"github.com/lzmrd/EthXlmAtomic/internal/chain/ethereum"
	"github.com/lzmrd/EthXlmAtomic/internal/chain/stellar"
	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/escrow"
	"github.com/lzmrd/EthXlmAtomic/internal/hub"
	"github.com/lzmrd/EthXlmAtomic/internal/metrics"
	"github.com/lzmrd/EthXlmAtomic/internal/order"
	"github.com/lzmrd/EthXlmAtomic/internal/registry"
	"github.com/lzmrd/EthXlmAtomic/internal/relayer"
	"github.com/lzmrd/EthXlmAtomic/internal/reveal"
	"github.com/lzmrd/EthXlmAtomic/internal/scheduler"
	"github.com/lzmrd/EthXlmAtomic/internal/secret"
	"github.com/lzmrd/EthXlmAtomic/internal/signer"
	transporthttp "github.com/lzmrd/EthXlmAtomic/internal/transport/http"
	"github.com/lzmrd/EthXlmAtomic/internal/transport/ws"
)

var config struct {
	Addr string `long:"addr" env:"RELAYER_ADDR" description:"listen address" default:":8080"`

	EthRPCURL      string `long:"eth-rpc-url" env:"RELAYER_ETH_RPC_URL" description:"Ethereum JSON-RPC endpoint" default:"http://localhost:8545"`
	EscrowContract string `long:"escrow-contract" env:"RELAYER_ESCROW_CONTRACT" description:"source escrow contract address" required:"true"`
	EthRPS         int    `long:"eth-rps" env:"RELAYER_ETH_RPS" description:"Ethereum RPC rate limit" default:"20"`
	SrcFinality     uint64 `long:"src-finality-blocks" env:"RELAYER_SRC_FINALITY_BLOCKS" description:"blocks past detection before the source escrow is final" default:"12"`
	SrcExclusive    uint64 `long:"src-exclusive-blocks" env:"RELAYER_SRC_EXCLUSIVE_BLOCKS" description:"exclusive claim window on the source escrow, in blocks" default:"50"`
	SrcCancellation uint64 `long:"src-cancellation-blocks" env:"RELAYER_SRC_CANCELLATION_BLOCKS" description:"public claim window on the source escrow, in blocks" default:"100"`

	HorizonURL      string        `long:"horizon-url" env:"RELAYER_HORIZON_URL" description:"Stellar Horizon endpoint" default:"https://horizon-testnet.stellar.org"`
	EscrowAccount   string        `long:"escrow-account" env:"RELAYER_ESCROW_ACCOUNT" description:"Stellar escrow admin account" required:"true"`
	StellarRPS      int           `long:"stellar-rps" env:"RELAYER_STELLAR_RPS" description:"Horizon rate limit" default:"20"`
	DstFinality     time.Duration `long:"dst-finality-window" env:"RELAYER_DST_FINALITY_WINDOW" description:"ledger time past detection before the destination escrow is final" default:"30s"`
	DstExclusive    time.Duration `long:"dst-exclusive-window" env:"RELAYER_DST_EXCLUSIVE_WINDOW" description:"exclusive claim window on the destination escrow" default:"5m"`
	DstCancellation time.Duration `long:"dst-cancellation-window" env:"RELAYER_DST_CANCELLATION_WINDOW" description:"public claim window on the destination escrow" default:"10m"`

	WaitingPeriod   time.Duration `long:"waiting-period" env:"RELAYER_WAITING_PERIOD" description:"delay between acceptance and auction start" default:"30s"`
	AuctionDuration time.Duration `long:"auction-duration" env:"RELAYER_AUCTION_DURATION" description:"auction window length" default:"2m"`
	TickInterval    time.Duration `long:"tick-interval" env:"RELAYER_TICK_INTERVAL" description:"auction price tick interval" default:"5s"`
	MonitorInterval time.Duration `long:"monitor-interval" env:"RELAYER_MONITOR_INTERVAL" description:"escrow poll interval" default:"10s"`
	CompletionGrace time.Duration `long:"completion-grace" env:"RELAYER_COMPLETION_GRACE" description:"delay between reveal and completed" default:"1m"`

	ClickhouseDSN string `long:"clickhouse-dsn" env:"RELAYER_CLICKHOUSE_DSN" description:"ClickHouse DSN for the reveal journal and audit trail (empty runs in-memory)"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()
	if _, err := flags.ParseArgs(&config, os.Args); err != nil {
		logger.Fatal("Failed to parse arguments", zap.Error(err))
	}

	clk := clock.NewSystem()
	reg := registry.New()
	sched := scheduler.NewManager(logger)
	vault := secret.NewVault()

	var sink hub.EventSink
	var recorder *audit.Recorder
	journal := reveal.Journal(reveal.NewMemoryJournal())
	if config.ClickhouseDSN != "" {
		store, err := audit.NewClickHouseStore(config.ClickhouseDSN)
		if err != nil {
			logger.Fatal("Open audit store", zap.Error(err))
		}
		recorder = audit.NewRecorder(logger, clk, store, 100, 5*time.Second, 10)
		recorder.Start(ctx)
		sink = recorder

		chJournal, err := reveal.NewClickHouseJournal(config.ClickhouseDSN)
		if err != nil {
			logger.Fatal("Open reveal journal", zap.Error(err))
		}
		journal = chJournal
	} else {
		logger.Warn("No ClickHouse DSN configured, reveal journal is in-memory")
	}

	resolverHub := hub.New(logger, clk, reg, metrics.NewHub(), sink)
	engine := auction.NewEngine(logger, clk, reg, sched, resolverHub, metrics.NewAuction(), vault, config.TickInterval)
	resolverHub.SetTakeRouter(engine)

	ethRPC, err := ethclient.DialContext(ctx, config.EthRPCURL)
	if err != nil {
		logger.Fatal("Dial Ethereum RPC", zap.Error(err))
	}
	defer ethRPC.Close()
	chainMetrics := metrics.NewChain()
	srcClient := ethereum.NewClient(ethRPC, common.HexToAddress(config.EscrowContract), config.EthRPS, chainMetrics)

	horizon := &horizonclient.Client{HorizonURL: config.HorizonURL, HTTP: http.DefaultClient}
	dstClient := stellar.NewClient(horizon, config.EscrowAccount, config.StellarRPS, chainMetrics)

	coordinator := reveal.NewCoordinator(logger, clk, reg, sched, vault, resolverHub, journal, metrics.NewReveal(), reveal.Config{
		SrcChain:          "ethereum",
		SrcEscrowContract: config.EscrowContract,
		DstChain:          "stellar",
		DstEscrowAccount:  config.EscrowAccount,
		CompletionGrace:   config.CompletionGrace,
	})
	if err := coordinator.Restore(ctx); err != nil {
		logger.Fatal("Restore reveal guard", zap.Error(err))
	}

	monitor := escrow.NewMonitor(logger, clk, reg, sched, resolverHub, srcClient, dstClient, coordinator,
		metrics.NewMonitor(), escrow.Config{
			Interval:              config.MonitorInterval,
			SrcFinalityBlocks:     config.SrcFinality,
			SrcExclusiveBlocks:    config.SrcExclusive,
			SrcCancellationBlocks: config.SrcCancellation,
			DstFinalityWindow:     config.DstFinality,
			DstExclusiveWindow:    config.DstExclusive,
			DstCancellationWindow: config.DstCancellation,
		})

	svc := relayer.NewService(
		logger,
		clk,
		order.NewValidator(signer.NewEVMVerifier(), clk, logger),
		order.NewProjector(clk, config.WaitingPeriod, config.AuctionDuration),
		vault,
		reg,
		engine,
		monitor,
		metrics.NewOrders(),
	)

	mux := transporthttp.NewHandler(svc, logger).Router()
	mux.Handle("/ws", ws.NewServer(logger, resolverHub))
	mux.Handle("/metrics", promhttp.Handler())

	s := &http.Server{
		Addr:              config.Addr,
		Handler:           cors.Default().Handler(mux),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down the http server")
		if err := s.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown http server", zap.Error(err))
		}
		resolverHub.Shutdown()
		sched.Shutdown()
		if recorder != nil {
			recorder.Stop()
		}
	}()

	logger.Info("Starting relayer", zap.String("addr", config.Addr))
	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Failed to listen and serve", zap.Error(err))
	}
}
