package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pumpfun-engine/internal/config"
	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/events"
	"pumpfun-engine/internal/ingestion"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/observability"
	"pumpfun-engine/internal/portfolio"
	"pumpfun-engine/internal/publish"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/sink"
	"pumpfun-engine/internal/solana"
	"pumpfun-engine/internal/storage/clickhouse"
	"pumpfun-engine/internal/storage/memory"
	"pumpfun-engine/internal/storage/migrations"
	pgstore "pumpfun-engine/internal/storage/postgres"
	"pumpfun-engine/internal/trading"
)

const shutdownTimeout = 30 * time.Second

type flags struct {
	source    string
	useMemory bool
	backfill  time.Duration
}

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	envFile := flag.String("env-file", ".env", "Dotenv file loaded before the environment overrides")
	source := flag.String("source", "", "Override listener source: node or relay")
	metricsAddr := flag.String("metrics-addr", "", "Override the metrics HTTP address (\"off\" to disable)")
	useMemory := flag.Bool("use-memory", false, "Add the in-memory event stores")
	backfill := flag.Duration("backfill", 0, "Replay program history this far back before streaming")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Listener.Source = *source
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	base, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Component(base, "engine")

	addr := cfg.Metrics.Addr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	var metricsSrv *http.Server
	if addr != "off" {
		metricsSrv = startMetrics(addr, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		// A second signal or the timeout forces the exit.
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("second signal, forcing shutdown")
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, base, flags{
		source:    cfg.Listener.Source,
		useMemory: *useMemory,
		backfill:  *backfill,
	})

	done <- err
	cancel()

	if metricsSrv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("metrics server shutdown")
		}
		stop()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("engine stopped")
	}
	logger.Info("shutdown complete")
}

func startMetrics(addr string, logger *logrus.Entry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("addr", addr).Info("starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server")
		}
	}()
	return srv
}

func run(ctx context.Context, cfg *config.Config, base *logrus.Logger, f flags) error {
	logger := logging.Component(base, "engine")

	pool, err := rpcpool.New(cfg.RPC, rpcpool.WithLogger(logging.Component(base, "rpcpool")))
	if err != nil {
		return fmt.Errorf("build rpc pool: %w", err)
	}
	logger.WithField("endpoints", pool.Endpoints()).Info("rpc pool ready")

	dec := decoder.New(decoder.Options{Logger: logging.Component(base, "decoder")})
	sinks, closeSinks, err := buildSinks(ctx, cfg.Sinks, f.useMemory, base)
	if err != nil {
		return err
	}
	defer closeSinks()

	bus := events.New(events.Options{Buffer: cfg.Listener.BusBuffer, Logger: logging.Component(base, "events")})
	sink.Attach(ctx, bus, logging.Component(base, "sink"), sinks...)

	// The bus drains its handlers, then running buys finish, then the sinks
	// close.
	var buys sync.WaitGroup
	defer func() {
		bus.Close()
		buys.Wait()
	}()

	if cfg.Trading.Enabled {
		exec, owner, err := buildExecutor(cfg.Trading, pool, dec, base)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"wallet": owner, "submitter": cfg.Trading.Submitter}).Info("trading enabled")
		if err := autoBuy(ctx, cfg.Trading, bus, exec, &buys, logger); err != nil {
			return err
		}
	}

	var listen func(context.Context) error
	switch f.source {
	case config.SourceNode:
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logging.Component(base, "solana.ws")
		ws, err := solana.NewWSClient(ctx, cfg.Listener.WSEndpoint, &wsCfg)
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		defer ws.Close()

		listener := ingestion.NewNodeListener(ingestion.NodeListenerOptions{
			WS:        ws,
			Pool:      pool,
			Decoder:   dec,
			Publisher: bus,
			Mode:      cfg.Listener.NodeMode,
			Logger:    logging.Component(base, "ingestion.node"),
		})
		listen = listener.Run

	case config.SourceRelay:
		listener := ingestion.NewRelayListener(ingestion.RelayListenerOptions{
			URL:       cfg.Listener.RelayURL,
			Publisher: bus,
			Logger:    logging.Component(base, "ingestion.relay"),
		})
		if err := listener.SubscribeNewToken(); err != nil {
			return err
		}
		if err := listener.SubscribeTokenTrade(cfg.Listener.TokenTrades...); err != nil {
			return err
		}
		if err := listener.SubscribeAccountTrade(cfg.Listener.AccountTrades...); err != nil {
			return err
		}
		listen = listener.Run

	default:
		return fmt.Errorf("unknown listener source %q", f.source)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listen(gctx) })

	if f.backfill > 0 {
		bf := ingestion.NewBackfiller(ingestion.BackfillOptions{
			Pool:      pool,
			Decoder:   dec,
			Publisher: bus,
			Logger:    logging.Component(base, "ingestion.backfill"),
		})
		g.Go(func() error {
			if _, err := bf.BackfillSince(gctx, time.Now().Add(-f.backfill)); err != nil && gctx.Err() == nil {
				logger.WithError(err).Error("backfill failed")
			}
			return nil
		})
	}

	logger.WithField("source", f.source).Info("engine running")
	return g.Wait()
}

// buildSinks opens every configured sink. The returned func closes them.
func buildSinks(ctx context.Context, cfg config.SinksConfig, useMemory bool, base *logrus.Logger) ([]sink.Sink, func(), error) {
	var (
		sinks   []sink.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	logger := logging.Component(base, "engine")

	if cfg.Memory || useMemory {
		sinks = append(sinks, sink.Stores("memory", memory.NewMintEventStore(), memory.NewTradeEventStore()))
	}

	if cfg.PostgresDSN != "" {
		pg, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := migrations.RunPostgresMigrations(ctx, pg); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		sinks = append(sinks, sink.Stores("postgres", pgstore.NewMintEventStore(pg), pgstore.NewTradeEventStore(pg)))
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() {
			if err := conn.Close(); err != nil {
				logger.WithError(err).Warn("close clickhouse")
			}
		})
		sinks = append(sinks, sink.Stores("clickhouse", nil, clickhouse.NewTradeEventStore(conn)))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := publish.NewKafkaPublisher(publish.KafkaOptions{
			Brokers:    cfg.Kafka.Brokers,
			MintTopic:  cfg.Kafka.MintTopic,
			TradeTopic: cfg.Kafka.TradeTopic,
			Logger:     logging.Component(base, "publish.kafka"),
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.WithError(err).Warn("close kafka writer")
			}
		})
		sinks = append(sinks, sink.Publisher("kafka", pub))
	}

	if len(sinks) == 0 {
		logger.Warn("no sinks configured, decoded events are dropped")
	}
	return sinks, closeAll, nil
}

func buildExecutor(cfg config.TradingConfig, pool *rpcpool.Pool, dec *decoder.Decoder, base *logrus.Logger) (*trading.Executor, string, error) {
	wallet, err := trading.NewWallet(cfg.WalletPrivateKey)
	if err != nil {
		return nil, "", fmt.Errorf("load wallet: %w", err)
	}

	var submitter trading.Submitter
	switch cfg.Submitter {
	case config.SubmitterRelay:
		fee, err := cfg.PriorityFee()
		if err != nil {
			return nil, "", err
		}
		submitter = trading.NewRelaySubmitter(trading.RelaySubmitterOptions{
			URL:            cfg.TradeLocalURL,
			Pool:           pool,
			Wallet:         wallet,
			PriorityFeeSol: fee,
			Logger:         logging.Component(base, "trading.relay"),
		})
	default:
		submitter = trading.NewInstructionSubmitter(trading.InstructionSubmitterOptions{
			Pool:             pool,
			Wallet:           wallet,
			Simulate:         cfg.Simulate,
			ComputeUnitLimit: cfg.ComputeUnitLimit,
			ComputeUnitPrice: cfg.ComputeUnitPrice,
			Logger:           logging.Component(base, "trading.instruction"),
		})
	}

	exec := trading.NewExecutor(trading.ExecutorOptions{
		Config:    cfg.Executor,
		Pool:      pool,
		Submitter: submitter,
		Portfolio: portfolio.NewMemory(cfg.Limits, logging.Component(base, "portfolio")),
		Decoder:   dec,
		Owner:     wallet.PublicKey(),
		Logger:    logging.Component(base, "trading"),
	})
	return exec, wallet.PublicKey(), nil
}

// autoBuy buys the configured amount on every new mint. Each buy runs on its
// own goroutine so the mint subscription keeps draining; overlapping buys
// are rejected by the executor.
func autoBuy(ctx context.Context, cfg config.TradingConfig, bus *events.Bus, exec *trading.Executor, wg *sync.WaitGroup, logger *logrus.Entry) error {
	amount, err := cfg.AutoBuyAmount()
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return nil
	}
	logger.WithField("sol", amount.String()).Info("auto-buy enabled")

	bus.OnMint(ctx, func(ctx context.Context, ev *domain.MintEvent) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := exec.Buy(ctx, ev.TokenAddress, amount)
			entry := logger.WithFields(logrus.Fields{
				"token":     ev.TokenAddress,
				"signature": res.Signature,
				"outcome":   res.Operation.Outcome,
			})
			switch {
			case errors.Is(res.Error, trading.ErrBuyInFlight):
				entry.Debug("auto-buy skipped, buy in flight")
			case res.Error != nil:
				entry.WithError(res.Error).Warn("auto-buy failed")
			default:
				entry.WithFields(logrus.Fields{
					"spent_sol": res.SolAmount.String(),
					"tokens":    res.TokenAmount.String(),
				}).Info("auto-buy filled")
			}
		}()
	})
	return nil
}
