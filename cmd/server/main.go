package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"spot-engine/internal/config"
	httpdelivery "spot-engine/internal/delivery/http"
	"spot-engine/internal/delivery/websocket"
	"spot-engine/internal/domain"
	"spot-engine/internal/infrastructure/binance"
	"spot-engine/internal/infrastructure/db"
	"spot-engine/internal/infrastructure/fcm"
	"spot-engine/internal/infrastructure/indicators"
	"spot-engine/internal/infrastructure/marketdata"
	"spot-engine/internal/infrastructure/telegram"
	"spot-engine/internal/repository"
	"spot-engine/internal/usecase"
)

// streamHealthService is the health check name that tracks the ticker stream.
const streamHealthService = "spot-engine.stream"

var configPath = flag.String("config", "", "Path to a YAML or JSON config file")

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(ctx context.Context, cfg config.Config) error {
	rest := binance.NewClient(cfg.Binance.BaseURL, cfg.Binance.RequestsPerMinute)
	feed := marketdata.NewFeed(rest, cfg.Engine.Interval, cfg.Binance.StaleAfter)
	stream := binance.NewStream(binance.StreamConfig{
		Endpoint:      cfg.Binance.StreamURL,
		Symbols:       cfg.Symbols,
		MaxReconnects: cfg.Binance.MaxReconnects,
	}, feed.OnQuote)
	defer stream.Close()

	executor, err := newExecutor(ctx, cfg, feed)
	if err != nil {
		return err
	}

	journal, pool, err := newJournal(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	tokens := repository.NewTokenRepository()
	notifiers, bot, err := newNotifiers(ctx, cfg, tokens)
	if err != nil {
		return err
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	engine := usecase.NewTradingEngine(engineCfg, usecase.EngineDeps{
		Market:      feed,
		Executor:    executor,
		Constraints: rest,
		Journal:     journal,
		Params:      cfg,
		Indicators:  indicators.NewEngine(cfg.Indicators),
		Notifiers:   notifiers,
	})
	if err := engine.Initialize(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	httpdelivery.NewEngineHandler(engine).Register(mux)
	httpdelivery.NewTokenHandler(tokens).Register(mux)
	httpdelivery.NewNotificationHandler(notifiers...).Register(mux)
	mux.HandleFunc("/ws", websocket.NewHandler(engine, cfg.Server.StatusPush).Handle)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthServer := health.NewServer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := stream.Run(gctx)
		if errors.Is(err, binance.ErrStreamFallback) {
			log.Warn().Msg("ticker stream disabled, prices come from REST")
			return nil
		}
		return err
	})

	g.Go(func() error {
		return engine.Run(gctx)
	})

	g.Go(func() error {
		watchStreamHealth(gctx, healthServer, stream)
		return nil
	})

	if cfg.Engine.OptimizeEvery > 0 {
		g.Go(func() error {
			scheduleOptimization(gctx, engine, cfg.Engine.OptimizeEvery)
			return nil
		})
	}

	if bot != nil {
		g.Go(func() error {
			return bot.Run(gctx, engine)
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		s := grpc.NewServer(
			grpc.KeepaliveParams(keepalive.ServerParameters{
				MaxConnectionIdle: 5 * time.Minute,
				Time:              20 * time.Second,
				Timeout:           10 * time.Second,
			}),
		)
		grpc_health_v1.RegisterHealthServer(s, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

		g.Go(func() error {
			log.Info().Str("addr", cfg.Server.GRPCAddr).Msg("grpc health server starting")
			return s.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Shutdown()
			s.GracefulStop()
			return nil
		})
	}

	log.Info().
		Str("mode", cfg.Mode).
		Strs("symbols", cfg.Symbols).
		Str("interval", cfg.Engine.Interval).
		Msg("engine started")

	runErr := g.Wait()

	// The loop has stopped; finish the in-flight work before closing the pool.
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := engine.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("engine shutdown incomplete")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func newExecutor(ctx context.Context, cfg config.Config, feed *marketdata.Feed) (domain.OrderExecutionPort, error) {
	if cfg.Mode == config.ModePaper {
		log.Info().Float64("feePct", cfg.Binance.PaperFeePct).Msg("paper trading: orders are simulated")
		return marketdata.NewPaperExecutor(feed, cfg.Binance.PaperFeePct), nil
	}

	client := binance.NewTradingClient(cfg.Binance.APIKey, cfg.Binance.APISecret, cfg.Binance.BaseURL, cfg.Binance.OrdersPerMinute)
	tctx, cancel := context.WithTimeout(ctx, cfg.Engine.CallTimeout)
	defer cancel()
	if err := client.TestConnection(tctx); err != nil {
		return nil, err
	}
	log.Info().Str("mode", cfg.Mode).Str("baseUrl", cfg.Binance.BaseURL).Msg("binance trading client connected")
	return client, nil
}

func newJournal(ctx context.Context, cfg config.Config) (domain.TradeJournal, *pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		log.Warn().Msg("DATABASE_URL not set: trades are kept in memory only")
		return repository.NewInMemoryTradeJournal(), nil, nil
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.SSLMode, db.PoolConfigFromEnv())
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info().Msg("postgres trade journal ready")
	return repository.NewPostgresTradeJournal(pool), pool, nil
}

func newNotifiers(ctx context.Context, cfg config.Config, tokens *repository.TokenRepository) ([]domain.Notifier, *telegram.Bot, error) {
	var notifiers []domain.Notifier

	fcmClient, err := fcm.NewClient(ctx, cfg.Notifications.FirebaseCredentialsPath, cfg.Notifications.FirebaseCredentialsJSON, tokens)
	if err != nil {
		return nil, nil, err
	}
	if fcmClient.IsEnabled() {
		notifiers = append(notifiers, fcmClient)
	}

	bot, err := telegram.NewBot(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
	if err != nil {
		// Telegram is optional; trading continues without it.
		log.Error().Err(err).Msg("telegram disabled")
		bot = nil
	}
	if bot != nil {
		notifiers = append(notifiers, bot)
	}
	return notifiers, bot, nil
}

func watchStreamHealth(ctx context.Context, hs *health.Server, stream *binance.Stream) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
		if stream.Healthy() {
			status = grpc_health_v1.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus(streamHealthService, status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func scheduleOptimization(ctx context.Context, engine *usecase.TradingEngine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome, err := engine.Optimize(ctx)
			if err != nil {
				log.Error().Err(err).Msg("scheduled optimization failed")
				continue
			}
			log.Info().
				Bool("valid", outcome.Valid).
				Bool("applied", outcome.Applied).
				Strs("rejections", outcome.Rejections).
				Float64("score", outcome.Result.BestScore).
				Msg("scheduled optimization finished")
		}
	}
}
