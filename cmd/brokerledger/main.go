package main

import (
	"BrokerLedger/internal/config"
	"BrokerLedger/internal/core"
	"BrokerLedger/internal/directory"
	"BrokerLedger/internal/ingestion"
	"BrokerLedger/internal/observability"
	"BrokerLedger/internal/seed"
	"BrokerLedger/internal/server"
	"BrokerLedger/internal/simclock"
	"BrokerLedger/internal/transport"
	"BrokerLedger/internal/txn"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const dedupCapacity = 100_000

// participantDirectory is what the engine needs from either directory backend.
type participantDirectory interface {
	Lookup(id uuid.UUID) (txn.Participant, bool)
	List() []txn.Participant
	FindSpecification(id int64) (*txn.TariffSpec, bool)
}

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLoggerTo(os.Stdout, "brokerledger", observability.ParseLogLevel(cfg.LogLevel))
	logger.Info().Msg("BrokerLedger starting")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Participant directory + tariff catalog ---
	dir, closeDir, err := openDirectory(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open directory")
	}
	defer closeDir()
	logger.Info().Int("participants", len(dir.List())).Msg("directory loaded")

	// --- NATS ---
	nc, js, err := transport.Connect(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	logger.Info().Str("url", cfg.NATSURL).Msg("NATS connected")

	if err := transport.EnsureStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}
	if err := ingestion.EnsureStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure submission stream")
	}

	// --- Settlement engine ---
	clock := simclock.NewClock(cfg.Simulation.Start, cfg.Simulation.TimeslotLength)
	engine := core.NewEngine(core.Config{
		Directory:   dir,
		Catalog:     dir,
		Clock:       clock,
		Timeslots:   clock,
		Transport:   transport.NewNATSTransport(js, logger),
		Metrics:     metrics,
		Logger:      logger,
		AccrualHour: cfg.Interest.AccrualHour,
	})
	if err := engine.Configure(cfg.Interest.MinRate, cfg.Interest.MaxRate, cfg.Interest.OverrideRate, seed.NewDeriver(cfg.Seed)); err != nil {
		logger.Fatal().Err(err).Msg("configure interest")
	}
	logger.Info().Str("bank_interest", engine.BankInterest().String()).Msg("interest configured")

	// --- Ingestion ---
	handler := ingestion.NewHandler(engine, ingestion.NewDedupCache(dedupCapacity), logger)
	subscriber := ingestion.NewNATSSubscriber(js, handler, logger)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	scheduler := simclock.NewScheduler(engine, clock, cfg.Simulation.TickInterval, cfg.Simulation.PositionRetention, logger)
	srv := server.New(cfg.GRPCAddr, cfg.HTTPAddr, server.NewGateway(engine, metrics, logger), healthChecker, logger)

	// --- Start goroutines ---
	errChan := make(chan error, 4)

	// 1. Settlement rounds
	go func() {
		errChan <- scheduler.Run(ctx)
	}()

	// 2. gRPC health
	go func() {
		errChan <- srv.StartGRPC(ctx)
	}()

	// 3. HTTP/JSON gateway
	go func() {
		errChan <- srv.StartHTTP(ctx)
	}()

	// 4. Prometheus metrics server
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	srv.SetServing(true)
	logger.Info().
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Time("sim_start", cfg.Simulation.Start).
		Msg("BrokerLedger ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Stringer("signal", sig).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	srv.SetServing(false)
	cancel()
	subscriber.Stop()

	logger.Info().
		Int64("rounds", engine.Round()).
		Str("total_cash", engine.TotalCash().String()).
		Msg("BrokerLedger shutdown complete")
}

// openDirectory returns the Postgres-backed directory when a DSN is
// configured, seeding it with any configured participants and tariffs,
// and the static one otherwise.
func openDirectory(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (participantDirectory, func(), error) {
	if cfg.PostgresURL == "" {
		static, err := directory.FromConfig(cfg.Participants, cfg.Tariffs)
		if err != nil {
			return nil, nil, err
		}
		return static, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres open: %w", err)
	}
	closeDB := func() { db.Close() }

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}

	applied, err := directory.NewMigrator(db, cfg.MigrationsDir, logger).Up(ctx)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Int("applied", applied).Msg("migrations applied")

	pg := directory.NewPostgres(db, logger)
	seeded, err := directory.FromConfig(cfg.Participants, cfg.Tariffs)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	for _, p := range seeded.List() {
		if err := pg.RegisterParticipant(ctx, p); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	for _, tc := range cfg.Tariffs {
		spec, _ := seeded.FindSpecification(tc.ID)
		if err := pg.PublishSpec(ctx, *spec); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	if err := pg.Refresh(ctx); err != nil {
		closeDB()
		return nil, nil, err
	}
	return pg, closeDB, nil
}
