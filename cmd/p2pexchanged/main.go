package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"p2pexchange/config"
	"p2pexchange/core"
	exchangeerrors "p2pexchange/core/errors"
	"p2pexchange/core/events"
	"p2pexchange/gateway/auth"
	"p2pexchange/gateway/middleware"
	"p2pexchange/gateway/routes"
	"p2pexchange/native/common"
	"p2pexchange/observability"
	"p2pexchange/observability/logging"
	telemetry "p2pexchange/observability/otel"
	"p2pexchange/storage"
	"p2pexchange/storage/eventlog"
)

const serviceName = "p2pexchanged"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to the exchange configuration (toml or yaml)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		slog.Error("p2pexchanged exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("P2P_ENV"))
	if env == "" {
		env = cfg.Telemetry.Environment
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	params, err := cfg.LedgerParams()
	if err != nil {
		return err
	}
	allocations, err := cfg.GenesisAllocations()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	broadcaster := events.NewBroadcaster(cfg.Gateway.StreamBuffer)
	sink := events.Fanout{broadcaster, observability.Events()}

	var eventLog *eventlog.Store
	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		eventLog, err = eventlog.Open(filepath.Join(cfg.DataDir, "events.db"))
		if err != nil {
			return err
		}
		defer eventLog.Close()
		eventLog.SetLogger(logger.With("component", "eventlog"))
		sink = append(sink, eventLog)
	}

	paused := cfg.Pauses.Modules()
	if len(paused) > 0 {
		logger.Warn("modules paused by configuration", "modules", paused)
	}
	exchange, err := core.New(db, params,
		core.WithEmitter(sink),
		core.WithPauses(common.NewStaticPauses(paused)),
		core.WithLogger(logger.With("component", "exchange")),
		core.WithMetrics(observability.Exchange()),
	)
	if err != nil {
		return err
	}
	if err := exchange.ApplyGenesis(context.Background(), allocations); err != nil {
		if !errors.Is(err, exchangeerrors.ErrAlreadyInitialized) {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis already applied")
	}

	readHeader, shutdownTimeout, skew := cfg.Gateway.Durations()
	limit := middleware.RateLimit{RatePerSecond: cfg.Gateway.RateLimitPerSecond, Burst: cfg.Gateway.RateLimitBurst}
	handler, err := routes.New(routes.Config{
		Exchange: exchange,
		Verifier: auth.NewVerifier(skew, nil),
		RateLimits: middleware.Uniform(limit,
			common.ModuleAdmin, common.ModuleOffer, common.ModuleDispute,
			common.ModuleReputation, common.ModuleRewards, common.ModuleTransfer,
		),
		Broadcaster: broadcaster,
		EventLog:    eventLog,
		Logger:      logger.With("component", "gateway"),
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Gateway.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.Gateway.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if cfg.InMemory {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return db, nil
}
