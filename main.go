package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/zapr"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liveview.io/liveview/internal/buildinfo"
	"liveview.io/liveview/pkg/adapter/postgres"
	"liveview.io/liveview/pkg/config"
	"liveview.io/liveview/pkg/database"
	"liveview.io/liveview/pkg/server"
	"liveview.io/liveview/pkg/service"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		os.Exit(1)
	}

	zc := zap.NewDevelopmentConfig()
	zc.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-cfg.LogLevel))
	zapLog, err := zc.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot set up logging: %s\n", err)
		os.Exit(1)
	}
	logger := zapr.NewLogger(zapLog).WithName("liveview")
	setupLog := logger.WithName("setup")

	info := buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	setupLog.Info(fmt.Sprintf("starting liveview %s", info.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		setupLog.Error(err, "unable to set up database pool")
		os.Exit(1)
	}
	defer pool.Close()

	svc, err := service.New(service.Options{
		Logger:       logger,
		DefaultLimit: cfg.DefaultViewLimit,
	})
	if err != nil {
		setupLog.Error(err, "unable to build derivation graph")
		os.Exit(1)
	}
	setupLog.Info("derivation graph built", "graph", svc.Graph().String())

	adapter := postgres.New(pool, svc.Tables(), svc, postgres.Options{Logger: logger})
	if err := adapter.EnsureChangefeed(ctx); err != nil {
		setupLog.Error(err, "unable to install changefeed triggers")
		os.Exit(1)
	}

	db := database.New(pool, logger)

	httpOpts := server.Options{Logger: logger, StreamBaseURL: cfg.StreamBaseURL}
	broker := server.NewBroker(cfg.StreamAddr, svc.Views(), httpOpts)
	api := server.NewAPIServer(cfg.APIAddr, db, broker, httpOpts)

	errCh := make(chan error, 3)
	go func() { errCh <- adapter.Run(ctx) }()
	go func() { errCh <- broker.Start(ctx) }()
	go func() { errCh <- api.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			setupLog.Error(err, "component failed")
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	setupLog.Info("shutting down")
}
