package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderPairBot/config"
	"orderPairBot/internal/adapters/binanceclient"
	"orderPairBot/internal/adapters/logger"
	"orderPairBot/internal/adapters/sqlite"
	"orderPairBot/internal/app"
	"orderPairBot/internal/metrics"
	"orderPairBot/internal/retrycache"
)

func main() {
	ctx := context.Background()

	// Load configuration first; logging level depends on it
	cfg, err := config.LoadConfig()
	if err != nil {
		// Config failed, use a default logger to report it
		tmpLog := logger.NewStdLogger(logger.LevelInfo)
		tmpLog.Error(ctx, err, "Failed to load configuration")
		os.Exit(1)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(ctx, "Configuration loaded", map[string]interface{}{
		"symbol":  cfg.Symbol,
		"regime":  string(cfg.StaticRegime),
		"testnet": cfg.IsTestnet,
		"dbPath":  cfg.DBPath,
	})

	ledger, err := sqlite.NewLedger(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "Failed to open ledger database")
		os.Exit(1)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			appLogger.Error(ctx, err, "Failed to close ledger database")
		}
	}()

	exchange, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Symbol:     cfg.Symbol,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "Failed to create exchange client")
		os.Exit(1)
	}

	provider := config.NewProvider(cfg)

	// SIGHUP reloads trading parameters without a restart
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			if err := provider.Reload(); err != nil {
				appLogger.Error(ctx, err, "Configuration reload failed, keeping previous parameters")
				continue
			}
			appLogger.Info(ctx, "Configuration reloaded")
		}
	}()

	// Prometheus endpoint
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLogger.Error(ctx, err, "Metrics endpoint failed")
			}
		}()
	}

	service, err := app.NewPairService(cfg, appLogger, exchange, ledger, provider, provider, retrycache.New())
	if err != nil {
		appLogger.Error(ctx, err, "Failed to create pair service")
		os.Exit(1)
	}

	if err := service.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Pair service exited with error")
		os.Exit(1)
	}
	appLogger.Info(ctx, "Shutdown complete")
}
