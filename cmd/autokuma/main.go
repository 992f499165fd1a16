// Package main is the entry point for the autokuma service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/autokuma/autokuma/internal/config"
	"github.com/autokuma/autokuma/internal/entity"
	"github.com/autokuma/autokuma/internal/metrics"
	"github.com/autokuma/autokuma/internal/source"
	"github.com/autokuma/autokuma/internal/state"
	kumasync "github.com/autokuma/autokuma/internal/sync"
	"github.com/autokuma/autokuma/internal/template"
	k8sclient "github.com/autokuma/autokuma/pkg/kubernetes"
	"github.com/autokuma/autokuma/pkg/kuma"
)

func main() {
	configPath := os.Getenv("AUTOKUMA_CONFIG")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting autokuma",
		zap.String("kuma_url", cfg.Kuma.URL),
		zap.Float64("sync_interval", cfg.SyncInterval),
		zap.String("on_delete", cfg.OnDelete),
	)

	store, err := state.Open(cfg.DataDir(), logger)
	if err != nil {
		logger.Fatal("failed to open identity store", zap.Error(err))
	}
	defer store.Close()

	engine, err := template.New(cfg.InsecureEnvAccess)
	if err != nil {
		logger.Fatal("failed to initialize template engine", zap.Error(err))
	}

	synth, err := entity.New(engine, cfg.Snippets, cfg.DefaultSettings, logger)
	if err != nil {
		logger.Fatal("invalid default_settings", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := connect(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal("failed to connect to Uptime Kuma", zap.Error(err))
	}
	defer client.Disconnect()

	if token := client.AuthToken(); token != "" {
		if err := store.StoreAuthToken(token); err != nil {
			logger.Warn("cannot cache auth token", zap.Error(err))
		}
	}

	notify := make(chan struct{}, 16)

	sources, err := buildSources(cfg, notify, logger)
	if err != nil {
		logger.Fatal("failed to initialize sources", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	metricsServer := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)

	reconciler := kumasync.NewReconciler(cfg, client, store, synth, sources, notify, m, logger)
	reconciler.OnConverged(func() { metricsServer.SetReady(true) })

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			logger.Info("starting metrics server", zap.Int("port", cfg.Metrics.Port))
			return metricsServer.Start()
		})
	}

	g.Go(func() error {
		return reconciler.Run(gCtx)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-gCtx.Done():
		logger.Info("context cancelled")
	}

	logger.Info("starting graceful shutdown")
	metricsServer.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("autokuma shutdown complete")
}

// connect establishes the Uptime Kuma session. A cached token is tried
// first; when the server rejects it, the token is purged and credentials get
// one retry before giving up.
func connect(ctx context.Context, cfg *config.Config, store *state.Store, logger *zap.Logger) (*kuma.Client, error) {
	clientCfg := cfg.KumaClientConfig()
	if clientCfg.AuthToken == "" {
		clientCfg.AuthToken = store.LoadAuthToken()
	}

	client, err := kuma.Connect(ctx, clientCfg, logger)
	if err == nil {
		return client, nil
	}

	var authErr *kuma.AuthError
	if errors.As(err, &authErr) && clientCfg.AuthToken != "" {
		logger.Warn("cached auth token rejected, retrying with credentials")
		store.PurgeAuthToken()
		clientCfg.AuthToken = ""
		return kuma.Connect(ctx, clientCfg, logger)
	}
	return nil, err
}

func buildSources(cfg *config.Config, notify chan struct{}, logger *zap.Logger) ([]source.Source, error) {
	var sources []source.Source

	if cfg.Docker.Enabled {
		docker, err := source.NewDockerSource(cfg, notify, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, docker)
	}

	if cfg.Files.Enabled {
		sources = append(sources, source.NewFileSource(cfg, notify, logger))
	}

	if cfg.Kubernetes.Enabled {
		dyn, err := k8sclient.NewDynamicClient(logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source.NewKubernetesSource(cfg, dyn, notify, logger))
	}

	return sources, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.LogFormat == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.LogLevel {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, filepath.Join(cfg.LogDir, "autokuma.log"))
	}

	return zapCfg.Build()
}
