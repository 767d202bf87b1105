// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/adminhttp"
	"github.com/dclexplorer/consumer-processor/internal/config"
	"github.com/dclexplorer/consumer-processor/internal/contentclient"
	"github.com/dclexplorer/consumer-processor/internal/dispatcher"
	"github.com/dclexplorer/consumer-processor/internal/engine"
	"github.com/dclexplorer/consumer-processor/internal/fetcher"
	"github.com/dclexplorer/consumer-processor/internal/monitor"
	"github.com/dclexplorer/consumer-processor/internal/notify"
	"github.com/dclexplorer/consumer-processor/internal/obs"
	"github.com/dclexplorer/consumer-processor/internal/profile"
	"github.com/dclexplorer/consumer-processor/internal/queue"
	"github.com/dclexplorer/consumer-processor/internal/scene"
	"github.com/dclexplorer/consumer-processor/internal/storage"
	"github.com/dclexplorer/consumer-processor/internal/wearable"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string
	var entityID string
	var profileAddress string
	var contentServer string
	var showVersion bool

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to YAML config (optional, env vars take precedence)")
	fs.StringVar(&entityID, "entityId", "", "Resolve and enqueue one job, then continue normally")
	fs.StringVar(&profileAddress, "profile", "", "Run profile expansion for this address and exit")
	fs.StringVar(&contentServer, "contentServer", "https://peer.decentraland.org/content", "Content server base URL for --entityId and --profile")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		log.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	fetch := fetcher.New(cfg.Fetch, cfg.CircuitBreaker, log)
	eng := engine.New(cfg.Engine.URL, fetch, log)
	eng.Attach(cfg.Engine.ProcessName, cfg.Engine.ProcessName, cfg.Engine.Port, log)
	content := contentclient.New(fetch)

	store, err := buildStorage(cfg, log)
	if err != nil {
		log.Fatal("storage init failed", obs.Err(err))
	}

	q, err := buildQueue(cfg, log)
	if err != nil {
		log.Fatal("queue init failed", obs.Err(err))
	}
	defer q.Close()

	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		log.Fatal("notifier init failed", obs.Err(err))
	}

	reporter := monitor.New(cfg.Monitoring, string(cfg.ProcessMethod), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			log.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	if profileAddress != "" {
		expander := profile.New(eng, content, store, cfg.Engine.ProfileConcurrency, cfg.Engine.Timeout, log)
		res, err := expander.Run(ctx, profileAddress, contentServer)
		if err != nil {
			log.Fatal("profile expansion failed", obs.Err(err))
		}
		log.Info("profile expansion complete",
			obs.String("address", res.Address),
			obs.Int("total", res.AssetsTotal),
			obs.Int("succeeded", res.AssetsSucc),
			obs.Int("failed", res.AssetsFail))
		os.Exit(0)
	}

	go reporter.Run(ctx)

	admin := adminhttp.New(q, cfg.Storage.LocalDir, func() bool { return eng.IsReady(ctx) }, log)
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: admin.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin http server error", obs.Err(err))
		}
	}()
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = httpSrv.Shutdown(shCtx)
	}()

	scenePipe := scene.New(eng, content, store, cfg.Engine.ConcurrentBundles, cfg.Engine.Timeout, cfg.Engine.MaxGLTFCount, cfg.Engine.MaxContentSizeBytes, log)
	wearPipe := wearable.New(eng, content, store, cfg.Engine.Timeout, log)
	disp := dispatcher.New(cfg.ProcessMethod, q, eng, scenePipe, wearPipe, notifier, reporter, store, log)

	if entityID != "" {
		job := queue.Job{EntityID: entityID, EntityType: queue.EntityScene, ContentServerUrls: []string{contentServer}}
		if err := q.Publish(ctx, job, false); err != nil {
			log.Error("entityId enqueue failed", obs.Err(err))
		}
	}

	if err := disp.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("dispatcher error", obs.Err(err))
	}
}

func buildStorage(cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	if cfg.UsesLocalStorage() {
		if err := os.MkdirAll(cfg.Storage.LocalDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewLocalStorage(cfg.Storage.LocalDir, log), nil
	}
	return storage.NewS3Storage(cfg.Storage, cfg.AWS, log)
}

func buildQueue(cfg *config.Config, log *zap.Logger) (queue.Port, error) {
	if cfg.UsesInMemoryQueue() {
		return queue.NewMemoryPort(log, 256), nil
	}
	return queue.NewCloudPort(cfg, log)
}

func buildNotifier(cfg *config.Config, log *zap.Logger) (notify.Publisher, error) {
	if cfg.UsesMockNotification() {
		return notify.NewMockPublisher(log), nil
	}
	return notify.NewSNSPublisher(cfg.Notification, cfg.AWS)
}
