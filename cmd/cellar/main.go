package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/cellar-rack/internal/cache"
	"github.com/mohammed-shakir/cellar-rack/internal/cache/redisstore"
	"github.com/mohammed-shakir/cellar-rack/internal/core/config"
	"github.com/mohammed-shakir/cellar-rack/internal/core/health"
	"github.com/mohammed-shakir/cellar-rack/internal/core/httpclient"
	"github.com/mohammed-shakir/cellar-rack/internal/core/observability"
	"github.com/mohammed-shakir/cellar-rack/internal/core/server"
	"github.com/mohammed-shakir/cellar-rack/internal/inventory"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation/kafkapublisher"
	"github.com/mohammed-shakir/cellar-rack/internal/labels"
	"github.com/mohammed-shakir/cellar-rack/internal/logger"
	"github.com/mohammed-shakir/cellar-rack/internal/metrics"
	"github.com/mohammed-shakir/cellar-rack/internal/rack/layout"
	"github.com/mohammed-shakir/cellar-rack/internal/wineapi"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", "", "comma separated .env files to load (default .env)")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = strings.Split(*envFile, ",")
	}
	cfg := config.Load(files...)

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "cellar-rack",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting cellar rack service",
		"addr", cfg.Addr,
		"version", Version,
		"wine_api", cfg.WineAPIURL,
		"default_store", cfg.DefaultStore,
		"strict_layout", cfg.LayoutStrict)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := wineapi.New(appLog, httpclient.NewOutbound(cfg.WineAPITimeout), cfg.WineAPIURL,
		wineapi.WithDefaultToken(cfg.WineAPIToken))
	if err != nil {
		appLog.Error("wine api client", "err", err)
		return 1
	}

	builder, err := layout.New(layout.WithStrict(cfg.LayoutStrict))
	if err != nil {
		appLog.Error("layout builder", "err", err)
		return 1
	}

	var checks []health.Check
	var store cache.Interface = cache.Noop{}
	if cfg.Cache.Enabled {
		var remote cache.Remote
		if cfg.Cache.RedisAddr != "" {
			rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr)
			if err != nil {
				appLog.Error("redis client", "addr", cfg.Cache.RedisAddr, "err", err)
				return 1
			}
			defer func() { _ = rc.Close() }()
			remote = rc
			checks = append(checks, health.Check{Name: "redis", Pinger: rc})
		} else {
			appLog.Info("REDIS_ADDR not set, layout cache is in-process only")
		}
		c, err := cache.New(appLog, remote, cfg.Cache.LocalSize, cfg.Cache.OpTimeout)
		if err != nil {
			appLog.Error("cache", "err", err)
			return 1
		}
		store = c
	}

	invCfg := inventory.Config{
		LayoutTTL: cfg.Cache.LayoutTTL,
		BinTTL:    cfg.Cache.BinTTL,
		Sheet:     labels.DefaultSheet(),
	}
	if cfg.Invalidation.Enabled {
		kc := kafkaconsumer.FromConfig(cfg.Invalidation)
		pub, err := kafkapublisher.Dial(kc.Brokers, kc.Topic)
		if err != nil {
			appLog.Error("kafka publisher", "brokers", kc.Brokers, "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		invCfg.Publisher = pub
	}
	svc := inventory.New(appLog, api, builder, store, invCfg)

	if cfg.Invalidation.Enabled {
		czl := zl.With().Str("component", "kafka_consumer").Logger()
		cons := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog, svc,
			kafkaconsumer.WithZerolog(&czl))
		checks = append(checks, health.Check{Name: "kafka", Pinger: cons})
		go func() {
			if err := cons.Start(ctx); err != nil {
				appLog.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	if cfg.Metrics.Enabled {
		p := metrics.Init(metrics.Config{
			Addr: cfg.Metrics.Addr,
			Path: cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(p.Registerer())
		go func() {
			if err := p.Serve(ctx, appLog.With(slog.String("component", "metrics"))); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg, appLog, svc, api, checks...); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
