// Command query-gateway runs the Metrics Query Gateway: an HTTP service
// that rewrites natural-language queries to PromQL, executes them against
// a remote metrics store, and decorates the results with insights.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/internal/config"
	"github.com/nimbusops/opswatch/pkg/adapters"
	"github.com/nimbusops/opswatch/pkg/gateway"
	"github.com/nimbusops/opswatch/pkg/query"
	"github.com/nimbusops/opswatch/pkg/shared/logging"

	sharedhttp "github.com/nimbusops/opswatch/pkg/shared/http"
)

func main() {
	configPath := flag.String("config", os.Getenv("OPSWATCH_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Logging)
	log.WithFields(logging.NewFields().
		Component("bootstrap").
		Custom("port", cfg.Gateway.Port).
		ToLogrus()).
		Info("initializing metrics query gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize query gateway")
	}

	srv.Start()
	log.Info("metrics query gateway listening")

	<-ctx.Done()
	// Restore default signal handling so a second signal terminates the process.
	stop()
	log.Info("shutdown signal received, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("gateway server shutdown error")
	}

	log.Info("metrics query gateway stopped")
}

func buildServer(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*gateway.Server, error) {
	translator := query.NewTranslator()

	if cfg.HotReload.TemplatesFile != "" {
		if err := translator.Reload(cfg.HotReload.TemplatesFile); err != nil {
			log.WithError(err).Warn("initial template table reload failed, keeping built-in defaults")
		}
		if err := translator.Watch(ctx, cfg.HotReload.TemplatesFile, log); err != nil {
			log.WithError(err).Warn("could not watch template table file for changes")
		}
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		translator.WithCache(query.NewRedisTemplateCache(client, cfg.Redis.TTL))
	}

	signer, err := adapters.NewSigV4Signer(ctx)
	if err != nil {
		return nil, fmt.Errorf("building request signer: %w", err)
	}
	promClient := sharedhttp.NewClient(sharedhttp.PrometheusClientConfig(30 * time.Second))
	executor := query.NewExecutor(cfg.Metrics.PrometheusMCPURL, signer, "aps", cfg.AWS.Region, promClient)

	insights := query.NewInsightGenerator()

	addr := fmt.Sprintf("%s:%s", cfg.Gateway.Host, cfg.Gateway.Port)
	return gateway.NewServer(addr, translator, executor, insights, log), nil
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
