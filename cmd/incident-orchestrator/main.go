// Command incident-orchestrator runs the Incident Response Orchestrator:
// event intake, priority dispatch, workflow execution, and diagnosis
// reporting to chat.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/xray"
	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/internal/config"
	"github.com/nimbusops/opswatch/pkg/adapters"
	"github.com/nimbusops/opswatch/pkg/incident"
	"github.com/nimbusops/opswatch/pkg/incident/reasoner"
	"github.com/nimbusops/opswatch/pkg/incident/workflow"
	"github.com/nimbusops/opswatch/pkg/metrics"
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
		Custom("cluster", cfg.AWS.ClusterName).
		ToLogrus()).
		Info("initializing incident orchestrator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize orchestrator")
	}

	app.Start(ctx)
	app.notifyStartup(ctx)

	<-ctx.Done()
	// Restore default signal handling so a second signal terminates the process.
	stop()
	log.Info("shutdown signal received, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.Stop(shutdownCtx)

	log.Info("incident orchestrator stopped")
}

// application bundles everything main needs to start and stop.
type application struct {
	cfg        *config.Config
	log        *logrus.Logger
	dispatcher *incident.Dispatcher
	source     incident.EventSource
	metrics    *metrics.Server
	chat       adapters.ChatNotifier
	channel    string
}

func buildApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*application, error) {
	k8sAdapter, err := adapters.NewK8sClusterAdapter(os.Getenv("KUBECONFIG"), cfg.AWS.ClusterName)
	if err != nil {
		return nil, fmt.Errorf("building cluster adapter: %w", err)
	}
	clusterAdapter := adapters.NewBreakerClusterAdapter(k8sAdapter)

	chat := buildChatNotifier(cfg, log)

	translator := query.NewTranslator()
	promClient := sharedhttp.NewClient(sharedhttp.PrometheusClientConfig(30 * time.Second))
	signer, err := adapters.NewSigV4Signer(ctx)
	if err != nil {
		return nil, fmt.Errorf("building request signer: %w", err)
	}
	metricsExecutor := query.NewExecutor(cfg.Metrics.PrometheusMCPURL, signer, "aps", cfg.AWS.Region, promClient)
	metricsAdapter := adapters.NewPromQLMetricsAdapter(
		func(nlQuery string) (string, string, bool, string) {
			t := translator.Translate(nlQuery)
			return t.PromQL, t.TimeRange, t.Success, t.Error
		},
		metricsExecutor.QueryRange,
	)

	traceAdapter, err := buildTraceAdapter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building trace adapter: %w", err)
	}

	registry := workflow.NewRegistry()
	if cfg.HotReload.WorkflowsFile != "" {
		if err := registry.Reload(cfg.HotReload.WorkflowsFile); err != nil {
			log.WithError(err).Warn("initial workflow table reload failed, keeping built-in defaults")
		}
		if err := registry.Watch(ctx, cfg.HotReload.WorkflowsFile, log); err != nil {
			log.WithError(err).Warn("could not watch workflow table file for changes")
		}
	}

	handlers := &workflow.Handlers{
		Cluster: clusterAdapter,
		Metrics: metricsAdapter,
		Traces:  traceAdapter,
		Thresholds: workflow.Thresholds{
			MemoryLimitFloorMiB:     cfg.Thresholds.MemoryLimitFloorMiB,
			RestartCountFloor:       cfg.Thresholds.RestartCountFloor,
			CPUThrottlingRatioFloor: cfg.Thresholds.CPUThrottlingRatioFloor,
		},
	}

	executor := workflow.NewExecutor(registry, handlers.Table(), reasoner.New(), log)
	runner := workflow.NewRunner(executor, chat, cfg.Slack.Channel, log)

	queue := incident.NewPriorityQueue()
	dispatcher := incident.NewDispatcher(queue, runner, int64(cfg.Dispatcher.MaxConcurrentEvents), log)
	intake := incident.NewIntake(queue, log)

	webhookAddr := fmt.Sprintf("%s:%s", cfg.Gateway.Host, cfg.Gateway.Port)
	webhook := incident.NewWebhookSource(webhookAddr, intake, log)

	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, log)

	return &application{
		cfg:        cfg,
		log:        log,
		dispatcher: dispatcher,
		source:     webhook,
		metrics:    metricsServer,
		chat:       chat,
		channel:    cfg.Slack.Channel,
	}, nil
}

func buildChatNotifier(cfg *config.Config, log *logrus.Logger) adapters.ChatNotifier {
	token := cfg.Slack.BotToken
	if token == "" && cfg.Slack.SecretName != "" {
		log.WithFields(logging.NewFields().
			Component("bootstrap").
			Custom("secret_name", cfg.Slack.SecretName).
			ToLogrus()).
			Warn("SLACK_SECRET_NAME set but no secrets-manager client is wired; chat notifications disabled")
	}
	return adapters.NewSlackChatNotifier(token, cfg.Grafana.URL, "")
}

func buildTraceAdapter(ctx context.Context, cfg *config.Config) (adapters.TraceAdapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for X-Ray client: %w", err)
	}
	client := xray.NewFromConfig(awsCfg)
	return adapters.NewXRayTraceAdapter(client, time.Hour), nil
}

// Start launches the dispatcher and the two HTTP listeners in the
// background.
func (a *application) Start(ctx context.Context) {
	a.dispatcher.Start(ctx)
	a.source.Start()
	a.metrics.StartAsync()
}

// Stop drains the dispatcher and both listeners: in-flight handlers
// finish, nothing new starts.
func (a *application) Stop(ctx context.Context) {
	a.notifyShutdown(ctx)
	a.dispatcher.Stop()
	if err := a.source.Stop(ctx); err != nil {
		a.log.WithError(err).Warn("event source shutdown error")
	}
	if err := a.metrics.Stop(ctx); err != nil {
		a.log.WithError(err).Warn("metrics listener shutdown error")
	}
}

func (a *application) notifyStartup(ctx context.Context) {
	msg := fmt.Sprintf("incident orchestrator started for cluster `%s`", a.cfg.AWS.ClusterName)
	if _, err := a.chat.SendNotification(ctx, a.channel, msg, "info", ""); err != nil {
		a.log.WithError(err).Warn("failed to send startup notification")
	}
}

func (a *application) notifyShutdown(ctx context.Context) {
	msg := fmt.Sprintf("incident orchestrator stopping for cluster `%s`", a.cfg.AWS.ClusterName)
	if _, err := a.chat.SendNotification(ctx, a.channel, msg, "warning", ""); err != nil {
		a.log.WithError(err).Warn("failed to send shutdown notification")
	}
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
