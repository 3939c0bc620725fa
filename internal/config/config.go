// Package config loads the YAML-backed configuration shared by both
// binaries, with environment variables overlaying file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	sharederrors "github.com/nimbusops/opswatch/pkg/shared/errors"
)

// Config is the root configuration for both the incident orchestrator and
// the metrics query gateway. A single file/schema backs both binaries; each
// cmd/ entrypoint reads only the sections it needs.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	AWS        AWSConfig        `yaml:"aws"`
	Slack      SlackConfig      `yaml:"slack"`
	Metrics    MetricsBackend   `yaml:"metrics_backend"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Logging    LoggingConfig    `yaml:"logging"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Grafana    GrafanaConfig    `yaml:"grafana"`
	Redis      RedisConfig      `yaml:"redis"`
	HotReload  HotReloadConfig  `yaml:"hot_reload"`
}

// ServerConfig holds the orchestrator's self-instrumentation listener.
type ServerConfig struct {
	MetricsPort string `yaml:"metrics_port"`
}

// AWSConfig carries the region and target cluster name used by the
// CloudWatch/SigV4/cluster adapters.
type AWSConfig struct {
	Region      string `yaml:"region"`
	ClusterName string `yaml:"eks_cluster_name"`
}

// SlackConfig configures the chat adapter. One of BotToken or SecretName is
// used to resolve a token at startup; SecretName is a secrets-manager key
// looked up when BotToken is empty.
type SlackConfig struct {
	Channel    string `yaml:"channel"`
	BotToken   string `yaml:"bot_token"`
	SecretName string `yaml:"secret_name"`
}

// MetricsBackend configures the remote metrics-query capability.
type MetricsBackend struct {
	PrometheusMCPURL string `yaml:"prometheus_mcp_url"`
	AMPWorkspaceID   string `yaml:"amp_workspace_id"`
}

// DispatcherConfig bounds the orchestrator's concurrent incident handling.
type DispatcherConfig struct {
	EventPollInterval   time.Duration `yaml:"event_poll_interval"`
	MaxConcurrentEvents int           `yaml:"max_concurrent_events"`
}

// ThresholdsConfig exposes the investigation thresholds as configuration
// instead of hard-coded literals.
type ThresholdsConfig struct {
	MemoryLimitFloorMiB     float64 `yaml:"memory_limit_floor_mib"`
	RestartCountFloor       int     `yaml:"restart_count_floor"`
	CPUThrottlingRatioFloor float64 `yaml:"cpu_throttling_ratio_floor"`
}

// LoggingConfig controls logrus's level/format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatewayConfig configures the metrics query gateway's HTTP listener.
type GatewayConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// GrafanaConfig supplies the dashboard link used in chat summaries.
type GrafanaConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig configures the optional TemplateCache fronting the Query
// Translator. A blank Addr disables the cache and the gateway falls back
// to translating every query directly.
type RedisConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// HotReloadConfig points at the YAML-encoded tables the Workflow Registry
// and Query Translator watch for changes. A blank path leaves the
// corresponding table at its built-in defaults and unwatched.
type HotReloadConfig struct {
	WorkflowsFile string `yaml:"workflows_file"`
	TemplatesFile string `yaml:"templates_file"`
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Load reads path, parses it as YAML, overlays environment variables, and
// validates the result. A blank path skips the file entirely and builds the
// configuration from environment variables and defaults alone.
func Load(path string) (*Config, error) {
	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.AWS.Region == "" {
		config.AWS.Region = "us-east-1"
	}
	if config.AWS.ClusterName == "" {
		config.AWS.ClusterName = "PetAdoptions-EKS"
	}
	if config.Slack.Channel == "" {
		config.Slack.Channel = "#eks-incidents"
	}
	if config.Slack.BotToken == "" && config.Slack.SecretName == "" {
		config.Slack.SecretName = "devops-agent/slack-token"
	}
	if config.Dispatcher.EventPollInterval <= 0 {
		config.Dispatcher.EventPollInterval = 5 * time.Second
	}
	if config.Dispatcher.MaxConcurrentEvents == 0 {
		config.Dispatcher.MaxConcurrentEvents = 3
	}
	if config.Thresholds.MemoryLimitFloorMiB <= 0 {
		config.Thresholds.MemoryLimitFloorMiB = 128
	}
	if config.Thresholds.RestartCountFloor <= 0 {
		config.Thresholds.RestartCountFloor = 5
	}
	if config.Thresholds.CPUThrottlingRatioFloor <= 0 {
		config.Thresholds.CPUThrottlingRatioFloor = 0.10
	}
	if config.Gateway.Port == "" {
		config.Gateway.Port = "8080"
	}
	if config.Gateway.Host == "" {
		config.Gateway.Host = "0.0.0.0"
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
	if config.Redis.Addr != "" && config.Redis.TTL <= 0 {
		config.Redis.TTL = 5 * time.Minute
	}
}

// validate rejects configurations that would leave a component unable to
// start. Defaultable gaps (empty endpoints, non-positive durations) are
// handled by applyDefaults before validate ever runs.
func validate(config *Config) error {
	if config.Dispatcher.MaxConcurrentEvents <= 0 {
		return sharederrors.ConfigurationError("dispatcher.max_concurrent_events", "max concurrent events must be greater than 0")
	}
	level := config.Logging.Level
	if level != "" && !validLogLevels[level] {
		return sharederrors.ConfigurationError("logging.level", fmt.Sprintf("unsupported log level: %s", level))
	}
	return nil
}

// loadFromEnv overlays the supported environment variables onto config,
// leaving unset fields untouched.
func loadFromEnv(config *Config) error {
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.AWS.Region = v
	}
	if v := os.Getenv("EKS_CLUSTER_NAME"); v != "" {
		config.AWS.ClusterName = v
	}
	if v := os.Getenv("SLACK_CHANNEL"); v != "" {
		config.Slack.Channel = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		config.Slack.BotToken = v
	}
	if v := os.Getenv("SLACK_SECRET_NAME"); v != "" {
		config.Slack.SecretName = v
	}
	if v := os.Getenv("PROMETHEUS_MCP_URL"); v != "" {
		config.Metrics.PrometheusMCPURL = v
	}
	if v := os.Getenv("AMP_WORKSPACE_ID"); v != "" {
		config.Metrics.AMPWorkspaceID = v
	}
	if v := os.Getenv("EVENT_POLL_INTERVAL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EVENT_POLL_INTERVAL: %w", err)
		}
		config.Dispatcher.EventPollInterval = time.Duration(seconds) * time.Second
	}
	if v := os.Getenv("MAX_CONCURRENT_EVENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_CONCURRENT_EVENTS: %w", err)
		}
		config.Dispatcher.MaxConcurrentEvents = n
	}
	if v := os.Getenv("GRAFANA_URL"); v != "" {
		config.Grafana.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		config.Gateway.Port = v
	}
	if v := os.Getenv("HOST"); v != "" {
		config.Gateway.Host = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		config.Server.MetricsPort = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
	if v := os.Getenv("WORKFLOWS_FILE"); v != "" {
		config.HotReload.WorkflowsFile = v
	}
	if v := os.Getenv("TEMPLATES_FILE"); v != "" {
		config.HotReload.TemplatesFile = v
	}
	return nil
}
