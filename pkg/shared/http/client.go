// Package http builds pre-configured *http.Client values for the adapters,
// one per external system, each created once at startup and reused for its
// lifetime.
package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig controls the transport behind a shared http.Client.
type ClientConfig struct {
	Timeout                time.Duration
	MaxRetries             int
	DisableSSLVerification bool
	MaxIdleConns           int
	IdleConnTimeout        time.Duration
	TLSHandshakeTimeout    time.Duration
	ResponseHeaderTimeout  time.Duration
}

// DefaultClientConfig returns sane defaults for a general-purpose outbound client.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// NewClient builds an *http.Client from config.
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	if config.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout builds a client with the default config but a custom timeout.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = timeout
	return NewClient(config)
}

// NewDefaultClient builds a client with every default.
func NewDefaultClient() *http.Client {
	return NewClient(DefaultClientConfig())
}

// SlackClientConfig returns the config used for the chat adapter: short
// timeout and a lower MaxRetries, since Slack notifications are best-effort.
// NewClient does not act on MaxRetries; the client it builds never retries.
func SlackClientConfig() ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = 10 * time.Second
	config.MaxRetries = 2
	return config
}

// PrometheusClientConfig returns the config used for the metrics executor,
// with a response-header timeout of half the overall budget to fail fast
// on a wedged backend.
func PrometheusClientConfig(timeout time.Duration) ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = timeout
	config.ResponseHeaderTimeout = timeout / 2
	return config
}

// LLMClientConfig returns a generous-timeout config suitable for a slow
// model-inference backend.
func LLMClientConfig(timeout time.Duration) ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = timeout
	config.ResponseHeaderTimeout = timeout / 3
	return config
}
