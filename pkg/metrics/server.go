package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/pkg/shared/logging"
)

// Server is the small side HTTP listener that exposes /metrics and /health
// on a dedicated port, run alongside the orchestrator's primary listener.
// The query gateway does not use it; it serves /metrics on its own router.
type Server struct {
	server *http.Server
	log    *logrus.Logger
}

// NewServer builds a Server bound to port, logging through log.
func NewServer(port string, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: mux,
		},
		log: log,
	}
}

// StartAsync starts the listener in a background goroutine. Errors other
// than a clean shutdown are logged, never returned, matching the ambient
// bootstrap pattern used elsewhere in both binaries.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithFields(logging.NewFields().Component("metrics-server").Error(err).ToLogrus()).
				Error("metrics server exited unexpectedly")
		}
	}()
}

// Stop gracefully shuts the listener down, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
