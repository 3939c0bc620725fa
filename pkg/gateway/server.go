// Package gateway implements the Metrics Query Gateway's HTTP surface: the
// natural-language query endpoint plus its supporting discovery routes.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/pkg/adapters"
	"github.com/nimbusops/opswatch/pkg/metrics"
	"github.com/nimbusops/opswatch/pkg/query"
	"github.com/nimbusops/opswatch/pkg/shared/logging"
)

// Server is the query gateway's HTTP listener: go-chi router, CORS, and
// the translate/execute/insight pipeline.
type Server struct {
	http       *http.Server
	translator *query.Translator
	executor   *query.Executor
	insights   *query.InsightGenerator
	log        *logrus.Logger
	validate   *validator.Validate
}

// NewServer builds a Server bound to addr, wiring translator/executor/
// insights into the router.
func NewServer(addr string, translator *query.Translator, executor *query.Executor, insights *query.InsightGenerator, log *logrus.Logger) *Server {
	s := &Server{translator: translator, executor: executor, insights: insights, log: log, validate: validator.New()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware())
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/api/v1/query", s.handleQuery)
	r.Get("/api/v1/templates", s.handleTemplates)
	r.Get("/api/v1/metrics/discover", s.handleDiscoverMetrics)
	r.Post("/api/v1/query/suggest", s.handleSuggest)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

func corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logging.HTTPFields(r.Method, r.URL.Path, 0).
			Duration(time.Since(start)).ToLogrus()).
			Info("handled gateway request")
	})
}

// Start begins serving in the background; errors are logged, not returned,
// matching the pattern in pkg/metrics.Server.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithFields(logging.NewFields().Component("gateway").Error(err).ToLogrus()).
				Error("gateway server exited unexpectedly")
		}
	}()
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// queryRequest is the /api/v1/query and /api/v1/query/suggest body.
// Context is accepted and carried for future use; translation currently
// keys off the query text alone.
type queryRequest struct {
	Query     string                 `json:"query" validate:"required,min=3"`
	Context   map[string]interface{} `json:"context,omitempty"`
	TimeRange string                 `json:"time_range,omitempty" validate:"omitempty,max=8"`
}

// queryResponse is the /api/v1/query response body.
type queryResponse struct {
	Success     bool                    `json:"success"`
	PromQLQuery string                  `json:"promql_query,omitempty"`
	Data        *adapters.MetricsResult `json:"data,omitempty"`
	Insights    []string                `json:"insights,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordGatewayRequest("bad_request")
		writeJSON(w, http.StatusBadRequest, queryResponse{Success: false, Error: "invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		metrics.RecordGatewayRequest("bad_request")
		writeJSON(w, http.StatusBadRequest, queryResponse{Success: false, Error: err.Error()})
		return
	}

	translation := s.translator.TranslateCached(r.Context(), req.Query)
	if !translation.Success {
		metrics.RecordGatewayRequest("translation_error")
		writeJSON(w, http.StatusOK, queryResponse{Success: false, Error: translation.Error})
		return
	}

	timeRange := req.TimeRange
	if timeRange == "" {
		timeRange = translation.TimeRange
	}

	result, err := s.executor.QueryRange(r.Context(), translation.PromQL, timeRange)
	if err != nil {
		metrics.RecordGatewayRequest("execution_error")
		writeJSON(w, http.StatusOK, queryResponse{Success: false, Error: err.Error()})
		return
	}

	insights := s.insights.Generate(req.Query, translation.PromQL, result)

	metrics.RecordGatewayRequest("success")
	writeJSON(w, http.StatusOK, queryResponse{
		Success:     true,
		PromQLQuery: translation.PromQL,
		Data:        &result,
		Insights:    insights,
	})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"templates": s.translator.ListTemplates(),
	})
}

func (s *Server) handleDiscoverMetrics(w http.ResponseWriter, r *http.Request) {
	names, err := s.executor.DiscoverMetrics(r.Context())
	if err != nil {
		s.log.WithFields(logging.NewFields().Component("gateway").Error(err).ToLogrus()).
			Warn("metric discovery failed, falling back to template categories")
		names = s.templateCategories()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"metrics": names,
	})
}

// templateCategories falls back to the translator's fixed template
// categories when the backend's label-values API is unreachable.
func (s *Server) templateCategories() []string {
	templates := s.translator.ListTemplates()
	names := make([]string, 0, len(templates))
	for _, t := range templates {
		names = append(names, t.Category)
	}
	return names
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"suggestions": s.translator.Suggest(req.Query),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
