package incident

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/nimbusops/opswatch/pkg/shared/logging"
)

// WebhookSource is the default EventSource: a small HTTP listener posting
// accepted submit() payloads directly onto an Intake, with no intermediate
// queueing of its own. Real wiring to a cloud event router or message
// queue is left to an alternative EventSource implementation; this one
// exists so the orchestrator has a concrete inbound surface out of the
// box.
type WebhookSource struct {
	http   *http.Server
	intake *Intake
	log    *logrus.Logger
}

var _ EventSource = (*WebhookSource)(nil)

// NewWebhookSource builds a WebhookSource bound to addr, posting accepted
// payloads straight to intake.Submit.
func NewWebhookSource(addr string, intake *Intake, log *logrus.Logger) *WebhookSource {
	w := &WebhookSource{intake: intake, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", w.handleHealth)
	r.Post("/events", w.handleSubmit)

	w.http = &http.Server{Addr: addr, Handler: r}
	return w
}

// Start begins serving in the background; errors are logged, not returned,
// matching pkg/metrics.Server and pkg/gateway.Server's pattern.
func (w *WebhookSource) Start() {
	go func() {
		if err := w.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			w.log.WithFields(logging.NewFields().Component("webhook-source").Error(err).ToLogrus()).
				Error("webhook listener exited unexpectedly")
		}
	}()
}

// Stop gracefully shuts down the HTTP listener.
func (w *WebhookSource) Stop(ctx context.Context) error {
	return w.http.Shutdown(ctx)
}

func (w *WebhookSource) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type submitResponse struct {
	Accepted   bool   `json:"accepted"`
	IncidentID string `json:"incident_id,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (w *WebhookSource) handleSubmit(rw http.ResponseWriter, r *http.Request) {
	var payload Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(rw, http.StatusBadRequest, submitResponse{Accepted: false, Error: "invalid event payload"})
		return
	}

	event := w.intake.Submit(payload)
	writeJSON(rw, http.StatusAccepted, submitResponse{
		Accepted:   true,
		IncidentID: event.IncidentID(),
		Priority:   event.Priority.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
