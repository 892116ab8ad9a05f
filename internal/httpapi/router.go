package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/rathix/workflow-engine/internal/engine"
	"github.com/rathix/workflow-engine/internal/notifysvc"
)

// Deps collects the wired collaborators the router's handlers depend on.
type Deps struct {
	Engine       *engine.Engine
	Factory      *notifysvc.Factory
	Executor     *notifysvc.Executor
	OutboxFlush  func()
	Checks       []SubsystemCheck
	APIKey       string
	Logger       *slog.Logger
}

// NewRouter builds the engine's HTTP surface: liveness, event ingress,
// result ingress, and the notification administrative endpoints, each
// behind RequireAPIKey except liveness.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /", LivenessHandler(d.Checks))

	protected := http.NewServeMux()
	protected.Handle("POST /events/{type}/{id}", EventsHandler(d.Engine, d.OutboxFlush, logger))
	protected.Handle("POST /results/{type}/{id}", ResultsHandler(d.Engine, d.OutboxFlush, logger))
	protected.Handle("POST /notifications", NotificationsHandler(d.Factory, logger))
	protected.Handle("POST /notifications/dispatch", NotificationDispatchHandler(d.Executor, logger))
	protected.Handle("POST /notifications/single", NotificationSingleHandler(d.Executor, logger))
	protected.Handle("POST /notifications/batch", NotificationBatchHandler(d.Executor, logger))

	mux.Handle("/events/", RequireAPIKey(d.APIKey, logger)(protected))
	mux.Handle("/results/", RequireAPIKey(d.APIKey, logger)(protected))
	mux.Handle("/notifications", RequireAPIKey(d.APIKey, logger)(protected))
	mux.Handle("/notifications/", RequireAPIKey(d.APIKey, logger)(protected))

	return mux
}
