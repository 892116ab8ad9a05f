package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rathix/workflow-engine/internal/engine"
)

type resultRequest struct {
	Operation string `json:"operation"`
	Result    string `json:"result"`
	EventID   int64  `json:"event_id"`
}

type transitionResponse struct {
	EventID    int64    `json:"event_id"`
	NextState  string   `json:"next_state,omitempty"`
	Changed    bool     `json:"changed"`
	Handled    []string `json:"handled,omitempty"`
	Dispatched int      `json:"dispatched"`
}

// ResultsHandler serves POST /results/{type}/{id}: a remote task backend
// reports how an operation concluded, and the binder applies whatever
// action is bound to that (operation, result) pair. No binding for the
// resource's capability chain yields 204 (nothing to do, not an error);
// replaying the same (operation, result, event_id) is idempotent.
func ResultsHandler(eng *engine.Engine, outboxFlush func(), logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, ok := resolveResource(eng, w, r)
		if !ok {
			return
		}

		var req resultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Operation == "" || req.Result == "" || req.EventID == 0 {
			writeError(w, http.StatusBadRequest, "operation, result, and event_id are all required")
			return
		}

		evt, ok, err := eng.Store.Event(r.Context(), req.EventID)
		if err != nil {
			logger.Warn("failed to look up triggering event", "event_id", req.EventID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to look up event")
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "unknown event_id")
			return
		}

		matched, result, err := eng.Binder.Bind(r.Context(), eng.Changer, rc, req.Operation, req.Result, evt)
		if err != nil {
			logger.Warn("bound transition failed", "operation", req.Operation, "result", req.Result, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to perform bound transition")
			return
		}
		if !matched {
			writeNoContent(w)
			return
		}
		outboxFlush()

		writeOK(w, http.StatusOK, transitionResponse{
			EventID:    evt.ID,
			NextState:  result.NextState,
			Changed:    result.Changed,
			Handled:    result.Handled,
			Dispatched: len(result.Dispatches),
		})
	}
}
