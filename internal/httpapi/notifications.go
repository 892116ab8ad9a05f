package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rathix/workflow-engine/internal/notifysvc"
)

type notificationRequest struct {
	UserRef  string              `json:"user_ref"`
	EventRef int64               `json:"event_ref"`
	Mapping  []notifysvc.Mapping `json:"mapping"`
}

type notificationResponse struct {
	NotificationID int64 `json:"notification_id"`
	DispatchCount  int   `json:"dispatch_count"`
}

// NotificationsHandler serves POST /notifications: materializes a
// Notification and its per-channel Dispatch rows for an activity event,
// opportunistically delivering any rows that come out already due.
func NotificationsHandler(factory *notifysvc.Factory, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.UserRef == "" || len(req.Mapping) == 0 {
			writeError(w, http.StatusBadRequest, "user_ref and at least one mapping entry are required")
			return
		}

		n, dispatches, err := factory.Create(r.Context(), req.UserRef, req.EventRef, req.Mapping)
		if err != nil {
			logger.Warn("failed to create notification", "user_ref", req.UserRef, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create notification")
			return
		}

		writeOK(w, http.StatusCreated, notificationResponse{
			NotificationID: n.ID,
			DispatchCount:  len(dispatches),
		})
	}
}

// NotificationDispatchHandler serves POST /notifications/dispatch: an
// administrative trigger that runs one executor sweep immediately instead
// of waiting for the next scheduled tick.
func NotificationDispatchHandler(executor *notifysvc.Executor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := executor.RunPeriodic(r.Context()); err != nil {
			logger.Warn("on-demand notification sweep failed", "error", err)
			writeError(w, http.StatusInternalServerError, "sweep failed")
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"triggered": true})
	}
}

type notificationSingleRequest struct {
	NotificationDispatchID int64 `json:"notification_dispatch_id"`
}

// NotificationSingleHandler serves POST /notifications/single: an
// administrative trigger that delivers one dispatch row immediately,
// regardless of its due time.
func NotificationSingleHandler(executor *notifysvc.Executor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notificationSingleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.NotificationDispatchID == 0 {
			writeError(w, http.StatusBadRequest, "notification_dispatch_id is required")
			return
		}

		if err := executor.SendSingle(r.Context(), req.NotificationDispatchID); err != nil {
			if err == notifysvc.ErrNotFound {
				writeError(w, http.StatusNotFound, "unknown dispatch id")
				return
			}
			logger.Warn("single notification delivery failed", "dispatch_id", req.NotificationDispatchID, "error", err)
			writeError(w, http.StatusBadGateway, "delivery failed")
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"dispatch_id": req.NotificationDispatchID})
	}
}

type notificationBatchRequest struct {
	NotificationDispatchIDs []int64 `json:"notification_dispatch_ids"`
}

// NotificationBatchHandler serves POST /notifications/batch: delivers an
// explicit, caller-chosen set of dispatch rows immediately, grouped by
// channel the same way a periodic sweep would.
func NotificationBatchHandler(executor *notifysvc.Executor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notificationBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.NotificationDispatchIDs) == 0 {
			writeError(w, http.StatusBadRequest, "notification_dispatch_ids must be non-empty")
			return
		}

		if err := executor.SendBatch(r.Context(), req.NotificationDispatchIDs); err != nil {
			if err == notifysvc.ErrNotFound {
				writeError(w, http.StatusNotFound, "unknown dispatch id")
				return
			}
			logger.Warn("batch notification delivery failed", "count", len(req.NotificationDispatchIDs), "error", err)
			writeError(w, http.StatusInternalServerError, "delivery failed")
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"dispatch_count": len(req.NotificationDispatchIDs)})
	}
}
