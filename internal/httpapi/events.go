package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rathix/workflow-engine/internal/bus"
	"github.com/rathix/workflow-engine/internal/engine"
	"github.com/rathix/workflow-engine/internal/eventstore"
)

type eventRequest struct {
	State   *string `json:"state,omitempty"`
	Action  *string `json:"action,omitempty"`
	EventID *int64  `json:"event_id,omitempty"`
}

type dispatchResponse struct {
	Handlers []string `json:"handlers"`
}

// EventsHandler serves POST /events/{type}/{id}: it re-publishes an
// already-occurring notice to the subscription bus. The notice is never
// synthesised here — StateChanger.Perform is the only place a transition
// appends a WorkStatus row, derives an ActivityEvent, and publishes the
// corresponding notice the first time. This endpoint resolves the
// triggering event (by event_id, or else the resource's current status
// event) and re-dispatches the same Changed/Happened notice, for callers
// that need subscribers fanned out again without repeating the transition.
func EventsHandler(eng *engine.Engine, outboxFlush func(), logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, ok := resolveResource(eng, w, r)
		if !ok {
			return
		}

		var req eventRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		if req.State == nil && req.Action == nil {
			writeError(w, http.StatusBadRequest, "state or action is required")
			return
		}

		evt, ok, err := resolveTriggeringEvent(r.Context(), eng, rc, req.EventID)
		if err != nil {
			logger.Warn("failed to resolve triggering event", "parent_ref", parentRefOf(rc), "error", err)
			writeError(w, http.StatusInternalServerError, "failed to look up event")
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "no event to dispatch for this resource")
			return
		}

		notice := bus.Notice{Resource: rc, Event: evt}
		switch {
		case req.State != nil:
			notice.Kind = bus.Changed
			notice.Selector = qualify("state", *req.State)
			notice.Operation = notice.Selector
		default:
			notice.Kind = bus.Happened
			notice.Selector = qualify("action", *req.Action)
			notice.Operation = notice.Selector
		}

		outcome := eng.Bus.Publish(r.Context(), notice)
		if len(outcome.Handled) == 0 {
			writeNoContent(w)
			return
		}
		outboxFlush()
		writeOK(w, http.StatusOK, dispatchResponse{Handlers: outcome.Handled})
	}
}

// resolveTriggeringEvent resolves the ActivityEvent a re-dispatched notice
// should carry: the event named by eventID if given, otherwise the event
// that produced the resource's current WorkStatus row.
func resolveTriggeringEvent(ctx context.Context, eng *engine.Engine, rc bus.ResourceCtx, eventID *int64) (eventstore.EventRecord, bool, error) {
	if eventID != nil {
		return eng.Store.Event(ctx, *eventID)
	}

	status, ok, err := eng.Store.CurrentStatus(ctx, parentRefOf(rc))
	if err != nil || !ok || status.EventRef == nil {
		return eventstore.EventRecord{}, false, err
	}
	return eng.Store.Event(ctx, *status.EventRef)
}

func parentRefOf(rc bus.ResourceCtx) string {
	return rc.TypeTag + ":" + strconv.FormatInt(rc.ID, 10)
}

// qualify returns symbol in "<ns>:<symbol>" form, leaving an already
// qualified value untouched.
func qualify(ns, symbol string) string {
	if _, _, err := splitQualified(symbol); err == nil {
		return symbol
	}
	return ns + ":" + symbol
}

func resolveResource(eng *engine.Engine, w http.ResponseWriter, r *http.Request) (bus.ResourceCtx, bool) {
	typeTag := r.PathValue("type")
	idStr := r.PathValue("id")

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return bus.ResourceCtx{}, false
	}

	rt, ok := eng.Resources.Lookup(typeTag)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource type")
		return bus.ResourceCtx{}, false
	}

	return bus.ResourceCtx{TypeTag: typeTag, ID: id, Capabilities: rt.Capabilities}, true
}

// splitQualified reports whether s is already in "<ns>:<symbol>" form.
func splitQualified(s string) (ns, symbol string, err error) {
	for i, c := range s {
		if c == ':' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", errUnqualified
}

var errUnqualified = errors.New("httpapi: value is not namespace-qualified")
