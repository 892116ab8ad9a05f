// Package binder closes the operation→result→action loop: when a remote
// operation reports back via POST /results, the Binder finds the action
// bound to that (operation, result) pair and performs it.
package binder

import (
	"context"
	"fmt"
	"sync"

	"github.com/rathix/workflow-engine/internal/bus"
	"github.com/rathix/workflow-engine/internal/eventstore"
	"github.com/rathix/workflow-engine/internal/fsm"
	"github.com/rathix/workflow-engine/internal/metrics"
)

// Binder is a registration table of (interface, operation, result) → action
// bindings, built once at configuration time.
type Binder struct {
	mu sync.RWMutex
	// table[iface][operation][result] = action
	table map[string]map[string]map[string]string

	dedupMu sync.Mutex
	dedup   map[string]fsm.Result
}

// New creates an empty Binder.
func New() *Binder {
	return &Binder{
		table: make(map[string]map[string]map[string]string),
		dedup: make(map[string]fsm.Result),
	}
}

// After registers a binding: when a result for operation arrives for a
// resource exposing iface, action is performed.
func (bd *Binder) After(iface, operation, result, action string) {
	bd.mu.Lock()
	defer bd.mu.Unlock()

	ops, ok := bd.table[iface]
	if !ok {
		ops = make(map[string]map[string]string)
		bd.table[iface] = ops
	}
	results, ok := ops[operation]
	if !ok {
		results = make(map[string]string)
		ops[operation] = results
	}
	results[result] = action
}

// lookup walks capabilities most-specific-first and returns the action
// bound to the first interface declaring a rule for (operation, result).
func (bd *Binder) lookup(capabilities []string, operation, result string) (string, bool) {
	bd.mu.RLock()
	defer bd.mu.RUnlock()

	for _, iface := range capabilities {
		ops, ok := bd.table[iface]
		if !ok {
			continue
		}
		results, ok := ops[operation]
		if !ok {
			continue
		}
		if action, ok := results[result]; ok {
			return action, true
		}
	}
	return "", false
}

// Bind applies the transition bound to (operation, result) against rc,
// using event as the triggering ActivityEvent. matched is false if no
// binding exists for rc's capability chain (the caller should respond 204).
//
// Replaying the same (operation, result, event.ID) triple is idempotent:
// the second and later calls return the first call's result without
// performing the transition again.
func (bd *Binder) Bind(ctx context.Context, sc *fsm.StateChanger, rc bus.ResourceCtx, operation, result string, event eventstore.EventRecord) (matched bool, _ fsm.Result, _ error) {
	action, ok := bd.lookup(rc.Capabilities, operation, result)
	if !ok {
		return false, fsm.Result{}, nil
	}

	key := dedupKey(operation, result, event.ID)

	bd.dedupMu.Lock()
	if cached, ok := bd.dedup[key]; ok {
		bd.dedupMu.Unlock()
		return true, cached, nil
	}
	bd.dedupMu.Unlock()

	res, err := sc.Perform(ctx, rc, action, event)
	if err != nil {
		return true, fsm.Result{}, err
	}
	metrics.BindingsAppliedTotal.WithLabelValues(operation, result).Inc()

	bd.dedupMu.Lock()
	bd.dedup[key] = res
	bd.dedupMu.Unlock()

	return true, res, nil
}

func dedupKey(operation, result string, eventID int64) string {
	return fmt.Sprintf("%s|%s|%d", operation, result, eventID)
}
