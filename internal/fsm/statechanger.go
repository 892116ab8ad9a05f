package fsm

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rathix/workflow-engine/internal/bus"
	"github.com/rathix/workflow-engine/internal/eventstore"
	"github.com/rathix/workflow-engine/internal/ident"
	"github.com/rathix/workflow-engine/internal/metrics"
	"github.com/rathix/workflow-engine/internal/task"
)

// Result is returned by StateChanger.Perform.
type Result struct {
	NextState  string
	Changed    bool
	Dispatches []task.Dispatch
	// Handled lists the operation label of every subscription handler
	// invoked across both the changed and happened notices.
	Handled []string
}

// StateChanger wires a compiled Machine to an event store and a
// subscription bus to execute transitions with their full side effects:
// WorkStatus append, derived ActivityEvent synthesis, and notice dispatch.
type StateChanger struct {
	machine *Machine
	store   eventstore.Store
	bus     *bus.Bus
}

// NewStateChanger builds a StateChanger over machine, store, and b.
func NewStateChanger(machine *Machine, store eventstore.Store, b *bus.Bus) *StateChanger {
	return &StateChanger{machine: machine, store: store, bus: b}
}

// CanPerform reports whether action is currently permitted for rc, reading
// its current state from the store.
func (sc *StateChanger) CanPerform(ctx context.Context, rc bus.ResourceCtx, action string) (bool, error) {
	current, ok, err := sc.currentState(ctx, rc)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return sc.machine.CanPerform(rc.Capabilities, current, action), nil
}

func (sc *StateChanger) currentState(ctx context.Context, rc bus.ResourceCtx) (string, bool, error) {
	rec, ok, err := sc.store.CurrentStatus(ctx, parentRefOf(rc))
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return rec.Value, true, nil
}

func parentRefOf(rc bus.ResourceCtx) string {
	return fmt.Sprintf("%s:%d", rc.TypeTag, rc.ID)
}

// Perform executes action against rc, using event as the triggering
// ActivityEvent. event.ParentRef must equal rc's parent_ref.
//
// Ordered contract:
//  1. resolve a machine for action against rc's capability chain; if none,
//     or the current state isn't covered, fail with ErrInvalidTransition.
//  2. compute next_state, resolving KEEP to the current state.
//  3. if next_state != current: append a WorkStatus row, synthesise a
//     derived ActivityEvent, and publish a "changed" notice.
//  4. regardless, publish a "happened" notice.
//  5. return the next state, whether it changed, and the accumulated
//     dispatches from every invoked subscription handler.
func (sc *StateChanger) Perform(ctx context.Context, rc bus.ResourceCtx, action string, event eventstore.EventRecord) (result Result, err error) {
	timer := prometheus.NewTimer(metrics.TransitionDuration.WithLabelValues(strings.Join(rc.Capabilities, ","), action))
	defer func() {
		timer.ObserveDuration()
		outcome := "ok"
		if err != nil {
			outcome = "rejected"
		}
		metrics.TransitionsTotal.WithLabelValues(strings.Join(rc.Capabilities, ","), action, outcome).Inc()
	}()

	current, ok, cerr := sc.currentState(ctx, rc)
	if cerr != nil {
		return Result{}, cerr
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: %s has no current state", ErrInvalidTransition, parentRefOf(rc))
	}

	r, found := sc.machine.lookup(rc.Capabilities, action)
	if !found {
		return Result{}, fmt.Errorf("%w: no rule permits %s for %s", ErrInvalidTransition, action, parentRefOf(rc))
	}
	next, ok := r.rule.nextState(current)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s not permitted from %s", ErrInvalidTransition, action, current)
	}
	if next == ident.Keep {
		next = current
	}

	changed := next != current
	var handled []string
	var dispatches []task.Dispatch

	if changed {
		if _, err := sc.store.SetWorkStatus(ctx, parentRefOf(rc), next, &event.ID); err != nil {
			return Result{}, fmt.Errorf("set work status: %w", err)
		}

		derived, err := sc.store.CreateEvent(ctx, event.ParentRef, event.UserRef, rc.TypeTag, localSymbol(next), nil)
		if err != nil {
			return Result{}, fmt.Errorf("create derived event: %w", err)
		}

		outcome := sc.bus.Publish(ctx, bus.Notice{
			Kind:      bus.Changed,
			Selector:  next,
			Resource:  rc,
			Event:     derived,
			Operation: action,
		})
		handled = append(handled, outcome.Handled...)
		dispatches = append(dispatches, outcome.Dispatches...)
	}

	outcome := sc.bus.Publish(ctx, bus.Notice{
		Kind:      bus.Happened,
		Selector:  action,
		Resource:  rc,
		Event:     event,
		Operation: action,
	})
	handled = append(handled, outcome.Handled...)
	dispatches = append(dispatches, outcome.Dispatches...)

	return Result{NextState: next, Changed: changed, Dispatches: dispatches, Handled: handled}, nil
}

// localSymbol returns the unqualified symbol of a "<ns>:<SYMBOL>" value.
func localSymbol(qualified string) string {
	if i := strings.IndexByte(qualified, ':'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}
