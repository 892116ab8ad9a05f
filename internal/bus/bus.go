// Package bus is the selector-based subscription dispatcher: on every state
// change or action occurrence it fans out to registered handlers in
// interface-inheritance order and collects their outbound dispatches.
//
// Handlers register against a capability tag and a set of selectors rather
// than a single hardcoded event type, so one notice can fan out to every
// interface a resource implements, most specific first.
package bus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/rathix/workflow-engine/internal/eventstore"
	"github.com/rathix/workflow-engine/internal/ident"
	"github.com/rathix/workflow-engine/internal/task"
)

// NoticeKind distinguishes a state-change notice from an action-occurrence
// notice.
type NoticeKind int

const (
	Changed NoticeKind = iota
	Happened
)

func (k NoticeKind) String() string {
	if k == Changed {
		return "changed"
	}
	return "happened"
}

// ResourceCtx identifies the resource a notice is about.
type ResourceCtx struct {
	TypeTag string
	ID      int64
	// Capabilities is the resource type's capability chain, most specific
	// first.
	Capabilities []string
}

// Notice is published by the FSM evaluator after a transition.
type Notice struct {
	Kind NoticeKind
	// Selector is the qualified value this notice carries: "state:<S>" for
	// Changed, "action:<A>" for Happened.
	Selector  string
	Resource  ResourceCtx
	Event     eventstore.EventRecord
	Operation string
}

// Handler is invoked once per matching subscription. It returns a mapping
// of operation name to the dispatches it produced.
type Handler func(ctx context.Context, rc ResourceCtx, evt eventstore.EventRecord, operation string) (map[string][]task.Dispatch, error)

// Outcome is the accumulated result of a Publish call.
type Outcome struct {
	// Handled lists the operation label of every handler invoked (matched
	// and called, independent of success), in invocation order.
	Handled []string
	// Dispatches is the concatenation of every handler's returned
	// dispatches, in invocation order.
	Dispatches []task.Dispatch
}

type subscription struct {
	selector  string
	operation string
	handler   Handler
	seq       int
}

// Bus is a registration table built once at configuration time and
// dispatched against concurrently thereafter; On is not safe to call once
// Publish has begun.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription // keyed by capability tag
	seq    int
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus's logger. The default discards output until one
// is supplied.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string][]subscription),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers handler against iface for every selector given. operation
// labels the subscription (reported in Outcome.Handled and in logs).
func (b *Bus) On(iface string, selectors []string, operation string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sel := range selectors {
		b.seq++
		b.subs[iface] = append(b.subs[iface], subscription{
			selector:  sel,
			operation: operation,
			handler:   handler,
			seq:       b.seq,
		})
	}
}

// Publish fans n out to every handler subscribed to an interface in
// n.Resource.Capabilities whose selector matches, most-specific-interface
// first and registration order within an interface. A handler panic or
// returned error is logged and isolated; it does not prevent later handlers
// from running.
func (b *Bus) Publish(ctx context.Context, n Notice) Outcome {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out Outcome
	for _, iface := range n.Resource.Capabilities {
		for _, s := range b.subs[iface] {
			if !selectorMatches(s.selector, n) {
				continue
			}
			out.Handled = append(out.Handled, s.operation)

			result, err := invoke(ctx, s.handler, n)
			if err != nil {
				b.logger.Warn("subscription handler failed",
					"interface", iface,
					"operation", s.operation,
					"error", err,
				)
				continue
			}
			for _, dispatches := range result {
				out.Dispatches = append(out.Dispatches, dispatches...)
			}
		}
	}
	return out
}

// invoke calls handler, converting a panic into an error so that one
// misbehaving handler cannot abort dispatch to the rest.
func invoke(ctx context.Context, handler Handler, n Notice) (m map[string][]task.Dispatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, n.Resource, n.Event, n.Operation)
}

func selectorMatches(selector string, n Notice) bool {
	if selector == ident.Any {
		return true
	}
	switch {
	case strings.HasPrefix(selector, "state:"):
		return n.Kind == Changed && selector == n.Selector
	case strings.HasPrefix(selector, "action:"):
		return n.Kind == Happened && selector == n.Selector
	default:
		return false
	}
}
