// Package engine wires the ident, registry, fsm, bus, and binder packages
// together from a parsed config.Config into the running machinery an HTTP
// server dispatches requests against, via a single explicit build step run
// once at startup that turns configuration into wired collaborators.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rathix/workflow-engine/internal/binder"
	"github.com/rathix/workflow-engine/internal/bus"
	"github.com/rathix/workflow-engine/internal/config"
	"github.com/rathix/workflow-engine/internal/eventstore"
	"github.com/rathix/workflow-engine/internal/fsm"
	"github.com/rathix/workflow-engine/internal/ident"
	"github.com/rathix/workflow-engine/internal/outbound"
	"github.com/rathix/workflow-engine/internal/registry"
	"github.com/rathix/workflow-engine/internal/task"
)

const (
	nsState  = "state"
	nsAction = "action"
)

// Engine holds the fully built, immutable-after-Build collaborators an
// HTTP server needs to handle events, results, and liveness.
type Engine struct {
	Idents    *ident.Registry
	Resources *registry.Registry
	Machine   *fsm.Machine
	Bus       *bus.Bus
	Binder    *binder.Binder
	Changer   *fsm.StateChanger
	Store     eventstore.Store
}

// Builder accumulates resource types, rules, bindings, and subscriptions
// from config, then compiles them once via Build. It is not safe for
// concurrent use; build on one goroutine before serving traffic.
type Builder struct {
	idents    *ident.Registry
	resources *registry.Registry
	fsmB      *fsm.Builder
	bus       *bus.Bus
	binder    *binder.Binder
	store     eventstore.Store
	outbox    *outbound.Outbox
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger passed through to the Bus.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a Builder over store, delivering subscription
// dispatches through outbox.
func NewBuilder(store eventstore.Store, outbox *outbound.Outbox, opts ...Option) *Builder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := &Builder{
		idents:    ident.New(),
		resources: registry.New(),
		fsmB:      fsm.NewBuilder(),
		store:     store,
		outbox:    outbox,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.bus = bus.New(bus.WithLogger(b.logger))
	b.binder = binder.New()
	return b
}

// LoadResource registers one resource type's capability chain.
func (b *Builder) LoadResource(rc config.ResourceConfig) error {
	return b.resources.Register(registry.ResourceType{Tag: rc.Tag, Capabilities: rc.Capabilities})
}

// LoadRule compiles one allow() rule, qualifying its state and action
// symbols through the ident registries as it goes.
func (b *Builder) LoadRule(r config.TransitionRule) error {
	if err := b.idents.Register(nsAction, r.Action); err != nil {
		return err
	}
	action := ident.Qualify(nsAction, r.Action)

	from := make([]string, len(r.From))
	for i, f := range r.From {
		if f == ident.Any {
			from[i] = ident.Any
			continue
		}
		if err := b.idents.Register(nsState, f); err != nil {
			return err
		}
		from[i] = ident.Qualify(nsState, f)
	}

	to := r.To
	if to != ident.Keep {
		if err := b.idents.Register(nsState, to); err != nil {
			return err
		}
		to = ident.Qualify(nsState, to)
	}

	return b.fsmB.Allow(r.Interface, action, from, to)
}

// LoadBinding registers one operation/result → action binding.
func (b *Builder) LoadBinding(br config.BindingRule) error {
	b.binder.After(br.Interface, br.Operation, br.Result, ident.Qualify(nsAction, br.Action))
	return nil
}

// LoadSubscription registers a bus handler that, on a matching notice,
// buffers an outbound webhook call onto the builder's Outbox for delivery
// once the enclosing request's transaction commits.
func (b *Builder) LoadSubscription(sc config.SubscriptionConfig) error {
	target := sc.Webhook
	b.bus.On(sc.Interface, sc.Selectors, sc.Operation, func(ctx context.Context, rc bus.ResourceCtx, evt eventstore.EventRecord, operation string) (map[string][]task.Dispatch, error) {
		d := task.Dispatch{
			Path:   target.Path,
			Method: target.Method,
			Body: map[string]any{
				"type_tag":   rc.TypeTag,
				"id":         rc.ID,
				"operation":  operation,
				"event_id":   evt.ID,
				"event_type": evt.Type(),
			},
			Headers: target.Headers,
		}
		b.outbox.BufferForCommit(d)
		return map[string][]task.Dispatch{operation: {d}}, nil
	})
	return nil
}

// Build finalises the state and action ident namespaces and compiles the accumulated
// rules into the running Engine. Call this exactly once, after every
// LoadResource/LoadRule/LoadBinding/LoadSubscription call.
func (b *Builder) Build() (*Engine, error) {
	b.idents.Finalise(nsState)
	b.idents.Finalise(nsAction)

	machine := b.fsmB.Build()
	changer := fsm.NewStateChanger(machine, b.store, b.bus)

	return &Engine{
		Idents:    b.idents,
		Resources: b.resources,
		Machine:   machine,
		Bus:       b.bus,
		Binder:    b.binder,
		Changer:   changer,
		Store:     b.store,
	}, nil
}

// FromConfig builds a full Engine from cfg in one call.
func FromConfig(cfg *config.Config, store eventstore.Store, outbox *outbound.Outbox, opts ...Option) (*Engine, error) {
	b := NewBuilder(store, outbox, opts...)
	for _, rc := range cfg.Resources {
		if err := b.LoadResource(rc); err != nil {
			return nil, fmt.Errorf("engine: load resource %q: %w", rc.Tag, err)
		}
	}
	for _, r := range cfg.Rules {
		if err := b.LoadRule(r); err != nil {
			return nil, fmt.Errorf("engine: load rule %s/%s: %w", r.Interface, r.Action, err)
		}
	}
	for _, br := range cfg.Bindings {
		if err := b.LoadBinding(br); err != nil {
			return nil, fmt.Errorf("engine: load binding %s/%s/%s: %w", br.Interface, br.Operation, br.Result, err)
		}
	}
	for _, sc := range cfg.Subscriptions {
		if err := b.LoadSubscription(sc); err != nil {
			return nil, fmt.Errorf("engine: load subscription for %q: %w", sc.Interface, err)
		}
	}
	return b.Build()
}
