package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/rathix/workflow-engine/internal/bus"
	"github.com/rathix/workflow-engine/internal/eventstore"
	"github.com/rathix/workflow-engine/internal/eventstore/memstore"
)

func newResource(t *testing.T, store eventstore.Store, rc bus.ResourceCtx, initial string) {
	t.Helper()
	if _, err := store.SetWorkStatus(context.Background(), parentRefOf(rc), initial, nil); err != nil {
		t.Fatalf("seed initial state: %v", err)
	}
}

func TestHappyPathTransition(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	b := NewBuilder()
	if err := b.Allow("IModel", "action:START", []string{"state:CREATED"}, "state:STARTED"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	sc := NewStateChanger(b.Build(), store, bus.New())

	rc := bus.ResourceCtx{TypeTag: "models", ID: 1, Capabilities: []string{"IModel"}}
	newResource(t, store, rc, "state:CREATED")

	triggering, err := store.CreateEvent(ctx, parentRefOf(rc), nil, "models", "start", nil)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	result, err := sc.Perform(ctx, rc, "action:START", triggering)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if result.NextState != "state:STARTED" || !result.Changed {
		t.Errorf("result = %+v, want NextState=state:STARTED Changed=true", result)
	}

	cur, ok, err := store.CurrentStatus(ctx, parentRefOf(rc))
	if err != nil || !ok {
		t.Fatalf("CurrentStatus: ok=%v err=%v", ok, err)
	}
	if cur.Value != "state:STARTED" {
		t.Errorf("current status = %q, want state:STARTED", cur.Value)
	}

	events, err := store.Events(ctx, parentRefOf(rc))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Type() == "models:STARTED" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a derived models:STARTED event, got %+v", events)
	}
}

func TestKeepSentinelLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	b := NewBuilder()
	if err := b.Allow("IModel", "action:POKE", []string{"*"}, "KEEP"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	sc := NewStateChanger(b.Build(), store, bus.New())

	rc := bus.ResourceCtx{TypeTag: "models", ID: 1, Capabilities: []string{"IModel"}}
	newResource(t, store, rc, "state:CREATED")
	triggering, _ := store.CreateEvent(ctx, parentRefOf(rc), nil, "models", "poke", nil)

	before, err := store.Events(ctx, parentRefOf(rc))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	result, err := sc.Perform(ctx, rc, "action:POKE", triggering)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if result.Changed {
		t.Error("expected Changed=false for a KEEP rule")
	}
	if result.NextState != "state:CREATED" {
		t.Errorf("NextState = %q, want state:CREATED", result.NextState)
	}

	after, err := store.Events(ctx, parentRefOf(rc))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("expected no derived event appended for KEEP, before=%d after=%d", len(before), len(after))
	}
}

func TestInterfaceSpecificityPicksMostSpecificRule(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder()
	if err := b.Allow("IModel", "action:PUBLISH", []string{"state:DRAFTED"}, "state:PUBLISHED"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if err := b.Allow("IFoo", "action:PUBLISH", []string{"state:DRAFTED"}, "state:PENDING_MODERATION"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	machine := b.Build()

	fooStore := memstore.New()
	sc := NewStateChanger(machine, fooStore, bus.New())
	foo := bus.ResourceCtx{TypeTag: "models", ID: 1, Capabilities: []string{"IFoo", "IModel"}}
	newResource(t, fooStore, foo, "state:DRAFTED")
	evt, _ := fooStore.CreateEvent(ctx, parentRefOf(foo), nil, "models", "publish", nil)

	result, err := sc.Perform(ctx, foo, "action:PUBLISH", evt)
	if err != nil {
		t.Fatalf("Perform (foo): %v", err)
	}
	if result.NextState != "state:PENDING_MODERATION" {
		t.Errorf("foo NextState = %q, want state:PENDING_MODERATION", result.NextState)
	}

	modelStore := memstore.New()
	sc2 := NewStateChanger(machine, modelStore, bus.New())
	model := bus.ResourceCtx{TypeTag: "models", ID: 2, Capabilities: []string{"IModel"}}
	newResource(t, modelStore, model, "state:DRAFTED")
	evt2, _ := modelStore.CreateEvent(ctx, parentRefOf(model), nil, "models", "publish", nil)

	result2, err := sc2.Perform(ctx, model, "action:PUBLISH", evt2)
	if err != nil {
		t.Fatalf("Perform (model): %v", err)
	}
	if result2.NextState != "state:PUBLISHED" {
		t.Errorf("model NextState = %q, want state:PUBLISHED", result2.NextState)
	}
}

func TestPerformFailsWithInvalidTransitionWhenNoRuleMatches(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sc := NewStateChanger(NewBuilder().Build(), store, bus.New())

	rc := bus.ResourceCtx{TypeTag: "models", ID: 1, Capabilities: []string{"IModel"}}
	newResource(t, store, rc, "state:CREATED")
	evt, _ := store.CreateEvent(ctx, parentRefOf(rc), nil, "models", "start", nil)

	_, err := sc.Perform(ctx, rc, "action:START", evt)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestReplayingPerformAfterTransitionFails(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	b := NewBuilder()
	b.Allow("IModel", "action:START", []string{"state:S1"}, "state:S2")
	sc := NewStateChanger(b.Build(), store, bus.New())

	rc := bus.ResourceCtx{TypeTag: "models", ID: 1, Capabilities: []string{"IModel"}}
	newResource(t, store, rc, "state:S1")
	evt, _ := store.CreateEvent(ctx, parentRefOf(rc), nil, "models", "start", nil)

	if _, err := sc.Perform(ctx, rc, "action:START", evt); err != nil {
		t.Fatalf("first Perform: %v", err)
	}

	_, err := sc.Perform(ctx, rc, "action:START", evt)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("replay err = %v, want ErrInvalidTransition", err)
	}
}
