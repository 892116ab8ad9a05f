package engine

import (
	"context"
	"testing"

	"github.com/rathix/workflow-engine/internal/bus"
	"github.com/rathix/workflow-engine/internal/config"
	"github.com/rathix/workflow-engine/internal/eventstore/memstore"
	"github.com/rathix/workflow-engine/internal/outbound"
)

func TestFromConfigWiresResourcesRulesBindingsAndSubscriptions(t *testing.T) {
	store := memstore.New()
	client := outbound.New("http://unused.invalid", "")
	outbox := outbound.NewOutbox(outbound.NewQueue(client))

	cfg := &config.Config{
		Resources: []config.ResourceConfig{
			{Tag: "models", Capabilities: []string{"IModel"}},
		},
		Rules: []config.TransitionRule{
			{Interface: "IModel", Action: "START", From: []string{"pending"}, To: "running"},
			{Interface: "IModel", Action: "FINISH", From: []string{"running"}, To: "done"},
		},
		Bindings: []config.BindingRule{
			{Interface: "IModel", Operation: "run", Result: "success", Action: "FINISH"},
		},
		Subscriptions: []config.SubscriptionConfig{
			{
				Interface: "IModel",
				Selectors: []string{"state:running"},
				Operation: "notify-running",
				Webhook:   config.WebhookTarget{Path: "/hooks/running"},
			},
		},
	}

	eng, err := FromConfig(cfg, store, outbox)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	rt, ok := eng.Resources.Lookup("models")
	if !ok || len(rt.Capabilities) != 1 || rt.Capabilities[0] != "IModel" {
		t.Fatalf("resource lookup = %+v, %v", rt, ok)
	}

	rc := bus.ResourceCtx{TypeTag: "models", ID: 1, Capabilities: []string{"IModel"}}
	store.SetWorkStatus(context.Background(), "models:1", "state:pending", nil)

	evt, err := store.CreateEvent(context.Background(), "models:1", nil, "models", "START", nil)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	res, err := eng.Changer.Perform(context.Background(), rc, "action:START", evt)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if res.NextState != "state:running" {
		t.Errorf("NextState = %q, want state:running", res.NextState)
	}
	if len(res.Dispatches) != 1 || res.Dispatches[0].Path != "/hooks/running" {
		t.Errorf("Dispatches = %+v, want one dispatch to /hooks/running", res.Dispatches)
	}

	matched, bindRes, err := eng.Binder.Bind(context.Background(), eng.Changer, rc, "run", "success", evt)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if !matched {
		t.Fatalf("Bind did not match the configured (run, success) binding")
	}
	if bindRes.NextState != "state:done" {
		t.Errorf("bound transition NextState = %q, want state:done", bindRes.NextState)
	}
}
