package config

import "testing"

type fakeEndpointUpdater struct {
	calls   int
	applied map[string]ChannelConfig
}

func (f *fakeEndpointUpdater) SetChannelEndpoints(channels map[string]ChannelConfig) {
	f.calls++
	f.applied = channels
}

func TestReconcileNotificationsAppliesOnFirstLoad(t *testing.T) {
	updater := &fakeEndpointUpdater{}
	newCfg := &Config{
		Notifications: NotificationsConfig{
			Channels: map[string]ChannelConfig{
				"email": {SingleURL: "https://mail.example/send"},
			},
		},
	}

	changed := ReconcileNotifications(updater, nil, newCfg)

	if !changed {
		t.Fatal("expected changed = true on first load")
	}
	if updater.calls != 1 {
		t.Fatalf("expected 1 call, got %d", updater.calls)
	}
	if updater.applied["email"].SingleURL != "https://mail.example/send" {
		t.Errorf("unexpected applied channels: %+v", updater.applied)
	}
}

func TestReconcileNotificationsSkipsWhenUnchanged(t *testing.T) {
	updater := &fakeEndpointUpdater{}
	cfg := &Config{
		Notifications: NotificationsConfig{
			Channels: map[string]ChannelConfig{
				"sms": {SingleURL: "https://sms.example/send", BatchURL: "https://sms.example/batch"},
			},
		},
	}

	ReconcileNotifications(updater, nil, cfg)
	if updater.calls != 1 {
		t.Fatalf("expected 1 call after first load, got %d", updater.calls)
	}

	changed := ReconcileNotifications(updater, cfg, cfg)
	if changed {
		t.Fatal("expected changed = false when channels are identical")
	}
	if updater.calls != 1 {
		t.Fatalf("expected no additional call, got %d total", updater.calls)
	}
}

func TestReconcileNotificationsAppliesWhenURLChanges(t *testing.T) {
	updater := &fakeEndpointUpdater{}
	oldCfg := &Config{
		Notifications: NotificationsConfig{
			Channels: map[string]ChannelConfig{
				"email": {SingleURL: "https://old.example/send"},
			},
		},
	}
	newCfg := &Config{
		Notifications: NotificationsConfig{
			Channels: map[string]ChannelConfig{
				"email": {SingleURL: "https://new.example/send"},
			},
		},
	}

	changed := ReconcileNotifications(updater, oldCfg, newCfg)

	if !changed {
		t.Fatal("expected changed = true when a channel URL changes")
	}
	if updater.applied["email"].SingleURL != "https://new.example/send" {
		t.Errorf("expected updated URL to be applied, got %+v", updater.applied)
	}
}

func TestReconcileNotificationsNilNewConfigNoOp(t *testing.T) {
	updater := &fakeEndpointUpdater{}
	oldCfg := &Config{
		Notifications: NotificationsConfig{
			Channels: map[string]ChannelConfig{"email": {SingleURL: "https://old.example/send"}},
		},
	}

	changed := ReconcileNotifications(updater, oldCfg, nil)

	if changed {
		t.Fatal("expected changed = false for nil new config")
	}
	if updater.calls != 0 {
		t.Fatalf("expected no call for nil new config, got %d", updater.calls)
	}
}

func TestReconcileNotificationsDetectsAddedAndRemovedChannels(t *testing.T) {
	updater := &fakeEndpointUpdater{}
	oldCfg := &Config{
		Notifications: NotificationsConfig{
			Channels: map[string]ChannelConfig{"email": {SingleURL: "https://mail.example/send"}},
		},
	}
	newCfg := &Config{
		Notifications: NotificationsConfig{
			Channels: map[string]ChannelConfig{"sms": {SingleURL: "https://sms.example/send"}},
		},
	}

	changed := ReconcileNotifications(updater, oldCfg, newCfg)

	if !changed {
		t.Fatal("expected changed = true when the channel set differs")
	}
	if _, ok := updater.applied["email"]; ok {
		t.Error("expected removed channel to be absent from applied set")
	}
	if _, ok := updater.applied["sms"]; !ok {
		t.Error("expected added channel to be present in applied set")
	}
}
