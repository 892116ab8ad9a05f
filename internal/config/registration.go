package config

// NotificationEndpointUpdater receives hot-reloaded notification channel
// routing. notifysvc.Executor implements this by swapping its endpoint
// table under lock; the config watcher's reload callback is the only
// caller.
//
// ident and fsm structures freeze at engine.Builder.Build and are never
// touched again: transition rules and capability chains are load-bearing
// for every in-flight resource's current state, so reconciling them after
// startup would mean deciding what happens to a resource sitting in a
// state a reloaded rule set no longer recognizes. Channel routing carries
// no such invariant, so it is the one config section this engine
// reconciles live.
type NotificationEndpointUpdater interface {
	SetChannelEndpoints(channels map[string]ChannelConfig)
}

// ReconcileNotifications applies newCfg's notification channel routing to
// updater when it differs from oldCfg's. Returns whether anything changed.
func ReconcileNotifications(updater NotificationEndpointUpdater, oldCfg, newCfg *Config) bool {
	if newCfg == nil {
		return false
	}
	if oldCfg != nil && channelsEqual(oldCfg.Notifications.Channels, newCfg.Notifications.Channels) {
		return false
	}
	updater.SetChannelEndpoints(newCfg.Notifications.Channels)
	return true
}

func channelsEqual(a, b map[string]ChannelConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for name, cc := range a {
		other, ok := b[name]
		if !ok || other != cc {
			return false
		}
	}
	return true
}
