package config

// Config is the top-level engine configuration parsed from the YAML rule
// file.
type Config struct {
	Engine        EngineConfig         `yaml:"engine"        json:"engine"`
	Resources     []ResourceConfig     `yaml:"resources"     json:"resources"`
	Rules         []TransitionRule     `yaml:"rules"         json:"rules"`
	Bindings      []BindingRule        `yaml:"bindings"      json:"bindings"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`
	Notifications NotificationsConfig  `yaml:"notifications" json:"notifications"`
	Database      DatabaseConfig       `yaml:"database"       json:"database"`
}

// EngineConfig holds process-wide engine settings, including the
// outbound credentials for the backends the engine dispatches tasks to:
// its own public base URL, the task-queue backend ("torque"), and the
// notification delivery backend ("webhooks"). These are ordinarily
// supplied via environment variables rather than the rule file — see
// ApplyEnv.
type EngineConfig struct {
	DefaultState string `yaml:"defaultState" json:"defaultState"`
	APIKey       string `yaml:"apiKey"       json:"apiKey"`
	URL          string `yaml:"url"          json:"url"`

	TorqueURL      string `yaml:"torqueUrl"      json:"torqueUrl"`
	TorqueAPIKey   string `yaml:"torqueApiKey"   json:"torqueApiKey"`
	WebhooksURL    string `yaml:"webhooksUrl"    json:"webhooksUrl"`
	WebhooksAPIKey string `yaml:"webhooksApiKey" json:"webhooksApiKey"`
}

// ResourceConfig declares one resource type: its tag and its capability
// chain, most-specific interface first, as consumed by internal/registry.
type ResourceConfig struct {
	Tag          string   `yaml:"tag"          json:"tag"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

// TransitionRule is one allow(interface, action, from, to) FSM rule, as
// consumed by internal/fsm.Builder.Allow.
type TransitionRule struct {
	Interface string   `yaml:"interface" json:"interface"`
	Action    string   `yaml:"action"    json:"action"`
	From      []string `yaml:"from"      json:"from"`
	To        string   `yaml:"to"        json:"to"`
}

// BindingRule binds an operation/result pair to an action for an
// interface, as consumed by internal/binder.Binder.After.
type BindingRule struct {
	Interface string `yaml:"interface" json:"interface"`
	Operation string `yaml:"operation" json:"operation"`
	Result    string `yaml:"result"    json:"result"`
	Action    string `yaml:"action"    json:"action"`
}

// SubscriptionConfig registers one bus handler that forwards matching
// notices to an outbound webhook.
type SubscriptionConfig struct {
	Interface string        `yaml:"interface" json:"interface"`
	Selectors []string      `yaml:"selectors" json:"selectors"`
	Operation string        `yaml:"operation" json:"operation"`
	Webhook   WebhookTarget `yaml:"webhook"   json:"webhook"`
}

// WebhookTarget is the outbound HTTP call a subscription dispatches.
type WebhookTarget struct {
	Path    string            `yaml:"path"    json:"path"`
	Method  string            `yaml:"method"  json:"method"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// NotificationsConfig routes each notification channel to its delivery
// backend endpoints. This section is safe to hot-reload: unlike
// Resources/Rules/Bindings (compiled once into frozen ident/fsm tables at
// startup), channel routing has no compiled representation to invalidate.
type NotificationsConfig struct {
	Channels map[string]ChannelConfig `yaml:"channels" json:"channels"`
}

// ChannelConfig names a channel backend's single-send and batch-send
// paths. Batch may be empty to force sequential single sends.
type ChannelConfig struct {
	SingleURL string `yaml:"singleUrl" json:"singleUrl"`
	BatchURL  string `yaml:"batchUrl"  json:"batchUrl"`
}

// DatabaseConfig configures the durable event store connection.
type DatabaseConfig struct {
	URL string `yaml:"url" json:"url"`
}
