package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML rule file at path.
// If path does not exist or is empty, it returns an empty Config with no
// errors — the engine can still run driven purely by environment
// variables (see ApplyEnv) and runtime registration calls.
// If the YAML is malformed, it returns nil config with a parse error.
// For validation errors, it returns a valid config with invalid entries
// stripped plus errors describing what was removed.
func Load(path string) (*Config, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, []error{fmt.Errorf("failed to read config file: %w", err)}
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return &Config{}, nil
	}

	// Expand ${ENV_VAR} references before parsing YAML.
	data = []byte(os.Expand(string(data), os.Getenv))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, []error{fmt.Errorf("failed to parse config YAML: %w", err)}
	}

	var validationErrors []error

	validResources := make([]ResourceConfig, 0, len(cfg.Resources))
	seenTags := make(map[string]struct{}, len(cfg.Resources))
	for i, rc := range cfg.Resources {
		tag := strings.TrimSpace(rc.Tag)
		if tag == "" {
			validationErrors = append(validationErrors, fmt.Errorf("resources[%d].tag: required field missing", i))
			continue
		}
		if _, dup := seenTags[tag]; dup {
			validationErrors = append(validationErrors, fmt.Errorf("resources[%d].tag: duplicate resource tag %q", i, tag))
			continue
		}
		if len(rc.Capabilities) == 0 {
			validationErrors = append(validationErrors, fmt.Errorf("resources[%d].capabilities: at least one interface required", i))
			continue
		}
		seenTags[tag] = struct{}{}
		validResources = append(validResources, rc)
	}
	cfg.Resources = validResources

	validRules := make([]TransitionRule, 0, len(cfg.Rules))
	for i, r := range cfg.Rules {
		valid := true
		if strings.TrimSpace(r.Interface) == "" {
			validationErrors = append(validationErrors, fmt.Errorf("rules[%d].interface: required field missing", i))
			valid = false
		}
		if strings.TrimSpace(r.Action) == "" {
			validationErrors = append(validationErrors, fmt.Errorf("rules[%d].action: required field missing", i))
			valid = false
		}
		if strings.TrimSpace(r.To) == "" {
			validationErrors = append(validationErrors, fmt.Errorf("rules[%d].to: required field missing", i))
			valid = false
		}
		if len(r.From) == 0 {
			validationErrors = append(validationErrors, fmt.Errorf("rules[%d].from: at least one source state required", i))
			valid = false
		}
		if valid {
			validRules = append(validRules, r)
		}
	}
	cfg.Rules = validRules

	validBindings := make([]BindingRule, 0, len(cfg.Bindings))
	for i, b := range cfg.Bindings {
		if strings.TrimSpace(b.Interface) == "" || strings.TrimSpace(b.Operation) == "" ||
			strings.TrimSpace(b.Result) == "" || strings.TrimSpace(b.Action) == "" {
			validationErrors = append(validationErrors, fmt.Errorf("bindings[%d]: interface, operation, result, and action are all required", i))
			continue
		}
		validBindings = append(validBindings, b)
	}
	cfg.Bindings = validBindings

	validSubs := make([]SubscriptionConfig, 0, len(cfg.Subscriptions))
	for i, s := range cfg.Subscriptions {
		if strings.TrimSpace(s.Interface) == "" {
			validationErrors = append(validationErrors, fmt.Errorf("subscriptions[%d].interface: required field missing", i))
			continue
		}
		if len(s.Selectors) == 0 {
			validationErrors = append(validationErrors, fmt.Errorf("subscriptions[%d].selectors: at least one selector required", i))
			continue
		}
		if strings.TrimSpace(s.Webhook.Path) == "" {
			validationErrors = append(validationErrors, fmt.Errorf("subscriptions[%d].webhook.path: required field missing", i))
			continue
		}
		if s.Webhook.Method == "" {
			s.Webhook.Method = "POST"
		}
		validSubs = append(validSubs, s)
	}
	cfg.Subscriptions = validSubs

	return &cfg, validationErrors
}

// ApplyEnv overlays the engine's environment-variable configuration onto
// cfg, taking precedence over whatever the rule file set. Secrets in
// particular are expected to arrive this way rather than live in the
// checked-in rule file.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	overlay := func(dst *string, envVar string) {
		if v, ok := os.LookupEnv(envVar); ok && v != "" {
			*dst = v
		}
	}
	overlay(&cfg.Engine.APIKey, "ENGINE_API_KEY")
	overlay(&cfg.Engine.URL, "ENGINE_URL")
	overlay(&cfg.Engine.DefaultState, "ENGINE_DEFAULT_STATE")
	overlay(&cfg.Engine.TorqueAPIKey, "TORQUE_API_KEY")
	overlay(&cfg.Engine.TorqueURL, "TORQUE_URL")
	overlay(&cfg.Engine.WebhooksAPIKey, "WEBHOOKS_API_KEY")
	overlay(&cfg.Engine.WebhooksURL, "WEBHOOKS_URL")
	overlay(&cfg.Database.URL, "DATABASE_URL")
}
