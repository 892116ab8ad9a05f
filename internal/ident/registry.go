// Package ident implements the namespaced identifier registries described
// by the engine: append-only symbol tables for states, actions, operations
// and results that freeze into an immutable lookup table once finalised.
package ident

import (
	"fmt"
	"sync"
)

// Sentinel symbols reserved across all namespaces.
const (
	// Any matches any from-state in an FSM rule.
	Any = "*"
	// Keep means "do not change the current state".
	Keep = "KEEP"
)

// ConfigError is raised for duplicate rules, unknown symbols, or
// registrations attempted after a namespace has been finalised.
type ConfigError struct {
	Namespace string
	Symbol    string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ident: namespace %q, symbol %q: %s", e.Namespace, e.Symbol, e.Reason)
}

// Registry holds one or more namespaces, each an append-only symbol table
// until Finalise is called on it.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]string // ns -> symbol -> qualified
	finalised  map[string]bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		namespaces: make(map[string]map[string]string),
		finalised:  make(map[string]bool),
	}
}

// Register adds symbols to ns. Re-registering an existing symbol is a
// no-op. Registering after Finalise(ns) returns a ConfigError.
func (r *Registry) Register(ns string, symbols ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalised[ns] {
		for _, s := range symbols {
			if _, ok := r.namespaces[ns][s]; !ok {
				return &ConfigError{Namespace: ns, Symbol: s, Reason: "registration after namespace finalised"}
			}
		}
		return nil
	}

	table, ok := r.namespaces[ns]
	if !ok {
		table = make(map[string]string)
		r.namespaces[ns] = table
	}
	for _, s := range symbols {
		if _, exists := table[s]; exists {
			continue
		}
		table[s] = ns + ":" + s
	}
	return nil
}

// Finalise freezes ns: subsequent Register calls for new symbols fail.
func (r *Registry) Finalise(ns string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalised[ns] = true
	if _, ok := r.namespaces[ns]; !ok {
		r.namespaces[ns] = make(map[string]string)
	}
}

// Finalised reports whether ns has been finalised.
func (r *Registry) Finalised(ns string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalised[ns]
}

// Lookup returns the qualified form "<ns>:<symbol>" for symbol in ns.
func (r *Registry) Lookup(ns, symbol string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.namespaces[ns]
	if !ok {
		return "", &ConfigError{Namespace: ns, Symbol: symbol, Reason: "unknown namespace"}
	}
	qualified, ok := table[symbol]
	if !ok {
		return "", &ConfigError{Namespace: ns, Symbol: symbol, Reason: "unknown symbol"}
	}
	return qualified, nil
}

// Symbols returns every symbol registered in ns, in no particular order.
func (r *Registry) Symbols(ns string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table := r.namespaces[ns]
	out := make([]string, 0, len(table))
	for s := range table {
		out = append(out, s)
	}
	return out
}

// Qualify builds the qualified form of a symbol without requiring prior
// registration — used for the reserved sentinels (Any, Keep) which exist
// outside the append-only contract.
func Qualify(ns, symbol string) string {
	return ns + ":" + symbol
}
