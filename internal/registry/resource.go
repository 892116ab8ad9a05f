// Package registry maps a resource type-tag to its capability chain and
// the thin query/ACL descriptor the excluded routing/ACL layer needs to
// resolve "<type>/<id>" into a concrete resource.
package registry

import "fmt"

// ResourceType describes one registered domain entity kind.
type ResourceType struct {
	// Tag is the stable type-tag (table name) used in routes and event
	// "target" fields, e.g. "models".
	Tag string
	// Capabilities is the ordered interface-inheritance chain, most
	// specific first, e.g. []string{"IFoo", "IModel"}.
	Capabilities []string
	// ACL optionally names the query/ACL config key the excluded
	// authorization layer uses for this type. Empty means "no ACL".
	ACL string
}

// Registry is an append-only map of type-tag to ResourceType, built once
// at configuration time and treated as immutable after engine.Builder.Build.
type Registry struct {
	types map[string]ResourceType
	order []string
}

// New creates an empty resource type registry.
func New() *Registry {
	return &Registry{types: make(map[string]ResourceType)}
}

// Register adds a resource type. Registering the same tag twice with a
// different capability chain is a configuration error.
func (r *Registry) Register(rt ResourceType) error {
	if rt.Tag == "" {
		return fmt.Errorf("registry: resource type tag must not be empty")
	}
	if len(rt.Capabilities) == 0 {
		return fmt.Errorf("registry: resource type %q must declare at least one capability", rt.Tag)
	}
	if existing, ok := r.types[rt.Tag]; ok {
		if !equalChain(existing.Capabilities, rt.Capabilities) {
			return fmt.Errorf("registry: resource type %q already registered with a different capability chain", rt.Tag)
		}
		return nil
	}
	r.types[rt.Tag] = rt
	r.order = append(r.order, rt.Tag)
	return nil
}

// Lookup returns the ResourceType registered for tag.
func (r *Registry) Lookup(tag string) (ResourceType, bool) {
	rt, ok := r.types[tag]
	return rt, ok
}

// CapabilitiesFor returns the capability chain for tag, or nil if unknown.
func (r *Registry) CapabilitiesFor(tag string) []string {
	rt, ok := r.types[tag]
	if !ok {
		return nil
	}
	return rt.Capabilities
}

// Tags returns every registered type-tag in registration order.
func (r *Registry) Tags() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func equalChain(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
