package fsm

import "github.com/rathix/workflow-engine/internal/ident"

// actionRule is the compiled rule set for one (interface, action) pair: a
// concrete from-state to to-state map, plus at most one ANY/wildcard rule
// that governs any state not covered concretely.
type actionRule struct {
	concrete map[string]string
	wildcard *string
}

// nextState resolves the to-state for current. A concrete rule always wins
// over the wildcard when the resource is in that concrete state.
func (ar actionRule) nextState(current string) (string, bool) {
	if to, ok := ar.concrete[current]; ok {
		return to, true
	}
	if ar.wildcard != nil {
		return *ar.wildcard, true
	}
	return "", false
}

// Builder accumulates allow() rules at configuration time. It is not safe
// for concurrent use; build the whole rule set on one goroutine, then call
// Build once.
type Builder struct {
	table map[string]map[string]*actionRule
}

// NewBuilder creates an empty rule builder.
func NewBuilder() *Builder {
	return &Builder{table: make(map[string]map[string]*actionRule)}
}

// Allow registers a transition rule: for resources exposing iface, action
// moves a resource in any state named in from to to. from may be a single
// state, several states, or the single-element slice []string{ident.Any}.
// to may be a concrete state or ident.Keep.
//
// Two rules naming the same (iface, action, concrete-from-state), or two
// ANY rules for the same (iface, action), are a configuration conflict and
// return a *ConfigError.
func (b *Builder) Allow(iface, action string, from []string, to string) error {
	if len(from) == 0 {
		return &ConfigError{Interface: iface, Action: action, Reason: "from_states must not be empty"}
	}

	ifaceTable, ok := b.table[iface]
	if !ok {
		ifaceTable = make(map[string]*actionRule)
		b.table[iface] = ifaceTable
	}
	ar, ok := ifaceTable[action]
	if !ok {
		ar = &actionRule{concrete: make(map[string]string)}
		ifaceTable[action] = ar
	}

	if len(from) == 1 && from[0] == ident.Any {
		if ar.wildcard != nil {
			return &ConfigError{Interface: iface, Action: action, From: ident.Any, Reason: "duplicate ANY rule"}
		}
		toCopy := to
		ar.wildcard = &toCopy
		return nil
	}

	for _, f := range from {
		if f == ident.Any {
			return &ConfigError{Interface: iface, Action: action, Reason: "ANY must not be combined with concrete from-states"}
		}
		if _, exists := ar.concrete[f]; exists {
			return &ConfigError{Interface: iface, Action: action, From: f, Reason: "duplicate rule for this (interface, action, from-state)"}
		}
		ar.concrete[f] = to
	}
	return nil
}

// Build freezes the accumulated rules into an immutable Machine.
func (b *Builder) Build() *Machine {
	table := make(map[string]map[string]actionRule, len(b.table))
	for iface, actions := range b.table {
		am := make(map[string]actionRule, len(actions))
		for action, ar := range actions {
			concrete := make(map[string]string, len(ar.concrete))
			for k, v := range ar.concrete {
				concrete[k] = v
			}
			am[action] = actionRule{concrete: concrete, wildcard: ar.wildcard}
		}
		table[iface] = am
	}
	return &Machine{table: table}
}
