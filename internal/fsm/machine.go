package fsm

// Machine is a compiled, immutable rule table. It is built once at
// configuration time by Builder.Build and is safe for unsynchronised
// concurrent reads thereafter.
type Machine struct {
	table map[string]map[string]actionRule
}

// resolution is the rule found for an action, together with the interface
// it was resolved against.
type resolution struct {
	iface string
	rule  actionRule
}

// lookup walks capabilities most-specific-first and returns the rule set
// for the first interface that declares any rule for action at all.
func (m *Machine) lookup(capabilities []string, action string) (resolution, bool) {
	for _, iface := range capabilities {
		if am, ok := m.table[iface]; ok {
			if ar, ok := am[action]; ok {
				return resolution{iface: iface, rule: ar}, true
			}
		}
	}
	return resolution{}, false
}

// CanPerform reports whether action is permitted for a resource with the
// given capability chain currently in state current.
func (m *Machine) CanPerform(capabilities []string, current, action string) bool {
	r, ok := m.lookup(capabilities, action)
	if !ok {
		return false
	}
	_, ok = r.rule.nextState(current)
	return ok
}
