package fsm

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by StateChanger.Perform when no compiled
// rule permits the action from the resource's current state. It is a
// user-level error: reported to the caller, never retried.
var ErrInvalidTransition = errors.New("fsm: invalid transition")

// ConfigError is returned by Builder.Allow for a duplicate or malformed
// rule. It is fatal at start-up.
type ConfigError struct {
	Interface string
	Action    string
	From      string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("fsm: config error for (%s, %s, from=%s): %s", e.Interface, e.Action, e.From, e.Reason)
	}
	return fmt.Sprintf("fsm: config error for (%s, %s): %s", e.Interface, e.Action, e.Reason)
}
