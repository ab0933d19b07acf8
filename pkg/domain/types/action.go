package types

import "fmt"

// Action is a slash command operation
type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionStatus Action = "status"
	ActionSetup  Action = "setup"
	ActionHelp   Action = "help"
)

// AllActions returns all valid actions
func AllActions() []Action {
	return []Action{
		ActionOpen,
		ActionClose,
		ActionStatus,
		ActionSetup,
		ActionHelp,
	}
}

// IsValid checks if the action is valid
func (a Action) IsValid() bool {
	switch a {
	case ActionOpen, ActionClose, ActionStatus, ActionSetup, ActionHelp:
		return true
	default:
		return false
	}
}

// IsTransition reports whether the action changes session state and is run
// through the retry coordinator with a channel visible result.
func (a Action) IsTransition() bool {
	return a == ActionOpen || a == ActionClose
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// ParseAction parses a string into an Action
func ParseAction(s string) (Action, error) {
	action := Action(s)
	if !action.IsValid() {
		return "", fmt.Errorf("invalid action: %s", s)
	}
	return action, nil
}
