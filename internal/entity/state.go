package entity

import (
	"fmt"

	"github.com/roach88/stampview/internal/errors"
)

// State is the status component of a stamp.
type State uint8

const (
	StateUnspecified State = iota
	StateActive
	StateInactive
	StateWithdrawn
	StateCanceled
	StatePrimordial
)

var stateNames = map[State]string{
	StateActive:     "active",
	StateInactive:   "inactive",
	StateWithdrawn:  "withdrawn",
	StateCanceled:   "canceled",
	StatePrimordial: "primordial",
}

// AllStates lists every assignable state in declaration order.
var AllStates = []State{StateActive, StateInactive, StateWithdrawn, StateCanceled, StatePrimordial}

// String implements fmt.Stringer.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// IsValid reports whether s is an assignable state.
func (s State) IsValid() bool {
	_, ok := stateNames[s]
	return ok
}

// ParseState parses a state name as produced by String.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return StateUnspecified, errors.Newf("unknown state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, errors.Newf("cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
