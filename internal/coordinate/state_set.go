package coordinate

import (
	"strings"

	"github.com/roach88/stampview/internal/entity"
)

// StateSet is an immutable set of stamp states.
type StateSet uint16

// Common state sets.
var (
	ActiveOnly                 = StatesOf(entity.StateActive)
	ActiveAndInactive          = StatesOf(entity.StateActive, entity.StateInactive)
	ActiveInactiveAndWithdrawn = StatesOf(entity.StateActive, entity.StateInactive, entity.StateWithdrawn)
	InactiveOnly               = StatesOf(entity.StateInactive)
	WithdrawnOnly              = StatesOf(entity.StateWithdrawn)
)

// StatesOf returns the set of the given states.
func StatesOf(states ...entity.State) StateSet {
	var s StateSet
	for _, st := range states {
		s |= 1 << st
	}
	return s
}

// Contains reports whether st is in the set.
func (s StateSet) Contains(st entity.State) bool {
	return s&(1<<st) != 0
}

// IsEmpty reports whether the set admits no state.
func (s StateSet) IsEmpty() bool { return s == 0 }

// States lists the members in declaration order.
func (s StateSet) States() []entity.State {
	var out []entity.State
	for _, st := range entity.AllStates {
		if s.Contains(st) {
			out = append(out, st)
		}
	}
	return out
}

// Names lists the member names in declaration order.
func (s StateSet) Names() []string {
	states := s.States()
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = st.String()
	}
	return out
}

// String implements fmt.Stringer.
func (s StateSet) String() string {
	return "{" + strings.Join(s.Names(), ", ") + "}"
}

// ParseStates parses state names.
func ParseStates(names ...string) (StateSet, error) {
	var s StateSet
	for _, n := range names {
		st, err := entity.ParseState(n)
		if err != nil {
			return 0, err
		}
		s |= StatesOf(st)
	}
	return s, nil
}
