package domain

import (
	"sort"

	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// StateMachine enforces valid status transitions for one entity kind.
// Invalid transitions return an InvalidStateError (fail-fast approach).
type StateMachine[S ~string, T ~string] struct {
	entity string
	// transitions maps (current state, transition) -> next state
	transitions map[stateTransitionKey[S, T]]S
	terminal    map[S]bool
}

type stateTransitionKey[S ~string, T ~string] struct {
	state      S
	transition T
}

// NewStateMachine creates an empty transition table for the named entity.
func NewStateMachine[S ~string, T ~string](entity string, terminal ...S) *StateMachine[S, T] {
	sm := &StateMachine[S, T]{
		entity:      entity,
		transitions: make(map[stateTransitionKey[S, T]]S),
		terminal:    make(map[S]bool, len(terminal)),
	}
	for _, s := range terminal {
		sm.terminal[s] = true
	}
	return sm
}

// Allow registers from --via--> to for every given source state.
func (sm *StateMachine[S, T]) Allow(via T, to S, from ...S) *StateMachine[S, T] {
	for _, f := range from {
		sm.transitions[stateTransitionKey[S, T]{state: f, transition: via}] = to
	}
	return sm
}

// Transition attempts to transition from the current state using the given action.
// Returns the new state or an error if the transition is invalid.
func (sm *StateMachine[S, T]) Transition(id string, current S, action T) (S, error) {
	next, ok := sm.transitions[stateTransitionKey[S, T]{state: current, transition: action}]
	if !ok {
		return current, appErrors.NewInvalidStateError(sm.entity, id, string(current), string(action))
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *StateMachine[S, T]) CanTransition(current S, action T) bool {
	_, ok := sm.transitions[stateTransitionKey[S, T]{state: current, transition: action}]
	return ok
}

// ValidTransitions returns all valid transitions from the given state, sorted.
func (sm *StateMachine[S, T]) ValidTransitions(state S) []T {
	result := make([]T, 0)
	for key := range sm.transitions {
		if key.state == state {
			result = append(result, key.transition)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// IsTerminal returns true if no further transitions leave the state.
func (sm *StateMachine[S, T]) IsTerminal(state S) bool {
	return sm.terminal[state]
}
