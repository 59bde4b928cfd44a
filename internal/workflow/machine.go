package workflow

import (
	"fmt"
	"sort"

	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

// Action names a guarded transition.
type Action string

// Edge is a transition allowed from any of From into To.
type Edge[S ~string] struct {
	From []S
	To   S
}

// Machine is a fixed transition table for one aggregate type.
type Machine[S ~string] struct {
	name  string
	edges map[Action]Edge[S]
}

// NewMachine builds a machine from its transition table.
func NewMachine[S ~string](name string, edges map[Action]Edge[S]) *Machine[S] {
	copied := make(map[Action]Edge[S], len(edges))
	for action, edge := range edges {
		copied[action] = Edge[S]{From: append([]S(nil), edge.From...), To: edge.To}
	}
	return &Machine[S]{name: name, edges: copied}
}

// Fire returns the target state of action from current, or an InvalidState error.
func (m *Machine[S]) Fire(action Action, current S) (S, error) {
	edge, ok := m.edges[action]
	if !ok {
		var zero S
		return zero, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("%s: unknown action %q", m.name, action))
	}
	for _, from := range edge.From {
		if from == current {
			return edge.To, nil
		}
	}
	var zero S
	return zero, appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("%s cannot %s from %s", m.name, action, current)),
		map[string]interface{}{"currentStatus": string(current), "action": string(action)},
	)
}

// Can reports whether action is allowed from current.
func (m *Machine[S]) Can(action Action, current S) bool {
	_, err := m.Fire(action, current)
	return err == nil
}

// Actions lists the actions available from current, sorted by name.
func (m *Machine[S]) Actions(current S) []Action {
	var out []Action
	for action := range m.edges {
		if m.Can(action, current) {
			out = append(out, action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
