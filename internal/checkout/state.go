package checkout

import "fmt"

// State is a step of one checkout submission.
type State string

const (
	StateIdle          State = "idle"
	StateValidating    State = "validating"
	StateBuildingOrder State = "building_order"
	StateNotifying     State = "notifying"
	StateFinalizing    State = "finalizing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// transitions lists the legal next states. Once an order exists the only way out
// is through Finalizing to Done; Failed is reachable only before that.
var transitions = map[State][]State{
	StateIdle:          {StateValidating},
	StateValidating:    {StateIdle, StateBuildingOrder},
	StateBuildingOrder: {StateNotifying, StateFailed},
	StateNotifying:     {StateFinalizing},
	StateFinalizing:    {StateDone},
}

// Observer is told about every transition of a submission.
type Observer func(sessionID string, from, to State)

// machine tracks one submission's state.
type machine struct {
	session  string
	state    State
	observer Observer
}

func newMachine(session string, observer Observer) *machine {
	return &machine{session: session, state: StateIdle, observer: observer}
}

// to moves to next, rejecting transitions the flow does not allow.
func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			from := m.state
			m.state = next
			if m.observer != nil {
				m.observer(m.session, from, next)
			}
			return nil
		}
	}
	return fmt.Errorf("checkout: illegal transition %s -> %s", m.state, next)
}

// CanTransition reports whether the flow allows moving from one state to another.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
