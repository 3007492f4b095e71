package reportq

// State is where a delivery task currently lives.
type State string

const (
	// StatePending contains tasks ready for an attempt (LIST).
	StatePending State = "pending"
	// StateActive contains tasks leased by a worker (ZSET).
	StateActive State = "active"
	// StateDelayed contains tasks waiting out their retry delay (ZSET).
	StateDelayed State = "delayed"
	// StateSent contains delivered tasks kept for their retention (ZSET).
	StateSent State = "sent"
	// StateDead contains permanently failed tasks (LIST).
	StateDead State = "dead"
)

// AllStates lists every valid queue state in a stable order.
var AllStates = []State{StatePending, StateActive, StateDelayed, StateSent, StateDead}

func (s State) String() string { return string(s) }

// ParseState converts a string into a State, returning ErrUnknownState for unknown values.
func ParseState(s string) (State, error) {
	for _, st := range AllStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrUnknownState
}
