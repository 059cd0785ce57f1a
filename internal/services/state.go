package services

// State is a step of the registration protocol.
type State int

const (
	StateCheckingCompletion State = iota
	StateRequesting
	StateValidating
	StatePersisting
	StateCleaningUp
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateCheckingCompletion: "checking_completion",
	StateRequesting:         "requesting",
	StateValidating:         "validating",
	StatePersisting:         "persisting",
	StateCleaningUp:         "cleaning_up",
	StateDone:               "done",
	StateFailed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
