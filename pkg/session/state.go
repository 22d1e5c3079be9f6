// Package session tracks call lifecycles and dispatches conversation turns
// through the guard pipeline and the speech/response collaborators.
package session

// CallState is a call's lifecycle stage.
type CallState string

const (
	StateInitiated  CallState = "INITIATED"
	StateRinging    CallState = "RINGING"
	StateAnswered   CallState = "ANSWERED"
	StateInProgress CallState = "IN_PROGRESS"
	StateCompleted  CallState = "COMPLETED"
	StateFailed     CallState = "FAILED"
)

// Terminal reports whether no further transitions or turns are possible.
func (s CallState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// validTransitions encodes the forward-only lifecycle. FAILED is reachable
// from every non-terminal state; COMPLETED is too, since carriers can end a
// call before it is answered. Some carriers skip RINGING entirely.
var validTransitions = map[CallState][]CallState{
	StateInitiated:  {StateRinging, StateAnswered, StateCompleted, StateFailed},
	StateRinging:    {StateAnswered, StateCompleted, StateFailed},
	StateAnswered:   {StateInProgress, StateCompleted, StateFailed},
	StateInProgress: {StateCompleted, StateFailed},
}

func canTransition(from, to CallState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
