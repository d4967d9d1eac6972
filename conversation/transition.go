package conversation

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a tool part update would move its
// state backwards or between two different terminal states.
var ErrIllegalTransition = errors.New("illegal tool state transition")

// TransitionError describes a rejected tool state transition.
type TransitionError struct {
	PartID string
	From   ToolStatus
	To     ToolStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("tool part %s: %s -> %s", e.PartID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// rank orders statuses along pending -> running -> {completed | error}.
func (s ToolStatus) rank() int {
	switch s {
	case ToolStatusPending:
		return 1
	case ToolStatusRunning:
		return 2
	case ToolStatusCompleted, ToolStatusError:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether a tool part may move from one status to
// another. Staying in place and skipping forward are allowed; moving back,
// leaving a terminal state, or switching terminal outcome are not. An
// unknown source status accepts anything.
func CanTransition(from, to ToolStatus) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	return to.rank() >= from.rank()
}

// CheckPartTransition validates replacing existing with incoming. Only
// tool-on-tool replacements are checked.
func CheckPartTransition(existing, incoming Part) error {
	if !existing.IsTool() || !incoming.IsTool() {
		return nil
	}
	from, to := existing.State.Status, incoming.State.Status
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{PartID: incoming.ID, From: from, To: to}
}
