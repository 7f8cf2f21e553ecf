package permits

type Action string

const (
	ActionEdit           Action = "edit"
	ActionSubmit         Action = "submit"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionCancel         Action = "cancel"
	ActionStartExecution Action = "start_execution"
	ActionEndExecution   Action = "end_execution"
)

var transitions = map[string]map[Action]string{
	StatusDraft: {
		ActionEdit:   StatusDraft,
		ActionSubmit: StatusPendingSupervisor,
		ActionCancel: StatusCancelled,
	},
	StatusPendingSupervisor: {
		ActionApprove: StatusPendingHR,
		ActionReject:  StatusRejected,
		ActionCancel:  StatusCancelled,
	},
	StatusPendingHR: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
		ActionCancel:  StatusCancelled,
	},
	StatusApproved: {
		ActionStartExecution: StatusInExecution,
		ActionCancel:         StatusCancelled,
	},
	StatusInExecution: {
		ActionEndExecution: StatusCompleted,
	},
}

// Next returns the status reached by applying action in from.
func Next(from string, action Action) (string, error) {
	to, ok := transitions[from][action]
	if !ok {
		return "", &TransitionError{From: from, Action: action}
	}
	return to, nil
}

func Allowed(from string, action Action) bool {
	_, ok := transitions[from][action]
	return ok
}

func Terminal(status string) bool {
	return len(transitions[status]) == 0
}

// levelFor maps a pending status to the approval level it waits on.
func levelFor(status string) int {
	switch status {
	case StatusPendingSupervisor:
		return 1
	case StatusPendingHR:
		return 2
	default:
		return 0
	}
}
