package approval

import "time"

const (
	LevelSupervisor = 1
	LevelHR         = 2
)

const (
	// StatusInert marks a level that exists but cannot be decided until the
	// level below it approves.
	StatusInert    = "inert"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type Record struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"requestId"`
	Level       int        `json:"level"`
	ApproverID  string     `json:"approverId"`
	Status      string     `json:"status"`
	Comments    string     `json:"comments,omitempty"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	RemindedAt  *time.Time `json:"remindedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (r Record) Actionable() bool {
	return r.Status == StatusPending
}

func (r Record) Decided() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

type OutcomeKind string

const (
	OutcomeAdvanced  OutcomeKind = "advanced"
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeRejected  OutcomeKind = "rejected"
)

type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	NextLevel int         `json:"nextLevel,omitempty"`
	Record    Record      `json:"record"`
	// Next is the record activated by an Advanced outcome.
	Next *Record `json:"next,omitempty"`
}

type DecideInput struct {
	RequestID  string
	Level      int
	ApproverID string
	Decision   Decision
	Comments   string
}

func LevelName(level int) string {
	switch level {
	case LevelSupervisor:
		return "supervisor"
	case LevelHR:
		return "hr"
	default:
		return "unknown"
	}
}
