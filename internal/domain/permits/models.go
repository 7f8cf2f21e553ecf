package permits

import (
	"time"

	"github.com/shopspring/decimal"

	"permitflow/internal/domain/approval"
	"permitflow/internal/domain/policy"
)

const (
	StatusDraft             = "draft"
	StatusPendingSupervisor = "pending_supervisor"
	StatusPendingHR         = "pending_hr"
	StatusApproved          = "approved"
	StatusRejected          = "rejected"
	StatusInExecution       = "in_execution"
	StatusCompleted         = "completed"
	StatusCancelled         = "cancelled"
)

const (
	PriorityLow    = 1
	PriorityNormal = 2
	PriorityHigh   = 3
)

type Request struct {
	ID                   string            `json:"id"`
	RequestNumber        string            `json:"requestNumber"`
	UserID               string            `json:"userId"`
	TypeID               string            `json:"typeId"`
	Start                time.Time         `json:"startTime"`
	End                  time.Time         `json:"endTime"`
	RequestedHours       decimal.Decimal   `json:"requestedHours"`
	Reason               string            `json:"reason"`
	Status               string            `json:"status"`
	SubmittedAt          *time.Time        `json:"submittedAt,omitempty"`
	CurrentApprovalLevel int               `json:"currentApprovalLevel"`
	Priority             int               `json:"priority"`
	IsUrgent             bool              `json:"isUrgent"`
	CapOverride          bool              `json:"capOverride,omitempty"`
	Documents            []policy.Document `json:"documents"`
	ConsumedHours        decimal.Decimal   `json:"consumedHours"`
	ActualStart          *time.Time        `json:"actualStart,omitempty"`
	ActualEnd            *time.Time        `json:"actualEnd,omitempty"`
	ActualHours          decimal.Decimal   `json:"actualHours"`
	Overtime             bool              `json:"overtime"`
	CancelReason         string            `json:"cancelReason,omitempty"`
	Version              int64             `json:"version"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// Pending reports whether the request is waiting on an approval level.
func (r Request) Pending() bool {
	return r.Status == StatusPendingSupervisor || r.Status == StatusPendingHR
}

func (r Request) snapshot() map[string]any {
	return map[string]any{
		"requestNumber":        r.RequestNumber,
		"status":               r.Status,
		"typeId":               r.TypeID,
		"startTime":            r.Start,
		"endTime":              r.End,
		"requestedHours":       r.RequestedHours.String(),
		"currentApprovalLevel": r.CurrentApprovalLevel,
		"consumedHours":        r.ConsumedHours.String(),
		"version":              r.Version,
	}
}

type CreateInput struct {
	UserID      string
	TypeID      string
	Start       time.Time
	End         time.Time
	Reason      string
	Priority    int
	IsUrgent    bool
	CapOverride bool
}

type UpdateInput struct {
	TypeID      string
	Start       time.Time
	End         time.Time
	Reason      string
	Priority    int
	IsUrgent    bool
	CapOverride bool
}

type DecisionInput struct {
	RequestID  string
	ApproverID string
	Decision   approval.Decision
	Comments   string
	// Level pins the decision to one approval level. Zero uses the level
	// the request is currently waiting on.
	Level int
}

const (
	AttestationStart = "start"
	AttestationEnd   = "end"
)

// Attestation is a check-in or check-out signal from a biometric reader or
// a manual entry.
type Attestation struct {
	RequestID string    `json:"requestId" validate:"required,uuid"`
	Kind      string    `json:"kind" validate:"required,oneof=start end"`
	At        time.Time `json:"at" validate:"required"`
	Source    string    `json:"source"`
	Actor     string    `json:"-"`
}

// Detail is a request together with its approval records.
type Detail struct {
	Request   Request           `json:"request"`
	Approvals []approval.Record `json:"approvals"`
}

// PendingItem is one approval waiting on an approver.
type PendingItem struct {
	Request Request         `json:"request"`
	Record  approval.Record `json:"approval"`
}
