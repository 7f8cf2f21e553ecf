package notifications

import (
	"context"
	"fmt"
	"time"
)

// Event is emitted by the permit workflow after its transaction commits.
type Event struct {
	Type         string         `json:"type"`
	RequestID    string         `json:"requestId"`
	ActorID      string         `json:"actorId"`
	TargetUserID string         `json:"targetUserId"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

// Sink accepts events for asynchronous delivery. Emit never blocks and never
// reports delivery problems to the caller.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}

func render(e Event) (string, string) {
	number, _ := e.Payload["requestNumber"].(string)
	if number == "" {
		number = e.RequestID
	}
	switch e.Type {
	case TypeSubmitted:
		return "Permit awaiting your approval", fmt.Sprintf("Permit %s was submitted and needs your decision.", number)
	case TypeAwaitingApproval:
		return "Permit awaiting HR approval", fmt.Sprintf("Permit %s was approved by the supervisor and needs an HR decision.", number)
	case TypeApproved:
		return "Permit approved", fmt.Sprintf("Permit %s was approved.", number)
	case TypeRejected:
		comments, _ := e.Payload["comments"].(string)
		return "Permit rejected", fmt.Sprintf("Permit %s was rejected: %s", number, comments)
	case TypeCancelled:
		return "Permit cancelled", fmt.Sprintf("Permit %s was cancelled.", number)
	case TypeReminder:
		return "Pending permit reminder", fmt.Sprintf("Permit %s is still waiting for your decision.", number)
	case TypeExecutionStarted:
		return "Permit started", fmt.Sprintf("Permit %s is now in progress.", number)
	case TypeCompleted:
		return "Permit completed", fmt.Sprintf("Permit %s was completed.", number)
	default:
		return "Permit update", fmt.Sprintf("Permit %s changed: %s.", number, e.Type)
	}
}
