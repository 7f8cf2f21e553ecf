package notifications

const (
	TypeSubmitted        = "submitted"
	TypeAwaitingApproval = "awaiting_approval"
	TypeApproved         = "approved"
	TypeRejected         = "rejected"
	TypeCancelled        = "cancelled"
	TypeReminder         = "reminder"
	TypeExecutionStarted = "execution_started"
	TypeCompleted        = "completed"
)
