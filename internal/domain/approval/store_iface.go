package approval

import (
	"context"
	"time"
)

type StoreAPI interface {
	InsertRecords(ctx context.Context, records []Record) ([]Record, error)
	// GetRecord returns ErrRecordNotFound; forUpdate locks the row.
	GetRecord(ctx context.Context, requestID string, level int, forUpdate bool) (Record, error)
	// UpdateRecord writes rec only while the stored status still equals
	// fromStatus, otherwise ErrConcurrentModification.
	UpdateRecord(ctx context.Context, rec Record, fromStatus string) (Record, error)
	ListRecords(ctx context.Context, requestID string) ([]Record, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]Record, error)
	// ListStale returns pending records activated before cutoff that have not
	// been reminded since cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]Record, error)
	MarkReminded(ctx context.Context, recordID string, at time.Time) error
}
