package balance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type StoreAPI interface {
	// GetBucket returns ErrBucketNotFound when the period has no bucket yet.
	// forUpdate locks the row until the surrounding transaction ends.
	GetBucket(ctx context.Context, key Key, forUpdate bool) (Bucket, error)
	// InsertBucket stores b unless the key already exists; created is false
	// and the existing bucket is returned in that case.
	InsertBucket(ctx context.Context, b Bucket) (stored Bucket, created bool, err error)
	// UpdateBucket writes b when its Version still matches and returns the
	// stored bucket with the next version, or ErrConcurrentModification.
	UpdateBucket(ctx context.Context, b Bucket) (Bucket, error)
	ListBuckets(ctx context.Context, userID string, year int) ([]Bucket, error)
	ListPeriodBuckets(ctx context.Context, year int, month time.Month, typeIDs []string) ([]Bucket, error)
}

// AllowanceCalculator seeds new buckets and recomputes them on reset.
type AllowanceCalculator interface {
	InitialAllowance(ctx context.Context, key Key) (decimal.Decimal, error)
}
