package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"permitflow/internal/domain/audit"
	"permitflow/internal/platform/clock"
	"permitflow/internal/platform/querier"
)

const (
	ActionCreate  = "balance.create"
	ActionConsume = "balance.consume"
	ActionReturn  = "balance.return"
	ActionReset   = "balance.reset"

	systemActor = "system"
)

// Ledger owns every mutation of balance buckets. Callers never write buckets
// directly; each mutation runs in a unit of work with the row locked.
type Ledger struct {
	Store      StoreAPI
	Tx         querier.Transactor
	Allowances AllowanceCalculator
	Audit      audit.Sink
	Clock      clock.Clock
}

func NewLedger(store StoreAPI, tx querier.Transactor, allowances AllowanceCalculator, auditSink audit.Sink, clk clock.Clock) *Ledger {
	return &Ledger{Store: store, Tx: tx, Allowances: allowances, Audit: auditSink, Clock: clk}
}

// GetOrCreate returns the bucket for key, seeding it with the type's initial
// allowance on first access.
func (l *Ledger) GetOrCreate(ctx context.Context, key Key) (Bucket, error) {
	var out Bucket
	err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := l.getOrCreate(ctx, key, false)
		out = b
		return err
	})
	return out, err
}

// Consume takes hours from the bucket for key. It fails with an
// *InsufficientBalanceError and leaves the bucket untouched when the
// remaining balance cannot cover hours.
func (l *Ledger) Consume(ctx context.Context, key Key, hours decimal.Decimal, ref Ref) (Bucket, error) {
	if !hours.IsPositive() {
		return Bucket{}, ErrInvalidHours
	}
	var out Bucket
	err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := l.getOrCreate(ctx, key, true)
		if err != nil {
			return err
		}
		if !HasSufficient(b, hours) {
			return &InsufficientBalanceError{Key: key, Remaining: b.Remaining, Requested: hours}
		}

		before := snapshot(b)
		b.Used = b.Used.Add(hours)
		b.Remaining = RemainingHours(b.Available, b.Used)
		b.UpdatedAt = l.now()
		updated, err := l.Store.UpdateBucket(ctx, b)
		if err != nil {
			return err
		}
		out = updated
		return l.record(ctx, ref, ActionConsume, updated, before, hours)
	})
	return out, err
}

// ReturnHours gives back up to hours previously consumed. Used never drops
// below zero, so repeated returns are safe.
func (l *Ledger) ReturnHours(ctx context.Context, key Key, hours decimal.Decimal, ref Ref) (Bucket, error) {
	if !hours.IsPositive() {
		return Bucket{}, ErrInvalidHours
	}
	var out Bucket
	err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := l.Store.GetBucket(ctx, key, true)
		if err != nil {
			return err
		}

		returned := decimal.Min(b.Used, hours)
		if !returned.IsPositive() {
			out = b
			return nil
		}
		before := snapshot(b)
		b.Used = b.Used.Sub(returned)
		b.Remaining = RemainingHours(b.Available, b.Used)
		b.UpdatedAt = l.now()
		updated, err := l.Store.UpdateBucket(ctx, b)
		if err != nil {
			return err
		}
		out = updated
		return l.record(ctx, ref, ActionReturn, updated, before, returned)
	})
	return out, err
}

// ResetPeriod recomputes the allowance and zeroes usage of every bucket of
// the given month for typeIDs, creating buckets for users that have none yet.
// Each type is reset in its own unit of work.
func (l *Ledger) ResetPeriod(ctx context.Context, year int, month time.Month, typeIDs, userIDs []string, actor string) (ResetSummary, error) {
	summary := ResetSummary{Year: year, Month: month}
	if actor == "" {
		actor = systemActor
	}

	for _, typeID := range typeIDs {
		err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
			existing, err := l.Store.ListPeriodBuckets(ctx, year, month, []string{typeID})
			if err != nil {
				return err
			}
			seen := make(map[string]bool, len(existing))
			for _, b := range existing {
				seen[b.UserID] = true
			}
			for _, userID := range userIDs {
				if seen[userID] {
					continue
				}
				seen[userID] = true
				existing = append(existing, Bucket{UserID: userID, TypeID: typeID, Year: year, Month: month})
			}

			for _, candidate := range existing {
				key := candidate.Key()
				b, err := l.Store.GetBucket(ctx, key, true)
				if errors.Is(err, ErrBucketNotFound) {
					if _, err := l.create(ctx, key); err != nil {
						return err
					}
					summary.BucketsCreated++
					continue
				}
				if err != nil {
					return err
				}

				available, err := l.Allowances.InitialAllowance(ctx, key)
				if err != nil {
					return err
				}
				before := snapshot(b)
				b.Available = available
				b.Used = decimal.Zero
				b.Remaining = RemainingHours(b.Available, b.Used)
				b.UpdatedAt = l.now()
				updated, err := l.Store.UpdateBucket(ctx, b)
				if err != nil {
					return err
				}
				if err := l.record(ctx, Ref{Actor: actor}, ActionReset, updated, before, decimal.Zero); err != nil {
					return err
				}
				summary.BucketsReset++
			}
			return nil
		})
		if err != nil {
			return summary, fmt.Errorf("reset %s %04d-%02d: %w", typeID, year, int(month), err)
		}
	}
	return summary, nil
}

func (l *Ledger) ListBuckets(ctx context.Context, userID string, year int) ([]Bucket, error) {
	return l.Store.ListBuckets(ctx, userID, year)
}

func (l *Ledger) getOrCreate(ctx context.Context, key Key, forUpdate bool) (Bucket, error) {
	b, err := l.Store.GetBucket(ctx, key, forUpdate)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrBucketNotFound) {
		return Bucket{}, err
	}
	if _, err := l.create(ctx, key); err != nil {
		return Bucket{}, err
	}
	// Re-read so a concurrently inserted row is the one we lock.
	return l.Store.GetBucket(ctx, key, forUpdate)
}

func (l *Ledger) create(ctx context.Context, key Key) (Bucket, error) {
	available, err := l.Allowances.InitialAllowance(ctx, key)
	if err != nil {
		return Bucket{}, err
	}
	now := l.now()
	b := Bucket{
		UserID:    key.UserID,
		TypeID:    key.TypeID,
		Year:      key.Year,
		Month:     key.Month,
		Available: available,
		Used:      decimal.Zero,
		Remaining: RemainingHours(available, decimal.Zero),
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, created, err := l.Store.InsertBucket(ctx, b)
	if err != nil {
		return Bucket{}, err
	}
	if created {
		if err := l.record(ctx, Ref{Actor: systemActor}, ActionCreate, stored, nil, available); err != nil {
			return Bucket{}, err
		}
	}
	return stored, nil
}

func (l *Ledger) record(ctx context.Context, ref Ref, action string, b Bucket, before map[string]any, hours decimal.Decimal) error {
	if l.Audit == nil {
		return nil
	}
	after := snapshot(b)
	after["hours"] = hours.String()
	if ref.RequestID != "" {
		after["requestId"] = ref.RequestID
	}
	if b.Low() && action == ActionConsume {
		slog.Warn("balance bucket exhausted", "bucket", b.Key().String(), "used", b.Used.String(), "available", b.Available.String())
	}
	var oldValue any
	if before != nil {
		oldValue = before
	}
	actor := ref.Actor
	if actor == "" {
		actor = systemActor
	}
	return l.Audit.Record(ctx, audit.Record{
		Actor:      actor,
		Action:     action,
		EntityType: audit.EntityBalanceBucket,
		EntityID:   b.ID,
		OldValue:   oldValue,
		NewValue:   after,
		Timestamp:  l.now(),
	})
}

func (l *Ledger) now() time.Time {
	if l.Clock == nil {
		return time.Now()
	}
	return l.Clock.Now()
}
