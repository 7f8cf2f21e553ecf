package balance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies one monthly bucket.
type Key struct {
	UserID string     `json:"userId"`
	TypeID string     `json:"typeId"`
	Year   int        `json:"year"`
	Month  time.Month `json:"month"`
}

func KeyFor(userID, typeID string, at time.Time) Key {
	return Key{UserID: userID, TypeID: typeID, Year: at.Year(), Month: at.Month()}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%04d-%02d", k.UserID, k.TypeID, k.Year, int(k.Month))
}

type Bucket struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	TypeID    string          `json:"typeId"`
	Year      int             `json:"year"`
	Month     time.Month      `json:"month"`
	Available decimal.Decimal `json:"availableHours"`
	Used      decimal.Decimal `json:"usedHours"`
	Remaining decimal.Decimal `json:"remainingHours"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (b Bucket) Key() Key {
	return Key{UserID: b.UserID, TypeID: b.TypeID, Year: b.Year, Month: b.Month}
}

// Low reports a bucket whose usage has reached or passed its allowance.
func (b Bucket) Low() bool {
	return b.Used.GreaterThanOrEqual(b.Available)
}

// Ref ties a ledger mutation to the actor and request that caused it.
type Ref struct {
	Actor     string
	RequestID string
}

type ResetSummary struct {
	Year           int        `json:"year"`
	Month          time.Month `json:"month"`
	BucketsReset   int        `json:"bucketsReset"`
	BucketsCreated int        `json:"bucketsCreated"`
}

// RemainingHours is available minus used, floored at zero.
func RemainingHours(available, used decimal.Decimal) decimal.Decimal {
	remaining := available.Sub(used)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// HasSufficient reports whether b can cover hours.
func HasSufficient(b Bucket, hours decimal.Decimal) bool {
	return b.Remaining.GreaterThanOrEqual(hours)
}

func snapshot(b Bucket) map[string]any {
	return map[string]any{
		"userId":         b.UserID,
		"typeId":         b.TypeID,
		"year":           b.Year,
		"month":          int(b.Month),
		"availableHours": b.Available.String(),
		"usedHours":      b.Used.String(),
		"remainingHours": b.Remaining.String(),
	}
}
