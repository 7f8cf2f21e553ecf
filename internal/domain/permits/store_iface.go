package permits

import (
	"context"
	"fmt"
	"time"

	"permitflow/internal/domain/policy"
)

type StoreAPI interface {
	policy.RequestReader
	Insert(ctx context.Context, r Request) (Request, error)
	Get(ctx context.Context, id string, forUpdate bool) (Request, error)
	// Update writes r when its version still matches and bumps the version.
	Update(ctx context.Context, r Request) (Request, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Request, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	NextRequestNumber(ctx context.Context, at time.Time) (string, error)
}

type Directory interface {
	ImmediateSupervisor(ctx context.Context, userID string) (string, error)
	HRApprover(ctx context.Context, userID string) (string, error)
	IsHR(ctx context.Context, userID string) (bool, error)
}

type Recorder interface {
	Transition(status string)
	BalanceAnomaly()
	Retry()
	TransientFailure()
}

type nopRecorder struct{}

func (nopRecorder) Transition(string) {}
func (nopRecorder) BalanceAnomaly()   {}
func (nopRecorder) Retry()            {}
func (nopRecorder) TransientFailure() {}

// FormatRequestNumber renders the PER-YYYYMM-NNNN request number.
func FormatRequestNumber(at time.Time, seq int) string {
	return fmt.Sprintf("PER-%s-%04d", at.Format("200601"), seq)
}
