package approval_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permitflow/internal/domain/approval"
	"permitflow/internal/domain/policy"
	"permitflow/internal/platform/clock"
	"permitflow/internal/platform/memstore"
)

func newChain(t *testing.T) (*approval.Chain, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	clk := clock.NewFixed(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	return approval.NewChain(store, store, store, clk, 10), store
}

func decide(level int, approver string, d approval.Decision, comments string) approval.DecideInput {
	return approval.DecideInput{RequestID: "req-1", Level: level, ApproverID: approver, Decision: d, Comments: comments}
}

func TestInitializeCreatesPendingAndInertLevels(t *testing.T) {
	chain, _ := newChain(t)
	ctx := context.Background()

	records, err := chain.Initialize(ctx, "req-1", "sup", "hr")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, approval.StatusPending, records[0].Status)
	assert.Equal(t, "sup", records[0].ApproverID)
	assert.NotNil(t, records[0].ActivatedAt)
	assert.Equal(t, approval.StatusInert, records[1].Status)
	assert.Nil(t, records[1].ActivatedAt)
}

func TestInitializeWithoutSupervisorStartsAtHR(t *testing.T) {
	chain, _ := newChain(t)
	records, err := chain.Initialize(context.Background(), "req-1", "", "hr")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, approval.LevelHR, records[0].Level)
	assert.Equal(t, approval.StatusPending, records[0].Status)

	_, err = chain.Initialize(context.Background(), "req-2", "sup", "")
	assert.ErrorIs(t, err, approval.ErrNoApprover)
}

func TestApproveAdvancesThenCompletes(t *testing.T) {
	chain, _ := newChain(t)
	ctx := context.Background()
	_, err := chain.Initialize(ctx, "req-1", "sup", "hr")
	require.NoError(t, err)

	out, err := chain.Decide(ctx, decide(1, "sup", approval.DecisionApprove, ""))
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeAdvanced, out.Kind)
	assert.Equal(t, approval.LevelHR, out.NextLevel)
	require.NotNil(t, out.Next)
	assert.Equal(t, approval.StatusPending, out.Next.Status)

	out, err = chain.Decide(ctx, decide(2, "hr", approval.DecisionApprove, "ok"))
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeCompleted, out.Kind)
}

func TestRejectCascadesToHigherLevels(t *testing.T) {
	chain, _ := newChain(t)
	ctx := context.Background()
	_, err := chain.Initialize(ctx, "req-1", "sup", "hr")
	require.NoError(t, err)

	out, err := chain.Decide(ctx, decide(1, "sup", approval.DecisionReject, "overlaps with the audit week"))
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeRejected, out.Kind)

	records, err := chain.Records(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, approval.StatusRejected, rec.Status, "level %d", rec.Level)
	}
	assert.Contains(t, records[1].Comments, "supervisor")
}

func TestRejectRequiresComments(t *testing.T) {
	chain, _ := newChain(t)
	ctx := context.Background()
	_, err := chain.Initialize(ctx, "req-1", "sup", "hr")
	require.NoError(t, err)

	_, err = chain.Decide(ctx, decide(1, "sup", approval.DecisionReject, "   "))
	require.ErrorIs(t, err, policy.ErrValidation)
	var verr *policy.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(policy.CodeCommentsRequired))

	records, err := chain.Records(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, records[0].Status)
}

func TestDecideGuards(t *testing.T) {
	chain, _ := newChain(t)
	ctx := context.Background()
	_, err := chain.Initialize(ctx, "req-1", "sup", "hr")
	require.NoError(t, err)

	_, err = chain.Decide(ctx, decide(2, "hr", approval.DecisionApprove, ""))
	assert.ErrorIs(t, err, approval.ErrNotActionable)

	_, err = chain.Decide(ctx, decide(1, "intruder", approval.DecisionApprove, ""))
	assert.ErrorIs(t, err, approval.ErrUnauthorized)

	_, err = chain.Decide(ctx, decide(1, "sup", "maybe", ""))
	assert.ErrorIs(t, err, approval.ErrInvalidDecision)

	_, err = chain.Decide(ctx, decide(3, "sup", approval.DecisionApprove, ""))
	assert.ErrorIs(t, err, approval.ErrRecordNotFound)

	_, err = chain.Decide(ctx, decide(1, "sup", approval.DecisionApprove, ""))
	require.NoError(t, err)
	_, err = chain.Decide(ctx, decide(1, "sup", approval.DecisionApprove, ""))
	assert.ErrorIs(t, err, approval.ErrAlreadyDecided)
}

func TestConcurrentDecisionsOnOneLevelHaveOneWinner(t *testing.T) {
	chain, _ := newChain(t)
	ctx := context.Background()
	_, err := chain.Initialize(ctx, "req-1", "sup", "hr")
	require.NoError(t, err)

	const callers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := approval.DecisionApprove
			if i%2 == 1 {
				d = approval.DecisionReject
			}
			_, err := chain.Decide(ctx, decide(1, "sup", d, fmt.Sprintf("decision number %d", i)))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, approval.ErrAlreadyDecided)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	records, err := chain.Records(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, records[0].Decided())
}

func TestStaleAndMarkReminded(t *testing.T) {
	store := memstore.New()
	clk := clock.NewFixed(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	chain := approval.NewChain(store, store, store, clk, 10)
	ctx := context.Background()
	_, err := chain.Initialize(ctx, "req-1", "sup", "hr")
	require.NoError(t, err)

	stale, err := chain.Stale(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)

	clk.Advance(49 * time.Hour)
	stale, err = chain.Stale(ctx, 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.NoError(t, chain.MarkReminded(ctx, stale[0].ID))

	stale, err = chain.Stale(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
