package permits_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permitflow/internal/domain/approval"
	"permitflow/internal/domain/balance"
	"permitflow/internal/domain/directory"
	"permitflow/internal/domain/notifications"
	"permitflow/internal/domain/permits"
	"permitflow/internal/domain/policy"
	"permitflow/internal/platform/clock"
	"permitflow/internal/platform/memstore"
	"permitflow/internal/platform/metrics"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.June, day, hour, minute, 0, 0, time.UTC)
}

type harness struct {
	svc     *permits.Service
	store   *memstore.Store
	ledger  *balance.Ledger
	chain   *approval.Chain
	events  *memstore.Events
	metrics *metrics.Collector
	clock   *clock.Fixed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	for _, u := range []directory.User{
		{ID: "sup", Role: directory.RoleSupervisor, Active: true},
		{ID: "hr", Role: directory.RoleHR, Active: true},
		{ID: "u1", Role: directory.RoleEmployee, SupervisorID: "sup", Active: true},
		{ID: "u2", Role: directory.RoleEmployee, SupervisorID: "sup", Active: true},
	} {
		require.NoError(t, store.UpsertUser(ctx, u))
	}

	clk := clock.NewFixed(at(2, 7, 0))
	cfg := policy.DefaultConfig()
	rules := policy.DefaultRegistry()
	ledger := balance.NewLedger(store, store, policy.NewAllowances(rules, cfg, store), store, clk)
	chain := approval.NewChain(store, store, store, clk, cfg.MinRejectComments)
	events := &memstore.Events{}
	collector := metrics.New()

	svc := permits.NewService(permits.Deps{
		Store:  store,
		Tx:     store,
		Chain:  chain,
		Ledger: ledger,
		Validator: &policy.Validator{
			Rules:     rules,
			Config:    cfg,
			Requests:  store,
			Documents: store,
			Directory: store,
			Balances:  ledger,
			Clock:     clk,
		},
		Rules:     rules,
		Directory: store,
		Events:    events,
		Audit:     store,
		Metrics:   collector,
		Clock:     clk,
		Config:    cfg,
	})
	return &harness{svc: svc, store: store, ledger: ledger, chain: chain, events: events, metrics: collector, clock: clk}
}

var juneAffairs = balance.Key{UserID: "u1", TypeID: policy.TypeParticularAffairs, Year: 2025, Month: time.June}

func (h *harness) draft(t *testing.T) permits.Request {
	t.Helper()
	req, err := h.svc.Create(context.Background(), "u1", permits.CreateInput{
		TypeID: policy.TypeParticularAffairs,
		Start:  at(10, 9, 0),
		End:    at(10, 11, 0),
		Reason: "notary appointment",
	})
	require.NoError(t, err)
	return req
}

func (h *harness) approved(t *testing.T) permits.Request {
	t.Helper()
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, "sup", req.ID, "")
	require.NoError(t, err)
	out, err := h.svc.Approve(ctx, "hr", req.ID, "")
	require.NoError(t, err)
	return out
}

func (h *harness) bucket(t *testing.T) balance.Bucket {
	t.Helper()
	b, err := h.ledger.GetOrCreate(context.Background(), juneAffairs)
	require.NoError(t, err)
	return b
}

func TestCreateDraft(t *testing.T) {
	h := newHarness(t)
	req := h.draft(t)

	assert.Equal(t, permits.StatusDraft, req.Status)
	assert.Equal(t, "PER-202506-0001", req.RequestNumber)
	assert.Equal(t, "2", req.RequestedHours.String())
	assert.Equal(t, permits.PriorityNormal, req.Priority)
	assert.Len(t, h.store.AuditTrail(permits.AuditCreate), 1)

	second := h.draftAt(t, 11)
	assert.Equal(t, "PER-202506-0002", second.RequestNumber)
}

func (h *harness) draftAt(t *testing.T, day int) permits.Request {
	t.Helper()
	req, err := h.svc.Create(context.Background(), "u1", permits.CreateInput{
		TypeID: policy.TypeParticularAffairs,
		Start:  at(day, 9, 0),
		End:    at(day, 10, 0),
		Reason: "bank errand",
	})
	require.NoError(t, err)
	return req
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, "u1", permits.CreateInput{TypeID: policy.TypeParticularAffairs, Start: at(10, 9, 0), End: at(10, 12, 0), Reason: "x", Priority: 7})
	require.ErrorIs(t, err, policy.ErrValidation)
	var verr *policy.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(policy.CodeDailyCap))
	assert.True(t, verr.Has("priority_range"))

	_, err = h.svc.Create(ctx, "u2", permits.CreateInput{UserID: "u1", TypeID: policy.TypeParticularAffairs, Start: at(10, 9, 0), End: at(10, 10, 0), Reason: "x"})
	assert.ErrorIs(t, err, permits.ErrUnauthorized)

	_, err = h.svc.Create(ctx, "u1", permits.CreateInput{TypeID: policy.TypeSickness, Start: at(10, 8, 0), End: at(10, 13, 0), Reason: "x", CapOverride: true})
	assert.ErrorIs(t, err, permits.ErrUnauthorized)

	req, err := h.svc.Create(ctx, "hr", permits.CreateInput{UserID: "u1", TypeID: policy.TypeSickness, Start: at(10, 8, 0), End: at(10, 13, 0), Reason: "surgery", CapOverride: true})
	require.NoError(t, err)
	assert.Equal(t, "u1", req.UserID)
	assert.True(t, req.CapOverride)
}

func TestScenarioFullApprovalConsumesBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	before := h.bucket(t)
	require.Equal(t, "6", before.Available.String())
	require.True(t, before.Used.IsZero())

	submitted, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, permits.StatusPendingSupervisor, submitted.Status)
	assert.Equal(t, 1, submitted.CurrentApprovalLevel)
	require.NotNil(t, submitted.SubmittedAt)

	advanced, err := h.svc.Approve(ctx, "sup", req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, permits.StatusPendingHR, advanced.Status)
	assert.Equal(t, 2, advanced.CurrentApprovalLevel)

	approved, err := h.svc.Approve(ctx, "hr", req.ID, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, permits.StatusApproved, approved.Status)
	assert.Equal(t, "2", approved.ConsumedHours.String())

	b := h.bucket(t)
	assert.Equal(t, "2", b.Used.String())
	assert.Equal(t, "4", b.Remaining.String())
	assert.True(t, b.Remaining.Equal(b.Available.Sub(b.Used)))

	submittedEvents := h.events.OfType(notifications.TypeSubmitted)
	require.Len(t, submittedEvents, 1)
	assert.Equal(t, "sup", submittedEvents[0].TargetUserID)
	awaiting := h.events.OfType(notifications.TypeAwaitingApproval)
	require.Len(t, awaiting, 1)
	assert.Equal(t, "hr", awaiting[0].TargetUserID)
	assert.Len(t, h.events.OfType(notifications.TypeApproved), 2)
}

func TestScenarioInsufficientBalanceKeepsDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	h.store.SeedBucket(balance.Bucket{UserID: "u1", TypeID: policy.TypeParticularAffairs, Year: 2025, Month: time.June,
		Available: decimal.NewFromInt(6), Used: decimal.NewFromInt(5)})

	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.ErrorIs(t, err, balance.ErrInsufficientBalance)

	detail, err := h.svc.Get(ctx, "u1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, permits.StatusDraft, detail.Request.Status)
	assert.Empty(t, detail.Approvals)
	assert.Empty(t, h.events.OfType(notifications.TypeSubmitted))
}

func TestScenarioCancelApprovedReturnsHours(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.approved(t)
	require.Equal(t, "2", h.bucket(t).Used.String())

	cancelled, err := h.svc.Cancel(ctx, "u1", req.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, permits.StatusCancelled, cancelled.Status)
	assert.Equal(t, "plans changed", cancelled.CancelReason)
	assert.True(t, cancelled.ConsumedHours.IsZero())

	b := h.bucket(t)
	assert.True(t, b.Used.IsZero())
	assert.Equal(t, "6", b.Remaining.String())
	assert.Len(t, h.store.AuditTrail(balance.ActionReturn), 1)

	_, err = h.svc.Cancel(ctx, "u1", req.ID, "again")
	assert.ErrorIs(t, err, permits.ErrInvalidStateTransition)
	assert.True(t, h.bucket(t).Used.IsZero())
}

func TestScenarioRejectWithoutCommentsKeepsPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	_, err = h.svc.Reject(ctx, "sup", req.ID, "")
	require.ErrorIs(t, err, policy.ErrValidation)

	detail, err := h.svc.Get(ctx, "sup", req.ID)
	require.NoError(t, err)
	assert.Equal(t, permits.StatusPendingSupervisor, detail.Request.Status)
	assert.Equal(t, approval.StatusPending, detail.Approvals[0].Status)
	assert.Empty(t, h.store.AuditTrail(permits.AuditReject))
}

func TestRejectAtSupervisorCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	rejected, err := h.svc.Reject(ctx, "sup", req.ID, "team is short-staffed that day")
	require.NoError(t, err)
	assert.Equal(t, permits.StatusRejected, rejected.Status)

	records, err := h.chain.Records(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, approval.StatusRejected, records[1].Status)

	events := h.events.OfType(notifications.TypeRejected)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].TargetUserID)
	assert.True(t, h.bucket(t).Used.IsZero())
}

func TestDoubleSubmitFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)

	first, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, "u1", req.ID)
	require.ErrorIs(t, err, permits.ErrInvalidStateTransition)
	var terr *permits.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, permits.StatusPendingSupervisor, terr.From)

	detail, err := h.svc.Get(ctx, "u1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, detail.Request.Version)
	assert.Len(t, detail.Approvals, 2)
}

func TestConcurrentSubmitHasOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Submit(ctx, "u1", req.ID)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, permits.ErrInvalidStateTransition)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	records, err := h.chain.Records(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	const callers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Decide(ctx, permits.DecisionInput{
				RequestID:  req.ID,
				ApproverID: "sup",
				Decision:   approval.DecisionApprove,
				Level:      approval.LevelSupervisor,
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, permits.ErrInvalidStateTransition)
			assert.ErrorIs(t, err, approval.ErrAlreadyDecided)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	detail, err := h.svc.Get(ctx, "u1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, permits.StatusPendingHR, detail.Request.Status)
}

func TestFinalApprovalAnomalyStillApproves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, "sup", req.ID, "")
	require.NoError(t, err)

	current := h.bucket(t)
	current.Used = decimal.NewFromInt(5)
	h.store.SeedBucket(current)

	approved, err := h.svc.Approve(ctx, "hr", req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, permits.StatusApproved, approved.Status)
	assert.True(t, approved.ConsumedHours.IsZero())
	assert.Equal(t, "5", h.bucket(t).Used.String())

	anomalies := h.store.AuditTrail(permits.AuditBalanceAnomaly)
	require.Len(t, anomalies, 1)
	assert.Equal(t, req.ID, anomalies[0].EntityID)
	assert.EqualValues(t, 1, h.metrics.Snapshot()["balanceAnomaliesTotal"])
}

func TestDecisionAuthorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, "u2", req.ID, "")
	assert.ErrorIs(t, err, permits.ErrUnauthorized)

	_, err = h.svc.Approve(ctx, "hr", req.ID, "")
	assert.ErrorIs(t, err, permits.ErrUnauthorized)

	_, err = h.svc.Get(ctx, "u2", req.ID)
	assert.ErrorIs(t, err, permits.ErrUnauthorized)

	_, err = h.svc.Get(ctx, "hr", req.ID)
	assert.NoError(t, err)

	_, err = h.svc.Submit(ctx, "u2", req.ID)
	assert.ErrorIs(t, err, permits.ErrUnauthorized)
}

func TestDraftEditing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)

	updated, err := h.svc.UpdateDraft(ctx, "u1", req.ID, permits.UpdateInput{
		TypeID: policy.TypeParticularAffairs,
		Start:  at(10, 9, 0),
		End:    at(10, 10, 30),
		Reason: "notary appointment, shorter",
	})
	require.NoError(t, err)
	assert.Equal(t, "1.5", updated.RequestedHours.String())
	assert.Equal(t, req.Version+1, updated.Version)

	_, err = h.svc.UpdateDraft(ctx, "u2", req.ID, permits.UpdateInput{TypeID: policy.TypeParticularAffairs, Start: at(10, 9, 0), End: at(10, 10, 0), Reason: "x"})
	assert.ErrorIs(t, err, permits.ErrUnauthorized)

	digest := h.store.PutDocument("note.pdf", []byte("note"))
	withDoc, err := h.svc.AttachDocument(ctx, "u1", req.ID, policy.Document{Ref: "note.pdf", DocType: "other", Digest: digest})
	require.NoError(t, err)
	require.Len(t, withDoc.Documents, 1)

	withDoc, err = h.svc.AttachDocument(ctx, "u1", req.ID, policy.Document{Ref: "note.pdf", DocType: "receipt", Digest: digest})
	require.NoError(t, err)
	require.Len(t, withDoc.Documents, 1)
	assert.Equal(t, "receipt", withDoc.Documents[0].DocType)

	_, err = h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	_, err = h.svc.UpdateDraft(ctx, "u1", req.ID, permits.UpdateInput{TypeID: policy.TypeParticularAffairs, Start: at(10, 9, 0), End: at(10, 10, 0), Reason: "late edit"})
	assert.ErrorIs(t, err, permits.ErrInvalidStateTransition)

	_, err = h.svc.AttachDocument(ctx, "u1", req.ID, policy.Document{Ref: "note.pdf", DocType: "other"})
	assert.ErrorIs(t, err, permits.ErrInvalidStateTransition)
}

func TestMedicalAppointmentNeedsDocumentToSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req, err := h.svc.Create(ctx, "u1", permits.CreateInput{TypeID: policy.TypeMedicalAppointment, Start: at(12, 9, 0), End: at(12, 10, 0), Reason: "dentist"})
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, "u1", req.ID)
	var verr *policy.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(policy.CodeDocumentRequired))

	digest := h.store.PutDocument("dentist.pdf", []byte("appointment"))
	_, err = h.svc.AttachDocument(ctx, "u1", req.ID, policy.Document{Ref: "dentist.pdf", DocType: "medical_appointment", Digest: digest})
	require.NoError(t, err)

	submitted, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, permits.StatusPendingSupervisor, submitted.Status)
}

func TestExecutionAttestations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.approved(t)
	h.clock.Set(at(10, 9, 5))

	_, err := h.svc.Attest(ctx, permits.Attestation{RequestID: req.ID, Kind: permits.AttestationEnd, At: at(10, 9, 5)})
	assert.ErrorIs(t, err, permits.ErrInvalidStateTransition)

	_, err = h.svc.Attest(ctx, permits.Attestation{RequestID: req.ID, Kind: permits.AttestationStart, At: at(10, 8, 0)})
	assert.ErrorIs(t, err, policy.ErrValidation)

	started, err := h.svc.Attest(ctx, permits.Attestation{RequestID: req.ID, Kind: permits.AttestationStart, At: at(10, 9, 5), Source: "biometric"})
	require.NoError(t, err)
	assert.Equal(t, permits.StatusInExecution, started.Status)

	_, err = h.svc.Cancel(ctx, "u1", req.ID, "too late")
	assert.ErrorIs(t, err, permits.ErrInvalidStateTransition)

	h.clock.Set(at(10, 11, 35))
	completed, err := h.svc.Attest(ctx, permits.Attestation{RequestID: req.ID, Kind: permits.AttestationEnd, At: at(10, 11, 35), Source: "biometric"})
	require.NoError(t, err)
	assert.Equal(t, permits.StatusCompleted, completed.Status)
	assert.Equal(t, "2.5", completed.ActualHours.String())
	assert.True(t, completed.Overtime)
	assert.True(t, permits.Terminal(completed.Status))
}

func TestAttestationsFollowTheClock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.approved(t)

	_, err := h.svc.Attest(ctx, permits.Attestation{RequestID: req.ID, Kind: permits.AttestationStart, At: at(10, 9, 5)})
	var verr *policy.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, policy.CodeOutsideWindow, verr.Violations[0].Code)

	h.clock.Set(at(10, 9, 5))
	_, err = h.svc.Attest(ctx, permits.Attestation{RequestID: req.ID, Kind: permits.AttestationStart, At: at(10, 9, 30)})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, policy.CodeFutureAttestation, verr.Violations[0].Code)

	_, err = h.svc.Attest(ctx, permits.Attestation{RequestID: req.ID, Kind: permits.AttestationStart, At: at(10, 9, 0)})
	require.NoError(t, err)

	_, err = h.svc.Attest(ctx, permits.Attestation{RequestID: req.ID, Kind: permits.AttestationEnd, At: at(10, 10, 0)})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, policy.CodeFutureAttestation, verr.Violations[0].Code)

	detail, err := h.svc.Get(ctx, "u1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, permits.StatusInExecution, detail.Request.Status)
}

func TestCancelClosesOpenApprovalLevels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, "u1", req.ID, "plans changed")
	require.NoError(t, err)

	detail, err := h.svc.Get(ctx, "u1", req.ID)
	require.NoError(t, err)
	require.Len(t, detail.Approvals, 2)
	for _, rec := range detail.Approvals {
		assert.Equal(t, approval.StatusRejected, rec.Status)
		assert.NotNil(t, rec.DecidedAt)
	}
	assert.Len(t, h.store.AuditTrail(approval.ActionWithdraw), 2)

	h.clock.Advance(49 * time.Hour)
	stale, err := h.chain.Stale(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)
	sent, err := h.svc.SendReminders(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestSendRemindersOnlyForStalePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	sent, err := h.svc.SendReminders(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent)

	h.clock.Advance(49 * time.Hour)
	sent, err = h.svc.SendReminders(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	reminders := h.events.OfType(notifications.TypeReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, "sup", reminders[0].TargetUserID)

	sent, err = h.svc.SendReminders(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent)

	detail, err := h.svc.Get(ctx, "u1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, permits.StatusPendingSupervisor, detail.Request.Status)
}

func TestPendingApprovalsFollowTheChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	pending, err := h.svc.PendingApprovals(ctx, "sup")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].Request.ID)

	pending, err = h.svc.PendingApprovals(ctx, "hr")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = h.svc.Approve(ctx, "sup", req.ID, "")
	require.NoError(t, err)
	pending, err = h.svc.PendingApprovals(ctx, "hr")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, approval.LevelHR, pending[0].Record.Level)
}

func TestCancelPendingNotifiesApprover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.draft(t)
	_, err := h.svc.Submit(ctx, "u1", req.ID)
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, "u2", req.ID, "")
	assert.ErrorIs(t, err, permits.ErrUnauthorized)

	cancelled, err := h.svc.Cancel(ctx, "u1", req.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, permits.StatusCancelled, cancelled.Status)

	events := h.events.OfType(notifications.TypeCancelled)
	require.Len(t, events, 1)
	assert.Equal(t, "sup", events[0].TargetUserID)

	_, err = h.svc.Approve(ctx, "sup", req.ID, "")
	assert.ErrorIs(t, err, permits.ErrInvalidStateTransition)
}
