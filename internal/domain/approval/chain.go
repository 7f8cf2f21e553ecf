package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitflow/internal/domain/audit"
	"permitflow/internal/domain/policy"
	"permitflow/internal/platform/clock"
	"permitflow/internal/platform/querier"
)

const (
	ActionInitialize = "approval.initialize"
	ActionApprove    = "approval.approve"
	ActionReject     = "approval.reject"
	ActionActivate   = "approval.activate"
	ActionCascade    = "approval.cascade_reject"
	ActionWithdraw   = "approval.withdraw"
)

// Chain is the two-level Supervisor → HR approval sequence of a request.
type Chain struct {
	Store             StoreAPI
	Tx                querier.Transactor
	Audit             audit.Sink
	Clock             clock.Clock
	MinRejectComments int
}

func NewChain(store StoreAPI, tx querier.Transactor, auditSink audit.Sink, clk clock.Clock, minRejectComments int) *Chain {
	return &Chain{Store: store, Tx: tx, Audit: auditSink, Clock: clk, MinRejectComments: minRejectComments}
}

// Initialize creates the level-1 record addressed to supervisorID and an
// inert level-2 record addressed to hrUserID. Without a supervisor the HR
// level starts pending.
func (c *Chain) Initialize(ctx context.Context, requestID, supervisorID, hrUserID string) ([]Record, error) {
	if strings.TrimSpace(hrUserID) == "" {
		return nil, fmt.Errorf("level %d: %w", LevelHR, ErrNoApprover)
	}
	now := c.Clock.Now()

	var records []Record
	hr := Record{RequestID: requestID, Level: LevelHR, ApproverID: hrUserID, Status: StatusInert, CreatedAt: now}
	if strings.TrimSpace(supervisorID) != "" {
		records = append(records, Record{
			RequestID:   requestID,
			Level:       LevelSupervisor,
			ApproverID:  supervisorID,
			Status:      StatusPending,
			ActivatedAt: &now,
			CreatedAt:   now,
		})
	} else {
		hr.Status = StatusPending
		hr.ActivatedAt = &now
	}
	records = append(records, hr)

	var stored []Record
	err := c.Tx.WithinTx(ctx, func(ctx context.Context) error {
		out, err := c.Store.InsertRecords(ctx, records)
		if err != nil {
			return err
		}
		stored = out
		for _, rec := range out {
			if err := c.record(ctx, rec.ApproverID, ActionInitialize, rec, ""); err != nil {
				return err
			}
		}
		return nil
	})
	return stored, err
}

// Decide applies one approver's decision to the record at (requestID, level).
// Only a pending record assigned to the approver can be decided, and each
// record is decided at most once.
func (c *Chain) Decide(ctx context.Context, in DecideInput) (Outcome, error) {
	if in.Decision != DecisionApprove && in.Decision != DecisionReject {
		return Outcome{}, ErrInvalidDecision
	}
	in.Comments = strings.TrimSpace(in.Comments)
	if in.Decision == DecisionReject && len([]rune(in.Comments)) < c.MinRejectComments {
		return Outcome{}, policy.NewValidationError(policy.Violation{
			Field:   "comments",
			Code:    policy.CodeCommentsRequired,
			Message: fmt.Sprintf("rejection comments must be at least %d characters", c.MinRejectComments),
		})
	}

	var outcome Outcome
	err := c.Tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := c.Store.GetRecord(ctx, in.RequestID, in.Level, true)
		if err != nil {
			return err
		}
		if rec.Decided() {
			return ErrAlreadyDecided
		}
		if !rec.Actionable() {
			return ErrNotActionable
		}
		if rec.ApproverID != in.ApproverID {
			return ErrUnauthorized
		}

		now := c.Clock.Now()
		rec.Comments = in.Comments
		rec.DecidedAt = &now
		action := ActionApprove
		if in.Decision == DecisionApprove {
			rec.Status = StatusApproved
		} else {
			rec.Status = StatusRejected
			action = ActionReject
		}
		decided, err := c.Store.UpdateRecord(ctx, rec, StatusPending)
		if err != nil {
			return err
		}
		if err := c.record(ctx, in.ApproverID, action, decided, StatusPending); err != nil {
			return err
		}
		outcome.Record = decided

		if in.Decision == DecisionReject {
			outcome.Kind = OutcomeRejected
			return c.cascadeReject(ctx, in.RequestID, in.Level, now)
		}
		if in.Level >= LevelHR {
			outcome.Kind = OutcomeCompleted
			return nil
		}

		next, err := c.Store.GetRecord(ctx, in.RequestID, in.Level+1, true)
		if errors.Is(err, ErrRecordNotFound) {
			outcome.Kind = OutcomeCompleted
			return nil
		}
		if err != nil {
			return err
		}
		if next.Status != StatusInert {
			return fmt.Errorf("level %d is %s: %w", next.Level, next.Status, ErrNotActionable)
		}
		next.Status = StatusPending
		next.ActivatedAt = &now
		activated, err := c.Store.UpdateRecord(ctx, next, StatusInert)
		if err != nil {
			return err
		}
		if err := c.record(ctx, in.ApproverID, ActionActivate, activated, StatusInert); err != nil {
			return err
		}
		outcome.Kind = OutcomeAdvanced
		outcome.NextLevel = activated.Level
		outcome.Next = &activated
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

func (c *Chain) cascadeReject(ctx context.Context, requestID string, level int, now time.Time) error {
	records, err := c.Store.ListRecords(ctx, requestID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Level <= level || rec.Decided() {
			continue
		}
		from := rec.Status
		rec.Status = StatusRejected
		rec.Comments = fmt.Sprintf("Automatically rejected: %s level rejected the request.", LevelName(level))
		rec.DecidedAt = &now
		updated, err := c.Store.UpdateRecord(ctx, rec, from)
		if err != nil {
			return err
		}
		if err := c.record(ctx, "system", ActionCascade, updated, from); err != nil {
			return err
		}
	}
	return nil
}

// Withdraw closes every undecided level of a cancelled request as rejected
// and returns the levels that were awaiting a decision.
func (c *Chain) Withdraw(ctx context.Context, requestID, actor string) ([]Record, error) {
	var awaiting []Record
	err := c.Tx.WithinTx(ctx, func(ctx context.Context) error {
		records, err := c.Store.ListRecords(ctx, requestID)
		if err != nil {
			return err
		}
		now := c.Clock.Now()
		for _, rec := range records {
			if rec.Decided() {
				continue
			}
			from := rec.Status
			rec.Status = StatusRejected
			rec.Comments = "Request cancelled."
			rec.DecidedAt = &now
			closed, err := c.Store.UpdateRecord(ctx, rec, from)
			if err != nil {
				return err
			}
			if err := c.record(ctx, actor, ActionWithdraw, closed, from); err != nil {
				return err
			}
			if from == StatusPending {
				awaiting = append(awaiting, closed)
			}
		}
		return nil
	})
	return awaiting, err
}

func (c *Chain) Records(ctx context.Context, requestID string) ([]Record, error) {
	return c.Store.ListRecords(ctx, requestID)
}

func (c *Chain) PendingFor(ctx context.Context, approverID string) ([]Record, error) {
	return c.Store.ListPendingForApprover(ctx, approverID)
}

func (c *Chain) Stale(ctx context.Context, olderThan time.Duration) ([]Record, error) {
	return c.Store.ListStale(ctx, c.Clock.Now().Add(-olderThan))
}

func (c *Chain) MarkReminded(ctx context.Context, recordID string) error {
	return c.Store.MarkReminded(ctx, recordID, c.Clock.Now())
}

func (c *Chain) record(ctx context.Context, actor, action string, rec Record, fromStatus string) error {
	if c.Audit == nil {
		return nil
	}
	var oldValue any
	if fromStatus != "" {
		oldValue = map[string]any{"status": fromStatus}
	}
	return c.Audit.Record(ctx, audit.Record{
		Actor:      actor,
		Action:     action,
		EntityType: audit.EntityApprovalRecord,
		EntityID:   rec.ID,
		OldValue:   oldValue,
		NewValue: map[string]any{
			"requestId":  rec.RequestID,
			"level":      rec.Level,
			"approverId": rec.ApproverID,
			"status":     rec.Status,
			"comments":   rec.Comments,
		},
		Timestamp: c.Clock.Now(),
	})
}
