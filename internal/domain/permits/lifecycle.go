package permits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"permitflow/internal/domain/approval"
	"permitflow/internal/domain/audit"
	"permitflow/internal/domain/balance"
	"permitflow/internal/domain/notifications"
	"permitflow/internal/domain/policy"
)

// Submit moves a draft into the approval chain. The submission rules run
// first; a request that fails them stays a draft.
func (s *Service) Submit(ctx context.Context, actor, id string) (Request, error) {
	req, err := s.Store.Get(ctx, id, false)
	if err != nil {
		return Request{}, err
	}
	if req.UserID != actor {
		return Request{}, ErrUnauthorized
	}
	if _, err := Next(req.Status, ActionSubmit); err != nil {
		return Request{}, err
	}

	err = mergeValidation(
		s.Validator.ValidateSubmission(ctx, policy.Submission{
			RequestID: req.ID,
			UserID:    req.UserID,
			TypeID:    req.TypeID,
			Start:     req.Start,
			Hours:     req.RequestedHours,
			Documents: req.Documents,
		}),
		s.Validator.ValidateFrequency(ctx, req.UserID, req.TypeID, req.Start, req.ID),
	)
	if err != nil {
		return Request{}, err
	}

	supervisorID, err := s.Directory.ImmediateSupervisor(ctx, req.UserID)
	if err != nil {
		return Request{}, err
	}
	hrID, err := s.Directory.HRApprover(ctx, req.UserID)
	if err != nil {
		return Request{}, err
	}
	if hrID == "" {
		return Request{}, ErrNoHRApprover
	}

	var submitted Request
	err = s.withRetry(ctx, "submit", func() error {
		return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := s.Store.Get(ctx, id, true)
			if err != nil {
				return err
			}
			next, err := Next(cur.Status, ActionSubmit)
			if err != nil {
				return err
			}
			before := cur.snapshot()
			now := s.Clock.Now()
			cur.Status = next
			cur.SubmittedAt = &now
			cur.CurrentApprovalLevel = approval.LevelSupervisor
			cur.UpdatedAt = now
			submitted, err = s.Store.Update(ctx, cur)
			if err != nil {
				return err
			}
			if _, err := s.Chain.Initialize(ctx, id, supervisorID, hrID); err != nil {
				return err
			}
			return s.record(ctx, actor, AuditSubmit, submitted, before)
		})
	})
	if err != nil {
		return Request{}, err
	}

	s.Metrics.Transition(submitted.Status)
	s.emit(ctx, notifications.TypeSubmitted, submitted, actor, supervisorID, nil)
	return submitted, nil
}

func (s *Service) Approve(ctx context.Context, approverID, id, comments string) (Request, error) {
	return s.Decide(ctx, DecisionInput{RequestID: id, ApproverID: approverID, Decision: approval.DecisionApprove, Comments: comments})
}

func (s *Service) Reject(ctx context.Context, approverID, id, comments string) (Request, error) {
	return s.Decide(ctx, DecisionInput{RequestID: id, ApproverID: approverID, Decision: approval.DecisionReject, Comments: comments})
}

// Decide applies an approval decision and moves the request accordingly.
// The final approval consumes the requested hours in the same unit of work.
// When the bucket can no longer cover them the request is still approved
// and the shortfall is reported as a balance anomaly.
func (s *Service) Decide(ctx context.Context, in DecisionInput) (Request, error) {
	action := ActionApprove
	if in.Decision == approval.DecisionReject {
		action = ActionReject
	}

	var (
		result  Request
		outcome approval.Outcome
		anomaly error
	)
	err := s.withRetry(ctx, "decide", func() error {
		anomaly = nil
		return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := s.Store.Get(ctx, in.RequestID, true)
			if err != nil {
				return err
			}
			if !cur.Pending() {
				return &TransitionError{From: cur.Status, Action: action}
			}
			level := in.Level
			if level == 0 {
				level = levelFor(cur.Status)
			}

			outcome, err = s.Chain.Decide(ctx, approval.DecideInput{
				RequestID:  cur.ID,
				Level:      level,
				ApproverID: in.ApproverID,
				Decision:   in.Decision,
				Comments:   in.Comments,
			})
			if err != nil {
				return chainError(cur.Status, action, err)
			}

			next, err := Next(cur.Status, action)
			if err != nil {
				return err
			}
			before := cur.snapshot()
			cur.Status = next
			switch outcome.Kind {
			case approval.OutcomeAdvanced:
				cur.CurrentApprovalLevel = outcome.NextLevel
			case approval.OutcomeCompleted:
				consumed, err := s.consume(ctx, cur, in.ApproverID)
				switch {
				case errors.Is(err, balance.ErrInsufficientBalance):
					anomaly = err
				case err != nil:
					return err
				}
				cur.ConsumedHours = consumed
			}
			cur.UpdatedAt = s.Clock.Now()
			result, err = s.Store.Update(ctx, cur)
			if err != nil {
				return err
			}
			if anomaly != nil {
				if err := s.recordAnomaly(ctx, in.ApproverID, result, anomaly); err != nil {
					return err
				}
			}
			auditAction := AuditApprove
			if action == ActionReject {
				auditAction = AuditReject
			}
			return s.record(ctx, in.ApproverID, auditAction, result, before)
		})
	})
	if err != nil {
		return Request{}, err
	}

	s.Metrics.Transition(result.Status)
	if anomaly != nil {
		s.Metrics.BalanceAnomaly()
		slog.Error("balance consistency anomaly", "requestId", result.ID, "requestNumber", result.RequestNumber,
			"bucket", s.key(result).String(), "requestedHours", result.RequestedHours.String(), "err", anomaly)
	}
	payload := map[string]any{"level": outcome.Record.Level, "comments": outcome.Record.Comments}
	switch outcome.Kind {
	case approval.OutcomeAdvanced:
		s.emit(ctx, notifications.TypeApproved, result, in.ApproverID, result.UserID, payload)
		if outcome.Next != nil {
			s.emit(ctx, notifications.TypeAwaitingApproval, result, in.ApproverID, outcome.Next.ApproverID, nil)
		}
	case approval.OutcomeCompleted:
		s.emit(ctx, notifications.TypeApproved, result, in.ApproverID, result.UserID, payload)
	case approval.OutcomeRejected:
		s.emit(ctx, notifications.TypeRejected, result, in.ApproverID, result.UserID, payload)
	}
	return result, nil
}

// Cancel withdraws a request. Hours consumed by an approved request go back
// to its bucket.
func (s *Service) Cancel(ctx context.Context, actor, id, reason string) (Request, error) {
	var (
		cancelled Request
		previous  string
		awaiting  []approval.Record
	)
	err := s.withRetry(ctx, "cancel", func() error {
		return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := s.Store.Get(ctx, id, true)
			if err != nil {
				return err
			}
			if cur.UserID != actor {
				if err := s.requireHR(ctx, actor); err != nil {
					return err
				}
			}
			next, err := Next(cur.Status, ActionCancel)
			if err != nil {
				return err
			}
			before := cur.snapshot()
			previous = cur.Status
			awaiting = nil
			if cur.Status == StatusPendingSupervisor || cur.Status == StatusPendingHR {
				if awaiting, err = s.Chain.Withdraw(ctx, cur.ID, actor); err != nil {
					return err
				}
			}
			if cur.Status == StatusApproved && cur.ConsumedHours.IsPositive() {
				if _, err := s.Ledger.ReturnHours(ctx, s.key(cur), cur.ConsumedHours, balance.Ref{Actor: actor, RequestID: cur.ID}); err != nil {
					return err
				}
				cur.ConsumedHours = decimal.Zero
			}
			cur.Status = next
			cur.CancelReason = reason
			cur.UpdatedAt = s.Clock.Now()
			cancelled, err = s.Store.Update(ctx, cur)
			if err != nil {
				return err
			}
			return s.record(ctx, actor, AuditCancel, cancelled, before)
		})
	})
	if err != nil {
		return Request{}, err
	}

	s.Metrics.Transition(cancelled.Status)
	payload := map[string]any{"reason": reason, "previousStatus": previous}
	if actor != cancelled.UserID {
		s.emit(ctx, notifications.TypeCancelled, cancelled, actor, cancelled.UserID, payload)
		return cancelled, nil
	}
	for _, rec := range awaiting {
		s.emit(ctx, notifications.TypeCancelled, cancelled, actor, rec.ApproverID, payload)
	}
	return cancelled, nil
}

func (s *Service) consume(ctx context.Context, r Request, actor string) (decimal.Decimal, error) {
	rule, ok := s.Rules.Lookup(r.TypeID)
	if !ok || !rule.UsesBalance() {
		return decimal.Zero, nil
	}
	if _, err := s.Ledger.Consume(ctx, s.key(r), r.RequestedHours, balance.Ref{Actor: actor, RequestID: r.ID}); err != nil {
		return decimal.Zero, err
	}
	return r.RequestedHours, nil
}

func (s *Service) recordAnomaly(ctx context.Context, actor string, r Request, cause error) error {
	if s.Audit == nil {
		return nil
	}
	details := map[string]any{
		"bucket":         s.key(r).String(),
		"requestedHours": r.RequestedHours.String(),
		"error":          fmt.Sprintf("%v: %v", ErrBalanceAnomaly, cause),
	}
	var shortfall *balance.InsufficientBalanceError
	if errors.As(cause, &shortfall) {
		details["remainingHours"] = shortfall.Remaining.String()
	}
	return s.Audit.Record(ctx, audit.Record{
		Actor:      actor,
		Action:     AuditBalanceAnomaly,
		EntityType: audit.EntityPermitRequest,
		EntityID:   r.ID,
		NewValue:   details,
		Timestamp:  s.Clock.Now(),
	})
}

// chainError translates approval errors into lifecycle errors.
func chainError(status string, action Action, err error) error {
	switch {
	case errors.Is(err, approval.ErrUnauthorized):
		return ErrUnauthorized
	case errors.Is(err, approval.ErrAlreadyDecided),
		errors.Is(err, approval.ErrNotActionable),
		errors.Is(err, approval.ErrRecordNotFound):
		return &TransitionError{From: status, Action: action, Cause: err}
	default:
		return err
	}
}
