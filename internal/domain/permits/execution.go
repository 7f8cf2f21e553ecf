package permits

import (
	"context"
	"fmt"
	"time"

	"permitflow/internal/domain/notifications"
	"permitflow/internal/domain/policy"
)

// Attest applies a check-in or check-out signal.
func (s *Service) Attest(ctx context.Context, a Attestation) (Request, error) {
	switch a.Kind {
	case AttestationStart:
		return s.StartExecution(ctx, a)
	case AttestationEnd:
		return s.EndExecution(ctx, a)
	default:
		return Request{}, policy.NewValidationError(policy.Violation{Field: "kind", Code: "invalid_kind", Message: fmt.Sprintf("unknown attestation kind %q", a.Kind)})
	}
}

// StartExecution marks an approved request as in progress. Both the current
// time and the check-in must fall inside the approved window.
func (s *Service) StartExecution(ctx context.Context, a Attestation) (Request, error) {
	var started Request
	err := s.withRetry(ctx, "start_execution", func() error {
		return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := s.Store.Get(ctx, a.RequestID, true)
			if err != nil {
				return err
			}
			next, err := Next(cur.Status, ActionStartExecution)
			if err != nil {
				return err
			}
			now := s.Clock.Now()
			if now.Before(cur.Start) || now.After(cur.End) {
				return policy.NewValidationError(policy.Violation{
					Field:   "at",
					Code:    policy.CodeOutsideWindow,
					Message: "check-in is only accepted while the permit is running",
				})
			}
			if a.At.Before(cur.Start) || a.At.After(cur.End) {
				return policy.NewValidationError(policy.Violation{
					Field:   "at",
					Code:    policy.CodeOutsideWindow,
					Message: "check-in must fall between the permit start and end",
				})
			}
			if err := notAhead(a.At, now); err != nil {
				return err
			}
			before := cur.snapshot()
			at := a.At
			cur.Status = next
			cur.ActualStart = &at
			cur.UpdatedAt = s.Clock.Now()
			started, err = s.Store.Update(ctx, cur)
			if err != nil {
				return err
			}
			return s.record(ctx, attestActor(a), AuditStartExecution, started, before)
		})
	})
	if err != nil {
		return Request{}, err
	}
	s.Metrics.Transition(started.Status)
	s.emit(ctx, notifications.TypeExecutionStarted, started, attestActor(a), started.UserID, map[string]any{"source": a.Source})
	return started, nil
}

// EndExecution completes a request in progress and records the hours actually
// taken. Taking longer than requested flags overtime.
func (s *Service) EndExecution(ctx context.Context, a Attestation) (Request, error) {
	var completed Request
	err := s.withRetry(ctx, "end_execution", func() error {
		return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := s.Store.Get(ctx, a.RequestID, true)
			if err != nil {
				return err
			}
			next, err := Next(cur.Status, ActionEndExecution)
			if err != nil {
				return err
			}
			if cur.ActualStart == nil || !a.At.After(*cur.ActualStart) {
				return policy.NewValidationError(policy.Violation{
					Field:   "at",
					Code:    policy.CodeOutsideWindow,
					Message: "check-out must come after check-in",
				})
			}
			if err := notAhead(a.At, s.Clock.Now()); err != nil {
				return err
			}
			before := cur.snapshot()
			at := a.At
			cur.Status = next
			cur.ActualEnd = &at
			cur.ActualHours = policy.Hours(*cur.ActualStart, at)
			cur.Overtime = cur.ActualHours.GreaterThan(cur.RequestedHours)
			cur.UpdatedAt = s.Clock.Now()
			completed, err = s.Store.Update(ctx, cur)
			if err != nil {
				return err
			}
			return s.record(ctx, attestActor(a), AuditComplete, completed, before)
		})
	})
	if err != nil {
		return Request{}, err
	}
	s.Metrics.Transition(completed.Status)
	s.emit(ctx, notifications.TypeCompleted, completed, attestActor(a), completed.UserID, map[string]any{
		"actualHours": completed.ActualHours.String(),
		"overtime":    completed.Overtime,
	})
	return completed, nil
}

func attestActor(a Attestation) string {
	if a.Actor != "" {
		return a.Actor
	}
	if a.Source != "" {
		return "attestation:" + a.Source
	}
	return "attestation"
}

// notAhead rejects attestations stamped later than the current time.
func notAhead(at, now time.Time) error {
	if !at.After(now) {
		return nil
	}
	return policy.NewValidationError(policy.Violation{
		Field:   "at",
		Code:    policy.CodeFutureAttestation,
		Message: "attestation time cannot be in the future",
	})
}
