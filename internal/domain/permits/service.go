package permits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"permitflow/internal/domain/approval"
	"permitflow/internal/domain/audit"
	"permitflow/internal/domain/balance"
	"permitflow/internal/domain/notifications"
	"permitflow/internal/domain/policy"
	"permitflow/internal/platform/clock"
	"permitflow/internal/platform/querier"
)

const (
	AuditCreate         = "permit.create"
	AuditUpdate         = "permit.update"
	AuditAttachDocument = "permit.attach_document"
	AuditSubmit         = "permit.submit"
	AuditApprove        = "permit.approve"
	AuditReject         = "permit.reject"
	AuditCancel         = "permit.cancel"
	AuditStartExecution = "permit.start_execution"
	AuditComplete       = "permit.complete"
	AuditBalanceAnomaly = "balance.anomaly"
)

type Deps struct {
	Store     StoreAPI
	Tx        querier.Transactor
	Chain     *approval.Chain
	Ledger    *balance.Ledger
	Validator *policy.Validator
	Rules     *policy.Registry
	Directory Directory
	Events    notifications.Sink
	Audit     audit.Sink
	Metrics   Recorder
	Clock     clock.Clock
	Config    policy.Config
}

// Service drives a permit request through its lifecycle. Every transition
// runs in one unit of work; events are emitted only after it commits.
type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = notifications.Discard{}
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	return &Service{Deps: d}
}

func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (Request, error) {
	if in.UserID == "" {
		in.UserID = actor
	}
	if in.UserID != actor || in.CapOverride {
		if err := s.requireHR(ctx, actor); err != nil {
			return Request{}, err
		}
	}
	if in.Priority == 0 {
		in.Priority = PriorityNormal
	}
	err := s.Validator.ValidateCreation(ctx, policy.Draft{
		UserID:      in.UserID,
		TypeID:      in.TypeID,
		Start:       in.Start,
		End:         in.End,
		Reason:      in.Reason,
		CapOverride: in.CapOverride,
	})
	if err = withPriority(err, in.Priority); err != nil {
		return Request{}, err
	}

	now := s.Clock.Now()
	req := Request{
		UserID:         in.UserID,
		TypeID:         in.TypeID,
		Start:          in.Start,
		End:            in.End,
		RequestedHours: policy.Hours(in.Start, in.End),
		Reason:         strings.TrimSpace(in.Reason),
		Status:         StatusDraft,
		Priority:       in.Priority,
		IsUrgent:       in.IsUrgent,
		CapOverride:    in.CapOverride,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var created Request
	err = s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.Store.NextRequestNumber(ctx, s.Config.Local(now))
		if err != nil {
			return err
		}
		req.RequestNumber = number
		created, err = s.Store.Insert(ctx, req)
		if err != nil {
			return err
		}
		return s.record(ctx, actor, AuditCreate, created, nil)
	})
	if err != nil {
		return Request{}, err
	}
	s.Metrics.Transition(StatusDraft)
	return created, nil
}

// UpdateDraft replaces the editable fields of a draft owned by actor and
// re-runs the creation rules.
func (s *Service) UpdateDraft(ctx context.Context, actor, id string, in UpdateInput) (Request, error) {
	current, err := s.Store.Get(ctx, id, false)
	if err != nil {
		return Request{}, err
	}
	if current.UserID != actor {
		return Request{}, ErrUnauthorized
	}
	if _, err := Next(current.Status, ActionEdit); err != nil {
		return Request{}, err
	}
	if in.CapOverride && !current.CapOverride {
		if err := s.requireHR(ctx, actor); err != nil {
			return Request{}, err
		}
	}
	if in.Priority == 0 {
		in.Priority = current.Priority
	}
	err = s.Validator.ValidateCreation(ctx, policy.Draft{
		RequestID:   id,
		UserID:      current.UserID,
		TypeID:      in.TypeID,
		Start:       in.Start,
		End:         in.End,
		Reason:      in.Reason,
		CapOverride: in.CapOverride,
	})
	if err = withPriority(err, in.Priority); err != nil {
		return Request{}, err
	}

	var updated Request
	err = s.withRetry(ctx, "update", func() error {
		return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := s.Store.Get(ctx, id, true)
			if err != nil {
				return err
			}
			if _, err := Next(cur.Status, ActionEdit); err != nil {
				return err
			}
			before := cur.snapshot()
			cur.TypeID = in.TypeID
			cur.Start = in.Start
			cur.End = in.End
			cur.RequestedHours = policy.Hours(in.Start, in.End)
			cur.Reason = strings.TrimSpace(in.Reason)
			cur.Priority = in.Priority
			cur.IsUrgent = in.IsUrgent
			cur.CapOverride = in.CapOverride
			cur.UpdatedAt = s.Clock.Now()
			updated, err = s.Store.Update(ctx, cur)
			if err != nil {
				return err
			}
			return s.record(ctx, actor, AuditUpdate, updated, before)
		})
	})
	return updated, err
}

// AttachDocument records a reference to a stored document on a draft.
// Attaching the same ref again replaces the earlier entry.
func (s *Service) AttachDocument(ctx context.Context, actor, id string, doc policy.Document) (Request, error) {
	if strings.TrimSpace(doc.Ref) == "" || strings.TrimSpace(doc.DocType) == "" {
		return Request{}, policy.NewValidationError(policy.Violation{Field: "document", Code: policy.CodeDocumentRequired, Message: "document ref and type are required"})
	}
	var updated Request
	err := s.withRetry(ctx, "attach_document", func() error {
		return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := s.Store.Get(ctx, id, true)
			if err != nil {
				return err
			}
			if cur.UserID != actor {
				return ErrUnauthorized
			}
			if _, err := Next(cur.Status, ActionEdit); err != nil {
				return err
			}
			before := cur.snapshot()
			replaced := false
			for i := range cur.Documents {
				if cur.Documents[i].Ref == doc.Ref {
					cur.Documents[i] = doc
					replaced = true
				}
			}
			if !replaced {
				cur.Documents = append(cur.Documents, doc)
			}
			cur.UpdatedAt = s.Clock.Now()
			updated, err = s.Store.Update(ctx, cur)
			if err != nil {
				return err
			}
			return s.record(ctx, actor, AuditAttachDocument, updated, before)
		})
	})
	return updated, err
}

// Get returns a request with its approvals to its owner, its approvers and HR.
func (s *Service) Get(ctx context.Context, actor, id string) (Detail, error) {
	req, err := s.Store.Get(ctx, id, false)
	if err != nil {
		return Detail{}, err
	}
	records, err := s.Chain.Records(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if req.UserID != actor && !isApprover(records, actor) {
		if err := s.requireHR(ctx, actor); err != nil {
			return Detail{}, err
		}
	}
	return Detail{Request: req, Approvals: records}, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Request, int, error) {
	items, err := s.Store.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Store.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// PendingApprovals lists the requests waiting on approverID.
func (s *Service) PendingApprovals(ctx context.Context, approverID string) ([]PendingItem, error) {
	records, err := s.Chain.PendingFor(ctx, approverID)
	if err != nil {
		return nil, err
	}
	out := make([]PendingItem, 0, len(records))
	for _, rec := range records {
		req, err := s.Store.Get(ctx, rec.RequestID, false)
		if err != nil {
			return nil, err
		}
		if levelFor(req.Status) != rec.Level {
			continue
		}
		out = append(out, PendingItem{Request: req, Record: rec})
	}
	return out, nil
}

func (s *Service) requireHR(ctx context.Context, actor string) error {
	hr, err := s.Directory.IsHR(ctx, actor)
	if err != nil {
		return err
	}
	if !hr {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) key(r Request) balance.Key {
	return balance.KeyFor(r.UserID, r.TypeID, s.Config.Local(r.Start))
}

func (s *Service) emit(ctx context.Context, eventType string, r Request, actor, target string, payload map[string]any) {
	if target == "" {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["requestNumber"] = r.RequestNumber
	payload["status"] = r.Status
	s.Events.Emit(ctx, notifications.Event{
		Type:         eventType,
		RequestID:    r.ID,
		ActorID:      actor,
		TargetUserID: target,
		Payload:      payload,
		OccurredAt:   s.Clock.Now(),
	})
}

func (s *Service) record(ctx context.Context, actor, action string, r Request, before map[string]any) error {
	if s.Audit == nil {
		return nil
	}
	var oldValue any
	if before != nil {
		oldValue = before
	}
	return s.Audit.Record(ctx, audit.Record{
		Actor:      actor,
		Action:     action,
		EntityType: audit.EntityPermitRequest,
		EntityID:   r.ID,
		OldValue:   oldValue,
		NewValue:   r.snapshot(),
		Timestamp:  s.Clock.Now(),
	})
}

// withRetry runs fn again once after a lost update. A second conflict is
// reported as ErrTransient.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if !conflict(err) {
		return err
	}
	s.Metrics.Retry()
	slog.Warn("permit operation conflicted, retrying", "op", op, "err", err)
	if err = fn(); conflict(err) {
		s.Metrics.TransientFailure()
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return err
}

func conflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, balance.ErrConcurrentModification) ||
		errors.Is(err, approval.ErrConcurrentModification) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func withPriority(err error, priority int) error {
	if priority >= PriorityLow && priority <= PriorityHigh {
		return err
	}
	v := policy.Violation{Field: "priority", Code: "priority_range", Message: "priority must be between 1 and 3"}
	var verr *policy.ValidationError
	switch {
	case err == nil:
		return policy.NewValidationError(v)
	case errors.As(err, &verr):
		verr.Violations = append(verr.Violations, v)
		return verr
	default:
		return err
	}
}

// mergeValidation joins the violations of several checks. Any other error
// is returned as is.
func mergeValidation(errs ...error) error {
	var merged []policy.Violation
	for _, err := range errs {
		if err == nil {
			continue
		}
		var verr *policy.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		merged = append(merged, verr.Violations...)
	}
	if len(merged) == 0 {
		return nil
	}
	return policy.NewValidationError(merged...)
}

func isApprover(records []approval.Record, userID string) bool {
	for _, rec := range records {
		if rec.ApproverID == userID {
			return true
		}
	}
	return false
}
