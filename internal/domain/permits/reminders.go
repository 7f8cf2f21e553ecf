package permits

import (
	"context"
	"log/slog"
	"time"

	"permitflow/internal/domain/notifications"
)

// SendReminders nudges approvers whose decision has been pending longer than
// olderThan. It never changes a request's status.
func (s *Service) SendReminders(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.Chain.Stale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range stale {
		req, err := s.Store.Get(ctx, rec.RequestID, false)
		if err != nil {
			slog.Warn("reminder request lookup failed", "requestId", rec.RequestID, "err", err)
			continue
		}
		if levelFor(req.Status) != rec.Level {
			continue
		}
		if err := s.Chain.MarkReminded(ctx, rec.ID); err != nil {
			slog.Warn("reminder bookkeeping failed", "recordId", rec.ID, "err", err)
			continue
		}
		s.emit(ctx, notifications.TypeReminder, req, "system", rec.ApproverID, map[string]any{
			"level":        rec.Level,
			"pendingSince": rec.ActivatedAt,
		})
		sent++
	}
	return sent, nil
}
