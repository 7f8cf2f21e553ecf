package memstore

import (
	"context"

	"github.com/google/uuid"

	"permitflow/internal/domain/audit"
)

func (s *Store) Record(ctx context.Context, rec audit.Record) error {
	before, after, err := audit.Marshal(rec)
	if err != nil {
		return err
	}
	defer s.lock(ctx)()
	rec.ID = uuid.NewString()
	rec.Before = before
	rec.After = after
	s.data.audits = append(s.data.audits, rec)
	return nil
}

// AuditTrail returns the committed audit records with the given action, or
// all of them when action is empty.
func (s *Store) AuditTrail(action string) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, rec := range s.data.audits {
		if action == "" || rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}

// List returns matching audit records, newest first.
func (s *Store) List(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.Record, error) {
	defer s.lock(ctx)()
	var out []audit.Record
	for i := len(s.data.audits) - 1; i >= 0; i-- {
		rec := s.data.audits[i]
		if (filter.Action != "" && rec.Action != filter.Action) ||
			(filter.EntityType != "" && rec.EntityType != filter.EntityType) ||
			(filter.EntityID != "" && rec.EntityID != filter.EntityID) ||
			(filter.Actor != "" && rec.Actor != filter.Actor) {
			continue
		}
		out = append(out, rec)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
