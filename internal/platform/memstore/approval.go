package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"permitflow/internal/domain/approval"
)

func (s *Store) InsertRecords(ctx context.Context, records []approval.Record) ([]approval.Record, error) {
	defer s.lock(ctx)()
	for _, rec := range records {
		for _, existing := range s.data.records {
			if existing.RequestID == rec.RequestID && existing.Level == rec.Level {
				return nil, fmt.Errorf("approval record %s/%d already exists", rec.RequestID, rec.Level)
			}
		}
	}
	out := make([]approval.Record, 0, len(records))
	for _, rec := range records {
		rec.ID = uuid.NewString()
		s.data.records[rec.ID] = rec
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) GetRecord(ctx context.Context, requestID string, level int, _ bool) (approval.Record, error) {
	defer s.lock(ctx)()
	for _, rec := range s.data.records {
		if rec.RequestID == requestID && rec.Level == level {
			return rec, nil
		}
	}
	return approval.Record{}, approval.ErrRecordNotFound
}

func (s *Store) UpdateRecord(ctx context.Context, rec approval.Record, fromStatus string) (approval.Record, error) {
	defer s.lock(ctx)()
	existing, ok := s.data.records[rec.ID]
	if !ok || existing.Status != fromStatus {
		return approval.Record{}, approval.ErrConcurrentModification
	}
	existing.Status = rec.Status
	existing.Comments = rec.Comments
	existing.ActivatedAt = rec.ActivatedAt
	existing.DecidedAt = rec.DecidedAt
	s.data.records[rec.ID] = existing
	return existing, nil
}

func (s *Store) ListRecords(ctx context.Context, requestID string) ([]approval.Record, error) {
	defer s.lock(ctx)()
	var out []approval.Record
	for _, rec := range s.data.records {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (s *Store) ListPendingForApprover(ctx context.Context, approverID string) ([]approval.Record, error) {
	defer s.lock(ctx)()
	var out []approval.Record
	for _, rec := range s.data.records {
		if rec.ApproverID == approverID && rec.Status == approval.StatusPending {
			out = append(out, rec)
		}
	}
	sortByActivation(out)
	return out, nil
}

func (s *Store) ListStale(ctx context.Context, cutoff time.Time) ([]approval.Record, error) {
	defer s.lock(ctx)()
	var out []approval.Record
	for _, rec := range s.data.records {
		if rec.Status != approval.StatusPending || rec.ActivatedAt == nil || !rec.ActivatedAt.Before(cutoff) {
			continue
		}
		if rec.RemindedAt != nil && !rec.RemindedAt.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	sortByActivation(out)
	return out, nil
}

func (s *Store) MarkReminded(ctx context.Context, recordID string, at time.Time) error {
	defer s.lock(ctx)()
	rec, ok := s.data.records[recordID]
	if !ok {
		return approval.ErrRecordNotFound
	}
	rec.RemindedAt = &at
	s.data.records[recordID] = rec
	return nil
}

func sortByActivation(records []approval.Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].ActivatedAt, records[j].ActivatedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})
}
