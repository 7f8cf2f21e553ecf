package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"permitflow/internal/domain/permits"
	"permitflow/internal/domain/policy"
)

func (s *Store) Insert(ctx context.Context, r permits.Request) (permits.Request, error) {
	defer s.lock(ctx)()
	r.ID = uuid.NewString()
	r.Version = 1
	r.Documents = append([]policy.Document{}, r.Documents...)
	s.data.requests[r.ID] = r
	return r, nil
}

func (s *Store) Get(ctx context.Context, id string, _ bool) (permits.Request, error) {
	defer s.lock(ctx)()
	r, ok := s.data.requests[id]
	if !ok {
		return permits.Request{}, permits.ErrNotFound
	}
	r.Documents = append([]policy.Document{}, r.Documents...)
	return r, nil
}

func (s *Store) Update(ctx context.Context, r permits.Request) (permits.Request, error) {
	defer s.lock(ctx)()
	existing, ok := s.data.requests[r.ID]
	if !ok {
		return permits.Request{}, permits.ErrNotFound
	}
	if existing.Version != r.Version {
		return permits.Request{}, permits.ErrConcurrentModification
	}
	r.Version++
	r.Documents = append([]policy.Document{}, r.Documents...)
	s.data.requests[r.ID] = r
	return r, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit, offset int) ([]permits.Request, error) {
	defer s.lock(ctx)()
	var all []permits.Request
	for _, r := range s.data.requests {
		if r.UserID == userID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start.After(all[j].Start) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	defer s.lock(ctx)()
	n := 0
	for _, r := range s.data.requests {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListActiveForUser(ctx context.Context, userID string, from, to time.Time) ([]policy.ExistingRequest, error) {
	defer s.lock(ctx)()
	var out []policy.ExistingRequest
	for _, r := range s.data.requests {
		if r.UserID != userID || r.Status == permits.StatusRejected || r.Status == permits.StatusCancelled {
			continue
		}
		if !r.Start.Before(to) || !r.End.After(from) {
			continue
		}
		out = append(out, policy.ExistingRequest{ID: r.ID, TypeID: r.TypeID, Status: r.Status, Start: r.Start, End: r.End, Hours: r.RequestedHours})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) NextRequestNumber(ctx context.Context, at time.Time) (string, error) {
	defer s.lock(ctx)()
	period := at.Format("200601")
	s.data.sequences[period]++
	return permits.FormatRequestNumber(at, s.data.sequences[period]), nil
}
