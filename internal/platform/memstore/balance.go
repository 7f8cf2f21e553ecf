package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"permitflow/internal/domain/balance"
)

func (s *Store) GetBucket(ctx context.Context, key balance.Key, _ bool) (balance.Bucket, error) {
	defer s.lock(ctx)()
	b, ok := s.data.buckets[key]
	if !ok {
		return balance.Bucket{}, balance.ErrBucketNotFound
	}
	return b, nil
}

func (s *Store) InsertBucket(ctx context.Context, b balance.Bucket) (balance.Bucket, bool, error) {
	defer s.lock(ctx)()
	if existing, ok := s.data.buckets[b.Key()]; ok {
		return existing, false, nil
	}
	b.ID = uuid.NewString()
	b.Version = 1
	s.data.buckets[b.Key()] = b
	return b, true, nil
}

func (s *Store) UpdateBucket(ctx context.Context, b balance.Bucket) (balance.Bucket, error) {
	defer s.lock(ctx)()
	existing, ok := s.data.buckets[b.Key()]
	if !ok || existing.ID != b.ID || existing.Version != b.Version {
		return balance.Bucket{}, balance.ErrConcurrentModification
	}
	b.Version++
	s.data.buckets[b.Key()] = b
	return b, nil
}

func (s *Store) ListBuckets(ctx context.Context, userID string, year int) ([]balance.Bucket, error) {
	defer s.lock(ctx)()
	var out []balance.Bucket
	for _, b := range s.data.buckets {
		if b.UserID == userID && b.Year == year {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].TypeID < out[j].TypeID
	})
	return out, nil
}

func (s *Store) ListPeriodBuckets(ctx context.Context, year int, month time.Month, typeIDs []string) ([]balance.Bucket, error) {
	defer s.lock(ctx)()
	wanted := make(map[string]bool, len(typeIDs))
	for _, id := range typeIDs {
		wanted[id] = true
	}
	var out []balance.Bucket
	for _, b := range s.data.buckets {
		if b.Year == year && b.Month == month && wanted[b.TypeID] {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TypeID != out[j].TypeID {
			return out[i].TypeID < out[j].TypeID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// SeedBucket stores b as is, replacing any bucket with the same key.
func (s *Store) SeedBucket(b balance.Bucket) balance.Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Version == 0 {
		b.Version = 1
	}
	b.Remaining = balance.RemainingHours(b.Available, b.Used)
	s.data.buckets[b.Key()] = b
	return b
}
