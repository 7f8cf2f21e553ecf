// Package memstore keeps every workflow table in process memory. Units of
// work are serialised by a single lock and rolled back from a snapshot.
package memstore

import (
	"context"
	"sync"

	"permitflow/internal/domain/approval"
	"permitflow/internal/domain/audit"
	"permitflow/internal/domain/balance"
	"permitflow/internal/domain/directory"
	"permitflow/internal/domain/notifications"
	"permitflow/internal/domain/permits"
)

type Store struct {
	mu   sync.Mutex
	data state
}

type state struct {
	buckets       map[balance.Key]balance.Bucket
	records       map[string]approval.Record
	requests      map[string]permits.Request
	sequences     map[string]int
	audits        []audit.Record
	notifications []notifications.Notification
	users         map[string]directory.User
	documents     map[string][]byte
}

func New() *Store {
	return &Store{data: state{
		buckets:   make(map[balance.Key]balance.Bucket),
		records:   make(map[string]approval.Record),
		requests:  make(map[string]permits.Request),
		sequences: make(map[string]int),
		users:     make(map[string]directory.User),
		documents: make(map[string][]byte),
	}}
}

type txKey struct{}

// WithinTx runs fn while holding the store lock. Changes made by fn are
// discarded when it returns an error.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snap
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// lock takes the store lock unless ctx already holds it.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (st state) clone() state {
	out := state{
		buckets:       make(map[balance.Key]balance.Bucket, len(st.buckets)),
		records:       make(map[string]approval.Record, len(st.records)),
		requests:      make(map[string]permits.Request, len(st.requests)),
		sequences:     make(map[string]int, len(st.sequences)),
		audits:        append([]audit.Record(nil), st.audits...),
		notifications: append([]notifications.Notification(nil), st.notifications...),
		users:         make(map[string]directory.User, len(st.users)),
		documents:     make(map[string][]byte, len(st.documents)),
	}
	for k, v := range st.buckets {
		out.buckets[k] = v
	}
	for k, v := range st.records {
		out.records[k] = v
	}
	for k, v := range st.requests {
		out.requests[k] = v
	}
	for k, v := range st.sequences {
		out.sequences[k] = v
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.documents {
		out.documents[k] = v
	}
	return out
}
