package memstore

import (
	"context"

	"permitflow/internal/platform/blobstore"
)

// PutDocument stores data under ref and returns its digest.
func (s *Store) PutDocument(ref string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.documents[ref] = append([]byte(nil), data...)
	return blobstore.Digest(data)
}

func (s *Store) Exists(ctx context.Context, ref string) (bool, error) {
	defer s.lock(ctx)()
	_, ok := s.data.documents[ref]
	return ok, nil
}

func (s *Store) Hash(ctx context.Context, ref string) (string, error) {
	defer s.lock(ctx)()
	data, ok := s.data.documents[ref]
	if !ok {
		return "", blobstore.ErrNotFound
	}
	return blobstore.Digest(data), nil
}
