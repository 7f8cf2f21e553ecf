package memstore

import (
	"context"
	"sort"

	"permitflow/internal/domain/directory"
)

func (s *Store) UpsertUser(ctx context.Context, u directory.User) error {
	defer s.lock(ctx)()
	s.data.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (directory.User, error) {
	defer s.lock(ctx)()
	u, ok := s.data.users[userID]
	if !ok {
		return directory.User{}, directory.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) ImmediateSupervisor(ctx context.Context, userID string) (string, error) {
	defer s.lock(ctx)()
	u, ok := s.data.users[userID]
	if !ok || u.SupervisorID == "" {
		return "", nil
	}
	if sup, ok := s.data.users[u.SupervisorID]; !ok || !sup.Active {
		return "", nil
	}
	return u.SupervisorID, nil
}

func (s *Store) HRApprover(ctx context.Context, userID string) (string, error) {
	defer s.lock(ctx)()
	var candidates []directory.User
	for _, u := range s.data.users {
		if u.Active && u.Role == directory.RoleHR && u.ID != userID {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID, nil
}

func (s *Store) IsHR(ctx context.Context, userID string) (bool, error) {
	defer s.lock(ctx)()
	u, ok := s.data.users[userID]
	return ok && u.Active && u.Role == directory.RoleHR, nil
}

func (s *Store) ActiveUserIDs(ctx context.Context) ([]string, error) {
	defer s.lock(ctx)()
	var ids []string
	for _, u := range s.data.users {
		if u.Active {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) HasEntitlement(ctx context.Context, userID, typeID string) (bool, error) {
	defer s.lock(ctx)()
	u, ok := s.data.users[userID]
	return ok && u.Entitled(typeID), nil
}
