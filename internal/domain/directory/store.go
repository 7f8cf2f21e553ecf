package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"permitflow/internal/platform/querier"
)

// Store answers the organisational questions the permit workflow needs
// from the users table.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	var u User
	var supervisorID *string
	err := querier.From(ctx, s.DB).QueryRow(ctx, `
    SELECT id, name, COALESCE(email, ''), role, supervisor_id, entitlements, active, created_at
    FROM users
    WHERE id = $1
  `, userID).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &supervisorID, &u.Entitlements, &u.Active, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	if supervisorID != nil {
		u.SupervisorID = *supervisorID
	}
	return u, nil
}

// ImmediateSupervisor returns "" when the user has no active supervisor.
func (s *Store) ImmediateSupervisor(ctx context.Context, userID string) (string, error) {
	var supervisorID string
	err := querier.From(ctx, s.DB).QueryRow(ctx, `
    SELECT s.id
    FROM users u
    JOIN users s ON s.id = u.supervisor_id AND s.active
    WHERE u.id = $1
  `, userID).Scan(&supervisorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return supervisorID, err
}

// HRApprover picks the longest-serving active HR user other than userID.
func (s *Store) HRApprover(ctx context.Context, userID string) (string, error) {
	var hrID string
	err := querier.From(ctx, s.DB).QueryRow(ctx, `
    SELECT id
    FROM users
    WHERE role = $1 AND active AND id <> $2
    ORDER BY created_at
    LIMIT 1
  `, RoleHR, userID).Scan(&hrID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return hrID, err
}

func (s *Store) IsHR(ctx context.Context, userID string) (bool, error) {
	u, err := s.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Active && u.Role == RoleHR, nil
}

func (s *Store) ActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `SELECT id FROM users WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) HasEntitlement(ctx context.Context, userID, typeID string) (bool, error) {
	u, err := s.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Entitled(typeID), nil
}

func (s *Store) UpsertUser(ctx context.Context, u User) error {
	_, err := querier.From(ctx, s.DB).Exec(ctx, `
    INSERT INTO users (id, name, email, role, supervisor_id, entitlements, active)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    ON CONFLICT (id) DO UPDATE SET
      name = EXCLUDED.name,
      email = EXCLUDED.email,
      role = EXCLUDED.role,
      supervisor_id = EXCLUDED.supervisor_id,
      entitlements = EXCLUDED.entitlements,
      active = EXCLUDED.active
  `, u.ID, u.Name, u.Email, u.Role, nullIfEmpty(u.SupervisorID), u.Entitlements, u.Active)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
