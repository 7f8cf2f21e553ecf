package permits

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"permitflow/internal/domain/policy"
	"permitflow/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const requestColumns = `id, request_number, user_id, type_id, start_time, end_time, requested_hours, reason, status,
  submitted_at, current_approval_level, priority, is_urgent, cap_override, documents, consumed_hours,
  actual_start, actual_end, actual_hours, overtime, cancel_reason, version, created_at, updated_at`

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	var docs []byte
	if err := row.Scan(&r.ID, &r.RequestNumber, &r.UserID, &r.TypeID, &r.Start, &r.End, &r.RequestedHours, &r.Reason, &r.Status,
		&r.SubmittedAt, &r.CurrentApprovalLevel, &r.Priority, &r.IsUrgent, &r.CapOverride, &docs, &r.ConsumedHours,
		&r.ActualStart, &r.ActualEnd, &r.ActualHours, &r.Overtime, &r.CancelReason, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Request{}, err
	}
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &r.Documents); err != nil {
			return Request{}, err
		}
	}
	return r, nil
}

func marshalDocuments(docs []policy.Document) ([]byte, error) {
	if docs == nil {
		docs = []policy.Document{}
	}
	return json.Marshal(docs)
}

func (s *Store) Insert(ctx context.Context, r Request) (Request, error) {
	docs, err := marshalDocuments(r.Documents)
	if err != nil {
		return Request{}, err
	}
	return scanRequest(querier.From(ctx, s.DB).QueryRow(ctx, `
    INSERT INTO permit_requests (request_number, user_id, type_id, start_time, end_time, requested_hours, reason, status,
      current_approval_level, priority, is_urgent, cap_override, documents, consumed_hours, actual_hours, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,0,0,1,$14,$14)
    RETURNING `+requestColumns,
		r.RequestNumber, r.UserID, r.TypeID, r.Start, r.End, r.RequestedHours, r.Reason, r.Status,
		r.CurrentApprovalLevel, r.Priority, r.IsUrgent, r.CapOverride, docs, r.CreatedAt))
}

func (s *Store) Get(ctx context.Context, id string, forUpdate bool) (Request, error) {
	query := `SELECT ` + requestColumns + ` FROM permit_requests WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	r, err := scanRequest(querier.From(ctx, s.DB).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) || malformedID(err) {
		return Request{}, ErrNotFound
	}
	return r, err
}

// malformedID reports an id that is not a valid uuid.
func malformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func (s *Store) Update(ctx context.Context, r Request) (Request, error) {
	docs, err := marshalDocuments(r.Documents)
	if err != nil {
		return Request{}, err
	}
	updated, err := scanRequest(querier.From(ctx, s.DB).QueryRow(ctx, `
    UPDATE permit_requests
    SET type_id = $1, start_time = $2, end_time = $3, requested_hours = $4, reason = $5, status = $6,
        submitted_at = $7, current_approval_level = $8, priority = $9, is_urgent = $10, cap_override = $11,
        documents = $12, consumed_hours = $13, actual_start = $14, actual_end = $15, actual_hours = $16,
        overtime = $17, cancel_reason = $18, version = version + 1, updated_at = $19
    WHERE id = $20 AND version = $21
    RETURNING `+requestColumns,
		r.TypeID, r.Start, r.End, r.RequestedHours, r.Reason, r.Status,
		r.SubmittedAt, r.CurrentApprovalLevel, r.Priority, r.IsUrgent, r.CapOverride,
		docs, r.ConsumedHours, r.ActualStart, r.ActualEnd, r.ActualHours,
		r.Overtime, r.CancelReason, r.UpdatedAt, r.ID, r.Version))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrConcurrentModification
	}
	return updated, err
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Request, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `
    SELECT `+requestColumns+`
    FROM permit_requests
    WHERE user_id = $1
    ORDER BY start_time DESC
    LIMIT $2 OFFSET $3
  `, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	var total int
	if err := querier.From(ctx, s.DB).QueryRow(ctx, "SELECT COUNT(1) FROM permit_requests WHERE user_id = $1", userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListActiveForUser(ctx context.Context, userID string, from, to time.Time) ([]policy.ExistingRequest, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `
    SELECT id, type_id, status, start_time, end_time, requested_hours
    FROM permit_requests
    WHERE user_id = $1 AND status <> ALL($2) AND start_time < $4 AND end_time > $3
    ORDER BY start_time
  `, userID, []string{StatusRejected, StatusCancelled}, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.ExistingRequest
	for rows.Next() {
		var r policy.ExistingRequest
		if err := rows.Scan(&r.ID, &r.TypeID, &r.Status, &r.Start, &r.End, &r.Hours); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NextRequestNumber draws the next number from the per-month sequence.
func (s *Store) NextRequestNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int
	if err := querier.From(ctx, s.DB).QueryRow(ctx, `
    INSERT INTO request_sequences (period, last_value)
    VALUES ($1, 1)
    ON CONFLICT (period) DO UPDATE SET last_value = request_sequences.last_value + 1
    RETURNING last_value
  `, at.Format("200601")).Scan(&seq); err != nil {
		return "", err
	}
	return FormatRequestNumber(at, seq), nil
}
