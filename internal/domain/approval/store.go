package approval

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"permitflow/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const recordColumns = `id, request_id, level, approver_id, status, comments, activated_at, decided_at, reminded_at, created_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	if err := row.Scan(&rec.ID, &rec.RequestID, &rec.Level, &rec.ApproverID, &rec.Status, &rec.Comments, &rec.ActivatedAt, &rec.DecidedAt, &rec.RemindedAt, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) InsertRecords(ctx context.Context, records []Record) ([]Record, error) {
	q := querier.From(ctx, s.DB)
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		stored, err := scanRecord(q.QueryRow(ctx, `
      INSERT INTO approval_records (request_id, level, approver_id, status, comments, activated_at, created_at)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
      RETURNING `+recordColumns,
			rec.RequestID, rec.Level, rec.ApproverID, rec.Status, rec.Comments, rec.ActivatedAt, rec.CreatedAt))
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (s *Store) GetRecord(ctx context.Context, requestID string, level int, forUpdate bool) (Record, error) {
	query := `
    SELECT ` + recordColumns + `
    FROM approval_records
    WHERE request_id = $1 AND level = $2
  `
	if forUpdate {
		query += " FOR UPDATE"
	}
	rec, err := scanRecord(querier.From(ctx, s.DB).QueryRow(ctx, query, requestID, level))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) UpdateRecord(ctx context.Context, rec Record, fromStatus string) (Record, error) {
	updated, err := scanRecord(querier.From(ctx, s.DB).QueryRow(ctx, `
    UPDATE approval_records
    SET status = $1, comments = $2, activated_at = $3, decided_at = $4
    WHERE id = $5 AND status = $6
    RETURNING `+recordColumns,
		rec.Status, rec.Comments, rec.ActivatedAt, rec.DecidedAt, rec.ID, fromStatus))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrConcurrentModification
	}
	return updated, err
}

func (s *Store) ListRecords(ctx context.Context, requestID string) ([]Record, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `
    SELECT `+recordColumns+`
    FROM approval_records
    WHERE request_id = $1
    ORDER BY level
  `, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) ListPendingForApprover(ctx context.Context, approverID string) ([]Record, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `
    SELECT `+recordColumns+`
    FROM approval_records
    WHERE approver_id = $1 AND status = $2
    ORDER BY activated_at
  `, approverID, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) ListStale(ctx context.Context, cutoff time.Time) ([]Record, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `
    SELECT `+recordColumns+`
    FROM approval_records
    WHERE status = $1 AND activated_at < $2 AND (reminded_at IS NULL OR reminded_at < $2)
    ORDER BY activated_at
  `, StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) MarkReminded(ctx context.Context, recordID string, at time.Time) error {
	_, err := querier.From(ctx, s.DB).Exec(ctx, `
    UPDATE approval_records SET reminded_at = $1 WHERE id = $2
  `, at, recordID)
	return err
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
