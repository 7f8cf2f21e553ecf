package balance

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

const bucketColumns = `id, user_id, type_id, year, month, available_hours, used_hours, remaining_hours, version, created_at, updated_at`

func scanBucket(row pgx.Row) (Bucket, error) {
	var b Bucket
	var month int
	if err := row.Scan(&b.ID, &b.UserID, &b.TypeID, &b.Year, &month, &b.Available, &b.Used, &b.Remaining, &b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return Bucket{}, err
	}
	b.Month = time.Month(month)
	return b, nil
}

func (s *Store) GetBucket(ctx context.Context, key Key, forUpdate bool) (Bucket, error) {
	query := `
    SELECT ` + bucketColumns + `
    FROM balance_buckets
    WHERE user_id = $1 AND type_id = $2 AND year = $3 AND month = $4
  `
	if forUpdate {
		query += " FOR UPDATE"
	}
	b, err := scanBucket(querier.From(ctx, s.DB).QueryRow(ctx, query, key.UserID, key.TypeID, key.Year, int(key.Month)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Bucket{}, ErrBucketNotFound
	}
	return b, err
}

func (s *Store) InsertBucket(ctx context.Context, b Bucket) (Bucket, bool, error) {
	stored, err := scanBucket(querier.From(ctx, s.DB).QueryRow(ctx, `
    INSERT INTO balance_buckets (user_id, type_id, year, month, available_hours, used_hours, remaining_hours, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,1,$8,$8)
    ON CONFLICT (user_id, type_id, year, month) DO NOTHING
    RETURNING `+bucketColumns,
		b.UserID, b.TypeID, b.Year, int(b.Month), b.Available, b.Used, b.Remaining, b.CreatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := s.GetBucket(ctx, b.Key(), false)
		return existing, false, getErr
	}
	if err != nil {
		return Bucket{}, false, err
	}
	return stored, true, nil
}

func (s *Store) UpdateBucket(ctx context.Context, b Bucket) (Bucket, error) {
	updated, err := scanBucket(querier.From(ctx, s.DB).QueryRow(ctx, `
    UPDATE balance_buckets
    SET available_hours = $1, used_hours = $2, remaining_hours = $3, version = version + 1, updated_at = $4
    WHERE id = $5 AND version = $6
    RETURNING `+bucketColumns,
		b.Available, b.Used, b.Remaining, b.UpdatedAt, b.ID, b.Version))
	if errors.Is(err, pgx.ErrNoRows) {
		return Bucket{}, ErrConcurrentModification
	}
	return updated, err
}

func (s *Store) ListBuckets(ctx context.Context, userID string, year int) ([]Bucket, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `
    SELECT `+bucketColumns+`
    FROM balance_buckets
    WHERE user_id = $1 AND year = $2
    ORDER BY month, type_id
  `, userID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBuckets(rows)
}

func (s *Store) ListPeriodBuckets(ctx context.Context, year int, month time.Month, typeIDs []string) ([]Bucket, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `
    SELECT `+bucketColumns+`
    FROM balance_buckets
    WHERE year = $1 AND month = $2 AND type_id = ANY($3)
    ORDER BY type_id, user_id
  `, year, int(month), typeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBuckets(rows)
}

func collectBuckets(rows pgx.Rows) ([]Bucket, error) {
	var out []Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
