package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"permitflow/internal/platform/querier"
)

const (
	EntityPermitRequest  = "permit_request"
	EntityApprovalRecord = "approval_record"
	EntityBalanceBucket  = "balance_bucket"
)

// Record is one immutable audit row. OldValue and NewValue are serialised as JSON.
type Record struct {
	ID         string          `json:"id,omitempty"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	OldValue   any             `json:"-"`
	NewValue   any             `json:"-"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

type Sink interface {
	Record(ctx context.Context, rec Record) error
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	Actor      string
}

type Service struct {
	DB querier.Querier
}

func New(db querier.Querier) *Service {
	return &Service{DB: db}
}

// Record writes through the transaction carried by ctx when there is one, so
// the row commits or rolls back with the change it describes.
func (s *Service) Record(ctx context.Context, rec Record) error {
	beforeJSON, afterJSON, err := Marshal(rec)
	if err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err = querier.From(ctx, s.DB).Exec(ctx, `
    INSERT INTO audit_events (actor_user_id, action, entity_type, entity_id, before_json, after_json, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, rec.Actor, rec.Action, rec.EntityType, rec.EntityID, beforeJSON, afterJSON, rec.Timestamp)
	return err
}

// Marshal encodes the old/new values of rec; nil values stay nil.
func Marshal(rec Record) ([]byte, []byte, error) {
	var beforeJSON, afterJSON []byte
	if rec.OldValue != nil {
		payload, err := json.Marshal(rec.OldValue)
		if err != nil {
			return nil, nil, err
		}
		beforeJSON = payload
	}
	if rec.NewValue != nil {
		payload, err := json.Marshal(rec.NewValue)
		if err != nil {
			return nil, nil, err
		}
		afterJSON = payload
	}
	return beforeJSON, afterJSON, nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Record, error) {
	query, args := buildBaseQuery("SELECT id, actor_user_id, action, entity_type, entity_id, before_json, after_json, created_at", filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Action, &rec.EntityType, &rec.EntityID, &rec.Before, &rec.After, &rec.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE 1=1"
	var args []any
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		query += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}
	if filter.Actor != "" {
		args = append(args, filter.Actor)
		query += fmt.Sprintf(" AND actor_user_id = $%d", len(args))
	}
	return query, args
}
