package policy

import (
	"context"

	"github.com/jackc/pgx/v5"

	"permitflow/internal/platform/querier"
)

// Store persists per-type overrides of the default rules.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const ruleColumns = `code, name, max_hours_per_day, max_hours_per_week, max_hours_per_month, max_times_per_day, max_times_per_month,
  requires_document, required_document_types, allowance_kind, allowance_hours, requires_entitlement, reset_monthly, special`

func (s *Store) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := querier.From(ctx, s.DB).Query(ctx, `SELECT `+ruleColumns+` FROM permission_types WHERE active = TRUE ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *Store) UpsertRule(ctx context.Context, r Rule) error {
	_, err := querier.From(ctx, s.DB).Exec(ctx, `
    INSERT INTO permission_types (`+ruleColumns+`, active)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,TRUE)
    ON CONFLICT (code) DO UPDATE SET
      name = EXCLUDED.name,
      max_hours_per_day = EXCLUDED.max_hours_per_day,
      max_hours_per_week = EXCLUDED.max_hours_per_week,
      max_hours_per_month = EXCLUDED.max_hours_per_month,
      max_times_per_day = EXCLUDED.max_times_per_day,
      max_times_per_month = EXCLUDED.max_times_per_month,
      requires_document = EXCLUDED.requires_document,
      required_document_types = EXCLUDED.required_document_types,
      allowance_kind = EXCLUDED.allowance_kind,
      allowance_hours = EXCLUDED.allowance_hours,
      requires_entitlement = EXCLUDED.requires_entitlement,
      reset_monthly = EXCLUDED.reset_monthly,
      special = EXCLUDED.special,
      active = TRUE
  `, r.Code, r.Name, r.MaxHoursPerDay, r.MaxHoursPerWeek, r.MaxHoursPerMonth, r.MaxTimesPerDay, r.MaxTimesPerMonth,
		r.RequiresDocument, r.RequiredDocumentTypes, string(r.Allowance), r.AllowanceHours, r.RequiresEntitlement, r.ResetMonthly, string(r.Special))
	return err
}

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	var allowance, special string
	if err := row.Scan(&r.Code, &r.Name, &r.MaxHoursPerDay, &r.MaxHoursPerWeek, &r.MaxHoursPerMonth, &r.MaxTimesPerDay, &r.MaxTimesPerMonth,
		&r.RequiresDocument, &r.RequiredDocumentTypes, &allowance, &r.AllowanceHours, &r.RequiresEntitlement, &r.ResetMonthly, &special); err != nil {
		return Rule{}, err
	}
	r.Allowance = AllowanceKind(allowance)
	r.Special = Special(special)
	return r, nil
}

// LoadRules overlays stored rules on top of registry.
func LoadRules(ctx context.Context, store *Store, registry *Registry) (int, error) {
	rules, err := store.ListRules(ctx)
	if err != nil {
		return 0, err
	}
	for _, rule := range rules {
		registry.Register(rule)
	}
	return len(rules), nil
}
