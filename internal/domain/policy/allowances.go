package policy

import (
	"context"

	"github.com/shopspring/decimal"

	"permitflow/internal/domain/balance"
)

type EntitlementChecker interface {
	HasEntitlement(ctx context.Context, userID, typeID string) (bool, error)
}

// Allowances computes the initial hours of a bucket from the type's rule.
type Allowances struct {
	Rules        *Registry
	Config       Config
	Entitlements EntitlementChecker
}

func NewAllowances(rules *Registry, cfg Config, entitlements EntitlementChecker) *Allowances {
	return &Allowances{Rules: rules, Config: cfg, Entitlements: entitlements}
}

func (a *Allowances) InitialAllowance(ctx context.Context, key balance.Key) (decimal.Decimal, error) {
	rule, ok := a.Rules.Lookup(key.TypeID)
	if !ok {
		return decimal.Zero, nil
	}
	if rule.RequiresEntitlement && a.Entitlements != nil {
		entitled, err := a.Entitlements.HasEntitlement(ctx, key.UserID, key.TypeID)
		if err != nil {
			return decimal.Zero, err
		}
		if !entitled {
			return decimal.Zero, nil
		}
	}
	switch rule.Allowance {
	case AllowanceFixed:
		return rule.AllowanceHours, nil
	case AllowanceWorkingDays:
		days := a.Config.WorkingDaysIn(key.Year, key.Month)
		return rule.AllowanceHours.Mul(decimal.NewFromInt(int64(days))), nil
	default:
		return decimal.Zero, nil
	}
}
