package policy

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	TypeParticularAffairs  = "ASUNTOS_PARTICULARES"
	TypeLactation          = "LACTANCIA"
	TypeTeaching           = "DOCENCIA"
	TypeSickness           = "ENFERMEDAD"
	TypePregnancyControl   = "CONTROL_EMBARAZO"
	TypeMedicalAppointment = "CITA_MEDICA"
)

type AllowanceKind string

const (
	AllowanceNone        AllowanceKind = "none"
	AllowanceFixed       AllowanceKind = "fixed"
	AllowanceWorkingDays AllowanceKind = "working_days"
)

// Special covers behaviours that numeric caps cannot express.
type Special string

const (
	SpecialNone Special = ""
	// SpecialOverridableCap lets an HR override lift the daily cap.
	SpecialOverridableCap Special = "cap_overridable"
)

// Rule is the reference policy of one permission type. Zero caps mean no limit.
type Rule struct {
	Code                  string          `json:"code"`
	Name                  string          `json:"name"`
	MaxHoursPerDay        decimal.Decimal `json:"maxHoursPerDay"`
	MaxHoursPerWeek       decimal.Decimal `json:"maxHoursPerWeek"`
	MaxHoursPerMonth      decimal.Decimal `json:"maxHoursPerMonth"`
	MaxTimesPerDay        int             `json:"maxTimesPerDay"`
	MaxTimesPerMonth      int             `json:"maxTimesPerMonth"`
	RequiresDocument      bool            `json:"requiresDocument"`
	RequiredDocumentTypes []string        `json:"requiredDocumentTypes,omitempty"`
	Allowance             AllowanceKind   `json:"allowance"`
	AllowanceHours        decimal.Decimal `json:"allowanceHours"`
	RequiresEntitlement   bool            `json:"requiresEntitlement"`
	ResetMonthly          bool            `json:"resetMonthly"`
	Special               Special         `json:"special,omitempty"`
}

// UsesBalance reports whether approved hours are taken from a bucket. Types
// without an allowance are capped but unmetered.
func (r Rule) UsesBalance() bool {
	return r.Allowance != AllowanceNone && r.Allowance != ""
}

func hours(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func DefaultRules() []Rule {
	return []Rule{
		{
			Code:             TypeParticularAffairs,
			Name:             "Asuntos particulares",
			MaxHoursPerDay:   hours(2),
			MaxHoursPerMonth: hours(6),
			Allowance:        AllowanceFixed,
			AllowanceHours:   hours(6),
			ResetMonthly:     true,
		},
		{
			Code:                TypeLactation,
			Name:                "Lactancia",
			MaxHoursPerDay:      hours(1),
			MaxTimesPerDay:      1,
			Allowance:           AllowanceWorkingDays,
			AllowanceHours:      hours(1),
			RequiresEntitlement: true,
			ResetMonthly:        true,
		},
		{
			Code:            TypeTeaching,
			Name:            "Docencia",
			MaxHoursPerWeek: hours(6),
			Allowance:       AllowanceNone,
		},
		{
			Code:                  TypeSickness,
			Name:                  "Enfermedad",
			MaxHoursPerDay:        hours(4),
			RequiresDocument:      true,
			RequiredDocumentTypes: []string{"medical_certificate"},
			Allowance:             AllowanceNone,
			Special:               SpecialOverridableCap,
		},
		{
			Code:                  TypePregnancyControl,
			Name:                  "Control de embarazo",
			MaxTimesPerMonth:      1,
			RequiresDocument:      true,
			RequiredDocumentTypes: []string{"medical_appointment"},
			Allowance:             AllowanceNone,
			RequiresEntitlement:   true,
		},
		{
			Code:                  TypeMedicalAppointment,
			Name:                  "Cita médica",
			MaxHoursPerDay:        hours(4),
			MaxTimesPerMonth:      3,
			RequiresDocument:      true,
			RequiredDocumentTypes: []string{"medical_appointment"},
			Allowance:             AllowanceFixed,
			AllowanceHours:        hours(12),
			ResetMonthly:          true,
		},
	}
}

// Registry maps a permission type code to its Rule.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

func NewRegistry(rules ...Rule) *Registry {
	r := &Registry{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		r.rules[rule.Code] = rule
	}
	return r
}

func DefaultRegistry() *Registry {
	return NewRegistry(DefaultRules()...)
}

func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	r.rules[rule.Code] = rule
	r.mu.Unlock()
}

func (r *Registry) Lookup(code string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[code]
	return rule, ok
}

func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ResetEligible lists the codes whose buckets are reset by the monthly job.
func (r *Registry) ResetEligible() []string {
	var codes []string
	for _, rule := range r.Rules() {
		if rule.ResetMonthly && rule.UsesBalance() {
			codes = append(codes, rule.Code)
		}
	}
	return codes
}
