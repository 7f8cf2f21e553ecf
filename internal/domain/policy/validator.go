package policy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"permitflow/internal/domain/balance"
	"permitflow/internal/platform/clock"
)

// ExistingRequest is the slice of a stored request the rules look at.
type ExistingRequest struct {
	ID     string
	TypeID string
	Status string
	Start  time.Time
	End    time.Time
	Hours  decimal.Decimal
}

// RequestReader lists a user's requests that still count against limits
// (neither rejected nor cancelled) and intersect [from, to).
type RequestReader interface {
	ListActiveForUser(ctx context.Context, userID string, from, to time.Time) ([]ExistingRequest, error)
}

type DocumentChecker interface {
	Exists(ctx context.Context, ref string) (bool, error)
	Hash(ctx context.Context, ref string) (string, error)
}

type Directory interface {
	EntitlementChecker
	ImmediateSupervisor(ctx context.Context, userID string) (string, error)
}

type BalanceReader interface {
	GetOrCreate(ctx context.Context, key balance.Key) (balance.Bucket, error)
}

type Document struct {
	Ref     string `json:"ref"`
	DocType string `json:"docType"`
	Digest  string `json:"digest,omitempty"`
}

// Draft is a request as it is being created or edited.
type Draft struct {
	RequestID   string
	UserID      string
	TypeID      string
	Start       time.Time
	End         time.Time
	Reason      string
	CapOverride bool
}

// Submission is a draft about to enter the approval chain.
type Submission struct {
	RequestID string
	UserID    string
	TypeID    string
	Start     time.Time
	Hours     decimal.Decimal
	Documents []Document
}

type Validator struct {
	Rules     *Registry
	Config    Config
	Requests  RequestReader
	Documents DocumentChecker
	Directory Directory
	Balances  BalanceReader
	Clock     clock.Clock
}

// ValidateCreation checks the time window, type caps, overlap and frequency
// of a draft and reports every violation at once.
func (v *Validator) ValidateCreation(ctx context.Context, d Draft) error {
	var out violations
	start := v.Config.Local(d.Start)
	end := v.Config.Local(d.End)

	if strings.TrimSpace(d.Reason) == "" {
		out.add("reason", CodeReasonRequired, "a reason is required")
	}
	rule, known := v.Rules.Lookup(d.TypeID)
	if !known {
		out.add("typeId", CodeUnknownType, "unknown permission type %q", d.TypeID)
	}

	if !end.After(start) {
		out.add("end", CodeEndBeforeStart, "end must be after start")
		return out.err()
	}
	if !start.After(v.Clock.Now()) {
		out.add("start", CodeStartInPast, "start must be in the future")
	}
	sameDay := startOfDay(start).Equal(startOfDay(end))
	if !sameDay {
		out.add("end", CodeSameDay, "start and end must fall on the same day")
	}
	duration := end.Sub(start)
	if duration < v.Config.MinDuration || duration > v.Config.MaxDuration {
		out.add("end", CodeDurationRange, "duration must be between %s and %s", v.Config.MinDuration, v.Config.MaxDuration)
	}
	if !v.Config.WorkingDays[start.Weekday()] {
		out.add("start", CodeNonWorkingDay, "%s is not a working day", start.Weekday())
	}
	if sinceMidnight(start) < v.Config.WorkdayStart || !sameDay || sinceMidnight(end) > v.Config.WorkdayEnd {
		out.add("start", CodeOutsideWorkingHours, "permits must fall within working hours")
	}
	if !known {
		return out.err()
	}

	if rule.RequiresEntitlement {
		entitled, err := v.Directory.HasEntitlement(ctx, d.UserID, d.TypeID)
		if err != nil {
			return err
		}
		if !entitled {
			out.add("typeId", CodeNotEntitled, "user is not entitled to %s", rule.Name)
		}
	}

	from, to := lookbackWindow(start)
	existing, err := v.Requests.ListActiveForUser(ctx, d.UserID, from, to)
	if err != nil {
		return err
	}
	existing = exclude(existing, d.RequestID)
	for _, other := range existing {
		if other.Start.Before(end) && start.Before(other.End) {
			out.add("start", CodeOverlap, "overlaps request %s", other.ID)
			break
		}
	}
	v.checkCaps(&out, rule, d, start, Hours(start, end), existing)
	v.checkFrequency(&out, rule, start, existing)
	return out.err()
}

// ValidateFrequency checks the per-day and per-month request limits of
// typeID for the period containing periodStart. excludeRequestID is left out
// of the count.
func (v *Validator) ValidateFrequency(ctx context.Context, userID, typeID string, periodStart time.Time, excludeRequestID string) error {
	rule, ok := v.Rules.Lookup(typeID)
	if !ok {
		return NewValidationError(Violation{Field: "typeId", Code: CodeUnknownType, Message: "unknown permission type " + typeID})
	}
	start := v.Config.Local(periodStart)
	existing, err := v.Requests.ListActiveForUser(ctx, userID, startOfMonth(start), startOfMonth(start).AddDate(0, 1, 0))
	if err != nil {
		return err
	}
	var out violations
	v.checkFrequency(&out, rule, start, exclude(existing, excludeRequestID))
	return out.err()
}

// ValidateSubmission checks documents, supervisor assignment and balance.
func (v *Validator) ValidateSubmission(ctx context.Context, s Submission) error {
	rule, ok := v.Rules.Lookup(s.TypeID)
	if !ok {
		return NewValidationError(Violation{Field: "typeId", Code: CodeUnknownType, Message: "unknown permission type " + s.TypeID})
	}
	var out violations

	if !v.Config.Local(s.Start).After(v.Clock.Now()) {
		out.add("start", CodeStartInPast, "start must be in the future")
	}
	if err := v.checkDocuments(ctx, &out, rule, s.Documents); err != nil {
		return err
	}

	supervisor, err := v.Directory.ImmediateSupervisor(ctx, s.UserID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(supervisor) == "" {
		out.add("userId", CodeSupervisorRequired, "no supervisor is assigned")
	}

	if rule.UsesBalance() {
		key := balance.KeyFor(s.UserID, s.TypeID, v.Config.Local(s.Start))
		bucket, err := v.Balances.GetOrCreate(ctx, key)
		if err != nil {
			return err
		}
		if !balance.HasSufficient(bucket, s.Hours) {
			out.add("hours", CodeInsufficientBalance, "requested %s hours but %s remain", s.Hours.String(), bucket.Remaining.String())
		}
	}
	return out.err()
}

func (v *Validator) checkCaps(out *violations, rule Rule, d Draft, start time.Time, hours decimal.Decimal, existing []ExistingRequest) {
	overridden := d.CapOverride && rule.Special == SpecialOverridableCap
	if rule.MaxHoursPerDay.IsPositive() && !overridden {
		used := sumHours(existing, rule.Code, startOfDay(start), startOfDay(start).AddDate(0, 0, 1))
		if used.Add(hours).GreaterThan(rule.MaxHoursPerDay) {
			out.add("end", CodeDailyCap, "%s allows at most %s hours per day", rule.Name, rule.MaxHoursPerDay.String())
		}
	}
	if rule.MaxHoursPerWeek.IsPositive() {
		used := sumHours(existing, rule.Code, startOfWeek(start), startOfWeek(start).AddDate(0, 0, 7))
		if used.Add(hours).GreaterThan(rule.MaxHoursPerWeek) {
			out.add("end", CodeWeeklyCap, "%s allows at most %s hours per week", rule.Name, rule.MaxHoursPerWeek.String())
		}
	}
	if rule.MaxHoursPerMonth.IsPositive() {
		used := sumHours(existing, rule.Code, startOfMonth(start), startOfMonth(start).AddDate(0, 1, 0))
		if used.Add(hours).GreaterThan(rule.MaxHoursPerMonth) {
			out.add("end", CodeMonthlyCap, "%s allows at most %s hours per month", rule.Name, rule.MaxHoursPerMonth.String())
		}
	}
}

func (v *Validator) checkFrequency(out *violations, rule Rule, start time.Time, existing []ExistingRequest) {
	if rule.MaxTimesPerDay > 0 {
		if countOf(existing, rule.Code, startOfDay(start), startOfDay(start).AddDate(0, 0, 1))+1 > rule.MaxTimesPerDay {
			out.add("start", CodeDailyFrequency, "%s may be requested at most %d time(s) per day", rule.Name, rule.MaxTimesPerDay)
		}
	}
	if rule.MaxTimesPerMonth > 0 {
		if countOf(existing, rule.Code, startOfMonth(start), startOfMonth(start).AddDate(0, 1, 0))+1 > rule.MaxTimesPerMonth {
			out.add("start", CodeMonthlyFrequency, "%s may be requested at most %d time(s) per month", rule.Name, rule.MaxTimesPerMonth)
		}
	}
}

func (v *Validator) checkDocuments(ctx context.Context, out *violations, rule Rule, docs []Document) error {
	if rule.RequiresDocument {
		if len(rule.RequiredDocumentTypes) == 0 && len(docs) == 0 {
			out.add("documents", CodeDocumentRequired, "%s requires a supporting document", rule.Name)
		}
		for _, docType := range rule.RequiredDocumentTypes {
			if !hasDocType(docs, docType) {
				out.add("documents", CodeDocumentRequired, "%s requires a %s document", rule.Name, docType)
			}
		}
	}
	for _, doc := range docs {
		exists, err := v.Documents.Exists(ctx, doc.Ref)
		if err != nil {
			return err
		}
		if !exists {
			out.add("documents", CodeDocumentMissing, "document %s is not in the store", doc.Ref)
			continue
		}
		if doc.Digest == "" {
			continue
		}
		digest, err := v.Documents.Hash(ctx, doc.Ref)
		if err != nil {
			return err
		}
		if !strings.EqualFold(digest, doc.Digest) {
			out.add("documents", CodeDocumentIntegrity, "document %s does not match its recorded digest", doc.Ref)
		}
	}
	return nil
}

// IsValidation reports whether err carries rule violations.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// lookbackWindow spans the month and the week of start.
func lookbackWindow(start time.Time) (time.Time, time.Time) {
	from, to := startOfMonth(start), startOfMonth(start).AddDate(0, 1, 0)
	if week := startOfWeek(start); week.Before(from) {
		from = week
	}
	if weekEnd := startOfWeek(start).AddDate(0, 0, 7); weekEnd.After(to) {
		to = weekEnd
	}
	return from, to
}

func exclude(list []ExistingRequest, id string) []ExistingRequest {
	if id == "" {
		return list
	}
	out := list[:0:0]
	for _, r := range list {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func hasDocType(docs []Document, docType string) bool {
	for _, d := range docs {
		if d.DocType == docType {
			return true
		}
	}
	return false
}

func sumHours(list []ExistingRequest, typeID string, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, r := range list {
		if r.TypeID == typeID && !r.Start.Before(from) && r.Start.Before(to) {
			total = total.Add(r.Hours)
		}
	}
	return total
}

func countOf(list []ExistingRequest, typeID string, from, to time.Time) int {
	n := 0
	for _, r := range list {
		if r.TypeID == typeID && !r.Start.Before(from) && r.Start.Before(to) {
			n++
		}
	}
	return n
}
