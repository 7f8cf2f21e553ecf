package policy

import (
	"errors"
	"fmt"
	"strings"

	"permitflow/internal/domain/balance"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrUnknownType = errors.New("unknown permission type")
)

const (
	CodeEndBeforeStart      = "end_before_start"
	CodeSameDay             = "same_day"
	CodeDurationRange       = "duration_range"
	CodeStartInPast         = "start_in_past"
	CodeOutsideWorkingHours = "outside_working_hours"
	CodeNonWorkingDay       = "non_working_day"
	CodeReasonRequired      = "reason_required"
	CodeUnknownType         = "unknown_type"
	CodeNotEntitled         = "not_entitled"
	CodeOverlap             = "overlap"
	CodeDailyCap            = "daily_cap"
	CodeWeeklyCap           = "weekly_cap"
	CodeMonthlyCap          = "monthly_cap"
	CodeDailyFrequency      = "daily_frequency"
	CodeMonthlyFrequency    = "monthly_frequency"
	CodeDocumentRequired    = "document_required"
	CodeDocumentMissing     = "document_missing"
	CodeDocumentIntegrity   = "document_integrity"
	CodeSupervisorRequired  = "supervisor_required"
	CodeInsufficientBalance = "insufficient_balance"
	CodeCommentsRequired    = "comments_required"
	CodeOutsideWindow       = "outside_execution_window"
	CodeFutureAttestation   = "future_attestation"
)

type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError aggregates every violated rule of one check.
type ValidationError struct {
	Violations []Violation
}

func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is matches ErrValidation, and balance.ErrInsufficientBalance when one of
// the violations is a balance shortfall.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case balance.ErrInsufficientBalance:
		return e.Has(CodeInsufficientBalance)
	}
	return false
}

func (e *ValidationError) Has(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// violations collects problems and turns them into a *ValidationError.
type violations struct {
	list []Violation
}

func (v *violations) add(field, code, format string, args ...any) {
	v.list = append(v.list, Violation{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *violations) err() error {
	if len(v.list) == 0 {
		return nil
	}
	return &ValidationError{Violations: v.list}
}
