package registry

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicate    = errors.New("duplicate: only one open job per risk type at the same department and point / เปิดได้ 1 งานต่อประเภท ในหน่วยงาน + จุดงานเดียวกัน")
	ErrDuplicateID  = errors.New("duplicate id")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports a missing or invalid request field.
type ValidationError struct {
	Field   string
	Missing bool
}

func (e *ValidationError) Error() string {
	if e.Missing {
		return "missing " + e.Field
	}
	return "invalid " + e.Field
}

// ForbiddenError is returned when the caller lacks the privilege for an
// operation. Owner is set when the operation targets someone else's job.
type ForbiddenError struct {
	Owner string
}

func (e *ForbiddenError) Error() string {
	if e.Owner == "" {
		return "forbidden: admin only"
	}
	return fmt.Sprintf("forbidden: job opened by '%s' only (or admin) / งานนี้เปิดโดย '%s' เท่านั้น (หรือ admin)", e.Owner, e.Owner)
}

func missing(field string) error { return &ValidationError{Field: field, Missing: true} }
func invalid(field string) error { return &ValidationError{Field: field} }
