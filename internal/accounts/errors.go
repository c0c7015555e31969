package accounts

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrProfileMissing     = errors.New("account has no profile")
	ErrAccountNotFound    = errors.New("account not found")
)

// NonFieldErrors is the FieldErrors key for errors not tied to one field.
const NonFieldErrors = "__all__"

// FieldErrors maps a form field to the reasons it was rejected.
type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

func (fe FieldErrors) Has(field string) bool {
	return len(fe[field]) > 0
}

func (fe FieldErrors) Any() bool {
	for _, msgs := range fe {
		if len(msgs) > 0 {
			return true
		}
	}
	return false
}

// Fields returns the rejected field names in sorted order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for f, msgs := range fe {
		if len(msgs) > 0 {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// ValidationError carries every field-level reason a submission was rejected.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + strings.Join(e.Fields.Fields(), ", ")
}

func newValidationError(field, msg string) *ValidationError {
	fe := FieldErrors{}
	fe.Add(field, msg)
	return &ValidationError{Fields: fe}
}
