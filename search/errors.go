package search

import (
	"errors"
	"fmt"
)

// Kind classifies a search failure.
type Kind int

const (
	// KindInvalidSession: the session is released or never authenticated.
	KindInvalidSession Kind = iota + 1
	// KindResultsUnavailable: the results page never rendered as expected.
	KindResultsUnavailable
	// KindFilterApplicationFailed: an optional filter could not be applied.
	// Never fatal.
	KindFilterApplicationFailed
	// KindContactInfoUnavailable: the detail view of a card could not be
	// read. Never fatal.
	KindContactInfoUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSession:
		return "invalid session"
	case KindResultsUnavailable:
		return "results unavailable"
	case KindFilterApplicationFailed:
		return "filter application failed"
	case KindContactInfoUnavailable:
		return "contact info unavailable"
	default:
		return fmt.Sprintf("search kind %d", int(k))
	}
}

// Error is a classified search failure.
type Error struct {
	Kind Kind
	// Step names what was being done, e.g. "experience filter".
	Step string
	Err  error
}

var (
	ErrInvalidSession          = &Error{Kind: KindInvalidSession}
	ErrResultsUnavailable      = &Error{Kind: KindResultsUnavailable}
	ErrFilterApplicationFailed = &Error{Kind: KindFilterApplicationFailed}
	ErrContactInfoUnavailable  = &Error{Kind: KindContactInfoUnavailable}
)

// ErrInvalidFilters is returned when required filters are missing or a value
// is out of range. Nothing is sent to the browser in that case.
var ErrInvalidFilters = errors.New("invalid search filters")

// ErrNameUnavailable marks a card skipped because it shows no name.
var ErrNameUnavailable = errors.New("card has no display name")

func (e *Error) Error() string {
	msg := "search: " + e.Kind.String()
	if e.Step != "" {
		msg += " at " + e.Step
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func fail(kind Kind, step string, err error) *Error {
	return &Error{Kind: kind, Step: step, Err: err}
}

// CardError records a card that was skipped or only partly extracted.
type CardError struct {
	Page  int
	Index int
	// Name is empty when the card was skipped for lacking one.
	Name string
	Err  error
}

func (e CardError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("card %d on page %d: %v", e.Index+1, e.Page, e.Err)
	}
	return fmt.Sprintf("card %d (%s) on page %d: %v", e.Index+1, e.Name, e.Page, e.Err)
}

func (e CardError) Unwrap() error { return e.Err }
