package auth

import "fmt"

// Kind classifies an authentication failure.
type Kind int

const (
	KindMissingCredentials Kind = iota + 1
	KindPageStructureChanged
	KindInvalidCredentials
	KindVerificationTimeout
	KindNavigationFailed
)

func (k Kind) String() string {
	switch k {
	case KindMissingCredentials:
		return "missing credentials"
	case KindPageStructureChanged:
		return "page structure changed"
	case KindInvalidCredentials:
		return "invalid credentials"
	case KindVerificationTimeout:
		return "verification timeout"
	case KindNavigationFailed:
		return "navigation failed"
	default:
		return fmt.Sprintf("auth kind %d", int(k))
	}
}

// Error is returned by Manager.Authenticate for every classified failure.
// Match it with errors.Is against the Err* values below.
type Error struct {
	Kind Kind
	// Step names the login step that failed, when known.
	Step string
	Err  error
}

var (
	ErrMissingCredentials   = &Error{Kind: KindMissingCredentials}
	ErrPageStructureChanged = &Error{Kind: KindPageStructureChanged}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials}
	ErrVerificationTimeout  = &Error{Kind: KindVerificationTimeout}
	ErrNavigationFailed     = &Error{Kind: KindNavigationFailed}
)

func (e *Error) Error() string {
	msg := "auth: " + e.Kind.String()
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
