package download

import "fmt"

// Kind classifies a download failure.
type Kind int

const (
	KindTriggerFailed Kind = iota + 1
	KindDirectoryEmpty
	KindRenameFailed
)

func (k Kind) String() string {
	switch k {
	case KindTriggerFailed:
		return "trigger failed"
	case KindDirectoryEmpty:
		return "directory empty"
	case KindRenameFailed:
		return "rename failed"
	default:
		return fmt.Sprintf("download kind %d", int(k))
	}
}

// Error reports why a document could not be retrieved for a candidate.
type Error struct {
	Kind Kind
	Name string
	Err  error
}

var (
	// ErrTriggerFailed means the download control could not be found or clicked.
	ErrTriggerFailed = &Error{Kind: KindTriggerFailed}
	// ErrDirectoryEmpty means nothing landed in the staging directory.
	ErrDirectoryEmpty = &Error{Kind: KindDirectoryEmpty}
	// ErrRenameFailed means the staged file could not be moved into place.
	ErrRenameFailed = &Error{Kind: KindRenameFailed}
)

func (e *Error) Error() string {
	msg := "download: " + e.Kind.String()
	if e.Name != "" {
		msg += " for " + e.Name
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
