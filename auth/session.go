package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Nehilsa2/resume_automation/browser"
)

// State is a step of the authentication state machine.
type State int

const (
	Unauthenticated State = iota
	CredentialsSubmitted
	VerificationPending
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case CredentialsSubmitted:
		return "credentials_submitted"
	case VerificationPending:
		return "verification_pending"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Authenticated || s == Failed
}

var transitions = map[State][]State{
	Unauthenticated:      {CredentialsSubmitted},
	CredentialsSubmitted: {VerificationPending, Authenticated, Failed},
	VerificationPending:  {Authenticated, Failed},
}

type machine struct {
	state  State
	notify func(from, to State)
}

func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			prev := m.state
			m.state = next
			if m.notify != nil {
				m.notify(prev, next)
			}
			return nil
		}
	}
	return fmt.Errorf("invalid session transition %s -> %s", m.state, next)
}

var (
	// ErrSessionReleased is returned when a released session is used.
	ErrSessionReleased = errors.New("session released")
	// ErrNotAuthenticated is returned when a session never reached Authenticated.
	ErrNotAuthenticated = errors.New("session not authenticated")
)

// Session is the handle returned by a successful Authenticate. It owns its
// browser client exclusively; the caller must Release it and must not use
// it from two goroutines at once.
type Session struct {
	mu       sync.Mutex
	client   browser.Client
	state    State
	released bool
}

// NewSession wraps a client already known to be in state. It exists for
// callers that manage login themselves and for tests.
func NewSession(client browser.Client, state State) *Session {
	return &Session{client: client, state: state}
}

// State returns the state the session reached.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Client returns the underlying client while the session is authenticated
// and not released.
func (s *Session) Client() (browser.Client, error) {
	if s == nil {
		return nil, ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrSessionReleased
	}
	if s.state != Authenticated {
		return nil, ErrNotAuthenticated
	}
	return s.client, nil
}

// Release closes the browser client. Calling it more than once is safe.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	return s.client.Close()
}
