// Package browser defines the capability surface the automation core needs
// from a browser. The go-rod implementation lives in package stealth; tests
// use browsertest.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a selector matches nothing on the page.
	ErrNotFound = errors.New("element not found")
	// ErrTimeout is returned when a condition did not hold within its bound.
	ErrTimeout = errors.New("timed out waiting for condition")
	// ErrClosed is returned by any call made after Close.
	ErrClosed = errors.New("browser client closed")
)

// Element is a handle to a node on the current page. Handles are only
// valid until the next navigation.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Element looks up a descendant without waiting.
	Element(ctx context.Context, selector string) (Element, error)
}

// Client drives a single page. Implementations are not safe for concurrent
// use: one session is one logical thread of control.
type Client interface {
	Navigate(ctx context.Context, url string) error
	// Element returns the first match for selector without waiting.
	Element(ctx context.Context, selector string) (Element, error)
	// Elements returns all matches in document order, possibly none.
	Elements(ctx context.Context, selector string) ([]Element, error)
	// ElementContaining returns the first match whose text contains text.
	ElementContaining(ctx context.Context, selector, text string) (Element, error)
	// WaitFor polls cond until it holds, returning ErrTimeout after timeout.
	WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error
	Click(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	Location(ctx context.Context) (string, error)
	ScrollIntoView(ctx context.Context, el Element) error
	RunScript(ctx context.Context, script string, args ...any) (string, error)
	// Snapshot writes a diagnostic capture of the current page to path.
	Snapshot(ctx context.Context, path string) error
	Back(ctx context.Context) error
	// DownloadTo routes every download started afterwards into dir.
	DownloadTo(ctx context.Context, dir string) error
	Close() error
}

// Opener creates a fresh client. Each call must return an independent
// browser session.
type Opener func(ctx context.Context) (Client, error)
