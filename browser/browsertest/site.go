// Package browsertest provides an in-memory browser.Client that serves
// registered HTML pages, so session and search flows can run without Chrome.
//
// Clicking an element runs the first OnClick handler whose selector matches
// it. Without a handler, a data-href attribute navigates and a data-download
// attribute writes a file into the current download dir (data-download="fail"
// writes nothing).
package browsertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Nehilsa2/resume_automation/browser"
)

const blankPage = `<html><head></head><body></body></html>`

type clickHandler struct {
	selector string
	fn       func(s *Site, sel *goquery.Selection)
}

type timedEvent struct {
	at time.Time
	fn func(s *Site)
}

// Site is a fake browser bound to a set of pages. It implements
// browser.Client.
type Site struct {
	// PollInterval is used by WaitFor.
	PollInterval time.Duration

	mu          sync.Mutex
	pages       map[string]string
	redirects   map[string]string
	handlers    []clickHandler
	pending     []timedEvent
	location    string
	doc         *goquery.Document
	gen         int
	history     []string
	typed       map[string]string
	actions     []string
	downloadDir string
	downloads   int
	opens       int
	closed      bool
}

var _ browser.Client = (*Site)(nil)

// New returns an empty site positioned on about:blank.
func New() *Site {
	s := &Site{
		PollInterval: 2 * time.Millisecond,
		pages:        make(map[string]string),
		redirects:    make(map[string]string),
		typed:        make(map[string]string),
		location:     "about:blank",
	}
	s.doc = mustParse(blankPage)
	return s
}

// Page registers html under url.
func (s *Site) Page(url, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = html
	return s
}

// Redirect makes every load of from end up on to.
func (s *Site) Redirect(from, to string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[from] = to
	return s
}

// OnClick registers fn for clicks on elements matching selector.
func (s *Site) OnClick(selector string, fn func(s *Site, sel *goquery.Selection)) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, clickHandler{selector: selector, fn: fn})
	return s
}

// After runs fn once d has elapsed, on the next interaction with the site.
func (s *Site) After(d time.Duration, fn func(s *Site)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, timedEvent{at: time.Now().Add(d), fn: fn})
}

// Goto moves the site to url without recording an action. Handlers use it
// to model server-side redirects.
func (s *Site) Goto(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(url, true)
}

// Opener returns a browser.Opener that hands out this site and counts calls.
func (s *Site) Opener() browser.Opener {
	return func(ctx context.Context) (browser.Client, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.opens++
		return s, nil
	}
}

// Opens reports how many times the Opener was called.
func (s *Site) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Actions returns the recorded interactions in order.
func (s *Site) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

// Typed returns everything typed into elements found with selector.
func (s *Site) Typed(selector string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typed[selector]
}

// Closed reports whether Close was called.
func (s *Site) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Site) load(url string, push bool) {
	if to, ok := s.redirects[url]; ok {
		url = to
	}
	html, ok := s.pages[url]
	if !ok {
		html = blankPage
	}
	s.location = url
	s.doc = mustParse(html)
	s.gen++
	if push {
		s.history = append(s.history, url)
	}
}

func (s *Site) record(format string, args ...any) {
	s.actions = append(s.actions, fmt.Sprintf(format, args...))
}

// tick fires due timed events. It must be called without holding mu.
func (s *Site) tick() {
	s.mu.Lock()
	now := time.Now()
	var due []timedEvent
	kept := s.pending[:0]
	for _, ev := range s.pending {
		if !now.Before(ev.at) {
			due = append(due, ev)
			continue
		}
		kept = append(kept, ev)
	}
	s.pending = kept
	s.mu.Unlock()

	for _, ev := range due {
		ev.fn(s)
	}
}

func (s *Site) enter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.tick()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return browser.ErrClosed
	}
	return nil
}

func (s *Site) Navigate(ctx context.Context, url string) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.record("navigate %s", url)
	s.load(url, true)
	return nil
}

func (s *Site) Element(ctx context.Context, selector string) (browser.Element, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	found := s.doc.Find(selector).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return &element{site: s, sel: found, selector: selector, gen: s.gen}, nil
}

func (s *Site) Elements(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []browser.Element
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, &element{site: s, sel: sel, selector: selector, gen: s.gen})
	})
	return out, nil
}

func (s *Site) ElementContaining(ctx context.Context, selector, text string) (browser.Element, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	found := s.doc.Find(selector).FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return strings.Contains(sel.Text(), text)
	}).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s containing %q", browser.ErrNotFound, selector, text)
	}
	return &element{site: s, sel: found, selector: selector, gen: s.gen}, nil
}

func (s *Site) WaitFor(ctx context.Context, cond browser.Condition, timeout time.Duration) error {
	return browser.Poll(ctx, s.PollInterval, timeout, func(ctx context.Context) (bool, error) {
		return cond(ctx, s)
	})
}

func (s *Site) Click(ctx context.Context, el browser.Element) error {
	e, err := s.own(el)
	if err != nil {
		return err
	}
	if err := s.enter(ctx); err != nil {
		return err
	}
	if e.gen != s.gen {
		s.mu.Unlock()
		return fmt.Errorf("stale element %s", e.selector)
	}
	s.record("click %s", e.selector)

	for _, h := range s.handlers {
		if e.sel.Is(h.selector) {
			s.mu.Unlock()
			h.fn(s, e.sel)
			return nil
		}
	}
	defer s.mu.Unlock()

	if v, ok := e.sel.Attr("data-download"); ok {
		return s.writeDownload(v)
	}
	if href, ok := e.sel.Attr("data-href"); ok {
		s.load(href, true)
	}
	return nil
}

func (s *Site) writeDownload(content string) error {
	if content == "fail" || s.downloadDir == "" {
		return nil
	}
	s.downloads++
	name := filepath.Join(s.downloadDir, fmt.Sprintf("download-%d.pdf", s.downloads))
	return os.WriteFile(name, []byte(content), 0o644)
}

func (s *Site) Type(ctx context.Context, el browser.Element, text string) error {
	e, err := s.own(el)
	if err != nil {
		return err
	}
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if e.gen != s.gen {
		return fmt.Errorf("stale element %s", e.selector)
	}
	s.typed[e.selector] += text
	return nil
}

func (s *Site) Location(ctx context.Context) (string, error) {
	if err := s.enter(ctx); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	return s.location, nil
}

func (s *Site) ScrollIntoView(ctx context.Context, el browser.Element) error {
	e, err := s.own(el)
	if err != nil {
		return err
	}
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.record("scroll %s", e.selector)
	return nil
}

func (s *Site) RunScript(ctx context.Context, script string, args ...any) (string, error) {
	if err := s.enter(ctx); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	s.record("script")
	return "", nil
}

func (s *Site) Snapshot(ctx context.Context, path string) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	html, err := s.doc.Html()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(html), 0o644)
}

func (s *Site) Back(ctx context.Context) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if len(s.history) < 2 {
		return fmt.Errorf("no page to go back to from %s", s.location)
	}
	s.record("back")
	s.history = s.history[:len(s.history)-1]
	s.load(s.history[len(s.history)-1], false)
	return nil
}

func (s *Site) DownloadTo(ctx context.Context, dir string) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.downloadDir = dir
	return nil
}

func (s *Site) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Site) own(el browser.Element) (*element, error) {
	e, ok := el.(*element)
	if !ok || e.site != s {
		return nil, fmt.Errorf("element %T does not belong to this site", el)
	}
	return e, nil
}

type element struct {
	site     *Site
	sel      *goquery.Selection
	selector string
	gen      int
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.sel.Text(), nil
}

func (e *element) Element(ctx context.Context, selector string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found := e.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return &element{site: e.site, sel: found, selector: selector, gen: e.gen}, nil
}

func mustParse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	return doc
}
