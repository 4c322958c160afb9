package humanize

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Range is an inclusive interval a delay is drawn from uniformly.
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

var (
	// DefaultKeystroke is the pause between two typed characters.
	DefaultKeystroke = Range{Min: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	// DefaultAction is the pause before scrolling, clicking or submitting.
	DefaultAction = Range{Min: 1 * time.Second, Max: 3 * time.Second}
)

// Pacer draws human-looking delays from its own seeded source and sleeps
// them. A nil *Pacer never sleeps.
type Pacer struct {
	keystroke Range
	action    Range

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer returns a pacer whose delays are reproducible for a given seed.
func NewPacer(keystroke, action Range, seed int64) *Pacer {
	return &Pacer{
		keystroke: keystroke,
		action:    action,
		rng:       rand.New(rand.NewSource(seed)),
		sleep:     sleepContext,
	}
}

// NoDelay returns a pacer that draws zero-length delays.
func NoDelay() *Pacer {
	return NewPacer(Range{}, Range{}, 1)
}

// WithSleep replaces the sleep function, mostly so tests can record delays
// instead of waiting them out.
func (p *Pacer) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Pacer {
	p.sleep = fn
	return p
}

// KeystrokeDelay draws the next inter-character delay.
func (p *Pacer) KeystrokeDelay() time.Duration {
	return p.draw(p.keystroke)
}

// ActionDelay draws the next inter-action delay.
func (p *Pacer) ActionDelay() time.Duration {
	return p.draw(p.action)
}

// Keystroke sleeps one inter-character delay.
func (p *Pacer) Keystroke(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	return p.sleep(ctx, p.KeystrokeDelay())
}

// Pause sleeps one inter-action delay.
func (p *Pacer) Pause(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	return p.sleep(ctx, p.ActionDelay())
}

func (p *Pacer) draw(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Min + time.Duration(p.rng.Int63n(int64(r.Max-r.Min)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
