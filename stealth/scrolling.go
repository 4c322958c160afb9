package stealth

import (
	"context"
	"math"
	"time"

	"github.com/go-rod/rod"
)

// ScrollConfig holds configuration for human-like scrolling
type ScrollConfig struct {
	BaseScrollMin int `yaml:"base_scroll_min"` // pixels
	BaseScrollMax int `yaml:"base_scroll_max"`

	StepDelayMin time.Duration `yaml:"step_delay_min"`
	StepDelayMax time.Duration `yaml:"step_delay_max"`

	// MinChunks and MaxChunks bound how many wheel events one scroll takes.
	MinChunks int `yaml:"min_chunks"`
	MaxChunks int `yaml:"max_chunks"`

	// ScrollBackChance is the probability of scrolling back a little after
	// reaching the element, as if re-reading.
	ScrollBackChance float64 `yaml:"scroll_back_chance"`
}

// DefaultScrollConfig returns sensible defaults for human-like scrolling
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		BaseScrollMin:    100,
		BaseScrollMax:    400,
		StepDelayMin:     20 * time.Millisecond,
		StepDelayMax:     60 * time.Millisecond,
		MinChunks:        4,
		MaxChunks:        7,
		ScrollBackChance: 0.15,
	}
}

type scroller struct {
	cfg ScrollConfig
	rng *lockedRand
}

type viewportPos struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// intoView wheels the page until el sits about a third down the viewport.
// Elements already comfortably visible are left alone.
func (s *scroller) intoView(ctx context.Context, page *rod.Page, el *rod.Element) error {
	res, err := el.Eval(`function () {
		const r = this.getBoundingClientRect();
		return { top: r.top, height: window.innerHeight };
	}`)
	if err != nil {
		return el.ScrollIntoView()
	}
	var pos viewportPos
	if err := res.Value.Unmarshal(&pos); err != nil || pos.Height == 0 {
		return el.ScrollIntoView()
	}

	if pos.Top >= 0 && pos.Top <= pos.Height-100 {
		return nil
	}
	distance := pos.Top - pos.Height/3
	if err := s.by(ctx, page, distance); err != nil {
		return err
	}

	if s.rng.Float64() < s.cfg.ScrollBackChance {
		back := float64(s.cfg.BaseScrollMin) * (0.1 + s.rng.Float64()*0.2)
		if err := page.Mouse.Scroll(0, -math.Copysign(back, distance), 1); err != nil {
			return err
		}
	}
	return nil
}

// by scrolls distance pixels in chunks that are slower at the ends.
func (s *scroller) by(ctx context.Context, page *rod.Page, distance float64) error {
	chunks := s.cfg.MinChunks
	if s.cfg.MaxChunks > s.cfg.MinChunks {
		chunks += s.rng.Intn(s.cfg.MaxChunks - s.cfg.MinChunks + 1)
	}
	chunks = max(chunks, 1)

	var done float64
	for i := 1; i <= chunks; i++ {
		target := distance * easeInOutSine(float64(i)/float64(chunks))
		step := target - done
		done = target
		if math.Abs(step) < 1 {
			continue
		}
		if err := page.Mouse.Scroll(0, step, 1); err != nil {
			return err
		}
		if err := sleep(ctx, s.rng.between(s.cfg.StepDelayMin, s.cfg.StepDelayMax)); err != nil {
			return err
		}
	}
	return nil
}

func easeInOutSine(x float64) float64 {
	return -(math.Cos(math.Pi*x) - 1) / 2
}
