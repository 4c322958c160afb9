package stealth

import (
	"context"
	"math"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// MouseConfig holds configuration for human-like mouse movement
type MouseConfig struct {
	// BaseSpeed is the duration of a "standard" move.
	BaseSpeed time.Duration `yaml:"base_speed"`

	// Number of steps for the curve. 8-15 looks human, 50+ does not.
	MinSteps int `yaml:"min_steps"`
	MaxSteps int `yaml:"max_steps"`

	OvershootChance   float64 `yaml:"overshoot_chance"`
	OvershootDistance float64 `yaml:"overshoot_distance"` // fraction of the distance

	// CurveVariance: 0.0 = straight line, 0.3 = natural curve
	CurveVariance float64 `yaml:"curve_variance"`

	JitterAmount float64 `yaml:"jitter_amount"` // pixels, 0 disables
}

// DefaultMouseConfig returns balanced settings for human-like movement
func DefaultMouseConfig() MouseConfig {
	return MouseConfig{
		BaseSpeed:         150 * time.Millisecond,
		MinSteps:          8,
		MaxSteps:          14,
		OvershootChance:   0.15,
		OvershootDistance: 0.08,
		CurveVariance:     0.25,
		JitterAmount:      1.5,
	}
}

type mover struct {
	cfg MouseConfig
	rng *lockedRand
}

// click moves the pointer to el along a Bézier curve and clicks it. When
// the element has no box, it falls back to rod's own click.
func (m *mover) click(ctx context.Context, page *rod.Page, el *rod.Element) error {
	target, size, ok := center(el)
	if !ok {
		return el.Click(proto.InputMouseButtonLeft, 1)
	}
	// don't always click dead center
	target.X += (m.rng.Float64() - 0.5) * size.X * 0.3
	target.Y += (m.rng.Float64() - 0.5) * size.Y * 0.3

	from := page.Mouse.Position()
	if from.X == 0 && from.Y == 0 {
		from = m.randomViewportPos(page)
		if err := page.Mouse.MoveTo(from); err != nil {
			return err
		}
	}

	if err := m.move(ctx, page, from, target); err != nil {
		return err
	}
	// reaction time
	if err := sleep(ctx, m.rng.between(30*time.Millisecond, 100*time.Millisecond)); err != nil {
		return err
	}
	return page.Mouse.Click(proto.InputMouseButtonLeft, 1)
}

// center returns the middle of el's first quad and the quad's size.
func center(el *rod.Element) (proto.Point, proto.Point, bool) {
	box, err := el.Shape()
	if err != nil || box == nil || len(box.Quads) == 0 {
		return proto.Point{}, proto.Point{}, false
	}
	q := box.Quads[0]
	mid := proto.Point{X: (q[0] + q[2] + q[4] + q[6]) / 4, Y: (q[1] + q[3] + q[5] + q[7]) / 4}
	size := proto.Point{X: math.Abs(q[2] - q[0]), Y: math.Abs(q[5] - q[1])}
	return mid, size, true
}

func (m *mover) move(ctx context.Context, page *rod.Page, from, to proto.Point) error {
	distance := math.Hypot(to.X-from.X, to.Y-from.Y)
	if distance < 5 {
		return page.Mouse.MoveTo(to)
	}

	steps := min(m.cfg.MinSteps+int(distance/100), m.cfg.MaxSteps)
	ctrl1, ctrl2 := m.controlPoints(from, to)

	duration := time.Duration(float64(m.cfg.BaseSpeed) * (0.8 + distance/500))
	stepDelay := duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		pos := cubicBezier(from, ctrl1, ctrl2, to, easeInOutQuad(float64(i)/float64(steps)))
		if m.cfg.JitterAmount > 0 && i < steps {
			pos.X += (m.rng.Float64() - 0.5) * m.cfg.JitterAmount
			pos.Y += (m.rng.Float64() - 0.5) * m.cfg.JitterAmount
		}
		if err := page.Mouse.MoveTo(pos); err != nil {
			return err
		}
		delay := max(stepDelay+m.rng.between(-5*time.Millisecond, 5*time.Millisecond), time.Millisecond)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	if m.rng.Float64() < m.cfg.OvershootChance {
		return m.overshoot(ctx, page, to, distance)
	}
	return nil
}

// controlPoints offsets the 1/3 and 2/3 points of the straight path
// perpendicular to it.
func (m *mover) controlPoints(from, to proto.Point) (proto.Point, proto.Point) {
	dx, dy := to.X-from.X, to.Y-from.Y
	distance := math.Hypot(dx, dy)
	perpX, perpY := -dy/distance, dx/distance

	at := func(frac float64) proto.Point {
		offset := (m.rng.Float64() - 0.5) * 2 * m.cfg.CurveVariance * distance
		return proto.Point{X: from.X + dx*frac + perpX*offset, Y: from.Y + dy*frac + perpY*offset}
	}
	return at(0.3), at(0.7)
}

// cubicBezier calculates a point on a cubic Bézier curve
func cubicBezier(p0, p1, p2, p3 proto.Point, t float64) proto.Point {
	mt := 1 - t
	a, b, c, d := mt*mt*mt, 3*mt*mt*t, 3*mt*t*t, t*t*t
	return proto.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

// easeInOutQuad: slow start, fast middle, slow end
func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

// overshoot passes the target and corrects back in two or three steps.
func (m *mover) overshoot(ctx context.Context, page *rod.Page, target proto.Point, distance float64) error {
	dist := distance * m.cfg.OvershootDistance * (0.5 + m.rng.Float64()*0.5)
	angle := m.rng.Float64() * 2 * math.Pi
	past := proto.Point{X: target.X + math.Cos(angle)*dist, Y: target.Y + math.Sin(angle)*dist}

	if err := page.Mouse.MoveTo(past); err != nil {
		return err
	}
	if err := sleep(ctx, m.rng.between(15*time.Millisecond, 40*time.Millisecond)); err != nil {
		return err
	}

	steps := 2 + m.rng.Intn(2)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p := proto.Point{X: past.X + (target.X-past.X)*t, Y: past.Y + (target.Y-past.Y)*t}
		if err := page.Mouse.MoveTo(p); err != nil {
			return err
		}
		if err := sleep(ctx, m.rng.between(10*time.Millisecond, 25*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}

// randomViewportPos returns a point in the middle 40% of the viewport.
func (m *mover) randomViewportPos(page *rod.Page) proto.Point {
	w, h := 1280.0, 720.0
	if res, err := page.Eval(`() => ({ width: window.innerWidth, height: window.innerHeight })`); err == nil {
		w, h = res.Value.Get("width").Num(), res.Value.Get("height").Num()
	}
	return proto.Point{
		X: w * (0.3 + m.rng.Float64()*0.4),
		Y: h * (0.3 + m.rng.Float64()*0.4),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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
