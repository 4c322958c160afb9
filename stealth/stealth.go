// Package stealth implements browser.Client on top of go-rod, with a
// launcher that hides automation fingerprints and human-like mouse and
// scroll movement.
package stealth

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config controls how the browser is launched and how it moves.
type Config struct {
	Headless bool `yaml:"headless"`
	// Bin is the Chrome binary. Empty lets rod find or download one.
	Bin string `yaml:"bin"`
	// UserDataDir keeps a browser profile between runs. Empty uses a
	// throwaway profile.
	UserDataDir string `yaml:"user_data_dir"`
	// UserAgent and Viewport are picked at random when empty.
	UserAgent string   `yaml:"user_agent"`
	Viewport  Viewport `yaml:"viewport"`
	// Seed drives every random choice of one browser.
	Seed int64 `yaml:"seed"`

	PollInterval time.Duration `yaml:"poll_interval"`
	Mouse        MouseConfig   `yaml:"mouse"`
	Scroll       ScrollConfig  `yaml:"scroll"`
}

// Viewport represents browser window dimensions
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DefaultConfig returns a headed browser with randomized fingerprint.
func DefaultConfig() Config {
	return Config{
		Seed:         time.Now().UnixNano(),
		PollInterval: 250 * time.Millisecond,
		Mouse:        DefaultMouseConfig(),
		Scroll:       DefaultScrollConfig(),
	}
}

// Common realistic viewport sizes (desktop)
var commonViewports = []Viewport{
	{1920, 1080}, // Full HD (most common)
	{1366, 768},  // HD (laptops)
	{1536, 864},  // Common laptop
	{1440, 900},  // MacBook
	{1280, 720},  // HD
	{1600, 900},  // HD+
	{1680, 1050}, // WSXGA+
	{1920, 1200}, // WUXGA
}

// Common realistic user agents (updated Chrome versions)
var commonUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// withDefaults fills the fingerprint fields left empty.
func (c Config) withDefaults(rng *lockedRand) Config {
	if c.UserAgent == "" {
		c.UserAgent = commonUserAgents[rng.Intn(len(commonUserAgents))]
	}
	if c.Viewport.Width == 0 || c.Viewport.Height == 0 {
		vp := commonViewports[rng.Intn(len(commonViewports))]
		// ±10 pixels so sessions never share an exact size
		vp.Width += rng.Intn(20) - 10
		vp.Height += rng.Intn(20) - 10
		c.Viewport = vp
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Mouse.MaxSteps == 0 {
		c.Mouse = DefaultMouseConfig()
	}
	if c.Scroll.BaseScrollMax == 0 {
		c.Scroll = DefaultScrollConfig()
	}
	return c
}

// newLauncher creates a Chrome launcher with anti-detection flags.
// "disable-blink-features=AutomationControlled" keeps navigator.webdriver
// unset and removes the automation banner.
func newLauncher(cfg Config) *launcher.Launcher {
	l := launcher.New().
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-dev-shm-usage").
		Set("window-size", fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)).
		Set("disable-extensions").
		Set("user-agent", cfg.UserAgent).
		Headless(cfg.Headless).
		// Don't use leakless (can cause issues)
		Leakless(false)

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	return l
}

// preparePage applies viewport, user agent and the stealth script to a tab
// before its first navigation.
func preparePage(page *rod.Page, cfg Config) error {
	err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.Viewport.Width,
		Height:            cfg.Viewport.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if _, err := page.EvalOnNewDocument(stealthScript()); err != nil {
		return fmt.Errorf("inject stealth script: %w", err)
	}
	return nil
}

// stealthScript masks the navigator properties detection scripts read.
func stealthScript() string {
	return `(() => {
	const define = (obj, prop, value) =>
		Object.defineProperty(obj, prop, { get: () => value, configurable: true });

	define(navigator, 'webdriver', undefined);
	define(navigator, 'languages', ['en-US', 'en']);
	define(navigator, 'hardwareConcurrency', 8);
	define(navigator, 'deviceMemory', 8);
	define(navigator, 'maxTouchPoints', 0);

	const plugins = ['Chrome PDF Plugin', 'Chrome PDF Viewer', 'Native Client']
		.map((name) => ({ name, filename: name.toLowerCase().replace(/ /g, '-'), description: '' }));
	plugins.item = (i) => plugins[i] || null;
	plugins.namedItem = (name) => plugins.find((p) => p.name === name) || null;
	plugins.refresh = () => {};
	define(navigator, 'plugins', plugins);

	window.chrome = window.chrome || {};
	window.chrome.runtime = window.chrome.runtime || {};

	const query = window.navigator.permissions && window.navigator.permissions.query;
	if (query) {
		window.navigator.permissions.query = (p) => p.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: query.call(window.navigator.permissions, p);
	}
})();`
}

// lockedRand is a seeded source safe for the mover and scroller of one
// client to share.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// between returns a duration in [lo, hi].
func (l *lockedRand) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo + time.Duration(l.r.Int63n(int64(hi-lo)+1))
}
