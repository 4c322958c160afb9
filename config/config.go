// Package config loads the site profile and runtime settings: YAML on top of
// built-in defaults, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Nehilsa2/resume_automation/auth"
	"github.com/Nehilsa2/resume_automation/download"
	"github.com/Nehilsa2/resume_automation/humanize"
	"github.com/Nehilsa2/resume_automation/search"
	"github.com/Nehilsa2/resume_automation/stealth"
)

// Paths are the files and directories a run writes to. Relative entries
// are taken relative to DataDir.
type Paths struct {
	DataDir   string `yaml:"data_dir"`
	Database  string `yaml:"database"`
	OutputDir string `yaml:"output_dir"`
}

type Server struct {
	Port int `yaml:"port"`
	// MaxSessions caps concurrent browser sessions of the HTTP server.
	MaxSessions int `yaml:"max_sessions"`
}

type Pacing struct {
	Keystroke humanize.Range `yaml:"keystroke"`
	Action    humanize.Range `yaml:"action"`
	// Seed of the pacers. Zero falls back to the browser seed, then to a
	// random base drawn once per process. Sessions add their number.
	Seed int64 `yaml:"seed"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type Config struct {
	Paths  Paths  `yaml:"paths"`
	Server Server `yaml:"server"`
	Pacing Pacing `yaml:"pacing"`
	Log    Log    `yaml:"log"`

	// Identity is the login used when INDEED_EMAIL is unset. The matching
	// secret lives in the OS keyring under this name.
	Identity string `yaml:"identity"`

	Auth     auth.Config              `yaml:"auth"`
	Search   search.Config            `yaml:"search"`
	Download download.Config          `yaml:"download"`
	Browser  stealth.Config           `yaml:"browser"`
	Limits   map[string]stealth.Limit `yaml:"limits"`
}

// Default returns the Indeed profile with everything stored under ./data.
func Default() Config {
	dl := download.DefaultConfig()
	dl.StagingDir = "staging"
	dl.DocumentDir = "resumes"

	au := auth.DefaultConfig()
	au.SnapshotDir = "snapshots"

	return Config{
		Paths: Paths{
			DataDir:   "data",
			Database:  "resume_automation.db",
			OutputDir: "output",
		},
		Server: Server{Port: 5000, MaxSessions: 2},
		Pacing: Pacing{Keystroke: humanize.DefaultKeystroke, Action: humanize.DefaultAction},
		Log:    Log{Level: "info", Format: "text"},

		Auth:     au,
		Search:   search.DefaultConfig(),
		Download: dl,
		Browser:  stealth.DefaultConfig(),
		Limits:   stealth.DefaultLimits(),
	}
}

// Load reads the YAML profile at path over Default, applies environment
// overrides and resolves relative paths. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read profile: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse profile %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg.resolve(), nil
}

// Validate rejects settings no run could work with.
func (c Config) Validate() error {
	var problems []string
	if c.Server.MaxSessions < 1 {
		problems = append(problems, "server.max_sessions must be at least 1")
	}
	if c.Search.MaxPages < 0 {
		problems = append(problems, "search.max_pages must not be negative")
	}
	if c.Auth.EntryURL == "" || c.Auth.SearchURL == "" {
		problems = append(problems, "auth.entry_url and auth.search_url are required")
	}
	if c.Pacing.Keystroke.Max < c.Pacing.Keystroke.Min || c.Pacing.Action.Max < c.Pacing.Action.Min {
		problems = append(problems, "pacing ranges need min <= max")
	}
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q is neither text nor json", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) resolve() Config {
	in := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.Paths.DataDir, p)
	}
	c.Paths.Database = in(c.Paths.Database)
	c.Paths.OutputDir = in(c.Paths.OutputDir)
	c.Download.StagingDir = in(c.Download.StagingDir)
	c.Download.DocumentDir = in(c.Download.DocumentDir)
	c.Auth.SnapshotDir = in(c.Auth.SnapshotDir)
	return c
}

// processSeed is the pacing base when no seed is configured, so separate
// processes do not replay the same delays.
var processSeed = sync.OnceValue(func() int64 { return time.Now().UnixNano() })

// Pacer returns a pacer for one session. Sessions get distinct seeds
// unless the profile pins one.
func (c Config) Pacer(session int64) *humanize.Pacer {
	seed := c.Pacing.Seed
	if seed == 0 {
		seed = c.Browser.Seed
	}
	if seed == 0 {
		seed = processSeed()
	}
	return humanize.NewPacer(c.Pacing.Keystroke, c.Pacing.Action, seed+session)
}

// Logger builds the process logger.
func (c Config) Logger() (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
