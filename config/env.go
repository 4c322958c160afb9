package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by Load and Credentials.
const (
	EnvIdentity = "INDEED_EMAIL"
	EnvSecret   = "INDEED_PASSWORD"
	EnvPort     = "PORT"
	EnvHeadless = "HEADLESS"
	EnvDataDir  = "RESUME_DATA_DIR"
	EnvProfile  = "RESUME_SITE_PROFILE"
)

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Without arguments it reads
// ./.env.
func LoadEnv(files ...string) error {
	return godotenv.Load(files...)
}

// ProfilePath returns the profile named by RESUME_SITE_PROFILE, or fallback.
func ProfilePath(fallback string) string {
	if p := os.Getenv(EnvProfile); p != "" {
		return p
	}
	return fallback
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHeadless, err)
		}
		c.Browser.Headless = headless
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Paths.DataDir = v
	}
	return nil
}
