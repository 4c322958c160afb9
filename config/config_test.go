package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/Nehilsa2/resume_automation/humanize"
	"github.com/Nehilsa2/resume_automation/search"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvIdentity, EnvSecret, EnvPort, EnvHeadless, EnvDataDir, EnvProfile} {
		t.Setenv(k, "")
	}
}

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Server.MaxSessions)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Search.MaxPages)
	assert.Equal(t, filepath.Join("data", "resume_automation.db"), cfg.Paths.Database)
	assert.Equal(t, filepath.Join("data", "output"), cfg.Paths.OutputDir)
	assert.Equal(t, filepath.Join("data", "staging"), cfg.Download.StagingDir)
	assert.Equal(t, filepath.Join("data", "resumes"), cfg.Download.DocumentDir)
	assert.Equal(t, filepath.Join("data", "snapshots"), cfg.Auth.SnapshotDir)
	assert.Equal(t, 2*time.Second, cfg.Download.Settle)
	assert.Contains(t, cfg.Limits, "download")
}

func TestLoadProfileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeProfile(t, `
paths:
  data_dir: /var/lib/resumes
  output_dir: /tmp/exports
server:
  max_sessions: 4
search:
  max_pages: 3
  card_selector: ".card"
  education_labels:
    master: "Masters degree"
download:
  settle: 500ms
auth:
  fallback_login_url: ""
limits:
  search:
    interval: 1m
    daily: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Server.MaxSessions)
	assert.Equal(t, 3, cfg.Search.MaxPages)
	assert.Equal(t, ".card", cfg.Search.CardSelector)
	assert.Equal(t, search.DefaultConfig().NameSelector, cfg.Search.NameSelector, "unset fields keep their default")
	assert.Equal(t, "Masters degree", cfg.Search.EducationLabels[search.Master])
	assert.Equal(t, "Bachelor's", cfg.Search.EducationLabels[search.Bachelor])
	assert.Equal(t, 500*time.Millisecond, cfg.Download.Settle)
	assert.Empty(t, cfg.Auth.FallbackLoginURL)
	assert.Equal(t, 5, cfg.Limits["search"].Daily)
	assert.Equal(t, time.Minute, cfg.Limits["search"].Interval)
	assert.Contains(t, cfg.Limits, "profile_view")

	assert.Equal(t, "/tmp/exports", cfg.Paths.OutputDir, "absolute paths are kept")
	assert.Equal(t, filepath.Join("/var/lib/resumes", "resume_automation.db"), cfg.Paths.Database)
	assert.Equal(t, filepath.Join("/var/lib/resumes", "resumes"), cfg.Download.DocumentDir)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "8080")
	t.Setenv(EnvHeadless, "true")
	t.Setenv(EnvDataDir, "/srv/data")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, filepath.Join("/srv/data", "staging"), cfg.Download.StagingDir)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeProfile(t, "server: [unclosed"))
	require.Error(t, err)

	_, err = Load(writeProfile(t, "server:\n  max_sessions: 0\n"))
	require.ErrorContains(t, err, "max_sessions")

	_, err = Load(writeProfile(t, "log:\n  format: xml\n"))
	require.ErrorContains(t, err, "log.format")

	t.Setenv(EnvPort, "http")
	_, err = Load("")
	require.ErrorContains(t, err, EnvPort)

	t.Setenv(EnvPort, "")
	t.Setenv(EnvHeadless, "maybe")
	_, err = Load("")
	require.ErrorContains(t, err, EnvHeadless)
}

func TestProfilePath(t *testing.T) {
	t.Setenv(EnvProfile, "")
	assert.Equal(t, "site.yaml", ProfilePath("site.yaml"))
	t.Setenv(EnvProfile, "other.yaml")
	assert.Equal(t, "other.yaml", ProfilePath("site.yaml"))
}

func TestLoadEnvFile(t *testing.T) {
	const key = "RESUME_AUTOMATION_TEST_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o644))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-file", os.Getenv(key))

	require.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestCredentialsFromEnvironment(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)
	t.Setenv(EnvIdentity, " ada@example.com ")
	t.Setenv(EnvSecret, "hunter2")

	creds := Default().Credentials()
	assert.Equal(t, "ada@example.com", creds.Identity)
	assert.Equal(t, "hunter2", creds.Secret)
}

func TestCredentialsFallBackToKeyring(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)
	require.NoError(t, SetSecret("ada@example.com", "from-keyring"))

	cfg := Default()
	cfg.Identity = "ada@example.com"
	creds := cfg.Credentials()
	assert.Equal(t, "ada@example.com", creds.Identity)
	assert.Equal(t, "from-keyring", creds.Secret)

	t.Setenv(EnvSecret, "from-env")
	assert.Equal(t, "from-env", cfg.Credentials().Secret, "the environment wins")

	t.Setenv(EnvSecret, "")
	require.NoError(t, DeleteSecret("ada@example.com"))
	assert.Empty(t, cfg.Credentials().Secret)
	require.NoError(t, DeleteSecret("ada@example.com"), "deleting twice is fine")
}

func TestCredentialsMissing(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)
	creds := Default().Credentials()
	assert.Empty(t, creds.Identity)
	assert.Empty(t, creds.Secret)
}

func TestSetSecretValidates(t *testing.T) {
	keyring.MockInit()
	require.Error(t, SetSecret(" ", "x"))
	require.Error(t, SetSecret("account", ""))
	require.Error(t, DeleteSecret(""))
}

func TestPacerSeeds(t *testing.T) {
	cfg := Default()
	cfg.Pacing.Seed = 9
	a, b := cfg.Pacer(1), cfg.Pacer(1)
	for range 10 {
		assert.Equal(t, a.KeystrokeDelay(), b.KeystrokeDelay())
	}
	d := cfg.Pacer(2).KeystrokeDelay()
	assert.GreaterOrEqual(t, d, cfg.Pacing.Keystroke.Min)
	assert.LessOrEqual(t, d, cfg.Pacing.Keystroke.Max)
}

func TestPacerWithoutSeedUsesProcessBase(t *testing.T) {
	cfg := Default()
	cfg.Pacing.Seed, cfg.Browser.Seed = 0, 0

	a, b := cfg.Pacer(1), cfg.Pacer(1)
	fixed := humanize.NewPacer(cfg.Pacing.Keystroke, cfg.Pacing.Action, 1)
	var same, fromOne []time.Duration
	for range 20 {
		d := a.KeystrokeDelay()
		same = append(same, d)
		assert.Equal(t, d, b.KeystrokeDelay(), "one process draws one base")
		fromOne = append(fromOne, fixed.KeystrokeDelay())
	}
	assert.NotEqual(t, fromOne, same, "unseeded sessions must not start from seed 1")
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log = Log{Level: "debug", Format: "json"}
	log, err := cfg.Logger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	cfg.Log.Level = "loud"
	_, err = cfg.Logger()
	require.Error(t, err)
}
