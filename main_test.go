package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/Nehilsa2/resume_automation/config"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{config.EnvIdentity, config.EnvSecret, config.EnvPort, config.EnvHeadless, config.EnvProfile} {
		t.Setenv(k, "")
	}
	t.Setenv(config.EnvDataDir, t.TempDir())

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { secretAccount = "" })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSecretSetAndDelete(t *testing.T) {
	keyring.MockInit()

	out, err := execute(t, "hunter2\n", "secret", "set", "--account", "recruiter@example.com", "--env-file", "missing.env")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored")

	got, err := keyring.Get(config.KeyringService, "recruiter@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	_, err = execute(t, "", "secret", "delete", "--account", "recruiter@example.com")
	require.NoError(t, err)
	_, err = keyring.Get(config.KeyringService, "recruiter@example.com")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestSecretSetNeedsAccount(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "hunter2\n", "secret", "set", "--env-file", "missing.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no account")
}

func TestStatsOnEmptyDatabase(t *testing.T) {
	out, err := execute(t, "", "stats", "--env-file", "missing.env")
	require.NoError(t, err)
	assert.Contains(t, out, "0 searches, 0 candidates, 0 documents")
}

func TestScrapeRequiresLocation(t *testing.T) {
	_, err := execute(t, "", "scrape", "--keywords", "golang", "--env-file", "missing.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"location"`)
}
