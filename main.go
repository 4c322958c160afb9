package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Nehilsa2/resume_automation/config"
	"github.com/Nehilsa2/resume_automation/persistence"
)

var (
	profilePath string
	envFile     string
)

var rootCmd = &cobra.Command{
	Use:           "resume_automation",
	Short:         "Searches Indeed resumes and collects candidate contacts and documents.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "YAML site profile (default $"+config.EnvProfile+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with environment variables to load")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

// setup loads the environment, the profile and the logger shared by every
// command.
func setup() (config.Config, *logrus.Logger, error) {
	envErr := config.LoadEnv(envFile)

	path := profilePath
	if path == "" {
		path = config.ProfilePath("")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return cfg, nil, err
	}
	if envErr != nil {
		log.Debugf("⚠️ Unable to load %s; using the existing environment", envFile)
	}
	return cfg, log, nil
}

// openStore opens the database and closes runs a previous process left
// running.
func openStore(cmd *cobra.Command, cfg config.Config, log logrus.FieldLogger) (*persistence.Store, error) {
	store, err := persistence.NewStore(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}
	n, err := store.FailInterrupted(cmd.Context())
	if err != nil {
		store.Close()
		return nil, err
	}
	if n > 0 {
		log.WithField("runs", n).Warn("⚠️ Marked interrupted runs as failed")
	}
	return store, nil
}
