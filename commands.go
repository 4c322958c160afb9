package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nehilsa2/resume_automation/config"
	"github.com/Nehilsa2/resume_automation/httpapi"
	"github.com/Nehilsa2/resume_automation/persistence"
	"github.com/Nehilsa2/resume_automation/search"
	"github.com/Nehilsa2/resume_automation/workflow"
)

var scrapeOpts struct {
	keywords   string
	location   string
	experience int
	education  string
	json       bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape --keywords <terms> --location <place>",
	Short: "Runs one search and exports the candidates to CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		store, err := openStore(cmd, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()

		runner, err := workflow.New(cmd.Context(), cfg, store, log)
		if err != nil {
			return err
		}
		res, err := runner.Run(cmd.Context(), search.Filters{
			Keywords:        scrapeOpts.keywords,
			Location:        scrapeOpts.location,
			ExperienceYears: scrapeOpts.experience,
			EducationLevel:  search.Education(scrapeOpts.education),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, c := range res.Candidates {
			fmt.Fprintf(out, "%3d. %-30s %-30s %-15s %s\n", i+1, c.Name, c.Email, c.Phone, c.DocumentPath)
		}
		fmt.Fprintf(out, "\n✅ Found %d results\n📄 CSV: %s\n", len(res.Candidates), res.CSVPath)
		if res.Partial != nil {
			fmt.Fprintf(out, "⚠️ Stopped early: %v\n", res.Partial)
		}

		if scrapeOpts.json {
			path, err := persistence.ExportJSON(cfg.Paths.OutputDir, res.Candidates, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "📄 JSON: %s\n", path)
		}
		return nil
	},
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve [--port <port>]",
	Short: "Serves POST /scrape and GET /health.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		store, err := openStore(cmd, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()

		runner, err := workflow.New(cmd.Context(), cfg, store, log)
		if err != nil {
			return err
		}
		h := httpapi.NewHandler(httpapi.Deps{
			Runner:      runner,
			MaxSessions: int64(cfg.Server.MaxSessions),
			Log:         log,
		})
		addr := ":" + strconv.Itoa(cfg.Server.Port)
		return httpapi.Serve(cmd.Context(), addr, h, 2*time.Minute, log)
	},
}

var statsDays bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows today's counters and the latest runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		store, err := openStore(cmd, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		days := []persistence.DailyStats{}
		if statsDays {
			if days, err = store.WeeklyStats(cmd.Context()); err != nil {
				return err
			}
		} else {
			today, err := store.DailyStats(cmd.Context(), "")
			if err != nil {
				return err
			}
			days = append(days, *today)
		}
		for _, d := range days {
			fmt.Fprintf(out, "📊 %s: %d searches, %d candidates, %d documents\n", d.Date, d.Searches, d.Candidates, d.Documents)
		}

		runs, err := store.RecentRuns(cmd.Context(), 10)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %-9s  %-25q %-20q %3d results  %s\n",
				r.StartedAt.Local().Format(time.DateTime), r.Status, r.Filters.Keywords, r.Filters.Location, r.Emitted, r.ErrorMessage)
		}
		return nil
	},
}

var secretAccount string

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manages the site password in the OS keyring.",
}

var secretSetCmd = &cobra.Command{
	Use:   "set [--account <email>]",
	Short: "Reads the password from stdin and stores it in the OS keyring.",
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := keyringAccount()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", account)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		if err := config.SetSecret(account, strings.TrimRight(line, "\r\n")); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "\n🔐 Stored")
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete [--account <email>]",
	Short: "Removes the stored password.",
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := keyringAccount()
		if err != nil {
			return err
		}
		return config.DeleteSecret(account)
	},
}

// keyringAccount is --account, else the configured identity.
func keyringAccount() (string, error) {
	if secretAccount != "" {
		return secretAccount, nil
	}
	cfg, _, err := setup()
	if err != nil {
		return "", err
	}
	if id := cfg.Credentials().Identity; id != "" {
		return id, nil
	}
	return "", errors.New("no account: pass --account or set " + config.EnvIdentity)
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeOpts.keywords, "keywords", "", "search terms (required)")
	f.StringVar(&scrapeOpts.location, "location", "", "city, region or \"Remote\" (required)")
	f.IntVar(&scrapeOpts.experience, "experience", 0, "minimum years of experience")
	f.StringVar(&scrapeOpts.education, "education", "", "high_school, associate, bachelor, master or doctorate")
	f.BoolVar(&scrapeOpts.json, "json", false, "also export the results as JSON")
	_ = scrapeCmd.MarkFlagRequired("keywords")
	_ = scrapeCmd.MarkFlagRequired("location")

	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default $"+config.EnvPort+" or 5000)")
	statsCmd.Flags().BoolVar(&statsDays, "week", false, "show the last seven days")

	secretCmd.PersistentFlags().StringVar(&secretAccount, "account", "", "keyring account (default $"+config.EnvIdentity+")")
	secretCmd.AddCommand(secretSetCmd, secretDeleteCmd)

	rootCmd.AddCommand(scrapeCmd, serveCmd, statsCmd, secretCmd)
}
