// Package download retrieves a candidate's resume through the browser and
// files it under a stable name.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/Nehilsa2/resume_automation/browser"
	"github.com/Nehilsa2/resume_automation/humanize"
)

// TimeLayout is the timestamp part of a document file name.
const TimeLayout = "20060102_150405"

// Config locates the download control and the directories documents move
// through.
type Config struct {
	Selector string `yaml:"selector"`
	// StagingDir holds one fresh subdirectory per download.
	StagingDir string `yaml:"staging_dir"`
	// DocumentDir receives the renamed documents.
	DocumentDir string `yaml:"document_dir"`
	// Settle is how long to wait after clicking before looking for the file.
	Settle         time.Duration `yaml:"settle"`
	ElementTimeout time.Duration `yaml:"element_timeout"`
}

// DefaultConfig returns the Indeed download control and a two second settle.
func DefaultConfig() Config {
	return Config{
		Selector:       `[data-tn-element="download-resume"]`,
		StagingDir:     filepath.Join("data", "staging"),
		DocumentDir:    filepath.Join("data", "resumes"),
		Settle:         2 * time.Second,
		ElementTimeout: 10 * time.Second,
	}
}

// Downloader saves the document behind the current detail view.
//
// Every call stages into its own directory, so several sessions may share
// StagingDir and DocumentDir.
type Downloader struct {
	cfg   Config
	pacer *humanize.Pacer
	log   logrus.FieldLogger
}

// New returns a Downloader. A nil pacer disables the pause before clicking.
func New(cfg Config, pacer *humanize.Pacer, log logrus.FieldLogger) *Downloader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Downloader{cfg: cfg, pacer: pacer, log: log.WithField("component", "download")}
}

// Download clicks the download control on c and moves the resulting file to
// DocumentDir as FileName(displayName, at). It returns the final path.
func (d *Downloader) Download(ctx context.Context, c browser.Client, displayName string, at time.Time) (string, error) {
	staging := filepath.Join(d.cfg.StagingDir, uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", &Error{Kind: KindTriggerFailed, Name: displayName, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			d.log.WithError(err).WithField("dir", staging).Warn("⚠️ failed to remove staging dir")
		}
	}()

	if err := c.DownloadTo(ctx, staging); err != nil {
		return "", &Error{Kind: KindTriggerFailed, Name: displayName, Err: err}
	}
	if err := d.trigger(ctx, c); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Kind: KindTriggerFailed, Name: displayName, Err: err}
	}

	if err := settle(ctx, d.cfg.Settle); err != nil {
		return "", err
	}

	src, err := Newest(staging)
	if err != nil {
		return "", &Error{Kind: KindDirectoryEmpty, Name: displayName, Err: err}
	}

	dst, err := d.place(ctx, src, displayName, at)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Kind: KindRenameFailed, Name: displayName, Err: err}
	}

	d.log.WithField("path", dst).Info("📄 Resume saved")
	return dst, nil
}

func (d *Downloader) trigger(ctx context.Context, c browser.Client) error {
	if err := c.WaitFor(ctx, browser.Present(d.cfg.Selector), d.cfg.ElementTimeout); err != nil {
		return err
	}
	el, err := c.Element(ctx, d.cfg.Selector)
	if err != nil {
		return err
	}
	if err := d.pacer.Pause(ctx); err != nil {
		return err
	}
	return c.Click(ctx, el)
}

// place moves src into DocumentDir while holding the directory lock. A name
// already taken gets a -2, -3, ... suffix before the timestamp.
func (d *Downloader) place(ctx context.Context, src, displayName string, at time.Time) (string, error) {
	if err := os.MkdirAll(d.cfg.DocumentDir, 0o755); err != nil {
		return "", err
	}
	lock := flock.New(filepath.Join(d.cfg.DocumentDir, ".lock"))
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("lock document dir: %w", err)
	}
	if !locked {
		return "", errors.New("lock document dir: not acquired")
	}
	defer lock.Unlock()

	for n := 1; ; n++ {
		dst := filepath.Join(d.cfg.DocumentDir, numberedName(displayName, at, n))
		_, err := os.Lstat(dst)
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if err := os.Rename(src, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
}

// partialSuffixes mark files a browser is still writing.
var partialSuffixes = []string{".crdownload", ".part", ".tmp"}

// Newest returns the most recently modified complete file in dir.
func Newest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var (
		best     string
		bestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || partial(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best, bestTime = e.Name(), info.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no complete file in %s", dir)
	}
	return filepath.Join(dir, best), nil
}

func partial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// FileName builds "<name with spaces as underscores>_<YYYYMMDD_HHMMSS>.pdf".
// Characters that are unsafe in file names are dropped.
func FileName(displayName string, at time.Time) string {
	return numberedName(displayName, at, 1)
}

func numberedName(displayName string, at time.Time, n int) string {
	name := strings.Join(strings.Fields(sanitize(displayName)), "_")
	if name == "" {
		name = "candidate"
	}
	if n > 1 {
		name += "-" + strconv.Itoa(n)
	}
	return name + "_" + at.Format(TimeLayout) + ".pdf"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return -1
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, norm.NFC.String(s))
}

func settle(ctx context.Context, d time.Duration) error {
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
