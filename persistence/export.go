package persistence

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Nehilsa2/resume_automation/search"
)

// ExportLayout is the timestamp layout of export file names.
const ExportLayout = "20060102_150405"

var csvHeader = []string{"name", "email", "phone", "resume_path", "timestamp"}

// WriteCSV writes records with a header row. Timestamps are RFC 3339.
func WriteCSV(w io.Writer, records []search.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range records {
		row := []string{c.Name, c.Email, c.Phone, c.DocumentPath, c.ExtractedAt.Format(time.RFC3339)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// createExclusive creates dir/base.ext, or dir/base_2.ext, dir/base_3.ext, ...
// when the name is taken. Existing exports are never truncated.
func createExclusive(dir, base, ext string) (string, *os.File, error) {
	for n := 1; ; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		path := filepath.Join(dir, name+"."+ext)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return path, f, nil
	}
}

// ExportCSV writes records to dir/results_<at>.csv and returns the path.
func ExportCSV(dir string, records []search.Candidate, at time.Time) (string, error) {
	return export(dir, "csv", at, func(w io.Writer) error {
		return WriteCSV(w, records)
	})
}

// ExportJSON writes records to dir/results_<at>.json and returns the path.
func ExportJSON(dir string, records []search.Candidate, at time.Time) (string, error) {
	if records == nil {
		records = []search.Candidate{}
	}
	return export(dir, "json", at, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	})
}

func export(dir, ext string, at time.Time, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path, f, err := createExclusive(dir, "results_"+at.Format(ExportLayout), ext)
	if err != nil {
		return "", fmt.Errorf("failed to create export: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
