package dataset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samogod/patentvae/pkg/config"

	"github.com/sourcegraph/conc/pool"
)

var DebugLog func(string, ...interface{})

// FileReport is the preflight result for one dataset file.
type FileReport struct {
	Role       string
	Path       string
	Resolved   string
	Lines      int
	EmptyLines int
	Bytes      int64
	Err        error
}

func (r FileReport) OK() bool {
	return r.Err == nil
}

type Report struct {
	Files []FileReport
}

// Err joins the per-file errors, or returns nil when every file passed.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, fmt.Errorf("%s data %s: %w", f.Role, f.Path, f.Err))
		}
	}
	return errors.Join(errs...)
}

func (r *Report) TotalLines() int {
	total := 0
	for _, f := range r.Files {
		total += f.Lines
	}
	return total
}

// Resolve returns path made absolute against base. Absolute paths and
// "~/" prefixed paths are not joined with base.
func Resolve(base, path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}
	return filepath.Clean(path)
}

// Check verifies that every file exists, is a regular file and is readable,
// counting its lines. Files are checked concurrently; the returned error is
// only set for context cancellation, per-file problems live in the report.
func Check(ctx context.Context, base string, files []config.DataFile) (*Report, error) {
	report := &Report{Files: make([]FileReport, len(files))}

	p := pool.New().WithMaxGoroutines(len(files) + 1)
	for i, f := range files {
		i, f := i, f
		p.Go(func() {
			report.Files[i] = checkFile(ctx, base, f)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func checkFile(ctx context.Context, base string, f config.DataFile) FileReport {
	r := FileReport{Role: f.Role, Path: f.Path, Resolved: Resolve(base, f.Path)}

	if DebugLog != nil {
		DebugLog("checking %s data at %s", f.Role, r.Resolved)
	}

	info, err := os.Stat(r.Resolved)
	if err != nil {
		if os.IsNotExist(err) {
			r.Err = fmt.Errorf("file not found: %s", r.Resolved)
		} else {
			r.Err = fmt.Errorf("failed to stat file: %w", err)
		}
		return r
	}
	if !info.Mode().IsRegular() {
		r.Err = fmt.Errorf("not a regular file: %s", r.Resolved)
		return r
	}
	r.Bytes = info.Size()

	file, err := os.Open(r.Resolved)
	if err != nil {
		r.Err = fmt.Errorf("failed to open file: %w", err)
		return r
	}
	defer file.Close()

	lines, empty, err := countLines(ctx, file)
	if err != nil {
		r.Err = fmt.Errorf("failed to read file: %w", err)
		return r
	}
	r.Lines, r.EmptyLines = lines, empty

	if DebugLog != nil {
		DebugLog("%s data: %d lines (%d empty), %d bytes", f.Role, r.Lines, r.EmptyLines, r.Bytes)
	}
	return r
}

const checkEvery = 4096

func countLines(ctx context.Context, r io.Reader) (lines, empty int, err error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	for scanner.Scan() {
		lines++
		if strings.TrimSpace(scanner.Text()) == "" {
			empty++
		}
		if lines%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return lines, empty, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return lines, empty, err
	}
	return lines, empty, ctx.Err()
}
