// Package assets downloads model files listed in a manifest. Files already on
// disk are left alone, so Ensure can run on every start.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"gopkg.in/yaml.v3"
)

const driveURL = "https://drive.google.com/uc?export=download&id="

// File is one manifest entry. URL wins over DriveID when both are set.
type File struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url,omitempty"`
	DriveID string `yaml:"drive_id,omitempty"`
}

// Source returns the download URL.
func (f File) Source() string {
	if f.URL != "" {
		return f.URL
	}
	if f.DriveID != "" {
		return driveURL + f.DriveID
	}
	return ""
}

// Manifest lists the files that make up one model directory.
type Manifest struct {
	Dir   string `yaml:"dir"`
	Files []File `yaml:"files"`
}

// Validate checks that every entry has a plain file name and a source.
func (m *Manifest) Validate() error {
	if m.Dir == "" {
		return errors.New("manifest dir is required")
	}
	seen := make(map[string]bool, len(m.Files))
	for i, f := range m.Files {
		if f.Name == "" || f.Name != filepath.Base(f.Name) || f.Name == "." || f.Name == ".." {
			return fmt.Errorf("files[%d]: invalid name %q", i, f.Name)
		}
		if f.Source() == "" {
			return fmt.Errorf("files[%d] %s: url or drive_id is required", i, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("files[%d]: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Parse decodes a YAML manifest.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads a YAML manifest from path. A relative dir is resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(m.Dir) {
		m.Dir = filepath.Join(filepath.Dir(path), m.Dir)
	}
	return m, nil
}

// Status is the outcome of one file.
type Status string

const (
	Skipped    Status = "skipped"
	Downloaded Status = "downloaded"
	Failed     Status = "failed"
)

// Outcome reports what happened to one manifest entry.
type Outcome struct {
	Name   string
	Path   string
	Status Status
	Bytes  int64
	Err    error
}

// Fetcher downloads manifest files.
type Fetcher struct {
	client *resty.Client
	logger *slog.Logger
}

// NewFetcher creates a fetcher. A zero timeout means ten minutes per file.
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client := resty.New()
	client.SetTimeout(timeout)
	return &Fetcher{client: client, logger: logger.With("component", "assets")}
}

// Ensure downloads every missing file of m. Each file is attempted once.
// The returned error joins the per-file failures; the outcomes are complete
// either way.
func (f *Fetcher) Ensure(ctx context.Context, m *Manifest) ([]Outcome, error) {
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", m.Dir, err)
	}

	outcomes := make([]Outcome, 0, len(m.Files))
	var errs []error
	for _, file := range m.Files {
		o := f.ensureOne(ctx, m.Dir, file)
		outcomes = append(outcomes, o)
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name, o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

func (f *Fetcher) ensureOne(ctx context.Context, dir string, file File) Outcome {
	path := filepath.Join(dir, file.Name)
	o := Outcome{Name: file.Name, Path: path}

	if info, err := os.Stat(path); err == nil {
		o.Status, o.Bytes = Skipped, info.Size()
		f.logger.Debug("asset present", "file", file.Name)
		return o
	}

	tmp := filepath.Join(dir, "."+file.Name+".part")
	defer os.Remove(tmp)

	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(file.Source())
	if err == nil && resp.IsError() {
		err = fmt.Errorf("download returned %s", resp.Status())
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		o.Status, o.Err = Failed, err
		f.logger.Warn("asset download failed", "file", file.Name, "error", err)
		return o
	}

	if info, statErr := os.Stat(path); statErr == nil {
		o.Bytes = info.Size()
	}
	o.Status = Downloaded
	f.logger.Info("asset downloaded", "file", file.Name, "bytes", o.Bytes, "duration", time.Since(start))
	return o
}
