package prebuilt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultHTTPTimeout caps a whole download, including redirects.
	DefaultHTTPTimeout = 30 * time.Minute

	// DefaultStallTimeout is how long a download may go without receiving
	// any bytes.
	DefaultStallTimeout = time.Minute
)

// Action is what the pipeline did for one entry.
type Action string

const (
	ActionSkipped   Action = "skipped"
	ActionInstalled Action = "installed"
)

// Source is where an installed artifact came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Result reports the outcome for one entry.
type Result struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Target   string `json:"target"`
	Action   Action `json:"action"`
	Source   Source `json:"source,omitempty"`
	Verified bool   `json:"verified"`
}

// Options configures a pipeline run.
type Options struct {
	// Root is the directory destination_base_dir is resolved against.
	Root string

	SkipChecksum    bool
	ReplaceExisting bool

	// TempDir holds downloads while they are verified. Defaults to os.TempDir().
	TempDir string

	// LookupEnv resolves per-entry local override variables. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// HTTPClient defaults to a client with DefaultHTTPTimeout.
	HTTPClient *http.Client

	// StallTimeout defaults to DefaultStallTimeout.
	StallTimeout time.Duration

	Logger *slog.Logger
}

// Pipeline installs prebuilt artifacts one entry at a time.
type Pipeline struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// NewPipeline returns a Pipeline with defaults applied to unset options.
func NewPipeline(opts Options) *Pipeline {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = DefaultStallTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Pipeline{
		opts:   opts,
		client: client,
		logger: logger.With("component", "prebuilt"),
	}
}

// Run processes entries in order and stops at the first failure. Results for
// entries processed before the failure are returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, entries []Entry) ([]Result, error) {
	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.process(ctx, e)
		if err != nil {
			return results, fmt.Errorf("process %s: %w", e.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Pipeline) process(ctx context.Context, e Entry) (Result, error) {
	base := filepath.Join(p.opts.Root, e.DestinationBaseDir)
	target := filepath.Join(base, e.Name, e.Version)
	parent := filepath.Join(base, e.Name)
	res := Result{Name: e.Name, Version: e.Version, Target: target}

	log := p.logger.With("name", e.Name, "version", e.Version)
	log.Info("processing entry", "url", e.URL())

	if nonEmptyDir(target) && !p.opts.ReplaceExisting {
		log.Info("target not empty, skipping", "target", target)
		res.Action = ActionSkipped
		return res, nil
	}

	if _, err := os.Stat(parent); err == nil {
		log.Info("removing existing directory", "dir", parent)
		if err := os.RemoveAll(parent); err != nil {
			return res, fmt.Errorf("remove %s: %w", parent, err)
		}
	}

	tmp, err := os.CreateTemp(p.opts.TempDir, "prebuilt-*-"+e.Filename)
	if err != nil {
		return res, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if local, ok := p.localOverride(e); ok {
		log.Info("using local archive", "env", e.Env, "path", local)
		if _, err := os.Stat(local); err != nil {
			return res, fmt.Errorf("%w: %s=%s", ErrLocalOverride, e.Env, local)
		}
		if err := copyFile(local, tmpPath); err != nil {
			return res, fmt.Errorf("copy local archive: %w", err)
		}
		res.Source = SourceLocal
	} else {
		if err := fetch(ctx, p.client, e.URL(), tmpPath, p.opts.StallTimeout); err != nil {
			return res, err
		}
		log.Info("download completed")
		res.Source = SourceRemote
	}

	if p.opts.SkipChecksum {
		log.Info("skipping checksum verification")
	} else {
		if err := verifyChecksum(tmpPath, e.Shasum); err != nil {
			return res, err
		}
		log.Info("checksum verified")
		res.Verified = true
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return res, fmt.Errorf("create %s: %w", target, err)
	}
	if e.NoUnpack {
		log.Info("copying artifact", "target", target)
		if err := copyFile(tmpPath, filepath.Join(target, e.Filename)); err != nil {
			return res, fmt.Errorf("copy artifact: %w", err)
		}
	} else {
		log.Info("extracting artifact", "target", target)
		if err := extract(tmpPath, e.Filename, target); err != nil {
			return res, fmt.Errorf("%w: %s: %w", ErrExtract, e.Filename, err)
		}
	}

	res.Action = ActionInstalled
	return res, nil
}

func (p *Pipeline) localOverride(e Entry) (string, bool) {
	if e.Env == "" {
		return "", false
	}
	v, ok := p.opts.LookupEnv(e.Env)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func nonEmptyDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
