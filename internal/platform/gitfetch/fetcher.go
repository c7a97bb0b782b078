package gitfetch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/redact"
	"github.com/phrazzld/codescope-api/internal/task"
)

// Default limits
const (
	DefaultMaxDigestBytes = 120000
	DefaultMaxFileBytes   = 200000
)

// Config controls cloning and digest construction.
type Config struct {
	// GitHubToken authenticates HTTPS clones from github.com
	GitHubToken string

	// WorkDir is where scratch clones are created; empty uses the system temp dir
	WorkDir string

	MaxDigestBytes int
	MaxFileBytes   int

	// ExcludePatterns are doublestar globs added to DefaultExcludePatterns
	ExcludePatterns []string

	// GitBinary is the git executable; empty uses "git" from PATH
	GitBinary string
}

// ConfigFrom converts the application fetch settings.
func ConfigFrom(cfg config.FetchConfig) Config {
	return Config{
		GitHubToken:     cfg.GitHubToken,
		WorkDir:         cfg.WorkDir,
		MaxDigestBytes:  cfg.MaxDigestBytes,
		MaxFileBytes:    cfg.MaxFileBytes,
		ExcludePatterns: cfg.ExcludePatterns,
	}
}

// cloneFunc clones locator into dir.
type cloneFunc func(ctx context.Context, locator, dir string) error

// Fetcher implements task.Fetcher.
type Fetcher struct {
	config  Config
	exclude []string
	logger  *slog.Logger
	clone   cloneFunc
}

// Ensure Fetcher implements task.Fetcher
var _ task.Fetcher = (*Fetcher)(nil)

// New creates a Fetcher. Invalid exclude patterns are rejected.
func New(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg.MaxDigestBytes <= 0 {
		cfg.MaxDigestBytes = DefaultMaxDigestBytes
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = "git"
	}

	exclude, err := compilePatterns(cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	f := &Fetcher{
		config:  cfg,
		exclude: exclude,
		logger:  logger.With("component", "git_fetcher"),
	}
	f.clone = f.gitClone
	return f, nil
}

// Fetch implements task.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, locators []string) (*task.Fetched, error) {
	if len(locators) == 0 {
		return nil, task.NewFetchError("no repository locators", true, nil)
	}

	fetched := &task.Fetched{URL: locators[0]}
	names := make([]string, 0, len(locators))
	budget := f.config.MaxDigestBytes

	var digest strings.Builder
	for _, locator := range locators {
		name := task.RepositoryName(locator)
		names = append(names, name)

		d, err := f.fetchOne(ctx, locator, budget)
		if err != nil {
			return nil, err
		}

		if len(locators) > 1 {
			digest.WriteString("Repository: " + name + "\n\n")
		}
		digest.WriteString(d.text)
		budget -= len(d.text)
		fetched.FileCount += d.files
		fetched.Truncated = fetched.Truncated || d.truncated

		if budget <= 0 {
			fetched.Truncated = true
			break
		}
	}

	fetched.Name = strings.Join(names, ", ")
	fetched.Digest = digest.String()
	return fetched, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, locator string, budget int) (*digestResult, error) {
	logger := f.logger.With("repository", task.RepositoryName(locator))

	dir, err := os.MkdirTemp(f.config.WorkDir, "codescope-clone-")
	if err != nil {
		return nil, task.NewFetchError("creating scratch directory", false, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to remove scratch clone", "error", err)
		}
	}()

	start := time.Now()
	if err := f.clone(ctx, locator, dir); err != nil {
		return nil, err
	}
	logger.Debug("repository cloned", "duration_ms", time.Since(start).Milliseconds())

	d, err := buildDigest(ctx, dir, f.exclude, f.config.MaxFileBytes, budget)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, task.NewFetchError("reading repository", false, err)
	}

	logger.Info("repository digested",
		"files", d.files,
		"digest_bytes", len(d.text),
		"truncated", d.truncated)
	return d, nil
}

// gitClone runs a shallow clone of locator into dir.
func (f *Fetcher) gitClone(ctx context.Context, locator, dir string) error {
	cloneURL := f.authenticatedURL(locator)

	cmd := exec.CommandContext(ctx, f.config.GitBinary,
		"clone", "--depth", "1", "--single-branch", "--no-tags", "--quiet", "--", cloneURL, dir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return classifyCloneError(ctx, stderr.String(), err)
	}
	return nil
}

// authenticatedURL injects the GitHub token into HTTPS github.com locators.
func (f *Fetcher) authenticatedURL(locator string) string {
	if f.config.GitHubToken == "" {
		return locator
	}
	u, err := url.Parse(locator)
	if err != nil || u.Scheme != "https" || !strings.EqualFold(u.Hostname(), "github.com") {
		return locator
	}
	u.User = url.UserPassword("x-access-token", f.config.GitHubToken)
	return u.String()
}

// permanentCloneFailures are git stderr fragments retrying cannot fix
var permanentCloneFailures = []struct {
	fragment string
	reason   string
}{
	{"repository not found", "repository not found"},
	{"not found", "repository not found"},
	{"does not appear to be a git repository", "repository not found"},
	{"authentication failed", "authentication failed"},
	{"could not read username", "authentication required"},
	{"terminal prompts disabled", "authentication required"},
	{"permission denied", "access denied"},
}

// classifyCloneError converts a failed clone into a StageError. Stderr is
// redacted because it may echo the clone URL.
func classifyCloneError(ctx context.Context, stderr string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return task.NewFetchError("timed out", false, ctxErr)
		}
		return ctxErr
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return task.NewFetchError("git is not available", false, err)
	}

	detail := strings.TrimSpace(redact.String(stderr))
	if detail == "" {
		detail = err.Error()
	}
	cause := errors.New(firstLine(detail))

	lower := strings.ToLower(stderr)
	for _, p := range permanentCloneFailures {
		if strings.Contains(lower, p.fragment) {
			return task.NewFetchError(p.reason, true, cause)
		}
	}
	return task.NewFetchError("clone failed", false, cause)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
