package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	retryBaseInterval = 100 * time.Millisecond
	maxRetryBackoff   = 5 * time.Second
)

type gitCLI struct {
	path string
	opts Options
}

func OpenCLI(ctx context.Context, repoPath string, opts Options) (Backend, error) {
	if err := ensureMinGitVersion(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(repoPath) == "" {
		return nil, fmt.Errorf("open repository: %w: path not specified", ErrRepositoryNotFound)
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open repository: %w: %s is not a directory", ErrRepositoryNotFound, abs)
	}
	tmp := &gitCLI{path: abs, opts: opts}
	root, err := tmp.runGitCommand(ctx, []string{"rev-parse", "--show-toplevel"}, false, "git rev-parse")
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("open repository: %w: git rev-parse returned empty root", ErrRepositoryNotFound)
	}
	return &gitCLI{path: root, opts: opts}, nil
}

func (g *gitCLI) RepoPath() string {
	if g == nil {
		return ""
	}
	return g.path
}

// runGitCommand runs git inside the repository and returns its stdout.
func (g *gitCLI) runGitCommand(ctx context.Context, args []string, allowExit1 bool, label string) (string, error) {
	if g == nil || g.path == "" {
		return "", fmt.Errorf("repository root not set")
	}
	var out string
	err := g.retry(ctx, label, func() error {
		var err error
		out, err = g.runGitOnce(ctx, args, allowExit1, label)
		return err
	})
	return out, err
}

// retry calls fn until it succeeds, fails with a non-transient error or runs
// out of attempts.
func (g *gitCLI) retry(ctx context.Context, label string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= g.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(attempt)
			slog.Debug("retrying git command",
				slog.String("command", label),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.Any("error", lastErr),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", label, ctx.Err())
			case <-time.After(backoff):
			}
		}
		err := fn()
		if err == nil || !errors.Is(err, ErrTransientIO) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// retryBackoff doubles from retryBaseInterval and saturates at
// maxRetryBackoff.
func retryBackoff(attempt int) time.Duration {
	backoff := retryBaseInterval
	for i := 1; i < attempt && backoff < maxRetryBackoff; i++ {
		backoff *= 2
	}
	return min(backoff, maxRetryBackoff)
}

func (g *gitCLI) runGitOnce(ctx context.Context, args []string, allowExit1 bool, label string) (string, error) {
	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	cmd := exec.CommandContext(callCtx, "git", g.commandArgs(args)...)
	cmd.Env = gitEnv()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	start := time.Now()
	err := cmd.Run()
	slog.Debug("git command completed",
		slog.String("command", label),
		slog.Any("args", args),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		var exitErr *exec.ExitError
		if allowExit1 && errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stderr.Len() == 0 {
			// git signals "nothing found" through exit code 1 for merge-base and rev-parse --verify
			return stdout.String(), nil
		}
		return "", classifyGitError(ctx, callCtx, label, err, stderr.String())
	}
	return stdout.String(), nil
}

func (g *gitCLI) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.Timeout > 0 {
		return context.WithTimeout(ctx, g.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (g *gitCLI) commandArgs(args []string) []string {
	return append([]string{"-C", g.path, "-c", "core.quotePath=false", "--no-pager", "--literal-pathspecs"}, args...)
}

// gitEnv pins the locale so error messages can be classified, and keeps git
// from prompting.
func gitEnv() []string {
	return append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")
}

func classifyGitError(parent, call context.Context, label string, err error, stderr string) error {
	if parentErr := parent.Err(); parentErr != nil {
		return fmt.Errorf("%s: %w", label, parentErr)
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: timed out", label, ErrTransientIO)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("%s: %w: %v", label, ErrTransientIO, err)
	}
	msg := strings.TrimSpace(stderr)
	kind := ErrTransientIO
	switch {
	case isRepositoryMissing(msg):
		kind = ErrRepositoryNotFound
	case isBadRevision(msg):
		kind = ErrMalformedReference
	}
	if msg == "" {
		return fmt.Errorf("%s: %w: %v", label, kind, err)
	}
	return fmt.Errorf("%s: %w: %s", label, kind, msg)
}

func isRepositoryMissing(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "not a git repository") ||
		strings.Contains(s, "cannot change to")
}

func isBadRevision(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{
		"unknown revision",
		"bad revision",
		"bad object",
		"not a valid object name",
		"not a valid commit name",
		"invalid object name",
		"ambiguous argument",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
