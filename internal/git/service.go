package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	gitbackend "github.com/thiagokokada/gitk-compare/internal/git/backend"
)

const (
	DefaultMaxConcurrency = 8
	DefaultRecencyWindow  = 30 * 24 * time.Hour
)

type Options struct {
	Backend gitbackend.Kind
	// Query is handed to the CLI backend: per-call timeout and retries.
	Query gitbackend.Options
	// MaxConcurrency bounds the stat lookups in flight per request.
	MaxConcurrency int
	// RecencyWindow is how far back References looks.
	RecencyWindow time.Duration
	Cache         *StatsCache
	// Now is used by References; defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = DefaultRecencyWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service answers comparison queries for one repository. It is cheap to
// create and meant to live for a single request.
type Service struct {
	backend gitbackend.Backend
	opts    Options
}

func Open(ctx context.Context, repoPath string, opts Options) (*Service, error) {
	b, err := gitbackend.Open(ctx, opts.Backend, repoPath, opts.Query)
	if err != nil {
		return nil, err
	}
	return New(b, opts), nil
}

// New wraps an already opened backend.
func New(b gitbackend.Backend, opts Options) *Service {
	return &Service{backend: b, opts: opts.withDefaults()}
}

func (s *Service) RepoPath() string {
	return s.backend.RepoPath()
}

// resolveCommit validates a user supplied commit id and returns the full hash.
func (s *Service) resolveCommit(ctx context.Context, hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return "", fmt.Errorf("commit hash not specified: %w", ErrMalformedReference)
	}
	return s.backend.ResolveCommit(ctx, hash)
}
