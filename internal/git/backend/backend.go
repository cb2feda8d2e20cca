package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
)

// Backend abstracts read-only access to repository data.
//
// The default implementation shells out to the git executable; the native one
// reads the object database with go-git. Callers only see these query shapes.
type Backend interface {
	RepoPath() string

	// ListRefs returns local branches and tags with their creation dates.
	ListRefs(ctx context.Context) ([]Ref, error)
	// ResolveCommit returns the commit hash rev points at, or
	// ErrMalformedReference.
	ResolveCommit(ctx context.Context, rev string) (string, error)
	// MergeBase returns the best common ancestor of a and b, or
	// ErrNoCommonAncestor.
	MergeBase(ctx context.Context, a, b string) (string, error)
	// LogRange lists commits reachable from target but not from base, newest
	// first. An empty base lists all of target's history.
	LogRange(ctx context.Context, base, target string) ([]Commit, error)

	// NumStat returns per-file line counts of commit against its first parent,
	// restricted to paths when given.
	NumStat(ctx context.Context, commitHash string, paths ...string) (diffstat.NumStat, error)
	// CommitChanges returns commit metadata and its name-status list.
	CommitChanges(ctx context.Context, commitHash string) (Commit, []diffstat.FileChange, error)
	// FileDiffText returns the unified patch of one path in commit. An
	// unchanged path yields an empty string.
	FileDiffText(ctx context.Context, commitHash, path string) (string, error)
	// CommitPatch returns commit metadata, its numstat and the full patch.
	CommitPatch(ctx context.Context, commitHash string) (Commit, diffstat.NumStat, string, error)
}

// Options tune the git CLI backend.
type Options struct {
	// Timeout bounds every git invocation. Zero disables it.
	Timeout time.Duration
	// Retries is how many extra attempts a transient failure gets.
	Retries int
}

type Kind string

const (
	KindCLI    Kind = "cli"
	KindNative Kind = "native"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindCLI:
		return KindCLI, nil
	case KindNative:
		return k, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want %q or %q)", s, KindCLI, KindNative)
	}
}

// Open returns the backend of the given kind for the repository containing
// repoPath.
func Open(ctx context.Context, kind Kind, repoPath string, opts Options) (Backend, error) {
	if kind == KindNative {
		return OpenNative(ctx, repoPath)
	}
	return OpenCLI(ctx, repoPath, opts)
}
