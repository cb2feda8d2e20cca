package git

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
	gitbackend "github.com/thiagokokada/gitk-compare/internal/git/backend"
)

type fakeBackend struct {
	repoPath string

	listRefsFunc      func(ctx context.Context) ([]gitbackend.Ref, error)
	resolveCommitFunc func(ctx context.Context, rev string) (string, error)
	mergeBaseFunc     func(ctx context.Context, a, b string) (string, error)
	logRangeFunc      func(ctx context.Context, base, target string) ([]gitbackend.Commit, error)
	numStatFunc       func(ctx context.Context, commitHash string, paths ...string) (diffstat.NumStat, error)
	commitChangesFunc func(ctx context.Context, commitHash string) (gitbackend.Commit, []diffstat.FileChange, error)
	fileDiffTextFunc  func(ctx context.Context, commitHash, path string) (string, error)
	commitPatchFunc   func(ctx context.Context, commitHash string) (gitbackend.Commit, diffstat.NumStat, string, error)

	numStatCalls atomic.Int32
}

func (f *fakeBackend) RepoPath() string { return f.repoPath }

func (f *fakeBackend) ListRefs(ctx context.Context) ([]gitbackend.Ref, error) {
	if f.listRefsFunc != nil {
		return f.listRefsFunc(ctx)
	}
	return nil, errors.New("unexpected ListRefs call")
}

func (f *fakeBackend) ResolveCommit(ctx context.Context, rev string) (string, error) {
	if f.resolveCommitFunc != nil {
		return f.resolveCommitFunc(ctx, rev)
	}
	// identity keeps tests that do not care about resolution short
	return rev, nil
}

func (f *fakeBackend) MergeBase(ctx context.Context, a, b string) (string, error) {
	if f.mergeBaseFunc != nil {
		return f.mergeBaseFunc(ctx, a, b)
	}
	return "", errors.New("unexpected MergeBase call")
}

func (f *fakeBackend) LogRange(ctx context.Context, base, target string) ([]gitbackend.Commit, error) {
	if f.logRangeFunc != nil {
		return f.logRangeFunc(ctx, base, target)
	}
	return nil, errors.New("unexpected LogRange call")
}

func (f *fakeBackend) NumStat(ctx context.Context, commitHash string, paths ...string) (diffstat.NumStat, error) {
	f.numStatCalls.Add(1)
	if f.numStatFunc != nil {
		return f.numStatFunc(ctx, commitHash, paths...)
	}
	return diffstat.NumStat{}, errors.New("unexpected NumStat call")
}

func (f *fakeBackend) CommitChanges(ctx context.Context, commitHash string) (gitbackend.Commit, []diffstat.FileChange, error) {
	if f.commitChangesFunc != nil {
		return f.commitChangesFunc(ctx, commitHash)
	}
	return gitbackend.Commit{}, nil, errors.New("unexpected CommitChanges call")
}

func (f *fakeBackend) FileDiffText(ctx context.Context, commitHash, path string) (string, error) {
	if f.fileDiffTextFunc != nil {
		return f.fileDiffTextFunc(ctx, commitHash, path)
	}
	return "", errors.New("unexpected FileDiffText call")
}

func (f *fakeBackend) CommitPatch(ctx context.Context, commitHash string) (gitbackend.Commit, diffstat.NumStat, string, error) {
	if f.commitPatchFunc != nil {
		return f.commitPatchFunc(ctx, commitHash)
	}
	return gitbackend.Commit{}, diffstat.NumStat{}, "", errors.New("unexpected CommitPatch call")
}
