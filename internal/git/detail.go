package git

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
)

// CommitDetail returns a commit's metadata and its changed files with
// per-file line counts.
func (s *Service) CommitDetail(ctx context.Context, hash string) (CommitDetail, error) {
	full, err := s.resolveCommit(ctx, hash)
	if err != nil {
		return CommitDetail{}, err
	}
	commit, files, err := s.backend.CommitChanges(ctx, full)
	if err != nil {
		return CommitDetail{}, fmt.Errorf("commit %s: %w", hash, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)
	for i := range files {
		g.Go(func() error {
			paths := []string{files[i].Path}
			if files[i].OldPath != "" {
				paths = append(paths, files[i].OldPath)
			}
			ns, err := s.backend.NumStat(gctx, full, paths...)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Debug("file stats unavailable",
					slog.String("commit", full),
					slog.String("path", files[i].Path),
					slog.Any("error", err),
				)
				return nil
			}
			files[i].Additions = ns.Total.Additions
			files[i].Deletions = ns.Total.Deletions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CommitDetail{}, fmt.Errorf("commit %s: %w", hash, err)
	}
	if files == nil {
		files = []diffstat.FileChange{}
	}
	return CommitDetail{
		Hash:        commit.Hash,
		Author:      commit.Author.Name,
		AuthorEmail: commit.Author.Email,
		Date:        commit.Author.When,
		Message:     commit.Subject + "\n" + strings.TrimRight(commit.Body, "\n"),
		Files:       files,
	}, nil
}

// FileDiff returns the unified patch of one file in one commit.
func (s *Service) FileDiff(ctx context.Context, hash, path string) (FileDiff, error) {
	if path == "" {
		return FileDiff{}, fmt.Errorf("file path not specified: %w", ErrMalformedReference)
	}
	full, err := s.resolveCommit(ctx, hash)
	if err != nil {
		return FileDiff{}, err
	}
	text, err := s.backend.FileDiffText(ctx, full, path)
	if err != nil {
		return FileDiff{}, fmt.Errorf("diff of %s in %s: %w", path, hash, err)
	}
	if strings.TrimSpace(text) == "" {
		return FileDiff{}, fmt.Errorf("no diff found for the specified file: %w", ErrNotFound)
	}
	return FileDiff{Diff: text, FilePath: path, CommitHash: hash}, nil
}

// CommitPatch returns the full first-parent patch of a commit together with
// its numstat and the line where each file starts in the patch.
func (s *Service) CommitPatch(ctx context.Context, hash string) (CommitPatch, error) {
	full, err := s.resolveCommit(ctx, hash)
	if err != nil {
		return CommitPatch{}, err
	}
	commit, ns, patch, err := s.backend.CommitPatch(ctx, full)
	if err != nil {
		return CommitPatch{}, fmt.Errorf("commit %s: %w", hash, err)
	}
	files := make([]PatchFile, 0, len(ns.Files))
	for _, f := range ns.Files {
		files = append(files, PatchFile{Path: f.Path, Additions: f.Additions, Deletions: f.Deletions})
	}
	sections := parseGitDiffSections(patch)
	if sections == nil {
		sections = []FileSection{}
	}
	return CommitPatch{
		Hash:     commit.Hash,
		Author:   commit.Author.Name,
		Date:     commit.Author.When,
		Message:  commit.Subject,
		Files:    files,
		Diff:     patch,
		Sections: sections,
	}, nil
}
