package git

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
	gitbackend "github.com/thiagokokada/gitk-compare/internal/git/backend"
)

// CommitRange lists the commits reachable from target but not from base,
// newest first, each with its aggregate line stats.
func (s *Service) CommitRange(ctx context.Context, base, target string) ([]CommitSummary, error) {
	commits, err := s.backend.LogRange(ctx, base, target)
	if err != nil {
		return nil, err
	}
	out := make([]CommitSummary, len(commits))
	for i, c := range commits {
		out[i] = summarize(c)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)
	for i := range out {
		g.Go(func() error {
			st, err := s.commitStats(gctx, out[i].Hash)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Debug("commit stats unavailable",
					slog.String("commit", out[i].Hash),
					slog.Any("error", err),
				)
				return nil
			}
			out[i].Stats = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) commitStats(ctx context.Context, hash string) (diffstat.Stats, error) {
	repo := s.RepoPath()
	if st, ok := s.opts.Cache.Get(repo, hash); ok {
		return st, nil
	}
	ns, err := s.backend.NumStat(ctx, hash)
	if err != nil {
		return diffstat.Stats{}, err
	}
	s.opts.Cache.Add(repo, hash, ns.Total)
	return ns.Total, nil
}

func summarize(c gitbackend.Commit) CommitSummary {
	return CommitSummary{
		Hash:        c.Hash,
		Message:     c.Subject,
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		Date:        c.Author.When,
	}
}

// Compare reports, for two references, their merge base and the commits
// unique to each side since it.
func (s *Service) Compare(ctx context.Context, a, b string) (ComparisonResult, error) {
	res, err := s.compare(ctx, a, b)
	if err != nil {
		return ComparisonResult{}, fmt.Errorf("compare %s...%s in %s: %w", a, b, s.RepoPath(), err)
	}
	return res, nil
}

func (s *Service) compare(ctx context.Context, a, b string) (ComparisonResult, error) {
	base, hashA, hashB, err := s.mergeBase(ctx, a, b)
	if err != nil {
		return ComparisonResult{}, err
	}
	slog.Debug("comparing references",
		slog.String("left", a),
		slog.String("right", b),
		slog.String("merge_base", base),
	)

	res := ComparisonResult{CommonParent: base}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		left, err := s.CommitRange(gctx, base, hashA)
		if err != nil {
			return fmt.Errorf("commits on %s: %w", a, err)
		}
		res.Left = left
		return nil
	})
	g.Go(func() error {
		right, err := s.CommitRange(gctx, base, hashB)
		if err != nil {
			return fmt.Errorf("commits on %s: %w", b, err)
		}
		res.Right = right
		return nil
	})
	if err := g.Wait(); err != nil {
		return ComparisonResult{}, err
	}
	if res.Left == nil {
		res.Left = []CommitSummary{}
	}
	if res.Right == nil {
		res.Right = []CommitSummary{}
	}
	return res, nil
}
