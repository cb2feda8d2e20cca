package git

import (
	"context"
	"fmt"
	"slices"

	gitbackend "github.com/thiagokokada/gitk-compare/internal/git/backend"
)

// References returns branches and tags created within the recency window,
// newest first. Refs created at the same instant keep the backend's order.
func (s *Service) References(ctx context.Context) ([]gitbackend.Ref, error) {
	refs, err := s.backend.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list references in %s: %w", s.RepoPath(), err)
	}
	cutoff := s.opts.Now().Add(-s.opts.RecencyWindow)
	refs = slices.DeleteFunc(refs, func(r gitbackend.Ref) bool {
		return r.Hash == "" || r.Name == "" || r.CreatedAt.Before(cutoff)
	})
	slices.SortStableFunc(refs, func(a, b gitbackend.Ref) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return refs, nil
}

// ReferenceNames is References rendered as display names ("main",
// "tag: v1.0").
func (s *Service) ReferenceNames(ctx context.Context) ([]string, error) {
	refs, err := s.References(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.DisplayName())
	}
	return names, nil
}

// resolveRef turns a display name into a commit hash.
func (s *Service) resolveRef(ctx context.Context, display string) (string, error) {
	ref := gitbackend.ParseRefName(display)
	if ref.Name == "" {
		return "", fmt.Errorf("empty reference: %w", ErrMalformedReference)
	}
	hash, err := s.backend.ResolveCommit(ctx, ref.Revision())
	if err != nil {
		return "", fmt.Errorf("reference %q: %w", display, err)
	}
	return hash, nil
}

// MergeBase returns the best common ancestor of two references given by
// display name.
func (s *Service) MergeBase(ctx context.Context, a, b string) (string, error) {
	base, _, _, err := s.mergeBase(ctx, a, b)
	return base, err
}

func (s *Service) mergeBase(ctx context.Context, a, b string) (base, hashA, hashB string, err error) {
	hashA, err = s.resolveRef(ctx, a)
	if err != nil {
		return "", "", "", err
	}
	hashB, err = s.resolveRef(ctx, b)
	if err != nil {
		return "", "", "", err
	}
	base, err = s.backend.MergeBase(ctx, hashA, hashB)
	if err != nil {
		return "", "", "", err
	}
	return base, hashA, hashB, nil
}
