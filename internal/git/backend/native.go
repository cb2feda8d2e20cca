package backend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// native reads the object database in-process with go-git. It does not need
// a git executable, which makes it the choice for sandboxes and tests.
type native struct {
	path string
	repo *gitlib.Repository
}

func OpenNative(ctx context.Context, repoPath string) (Backend, error) {
	if err := ctx.Err(); err != nil {
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
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gitlib.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("open repository %s: %w", abs, ErrRepositoryNotFound)
		}
		return nil, fmt.Errorf("open repository %s: %w: %v", abs, ErrRepositoryNotFound, err)
	}
	root := abs
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &native{path: root, repo: repo}, nil
}

func (n *native) RepoPath() string {
	if n == nil {
		return ""
	}
	return n.path
}

func (n *native) ListRefs(ctx context.Context) ([]Ref, error) {
	iter, err := n.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w: %v", ErrTransientIO, err)
	}
	defer iter.Close()

	type namedRef struct {
		full string
		ref  Ref
	}
	var found []namedRef
	err = iter.ForEach(func(r *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Type() != plumbing.HashReference {
			return nil
		}
		name := r.Name()
		var kind RefKind
		switch {
		case name.IsBranch():
			kind = RefKindBranch
		case name.IsTag():
			kind = RefKindTag
		default:
			return nil
		}
		commit, tag, ok := n.peel(r.Hash())
		if !ok {
			// tags of trees or blobs have no place in a commit comparison
			return nil
		}
		ref := Ref{Hash: commit.Hash.String(), Kind: kind, Name: name.Short(), CreatedAt: commit.Committer.When}
		if tag != nil {
			ref.CreatedAt = tag.Tagger.When
		}
		found = append(found, namedRef{full: name.String(), ref: ref})
		return nil
	})
	if err != nil {
		return nil, err
	}
	// same order as for-each-ref --sort=-creatordate, which breaks ties by
	// full ref name
	slices.SortFunc(found, func(a, b namedRef) int {
		if c := b.ref.CreatedAt.Compare(a.ref.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.full, b.full)
	})
	refs := make([]Ref, len(found))
	for i, f := range found {
		refs[i] = f.ref
	}
	return refs, nil
}

// peel follows hash through annotated tags to a commit. The outermost tag
// object, if any, is returned alongside it.
func (n *native) peel(hash plumbing.Hash) (*object.Commit, *object.Tag, bool) {
	if commit, err := n.repo.CommitObject(hash); err == nil {
		return commit, nil, true
	}
	var outer *object.Tag
	cur := hash
	for range 8 {
		tag, err := n.repo.TagObject(cur)
		if err != nil {
			return nil, nil, false
		}
		if outer == nil {
			outer = tag
		}
		switch tag.TargetType {
		case plumbing.CommitObject:
			commit, err := n.repo.CommitObject(tag.Target)
			if err != nil {
				return nil, nil, false
			}
			return commit, outer, true
		case plumbing.TagObject:
			cur = tag.Target
		default:
			return nil, nil, false
		}
	}
	return nil, nil, false
}

func (n *native) ResolveCommit(ctx context.Context, rev string) (string, error) {
	commit, err := n.resolve(ctx, rev)
	if err != nil {
		return "", err
	}
	return commit.Hash.String(), nil
}

func (n *native) resolve(ctx context.Context, rev string) (*object.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rev = strings.TrimSpace(rev)
	if rev == "" || strings.HasPrefix(rev, "-") {
		return nil, fmt.Errorf("resolve %q: %w", rev, ErrMalformedReference)
	}
	if plumbing.IsHash(rev) {
		if commit, _, ok := n.peel(plumbing.NewHash(rev)); ok {
			return commit, nil
		}
	}
	candidates := []string{"refs/heads/" + rev, "refs/tags/" + rev}
	if strings.HasPrefix(rev, "refs/") {
		candidates = []string{rev}
	}
	for _, name := range candidates {
		ref, err := n.repo.Reference(plumbing.ReferenceName(name), true)
		if err != nil {
			continue
		}
		if commit, _, ok := n.peel(ref.Hash()); ok {
			return commit, nil
		}
	}
	// short hashes, HEAD and ancestry expressions
	hash, err := n.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", rev, ErrMalformedReference)
	}
	if commit, _, ok := n.peel(*hash); ok {
		return commit, nil
	}
	return nil, fmt.Errorf("resolve %q: %w: not a commit", rev, ErrMalformedReference)
}

func (n *native) commit(hash string) (*object.Commit, error) {
	if !plumbing.IsHash(hash) {
		return nil, fmt.Errorf("commit %q: %w", hash, ErrMalformedReference)
	}
	c, err := n.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("commit %s: %w", hash, ErrMalformedReference)
		}
		return nil, fmt.Errorf("commit %s: %w: %v", hash, ErrTransientIO, err)
	}
	return c, nil
}

func (n *native) MergeBase(ctx context.Context, a, b string) (string, error) {
	ca, err := n.resolve(ctx, a)
	if err != nil {
		return "", err
	}
	cb, err := n.resolve(ctx, b)
	if err != nil {
		return "", err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", fmt.Errorf("merge-base %s %s: %w: %v", a, b, ErrTransientIO, err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("merge-base %s %s: %w", a, b, ErrNoCommonAncestor)
	}
	return pickMergeBase(bases).Hash.String(), nil
}

// pickMergeBase chooses among equally good merge bases (criss-cross merges):
// the most recently committed wins, ties go to the smallest hash.
func pickMergeBase(bases []*object.Commit) *object.Commit {
	return slices.MinFunc(bases, func(a, b *object.Commit) int {
		if c := b.Committer.When.Compare(a.Committer.When); c != 0 {
			return c
		}
		return cmp.Compare(a.Hash.String(), b.Hash.String())
	})
}

func (n *native) LogRange(ctx context.Context, base, target string) ([]Commit, error) {
	tip, err := n.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	var excluded map[plumbing.Hash]bool
	if base != "" {
		from, err := n.resolve(ctx, base)
		if err != nil {
			return nil, err
		}
		excluded, err = ancestors(ctx, from)
		if err != nil {
			return nil, err
		}
		if excluded[tip.Hash] {
			return nil, nil
		}
	}
	var commits []Commit
	iter := object.NewCommitIterCTime(tip, excluded, nil)
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if excluded[c.Hash] {
			return nil
		}
		commits = append(commits, convertCommit(c))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", target, err)
	}
	return commits, nil
}

// ancestors returns c and everything reachable from it.
func ancestors(ctx context.Context, c *object.Commit) (map[plumbing.Hash]bool, error) {
	seen := map[plumbing.Hash]bool{}
	iter := object.NewCommitPreorderIter(c, nil, nil)
	defer iter.Close()
	err := iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[c.Hash] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", c.Hash, err)
	}
	return seen, nil
}

func convertCommit(c *object.Commit) Commit {
	subject, body := splitMessage(c.Message)
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return Commit{
		Hash:         c.Hash.String(),
		ParentHashes: parents,
		Author:       Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer:    Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Subject:      subject,
		Body:         body,
	}
}
