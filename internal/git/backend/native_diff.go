package backend

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
)

// firstParentTrees returns the trees a commit is diffed between. Root commits
// compare against an empty tree (nil).
func (n *native) firstParentTrees(c *object.Commit) (*object.Tree, *object.Tree, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("tree of %s: %w: %v", c.Hash, ErrTransientIO, err)
	}
	if c.NumParents() == 0 {
		return nil, tree, nil
	}
	parent, err := c.Parent(0)
	if err != nil {
		return nil, nil, fmt.Errorf("parent of %s: %w: %v", c.Hash, ErrTransientIO, err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("tree of %s: %w: %v", parent.Hash, ErrTransientIO, err)
	}
	return parentTree, tree, nil
}

// changes diffs commit against its first parent. When paths are given the
// diff is limited to them before renames are paired, like a git pathspec.
func (n *native) changes(ctx context.Context, commitHash string, paths ...string) (*object.Commit, object.Changes, error) {
	c, err := n.commit(commitHash)
	if err != nil {
		return nil, nil, err
	}
	from, to, err := n.firstParentTrees(c)
	if err != nil {
		return nil, nil, err
	}
	changes, err := object.DiffTreeWithOptions(ctx, from, to, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("diff %s: %w", commitHash, wrapContextErr(err))
	}
	if len(paths) > 0 {
		changes = slices.DeleteFunc(changes, func(ch *object.Change) bool {
			return !slices.Contains(paths, ch.From.Name) && !slices.Contains(paths, ch.To.Name)
		})
	}
	changes, err = object.DetectRenames(changes, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("detect renames in %s: %w: %v", commitHash, ErrTransientIO, err)
	}
	return c, changes, nil
}

func (n *native) NumStat(ctx context.Context, commitHash string, paths ...string) (diffstat.NumStat, error) {
	_, changes, err := n.changes(ctx, commitHash, paths...)
	if err != nil {
		return diffstat.NumStat{}, err
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return diffstat.NumStat{}, fmt.Errorf("patch %s: %w", commitHash, wrapContextErr(err))
	}
	return numStatFromPatch(patch), nil
}

func numStatFromPatch(patch *object.Patch) diffstat.NumStat {
	var res diffstat.NumStat
	for _, fs := range patch.Stats() {
		st := diffstat.FileStat{
			Path: fs.Name,
			Stats: diffstat.Stats{
				Additions: uint(max(fs.Addition, 0)),
				Deletions: uint(max(fs.Deletion, 0)),
			},
		}
		res.Files = append(res.Files, st)
		res.Total = res.Total.Add(st.Stats)
	}
	return res
}

func (n *native) CommitChanges(ctx context.Context, commitHash string) (Commit, []diffstat.FileChange, error) {
	c, changes, err := n.changes(ctx, commitHash)
	if err != nil {
		return Commit{}, nil, err
	}
	files := make([]diffstat.FileChange, 0, len(changes))
	for _, ch := range changes {
		fc, err := fileChange(ch)
		if err != nil {
			return Commit{}, nil, fmt.Errorf("change in %s: %w: %v", commitHash, ErrTransientIO, err)
		}
		files = append(files, fc)
	}
	slices.SortStableFunc(files, func(a, b diffstat.FileChange) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return convertCommit(c), files, nil
}

func fileChange(ch *object.Change) (diffstat.FileChange, error) {
	action, err := ch.Action()
	if err != nil {
		return diffstat.FileChange{}, err
	}
	switch action {
	case merkletrie.Insert:
		return diffstat.FileChange{Path: ch.To.Name, Status: diffstat.StatusAdded}, nil
	case merkletrie.Delete:
		return diffstat.FileChange{Path: ch.From.Name, Status: diffstat.StatusDeleted}, nil
	case merkletrie.Modify:
		if ch.From.Name != ch.To.Name {
			return diffstat.FileChange{Path: ch.To.Name, OldPath: ch.From.Name, Status: diffstat.StatusRenamed}, nil
		}
		return diffstat.FileChange{Path: ch.To.Name, Status: diffstat.StatusModified}, nil
	default:
		return diffstat.FileChange{Path: cmp.Or(ch.To.Name, ch.From.Name), Status: diffstat.StatusOther}, nil
	}
}

// FileDiffText renders one path with difflib so the output does not depend
// on rename pairing: the path is compared between the two trees as is.
func (n *native) FileDiffText(ctx context.Context, commitHash, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := n.commit(commitHash)
	if err != nil {
		return "", err
	}
	fromTree, toTree, err := n.firstParentTrees(c)
	if err != nil {
		return "", err
	}
	from, err := treeFile(fromTree, path)
	if err != nil {
		return "", err
	}
	to, err := treeFile(toTree, path)
	if err != nil {
		return "", err
	}
	if from == nil && to == nil {
		return "", nil
	}
	if from != nil && to != nil && from.Hash == to.Hash && from.Mode == to.Mode {
		return "", nil
	}
	return unifiedFileDiff(path, from, to)
}

func treeFile(tree *object.Tree, path string) (*object.File, error) {
	if tree == nil {
		return nil, nil
	}
	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w: %v", path, ErrTransientIO, err)
	}
	return f, nil
}

func unifiedFileDiff(path string, from, to *object.File) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	fromName, toName := "a/"+path, "b/"+path
	switch {
	case from == nil:
		fmt.Fprintf(&b, "new file mode %o\n", uint32(to.Mode))
		fromName = "/dev/null"
	case to == nil:
		fmt.Fprintf(&b, "deleted file mode %o\n", uint32(from.Mode))
		toName = "/dev/null"
	case from.Mode != to.Mode:
		fmt.Fprintf(&b, "old mode %o\nnew mode %o\n", uint32(from.Mode), uint32(to.Mode))
	}

	binary, err := anyBinary(from, to)
	if err != nil {
		return "", err
	}
	if binary {
		fmt.Fprintf(&b, "Binary files %s and %s differ\n", fromName, toName)
		return b.String(), nil
	}
	fromLines, err := fileLines(from)
	if err != nil {
		return "", err
	}
	toLines, err := fileLines(to)
	if err != nil {
		return "", err
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        fromLines,
		B:        toLines,
		FromFile: fromName,
		ToFile:   toName,
		Context:  fdiff.DefaultContextLines,
	})
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", path, err)
	}
	b.WriteString(text)
	if text != "" && !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
	return b.String(), nil
}

func anyBinary(files ...*object.File) (bool, error) {
	for _, f := range files {
		if f == nil {
			continue
		}
		bin, err := f.IsBinary()
		if err != nil {
			return false, fmt.Errorf("read %s: %w: %v", f.Name, ErrTransientIO, err)
		}
		if bin {
			return true, nil
		}
	}
	return false, nil
}

func fileLines(f *object.File) ([]string, error) {
	if f == nil {
		return []string{}, nil
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %v", f.Name, ErrTransientIO, err)
	}
	if content == "" {
		return []string{}, nil
	}
	// SplitLines terminates the last line itself
	return difflib.SplitLines(strings.TrimSuffix(content, "\n")), nil
}

func (n *native) CommitPatch(ctx context.Context, commitHash string) (Commit, diffstat.NumStat, string, error) {
	c, changes, err := n.changes(ctx, commitHash)
	if err != nil {
		return Commit{}, diffstat.NumStat{}, "", err
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return Commit{}, diffstat.NumStat{}, "", fmt.Errorf("patch %s: %w", commitHash, wrapContextErr(err))
	}
	text, err := encodeUnifiedPatch(patch.FilePatches())
	if err != nil {
		return Commit{}, diffstat.NumStat{}, "", fmt.Errorf("encode patch %s: %w", commitHash, err)
	}
	return convertCommit(c), numStatFromPatch(patch), text, nil
}

func encodeUnifiedPatch(filePatches []fdiff.FilePatch) (string, error) {
	var buf bytes.Buffer
	enc := fdiff.NewUnifiedEncoder(&buf, fdiff.DefaultContextLines)
	if err := enc.Encode(filePatchSet(filePatches)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type filePatchSet []fdiff.FilePatch

func (f filePatchSet) FilePatches() []fdiff.FilePatch { return f }
func (filePatchSet) Message() string                  { return "" }

func wrapContextErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, merkletrie.ErrCanceled) || errors.Is(err, object.ErrCanceled) {
		return context.Canceled
	}
	return fmt.Errorf("%w: %v", ErrTransientIO, err)
}
