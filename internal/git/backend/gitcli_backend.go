package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
)

const refFormat = "%(objectname)%09%(*objectname)%09%(refname)%09%(creatordate:iso-strict)"

// commitHeaderFormat prints the same fields as logRecordFormat, NUL separated,
// so diff output can follow it on the same stream.
const commitHeaderFormat = "%H%x00%P%x00%an%x00%ae%x00%aI%x00%cn%x00%ce%x00%cI%x00%s%x00%b%x00"

const commitHeaderFields = 10

func (g *gitCLI) ListRefs(ctx context.Context) ([]Ref, error) {
	out, err := g.runGitCommand(ctx,
		[]string{
			"for-each-ref",
			"--sort=-creatordate",
			"--format=" + refFormat,
			"refs/heads/",
			"refs/tags/",
		},
		false,
		"git for-each-ref",
	)
	if err != nil {
		return nil, err
	}
	return parseForEachRef(out)
}

func parseForEachRef(out string) ([]Ref, error) {
	var refs []Ref
	for rawLine := range strings.SplitSeq(out, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 4 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("%w: for-each-ref line %q", ErrParse, rawLine)
		}
		ref := Ref{Hash: parts[0]}
		if parts[1] != "" {
			// annotated tag: report the commit it points at
			ref.Hash = parts[1]
		}
		switch {
		case strings.HasPrefix(parts[2], "refs/heads/"):
			ref.Kind = RefKindBranch
			ref.Name = strings.TrimPrefix(parts[2], "refs/heads/")
		case strings.HasPrefix(parts[2], "refs/tags/"):
			ref.Kind = RefKindTag
			ref.Name = strings.TrimPrefix(parts[2], "refs/tags/")
		default:
			continue
		}
		if ref.Name == "" {
			continue
		}
		if parts[3] != "" {
			when, err := time.Parse(time.RFC3339, parts[3])
			if err != nil {
				return nil, fmt.Errorf("%w: creator date %q: %v", ErrParse, parts[3], err)
			}
			ref.CreatedAt = when
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (g *gitCLI) ResolveCommit(ctx context.Context, rev string) (string, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" || strings.HasPrefix(rev, "-") {
		return "", fmt.Errorf("resolve %q: %w", rev, ErrMalformedReference)
	}
	out, err := g.runGitCommand(ctx,
		[]string{"rev-parse", "--verify", "--quiet", "--end-of-options", rev + "^{commit}"},
		true,
		"git rev-parse",
	)
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(out)
	if hash == "" {
		return "", fmt.Errorf("resolve %q: %w", rev, ErrMalformedReference)
	}
	return hash, nil
}

func (g *gitCLI) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, err := g.runGitCommand(ctx, []string{"merge-base", a, b}, true, "git merge-base")
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(out)
	if hash == "" {
		return "", fmt.Errorf("merge-base %s %s: %w", a, b, ErrNoCommonAncestor)
	}
	return hash, nil
}

func (g *gitCLI) LogRange(ctx context.Context, base, target string) ([]Commit, error) {
	revs := []string{target}
	if base != "" {
		revs = []string{base + ".." + target}
	}
	var commits []Commit
	err := g.retry(ctx, "git log", func() error {
		commits = commits[:0]
		stream, err := g.startLogStream(ctx, revs...)
		if err != nil {
			return err
		}
		for {
			commit, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return stream.Close()
			}
			if err != nil {
				_ = stream.Close()
				return err
			}
			commits = append(commits, commit)
		}
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

func (g *gitCLI) NumStat(ctx context.Context, commitHash string, paths ...string) (diffstat.NumStat, error) {
	args := []string{
		"show",
		"--no-color",
		"--numstat",
		"--format=",
		"--diff-merges=first-parent",
		"-M",
		commitHash,
		"--",
	}
	args = append(args, paths...)
	out, err := g.runGitCommand(ctx, args, false, "git show --numstat")
	if err != nil {
		return diffstat.NumStat{}, err
	}
	return diffstat.ParseNumStat(out), nil
}

func (g *gitCLI) CommitChanges(ctx context.Context, commitHash string) (Commit, []diffstat.FileChange, error) {
	out, err := g.runGitCommand(ctx,
		[]string{
			"show",
			"--no-color",
			"--name-status",
			"-M",
			"--diff-merges=first-parent",
			"--format=" + commitHeaderFormat,
			commitHash,
			"--",
		},
		false,
		"git show --name-status",
	)
	if err != nil {
		return Commit{}, nil, err
	}
	commit, rest, err := parseCommitHeader(out)
	if err != nil {
		return Commit{}, nil, err
	}
	return commit, diffstat.ParseNameStatus(rest), nil
}

func (g *gitCLI) FileDiffText(ctx context.Context, commitHash, path string) (string, error) {
	out, err := g.runGitCommand(ctx,
		[]string{
			"show",
			"--no-color",
			"--format=",
			"--patch",
			"--diff-merges=first-parent",
			commitHash,
			"--",
			path,
		},
		false,
		"git show --patch",
	)
	if err != nil {
		return "", err
	}
	return fileSections(out, path), nil
}

// fileSections keeps the sections of a patch whose header names exactly
// path. A directory pathspec still matches every file below it.
func fileSections(patch, path string) string {
	plain := "a/" + path + " b/" + path
	quoted := strconv.Quote("a/"+path) + " " + strconv.Quote("b/"+path)
	var b strings.Builder
	keep := false
	for line := range strings.Lines(patch) {
		if header, ok := strings.CutPrefix(line, "diff --git "); ok {
			header = strings.TrimRight(header, "\r\n")
			keep = header == plain || header == quoted
		}
		if keep {
			b.WriteString(line)
		}
	}
	return b.String()
}

func (g *gitCLI) CommitPatch(ctx context.Context, commitHash string) (Commit, diffstat.NumStat, string, error) {
	out, err := g.runGitCommand(ctx,
		[]string{
			"show",
			"--no-color",
			"--numstat",
			"--patch",
			"-M",
			"--diff-merges=first-parent",
			"--format=" + commitHeaderFormat,
			commitHash,
			"--",
		},
		false,
		"git show --patch",
	)
	if err != nil {
		return Commit{}, diffstat.NumStat{}, "", err
	}
	commit, rest, err := parseCommitHeader(out)
	if err != nil {
		return Commit{}, diffstat.NumStat{}, "", err
	}
	stats, patch := splitNumStatPatch(rest)
	return commit, diffstat.ParseNumStat(stats), patch, nil
}

// parseCommitHeader splits output produced with commitHeaderFormat into the
// commit and whatever git printed after it.
func parseCommitHeader(out string) (Commit, string, error) {
	parts := strings.SplitN(out, "\x00", commitHeaderFields+1)
	if len(parts) != commitHeaderFields+1 {
		return Commit{}, "", fmt.Errorf("%w: commit header has %d fields", ErrParse, len(parts)-1)
	}
	hash := strings.TrimSpace(parts[0])
	if hash == "" {
		return Commit{}, "", fmt.Errorf("%w: missing commit hash", ErrParse)
	}
	authorWhen, _ := time.Parse(time.RFC3339, parts[4])
	committerWhen, _ := time.Parse(time.RFC3339, parts[7])
	return Commit{
		Hash:         hash,
		ParentHashes: strings.Fields(parts[1]),
		Author:       Signature{Name: parts[2], Email: parts[3], When: authorWhen},
		Committer:    Signature{Name: parts[5], Email: parts[6], When: committerWhen},
		Subject:      parts[8],
		Body:         parts[9],
	}, parts[10], nil
}

func splitNumStatPatch(rest string) (numstat, patch string) {
	if strings.HasPrefix(rest, "diff --git ") {
		return "", rest
	}
	if idx := strings.Index(rest, "\ndiff --git "); idx >= 0 {
		return rest[:idx], rest[idx+1:]
	}
	return rest, ""
}
