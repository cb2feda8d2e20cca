package backend

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
)

type testRepo struct {
	dir                string
	c0, c1, c2, orphan string
}

func runGit(t *testing.T, dir string, date string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir, "-c", "user.name=Test", "-c", "user.email=test@example.com", "-c", "commit.gpgsign=false", "-c", "tag.gpgsign=false"}, args...)...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_CONFIG_NOSYSTEM=1", "HOME="+dir)
	if date != "" {
		cmd.Env = append(cmd.Env, "GIT_AUTHOR_DATE="+date, "GIT_COMMITTER_DATE="+date)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// createTestRepo builds:
//
//	c0 -- c1 (main, tag v1) -- c2 (feature)
//	orphan (unrelated root)
func createTestRepo(t *testing.T) testRepo {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	if err := ensureMinGitVersion(); err != nil {
		t.Skipf("git too old: %v", err)
	}
	dir := t.TempDir()
	var r testRepo
	r.dir = dir
	runGit(t, dir, "", "init", "-q", "-b", "main")

	writeFile(t, dir, "a.txt", "one\n")
	runGit(t, dir, "2024-01-01T00:00:00Z", "add", "a.txt")
	runGit(t, dir, "2024-01-01T00:00:00Z", "commit", "-q", "-m", "Initial commit")
	r.c0 = runGit(t, dir, "", "rev-parse", "HEAD")

	writeFile(t, dir, "a.txt", "one\ntwo\n")
	writeFile(t, dir, "b.txt", "moved content\nstays the same\n")
	runGit(t, dir, "2024-01-02T00:00:00Z", "add", "a.txt", "b.txt")
	runGit(t, dir, "2024-01-02T00:00:00Z", "commit", "-q", "-m", "Fix bug\n")
	r.c1 = runGit(t, dir, "", "rev-parse", "HEAD")
	runGit(t, dir, "2024-01-03T00:00:00Z", "tag", "-a", "v1", "-m", "release v1")

	runGit(t, dir, "", "checkout", "-q", "-b", "feature")
	writeFile(t, dir, "a.txt", "one\ntwo\nthree\n")
	if err := os.WriteFile(filepath.Join(dir, "bin.dat"), []byte{0, 1, 2, 0, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "", "mv", "b.txt", "c.txt")
	runGit(t, dir, "2024-01-04T00:00:00Z", "add", "-A")
	runGit(t, dir, "2024-01-04T00:00:00Z", "commit", "-q", "-m", "Feature work\n\nLonger body\n")
	r.c2 = runGit(t, dir, "", "rev-parse", "HEAD")

	runGit(t, dir, "", "checkout", "-q", "--orphan", "orphan")
	runGit(t, dir, "", "rm", "-rq", "--cached", ".")
	writeFile(t, dir, "other.txt", "unrelated\n")
	runGit(t, dir, "2024-01-05T00:00:00Z", "add", "other.txt")
	runGit(t, dir, "2024-01-05T00:00:00Z", "commit", "-q", "-m", "Unrelated root")
	r.orphan = runGit(t, dir, "", "rev-parse", "HEAD")
	return r
}

func openBackends(t *testing.T, dir string) map[Kind]Backend {
	t.Helper()

	res := map[Kind]Backend{}
	for _, kind := range []Kind{KindCLI, KindNative} {
		b, err := Open(context.Background(), kind, dir, Options{Retries: 1})
		if err != nil {
			t.Fatalf("Open(%s) error = %v", kind, err)
		}
		res[kind] = b
	}
	return res
}

func TestBackends(t *testing.T) {
	t.Parallel()

	repo := createTestRepo(t)
	ctx := context.Background()

	for kind, b := range openBackends(t, repo.dir) {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()

			t.Run("ListRefs", func(t *testing.T) {
				refs, err := b.ListRefs(ctx)
				if err != nil {
					t.Fatalf("ListRefs() error = %v", err)
				}
				want := map[string]string{
					"main":    repo.c1,
					"feature": repo.c2,
					"orphan":  repo.orphan,
					"tag: v1": repo.c1,
				}
				if len(refs) != len(want) {
					t.Fatalf("ListRefs() = %+v, want %d refs", refs, len(want))
				}
				for _, ref := range refs {
					if want[ref.DisplayName()] != ref.Hash {
						t.Fatalf("ref %s = %s, want %s", ref.DisplayName(), ref.Hash, want[ref.DisplayName()])
					}
					if ref.CreatedAt.IsZero() {
						t.Fatalf("ref %s has no creation date", ref.DisplayName())
					}
				}
				if refs[0].Name != "orphan" {
					t.Fatalf("expected newest ref first, got %s", refs[0].Name)
				}
			})

			t.Run("ResolveCommit", func(t *testing.T) {
				for rev, want := range map[string]string{
					"main":         repo.c1,
					"feature":      repo.c2,
					"refs/tags/v1": repo.c1,
					repo.c0:        repo.c0,
				} {
					got, err := b.ResolveCommit(ctx, rev)
					if err != nil {
						t.Fatalf("ResolveCommit(%q) error = %v", rev, err)
					}
					if got != want {
						t.Fatalf("ResolveCommit(%q) = %s, want %s", rev, got, want)
					}
				}
				if _, err := b.ResolveCommit(ctx, "no-such-branch"); !errors.Is(err, ErrMalformedReference) {
					t.Fatalf("ResolveCommit(missing) error = %v, want ErrMalformedReference", err)
				}
			})

			t.Run("MergeBase", func(t *testing.T) {
				got, err := b.MergeBase(ctx, repo.c1, repo.c2)
				if err != nil || got != repo.c1 {
					t.Fatalf("MergeBase() = %s, %v; want %s", got, err, repo.c1)
				}
				if _, err := b.MergeBase(ctx, repo.c1, repo.orphan); !errors.Is(err, ErrNoCommonAncestor) {
					t.Fatalf("MergeBase(unrelated) error = %v, want ErrNoCommonAncestor", err)
				}
			})

			t.Run("LogRange", func(t *testing.T) {
				commits, err := b.LogRange(ctx, repo.c1, repo.c2)
				if err != nil {
					t.Fatalf("LogRange() error = %v", err)
				}
				if len(commits) != 1 || commits[0].Hash != repo.c2 {
					t.Fatalf("LogRange(c1, c2) = %+v", commits)
				}
				if commits[0].Subject != "Feature work" || commits[0].Body != "Longer body\n" {
					t.Fatalf("message = %q / %q", commits[0].Subject, commits[0].Body)
				}
				if commits[0].Author.Email != "test@example.com" {
					t.Fatalf("author = %+v", commits[0].Author)
				}

				commits, err = b.LogRange(ctx, repo.c2, repo.c1)
				if err != nil || len(commits) != 0 {
					t.Fatalf("LogRange(c2, c1) = %+v, %v; want empty", commits, err)
				}

				commits, err = b.LogRange(ctx, "", repo.c1)
				if err != nil {
					t.Fatalf("LogRange(all) error = %v", err)
				}
				var hashes []string
				for _, c := range commits {
					hashes = append(hashes, c.Hash)
				}
				if !slices.Equal(hashes, []string{repo.c1, repo.c0}) {
					t.Fatalf("LogRange(all) = %v", hashes)
				}
			})

			t.Run("NumStat", func(t *testing.T) {
				stats, err := b.NumStat(ctx, repo.c2)
				if err != nil {
					t.Fatalf("NumStat() error = %v", err)
				}
				if stats.Total != (diffstat.Stats{Additions: 1}) {
					t.Fatalf("NumStat(c2).Total = %+v", stats.Total)
				}
				stats, err = b.NumStat(ctx, repo.c1, "a.txt")
				if err != nil {
					t.Fatalf("NumStat(path) error = %v", err)
				}
				if stats.Total != (diffstat.Stats{Additions: 1}) {
					t.Fatalf("NumStat(c1, a.txt).Total = %+v", stats.Total)
				}
				stats, err = b.NumStat(ctx, repo.c0)
				if err != nil || stats.Total != (diffstat.Stats{Additions: 1}) {
					t.Fatalf("NumStat(root) = %+v, %v", stats.Total, err)
				}
			})

			t.Run("CommitChanges", func(t *testing.T) {
				commit, files, err := b.CommitChanges(ctx, repo.c2)
				if err != nil {
					t.Fatalf("CommitChanges() error = %v", err)
				}
				if commit.Hash != repo.c2 || commit.Subject != "Feature work" {
					t.Fatalf("commit = %+v", commit)
				}
				slices.SortFunc(files, func(a, b diffstat.FileChange) int { return strings.Compare(a.Path, b.Path) })
				want := []diffstat.FileChange{
					{Path: "a.txt", Status: diffstat.StatusModified},
					{Path: "bin.dat", Status: diffstat.StatusAdded},
					{Path: "c.txt", OldPath: "b.txt", Status: diffstat.StatusRenamed},
				}
				if !slices.Equal(files, want) {
					t.Fatalf("CommitChanges() files = %+v, want %+v", files, want)
				}
			})

			t.Run("FileDiffText", func(t *testing.T) {
				text, err := b.FileDiffText(ctx, repo.c2, "a.txt")
				if err != nil {
					t.Fatalf("FileDiffText() error = %v", err)
				}
				if !strings.HasPrefix(text, "diff --git a/a.txt b/a.txt") || !strings.Contains(text, "\n+three\n") {
					t.Fatalf("FileDiffText() = %q", text)
				}
				text, err = b.FileDiffText(ctx, repo.c2, "untouched.txt")
				if err != nil || text != "" {
					t.Fatalf("FileDiffText(untouched) = %q, %v", text, err)
				}
			})

			t.Run("CommitPatch", func(t *testing.T) {
				commit, stats, patch, err := b.CommitPatch(ctx, repo.c1)
				if err != nil {
					t.Fatalf("CommitPatch() error = %v", err)
				}
				if commit.Subject != "Fix bug" || commit.Body != "" {
					t.Fatalf("commit message = %q / %q", commit.Subject, commit.Body)
				}
				if stats.Total != (diffstat.Stats{Additions: 3}) {
					t.Fatalf("CommitPatch().Total = %+v", stats.Total)
				}
				for _, want := range []string{"diff --git a/a.txt b/a.txt", "diff --git a/b.txt b/b.txt", "+two"} {
					if !strings.Contains(patch, want) {
						t.Fatalf("patch missing %q:\n%s", want, patch)
					}
				}
			})
		})
	}
}

func TestBackendsFileDiffTextExactPath(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	if err := ensureMinGitVersion(); err != nil {
		t.Skipf("git too old: %v", err)
	}
	dir := t.TempDir()
	runGit(t, dir, "", "init", "-q", "-b", "main")
	writeFile(t, dir, "README", "readme\n")
	runGit(t, dir, "2024-01-01T00:00:00Z", "add", "README")
	runGit(t, dir, "2024-01-01T00:00:00Z", "commit", "-q", "-m", "Initial commit")
	if err := os.Mkdir(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "src/x.go", "package src\n")
	writeFile(t, dir, "src/y.go", "package src\n\nvar y int\n")
	writeFile(t, dir, "notes.txt", "notes\n")
	writeFile(t, dir, "todo.txt", "todo\n")
	runGit(t, dir, "2024-01-02T00:00:00Z", "add", "-A")
	runGit(t, dir, "2024-01-02T00:00:00Z", "commit", "-q", "-m", "Add sources")
	head := runGit(t, dir, "", "rev-parse", "HEAD")

	ctx := context.Background()
	for kind, b := range openBackends(t, dir) {
		t.Run(string(kind), func(t *testing.T) {
			for _, path := range []string{"*.txt", "src/*.go", "src", "src/", ":(glob)**/*.go"} {
				text, err := b.FileDiffText(ctx, head, path)
				if err != nil || text != "" {
					t.Errorf("FileDiffText(%q) = %q, %v, want empty", path, text, err)
				}
			}
			text, err := b.FileDiffText(ctx, head, "src/y.go")
			if err != nil {
				t.Fatalf("FileDiffText(src/y.go) error = %v", err)
			}
			if !strings.HasPrefix(text, "diff --git a/src/y.go b/src/y.go") || strings.Contains(text, "src/x.go") {
				t.Fatalf("FileDiffText(src/y.go) = %q", text)
			}
		})
	}
}

func TestOpenOutsideRepository(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	if err := ensureMinGitVersion(); err != nil {
		t.Skipf("git too old: %v", err)
	}
	dir := t.TempDir()
	for _, kind := range []Kind{KindCLI, KindNative} {
		_, err := Open(context.Background(), kind, dir, Options{})
		if !errors.Is(err, ErrRepositoryNotFound) {
			t.Fatalf("Open(%s, non-repo) error = %v, want ErrRepositoryNotFound", kind, err)
		}
		_, err = Open(context.Background(), kind, filepath.Join(dir, "missing"), Options{})
		if !errors.Is(err, ErrRepositoryNotFound) {
			t.Fatalf("Open(%s, missing) error = %v, want ErrRepositoryNotFound", kind, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Kind{"": KindCLI, "cli": KindCLI, " Native ": KindNative} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("libgit2"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
