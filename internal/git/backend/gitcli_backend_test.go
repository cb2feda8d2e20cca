package backend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestParseForEachRef(t *testing.T) {
	t.Parallel()

	out := strings.Join([]string{
		"1111111111111111111111111111111111111111\t\trefs/heads/main\t2024-03-01T10:00:00+00:00",
		"2222222222222222222222222222222222222222\t3333333333333333333333333333333333333333\trefs/tags/v1.0\t2024-02-01T10:00:00+02:00",
		"4444444444444444444444444444444444444444\t\trefs/tags/light\t2024-01-01T00:00:00Z",
		"5555555555555555555555555555555555555555\t\trefs/notes/commits\t2024-01-01T00:00:00Z",
		"",
	}, "\n")

	refs, err := parseForEachRef(out)
	if err != nil {
		t.Fatalf("parseForEachRef() error = %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %d: %+v", len(refs), refs)
	}
	if refs[0].Kind != RefKindBranch || refs[0].Name != "main" || refs[0].Hash != "1111111111111111111111111111111111111111" {
		t.Fatalf("unexpected branch ref: %+v", refs[0])
	}
	if refs[1].Kind != RefKindTag || refs[1].Name != "v1.0" {
		t.Fatalf("unexpected tag ref: %+v", refs[1])
	}
	if refs[1].Hash != "3333333333333333333333333333333333333333" {
		t.Fatalf("annotated tag should report peeled hash, got %s", refs[1].Hash)
	}
	if want := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC); !refs[1].CreatedAt.Equal(want) {
		t.Fatalf("CreatedAt = %v, want %v", refs[1].CreatedAt, want)
	}
	if refs[2].Hash != "4444444444444444444444444444444444444444" {
		t.Fatalf("lightweight tag hash = %s", refs[2].Hash)
	}
}

func TestParseForEachRef_Malformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"deadbeef refs/heads/main\n",
		"\t\trefs/heads/main\t2024-01-01T00:00:00Z\n",
		"deadbeef\t\trefs/heads/main\tyesterday\n",
	} {
		if _, err := parseForEachRef(in); !errors.Is(err, ErrParse) {
			t.Fatalf("parseForEachRef(%q) error = %v, want ErrParse", in, err)
		}
	}
}

func TestParseCommitHeader(t *testing.T) {
	t.Parallel()

	out := "abc\x00p1 p2\x00Alice\x00alice@example.com\x002024-01-02T03:04:05Z\x00" +
		"Bob\x00bob@example.com\x002024-01-02T03:05:06Z\x00Fix bug\x00Longer\nexplanation\n\x00" +
		"\nM\tfile.txt\n"

	commit, rest, err := parseCommitHeader(out)
	if err != nil {
		t.Fatalf("parseCommitHeader() error = %v", err)
	}
	if commit.Hash != "abc" || len(commit.ParentHashes) != 2 {
		t.Fatalf("unexpected commit: %+v", commit)
	}
	if commit.Subject != "Fix bug" || commit.Body != "Longer\nexplanation\n" {
		t.Fatalf("unexpected message: %q / %q", commit.Subject, commit.Body)
	}
	if commit.Author.Email != "alice@example.com" || commit.Committer.Name != "Bob" {
		t.Fatalf("unexpected signatures: %+v / %+v", commit.Author, commit.Committer)
	}
	if rest != "\nM\tfile.txt\n" {
		t.Fatalf("rest = %q", rest)
	}

	if _, _, err := parseCommitHeader("abc\x00only"); !errors.Is(err, ErrParse) {
		t.Fatalf("short header error = %v, want ErrParse", err)
	}
}

func TestSplitNumStatPatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		wantStats string
		wantPatch string
	}{
		{name: "empty", in: ""},
		{
			name:      "stats_then_patch",
			in:        "\n1\t0\ta.txt\n\ndiff --git a/a.txt b/a.txt\n+x\n",
			wantStats: "\n1\t0\ta.txt\n",
			wantPatch: "diff --git a/a.txt b/a.txt\n+x\n",
		},
		{
			name:      "patch_only",
			in:        "diff --git a/a b/a\n",
			wantPatch: "diff --git a/a b/a\n",
		},
		{
			name:      "stats_only",
			in:        "\n-\t-\tbin\n",
			wantStats: "\n-\t-\tbin\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stats, patch := splitNumStatPatch(tt.in)
			if stats != tt.wantStats || patch != tt.wantPatch {
				t.Fatalf("splitNumStatPatch() = (%q, %q), want (%q, %q)", stats, patch, tt.wantStats, tt.wantPatch)
			}
		})
	}
}

func TestClassifyGitError(t *testing.T) {
	t.Parallel()

	exitErr := exitError(t)

	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{name: "not_a_repo", stderr: "fatal: not a git repository (or any of the parent directories): .git", want: ErrRepositoryNotFound},
		{name: "missing_dir", stderr: "fatal: cannot change to '/nope': No such file or directory", want: ErrRepositoryNotFound},
		{name: "unknown_revision", stderr: "fatal: ambiguous argument 'nope': unknown revision or path not in the working tree.", want: ErrMalformedReference},
		{name: "bad_object", stderr: "fatal: bad object deadbeef", want: ErrMalformedReference},
		{name: "invalid_name", stderr: "fatal: Not a valid object name nope", want: ErrMalformedReference},
		{name: "other", stderr: "fatal: unable to read tree", want: ErrTransientIO},
		{name: "no_stderr", stderr: "", want: ErrTransientIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := classifyGitError(context.Background(), context.Background(), "git test", exitErr, tt.stderr)
			if !errors.Is(err, tt.want) {
				t.Fatalf("classifyGitError() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClassifyGitError_Contexts(t *testing.T) {
	t.Parallel()

	exitErr := exitError(t)

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if err := classifyGitError(context.Background(), expired, "git test", exitErr, ""); !errors.Is(err, ErrTransientIO) {
		t.Fatalf("per-call timeout should be transient, got %v", err)
	}

	canceled, cancelParent := context.WithCancel(context.Background())
	cancelParent()
	err := classifyGitError(canceled, canceled, "git test", exitErr, "fatal: bad object x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("caller cancellation should surface context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTransientIO) {
		t.Fatalf("caller cancellation must not be retried: %v", err)
	}

	if err := classifyGitError(context.Background(), context.Background(), "git test", exec.ErrNotFound, ""); !errors.Is(err, ErrTransientIO) {
		t.Fatalf("start failure should be transient, got %v", err)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	g := &gitCLI{path: "/repo", opts: Options{Retries: 3}}
	calls := 0
	err := g.retry(context.Background(), "git test", func() error {
		calls++
		return fmt.Errorf("boom: %w", ErrMalformedReference)
	})
	if !errors.Is(err, ErrMalformedReference) {
		t.Fatalf("retry() = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryTransient(t *testing.T) {
	t.Parallel()

	g := &gitCLI{path: "/repo", opts: Options{Retries: 1}}
	calls := 0
	err := g.retry(context.Background(), "git test", func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("flaky: %w", ErrTransientIO)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry() = %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}

	calls = 0
	err = g.retry(context.Background(), "git test", func() error {
		calls++
		return fmt.Errorf("down: %w", ErrTransientIO)
	})
	if !errors.Is(err, ErrTransientIO) || calls != 2 {
		t.Fatalf("retry() = %v after %d calls", err, calls)
	}
}

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: retryBaseInterval},
		{attempt: 2, want: 2 * retryBaseInterval},
		{attempt: 3, want: 4 * retryBaseInterval},
		{attempt: 10, want: maxRetryBackoff},
		{attempt: 64, want: maxRetryBackoff},
		{attempt: 1 << 20, want: maxRetryBackoff},
	}
	for _, tt := range tests {
		if got := retryBackoff(tt.attempt); got != tt.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestCommandArgsLiteralPathspecs(t *testing.T) {
	t.Parallel()

	g := &gitCLI{path: "/repo"}
	args := g.commandArgs([]string{"show", "--", "*.txt"})
	i := slices.Index(args, "--literal-pathspecs")
	if i < 0 || i > slices.Index(args, "show") {
		t.Fatalf("commandArgs() = %v, want --literal-pathspecs before the subcommand", args)
	}
}

func TestFileSections(t *testing.T) {
	t.Parallel()

	patch := "diff --git a/src/x.go b/src/x.go\n" +
		"+x\n" +
		"diff --git a/src/y.go b/src/y.go\n" +
		"+y\n" +
		"diff --git \"a/sp\\\"q.go\" \"b/sp\\\"q.go\"\n" +
		"+q\n"

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "file", path: "src/y.go", want: "diff --git a/src/y.go b/src/y.go\n+y\n"},
		{name: "directory", path: "src", want: ""},
		{name: "prefix", path: "src/x", want: ""},
		{name: "quoted", path: `sp"q.go`, want: "diff --git \"a/sp\\\"q.go\" \"b/sp\\\"q.go\"\n+q\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := fileSections(patch, tt.path); got != tt.want {
				t.Fatalf("fileSections(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolveCommitRejectsOptions(t *testing.T) {
	t.Parallel()

	g := &gitCLI{path: "/repo"}
	for _, rev := range []string{"", "  ", "--all", "-n"} {
		if _, err := g.ResolveCommit(context.Background(), rev); !errors.Is(err, ErrMalformedReference) {
			t.Fatalf("ResolveCommit(%q) error = %v, want ErrMalformedReference", rev, err)
		}
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in          string
		wantSubject string
		wantBody    string
	}{
		{in: "", wantSubject: "", wantBody: ""},
		{in: "Fix bug\n", wantSubject: "Fix bug", wantBody: ""},
		{in: "Fix bug\n\nDetails here\n", wantSubject: "Fix bug", wantBody: "Details here\n"},
		{in: "Wrapped\nsubject\n\nbody", wantSubject: "Wrapped subject", wantBody: "body"},
		{in: "\n\nLeading blank\r\n\r\nbody\r\n", wantSubject: "Leading blank", wantBody: "body\n"},
	}
	for _, tt := range tests {
		subject, body := splitMessage(tt.in)
		if subject != tt.wantSubject || body != tt.wantBody {
			t.Fatalf("splitMessage(%q) = (%q, %q), want (%q, %q)", tt.in, subject, body, tt.wantSubject, tt.wantBody)
		}
	}
}

func TestParseRefName(t *testing.T) {
	t.Parallel()

	tests := map[string]Ref{
		"main":          {Kind: RefKindBranch, Name: "main"},
		"tag: v1.0":     {Kind: RefKindTag, Name: "v1.0"},
		" feature/x ":   {Kind: RefKindBranch, Name: "feature/x"},
		"tag:v1":        {Kind: RefKindBranch, Name: "tag:v1"},
		"tag:  spaced ": {Kind: RefKindTag, Name: "spaced"},
	}
	for in, want := range tests {
		if got := ParseRefName(in); got != want {
			t.Fatalf("ParseRefName(%q) = %+v, want %+v", in, got, want)
		}
	}

	tag := Ref{Kind: RefKindTag, Name: "v1"}
	if tag.DisplayName() != "tag: v1" || tag.Revision() != "refs/tags/v1" {
		t.Fatalf("tag names: %q %q", tag.DisplayName(), tag.Revision())
	}
	branch := Ref{Kind: RefKindBranch, Name: "main"}
	if branch.DisplayName() != "main" || branch.Revision() != "main" {
		t.Fatalf("branch names: %q %q", branch.DisplayName(), branch.Revision())
	}
}

// exitError returns a real *exec.ExitError by running a command that fails.
func exitError(t *testing.T) error {
	t.Helper()

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	err = exec.Command(sh, "-c", "exit 3").Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got %v", err)
	}
	return err
}
