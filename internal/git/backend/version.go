package backend

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// minGitVersion is the oldest git the CLI backend supports. 2.31 is the first
// release where "git show --diff-merges=first-parent" and
// "rev-parse --end-of-options" both work.
var minGitVersion = gitVersion{major: 2, minor: 31}

type gitVersion struct {
	major, minor, patch int
}

func MinGitVersion() string {
	return minGitVersion.String()
}

func (v gitVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

func (v gitVersion) less(other gitVersion) bool {
	if v.major != other.major {
		return v.major < other.major
	}
	if v.minor != other.minor {
		return v.minor < other.minor
	}
	return v.patch < other.patch
}

// parseGitVersionOutput accepts vendor flavoured outputs such as
// "git version 2.39.3 (Apple Git-146)" or "git version 2.45.1.windows.1".
func parseGitVersionOutput(out string) (gitVersion, bool) {
	s := strings.TrimSpace(out)
	if _, after, ok := strings.Cut(s, "git version"); ok {
		s = after
	}
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end := strings.IndexFunc(s, func(r rune) bool { return r != '.' && !unicode.IsDigit(r) }); end >= 0 {
		s = s[:end]
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '.' })
	if len(fields) < 2 {
		return gitVersion{}, false
	}
	var nums [3]int
	for i := range min(len(fields), len(nums)) {
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			return gitVersion{}, false
		}
		nums[i] = n
	}
	return gitVersion{major: nums[0], minor: nums[1], patch: nums[2]}, true
}

func checkGitVersion(out string) error {
	got, ok := parseGitVersionOutput(out)
	if !ok {
		return fmt.Errorf("unable to parse git version output: %q", strings.TrimSpace(out))
	}
	if got.less(minGitVersion) {
		return fmt.Errorf("git %s is too old; gitk-compare requires git >= %s", got, minGitVersion)
	}
	return nil
}

var gitVersionOutput = sync.OnceValues(func() (string, error) {
	b, err := exec.Command("git", "--version").CombinedOutput()
	out := strings.TrimSpace(string(b))
	if err != nil {
		if out != "" {
			return out, fmt.Errorf("git --version: %v: %s", err, out)
		}
		return out, fmt.Errorf("git --version: %w", err)
	}
	return out, nil
})

// GitVersion returns the raw "git --version" output.
func GitVersion() (string, error) {
	return gitVersionOutput()
}

var ensureMinGitVersion = sync.OnceValue(func() error {
	out, err := gitVersionOutput()
	if err != nil {
		return err
	}
	return checkGitVersion(out)
})
