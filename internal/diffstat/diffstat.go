// Package diffstat parses the line-oriented outputs of "git --numstat" and
// "git --name-status".
//
// Parsing is lenient: malformed lines are skipped and non-numeric counts
// (git prints "-" for binary files) count as zero. The functions never fail.
package diffstat

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

type Status uint8

const (
	StatusOther Status = iota
	StatusAdded
	StatusDeleted
	StatusModified
	StatusRenamed
)

func (s Status) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusDeleted:
		return "deleted"
	case StatusModified:
		return "modified"
	case StatusRenamed:
		return "renamed"
	default:
		return "other"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "added":
		*s = StatusAdded
	case "deleted":
		*s = StatusDeleted
	case "modified":
		*s = StatusModified
	case "renamed":
		*s = StatusRenamed
	case "other":
		*s = StatusOther
	default:
		return fmt.Errorf("unknown file status %q", text)
	}
	return nil
}

// StatusFromCode maps a name-status letter (with an optional similarity score,
// e.g. "R087") to a Status.
func StatusFromCode(code string) Status {
	code = strings.TrimSpace(code)
	if code == "" {
		return StatusOther
	}
	switch code[0] {
	case 'A':
		return StatusAdded
	case 'D':
		return StatusDeleted
	case 'M':
		return StatusModified
	case 'R':
		return StatusRenamed
	default:
		return StatusOther
	}
}

type Stats struct {
	Additions uint `json:"additions"`
	Deletions uint `json:"deletions"`
}

func (s Stats) Add(other Stats) Stats {
	return Stats{Additions: s.Additions + other.Additions, Deletions: s.Deletions + other.Deletions}
}

type FileStat struct {
	Path string `json:"path"`
	Stats
}

type NumStat struct {
	Files []FileStat
	Total Stats
}

type FileChange struct {
	Path      string `json:"path"`
	OldPath   string `json:"old_path,omitempty"`
	Status    Status `json:"status"`
	Additions uint   `json:"additions"`
	Deletions uint   `json:"deletions"`
}

// ParseNumStat parses "<additions>\t<deletions>\t<path>" lines. Files keep
// their input order and Total sums every entry.
func ParseNumStat(out string) NumStat {
	var res NumStat
	for line := range lines(out) {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 3 {
			continue
		}
		path := unquotePath(parts[2])
		if path == "" {
			continue
		}
		st := Stats{Additions: parseCount(parts[0]), Deletions: parseCount(parts[1])}
		res.Files = append(res.Files, FileStat{Path: path, Stats: st})
		res.Total = res.Total.Add(st)
	}
	return res
}

// ParseNameStatus parses "<status>\t<path>" lines, and
// "<status>\t<old-path>\t<new-path>" lines for renames and copies.
func ParseNameStatus(out string) []FileChange {
	var changes []FileChange
	for line := range lines(out) {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		code := strings.TrimSpace(parts[0])
		change := FileChange{Status: StatusFromCode(code)}
		if len(parts) >= 3 && code != "" && (code[0] == 'R' || code[0] == 'C') {
			change.OldPath = unquotePath(parts[1])
			change.Path = unquotePath(parts[2])
		} else {
			change.Path = unquotePath(parts[1])
		}
		if change.Path == "" {
			continue
		}
		if change.Status != StatusRenamed {
			change.OldPath = ""
		}
		changes = append(changes, change)
	}
	return changes
}

func lines(out string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for raw := range strings.SplitSeq(out, "\n") {
			line := strings.TrimRight(raw, " \r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

func parseCount(field string) uint {
	n, err := strconv.ParseUint(strings.TrimSpace(field), 10, 0)
	if err != nil {
		return 0
	}
	return uint(n)
}

// unquotePath undoes git's C-style quoting of unusual path names.
func unquotePath(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, `"`) {
		if decoded, err := strconv.Unquote(path); err == nil {
			return decoded
		}
	}
	return path
}
