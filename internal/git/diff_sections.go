package git

import (
	"strconv"
	"strings"
)

// parseGitDiffSections indexes every "diff --git" header of a patch by its
// 1-based line number.
func parseGitDiffSections(diffText string) []FileSection {
	var sections []FileSection
	lineNo := 0
	for line := range strings.Lines(diffText) {
		lineNo++
		if path, ok := DiffHeaderPath(line); ok && path != "" {
			sections = append(sections, FileSection{Path: path, Line: lineNo})
		}
	}
	return sections
}

// DiffHeaderPath reports whether line is a "diff --git" header and, if so,
// the post-image path it names.
func DiffHeaderPath(line string) (string, bool) {
	header, ok := strings.CutPrefix(line, "diff --git ")
	if !ok {
		return "", false
	}
	return diffHeaderPath(strings.TrimRight(header, "\r\n")), true
}

// diffHeaderPath returns the post-image path of "a/<old> b/<new>". Git
// quotes paths with special characters C style.
func diffHeaderPath(header string) string {
	if strings.HasSuffix(header, `"`) {
		i := strings.LastIndex(header[:len(header)-1], `"`)
		if i < 0 {
			return ""
		}
		p, err := strconv.Unquote(header[i:])
		if err != nil {
			return ""
		}
		return strings.TrimPrefix(p, "b/")
	}
	if i := strings.LastIndex(header, " b/"); i >= 0 {
		return header[i+len(" b/"):]
	}
	return ""
}
