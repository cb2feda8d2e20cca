// Package render prints unified diffs to a terminal with ANSI colors and
// chroma syntax highlighting.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/thiagokokada/gitk-compare/internal/git"
)

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
)

type Options struct {
	Palette Palette
	// Syntax enables per-token colors on added, removed and context lines.
	Syntax bool
	// Color false writes the diff unchanged.
	Color bool
}

// Diff writes diff to w, one terminal line per diff line.
func Diff(w io.Writer, diff string, opts Options) error {
	bw := bufio.NewWriter(w)
	if !opts.Color {
		if _, err := bw.WriteString(diff); err != nil {
			return err
		}
		return bw.Flush()
	}
	var style *chroma.Style
	if opts.Syntax {
		style = styleForPalette(opts.Palette)
	}
	var lexer chroma.Lexer
	for line := range strings.Lines(diff) {
		text := strings.TrimRight(line, "\r\n")
		if path, ok := git.DiffHeaderPath(text); ok {
			lexer = nil
			if style != nil && path != "" {
				lexer = lexerForPath(path)
			}
			writeHeader(bw, text, opts.Palette)
			bw.WriteByte('\n')
			continue
		}
		switch {
		case isFileHeader(text):
			writeHeader(bw, text, opts.Palette)
		case strings.HasPrefix(text, "@@"):
			bw.WriteString(fg(opts.Palette.DiffHunk) + text + ansiReset)
		default:
			writeCodeLine(bw, text, opts.Palette, lexer, style)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeHeader(bw *bufio.Writer, text string, p Palette) {
	bw.WriteString(ansiBold + bg(p.DiffHeader) + text + ansiReset)
}

func isFileHeader(line string) bool {
	for _, prefix := range []string{"--- ", "+++ ", "index ", "new file mode", "deleted file mode", "old mode", "new mode", "similarity index", "rename from", "rename to", "Binary files"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func writeCodeLine(bw *bufio.Writer, line string, p Palette, lexer chroma.Lexer, style *chroma.Style) {
	code, ok := diffLineCode(line)
	if !ok {
		bw.WriteString(line)
		return
	}
	lineBg := ""
	switch line[0] {
	case '+':
		lineBg = bg(p.DiffAdd)
	case '-':
		lineBg = bg(p.DiffDel)
	}
	bw.WriteString(lineBg + line[:1])
	if lexer == nil || style == nil {
		bw.WriteString(code + ansiReset)
		return
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		bw.WriteString(code + ansiReset)
		return
	}
	for _, token := range iterator.Tokens() {
		value := strings.TrimRight(token.Value, "\n")
		if value == "" {
			continue
		}
		if entry := style.Get(token.Type); entry.Colour.IsSet() {
			bw.WriteString(fg(entry.Colour) + value + ansiReset + lineBg)
			continue
		}
		bw.WriteString(value)
	}
	bw.WriteString(ansiReset)
}

// diffLineCode strips the one-column marker of an added, removed or context
// line.
func diffLineCode(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	switch line[0] {
	case '+', '-', ' ':
		return line[1:], true
	default:
		return "", false
	}
}

func styleForPalette(p Palette) *chroma.Style {
	if st := styles.Get(p.StyleName); st != nil {
		return st
	}
	return styles.Fallback
}

func lexerForPath(path string) chroma.Lexer {
	lexer := lexers.Match(path)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

func fg(c chroma.Colour) string {
	if !c.IsSet() {
		return ""
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm", c.Red(), c.Green(), c.Blue())
}

func bg(c chroma.Colour) string {
	if !c.IsSet() {
		return ""
	}
	return fmt.Sprintf("\x1b[48;2;%d;%d;%dm", c.Red(), c.Green(), c.Blue())
}
