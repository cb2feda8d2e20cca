package render

import (
	"log/slog"
	"strings"

	"github.com/alecthomas/chroma/v2"
	darkmode "github.com/thiagokokada/dark-mode-go"
)

type ThemePreference int

const (
	ThemeAuto ThemePreference = iota
	ThemeLight
	ThemeDark
)

func (p ThemePreference) String() string {
	switch p {
	case ThemeLight:
		return "light"
	case ThemeDark:
		return "dark"
	default:
		return "auto"
	}
}

func ThemePreferenceFromString(raw string) ThemePreference {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ThemeDark.String():
		return ThemeDark
	case ThemeLight.String():
		return ThemeLight
	default:
		return ThemeAuto
	}
}

// Palette holds the diff colors of one terminal theme.
type Palette struct {
	Dark       bool
	StyleName  string
	DiffAdd    chroma.Colour
	DiffDel    chroma.Colour
	DiffHeader chroma.Colour
	DiffHunk   chroma.Colour
}

var (
	lightPalette = Palette{
		StyleName:  "github",
		DiffAdd:    chroma.MustParseColour("#dff5de"),
		DiffDel:    chroma.MustParseColour("#f9d6d5"),
		DiffHeader: chroma.MustParseColour("#e4e4e4"),
		DiffHunk:   chroma.MustParseColour("#6f42c1"),
	}
	darkPalette = Palette{
		Dark:       true,
		StyleName:  "github-dark",
		DiffAdd:    chroma.MustParseColour("#1f3d2b"),
		DiffDel:    chroma.MustParseColour("#3d1f29"),
		DiffHeader: chroma.MustParseColour("#2f2f2f"),
		DiffHunk:   chroma.MustParseColour("#d2a8ff"),
	}
	detectDarkMode = darkmode.IsDarkMode
)

// PaletteFor picks the palette of pref, asking the desktop for its color
// scheme when pref is ThemeAuto.
func PaletteFor(pref ThemePreference) Palette {
	switch pref {
	case ThemeDark:
		return darkPalette
	case ThemeLight:
		return lightPalette
	default:
		if detectDarkMode != nil {
			dark, err := detectDarkMode()
			if err != nil {
				slog.Debug("detect dark-mode", slog.Any("error", err))
				return lightPalette
			}
			if dark {
				return darkPalette
			}
		}
		return lightPalette
	}
}
