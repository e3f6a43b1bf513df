package prefs

import "fmt"

// ColorTheme is the accent colour chosen by the user.
type ColorTheme string

const (
	ThemeBlue   ColorTheme = "blue"
	ThemePurple ColorTheme = "purple"
	ThemeGreen  ColorTheme = "green"
	ThemeRed    ColorTheme = "red"
	ThemeOrange ColorTheme = "orange"
)

// Themes lists the selectable themes in menu order.
var Themes = []ColorTheme{ThemeBlue, ThemePurple, ThemeGreen, ThemeRed, ThemeOrange}

// Palette holds HSL component strings ("217 91% 60%") for the UI's style
// variables.
type Palette struct {
	Primary       string `json:"primary"`
	PrimaryDark   string `json:"primary_dark"`
	Secondary     string `json:"secondary"`
	SecondaryDark string `json:"secondary_dark"`
	Accent        string `json:"accent"`
	AccentDark    string `json:"accent_dark"`
}

// ParseColorTheme validates a theme name.
func ParseColorTheme(s string) (ColorTheme, error) {
	for _, t := range Themes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("prefs: unknown color theme %q", s)
}

var palettes = map[ColorTheme]Palette{
	ThemeBlue:   {"217 91% 60%", "217 91% 50%", "217 91% 95%", "217 91% 15%", "217 91% 85%", "217 91% 25%"},
	ThemePurple: {"262 83% 58%", "262 83% 48%", "262 83% 95%", "262 83% 15%", "262 83% 85%", "262 83% 25%"},
	ThemeGreen:  {"142 76% 36%", "142 76% 26%", "142 76% 95%", "142 76% 15%", "142 76% 85%", "142 76% 25%"},
	ThemeRed:    {"0 84% 60%", "0 84% 50%", "0 84% 95%", "0 84% 15%", "0 84% 85%", "0 84% 25%"},
	ThemeOrange: {"25 95% 53%", "25 95% 43%", "25 95% 95%", "25 95% 15%", "25 95% 85%", "25 95% 25%"},
}

// PaletteFor maps a theme to its palette. Unknown themes get the blue one.
func PaletteFor(t ColorTheme) Palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[ThemeBlue]
}

// CSSVariables renders the palette as the UI's custom properties.
func (p Palette) CSSVariables() map[string]string {
	return map[string]string{
		"--theme-primary":        p.Primary,
		"--theme-primary-dark":   p.PrimaryDark,
		"--theme-secondary":      p.Secondary,
		"--theme-secondary-dark": p.SecondaryDark,
		"--theme-accent":         p.Accent,
		"--theme-accent-dark":    p.AccentDark,
	}
}
