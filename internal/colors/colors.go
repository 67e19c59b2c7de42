// Package colors provides centralized color output with TTY-aware defaults.
//
// Colors are automatically disabled when stdout is not a terminal (piped or
// redirected to a file). This behavior is provided by the underlying fatih/color
// library and respected by default. Use Init() to override based on CLI flags.
package colors

import "github.com/fatih/color"

// Init allows overriding the auto-detected color setting.
//
//   - forceColor == nil: keep auto-detected value (recommended default)
//   - forceColor == true: force colors on (e.g., --color flag)
//   - forceColor == false: force colors off (e.g., --no-color flag)
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// FromFlags resolves the --color/--no-color pair into the argument for Init.
// --no-color wins when both are set.
func FromFlags(forceOn, forceOff bool) *bool {
	switch {
	case forceOff:
		off := false
		return &off
	case forceOn:
		on := true
		return &on
	}
	return nil
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

// New creates a color with custom attributes.
func New(attrs ...color.Attribute) *color.Color {
	return color.New(attrs...)
}

func Bold() *color.Color  { return color.New(color.Bold) }
func Faint() *color.Color { return color.New(color.Faint) }

func Red() *color.Color    { return color.New(color.FgRed) }
func Green() *color.Color  { return color.New(color.FgGreen) }
func Yellow() *color.Color { return color.New(color.FgYellow) }
func Blue() *color.Color   { return color.New(color.FgBlue) }
func Cyan() *color.Color   { return color.New(color.FgCyan) }

func BoldWhite() *color.Color { return color.New(color.Bold, color.FgWhite) }
func FaintWhite() *color.Color {
	return color.New(color.Faint, color.FgWhite)
}
