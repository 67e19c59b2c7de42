package colors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestInit_ForceOn(t *testing.T) {
	// Save and restore original state
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = true
	forceOn := true
	Init(&forceOn)

	if color.NoColor {
		t.Error("expected colors enabled when Init(true)")
	}
	if !Enabled() {
		t.Error("Enabled() should return true")
	}
}

func TestInit_ForceOff(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = false
	forceOff := false
	Init(&forceOff)

	if !color.NoColor {
		t.Error("expected colors disabled when Init(false)")
	}
	if Enabled() {
		t.Error("Enabled() should return false")
	}
}

func TestInit_Nil_KeepsExisting(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	for _, noColor := range []bool{false, true} {
		color.NoColor = noColor
		Init(nil)
		if color.NoColor != noColor {
			t.Errorf("Init(nil) changed NoColor from %v", noColor)
		}
	}
}

func TestFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		on, off bool
		want    *bool
	}{
		{"neither", false, false, nil},
		{"color", true, false, &[]bool{true}[0]},
		{"no-color", false, true, &[]bool{false}[0]},
		{"both", true, true, &[]bool{false}[0]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromFlags(tt.on, tt.off)
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("FromFlags(%v, %v) = %v, want %v", tt.on, tt.off, got, tt.want)
			}
		})
	}
}

func TestColorOutput(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = false
	if result := Cyan().Sprint("eax"); !strings.Contains(result, "\x1b[") {
		t.Errorf("expected ANSI codes when colors enabled, got: %q", result)
	}

	color.NoColor = true
	if result := Cyan().Sprint("eax"); result != "eax" {
		t.Errorf("expected plain 'eax', got: %q", result)
	}
}

func TestAllConstructors(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = false

	constructors := []struct {
		name string
		fn   func() *color.Color
	}{
		{"Bold", Bold},
		{"Faint", Faint},
		{"Red", Red},
		{"Green", Green},
		{"Yellow", Yellow},
		{"Blue", Blue},
		{"Cyan", Cyan},
		{"BoldWhite", BoldWhite},
		{"FaintWhite", FaintWhite},
	}

	for _, tc := range constructors {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.fn()
			if c == nil {
				t.Fatalf("%s() returned nil", tc.name)
			}
			if c.Sprint("x") == "" {
				t.Errorf("%s().Sprint() returned empty", tc.name)
			}
		})
	}

	if c := New(color.Bold, color.FgRed); !strings.Contains(c.Sprint("x"), "\x1b[") {
		t.Error("New() color should produce ANSI codes")
	}
}
