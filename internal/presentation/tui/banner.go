package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the switchyard banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  ___        _ _      _                     _ ", "#818cf8"},
		{" / __|_ __ _(_) |_ __| |_ _  _ __ _ _ _ __| |", "#a78bfa"},
		{" \\__ \\ V  V / |  _/ _| ' \\ || / _` | '_/ _` |", "#c084fc"},
		{" |___/\\_/\\_/|_|\\__\\__|_||_\\_, \\__,_|_| \\__,_|", "#e879f9"},
		{"                          |__/               ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}

// Highlight renders s in the accent color when the terminal supports it.
func Highlight(s string) string {
	p := termenv.ColorProfile()
	return termenv.String(s).Foreground(p.Color("#fbc02d")).Bold().String()
}
