package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var styles = newPalette("#7D56F4", "#04B575", "#FFA500", "#626262")

// palette is a small stylesheet for command output.
type palette struct {
	label lipgloss.Style
	match lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
}

func newPalette(label, match, warn, muted string) *palette {
	return &palette{
		label: newBold(label),
		match: newBold(match).Underline(true),
		warn:  newStyle(warn),
		muted: newStyle(muted).Italic(true),
	}
}

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}

// highlight renders the bytes of s at the given offsets in the match style.
func (p *palette) highlight(s string, offsets []int) string {
	if len(offsets) == 0 {
		return s
	}
	matched := make(map[int]bool, len(offsets))
	for _, i := range offsets {
		matched[i] = true
	}

	var b strings.Builder
	for i, ch := range s {
		if matched[i] {
			b.WriteString(p.match.Render(string(ch)))
		} else {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
