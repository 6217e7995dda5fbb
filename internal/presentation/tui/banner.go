package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the relay banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   ____      _             ", "#818cf8"},
		{"  |  _ \\ ___| | __ _ _   _ ", "#a78bfa"},
		{"  | |_) / _ \\ |/ _` | | | |", "#c084fc"},
		{"  |  _ <  __/ | (_| | |_| |", "#e879f9"},
		{"  |_| \\_\\___|_|\\__,_|\\__, |", "#f472b6"},
		{"                     |___/ ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Dim renders secondary text such as routing details.
func Dim(text string) string {
	return termenv.String(text).Faint().String()
}
