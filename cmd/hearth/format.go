package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zulandar/hearth/internal/telegraph"
)

// renderEvent prints a formatted chat event as plain text.
func renderEvent(out io.Writer, ev telegraph.FormattedEvent) {
	fmt.Fprintln(out, ev.Title)
	if ev.Body != "" {
		for _, line := range strings.Split(ev.Body, "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	width := 0
	for _, f := range ev.Fields {
		if len(f.Name) > width {
			width = len(f.Name)
		}
	}
	for _, f := range ev.Fields {
		fmt.Fprintf(out, "  %-*s  %s\n", width+1, f.Name+":", f.Value)
	}
}

// formatAge renders a duration the way the queue listing shows it: "45s",
// "12m", "3h", "2d".
func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// truncate shortens s to maxLen runes, marking the cut with "~".
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-1]) + "~"
}
