package main

import (
	"io"

	"github.com/fatih/color"

	"leadline/internal/kanban"
)

// colorNotifier prints board notifications as colored one-liners.
type colorNotifier struct {
	out     io.Writer
	success *color.Color
	failure *color.Color
	info    *color.Color
}

func newColorNotifier(out io.Writer) colorNotifier {
	return colorNotifier{
		out:     out,
		success: color.New(color.FgGreen, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
		info:    color.New(color.FgCyan),
	}
}

func (n colorNotifier) Notify(note kanban.Notification) {
	c := n.info
	switch note.Level {
	case kanban.LevelSuccess:
		c = n.success
	case kanban.LevelError:
		c = n.failure
	}
	c.Fprint(n.out, note.Title)
	if note.Detail != "" {
		io.WriteString(n.out, ": "+note.Detail)
	}
	io.WriteString(n.out, "\n")
}
