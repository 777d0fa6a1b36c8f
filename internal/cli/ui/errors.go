package ui

import (
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a rendered message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Notice is a standardized CLI message: a headline, optional detail lines,
// optional "did you mean" suggestions, and follow-up commands.
type Notice struct {
	Level        Level
	Context      string
	Problem      string
	Details      []string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// Format renders the notice
func (n Notice) Format() string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string
	switch n.Level {
	case LevelError:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "✗"
	case LevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠"
	case LevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ"
	}
	if n.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if n.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(n.Context), n.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, n.Problem)
	}

	for _, detail := range n.Details {
		bodyColor.Fprintf(&b, "   %s\n", detail)
	}

	if len(n.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if n.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(n.Suggestions, ", "))
	}

	if len(n.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if n.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range n.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// Print writes the notice to w
func (n Notice) Print(w io.Writer) {
	io.WriteString(w, n.Format())
}

// NotFound builds the standard unknown-name error with fuzzy suggestions
// drawn from known.
func NotFound(kind, name string, known []string, helpCommands ...string) Notice {
	return Notice{
		Level:        LevelError,
		Context:      kind + " not found",
		Problem:      name,
		Suggestions:  FindSimilar(name, known),
		HelpCommands: helpCommands,
	}
}
