package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/gometr/gometr/internal/ptree"
)

// RenderTree writes a parameter tree with box-drawing connectors. Leaf lines
// carry the node type and any choices, range, and units.
func RenderTree(w io.Writer, root *ptree.Node, noColor bool) {
	group := color.New(color.Bold, color.FgCyan)
	leaf := color.New(color.FgWhite)
	meta := color.New(color.FgHiBlack)
	if noColor {
		group.DisableColor()
		leaf.DisableColor()
		meta.DisableColor()
	}

	group.Fprintln(w, root.Name)
	renderChildren(w, root.Children, "", group, leaf, meta)
}

func renderChildren(w io.Writer, nodes []*ptree.Node, prefix string, group, leaf, meta *color.Color) {
	for i, node := range nodes {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(nodes)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}

		fmt.Fprint(w, prefix+connector)
		if node.Type == ptree.Group {
			group.Fprintln(w, node.Name)
			renderChildren(w, node.Children, childPrefix, group, leaf, meta)
			continue
		}

		leaf.Fprint(w, node.Name)
		meta.Fprintln(w, leafAnnotation(node))
	}
}

func leafAnnotation(node *ptree.Node) string {
	var parts []string
	parts = append(parts, node.Type.String())

	if len(node.Choices) > 0 {
		parts = append(parts, "{"+strings.Join(node.Choices, "|")+"}")
	}
	if node.Range != nil {
		parts = append(parts, fmt.Sprintf("[%g, %g]", node.Range.Min, node.Range.Max))
	}
	if node.Units != "" {
		parts = append(parts, node.Units)
	}
	if node.ReadOnly {
		parts = append(parts, "read-only")
	}
	return "  (" + strings.Join(parts, " ") + ")"
}
