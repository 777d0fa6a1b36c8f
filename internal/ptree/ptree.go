// Package ptree projects driver metadata into a generic ordered tree of
// named, typed nodes. The projection is pure: it never talks to an
// instrument, and the same metadata always yields the same tree. UI layers
// (CLI renderer, HTTP API) consume this tree and use each leaf's Path with
// the path resolver to read or write the live value.
package ptree

import (
	"fmt"

	"github.com/gometr/gometr/internal/driver/metadata"
)

// NodeType classifies a tree node
type NodeType int

const (
	// Group is an interior node with children and no value
	Group NodeType = iota
	// Enum is a leaf with a fixed choice list
	Enum
	// Numeric is a leaf holding a number, optionally bounded
	Numeric
	// Bool is a boolean leaf
	Bool
	// Text is a free-form string leaf
	Text
	// Action is a leaf representing a fetch operation (data blocks), not a
	// settable value
	Action
)

var nodeTypeNames = map[NodeType]string{
	Group:   "group",
	Enum:    "enum",
	Numeric: "numeric",
	Bool:    "bool",
	Text:    "text",
	Action:  "action",
}

// String returns the node type name
func (t NodeType) String() string {
	if name, ok := nodeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler for JSON output
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Node is one node of the parameter tree
type Node struct {
	Name string   `json:"name"`
	Type NodeType `json:"type"`
	// Path is the property path addressing this leaf on a live instrument
	// (e.g. "channel[2].probe"). Empty for groups and for the Sources
	// group, which UI layers handle specially.
	Path     string          `json:"path,omitempty"`
	Choices  []string        `json:"choices,omitempty"`
	Range    *metadata.Range `json:"range,omitempty"`
	ReadOnly bool            `json:"read_only,omitempty"`
	Doc      string          `json:"doc,omitempty"`
	Units    string          `json:"units,omitempty"`
	Children []*Node         `json:"children,omitempty"`
}

// Build projects driver metadata into a parameter tree rooted at a group
// named after the instrument class.
func Build(d *metadata.DriverMetadata) *Node {
	root := &Node{Name: d.Name, Type: Group}

	if len(d.Sources) > 0 {
		sources := &Node{Name: "Sources", Type: Group}
		for _, src := range d.Sources {
			sources.Children = append(sources.Children, &Node{Name: src, Type: Bool})
		}
		root.Children = append(root.Children, sources)
	}

	for _, sub := range d.Subsystems {
		root.Children = append(root.Children, buildSubsystem(sub))
	}

	return root
}

// buildSubsystem builds the group for one subsystem. An indexed subsystem
// gets one child group per instance, each carrying the same property set as
// the un-indexed template; path indices are 1-based per the property path
// grammar.
func buildSubsystem(sub *metadata.SubsystemMetadata) *Node {
	group := &Node{Name: sub.Name, Type: Group}

	if !sub.NeedsIndexing {
		for i := range sub.Properties {
			path := fmt.Sprintf("%s.%s", sub.Attr, sub.Properties[i].Name)
			group.Children = append(group.Children, buildLeaf(&sub.Properties[i], path))
		}
		return group
	}

	for idx := 1; idx <= sub.InstanceCount; idx++ {
		instance := &Node{
			Name: fmt.Sprintf("%s%d", sub.Name, idx),
			Type: Group,
		}
		for i := range sub.Properties {
			path := fmt.Sprintf("%s[%d].%s", sub.Attr, idx, sub.Properties[i].Name)
			instance.Children = append(instance.Children, buildLeaf(&sub.Properties[i], path))
		}
		group.Children = append(group.Children, instance)
	}
	return group
}

func buildLeaf(prop *metadata.PropertyMetadata, path string) *Node {
	node := &Node{
		Name:     prop.Name,
		Path:     path,
		ReadOnly: !prop.Access.CanWrite(),
		Doc:      prop.Doc,
		Units:    prop.Units,
	}

	switch prop.Kind {
	case metadata.KindSelect:
		node.Type = Enum
		node.Choices = prop.Choices
	case metadata.KindValue:
		node.Type = Numeric
		node.Range = prop.Range
	case metadata.KindSwitch:
		node.Type = Bool
	case metadata.KindString:
		node.Type = Text
	case metadata.KindData:
		node.Type = Action
		node.ReadOnly = true
	}
	return node
}

// Walk visits every node in depth-first order. The walk stops early if fn
// returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Leaves returns every leaf node in tree order
func (n *Node) Leaves() []*Node {
	var leaves []*Node
	n.Walk(func(node *Node) bool {
		if node.Type != Group {
			leaves = append(leaves, node)
		}
		return true
	})
	return leaves
}

// FindPath returns the leaf carrying the given property path, or nil
func (n *Node) FindPath(path string) *Node {
	var found *Node
	n.Walk(func(node *Node) bool {
		if node.Path == path {
			found = node
			return false
		}
		return true
	})
	return found
}
