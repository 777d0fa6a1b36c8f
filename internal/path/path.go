// Package path implements property paths: dotted, optionally indexed
// strings addressing a property inside a live instrument object graph,
// e.g. "channel[1].probe".
//
// Grammar:
//
//	path    = segment ('.' segment)*
//	segment = identifier ('[' integer ']')?
//
// Index convention: path indices are 1-based, matching SCPI's user-facing
// numbering (:CHANnel1 is channel[1]). The resolver converts to 0-based
// storage exactly once, at element access. This is a deliberate, contract-
// level convention, not an off-by-one: see the IndexOutOfRangeError tests.
package path

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one component of a parsed property path
type Segment struct {
	Name     string
	Index    int // 1-based, as written in the path
	HasIndex bool
}

// String renders the segment in path syntax
func (s Segment) String() string {
	if s.HasIndex {
		return fmt.Sprintf("%s[%d]", s.Name, s.Index)
	}
	return s.Name
}

// Path is a parsed property path
type Path struct {
	raw      string
	segments []Segment
}

// String returns the original path text
func (p Path) String() string { return p.raw }

// Segments returns the parsed segments in order
func (p Path) Segments() []Segment { return p.segments }

// Parse parses a property path string
func Parse(raw string) (Path, error) {
	if strings.TrimSpace(raw) == "" {
		return Path{}, &SyntaxError{Path: raw, Message: "empty path"}
	}

	parts := strings.Split(raw, ".")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(raw, part)
		if err != nil {
			return Path{}, err
		}
		segments = append(segments, seg)
	}
	return Path{raw: raw, segments: segments}, nil
}

func parseSegment(raw, part string) (Segment, error) {
	if part == "" {
		return Segment{}, &SyntaxError{Path: raw, Message: "empty segment"}
	}

	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.ContainsAny(part, "]") {
			return Segment{}, &SyntaxError{Path: raw, Message: fmt.Sprintf("unbalanced ']' in segment %q", part)}
		}
		if !isIdentifier(part) {
			return Segment{}, &SyntaxError{Path: raw, Message: fmt.Sprintf("invalid identifier %q", part)}
		}
		return Segment{Name: part}, nil
	}

	if !strings.HasSuffix(part, "]") {
		return Segment{}, &SyntaxError{Path: raw, Message: fmt.Sprintf("unterminated index in segment %q", part)}
	}
	name := part[:open]
	if !isIdentifier(name) {
		return Segment{}, &SyntaxError{Path: raw, Message: fmt.Sprintf("invalid identifier %q", name)}
	}
	idxText := part[open+1 : len(part)-1]
	idx, err := strconv.Atoi(idxText)
	if err != nil {
		return Segment{}, &SyntaxError{Path: raw, Message: fmt.Sprintf("invalid index %q in segment %q", idxText, part)}
	}
	return Segment{Name: name, Index: idx, HasIndex: true}, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
