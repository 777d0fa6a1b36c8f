package scpi

import (
	"fmt"
	"strings"
)

// Sources tracks which of an instrument's data sources are active. Source
// names come from driver metadata; activation is pure client-side state
// consumed when formatting source commands.
type Sources struct {
	names  []string
	active map[string]bool
}

func newSources(names []string) *Sources {
	return &Sources{
		names:  append([]string(nil), names...),
		active: make(map[string]bool, len(names)),
	}
}

// Names returns all declared source names in driver order
func (s *Sources) Names() []string {
	return append([]string(nil), s.names...)
}

// Active returns the active source names in driver order
func (s *Sources) Active() []string {
	var out []string
	for _, name := range s.names {
		if s.active[name] {
			out = append(out, name)
		}
	}
	return out
}

// SetActive replaces the active set. Unknown names are rejected.
func (s *Sources) SetActive(names []string) error {
	next := make(map[string]bool, len(names))
	for _, name := range names {
		canonical, ok := s.canonical(name)
		if !ok {
			return fmt.Errorf("unknown source %q (have %s)", name, strings.Join(s.names, ", "))
		}
		next[canonical] = true
	}
	s.active = next
	return nil
}

// Toggle flips one source's active state and reports the new state
func (s *Sources) Toggle(name string) (bool, error) {
	canonical, ok := s.canonical(name)
	if !ok {
		return false, fmt.Errorf("unknown source %q (have %s)", name, strings.Join(s.names, ", "))
	}
	s.active[canonical] = !s.active[canonical]
	return s.active[canonical], nil
}

// Format expands a source-command template against the active sources.
// A "{}" placeholder receives the comma-joined active list; a template
// without a placeholder is returned unchanged.
func (s *Sources) Format(template string) string {
	if !strings.Contains(template, "{}") {
		return template
	}
	return strings.ReplaceAll(template, "{}", strings.Join(s.Active(), ", "))
}

func (s *Sources) canonical(name string) (string, bool) {
	for _, n := range s.names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}
