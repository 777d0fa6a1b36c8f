package scpi

import (
	"fmt"
	"strings"

	"github.com/gometr/gometr/internal/driver/metadata"
)

// Subsystem is one live subsystem instance. For indexed subsystems the
// index is baked into the command prefix at build time (":CHANnel" with
// index 2 becomes ":CHANnel2"), matching SCPI's 1-based instrument-facing
// numbering.
type Subsystem struct {
	meta    *metadata.SubsystemMetadata
	prefix  string
	session *Session
	props   map[string]*Property
}

func newSubsystem(meta *metadata.SubsystemMetadata, session *Session, index int) *Subsystem {
	prefix := meta.Prefix
	if index > 0 {
		prefix = fmt.Sprintf("%s%d", prefix, index)
	}

	sub := &Subsystem{
		meta:    meta,
		prefix:  prefix,
		session: session,
		props:   make(map[string]*Property, len(meta.Properties)),
	}
	for i := range meta.Properties {
		p := &meta.Properties[i]
		sub.props[strings.ToLower(p.Name)] = &Property{
			meta:    p,
			cmd:     prefix + p.Cmd,
			session: session,
		}
	}

	// Data transfers decode per the subsystem's format selector when the
	// driver declares one (waveform.format with ASCII/BYTE/WORD choices).
	if format, ok := sub.props["format"]; ok && format.meta.Kind == metadata.KindSelect {
		for _, p := range sub.props {
			if p.meta.Kind == metadata.KindData {
				p.format = format
			}
		}
	}
	return sub
}

// Metadata returns the subsystem's metadata
func (s *Subsystem) Metadata() *metadata.SubsystemMetadata { return s.meta }

// Prefix returns the cascaded command prefix including any instance index
func (s *Subsystem) Prefix() string { return s.prefix }

// Property returns the named property, or nil
func (s *Subsystem) Property(name string) *Property {
	return s.props[strings.ToLower(name)]
}

// Attr implements the resolver's attribute access: reading a property name
// performs the SCPI query and returns the converted value.
func (s *Subsystem) Attr(name string) (any, bool, error) {
	prop := s.Property(name)
	if prop == nil {
		return nil, false, nil
	}
	value, err := prop.Get()
	if err != nil {
		return nil, true, err
	}
	return value, true, nil
}

// SetAttr implements the resolver's attribute assignment: writing a
// property name validates the value and issues the SCPI command.
func (s *Subsystem) SetAttr(name string, value any) error {
	prop := s.Property(name)
	if prop == nil {
		return fmt.Errorf("subsystem %s has no property %q", s.meta.Name, name)
	}
	return prop.Set(value)
}
