package scpi

import (
	"strings"

	"github.com/gometr/gometr/internal/driver/metadata"
)

// Instrument is the live object graph for one connected instrument: every
// subsystem the driver declares, materialized against one session. The
// graph implements the resolver's Object interface, so property paths like
// "channel[1].probe" traverse it directly.
type Instrument struct {
	meta    *metadata.DriverMetadata
	session *Session
	sources *Sources

	// attrs maps lowercased attribute names to either *Subsystem or
	// []*Subsystem (indexed subsystems).
	attrs map[string]any
}

// Build materializes the live object graph for a driver against a session.
// Indexed subsystems become a slice with one instance per declared count;
// instance command prefixes carry the 1-based SCPI suffix.
func Build(meta *metadata.DriverMetadata, session *Session) *Instrument {
	inst := &Instrument{
		meta:    meta,
		session: session,
		sources: newSources(meta.Sources),
		attrs:   make(map[string]any, len(meta.Subsystems)),
	}

	for _, sub := range meta.Subsystems {
		if !sub.NeedsIndexing {
			inst.attrs[strings.ToLower(sub.Attr)] = newSubsystem(sub, session, 0)
			continue
		}
		instances := make([]*Subsystem, sub.InstanceCount)
		for i := range instances {
			instances[i] = newSubsystem(sub, session, i+1)
		}
		inst.attrs[strings.ToLower(sub.Attr)] = instances
	}
	return inst
}

// Metadata returns the driver metadata the instrument was built from
func (i *Instrument) Metadata() *metadata.DriverMetadata { return i.meta }

// Session returns the underlying session
func (i *Instrument) Session() *Session { return i.session }

// Sources returns the instrument's source activation state
func (i *Instrument) Sources() *Sources { return i.sources }

// Subsystem returns the live subsystem bound to the given attribute. For
// indexed subsystems index is 1-based; for un-indexed subsystems it is
// ignored.
func (i *Instrument) Subsystem(attr string, index int) *Subsystem {
	switch v := i.attrs[strings.ToLower(attr)].(type) {
	case *Subsystem:
		return v
	case []*Subsystem:
		if index < 1 || index > len(v) {
			return nil
		}
		return v[index-1]
	}
	return nil
}

// Attr implements the resolver's attribute access over subsystem bindings
func (i *Instrument) Attr(name string) (any, bool, error) {
	v, ok := i.attrs[strings.ToLower(name)]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}
