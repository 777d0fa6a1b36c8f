// Package metadata extracts and models instrument driver metadata. The
// extractor walks a parsed driver AST and produces a DriverMetadata value
// without executing any driver code.
package metadata

import "fmt"

// PropertyKind classifies an exposed instrument property
type PropertyKind int

const (
	// KindSelect is a selectable-enum property with a fixed choice list
	KindSelect PropertyKind = iota
	// KindValue is a bounded-numeric property
	KindValue
	// KindSwitch is a boolean ON/OFF property
	KindSwitch
	// KindString is a free-form string property
	KindString
	// KindData is a read-only data block (trace/waveform fetch)
	KindData
)

var kindNames = map[PropertyKind]string{
	KindSelect: "select",
	KindValue:  "value",
	KindSwitch: "switch",
	KindString: "string",
	KindData:   "data",
}

// String returns the canonical name of the property kind
func (k PropertyKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("PropertyKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler for JSON output
func (k PropertyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *PropertyKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown property kind %q", text)
}

// Access describes whether a property can be read, written, or both
type Access int

const (
	// AccessReadWrite allows both query and command
	AccessReadWrite Access = iota
	// AccessRead allows query only
	AccessRead
	// AccessWrite allows command only
	AccessWrite
)

var accessNames = map[Access]string{
	AccessReadWrite: "read-write",
	AccessRead:      "read",
	AccessWrite:     "write",
}

// String returns the canonical access spelling used in driver sources
func (a Access) String() string {
	if name, ok := accessNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Access(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler for JSON output
func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Access) UnmarshalText(text []byte) error {
	for acc, name := range accessNames {
		if name == string(text) {
			*a = acc
			return nil
		}
	}
	return fmt.Errorf("unknown access %q", text)
}

// CanRead reports whether the property supports queries
func (a Access) CanRead() bool { return a == AccessRead || a == AccessReadWrite }

// CanWrite reports whether the property supports commands
func (a Access) CanWrite() bool { return a == AccessWrite || a == AccessReadWrite }

// Range is an inclusive numeric bound for value properties
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the inclusive bounds
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// PropertyMetadata describes one exposed instrument property.
// Choices is populated iff Kind is KindSelect; Range iff Kind is KindValue
// and the driver declared bounds.
type PropertyMetadata struct {
	Name    string       `json:"name"`
	Kind    PropertyKind `json:"kind"`
	Cmd     string       `json:"cmd"` // SCPI command fragment, appended to the subsystem prefix
	Choices []string     `json:"choices,omitempty"`
	Range   *Range       `json:"range,omitempty"`
	Access  Access       `json:"access"`
	Doc     string       `json:"doc,omitempty"`
	Units   string       `json:"units,omitempty"`
	// ValueType is the declared numeric type for value properties
	// ("float" or "int"), when the driver states one.
	ValueType string `json:"value_type,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// SubsystemMetadata describes one subsystem class referenced by a driver.
// Built once per driver parse and immutable afterward.
type SubsystemMetadata struct {
	Name string `json:"name"` // Subsystem class name, e.g. "Channel"
	// Attr is the instrument attribute the subsystem is bound to, taken
	// from the assignment target of the build call (e.g. "channel"). It is
	// the first segment of every property path under this subsystem.
	Attr          string             `json:"attr"`
	Prefix        string             `json:"prefix"` // SCPI command prefix, e.g. ":CHANnel"
	Properties    []PropertyMetadata `json:"properties"`
	NeedsIndexing bool               `json:"needs_indexing"`
	InstanceCount int                `json:"instance_count,omitempty"`
	Line          int                `json:"line,omitempty"`
}

// MethodMetadata describes a public method on the instrument class
type MethodMetadata struct {
	Name string   `json:"name"`
	Args []string `json:"args"` // Parameter names, 'self' excluded
	// SourceCommand marks methods decorated with @Sources.source_command,
	// which the UI exposes as per-source actions.
	SourceCommand bool   `json:"source_command"`
	Returns       string `json:"returns,omitempty"`
}

// DriverMetadata is the parsed representation of one instrument driver class
type DriverMetadata struct {
	Name string `json:"name"` // Instrument class name
	// Subsystems preserves driver declaration order (the order of build
	// calls in __init__).
	Subsystems []*SubsystemMetadata `json:"subsystems"`
	Sources    []string             `json:"sources,omitempty"`
	Methods    []MethodMetadata     `json:"methods,omitempty"`
}

// Subsystem returns the subsystem with the given class name, or nil
func (d *DriverMetadata) Subsystem(name string) *SubsystemMetadata {
	for _, s := range d.Subsystems {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// SubsystemByAttr returns the subsystem bound to the given instrument
// attribute, or nil
func (d *DriverMetadata) SubsystemByAttr(attr string) *SubsystemMetadata {
	for _, s := range d.Subsystems {
		if s.Attr == attr {
			return s
		}
	}
	return nil
}

// Validate checks the structural invariants of the metadata: subsystem
// names are unique within the driver, and an indexed subsystem always
// carries a positive instance count.
func (d *DriverMetadata) Validate() error {
	seen := make(map[string]bool, len(d.Subsystems))
	for _, s := range d.Subsystems {
		if seen[s.Name] {
			return fmt.Errorf("driver %s: duplicate subsystem %q", d.Name, s.Name)
		}
		seen[s.Name] = true
		if s.NeedsIndexing && s.InstanceCount <= 0 {
			return fmt.Errorf("driver %s: subsystem %q is indexed with non-positive instance count %d",
				d.Name, s.Name, s.InstanceCount)
		}
		for _, p := range s.Properties {
			if err := p.validate(); err != nil {
				return fmt.Errorf("driver %s: subsystem %q: %w", d.Name, s.Name, err)
			}
		}
	}
	return nil
}

func (p *PropertyMetadata) validate() error {
	if len(p.Choices) > 0 && p.Kind != KindSelect {
		return fmt.Errorf("property %q: choices on non-select kind %s", p.Name, p.Kind)
	}
	if p.Kind == KindSelect && len(p.Choices) == 0 {
		return fmt.Errorf("property %q: select property without choices", p.Name)
	}
	if p.Range != nil && p.Kind != KindValue {
		return fmt.Errorf("property %q: range on non-value kind %s", p.Name, p.Kind)
	}
	return nil
}
