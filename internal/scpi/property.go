package scpi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/query"

	"github.com/gometr/gometr/internal/driver/metadata"
)

// Property binds one property's metadata to a live session with the fully
// cascaded SCPI command (subsystem prefix, instance suffix, property
// fragment already joined).
type Property struct {
	meta    *metadata.PropertyMetadata
	cmd     string
	session *Session

	// format is the subsystem's transfer-format selector; set on data
	// properties whose subsystem declares one, nil otherwise.
	format *Property
}

var switchTrue = map[string]bool{
	"1": true, "ON": true, "TRUE": true, "YES": true,
}

var switchFalse = map[string]bool{
	"0": true, "OFF": true, "FALSE": true, "NO": true,
}

// ValidationError reports a value rejected client-side; nothing was sent to
// the instrument.
type ValidationError struct {
	Property string
	Err      error
}

// Error implements the error interface
func (e *ValidationError) Error() string { return e.Err.Error() }

// Unwrap exposes the underlying cause
func (e *ValidationError) Unwrap() error { return e.Err }

// Metadata returns the property's metadata
func (p *Property) Metadata() *metadata.PropertyMetadata { return p.meta }

// Command returns the fully cascaded SCPI command for the property
func (p *Property) Command() string { return p.cmd }

// Get queries the property value and converts the response per the
// property's kind: switch to bool, value to float64 or int, data to a
// decoded sample slice, select and string to the raw response string.
func (p *Property) Get() (any, error) {
	if !p.meta.Access.CanRead() {
		return nil, fmt.Errorf("property %s is write-only", p.meta.Name)
	}

	switch p.meta.Kind {
	case metadata.KindData:
		format, err := p.dataFormat()
		if err != nil {
			return nil, err
		}
		payload, err := p.session.QueryBlock(p.cmd + "?")
		if err != nil {
			return nil, err
		}
		return DecodeWaveform(payload, format)

	case metadata.KindValue:
		v, err := query.Float64(p.session, p.cmd+"?")
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", p.meta.Name, err)
		}
		if p.meta.ValueType == "int" {
			return int(v), nil
		}
		return v, nil
	}

	raw, err := p.session.Query(p.cmd + "?")
	if err != nil {
		return nil, err
	}
	if p.meta.Kind == metadata.KindSwitch {
		return parseSwitch(p.meta.Name, raw)
	}
	return raw, nil
}

// dataFormat resolves the transfer encoding in effect for a data property
// by querying the subsystem's format selector. Drivers without one
// transfer ASCII.
func (p *Property) dataFormat() (DataFormat, error) {
	if p.format == nil {
		return FormatASCII, nil
	}
	v, err := p.format.Get()
	if err != nil {
		return "", fmt.Errorf("property %s: reading transfer format: %w", p.meta.Name, err)
	}
	choice, _ := v.(string)
	f, ok := ParseDataFormat(choice)
	if !ok {
		return "", fmt.Errorf("property %s: unrecognized transfer format %q", p.meta.Name, choice)
	}
	return f, nil
}

// Set validates value against the property's kind and writes it. Select
// values match the choice list case-insensitively, by full spelling or
// unambiguous prefix (the SCPI short-form convention); value properties are
// bound checked against the declared inclusive range.
func (p *Property) Set(value any) error {
	if !p.meta.Access.CanWrite() {
		return &ValidationError{Property: p.meta.Name, Err: fmt.Errorf("property %s is read-only", p.meta.Name)}
	}

	arg, err := p.formatArg(value)
	if err != nil {
		return &ValidationError{Property: p.meta.Name, Err: err}
	}
	return p.session.Command("%s %s", p.cmd, arg)
}

func (p *Property) formatArg(value any) (string, error) {
	switch p.meta.Kind {
	case metadata.KindSwitch:
		b, err := coerceBool(p.meta.Name, value)
		if err != nil {
			return "", err
		}
		if b {
			return "ON", nil
		}
		return "OFF", nil

	case metadata.KindValue:
		v, err := coerceFloat(p.meta.Name, value)
		if err != nil {
			return "", err
		}
		if p.meta.Range != nil && !p.meta.Range.Contains(v) {
			return "", fmt.Errorf("property %s: value %g outside range [%g, %g]",
				p.meta.Name, v, p.meta.Range.Min, p.meta.Range.Max)
		}
		if p.meta.ValueType == "int" {
			return strconv.Itoa(int(v)), nil
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil

	case metadata.KindSelect:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("property %s: expected string choice, got %T", p.meta.Name, value)
		}
		choice, err := matchChoice(p.meta.Name, s, p.meta.Choices)
		if err != nil {
			return "", err
		}
		return choice, nil

	case metadata.KindString:
		return fmt.Sprintf("%v", value), nil

	case metadata.KindData:
		return "", fmt.Errorf("property %s: data properties are fetch-only", p.meta.Name)
	}
	return "", fmt.Errorf("property %s: unknown kind %s", p.meta.Name, p.meta.Kind)
}

func parseSwitch(name, raw string) (bool, error) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if switchTrue[upper] {
		return true, nil
	}
	if switchFalse[upper] {
		return false, nil
	}
	return false, fmt.Errorf("property %s: unrecognized switch response %q", name, raw)
}

func coerceBool(name string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return parseSwitch(name, v)
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	}
	return false, fmt.Errorf("property %s: cannot interpret %T as switch state", name, value)
}

func coerceFloat(name string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("property %s: non-numeric value %q", name, v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("property %s: cannot interpret %T as number", name, value)
}

// matchChoice resolves a user-supplied spelling against the choice list.
// Exact case-insensitive matches win; otherwise a unique case-insensitive
// prefix of exactly one choice is accepted.
func matchChoice(name, value string, choices []string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))

	for _, c := range choices {
		if strings.ToUpper(c) == upper {
			return c, nil
		}
	}

	var matches []string
	for _, c := range choices {
		if strings.HasPrefix(strings.ToUpper(c), upper) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("property %s: %q is not one of %s",
			name, value, strings.Join(choices, ", "))
	default:
		return "", fmt.Errorf("property %s: %q is ambiguous between %s",
			name, value, strings.Join(matches, ", "))
	}
}
