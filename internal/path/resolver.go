package path

import (
	"fmt"
	"reflect"
	"strings"
)

// Object is implemented by graph nodes that expose named attributes
// directly, such as live instruments and subsystems. Attr may perform I/O
// (a SCPI query) when the attribute is a property value: ok reports whether
// the attribute exists, err reports a failure reading a live value.
type Object interface {
	Attr(name string) (value any, ok bool, err error)
}

// Assignable is implemented by graph nodes whose attributes can be written.
// SetAttr may perform I/O (a SCPI command).
type Assignable interface {
	SetAttr(name string, value any) error
}

// Resolve reads the property addressed by path from the object graph rooted
// at root. Traversal re-resolves from the root on every call; the graph is
// small and access is user-interactive, so no caching is warranted.
func Resolve(root any, rawPath string) (any, error) {
	p, err := Parse(rawPath)
	if err != nil {
		return nil, err
	}

	target := root
	for _, seg := range p.segments {
		target, err = step(target, seg, p.raw)
		if err != nil {
			return nil, err
		}
	}
	return target, nil
}

// Assign writes value to the property addressed by path in the object graph
// rooted at root.
func Assign(root any, rawPath string, value any) error {
	p, err := Parse(rawPath)
	if err != nil {
		return err
	}

	target := root
	for _, seg := range p.segments[:len(p.segments)-1] {
		target, err = step(target, seg, p.raw)
		if err != nil {
			return err
		}
	}

	final := p.segments[len(p.segments)-1]
	if final.HasIndex {
		return assignElement(target, final, p.raw, value)
	}
	return setAttr(target, final, p.raw, value)
}

// step fetches one segment: the named attribute, then the indexed element
// when the segment carries an index.
func step(target any, seg Segment, fullPath string) (any, error) {
	value, ok, err := getAttr(target, seg.Name)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w (path %q)", seg.Name, err, fullPath)
	}
	if !ok {
		return nil, &AttributeMissingError{Path: fullPath, Segment: seg.Name}
	}
	if !seg.HasIndex {
		return value, nil
	}
	return element(value, seg, fullPath)
}

// element applies the 1-based path index to a sequence value. The single
// subtraction here is the only place the 1-based to 0-based conversion
// happens.
func element(value any, seg Segment, fullPath string) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, &NotIndexableError{Path: fullPath, Segment: seg.String()}
	}
	idx := seg.Index - 1
	if idx < 0 || idx >= rv.Len() {
		return nil, &IndexOutOfRangeError{
			Path:    fullPath,
			Segment: seg.Name,
			Index:   seg.Index,
			Length:  rv.Len(),
		}
	}
	return rv.Index(idx).Interface(), nil
}

// getAttr fetches a named attribute from a graph node. Nodes implementing
// Object answer directly; plain structs are read via reflection over
// exported fields (case-insensitive), and map[string]any by key.
func getAttr(target any, name string) (any, bool, error) {
	if obj, ok := target.(Object); ok {
		return obj.Attr(name)
	}

	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		if field, ok := fieldByNameFold(rv, name); ok {
			return field.Interface(), true, nil
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			mv := rv.MapIndex(reflect.ValueOf(name))
			if mv.IsValid() {
				return mv.Interface(), true, nil
			}
		}
	}
	return nil, false, nil
}

// setAttr writes a named attribute on a graph node
func setAttr(target any, seg Segment, fullPath string, value any) error {
	if obj, ok := target.(Assignable); ok {
		if err := obj.SetAttr(seg.Name, value); err != nil {
			return fmt.Errorf("%w (path %q)", err, fullPath)
		}
		return nil
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &NotAssignableError{Path: fullPath, Segment: seg.Name, Reason: "target is not addressable"}
	}
	rv = rv.Elem()

	switch rv.Kind() {
	case reflect.Struct:
		field, ok := fieldByNameFold(rv, seg.Name)
		if !ok {
			return &AttributeMissingError{Path: fullPath, Segment: seg.Name}
		}
		if !field.CanSet() {
			return &NotAssignableError{Path: fullPath, Segment: seg.Name, Reason: "field is not settable"}
		}
		return setReflectValue(field, seg, fullPath, value)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String && rv.Type().Elem().Kind() == reflect.Interface {
			rv.SetMapIndex(reflect.ValueOf(seg.Name), reflect.ValueOf(value))
			return nil
		}
	}
	return &NotAssignableError{Path: fullPath, Segment: seg.Name, Reason: "unsupported target kind"}
}

// assignElement writes into an indexed final segment, e.g. "values[2]"
func assignElement(target any, seg Segment, fullPath string, value any) error {
	container, ok, err := getAttr(target, seg.Name)
	if err != nil {
		return fmt.Errorf("reading %q: %w (path %q)", seg.Name, err, fullPath)
	}
	if !ok {
		return &AttributeMissingError{Path: fullPath, Segment: seg.Name}
	}
	rv := reflect.ValueOf(container)
	if rv.Kind() != reflect.Slice {
		return &NotIndexableError{Path: fullPath, Segment: seg.String()}
	}
	idx := seg.Index - 1
	if idx < 0 || idx >= rv.Len() {
		return &IndexOutOfRangeError{Path: fullPath, Segment: seg.Name, Index: seg.Index, Length: rv.Len()}
	}
	elem := rv.Index(idx)
	if !elem.CanSet() {
		// Slice elements share backing storage with the owner, so this is
		// settable for any slice obtained via attribute access.
		return &NotAssignableError{Path: fullPath, Segment: seg.String(), Reason: "element is not settable"}
	}
	return setReflectValue(elem, seg, fullPath, value)
}

func setReflectValue(dst reflect.Value, seg Segment, fullPath string, value any) error {
	vv := reflect.ValueOf(value)
	if !vv.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if !vv.Type().AssignableTo(dst.Type()) {
		if vv.Type().ConvertibleTo(dst.Type()) {
			dst.Set(vv.Convert(dst.Type()))
			return nil
		}
		return &NotAssignableError{
			Path:    fullPath,
			Segment: seg.Name,
			Reason:  fmt.Sprintf("cannot assign %s to %s", vv.Type(), dst.Type()),
		}
	}
	dst.Set(vv)
	return nil
}

func fieldByNameFold(rv reflect.Value, name string) (reflect.Value, bool) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if strings.EqualFold(f.Name, name) {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}
