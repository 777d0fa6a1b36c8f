package path

import "fmt"

// SyntaxError reports a path that does not match the grammar
type SyntaxError struct {
	Path    string
	Message string
}

// Error implements the error interface
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid property path %q: %s", e.Path, e.Message)
}

// AttributeMissingError reports a segment naming an attribute the target
// object does not have. It always carries the full original path for
// diagnosability.
type AttributeMissingError struct {
	Path    string
	Segment string
}

// Error implements the error interface
func (e *AttributeMissingError) Error() string {
	return fmt.Sprintf("attribute %q not found (path %q)", e.Segment, e.Path)
}

// NotIndexableError reports an indexed segment whose attribute is not a
// sequence
type NotIndexableError struct {
	Path    string
	Segment string
}

// Error implements the error interface
func (e *NotIndexableError) Error() string {
	return fmt.Sprintf("attribute %q is not indexable (path %q)", e.Segment, e.Path)
}

// IndexOutOfRangeError reports an index outside the bounds of the addressed
// sequence. Index is the 1-based value as written in the path; the bound
// check happens after the single 1-based to 0-based conversion.
type IndexOutOfRangeError struct {
	Path    string
	Segment string
	Index   int // as written (1-based)
	Length  int // length of the sequence
}

// Error implements the error interface
func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of bounds for %q with %d elements (path %q)",
		e.Index, e.Segment, e.Length, e.Path)
}

// NotAssignableError reports an assignment target that cannot be written
type NotAssignableError struct {
	Path    string
	Segment string
	Reason  string
}

// Error implements the error interface
func (e *NotAssignableError) Error() string {
	return fmt.Sprintf("cannot assign to %q: %s (path %q)", e.Segment, e.Reason, e.Path)
}
