// Package orthoerr defines the fatal error kinds a cache-build job can
// raise. Workers do not attempt recovery; a job's exit code reflects which
// kind surfaced, and user-visible messages are prefixed "ERROR:" at the
// outermost cmd/ call site.
package orthoerr

import "fmt"

// Kind classifies a fatal error.
type Kind int

const (
	// Config covers invalid flags, invalid subsize, invalid table names,
	// and a cache directory in the wrong state for the requested operation.
	Config Kind = iota
	// DataSource covers a graph that cannot be opened, a missing table,
	// or missing required columns.
	DataSource
	// Metadata covers date/time fields that do not match the required
	// format.
	Metadata
	// Geometry covers non-square tile or slab sizes.
	Geometry
	// IO covers a raster or JSON file that fails to read or write.
	IO
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case DataSource:
		return "DataSourceError"
	case Metadata:
		return "MetadataError"
	case Geometry:
		return "GeometryError"
	case IO:
		return "IOError"
	default:
		return "Error"
	}
}

// Error is a fatal error tagged with its Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error of the given kind with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind wrapping an underlying error.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}
