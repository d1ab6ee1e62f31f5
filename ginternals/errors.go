// Package ginternals contains the error kinds and identifier-resolution
// results shared by the rest of the object database read path.
package ginternals

import (
	"errors"
	"fmt"

	"github.com/mlpln/gitodb/ginternals/githash"
)

var (
	// ErrObjectNotFound is returned when no object matches a full id, or
	// when a partial id matches nothing.
	ErrObjectNotFound = errors.New("object not found")
	// ErrCorrupt is returned when an on-disk structure (loose header,
	// index, pack entry, delta opcode) fails validation.
	ErrCorrupt = errors.New("corrupt object database structure")
	// ErrOversize is returned when a size would not fit the platform's
	// integer type.
	ErrOversize = errors.New("value too large to represent")
	// ErrUnsupported is returned for a recognized but unhandled variant,
	// such as a reserved pack entry type.
	ErrUnsupported = errors.New("unsupported object database feature")
)

// AmbiguousError is returned when a partial id matches two or more
// objects. It carries every match found so the caller can present them.
type AmbiguousError struct {
	Prefix  string
	Matches []githash.Oid
}

// Error implements the error interface.
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("prefix %q is ambiguous: matches %d objects", e.Prefix, len(e.Matches))
}
