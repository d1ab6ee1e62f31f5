// Package object contains the parsers that turn the raw bytes of a git
// object (loose or unpacked-from-delta) into typed data, at a caller
// chosen level of detail.
package object

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strconv"

	"github.com/mlpln/gitodb/ginternals"
	"github.com/mlpln/gitodb/ginternals/githash"
	"golang.org/x/xerrors"
)

var (
	// ErrObjectUnknown is returned when encountering an unknown object type
	// token.
	ErrObjectUnknown = xerrors.Errorf("invalid object type: %w", ginternals.ErrCorrupt)
	// ErrObjectInvalid is returned when an object contains unexpected data,
	// or the wrong parser is applied to it.
	ErrObjectInvalid = xerrors.Errorf("invalid object: %w", ginternals.ErrCorrupt)
	// ErrTreeInvalid is returned when parsing an invalid tree object.
	ErrTreeInvalid = xerrors.Errorf("invalid tree: %w", ginternals.ErrCorrupt)
	// ErrCommitInvalid is returned when parsing an invalid commit object.
	ErrCommitInvalid = xerrors.Errorf("invalid commit: %w", ginternals.ErrCorrupt)
)

// Type represents the type of an object as stored loose or in a packfile.
type Type int8

// List of all the possible object types. 5 is reserved by the packfile
// format for future use.
const (
	TypeCommit     Type = 1
	TypeTree       Type = 2
	TypeBlob       Type = 3
	TypeTag        Type = 4
	ObjectDeltaOFS Type = 6
	ObjectDeltaRef Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	case TypeTag:
		return "tag"
	case ObjectDeltaOFS:
		return "ofs-delta"
	case ObjectDeltaRef:
		return "ref-delta"
	default:
		return fmt.Sprintf("type(%d)", int8(t))
	}
}

// IsValid reports whether the type is one of the known object types.
func (t Type) IsValid() bool {
	switch t {
	case TypeCommit, TypeTree, TypeBlob, TypeTag, ObjectDeltaOFS, ObjectDeltaRef:
		return true
	default:
		return false
	}
}

// NewTypeFromString returns a Type from its loose-header string
// representation.
func NewTypeFromString(t string) (Type, error) {
	switch t {
	case "commit":
		return TypeCommit, nil
	case "tree":
		return TypeTree, nil
	case "blob":
		return TypeBlob, nil
	case "tag":
		return TypeTag, nil
	default:
		return 0, ErrObjectUnknown
	}
}

// Object is the raw envelope shared by every git object: a type and its
// uninterpreted content, as produced by the loose reader (§4.C) or by
// delta resolution (§4.E). Object parsers (this package's remaining
// files) turn the envelope into typed data at a chosen capability level.
type Object struct {
	typ     Type
	content []byte
	id      githash.OidFull
	idKnown bool
}

// New wraps typ/content into an Object and computes its id.
func New(typ Type, content []byte) *Object {
	o := &Object{typ: typ, content: content}
	o.id = githash.SumFull(o.header())
	o.idKnown = true
	return o
}

// NewWithID wraps typ/content into an Object whose id is already known
// (e.g. the identity the loose/pack reader located it by), skipping the
// hash recomputation.
func NewWithID(id githash.OidFull, typ Type, content []byte) *Object {
	return &Object{id: id, typ: typ, content: content, idKnown: true}
}

func (o *Object) header() []byte {
	w := new(bytes.Buffer)
	w.WriteString(o.typ.String())
	w.WriteByte(' ')
	w.WriteString(strconv.Itoa(len(o.content)))
	w.WriteByte(0)
	w.Write(o.content)
	return w.Bytes()
}

// ID returns the object's full digest, computing it on first use.
func (o *Object) ID() githash.OidFull {
	if !o.idKnown {
		o.id = githash.SumFull(o.header())
		o.idKnown = true
	}
	return o.id
}

// Size returns the size of the object's content.
func (o *Object) Size() int {
	return len(o.content)
}

// Type returns the object's type.
func (o *Object) Type() Type {
	return o.typ
}

// Bytes returns the object's raw content.
func (o *Object) Bytes() []byte {
	return o.content
}

// Compress returns the object zlib compressed, in the loose-object wire
// format: "<type> <size>\0<content>".
func (o *Object) Compress() (data []byte, err error) {
	compressed := new(bytes.Buffer)
	zw := zlib.NewWriter(compressed)

	if _, err = zw.Write(o.header()); err != nil {
		_ = zw.Close()
		return nil, xerrors.Errorf("could not zlib the object: %w", err)
	}
	if err = zw.Close(); err != nil {
		return nil, xerrors.Errorf("could not flush the zlib stream: %w", err)
	}
	return compressed.Bytes(), nil
}
