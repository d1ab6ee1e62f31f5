// Package pathbuilder builds the filesystem paths of loose objects and
// pack/index files on top of a fixed-size buffer, so that a hot loop (a
// commit log traversal doing thousands of lookups) does not pay for a
// filepath.Join or fmt.Sprintf per object.
package pathbuilder

import (
	"errors"
	"os"

	"github.com/mlpln/gitodb/ginternals/githash"
)

// bufSize is the size of the stack-like buffer backing a Builder. It only
// ever needs to hold the base path plus the longest suffix we build
// ("/pack/pack-<40hex>.pack"), so 4KiB is comfortably oversized.
const bufSize = 4096

// maxBaseLen is the largest base path we accept, leaving enough room for
// the longest suffix we ever append.
const maxBaseLen = bufSize - 60

// ErrBaseTooLong is returned when the base objects directory doesn't fit
// the builder's buffer.
var ErrBaseTooLong = errors.New("base objects directory path is too long")

// Builder pre-copies a base "objects" directory into a fixed buffer and
// offers allocation-light helpers to produce the paths of loose objects
// and pack/index files underneath it.
type Builder struct {
	buf     [bufSize]byte
	baseLen int // includes the trailing path separator
}

// New creates a Builder rooted at base (e.g. ".../.git/objects").
func New(base string) (*Builder, error) {
	if len(base) > maxBaseLen {
		return nil, ErrBaseTooLong
	}
	b := &Builder{}
	n := copy(b.buf[:], base)
	b.buf[n] = os.PathSeparator
	b.baseLen = n + 1
	return b, nil
}

// LooseFolder returns the path of the loose-object folder for the given
// first byte of a digest (e.g. base/"ce").
func (b *Builder) LooseFolder(firstByte byte) string {
	n := b.baseLen
	pair := hexPair(firstByte)
	b.buf[n] = pair[0]
	b.buf[n+1] = pair[1]
	return string(b.buf[:n+2])
}

// LooseObjectPath returns the path of the loose object file for the given
// digest (e.g. base/"ce"/"013625030ba8dba906f756967f9e9ca394464a").
func (b *Builder) LooseObjectPath(id githash.OidFull) string {
	hex := id.String()
	n := b.baseLen
	copy(b.buf[n:], hex[:2])
	b.buf[n+2] = os.PathSeparator
	copy(b.buf[n+3:], hex[2:])
	return string(b.buf[:n+3+38])
}

// PacksDir returns the path of the directory holding pack/index files.
func (b *Builder) PacksDir() string {
	n := b.baseLen
	copy(b.buf[n:], "pack")
	return string(b.buf[:n+4])
}

// PackIndexPath returns the path of the .idx file for the given pack id.
func (b *Builder) PackIndexPath(id githash.OidFull) string {
	return b.packPath(id, ".idx")
}

// PackFilePath returns the path of the .pack file for the given pack id.
func (b *Builder) PackFilePath(id githash.OidFull) string {
	return b.packPath(id, ".pack")
}

func (b *Builder) packPath(id githash.OidFull, ext string) string {
	n := b.baseLen
	copy(b.buf[n:], "pack")
	b.buf[n+4] = os.PathSeparator
	copy(b.buf[n+5:], "pack-")
	hex := id.String()
	copy(b.buf[n+10:], hex)
	end := n + 10 + len(hex)
	copy(b.buf[end:], ext)
	return string(b.buf[:end+len(ext)])
}

var hexDigits = [16]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}

func hexPair(b byte) [2]byte {
	return [2]byte{hexDigits[b>>4], hexDigits[b&0x0f]}
}
