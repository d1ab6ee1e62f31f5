package object

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/mlpln/gitodb/ginternals/githash"
)

// ErrBlobNotUTF8 is returned by ParseBlob(BlobStringStrict) when the
// content is not valid UTF-8.
var ErrBlobNotUTF8 = errors.New("blob content is not valid utf-8")

// BlobCapability selects how much of a blob's content a caller wants
// parsed.
type BlobCapability int8

const (
	// BlobNone skips the payload entirely; only ID and Size are set.
	BlobNone BlobCapability = iota
	// BlobRaw keeps the payload as raw bytes.
	BlobRaw
	// BlobStringLossy decodes the payload as UTF-8, substituting the
	// replacement character for invalid sequences.
	BlobStringLossy
	// BlobStringStrict decodes the payload as UTF-8, failing if it isn't
	// valid.
	BlobStringStrict
)

// Blob is a parsed blob object at the chosen BlobCapability.
type Blob struct {
	ID   githash.OidFull
	Size int
	Raw  []byte
	Text string
}

// ParseBlob parses a blob object's content. A blob has no internal
// structure, so parsing is really just a capability-gated copy.
func ParseBlob(id githash.OidFull, content []byte, cap BlobCapability) (*Blob, error) {
	b := &Blob{ID: id, Size: len(content)}
	switch cap {
	case BlobNone:
	case BlobRaw:
		b.Raw = content
	case BlobStringLossy:
		b.Text = string(bytes.ToValidUTF8(content, []byte("�")))
	case BlobStringStrict:
		if !utf8.Valid(content) {
			return nil, ErrBlobNotUTF8
		}
		b.Text = string(content)
	}
	return b, nil
}

// ToObject serializes the blob back into its wire format. Requires Raw
// to have been populated (BlobRaw capability).
func (b *Blob) ToObject() *Object {
	return NewWithID(b.ID, TypeBlob, b.Raw)
}
