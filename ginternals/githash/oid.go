// Package githash contains the identifier algebra used throughout the
// object database: full 160-bit digests, the 128-bit truncated key used
// for in-memory lookups, and partial-prefix matching.
package githash

import (
	"crypto/sha1" //nolint:gosec // git's object format is SHA-1
	"encoding/binary"
	"errors"
)

// OidFullSize is the length, in bytes, of a full digest.
const OidFullSize = 20

// OidHexSize is the length, in bytes, of a full digest written as hex.
const OidHexSize = OidFullSize * 2

// ErrInvalidOid is returned when a value can't be parsed as an Oid/OidFull.
var ErrInvalidOid = errors.New("invalid oid")

// OidFull is the raw 160-bit digest as stored on disk and on the wire.
type OidFull [OidFullSize]byte

// NullOidFull is the zero value of OidFull.
var NullOidFull = OidFull{}

// IsZero returns whether the digest is the zero value.
func (o OidFull) IsZero() bool {
	return o == NullOidFull
}

// Bytes returns the raw bytes of the digest.
func (o OidFull) Bytes() []byte {
	return o[:]
}

// String returns the 40-character hex representation.
func (o OidFull) String() string {
	return hexOf(o[:])
}

// FirstByte returns the first byte of the digest, used to index the
// fanout table and the loose-object folder.
func (o OidFull) FirstByte() byte {
	return o[0]
}

// Truncate returns the 128-bit key used for in-memory lookups, plus the
// 32-bit remainder (the low bytes dropped by the truncation). The
// remainder is needed to rebuild a loose object's filename from just an
// Oid.
func (o OidFull) Truncate() (Oid, uint32) {
	oid := Oid{
		hi: binary.BigEndian.Uint64(o[0:8]),
		lo: binary.BigEndian.Uint64(o[8:16]),
	}
	remainder := binary.BigEndian.Uint32(o[16:20])
	return oid, remainder
}

// Rebuild reconstructs the full 20-byte digest from a truncated Oid and
// the 32-bit remainder that Truncate split off.
func Rebuild(o Oid, remainder uint32) OidFull {
	var full OidFull
	binary.BigEndian.PutUint64(full[0:8], o.hi)
	binary.BigEndian.PutUint64(full[8:16], o.lo)
	binary.BigEndian.PutUint32(full[16:20], remainder)
	return full
}

// NewOidFullFromHex parses a 40-character hex string into an OidFull.
func NewOidFullFromHex(hex []byte) (OidFull, error) {
	if len(hex) < OidHexSize {
		return NullOidFull, ErrInvalidOid
	}
	var out OidFull
	if err := decodeHex(out[:], hex[:OidHexSize]); err != nil {
		return NullOidFull, err
	}
	return out, nil
}

// NewOidFullFromBytes casts a 20-byte slice into an OidFull.
func NewOidFullFromBytes(b []byte) (OidFull, error) {
	if len(b) < OidFullSize {
		return NullOidFull, ErrInvalidOid
	}
	var out OidFull
	copy(out[:], b[:OidFullSize])
	return out, nil
}

// SumFull returns the SHA-1 digest of the given content.
func SumFull(content []byte) OidFull {
	return sha1.Sum(content) //nolint:gosec // git's object format is SHA-1
}

// Oid is the 128-bit key truncated from an OidFull, used as a map key
// throughout the lookup state. 2^128 is collision-safe for any real
// repository and fits a pair of machine words.
type Oid struct {
	hi, lo uint64
}

// NullOid is the zero value of Oid.
var NullOid = Oid{}

// IsZero returns whether the oid is the zero value.
func (o Oid) IsZero() bool {
	return o == NullOid
}

// FirstByte returns the first byte of the (untruncated) digest this key
// was built from.
func (o Oid) FirstByte() byte {
	return byte(o.hi >> 56)
}

// Less reports whether o sorts before other in fanout order (first byte
// ascending, then the rest of the 128 bits).
func (o Oid) Less(other Oid) bool {
	if o.hi != other.hi {
		return o.hi < other.hi
	}
	return o.lo < other.lo
}

// shiftRight returns o >> n, for 0 <= n <= 128.
func (o Oid) shiftRight(n int) Oid {
	switch {
	case n <= 0:
		return o
	case n >= 128:
		return Oid{}
	case n < 64:
		return Oid{
			hi: o.hi >> uint(n),
			lo: (o.lo >> uint(n)) | (o.hi << uint(64-n)),
		}
	default:
		return Oid{
			hi: 0,
			lo: o.hi >> uint(n-64),
		}
	}
}

// String returns the 32-character hex representation, zero-padded.
func (o Oid) String() string {
	var full [16]byte
	binary.BigEndian.PutUint64(full[0:8], o.hi)
	binary.BigEndian.PutUint64(full[8:16], o.lo)
	return hexOf(full[:])
}

// NewOidFromHex parses a hex string (at least 32 chars) into an Oid.
func NewOidFromHex(hex []byte) (Oid, error) {
	if len(hex) < 32 {
		return NullOid, ErrInvalidOid
	}
	var full [16]byte
	if err := decodeHex(full[:], hex[:32]); err != nil {
		return NullOid, err
	}
	return Oid{
		hi: binary.BigEndian.Uint64(full[0:8]),
		lo: binary.BigEndian.Uint64(full[8:16]),
	}, nil
}

// PartialOid represents a hex prefix of 4 to 40 characters the caller
// supplies to disambiguate an object. It is built once and then matched
// against candidates with a single shift and compare.
type PartialOid struct {
	oid     Oid
	bitsSet uint8
	shifted Oid
}

// NewPartialOid builds a PartialOid from a hex prefix of 4 to 40 chars.
// Fewer than 32 characters are zero-padded on the right; a prefix longer
// than 32 characters is truncated to 32, since the full Oid key itself is
// only 128 bits.
func NewPartialOid(hex string) (PartialOid, error) {
	if len(hex) < 4 {
		return PartialOid{}, ErrInvalidOid
	}
	bitsSet := len(hex)
	if bitsSet > 32 {
		bitsSet = 32
	}
	padded := make([]byte, 32)
	copy(padded, []byte(hex))
	for i := len(hex); i < 32; i++ {
		padded[i] = '0'
	}
	oid, err := NewOidFromHex(padded)
	if err != nil {
		return PartialOid{}, err
	}
	bits := uint8(bitsSet * 4) //nolint:gosec // bitsSet <= 32
	return PartialOid{
		oid:     oid,
		bitsSet: bits,
		shifted: oid.shiftRight(128 - int(bits)),
	}, nil
}

// FirstByte returns the first byte of the partial oid. Since bitsSet is
// always >= 16 (4 hex chars), the first byte is always fully specified.
func (p PartialOid) FirstByte() byte {
	return p.oid.FirstByte()
}

// Matches reports whether candidate's leading bitsSet bits equal the
// partial oid's.
func (p PartialOid) Matches(candidate Oid) bool {
	return candidate.shiftRight(128-int(p.bitsSet)) == p.shifted
}

// String returns the hex prefix this partial oid was built from (its
// bitsSet leading hex characters of the zero-padded Oid).
func (p PartialOid) String() string {
	return p.oid.String()[:p.bitsSet/4]
}

var hexDigits = "0123456789abcdef"

// hexBytes is a 256-entry lookup table mapping a byte value to its two
// ASCII hex characters, used to format identifiers without allocating a
// per-nibble conversion.
var hexBytes = func() [256][2]byte {
	var t [256][2]byte
	for i := 0; i < 256; i++ {
		t[i][0] = hexDigits[i>>4]
		t[i][1] = hexDigits[i&0x0f]
	}
	return t
}()

func hexOf(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		pair := hexBytes[c]
		out[i*2] = pair[0]
		out[i*2+1] = pair[1]
	}
	return string(out)
}

func decodeHex(dst, src []byte) error {
	for i := 0; i < len(dst); i++ {
		hi, ok1 := hexVal(src[i*2])
		lo, ok2 := hexVal(src[i*2+1])
		if !ok1 || !ok2 {
			return ErrInvalidOid
		}
		dst[i] = hi<<4 | lo
	}
	return nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
