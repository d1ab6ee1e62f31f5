// Package packfile reads the two on-disk structures that make up a git
// pack: the sorted object index (.idx) and the packed object stream
// (.pack) that the index points into.
package packfile

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/mlpln/gitodb/ginternals"
	"github.com/mlpln/gitodb/ginternals/githash"
	"golang.org/x/xerrors"
)

// ErrInvalidMagic is returned when a file doesn't start with the magic
// bytes / version this package understands.
var ErrInvalidMagic = xerrors.Errorf("invalid magic or version: %w", ginternals.ErrCorrupt)

// ErrCorruptIndex is returned when an index's internal tables are
// inconsistent (out-of-order fanout, offset pointing outside the file).
var ErrCorruptIndex = xerrors.Errorf("corrupt index file: %w", ginternals.ErrCorrupt)

const (
	v2Magic        = "\xfftOc"
	v2Version      = 2
	fanoutCount    = 256
	fanoutEntrySize = 4
	fanoutTableSize = fanoutCount * fanoutEntrySize
	v1HeaderSize    = 0
	v2HeaderSize    = 8
	v1EntryStride   = githash.OidFullSize + 4
	v2EntryStride   = githash.OidFullSize
	trailerSize     = githash.OidFullSize * 2
	msbMask         = uint32(0x80000000)
	lowBitsMask     = uint32(0x7fffffff)
)

// Index is a parsed .idx file: the mmapped bytes plus the fanout table
// copied out for fast repeated access.
type Index struct {
	data    mmap.MMap
	fanout  [fanoutCount]uint32
	version int
	num     uint32
	id      githash.OidFull

	digestsStart uint32
	crcStart     uint32 // v2 only
	smallOffsetsStart uint32
	largeOffsetsStart uint32
}

// OpenIndex mmaps and parses the .idx file at path. id is the pack's
// identity, parsed by the caller from the filename (pack-<40hex>.idx),
// since it isn't recorded inside the index itself.
func OpenIndex(path string, id githash.OidFull) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("could not open index file: %w", err)
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, xerrors.Errorf("could not mmap index file: %w", err)
	}

	idx, err := parseIndex(data, id)
	if err != nil {
		_ = data.Unmap()
		return nil, err
	}
	return idx, nil
}

func parseIndex(data mmap.MMap, id githash.OidFull) (*Index, error) {
	idx := &Index{data: data, id: id}

	headerSize := v1HeaderSize
	idx.version = 1
	if len(data) >= 4 && bytes.Equal(data[0:4], []byte(v2Magic)) {
		if len(data) < 8 {
			return nil, xerrors.Errorf("index file too short for a v2 header: %w", ErrInvalidMagic)
		}
		version := binary.BigEndian.Uint32(data[4:8])
		if version != v2Version {
			return nil, xerrors.Errorf("unsupported index version %d: %w", version, ErrInvalidMagic)
		}
		idx.version = 2
		headerSize = v2HeaderSize
	}

	if len(data) < headerSize+fanoutTableSize+trailerSize {
		return nil, xerrors.Errorf("index file too short: %w", ErrCorruptIndex)
	}

	fanoutStart := headerSize
	for i := 0; i < fanoutCount; i++ {
		off := fanoutStart + i*fanoutEntrySize
		idx.fanout[i] = binary.BigEndian.Uint32(data[off : off+4])
	}
	for i := 1; i < fanoutCount; i++ {
		if idx.fanout[i] < idx.fanout[i-1] {
			return nil, xerrors.Errorf("fanout entry %d is smaller than the one before it: %w", i, ErrCorruptIndex)
		}
	}
	idx.num = idx.fanout[fanoutCount-1]

	digestsStart := headerSize + fanoutTableSize
	if idx.version == 1 {
		// v1 interleaves a leading 4-byte offset before each digest.
		digestsStart += 4
	}
	idx.digestsStart = uint32(digestsStart)

	if idx.version == 2 {
		layer2Size := int(idx.num) * githash.OidFullSize
		idx.crcStart = uint32(headerSize + fanoutTableSize + layer2Size)
		idx.smallOffsetsStart = idx.crcStart + idx.num*4
		idx.largeOffsetsStart = idx.smallOffsetsStart + idx.num*4
	} else {
		idx.smallOffsetsStart = uint32(headerSize + fanoutTableSize)
	}

	expected := headerSize + fanoutTableSize + int(idx.num)*v1EntryStride
	if idx.version == 2 {
		expected = int(idx.smallOffsetsStart) + int(idx.num)*4
	}
	if len(data) < expected+trailerSize {
		return nil, xerrors.Errorf("index file shorter than its own object count implies: %w", ErrCorruptIndex)
	}

	return idx, nil
}

// Close unmaps the index file.
func (idx *Index) Close() error {
	return idx.data.Unmap()
}

// ID returns the pack identity this index belongs to.
func (idx *Index) ID() githash.OidFull {
	return idx.id
}

// NumObjects returns the number of objects indexed.
func (idx *Index) NumObjects() int {
	return int(idx.num)
}

func (idx *Index) stride() uint32 {
	if idx.version == 1 {
		return v1EntryStride
	}
	return v2EntryStride
}

// digestFullAt returns the full 20-byte digest at fanout index i.
func (idx *Index) digestFullAt(i int) githash.OidFull {
	off := idx.digestsStart + uint32(i)*idx.stride()
	full, _ := githash.NewOidFullFromBytes(idx.data[off : off+githash.OidFullSize])
	return full
}

// fanoutRange returns the [lo, hi) fanout-table range known to contain
// the given first byte.
func (idx *Index) fanoutRange(firstByte byte) (int, int) {
	lo := 0
	if firstByte > 0 {
		lo = int(idx.fanout[firstByte-1])
	}
	hi := int(idx.fanout[firstByte])
	return lo, hi
}

// FindIndex returns the fanout index of oid, if present.
func (idx *Index) FindIndex(oid githash.Oid) (int, bool) {
	lo, hi := idx.fanoutRange(oid.FirstByte())
	for lo < hi {
		mid := lo + (hi-lo)/2
		full := idx.digestFullAt(mid)
		candidate, _ := full.Truncate()
		switch {
		case candidate == oid:
			return mid, true
		case candidate.Less(oid):
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// Contains reports whether oid is present in the index.
func (idx *Index) Contains(oid githash.Oid) bool {
	_, ok := idx.FindIndex(oid)
	return ok
}

// PackfileOffsetAt returns the offset, within the paired .pack file, of
// the object at fanout index i.
func (idx *Index) PackfileOffsetAt(i int) (uint64, error) {
	if i < 0 || i >= int(idx.num) {
		return 0, xerrors.Errorf("fanout index %d out of range: %w", i, ErrCorruptIndex)
	}
	if idx.version == 1 {
		off := idx.digestsStart - 4 + uint32(i)*idx.stride()
		return uint64(binary.BigEndian.Uint32(idx.data[off : off+4])), nil
	}

	off := idx.smallOffsetsStart + uint32(i)*4
	raw := binary.BigEndian.Uint32(idx.data[off : off+4])
	if raw&msbMask == 0 {
		return uint64(raw), nil
	}
	largeIdx := raw & lowBitsMask
	largeOff := idx.largeOffsetsStart + largeIdx*8
	if int(largeOff)+8 > len(idx.data) {
		return 0, xerrors.Errorf("large offset table entry %d out of range: %w", largeIdx, ErrCorruptIndex)
	}
	return binary.BigEndian.Uint64(idx.data[largeOff : largeOff+8]), nil
}

// FullOidAt returns the full 20-byte digest at fanout index i. Unlike
// the Oid key used for lookups, this preserves the bits Truncate drops,
// for callers that need to re-derive a loose path or display the full
// hex id of a packed object.
func (idx *Index) FullOidAt(i int) (githash.OidFull, error) {
	if i < 0 || i >= int(idx.num) {
		return githash.NullOidFull, xerrors.Errorf("fanout index %d out of range: %w", i, ErrCorruptIndex)
	}
	return idx.digestFullAt(i), nil
}

// CRC32At returns the CRC32 of the object at fanout index i. Only
// available on v2 indexes.
func (idx *Index) CRC32At(i int) (uint32, bool) {
	if idx.version != 2 || i < 0 || i >= int(idx.num) {
		return 0, false
	}
	off := idx.crcStart + uint32(i)*4
	return binary.BigEndian.Uint32(idx.data[off : off+4]), true
}

// WalkFunc is invoked for every (oid, fanoutIndex) pair a walk visits.
// Returning true stops the walk.
type WalkFunc func(oid githash.Oid, fanoutIndex int) bool

// WalkAllOidsFrom yields every (Oid, fanoutIndex) pair in fanout order,
// starting at the given first byte (or from the beginning if nil).
func (idx *Index) WalkAllOidsFrom(startByte *byte, cb WalkFunc) {
	start := 0
	if startByte != nil && *startByte > 0 {
		start = int(idx.fanout[*startByte-1])
	}
	for i := start; i < int(idx.num); i++ {
		full := idx.digestFullAt(i)
		oid, _ := full.Truncate()
		if cb(oid, i) {
			return
		}
	}
}

// PartialMatchEnumeration invokes cb for every object whose id matches
// partial, in fanout order, stopping as soon as a candidate's first byte
// exceeds partial's.
func (idx *Index) PartialMatchEnumeration(partial githash.PartialOid, cb WalkFunc) {
	first := partial.FirstByte()
	idx.WalkAllOidsFrom(&first, func(oid githash.Oid, fanoutIndex int) bool {
		if oid.FirstByte() > first {
			return true
		}
		if partial.Matches(oid) {
			if cb(oid, fanoutIndex) {
				return true
			}
		}
		return false
	})
}
