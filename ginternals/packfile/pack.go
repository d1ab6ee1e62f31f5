package packfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/mlpln/gitodb/ginternals"
	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/ginternals/object"
	"golang.org/x/xerrors"
)

// ErrCorruptPack is returned when an entry header, delta stream, or
// opcode fails validation.
var ErrCorruptPack = xerrors.Errorf("corrupt pack file: %w", ginternals.ErrCorrupt)

// ErrBaseNotFound is returned when a ref-delta's base can't be found in
// the pack's own index and no BaseResolver was supplied (or the
// resolver itself came up empty).
var ErrBaseNotFound = errors.New("delta base object not found")

const (
	packMagic      = "PACK"
	packHeaderSize = 12
	// maxEntryHeaderLen bounds the type+size varint (at most 10 bytes,
	// for a 64-bit size) plus the longest possible trailer: a ref-delta's
	// 20-byte base oid. An ofs-delta's own varint trailer is shorter.
	maxEntryHeaderLen = 30
	maxOfsDeltaLen    = 9
	copyLenDefault    = 65536

	// reservedEntryType is pack entry type 5, reserved by the pack format
	// for future use and never produced by any known writer.
	reservedEntryType object.Type = 5
)

// BaseResolver supplies the payload of a ref-delta's base object when
// it isn't present in the same pack, so a cross-pack or loose object
// can complete the chain.
type BaseResolver interface {
	ResolveOid(oid githash.OidFull) (object.Type, []byte, error)
}

// Pack is a mmapped .pack file paired with its .idx.
type Pack struct {
	data mmap.MMap
	idx  *Index
	id   githash.OidFull
}

// OpenPack mmaps the .pack file at path and pairs it with idx, which
// the caller is expected to have opened from the sibling .idx file.
func OpenPack(path string, idx *Index, id githash.OidFull) (*Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("could not open pack file: %w", err)
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, xerrors.Errorf("could not mmap pack file: %w", err)
	}

	if len(data) < packHeaderSize {
		_ = data.Unmap()
		return nil, xerrors.Errorf("pack file shorter than its header: %w", ErrCorruptPack)
	}
	if !bytes.Equal(data[0:4], []byte(packMagic)) {
		_ = data.Unmap()
		return nil, xerrors.Errorf("bad pack magic: %w", ErrInvalidMagic)
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != 2 && version != 3 {
		_ = data.Unmap()
		return nil, xerrors.Errorf("unsupported pack version %d: %w", version, ErrInvalidMagic)
	}

	return &Pack{data: data, idx: idx, id: id}, nil
}

// Close unmaps the pack file. The paired index is owned by the caller.
func (p *Pack) Close() error {
	return p.data.Unmap()
}

// ID returns the pack's identity.
func (p *Pack) ID() githash.OidFull {
	return p.id
}

// ObjectCount returns the number of objects the header claims to hold.
func (p *Pack) ObjectCount() uint32 {
	return binary.BigEndian.Uint32(p.data[8:12])
}

// entryHeader is the decoded type+size(+delta base) prefix of a pack
// entry, per spec §4.E.
type entryHeader struct {
	typ             object.Type
	size            uint64
	payloadStart    int
	ofsBaseOffset   int // absolute offset of the OfsDelta base entry
	refBaseOid      githash.OidFull
}

// parseEntryHeader decodes the entry starting at the given absolute
// offset into the mmapped pack.
func (p *Pack) parseEntryHeader(offset int) (entryHeader, error) {
	if offset < 0 || offset >= len(p.data) {
		return entryHeader{}, xerrors.Errorf("entry offset %d out of range: %w", offset, ErrCorruptPack)
	}
	end := offset + maxEntryHeaderLen
	if end > len(p.data) {
		end = len(p.data)
	}
	window := p.data[offset:end]
	if len(window) == 0 {
		return entryHeader{}, xerrors.Errorf("no bytes at entry offset %d: %w", offset, ErrCorruptPack)
	}

	b0 := window[0]
	typeTag := object.Type((b0 >> 4) & 0x07)
	size := uint64(b0 & 0x0F)
	shift := uint(4)
	pos := 1

	if b0&0x80 != 0 {
		done := false
		for ; pos < len(window); pos++ {
			b := window[pos]
			size |= uint64(b&0x7F) << shift
			shift += 7
			if b&0x80 == 0 {
				pos++
				done = true
				break
			}
		}
		if !done {
			return entryHeader{}, xerrors.Errorf("entry size varint did not terminate within %d bytes: %w", maxEntryHeaderLen, ErrCorruptPack)
		}
	}

	hdr := entryHeader{typ: typeTag, size: size}

	switch typeTag {
	case object.ObjectDeltaOFS:
		if pos >= len(window) {
			return entryHeader{}, xerrors.Errorf("truncated ofs-delta offset at entry %d: %w", offset, ErrCorruptPack)
		}
		v, consumed, err := readOfsDeltaOffset(window[pos:])
		if err != nil {
			return entryHeader{}, xerrors.Errorf("could not read ofs-delta offset at entry %d: %w", offset, err)
		}
		if v == 0 || v > uint64(offset) {
			return entryHeader{}, xerrors.Errorf("ofs-delta base offset %d exceeds entry offset %d: %w", v, offset, ErrCorruptPack)
		}
		hdr.ofsBaseOffset = offset - int(v)
		pos += consumed
	case object.ObjectDeltaRef:
		if pos+githash.OidFullSize > len(window) {
			return entryHeader{}, xerrors.Errorf("truncated ref-delta base at entry %d: %w", offset, ErrCorruptPack)
		}
		base, err := githash.NewOidFullFromBytes(window[pos : pos+githash.OidFullSize])
		if err != nil {
			return entryHeader{}, xerrors.Errorf("invalid ref-delta base at entry %d: %w", offset, err)
		}
		hdr.refBaseOid = base
		pos += githash.OidFullSize
	default:
		if typeTag == reservedEntryType {
			return entryHeader{}, xerrors.Errorf("reserved entry type %d at offset %d: %w", typeTag, offset, ginternals.ErrUnsupported)
		}
		if !typeTag.IsValid() {
			return entryHeader{}, xerrors.Errorf("unknown entry type %d at offset %d: %w", typeTag, offset, ErrCorruptPack)
		}
	}

	hdr.payloadStart = offset + pos
	return hdr, nil
}

// decompressPayload inflates exactly hdr.size bytes starting at
// hdr.payloadStart. The mmap already holds the whole file, so the zlib
// reader is simply fed the remainder of the mapping; it stops on its
// own once the deflate stream ends.
func (p *Pack) decompressPayload(hdr entryHeader) ([]byte, error) {
	if hdr.payloadStart > len(p.data) {
		return nil, xerrors.Errorf("payload start %d past end of pack: %w", hdr.payloadStart, ErrCorruptPack)
	}
	if hdr.size > math.MaxInt {
		return nil, xerrors.Errorf("entry size %d at %d does not fit the platform int: %w", hdr.size, hdr.payloadStart, ginternals.ErrOversize)
	}
	zr, err := zlib.NewReader(bytes.NewReader(p.data[hdr.payloadStart:]))
	if err != nil {
		return nil, xerrors.Errorf("could not open zlib stream at %d: %w", hdr.payloadStart, err)
	}
	defer zr.Close()

	out := make([]byte, hdr.size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, xerrors.Errorf("short read inflating entry at %d: %w", hdr.payloadStart, err)
	}
	return out, nil
}

// deltaFrame is one link of an ofs-delta chain discovered while walking
// backwards from the requested entry to its ultimate base.
type deltaFrame struct {
	header entryHeader
}

// ResolveAt materializes the object stored at the given absolute pack
// offset, walking any ofs-delta chain iteratively and calling resolver
// only when a ref-delta's base isn't present in this pack's own index.
func (p *Pack) ResolveAt(offset int, resolver BaseResolver) (object.Type, []byte, error) {
	var frames []deltaFrame

	cur := offset
	for {
		hdr, err := p.parseEntryHeader(cur)
		if err != nil {
			return 0, nil, err
		}

		switch hdr.typ {
		case object.ObjectDeltaOFS:
			frames = append(frames, deltaFrame{header: hdr})
			cur = hdr.ofsBaseOffset
			continue
		case object.ObjectDeltaRef:
			frames = append(frames, deltaFrame{header: hdr})
			baseType, basePayload, err := p.resolveRefBase(hdr.refBaseOid, resolver)
			if err != nil {
				return 0, nil, err
			}
			return p.applyFrames(frames, baseType, basePayload)
		default:
			payload, err := p.decompressPayload(hdr)
			if err != nil {
				return 0, nil, err
			}
			return p.applyFrames(frames, hdr.typ, payload)
		}
	}
}

// resolveRefBase looks up a ref-delta base first in this pack's own
// index, falling back to resolver for cross-pack/loose resolution.
func (p *Pack) resolveRefBase(oid githash.OidFull, resolver BaseResolver) (object.Type, []byte, error) {
	key, _ := oid.Truncate()
	if fanoutIdx, ok := p.idx.FindIndex(key); ok {
		baseOffset, err := p.idx.PackfileOffsetAt(fanoutIdx)
		if err != nil {
			return 0, nil, xerrors.Errorf("could not get offset of local ref-delta base %s: %w", oid.String(), err)
		}
		return p.ResolveAt(int(baseOffset), resolver)
	}
	if resolver == nil {
		return 0, nil, xerrors.Errorf("ref-delta base %s not in this pack and no resolver given: %w", oid.String(), ErrBaseNotFound)
	}
	typ, payload, err := resolver.ResolveOid(oid)
	if err != nil {
		return 0, nil, xerrors.Errorf("could not resolve ref-delta base %s: %w", oid.String(), err)
	}
	return typ, payload, nil
}

// applyFrames replays a discovered ofs/ref-delta chain, innermost
// (closest to the base) first, against the materialized base payload.
func (p *Pack) applyFrames(frames []deltaFrame, baseType object.Type, basePayload []byte) (object.Type, []byte, error) {
	current := basePayload
	for i := len(frames) - 1; i >= 0; i-- {
		raw, err := p.decompressPayload(frames[i].header)
		if err != nil {
			return 0, nil, err
		}
		current, err = applyDelta(raw, current)
		if err != nil {
			return 0, nil, err
		}
	}
	return baseType, current, nil
}

// applyDelta strips the leading base-size/result-size varints from a
// decompressed delta stream and replays its COPY/INSERT opcodes
// against base, per spec §3.
func applyDelta(delta []byte, base []byte) ([]byte, error) {
	sourceSize, n1, err := readSizeVarintLE(delta)
	if err != nil {
		return nil, xerrors.Errorf("could not read delta base size: %w", err)
	}
	if sourceSize != uint64(len(base)) {
		return nil, xerrors.Errorf("delta base size %d does not match actual base of %d bytes: %w", sourceSize, len(base), ErrCorruptPack)
	}
	resultSize, n2, err := readSizeVarintLE(delta[n1:])
	if err != nil {
		return nil, xerrors.Errorf("could not read delta result size: %w", err)
	}

	instructions := delta[n1+n2:]
	out := make([]byte, 0, resultSize)

	for i := 0; i < len(instructions); {
		op := instructions[i]
		i++

		switch {
		case op&0x80 != 0: // COPY
			var offsetBytes, sizeBytes [4]byte
			for bit := 0; bit < 4; bit++ {
				if op&(1<<uint(bit)) != 0 {
					if i >= len(instructions) {
						return nil, xerrors.Errorf("truncated copy offset: %w", ErrCorruptPack)
					}
					offsetBytes[bit] = instructions[i]
					i++
				}
			}
			for bit := 0; bit < 3; bit++ {
				if op&(1<<uint(4+bit)) != 0 {
					if i >= len(instructions) {
						return nil, xerrors.Errorf("truncated copy size: %w", ErrCorruptPack)
					}
					sizeBytes[bit] = instructions[i]
					i++
				}
			}
			copyOffset := binary.LittleEndian.Uint32(offsetBytes[:])
			copyLen := binary.LittleEndian.Uint32(sizeBytes[:])
			if copyLen == 0 {
				copyLen = copyLenDefault
			}
			if uint64(copyOffset)+uint64(copyLen) > uint64(len(base)) {
				return nil, xerrors.Errorf("copy instruction reads past base (offset %d, len %d, base %d): %w", copyOffset, copyLen, len(base), ErrCorruptPack)
			}
			out = append(out, base[copyOffset:copyOffset+copyLen]...)
		case op != 0: // INSERT
			if i+int(op) > len(instructions) {
				return nil, xerrors.Errorf("insert instruction reads past delta stream: %w", ErrCorruptPack)
			}
			out = append(out, instructions[i:i+int(op)]...)
			i += int(op)
		default:
			return nil, xerrors.Errorf("opcode 0 is illegal: %w", ErrCorruptPack)
		}
	}

	if uint64(len(out)) != resultSize {
		return nil, xerrors.Errorf("delta produced %d bytes, expected %d: %w", len(out), resultSize, ErrCorruptPack)
	}
	return out, nil
}

// readSizeVarintLE reads a plain little-endian 7-bit continuation
// varint (used for the delta stream's two leading size fields; the
// entry header's size tail has the same layout but parseEntryHeader
// decodes it inline): each byte contributes 7 bits,
// least-significant chunk first, continuing while the MSB is set.
func readSizeVarintLE(data []byte) (value uint64, consumed int, err error) {
	var shift uint
	for i, b := range data {
		value |= uint64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, xerrors.Errorf("size varint did not terminate within %d bytes: %w", len(data), ErrCorruptPack)
}

// readOfsDeltaOffset reads the biased, big-endian-accumulated negative
// offset varint that follows an ofs-delta's size header: each
// continuation chunk is stored with a -1 bias that must be added back.
func readOfsDeltaOffset(data []byte) (value uint64, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, xerrors.Errorf("empty ofs-delta offset: %w", ErrCorruptPack)
	}
	value = uint64(data[0] & 0x7F)
	consumed = 1
	for data[consumed-1]&0x80 != 0 {
		if consumed >= maxOfsDeltaLen || consumed >= len(data) {
			return 0, 0, xerrors.Errorf("ofs-delta offset did not terminate within %d bytes: %w", maxOfsDeltaLen, ErrCorruptPack)
		}
		b := data[consumed]
		value = ((value + 1) << 7) | uint64(b&0x7F)
		consumed++
	}
	return value, consumed, nil
}

// WalkAllOids yields every (Oid, fanoutIndex) pair of the pack's
// objects in fanout order; it reuses the index's walk since every
// packed object is indexed.
func (p *Pack) WalkAllOids(cb func(oid githash.Oid, fanoutIndex int) bool) {
	p.idx.WalkAllOidsFrom(nil, cb)
}
