// Package loose reads the loose object files under a git objects
// directory: one zlib-compressed "<type> <size>\0<content>" blob per
// file, keyed by the hex digest of its own content.
package loose

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/mlpln/gitodb/ginternals"
	"github.com/mlpln/gitodb/ginternals/object"
	"github.com/mlpln/gitodb/internal/readutil"
	"golang.org/x/xerrors"
)

// headerPeekSize is the maximum number of decompressed bytes scanned
// for the header's terminating null byte.
const headerPeekSize = 128

// inlineCapacity is the Payload small-buffer size; objects at or under
// this size never touch the heap for their content.
const inlineCapacity = 4096

var (
	// ErrCorruptHeader is returned when the loose header can't be
	// parsed: no null byte within headerPeekSize bytes, an unknown
	// type token, or a non-decimal size.
	ErrCorruptHeader = xerrors.Errorf("corrupt loose object header: %w", ginternals.ErrCorrupt)
	// ErrShortRead is returned when the decompressor produced fewer
	// bytes than the header's declared size.
	ErrShortRead = errors.New("short read decompressing loose object")
)

// Payload is a small-buffer-optimized byte container: content at or
// under inlineCapacity lives in the struct itself, larger content
// spills to a heap allocation. Callers should hold it by pointer to
// avoid copying the inline array.
type Payload struct {
	inline [inlineCapacity]byte
	data   []byte
}

// Bytes returns the payload's content.
func (p *Payload) Bytes() []byte {
	return p.data
}

func (p *Payload) grow(n int) []byte {
	if n <= inlineCapacity {
		p.data = p.inline[:n]
	} else {
		p.data = make([]byte, n)
	}
	return p.data
}

// Decompressor is a reusable zlib reader. Reset rebinds it to a new
// source without discarding its internal decode window, so a caller
// threading one Decompressor through many reads amortizes the
// allocation the first zlib.NewReader call makes.
type Decompressor struct {
	zr io.ReadCloser
}

func (d *Decompressor) bind(src io.Reader) (io.Reader, error) {
	if d.zr == nil {
		zr, err := zlib.NewReader(src)
		if err != nil {
			return nil, err
		}
		d.zr = zr
		return zr, nil
	}
	if err := d.zr.(zlib.Resetter).Reset(src, nil); err != nil {
		return nil, err
	}
	return d.zr, nil
}

// Read decompresses the loose object file at path. dec is reset to
// this file's stream. If the object is a blob and skipBlobBody is
// set, the header is still fully validated but Payload is returned
// empty, saving the decompression of large blob content the caller
// doesn't need.
func Read(path string, dec *Decompressor, skipBlobBody bool) (object.Type, *Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, xerrors.Errorf("could not open loose object %s: %w", path, err)
	}
	defer f.Close()

	zr, err := dec.bind(f)
	if err != nil {
		return 0, nil, xerrors.Errorf("could not open zlib stream for %s: %w", path, err)
	}

	header := make([]byte, headerPeekSize)
	headerLen, err := readUntilNulOrFull(zr, header)
	if err != nil {
		return 0, nil, xerrors.Errorf("could not read header of %s: %w", path, err)
	}
	header = header[:headerLen]

	nulAt := bytes.IndexByte(header, 0)
	if nulAt < 0 {
		return 0, nil, xerrors.Errorf("no null byte found within %d bytes of %s: %w", headerPeekSize, path, ErrCorruptHeader)
	}

	typeToken := readutil.ReadTo(header[:nulAt], ' ')
	if typeToken == nil {
		return 0, nil, xerrors.Errorf("malformed header in %s: %w", path, ErrCorruptHeader)
	}
	typ, err := object.NewTypeFromString(string(typeToken))
	if err != nil {
		return 0, nil, xerrors.Errorf("unknown object type %q in %s: %w", typeToken, path, ErrCorruptHeader)
	}

	sizeToken := header[len(typeToken)+1 : nulAt]
	size, err := strconv.Atoi(string(sizeToken))
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, nil, xerrors.Errorf("size %q in %s does not fit the platform int: %w", sizeToken, path, ginternals.ErrOversize)
		}
		return 0, nil, xerrors.Errorf("non-decimal size %q in %s: %w", sizeToken, path, ErrCorruptHeader)
	}
	if size < 0 {
		return 0, nil, xerrors.Errorf("non-decimal size %q in %s: %w", sizeToken, path, ErrCorruptHeader)
	}

	alreadyRead := header[nulAt+1:]
	if typ == object.TypeBlob && skipBlobBody {
		return typ, &Payload{}, nil
	}
	if len(alreadyRead) > size {
		return 0, nil, xerrors.Errorf("object content overran its declared size in %s: %w", path, ErrCorruptHeader)
	}

	payload := &Payload{}
	buf := payload.grow(size)
	got := copy(buf, alreadyRead)
	for got < size {
		n, err := zr.Read(buf[got:])
		got += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, nil, xerrors.Errorf("could not decompress %s: %w", path, err)
		}
	}
	if got != size {
		return 0, nil, xerrors.Errorf("wanted %d bytes, got %d from %s: %w", size, got, path, ErrShortRead)
	}
	return typ, payload, nil
}

// readUntilNulOrFull drives r in a loop, stopping as soon as a null
// byte has been seen or buf is full, matching the decompressor-loop
// discipline described in §4.C.
func readUntilNulOrFull(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if bytes.IndexByte(buf[:total], 0) >= 0 {
			return total, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}
