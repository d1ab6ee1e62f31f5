package object

import (
	"strconv"

	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/internal/readutil"
	"golang.org/x/xerrors"
)

// TreeObjectMode represents the mode of an entry inside a tree.
type TreeObjectMode int32

// Recognized tree entry modes. 100640 is a non-standard mode some tools
// still write; it is folded into ModeFile on read.
const (
	ModeDirectory          TreeObjectMode = 0o040000
	ModeFile               TreeObjectMode = 0o100644
	ModeFileGroupWrite     TreeObjectMode = 0o100664
	modeFileNonExGroupRead TreeObjectMode = 0o100640
	ModeExecutable         TreeObjectMode = 0o100755
	ModeSymLink            TreeObjectMode = 0o120000
	ModeGitLink            TreeObjectMode = 0o160000
)

// IsValid returns whether the mode is one recognized by the tree grammar.
func (m TreeObjectMode) IsValid() bool {
	switch m {
	case ModeDirectory, ModeFile, ModeFileGroupWrite, ModeExecutable, ModeSymLink, ModeGitLink:
		return true
	default:
		return false
	}
}

// ObjectType returns the object type an entry of this mode points to.
func (m TreeObjectMode) ObjectType() Type {
	switch m {
	case ModeDirectory:
		return TypeTree
	case ModeGitLink:
		return TypeCommit
	default:
		return TypeBlob
	}
}

// TreeCapability selects how much of a tree's content a caller wants
// parsed.
type TreeCapability int8

const (
	// TreeFull parses every entry.
	TreeFull TreeCapability = iota
	// TreeNone only validates that the content looks like a tree, without
	// allocating an entry slice.
	TreeNone
)

// TreeEntry is a single entry inside a tree object.
type TreeEntry struct {
	Path string
	ID   githash.OidFull
	Mode TreeObjectMode
}

// Tree is a parsed tree object at the chosen TreeCapability.
type Tree struct {
	ID      githash.OidFull
	Entries []TreeEntry
}

// ParseTree parses a tree object's content.
//
// Grammar (repeated until end of input):
//
//	<mode-octal-ascii> " " <path-utf8> "\0" <20-raw-bytes>
func ParseTree(id githash.OidFull, content []byte, cap TreeCapability) (*Tree, error) {
	t := &Tree{ID: id}
	if cap == TreeNone {
		return t, validateTreeShape(content)
	}

	entries := []TreeEntry{}
	offset := 0
	for i := 1; offset < len(content); i++ {
		entry := TreeEntry{}
		data := readutil.ReadTo(content[offset:], ' ')
		if data == nil {
			return nil, xerrors.Errorf("could not retrieve the mode of entry %d: %w", i, ErrTreeInvalid)
		}
		offset += len(data) + 1
		mode, err := strconv.ParseInt(string(data), 8, 32)
		if err != nil {
			return nil, xerrors.Errorf("could not parse mode of entry %d: %w", i, ErrTreeInvalid)
		}
		entry.Mode = TreeObjectMode(mode)
		if entry.Mode == modeFileNonExGroupRead {
			entry.Mode = ModeFile
		}
		if !entry.Mode.IsValid() {
			return nil, xerrors.Errorf("entry %d has unsupported mode %o: %w", i, mode, ErrTreeInvalid)
		}

		data = readutil.ReadTo(content[offset:], 0)
		if data == nil {
			return nil, xerrors.Errorf("could not retrieve the path of entry %d: %w", i, ErrTreeInvalid)
		}
		offset += len(data) + 1
		entry.Path = string(data)

		if offset+githash.OidFullSize > len(content) {
			return nil, xerrors.Errorf("not enough space to retrieve the id of entry %d: %w", i, ErrTreeInvalid)
		}
		oid, err := githash.NewOidFullFromBytes(content[offset : offset+githash.OidFullSize])
		if err != nil {
			return nil, xerrors.Errorf("invalid id for entry %d: %w", i, ErrTreeInvalid)
		}
		entry.ID = oid
		offset += githash.OidFullSize

		entries = append(entries, entry)
	}
	t.Entries = entries
	return t, nil
}

// validateTreeShape walks the grammar without allocating per-entry data,
// just to confirm the content is well-formed.
func validateTreeShape(content []byte) error {
	offset := 0
	for i := 1; offset < len(content); i++ {
		data := readutil.ReadTo(content[offset:], ' ')
		if data == nil {
			return xerrors.Errorf("could not retrieve the mode of entry %d: %w", i, ErrTreeInvalid)
		}
		offset += len(data) + 1

		data = readutil.ReadTo(content[offset:], 0)
		if data == nil {
			return xerrors.Errorf("could not retrieve the path of entry %d: %w", i, ErrTreeInvalid)
		}
		offset += len(data) + 1

		if offset+githash.OidFullSize > len(content) {
			return xerrors.Errorf("not enough space to retrieve the id of entry %d: %w", i, ErrTreeInvalid)
		}
		offset += githash.OidFullSize
	}
	return nil
}

// ToObject serializes the tree back into its wire format.
func (t *Tree) ToObject() *Object {
	buf := make([]byte, 0, len(t.Entries)*40)
	for _, e := range t.Entries {
		buf = append(buf, []byte(strconv.FormatInt(int64(e.Mode), 8))...)
		buf = append(buf, ' ')
		buf = append(buf, []byte(e.Path)...)
		buf = append(buf, 0)
		buf = append(buf, e.ID.Bytes()...)
	}
	return New(TypeTree, buf)
}
