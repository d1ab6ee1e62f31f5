package object

import (
	"bytes"

	"github.com/mlpln/gitodb/ginternals"
	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/internal/readutil"
	"golang.org/x/xerrors"
)

// ErrTagInvalid is returned when parsing an invalid annotated tag.
var ErrTagInvalid = xerrors.Errorf("invalid tag: %w", ginternals.ErrCorrupt)

// Tag is a parsed annotated tag object. Annotated tags are rare enough
// (one per release, not one per commit) that there is no capability
// knob for them; they are always fully parsed.
type Tag struct {
	ID      githash.OidFull
	Target  githash.OidFull
	Type    Type
	Name    string
	Tagger  Signature
	GPGSig  string
	Message string
}

// ParseTag parses an annotated tag object's content.
//
//	"object " <40-hex> "\n"
//	"type " <type> "\n"
//	"tag " <name> "\n"
//	"tagger " <signature> "\n"
//	["gpgsig " <pgp-block> "\n"]
//	"\n"
//	<message>
func ParseTag(id githash.OidFull, content []byte) (*Tag, error) {
	t := &Tag{ID: id}
	offset := 0
	for {
		line := readutil.ReadTo(content[offset:], '\n')
		if line == nil && offset == 0 {
			return nil, xerrors.Errorf("could not find tag first line: %w", ErrTagInvalid)
		}
		if len(line) == 0 {
			offset++
			if offset <= len(content) {
				t.Message = string(content[offset:])
			}
			break
		}
		offset += len(line) + 1

		kv := bytes.SplitN(line, []byte{' '}, 2)
		if len(kv) != 2 {
			continue
		}
		switch string(kv[0]) {
		case "object":
			target, err := githash.NewOidFullFromHex(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse target id %q: %w", kv[1], ErrTagInvalid)
			}
			t.Target = target
		case "type":
			typ, err := NewTypeFromString(string(kv[1]))
			if err != nil {
				return nil, xerrors.Errorf("invalid object type %q: %w", kv[1], ErrTagInvalid)
			}
			t.Type = typ
		case "tag":
			t.Name = string(kv[1])
		case "tagger":
			sig, err := NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse tagger: %w", err)
			}
			t.Tagger = sig
		case "gpgsig":
			begin := string(kv[1]) + "\n"
			end := "-----END PGP SIGNATURE-----"
			i := bytes.Index(content[offset:], []byte(end))
			if i < 0 {
				return nil, xerrors.Errorf("unterminated gpgsig block: %w", ErrTagInvalid)
			}
			t.GPGSig = begin + string(content[offset:offset+i]) + end
			offset += len(end) + i + 1
		}
	}

	if t.Tagger.IsZero() {
		return nil, xerrors.Errorf("tag has no tagger: %w", ErrTagInvalid)
	}
	if t.Target.IsZero() {
		return nil, xerrors.Errorf("tag has no target: %w", ErrTagInvalid)
	}
	if !t.Type.IsValid() {
		return nil, xerrors.Errorf("tag has no type: %w", ErrTagInvalid)
	}
	return t, nil
}

// ToObject serializes the tag back into its wire format.
func (t *Tag) ToObject() *Object {
	buf := new(bytes.Buffer)
	buf.WriteString("object ")
	buf.WriteString(t.Target.String())
	buf.WriteByte('\n')

	buf.WriteString("type ")
	buf.WriteString(t.Type.String())
	buf.WriteByte('\n')

	buf.WriteString("tag ")
	buf.WriteString(t.Name)
	buf.WriteByte('\n')

	buf.WriteString("tagger ")
	buf.WriteString(t.Tagger.String())
	buf.WriteByte('\n')

	if t.GPGSig != "" {
		buf.WriteString("gpgsig ")
		buf.WriteString(t.GPGSig)
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return NewWithID(t.ID, TypeTag, buf.Bytes())
}
