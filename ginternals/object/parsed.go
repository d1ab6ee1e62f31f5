package object

import (
	"github.com/mlpln/gitodb/ginternals/githash"
	"golang.org/x/xerrors"
)

// Capabilities bundles the three independent capability knobs a caller
// passes to Parse, so a commit-log walk can ask for cheap commits while
// a tree-diff can ask for full trees.
type Capabilities struct {
	Commit CommitCapability
	Tree   TreeCapability
	Blob   BlobCapability
}

// FullCapabilities requests the most detailed parse of every type.
var FullCapabilities = Capabilities{
	Commit: CommitFull,
	Tree:   TreeFull,
	Blob:   BlobRaw,
}

// Parsed is the tagged union a parse produces: exactly one of the
// pointer fields is non-nil, selected by Kind.
type Parsed struct {
	Kind   Type
	Commit *Commit
	Tree   *Tree
	Blob   *Blob
	Tag    *Tag
}

// Parse dispatches content to the parser matching typ, at the
// capability level requested for that type in caps.
func Parse(id githash.OidFull, typ Type, content []byte, caps Capabilities) (Parsed, error) {
	switch typ {
	case TypeCommit:
		c, err := ParseCommit(id, content, caps.Commit)
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{Kind: TypeCommit, Commit: c}, nil
	case TypeTree:
		t, err := ParseTree(id, content, caps.Tree)
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{Kind: TypeTree, Tree: t}, nil
	case TypeBlob:
		b, err := ParseBlob(id, content, caps.Blob)
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{Kind: TypeBlob, Blob: b}, nil
	case TypeTag:
		t, err := ParseTag(id, content)
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{Kind: TypeTag, Tag: t}, nil
	default:
		return Parsed{}, xerrors.Errorf("cannot parse object type %s: %w", typ, ErrObjectUnknown)
	}
}
