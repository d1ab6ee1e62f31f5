package fsbackend

import (
	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/ginternals/packfile"
)

// LocationKind tags which arm of a Location is populated.
type LocationKind int8

const (
	// LocationLoose identifies an object stored as a loose file.
	LocationLoose LocationKind = iota + 1
	// LocationPacked identifies an object stored inside a pack.
	LocationPacked
)

// Location is the tagged union iter_all_known_objects/find_matching
// hands back: either a loose object (identified by its truncated key
// plus the remainder needed to rebuild the full digest) or a packed
// one (identified by which pack and where inside it).
type Location struct {
	Kind   LocationKind
	Key    githash.Oid
	Loose  packfile.LooseLocation
	Packed packfile.PackedLocation
}

// FullOid reconstructs the full digest a loose Location points at. For
// a packed location it returns false: the full digest is not stored
// here and has to be read back from the pack's own index
// (packfile.Index.FullOidAt).
func (l Location) FullOid() (githash.OidFull, bool) {
	if l.Kind != LocationLoose {
		return githash.NullOidFull, false
	}
	return l.Loose.OidFull(l.Key), true
}
