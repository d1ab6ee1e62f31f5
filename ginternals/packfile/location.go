package packfile

import "github.com/mlpln/gitodb/ginternals/githash"

// LooseLocation identifies a loose object by the folder byte its digest
// starts with plus the 32 bits githash.OidFull.Truncate split off, so a
// full digest can be rebuilt without having kept it around.
type LooseLocation struct {
	FolderByte byte
	Remainder  uint32
}

// OidFull reconstructs the full digest this location points at, given
// the truncated key it was found under.
func (l LooseLocation) OidFull(key githash.Oid) githash.OidFull {
	return githash.Rebuild(key, l.Remainder)
}

// PackedLocation identifies an object stored inside a pack: which pack
// (by its .idx identity), its fanout index within that pack, and the
// absolute offset into the .pack payload.
type PackedLocation struct {
	IdxID githash.OidFull
	Index int
	Offset uint64
}
