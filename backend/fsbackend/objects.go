package fsbackend

import (
	"github.com/mlpln/gitodb/ginternals"
	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/ginternals/loose"
	"github.com/mlpln/gitodb/ginternals/object"
	"github.com/mlpln/gitodb/ginternals/packfile"
	"golang.org/x/xerrors"
)

// IterAllKnownObjects enumerates every object the facade can see: all
// 256 loose folders (missing ones are silently empty) and every
// pack-<40hex>.idx under the pack directory. cb returning true stops
// the enumeration early.
func (db *Database) IterAllKnownObjects(state *State, cb func(Location) bool) error {
	for b := 0; b < 256; b++ {
		contents, err := state.ensureLooseDir(byte(b))
		if err != nil {
			return err
		}
		for key, remainder := range contents {
			loc := Location{
				Kind:  LocationLoose,
				Key:   key,
				Loose: packfile.LooseLocation{FolderByte: byte(b), Remainder: remainder},
			}
			if cb(loc) {
				return nil
			}
		}
	}

	idxIDs, err := state.ensurePackDir()
	if err != nil {
		return err
	}
	for _, id := range idxIDs {
		if cb(Location{Kind: LocationPacked, Packed: packfile.PackedLocation{IdxID: id}}) {
			return nil
		}
	}
	return nil
}

// FindMatching searches loose then packed objects for every one whose
// id matches partial, per §4.G: loose by walking only the folder
// first_byte(partial), packed by walking every discovered .idx via the
// index's own partial enumerator. cb returning true stops the search.
func (db *Database) FindMatching(partial githash.PartialOid, state *State, cb func(githash.Oid, Location) bool) error {
	contents, err := state.ensureLooseDir(partial.FirstByte())
	if err != nil {
		return err
	}
	for key, remainder := range contents {
		if !partial.Matches(key) {
			continue
		}
		loc := Location{
			Kind:  LocationLoose,
			Key:   key,
			Loose: packfile.LooseLocation{FolderByte: partial.FirstByte(), Remainder: remainder},
		}
		if cb(key, loc) {
			return nil
		}
	}

	idxIDs, err := state.ensurePackDir()
	if err != nil {
		return err
	}
	for _, id := range idxIDs {
		h, err := state.pack(id)
		if err != nil {
			return err
		}
		stop := false
		h.idx.PartialMatchEnumeration(partial, func(oid githash.Oid, fanoutIndex int) bool {
			h.rememberFanoutIndex(oid, fanoutIndex)
			offset, offErr := h.idx.PackfileOffsetAt(fanoutIndex)
			if offErr != nil {
				stop = true
				return true
			}
			loc := Location{
				Kind: LocationPacked,
				Key:  oid,
				Packed: packfile.PackedLocation{
					IdxID:  id,
					Index:  fanoutIndex,
					Offset: offset,
				},
			}
			if cb(oid, loc) {
				stop = true
			}
			return stop
		})
		if stop {
			return nil
		}
	}
	return nil
}

// FindFirst stops at the first hit found by FindMatching. Resolve
// builds on this package's FindMatching directly instead, since telling
// Unique from Ambiguous requires counting every match rather than
// stopping at the first one.
func (db *Database) FindFirst(partial githash.PartialOid, state *State) (githash.Oid, Location, bool, error) {
	var (
		foundOid githash.Oid
		foundLoc Location
		found    bool
	)
	err := db.FindMatching(partial, state, func(oid githash.Oid, loc Location) bool {
		foundOid, foundLoc, found = oid, loc, true
		return true
	})
	return foundOid, foundLoc, found, err
}

// Resolve disambiguates a partial id, per §4.G's ambiguity policy: zero
// matches is ginternals.ErrObjectNotFound, exactly one is returned, two
// or more is a *ginternals.AmbiguousError carrying every match.
func (db *Database) Resolve(partial githash.PartialOid, state *State) (githash.Oid, Location, error) {
	var matches []githash.Oid
	var locs []Location
	err := db.FindMatching(partial, state, func(oid githash.Oid, loc Location) bool {
		matches = append(matches, oid)
		locs = append(locs, loc)
		return false
	})
	if err != nil {
		return githash.NullOid, Location{}, err
	}
	switch len(matches) {
	case 0:
		return githash.NullOid, Location{}, ginternals.ErrObjectNotFound
	case 1:
		return matches[0], locs[0], nil
	default:
		return githash.NullOid, Location{}, &ginternals.AmbiguousError{Prefix: partial.String(), Matches: matches}
	}
}

// GetObject materializes the parsed object at loc, per §4.G: a loose
// location goes through §4.C then §4.F; a packed location opens its
// pack lazily, decodes the entry header and resolves any delta chain,
// falling back to the facade itself when a ref-delta's base lives in a
// different pack or loose. A decoded-object cache is consulted first,
// keyed by the full digest for a loose object and by the packed
// location for a packed one (see cacheKeyFor), since the same
// blob/tree/commit is routinely revisited while walking history.
func (db *Database) GetObject(loc Location, state *State, caps object.Capabilities) (object.Parsed, error) {
	cacheKey, hasCacheKey := cacheKeyFor(loc)
	if hasCacheKey {
		if cached, ok := state.objCache.Get(cacheKey); ok {
			return cached.(object.Parsed), nil
		}
	}

	parsed, err := db.getObjectUncached(loc, state, caps)
	if err != nil {
		return object.Parsed{}, err
	}
	if hasCacheKey {
		state.objCache.Add(cacheKey, parsed)
	}
	return parsed, nil
}

func (db *Database) getObjectUncached(loc Location, state *State, caps object.Capabilities) (object.Parsed, error) {
	switch loc.Kind {
	case LocationLoose:
		full, _ := loc.FullOid()
		path := state.paths.LooseObjectPath(full)
		typ, payload, err := loose.Read(path, &state.decomp, false)
		if err != nil {
			return object.Parsed{}, xerrors.Errorf("could not read loose object %s: %w", full, err)
		}
		return object.Parse(full, typ, payload.Bytes(), caps)
	case LocationPacked:
		h, err := state.pack(loc.Packed.IdxID)
		if err != nil {
			return object.Parsed{}, err
		}
		typ, content, err := h.pack.ResolveAt(int(loc.Packed.Offset), &refResolver{state: state})
		if err != nil {
			return object.Parsed{}, xerrors.Errorf("could not resolve packed object at offset %d: %w", loc.Packed.Offset, err)
		}
		id, err := h.idx.FullOidAt(loc.Packed.Index)
		if err != nil {
			return object.Parsed{}, xerrors.Errorf("could not recover full id for packed object at offset %d: %w", loc.Packed.Offset, err)
		}
		return object.Parse(id, typ, content, caps)
	default:
		return object.Parsed{}, xerrors.Errorf("unknown location kind %d: %w", loc.Kind, ginternals.ErrUnsupported)
	}
}

// cacheKeyFor returns the key GetObject's decoded-object cache should
// use for loc: the full digest for a loose object, or the pack
// identity plus offset for a packed one (cheaper than resolving its
// full id before knowing whether it's even cached).
func cacheKeyFor(loc Location) (interface{}, bool) {
	switch loc.Kind {
	case LocationLoose:
		full, ok := loc.FullOid()
		return full, ok
	case LocationPacked:
		return loc.Packed, true
	default:
		return nil, false
	}
}

// refResolver adapts the facade to packfile.BaseResolver, so a
// ref-delta whose base isn't in the same pack can be completed by
// another pack or a loose object.
type refResolver struct {
	state *State
}

func (r *refResolver) ResolveOid(oid githash.OidFull) (object.Type, []byte, error) {
	key, _ := oid.Truncate()

	contents, err := r.state.ensureLooseDir(oid.FirstByte())
	if err != nil {
		return 0, nil, err
	}
	if _, ok := contents[key]; ok {
		path := r.state.paths.LooseObjectPath(oid)
		typ, payload, err := loose.Read(path, &r.state.decomp, false)
		if err != nil {
			return 0, nil, err
		}
		return typ, payload.Bytes(), nil
	}

	idxIDs, err := r.state.ensurePackDir()
	if err != nil {
		return 0, nil, err
	}
	for _, id := range idxIDs {
		h, err := r.state.pack(id)
		if err != nil {
			return 0, nil, err
		}
		if fanoutIdx, ok := h.fanoutIndex(key); ok {
			offset, err := h.idx.PackfileOffsetAt(fanoutIdx)
			if err != nil {
				return 0, nil, err
			}
			return h.pack.ResolveAt(int(offset), r)
		}
	}
	return 0, nil, xerrors.Errorf("ref-delta base %s not found loose or in any pack: %w", oid, packfile.ErrBaseNotFound)
}
