package fsbackend

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/ginternals/loose"
	"github.com/mlpln/gitodb/ginternals/packfile"
	"github.com/mlpln/gitodb/ginternals/pathbuilder"
	"github.com/mlpln/gitodb/internal/cache"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// decodedObjectCacheSize bounds how many parsed objects State.objCache
// keeps warm; it trades a bounded amount of memory for skipping
// re-inflation/re-parsing of objects a caller's walk revisits (e.g.
// commit parents shared by two branches).
const decodedObjectCacheSize = 4096

// packHandle memoizes an open .idx/.pack pair plus a fast map built
// incrementally from whatever fanout walks have already touched this
// pack, so a hot pack doesn't pay a binary search on every lookup.
// Handles live in the Database's shared pool, so fastMap is guarded:
// more than one State may be walking the same pack concurrently.
type packHandle struct {
	idx  *packfile.Index
	pack *packfile.Pack

	fastMapMu sync.Mutex
	fastMap   map[githash.Oid]int // oid -> fanout index, populated lazily
}

func newPackHandle(idx *packfile.Index, pack *packfile.Pack) *packHandle {
	return &packHandle{idx: idx, pack: pack, fastMap: make(map[githash.Oid]int)}
}

func (h *packHandle) rememberFanoutIndex(oid githash.Oid, fanoutIndex int) {
	h.fastMapMu.Lock()
	h.fastMap[oid] = fanoutIndex
	h.fastMapMu.Unlock()
}

// fanoutIndex looks up oid's fanout index, consulting the fast map
// before falling back to the index's own binary search. A search hit
// is remembered so later lookups for the same oid in this pack skip
// the search entirely.
func (h *packHandle) fanoutIndex(oid githash.Oid) (int, bool) {
	h.fastMapMu.Lock()
	fanoutIndex, ok := h.fastMap[oid]
	h.fastMapMu.Unlock()
	if ok {
		return fanoutIndex, true
	}

	fanoutIndex, ok = h.idx.FindIndex(oid)
	if !ok {
		return 0, false
	}
	h.rememberFanoutIndex(oid, fanoutIndex)
	return fanoutIndex, true
}

// State is the mutable handle threaded through every read (§4.H): the
// per-folder readdir caches and reusable decompressor are private to
// whoever holds the State, while opened packs come from the owning
// Database's shared pool. A State itself is not safe for concurrent
// use: callers sharing one across goroutines must serialize access
// themselves, but independent States derived from the same Database
// do share (and don't redundantly re-open) pack files.
type State struct {
	db    *Database
	paths *pathbuilder.Builder

	decomp loose.Decompressor

	looseDirs   [256]map[githash.Oid]uint32 // key -> remainder; nil until visited
	packDirSeen bool
	idxIDs      []githash.OidFull
	handles     map[githash.OidFull]*packHandle

	objCache *cache.LRU
}

// newState creates a lookup state bound to db.
func newState(db *Database) (*State, error) {
	paths, err := pathbuilder.New(db.root)
	if err != nil {
		return nil, xerrors.Errorf("could not build path builder for %s: %w", db.root, err)
	}
	return &State{
		db:       db,
		paths:    paths,
		handles:  make(map[githash.OidFull]*packHandle),
		objCache: cache.NewLRU(decodedObjectCacheSize),
	}, nil
}

// Close releases this State's private resources. Packs are owned by
// the Database's shared pool and outlive any single State, so Close
// does not unmap them; call Database.Close once every derived State is
// done.
func (s *State) Close() error {
	return nil
}

// ensureLooseDir performs the readdir for loose folder b the first time
// it's needed, memoizing the result. A missing folder is treated as
// empty, not an error.
func (s *State) ensureLooseDir(b byte) (map[githash.Oid]uint32, error) {
	if s.looseDirs[b] != nil {
		return s.looseDirs[b], nil
	}

	dir := s.paths.LooseFolder(b)
	entries, err := afero.ReadDir(s.db.fs, dir)
	if err != nil {
		s.looseDirs[b] = map[githash.Oid]uint32{}
		return s.looseDirs[b], nil
	}

	contents := make(map[githash.Oid]uint32, len(entries))
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) != githash.OidHexSize-2 {
			continue
		}
		hex := append([]byte{hexDigit(b >> 4), hexDigit(b & 0x0f)}, []byte(e.Name())...)
		full, err := githash.NewOidFullFromHex(hex)
		if err != nil {
			continue // not a loose object file, skip it
		}
		key, remainder := full.Truncate()
		contents[key] = remainder
	}
	s.looseDirs[b] = contents
	return contents, nil
}

func hexDigit(v byte) byte {
	const digits = "0123456789abcdef"
	return digits[v&0x0f]
}

// ensurePackDir performs the readdir of the pack directory the first
// time it's needed, memoizing the discovered idx identities. A missing
// directory is treated as empty.
func (s *State) ensurePackDir() ([]githash.OidFull, error) {
	if s.packDirSeen {
		return s.idxIDs, nil
	}
	s.packDirSeen = true

	dir := s.paths.PacksDir()
	entries, err := afero.ReadDir(s.db.fs, dir)
	if err != nil {
		return nil, nil
	}

	ids := make([]githash.OidFull, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".idx" {
			continue
		}
		name := e.Name()
		const prefix, ext = "pack-", ".idx"
		if len(name) != len(prefix)+githash.OidHexSize+len(ext) {
			continue
		}
		hex := name[len(prefix) : len(name)-len(ext)]
		id, err := githash.NewOidFullFromHex([]byte(hex))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	s.idxIDs = ids
	return ids, nil
}

// pack returns the index+pack pair for idxID, consulting this State's
// private pointer cache before falling through to the Database's
// shared pool (which does the actual open, at most once per pack).
func (s *State) pack(idxID githash.OidFull) (*packHandle, error) {
	if h, ok := s.handles[idxID]; ok {
		return h, nil
	}
	h, err := s.db.sharedPack(idxID)
	if err != nil {
		return nil, err
	}
	s.handles[idxID] = h
	return h, nil
}

// openIndexOn opens idx through fs when it is backed by the OS (mmap
// needs a real file descriptor). Any other afero backend (e.g. an
// in-memory fs) is accepted only if path also exists on the OS
// filesystem, in which case that OS file is mapped; otherwise it fails
// with an error rather than reading garbage.
func openIndexOn(fs afero.Fs, path string, id githash.OidFull) (*packfile.Index, error) {
	osPath, err := realPath(fs, path)
	if err != nil {
		return nil, err
	}
	return packfile.OpenIndex(osPath, id)
}

func openPackOn(fs afero.Fs, path string, idx *packfile.Index, id githash.OidFull) (*packfile.Pack, error) {
	osPath, err := realPath(fs, path)
	if err != nil {
		return nil, err
	}
	return packfile.OpenPack(osPath, idx, id)
}

// realPath validates that fs is rooted on the OS filesystem (directly,
// or through afero's BasePathFs) and returns the real path mmap can
// open; §4.D/§4.E's memory-mapped readers need an *os.File underneath.
func realPath(fs afero.Fs, path string) (string, error) {
	switch v := fs.(type) {
	case *afero.OsFs:
		return path, nil
	case *afero.BasePathFs:
		return v.RealPath(path)
	default:
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", xerrors.Errorf("%T is not backed by the OS filesystem, can't mmap %s", fs, path)
	}
}
