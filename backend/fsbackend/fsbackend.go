// Package fsbackend is the filesystem implementation of the object
// database read path: a Database facade (§4.G) over one objects
// directory, backed by a lookup State (§4.H) that each caller owns.
package fsbackend

import (
	"path/filepath"
	"sync"

	"github.com/mlpln/gitodb/ginternals/githash"
	"github.com/mlpln/gitodb/internal/errutil"
	"github.com/mlpln/gitodb/internal/syncutil"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// packPoolShards is the number of stripes syncutil.NamedMutex divides
// the shared pack pool's open-or-fetch section into. A prime keeps
// colliding pack ids spread evenly across shards.
const packPoolShards = 61

// Database is the read-only facade over one objects directory: loose
// folders plus whatever packs live under its pack/ subdirectory. Opened
// packs are memoized in a pool shared by every State this Database
// hands out, since a .pack mmap is read-only and safe to reuse across
// concurrent lookups; the per-folder readdir caches, the decoded-object
// cache and the decompressor stay private to each State.
type Database struct {
	fs   afero.Fs
	root string

	poolMu   *syncutil.NamedMutex
	poolLock sync.RWMutex
	pool     map[githash.OidFull]*packHandle
}

// New returns a facade rooted at objectsDir (e.g. ".git/objects"). The
// directory need not exist yet: a missing loose folder or pack
// directory is treated as empty, not an error, by the State that walks
// it. objectsDir itself is validated lazily, by the first NewState
// call, since pathbuilder.New is the thing that rejects it.
func New(fs afero.Fs, objectsDir string) *Database {
	return &Database{
		fs:     fs,
		root:   objectsDir,
		poolMu: syncutil.NewNamedMutex(packPoolShards),
		pool:   make(map[githash.OidFull]*packHandle),
	}
}

// packPaths returns the plain (non-hot-path) .idx/.pack file paths for
// idxID, used only when a pack is opened for the first time, so
// building them with filepath.Join rather than a shared Builder costs
// nothing that matters.
func (db *Database) packPaths(idxID githash.OidFull) (idxPath, packPath string) {
	name := "pack-" + idxID.String()
	dir := filepath.Join(db.root, "pack")
	return filepath.Join(dir, name+".idx"), filepath.Join(dir, name+".pack")
}

// NewState builds a fresh lookup state for this Database. Callers that
// want independent readdir caches (e.g. concurrent goroutines) should
// each hold their own; opened packs are still shared through db.
func (db *Database) NewState() (*State, error) {
	return newState(db)
}

// sharedPack returns the memoized index+pack pair for idxID, opening it
// under this Database's pool if no State has opened it yet. The
// NamedMutex shards the open-or-fetch critical section by pack id so
// unrelated packs can open concurrently.
func (db *Database) sharedPack(idxID githash.OidFull) (*packHandle, error) {
	db.poolMu.Lock(idxID[:])
	defer db.poolMu.Unlock(idxID[:])

	db.poolLock.RLock()
	if h, ok := db.pool[idxID]; ok {
		db.poolLock.RUnlock()
		return h, nil
	}
	db.poolLock.RUnlock()

	idxPath, packPath := db.packPaths(idxID)
	idx, err := openIndexOn(db.fs, idxPath, idxID)
	if err != nil {
		return nil, xerrors.Errorf("could not parse index %s: %w", idxPath, err)
	}

	pack, err := openPackOn(db.fs, packPath, idx, idxID)
	if err != nil {
		_ = idx.Close()
		return nil, xerrors.Errorf("could not parse pack %s: %w", packPath, err)
	}

	h := newPackHandle(idx, pack)

	db.poolLock.Lock()
	db.pool[idxID] = h
	db.poolLock.Unlock()
	return h, nil
}

// Close unmaps every pack/index this Database's pool has opened. Call
// it once all States derived from this Database are done.
func (db *Database) Close() (err error) {
	db.poolLock.Lock()
	defer db.poolLock.Unlock()
	for _, h := range db.pool {
		errutil.Close(h.pack, &err)
		errutil.Close(h.idx, &err)
	}
	return err
}
