package repo

import (
	"sync"

	"github.com/odvcencio/reforge/pkg/object"
)

// NotesRef is the ref holding provenance notes written by rewrites.
const NotesRef = "refs/notes/reforge"

// Repo is an opened native repository.
type Repo struct {
	RootDir string        // working directory root (or the bare directory)
	GotDir  string        // .got/ directory
	Store   *object.Store // content-addressed object store

	notesMu      sync.Mutex
	pendingNotes map[object.Hash][]byte
}

// ControlDir returns the directory holding the repository's control data.
func (r *Repo) ControlDir() string { return r.GotDir }

func newRepo(root, gotDir string) *Repo {
	return &Repo{
		RootDir:      root,
		GotDir:       gotDir,
		Store:        object.NewStore(gotDir),
		pendingNotes: make(map[object.Hash][]byte),
	}
}
