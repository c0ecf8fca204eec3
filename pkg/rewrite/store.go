package rewrite

import "github.com/odvcencio/reforge/pkg/object"

// ObjectStore is the object database and ref namespace a rewrite reads
// from and writes to. The native repository (repo.Objects) and Git
// repositories (gitstore.Store) implement it.
type ObjectStore interface {
	ReadTree(h object.Hash) (*object.TreeObj, error)
	ReadBlob(h object.Hash) ([]byte, error)
	ReadCommit(h object.Hash) (*object.CommitObj, error)
	ReadTag(h object.Hash) (*object.TagObj, error)
	ObjectType(h object.Hash) (object.ObjectType, error)

	// NewInserter opens a write session. Several sessions may be used
	// concurrently, one per goroutine.
	NewInserter() object.Inserter

	Refs() ([]object.Ref, error)
	UpdateRef(ref object.Ref) error
	DeleteRef(name string) error
	RenameRef(oldName, newName string) error

	AddNote(anchor object.Hash, payload []byte) error
	ReadNote(anchor object.Hash) ([]byte, error)

	// Flush persists buffered state such as notes.
	Flush() error
	// DryRun reports whether writes only compute hashes.
	DryRun() bool
}
