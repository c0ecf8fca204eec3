// Package gitstore exposes a Git repository as a rewrite object store.
package gitstore

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gitobj "github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/odvcencio/reforge/pkg/object"
)

// NotesRef holds the provenance notes written by rewrites.
const NotesRef = "refs/notes/reforge"

// Store is a Git repository opened through go-git. All storage access is
// serialized by one mutex.
type Store struct {
	repo   *git.Repository
	path   string
	mu     sync.Mutex
	dryRun atomic.Bool

	notesMu sync.Mutex
	notes   map[object.Hash][]byte

	// Committer identifies the notes commits written by Flush.
	Committer object.Ident
}

// Open opens the repository at path. Without bare, parent directories are
// searched for a .git directory.
func Open(path string, bare bool) (*Store, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: !bare})
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", path, err)
	}
	return newStore(r, path), nil
}

// Init creates a repository at path.
func Init(path string, bare bool) (*Store, error) {
	r, err := git.PlainInit(path, bare)
	if err != nil {
		return nil, fmt.Errorf("init git repository %s: %w", path, err)
	}
	return newStore(r, path), nil
}

func newStore(r *git.Repository, path string) *Store {
	return &Store{
		repo:      r,
		path:      path,
		notes:     make(map[object.Hash][]byte),
		Committer: object.Ident{Name: "reforge", Email: "reforge@localhost", Timezone: "+0000"},
	}
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// ControlDir returns the .git directory, or the repository path itself
// when the storage is not on disk.
func (s *Store) ControlDir() string {
	if fs, ok := s.repo.Storer.(*filesystem.Storage); ok {
		return fs.Filesystem().Root()
	}
	return s.path
}

// SetDryRun toggles dry-run mode: writes compute ids only and ref updates
// are skipped.
func (s *Store) SetDryRun(v bool) { s.dryRun.Store(v) }

func (s *Store) DryRun() bool { return s.dryRun.Load() }

func (s *Store) storer() storage.Storer { return s.repo.Storer }

func notFound(kind string, h object.Hash, err error) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return fmt.Errorf("read %s %s: %w", kind, h.Short(), object.ErrNotFound)
	}
	return fmt.Errorf("read %s %s: %w", kind, h.Short(), err)
}

func (s *Store) ReadTree(h object.Hash) (*object.TreeObj, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := gitobj.GetTree(s.storer(), fromHash(h))
	if err != nil {
		return nil, notFound("tree", h, err)
	}
	return toTree(t), nil
}

func (s *Store) ReadBlob(h object.Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.storer().EncodedObject(plumbing.BlobObject, fromHash(h))
	if err != nil {
		return nil, notFound("blob", h, err)
	}
	r, err := o.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h.Short(), err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h.Short(), err)
	}
	return data, nil
}

func (s *Store) ReadCommit(h object.Hash) (*object.CommitObj, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := gitobj.GetCommit(s.storer(), fromHash(h))
	if err != nil {
		return nil, notFound("commit", h, err)
	}
	return toCommit(c), nil
}

func (s *Store) ReadTag(h object.Hash) (*object.TagObj, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := gitobj.GetTag(s.storer(), fromHash(h))
	if err != nil {
		return nil, notFound("tag", h, err)
	}
	return toTag(t), nil
}

func (s *Store) ObjectType(h object.Hash) (object.ObjectType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.storer().EncodedObject(plumbing.AnyObject, fromHash(h))
	if err != nil {
		return "", notFound("object", h, err)
	}
	return object.ObjectType(o.Type().String()), nil
}

type encoder interface {
	Encode(plumbing.EncodedObject) error
}

// write stores enc, or only hashes it in dry-run mode.
func (s *Store) write(enc encoder) (object.Hash, error) {
	if s.DryRun() {
		mem := &plumbing.MemoryObject{}
		if err := enc.Encode(mem); err != nil {
			return object.ZeroHash, err
		}
		return toHash(mem.Hash()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.storer().NewEncodedObject()
	if err := enc.Encode(o); err != nil {
		return object.ZeroHash, err
	}
	h, err := s.storer().SetEncodedObject(o)
	if err != nil {
		return object.ZeroHash, err
	}
	return toHash(h), nil
}

type blobEncoder []byte

func (b blobEncoder) Encode(o plumbing.EncodedObject) error {
	o.SetType(plumbing.BlobObject)
	o.SetSize(int64(len(b)))
	w, err := o.Writer()
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *Store) WriteBlob(data []byte) (object.Hash, error) {
	h, err := s.write(blobEncoder(data))
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write blob: %w", err)
	}
	return h, nil
}

func (s *Store) WriteTree(t *object.TreeObj) (object.Hash, error) {
	gt, err := fromTree(t)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write tree: %w", err)
	}
	h, err := s.write(gt)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write tree: %w", err)
	}
	return h, nil
}

func (s *Store) WriteCommit(c *object.CommitObj) (object.Hash, error) {
	h, err := s.write(fromCommit(c))
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write commit: %w", err)
	}
	return h, nil
}

func (s *Store) WriteTag(t *object.TagObj) (object.Hash, error) {
	gt, err := fromTag(t)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write tag: %w", err)
	}
	h, err := s.write(gt)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("write tag: %w", err)
	}
	return h, nil
}

// NewInserter returns a write session over the store.
func (s *Store) NewInserter() object.Inserter { return &inserter{s: s} }

// ErrInserterClosed is returned by writes through a closed inserter.
var ErrInserterClosed = errors.New("git inserter closed")

type inserter struct {
	s       *Store
	closed  atomic.Bool
	written atomic.Int64
}

func (i *inserter) do(write func() (object.Hash, error)) (object.Hash, error) {
	if i.closed.Load() {
		return object.ZeroHash, ErrInserterClosed
	}
	h, err := write()
	if err == nil {
		i.written.Add(1)
	}
	return h, err
}

func (i *inserter) WriteBlob(data []byte) (object.Hash, error) {
	return i.do(func() (object.Hash, error) { return i.s.WriteBlob(data) })
}

func (i *inserter) WriteTree(t *object.TreeObj) (object.Hash, error) {
	return i.do(func() (object.Hash, error) { return i.s.WriteTree(t) })
}

func (i *inserter) WriteCommit(c *object.CommitObj) (object.Hash, error) {
	return i.do(func() (object.Hash, error) { return i.s.WriteCommit(c) })
}

func (i *inserter) WriteTag(t *object.TagObj) (object.Hash, error) {
	return i.do(func() (object.Hash, error) { return i.s.WriteTag(t) })
}

// Flush is a no-op: objects are stored as they are written.
func (i *inserter) Flush() error {
	if i.closed.Load() {
		return ErrInserterClosed
	}
	return nil
}

func (i *inserter) Close() error {
	i.closed.Store(true)
	return nil
}

// Flush writes buffered notes.
func (s *Store) Flush() error {
	committer := s.Committer
	if committer.When == 0 {
		committer.When = time.Now().Unix()
	}
	return s.flushNotes(committer)
}
