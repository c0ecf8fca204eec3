package rewrite

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/odvcencio/reforge/pkg/object"
)

// memStore is an in-memory ObjectStore for engine tests.
type memStore struct {
	mu      sync.Mutex
	objects map[object.Hash]memObject
	refs    map[string]object.Ref
	notes   map[object.Hash][]byte
	pending map[object.Hash][]byte
	dryRun  bool
	flushes int
}

type memObject struct {
	typ  object.ObjectType
	data []byte
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[object.Hash]memObject),
		refs:    make(map[string]object.Ref),
		notes:   make(map[object.Hash][]byte),
		pending: make(map[object.Hash][]byte),
	}
}

func (s *memStore) put(typ object.ObjectType, data []byte) object.Hash {
	h := object.HashObject(typ, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dryRun {
		s.objects[h] = memObject{typ: typ, data: data}
	}
	return h
}

func (s *memStore) get(h object.Hash, want object.ObjectType) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[h]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", h.Short(), object.ErrNotFound)
	}
	if want != "" && obj.typ != want {
		return nil, fmt.Errorf("object %s is a %s, want %s", h.Short(), obj.typ, want)
	}
	return obj.data, nil
}

func (s *memStore) has(h object.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[h]
	return ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *memStore) ReadTree(h object.Hash) (*object.TreeObj, error) {
	data, err := s.get(h, object.TypeTree)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalTree(data)
}

func (s *memStore) ReadBlob(h object.Hash) ([]byte, error) {
	return s.get(h, object.TypeBlob)
}

func (s *memStore) ReadCommit(h object.Hash) (*object.CommitObj, error) {
	data, err := s.get(h, object.TypeCommit)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalCommit(data)
}

func (s *memStore) ReadTag(h object.Hash) (*object.TagObj, error) {
	data, err := s.get(h, object.TypeTag)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalTag(data)
}

func (s *memStore) ObjectType(h object.Hash) (object.ObjectType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[h]
	if !ok {
		return "", fmt.Errorf("object %s: %w", h.Short(), object.ErrNotFound)
	}
	return obj.typ, nil
}

func (s *memStore) NewInserter() object.Inserter { return &memInserter{s: s} }

func (s *memStore) Refs() ([]object.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]object.Ref, 0, len(s.refs))
	for _, ref := range s.refs {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ref(name string) (object.Ref, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[name]
	return ref, ok
}

func (s *memStore) UpdateRef(ref object.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dryRun {
		s.refs[ref.Name] = ref
	}
	return nil
}

func (s *memStore) DeleteRef(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dryRun {
		delete(s.refs, name)
	}
	return nil
}

func (s *memStore) RenameRef(oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dryRun {
		return nil
	}
	ref, ok := s.refs[oldName]
	if !ok {
		return fmt.Errorf("rename ref %q: not found", oldName)
	}
	delete(s.refs, oldName)
	ref.Name = newName
	s.refs[newName] = ref
	for name, other := range s.refs {
		if other.Target == oldName {
			other.Target = newName
			s.refs[name] = other
		}
	}
	return nil
}

func (s *memStore) AddNote(anchor object.Hash, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[anchor] = append([]byte(nil), payload...)
	return nil
}

func (s *memStore) ReadNote(anchor object.Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if note, ok := s.pending[anchor]; ok {
		return note, nil
	}
	return s.notes[anchor], nil
}

func (s *memStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	if !s.dryRun {
		for k, v := range s.pending {
			s.notes[k] = v
		}
	}
	s.pending = make(map[object.Hash][]byte)
	return nil
}

func (s *memStore) DryRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dryRun
}

type memInserter struct {
	s      *memStore
	closed bool
}

func (i *memInserter) WriteBlob(data []byte) (object.Hash, error) {
	return i.s.put(object.TypeBlob, append([]byte(nil), data...)), nil
}

func (i *memInserter) WriteTree(tr *object.TreeObj) (object.Hash, error) {
	return i.s.put(object.TypeTree, object.MarshalTree(tr)), nil
}

func (i *memInserter) WriteCommit(c *object.CommitObj) (object.Hash, error) {
	return i.s.put(object.TypeCommit, object.MarshalCommit(c)), nil
}

func (i *memInserter) WriteTag(t *object.TagObj) (object.Hash, error) {
	return i.s.put(object.TypeTag, object.MarshalTag(t)), nil
}

func (i *memInserter) Flush() error { return nil }

func (i *memInserter) Close() error {
	i.closed = true
	return nil
}

// Builders. Times increase with every commit so messages alone never
// collide.

func (s *memStore) blob(t *testing.T, content string) object.Hash {
	t.Helper()
	return s.put(object.TypeBlob, []byte(content))
}

func (s *memStore) tree(t *testing.T, entries ...object.TreeEntry) object.Hash {
	t.Helper()
	return s.put(object.TypeTree, object.MarshalTree(&object.TreeObj{Entries: entries}))
}

func (s *memStore) commit(t *testing.T, tree object.Hash, msg string, parents ...object.Hash) object.Hash {
	t.Helper()
	when := int64(1700000000 + len(s.objects))
	id := object.Ident{Name: "Ada", Email: "ada@example.com", When: when, Timezone: "+0000"}
	return s.put(object.TypeCommit, object.MarshalCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    id,
		Committer: id,
		Message:   msg,
	}))
}

func (s *memStore) setRef(name string, h object.Hash) {
	s.refs[name] = object.Ref{Name: name, Hash: h}
}

func (s *memStore) setSymbolic(name, target string) {
	s.refs[name] = object.Ref{Name: name, Target: target}
}

func file(name string, h object.Hash) object.TreeEntry {
	return object.TreeEntry{Name: name, Mode: object.ModeFile, Hash: h}
}

func dir(name string, h object.Hash) object.TreeEntry {
	return object.TreeEntry{Name: name, Mode: object.ModeTree, Hash: h}
}

// linear builds n commits on refs/heads/main, each adding file<i>.txt next
// to an unchanged a.txt, and points HEAD at main.
func (s *memStore) linear(t *testing.T, n int) []object.Hash {
	t.Helper()
	shared := s.blob(t, "shared\n")
	entries := []object.TreeEntry{file("a.txt", shared)}
	var out []object.Hash
	var parent []object.Hash
	for i := 0; i < n; i++ {
		entries = append(entries, file(fmt.Sprintf("file%d.txt", i), s.blob(t, fmt.Sprintf("content %d\n", i))))
		c := s.commit(t, s.tree(t, entries...), fmt.Sprintf("commit %d\n", i), parent...)
		out = append(out, c)
		parent = []object.Hash{c}
	}
	s.setRef("refs/heads/main", out[len(out)-1])
	s.setSymbolic("HEAD", "refs/heads/main")
	return out
}
