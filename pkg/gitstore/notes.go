package gitstore

import (
	"fmt"

	"github.com/odvcencio/reforge/pkg/object"
)

// AddNote buffers payload as the note of anchor until Flush.
func (s *Store) AddNote(anchor object.Hash, payload []byte) error {
	if anchor.IsZero() {
		return fmt.Errorf("add note: anchor hash is required")
	}
	s.notesMu.Lock()
	s.notes[anchor] = append([]byte(nil), payload...)
	s.notesMu.Unlock()
	return nil
}

// ReadNote returns the note of anchor from the buffer or from NotesRef, or
// nil when there is none.
func (s *Store) ReadNote(anchor object.Hash) ([]byte, error) {
	s.notesMu.Lock()
	pending, ok := s.notes[anchor]
	s.notesMu.Unlock()
	if ok {
		return pending, nil
	}

	entries, _, err := s.notesTree()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == string(anchor) {
			return s.ReadBlob(e.Hash)
		}
	}
	return nil, nil
}

// notesTree returns the entries of the current notes tree and the notes
// commit holding it.
func (s *Store) notesTree() ([]object.TreeEntry, object.Hash, error) {
	head, err := s.resolve(NotesRef)
	if err != nil {
		return nil, object.ZeroHash, fmt.Errorf("notes: %w", err)
	}
	if head.IsZero() {
		return nil, object.ZeroHash, nil
	}
	c, err := s.ReadCommit(head)
	if err != nil {
		return nil, object.ZeroHash, fmt.Errorf("notes: %w", err)
	}
	t, err := s.ReadTree(c.TreeHash)
	if err != nil {
		return nil, object.ZeroHash, fmt.Errorf("notes: %w", err)
	}
	return t.Entries, head, nil
}

// flushNotes commits buffered notes on top of NotesRef. Notes trees use
// the flat layout read by git notes: one blob per annotated object, named
// by its id.
func (s *Store) flushNotes(committer object.Ident) error {
	s.notesMu.Lock()
	pending := s.notes
	s.notes = make(map[object.Hash][]byte)
	s.notesMu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	entries, parent, err := s.notesTree()
	if err != nil {
		return err
	}
	byName := make(map[string]object.TreeEntry, len(entries)+len(pending))
	for _, e := range entries {
		byName[e.Name] = e
	}
	for anchor, payload := range pending {
		h, err := s.WriteBlob(payload)
		if err != nil {
			return fmt.Errorf("flush notes: %w", err)
		}
		byName[string(anchor)] = object.TreeEntry{Name: string(anchor), Mode: object.ModeFile, Hash: h}
	}
	merged := make([]object.TreeEntry, 0, len(byName))
	for _, e := range byName {
		merged = append(merged, e)
	}

	tree, err := s.WriteTree(&object.TreeObj{Entries: merged})
	if err != nil {
		return fmt.Errorf("flush notes: %w", err)
	}
	var parents []object.Hash
	if !parent.IsZero() {
		parents = []object.Hash{parent}
	}
	commit, err := s.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    committer,
		Committer: committer,
		Message:   "Notes added by reforge\n",
	})
	if err != nil {
		return fmt.Errorf("flush notes: %w", err)
	}
	if err := s.UpdateRef(object.Ref{Name: NotesRef, Hash: commit}); err != nil {
		return fmt.Errorf("flush notes: %w", err)
	}
	return nil
}
