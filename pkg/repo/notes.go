package repo

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/odvcencio/reforge/pkg/object"
)

// AddNote attaches payload to anchor. Notes are buffered until FlushNotes.
func (r *Repo) AddNote(anchor object.Hash, payload []byte) error {
	if anchor.IsZero() {
		return fmt.Errorf("add note: anchor hash is required")
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)

	r.notesMu.Lock()
	r.pendingNotes[anchor] = buf
	r.notesMu.Unlock()
	return nil
}

// ReadNote returns the note attached to anchor, or nil when there is none.
func (r *Repo) ReadNote(anchor object.Hash) ([]byte, error) {
	r.notesMu.Lock()
	pending, ok := r.pendingNotes[anchor]
	r.notesMu.Unlock()
	if ok {
		return pending, nil
	}

	entries, _, err := r.notesTree()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == string(anchor) {
			blob, err := r.Store.ReadBlob(e.Hash)
			if err != nil {
				return nil, fmt.Errorf("read note %s: %w", anchor.Short(), err)
			}
			return blob.Data, nil
		}
	}
	return nil, nil
}

// FlushNotes writes buffered notes as a new commit on NotesRef whose tree
// maps anchor hashes to note blobs. The previous notes commit is its parent.
func (r *Repo) FlushNotes(committer object.Ident) error {
	r.notesMu.Lock()
	pending := r.pendingNotes
	r.pendingNotes = make(map[object.Hash][]byte)
	r.notesMu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	entries, parent, err := r.notesTree()
	if err != nil {
		return err
	}
	byName := make(map[string]object.TreeEntry, len(entries)+len(pending))
	for _, e := range entries {
		byName[e.Name] = e
	}
	for anchor, payload := range pending {
		h, err := r.Store.WriteBlob(&object.Blob{Data: payload})
		if err != nil {
			return fmt.Errorf("flush notes: %w", err)
		}
		byName[string(anchor)] = object.TreeEntry{Name: string(anchor), Mode: object.ModeFile, Hash: h}
	}

	merged := make([]object.TreeEntry, 0, len(byName))
	for _, e := range byName {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })

	tree, err := r.Store.WriteTree(&object.TreeObj{Entries: merged})
	if err != nil {
		return fmt.Errorf("flush notes: %w", err)
	}
	if committer.When == 0 {
		committer.When = time.Now().Unix()
	}
	var parents []object.Hash
	if !parent.IsZero() {
		parents = []object.Hash{parent}
	}
	commit, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    committer,
		Committer: committer,
		Message:   "Notes added by reforge\n",
	})
	if err != nil {
		return fmt.Errorf("flush notes: %w", err)
	}
	if r.Store.DryRun() {
		return nil
	}
	if err := r.UpdateRefReason(NotesRef, commit, "notes"); err != nil {
		return fmt.Errorf("flush notes: %w", err)
	}
	return nil
}

func (r *Repo) notesTree() ([]object.TreeEntry, object.Hash, error) {
	head, err := r.ResolveRef(NotesRef)
	if err != nil {
		if errors.Is(err, ErrRefNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("notes: %w", err)
	}
	c, err := r.Store.ReadCommit(head)
	if err != nil {
		return nil, "", fmt.Errorf("notes: %w", err)
	}
	tree, err := r.Store.ReadTree(c.TreeHash)
	if err != nil {
		return nil, "", fmt.Errorf("notes: %w", err)
	}
	return tree.Entries, head, nil
}
