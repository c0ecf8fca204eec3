package gitstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/odvcencio/reforge/pkg/object"
)

func toRef(r *plumbing.Reference) object.Ref {
	if r.Type() == plumbing.SymbolicReference {
		return object.Ref{Name: r.Name().String(), Target: r.Target().String()}
	}
	return object.Ref{Name: r.Name().String(), Hash: toHash(r.Hash())}
}

func fromRef(r object.Ref) *plumbing.Reference {
	if r.IsSymbolic() {
		return plumbing.NewSymbolicReference(plumbing.ReferenceName(r.Name), plumbing.ReferenceName(r.Target))
	}
	return plumbing.NewHashReference(plumbing.ReferenceName(r.Name), fromHash(r.Hash))
}

// Refs lists HEAD and every ref, sorted by name.
func (s *Store) Refs() ([]object.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []object.Ref
	head, err := s.storer().Reference(plumbing.HEAD)
	switch {
	case err == nil:
		out = append(out, toRef(head))
		seen[plumbing.HEAD.String()] = true
	case !errors.Is(err, plumbing.ErrReferenceNotFound):
		return nil, fmt.Errorf("refs: %w", err)
	}

	iter, err := s.storer().IterReferences()
	if err != nil {
		return nil, fmt.Errorf("refs: %w", err)
	}
	defer iter.Close()
	err = iter.ForEach(func(r *plumbing.Reference) error {
		if !seen[r.Name().String()] {
			seen[r.Name().String()] = true
			out = append(out, toRef(r))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refs: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateRef creates or moves ref. It is a no-op in dry-run mode.
func (s *Store) UpdateRef(ref object.Ref) error {
	if s.DryRun() {
		return nil
	}
	if !ref.IsSymbolic() && ref.Hash.IsZero() {
		return fmt.Errorf("update ref %q: empty hash", ref.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storer().SetReference(fromRef(ref)); err != nil {
		return fmt.Errorf("update ref %q: %w", ref.Name, err)
	}
	return nil
}

func (s *Store) DeleteRef(name string) error {
	if s.DryRun() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storer().RemoveReference(plumbing.ReferenceName(name)); err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	return nil
}

// RenameRef moves oldName to newName and retargets symbolic refs that
// pointed at it.
func (s *Store) RenameRef(oldName, newName string) error {
	if s.DryRun() || oldName == newName {
		return nil
	}
	refs, err := s.Refs()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.storer()
	old, err := st.Reference(plumbing.ReferenceName(oldName))
	if err != nil {
		return fmt.Errorf("rename ref %q: %w", oldName, err)
	}
	moved := toRef(old)
	moved.Name = newName
	if err := st.SetReference(fromRef(moved)); err != nil {
		return fmt.Errorf("rename ref %q: %w", oldName, err)
	}
	if err := st.RemoveReference(plumbing.ReferenceName(oldName)); err != nil {
		return fmt.Errorf("rename ref %q: %w", oldName, err)
	}
	for _, r := range refs {
		if r.Target == oldName {
			r.Target = newName
			if err := st.SetReference(fromRef(r)); err != nil {
				return fmt.Errorf("rename ref %q: retarget %q: %w", oldName, r.Name, err)
			}
		}
	}
	return nil
}

func (s *Store) resolve(name string) (object.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.storer().Reference(plumbing.ReferenceName(name))
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return object.ZeroHash, nil
	}
	if err != nil {
		return object.ZeroHash, err
	}
	return toHash(r.Hash()), nil
}
