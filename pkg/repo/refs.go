package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/reforge/pkg/object"
)

// ListRefs lists direct references under .got/refs.
// Names are returned relative to refs root, e.g. "heads/main", "tags/v1".
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	all, err := r.Refs()
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	want := "refs/"
	if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
		want += p + "/"
	}
	refs := make(map[string]object.Hash)
	for _, ref := range all {
		if ref.IsSymbolic() || !strings.HasPrefix(ref.Name, want) {
			continue
		}
		refs[strings.TrimPrefix(ref.Name, "refs/")] = ref.Hash
	}
	return refs, nil
}

// Refs returns HEAD and every ref under refs/, sorted by name. Symbolic refs
// carry their target name instead of a hash.
func (r *Repo) Refs() ([]object.Ref, error) {
	var out []object.Ref

	head, err := r.readRef("HEAD")
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("refs: %w", err)
	}
	if err == nil {
		out = append(out, head)
	}

	root := filepath.Join(r.GotDir, "refs")
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(r.GotDir, path)
		if err != nil {
			return err
		}
		ref, err := r.readRef(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		out = append(out, ref)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("refs: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repo) readRef(name string) (object.Ref, error) {
	data, err := os.ReadFile(r.refPath(name))
	if err != nil {
		return object.Ref{}, err
	}
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, "ref: "); ok {
		return object.Ref{Name: name, Target: target}, nil
	}
	return object.Ref{Name: name, Hash: object.Hash(content)}, nil
}

// DeleteRef removes a ref and its reflog.
func (r *Repo) DeleteRef(name string) error {
	if err := os.Remove(r.refPath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete ref %q: %w", name, ErrRefNotFound)
		}
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	_ = os.Remove(filepath.Join(r.GotDir, "logs", filepath.FromSlash(name)))
	pruneEmptyDirs(filepath.Dir(r.refPath(name)), filepath.Join(r.GotDir, "refs"))
	return nil
}

// RenameRef moves oldName to newName, carrying its value, and retargets
// symbolic refs that pointed at oldName. The destination must not exist.
func (r *Repo) RenameRef(oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	ref, err := r.readRef(oldName)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("rename ref %q: %w", oldName, ErrRefNotFound)
		}
		return fmt.Errorf("rename ref %q: %w", oldName, err)
	}
	if _, err := os.Stat(r.refPath(newName)); err == nil {
		return fmt.Errorf("rename ref %q: destination %q already exists", oldName, newName)
	}

	if ref.IsSymbolic() {
		err = r.SetSymbolicRef(newName, ref.Target)
	} else {
		err = r.updateRef(newName, string(ref.Hash)+"\n", "rename from "+oldName)
	}
	if err != nil {
		return fmt.Errorf("rename ref %q: %w", oldName, err)
	}
	if err := r.DeleteRef(oldName); err != nil {
		return fmt.Errorf("rename ref %q: %w", oldName, err)
	}

	all, err := r.Refs()
	if err != nil {
		return fmt.Errorf("rename ref %q: %w", oldName, err)
	}
	for _, other := range all {
		if other.Target == oldName {
			if err := r.SetSymbolicRef(other.Name, newName); err != nil {
				return fmt.Errorf("rename ref %q: retarget %q: %w", oldName, other.Name, err)
			}
		}
	}
	return nil
}

// UpdateRefReason is UpdateRef with an explicit reflog reason.
func (r *Repo) UpdateRefReason(name string, h object.Hash, reason string) error {
	return r.updateRef(name, string(h)+"\n", reason)
}

func pruneEmptyDirs(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
