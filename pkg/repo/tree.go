package repo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/reforge/pkg/object"
)

// TreeFileEntry represents a single file in a flattened tree.
type TreeFileEntry struct {
	Path string
	Mode object.Mode
	Hash object.Hash
}

// BuildTree writes blobs for files (forward-slash paths to content) and the
// hierarchy of trees holding them, returning the root tree hash.
func (r *Repo) BuildTree(files map[string][]byte) (object.Hash, error) {
	return r.buildTreeDir(files, "")
}

func (r *Repo) buildTreeDir(files map[string][]byte, prefix string) (object.Hash, error) {
	direct := make(map[string][]byte)
	subdirs := make(map[string]struct{})

	for p, content := range files {
		rel := p
		if prefix != "" {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			rel = p[len(prefix)+1:]
		}
		if slash := strings.IndexByte(rel, '/'); slash >= 0 {
			subdirs[rel[:slash]] = struct{}{}
		} else {
			direct[rel] = content
		}
	}

	names := make([]string, 0, len(direct)+len(subdirs))
	for name := range direct {
		names = append(names, name)
	}
	for name := range subdirs {
		if _, isFile := direct[name]; !isFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entries := make([]object.TreeEntry, 0, len(names))
	for _, name := range names {
		if content, isFile := direct[name]; isFile {
			h, err := r.Store.WriteBlob(&object.Blob{Data: content})
			if err != nil {
				return "", fmt.Errorf("build tree %q: %w", path.Join(prefix, name), err)
			}
			entries = append(entries, object.TreeEntry{Name: name, Mode: object.ModeFile, Hash: h})
			continue
		}
		childPrefix := path.Join(prefix, name)
		subHash, err := r.buildTreeDir(files, childPrefix)
		if err != nil {
			return "", err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: object.ModeTree, Hash: subHash})
	}

	h, err := r.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

// FlattenTree walks a tree object recursively, returning all non-tree
// entries with their full paths (using forward slashes).
func (r *Repo) FlattenTree(h object.Hash) ([]TreeFileEntry, error) {
	return r.flattenTreeRec(h, "")
}

func (r *Repo) flattenTreeRec(h object.Hash, prefix string) ([]TreeFileEntry, error) {
	treeObj, err := r.Store.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("flatten tree: read %s: %w", h, err)
	}

	var result []TreeFileEntry
	for _, entry := range treeObj.Entries {
		fullPath := path.Join(prefix, entry.Name)
		if entry.Mode.IsTree() {
			sub, err := r.flattenTreeRec(entry.Hash, fullPath)
			if err != nil {
				return nil, err
			}
			result = append(result, sub...)
			continue
		}
		result = append(result, TreeFileEntry{Path: fullPath, Mode: entry.Mode, Hash: entry.Hash})
	}
	return result, nil
}
