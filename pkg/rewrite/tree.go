package rewrite

import (
	"context"
	"fmt"

	"github.com/odvcencio/reforge/pkg/object"
)

// rewriteEntry returns the memoized rewrite of ent. Concurrent callers
// asking for the same key share one computation.
func (e *Engine) rewriteEntry(ctx context.Context, ent Entry) (Result, error) {
	if res, ok, err := e.entries.Get(ent); err != nil {
		return nil, contextError(ctx, "read entry cache", err)
	} else if ok {
		return res, nil
	}

	v, err, _ := e.flight.Do(string(encodeEntry(ent)), func() (any, error) {
		if res, ok, err := e.entries.Get(ent); err != nil {
			return nil, contextError(ctx, "read entry cache", err)
		} else if ok {
			return res, nil
		}
		res, err := e.computeEntry(WithEntry(ctx, ent), ent)
		if err != nil {
			return nil, err
		}
		if err := e.entries.Put(ent, res); err != nil {
			return nil, contextError(ctx, "write entry cache", err)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Result), nil
}

func (e *Engine) computeEntry(ctx context.Context, ent Entry) (Result, error) {
	e.metrics.entry(ent.Kind())

	var out []Entry
	var err error
	switch ent.Kind() {
	case KindTree:
		out, err = e.rewriteTree(ctx, ent)
	case KindLink:
		out, err = e.rewriteLink(ctx, ent)
	default:
		out, err = e.rewriteBlob(ctx, ent)
	}
	if err != nil {
		return nil, err
	}
	if ent.Name != "" && len(e.hooks.name) > 0 {
		if out, err = e.rewriteNames(ctx, out); err != nil {
			return nil, err
		}
	}
	return resultOf(out), nil
}

func (e *Engine) rewriteBlob(ctx context.Context, ent Entry) ([]Entry, error) {
	blobs := []*Blob{sourceBlob(e.src, ent)}
	for _, h := range e.hooks.blob {
		var next []*Blob
		for _, b := range blobs {
			e.metrics.hook(h.plugin.Name() + ".RewriteBlob")
			out, err := h.hook.RewriteBlob(ctx, b)
			if err != nil {
				return nil, hookError(ctx, h.plugin, "RewriteBlob", err)
			}
			next = append(next, out...)
		}
		blobs = next
	}

	out := make([]Entry, 0, len(blobs))
	for _, b := range blobs {
		if b == nil {
			continue
		}
		mode := b.Mode
		if mode == "" {
			mode = object.ModeFile
		}
		if mode.IsTree() || mode.IsLink() {
			return nil, contextError(ctx, "rewrite blob", fmt.Errorf("blob %q rewritten to mode %s", b.Name, mode))
		}
		id := b.ID()
		if b.Modified() || !e.sameStore {
			data, err := b.Content()
			if err != nil {
				return nil, contextError(ctx, "read blob", err)
			}
			ins, err := e.inserter(ctx)
			if err != nil {
				return nil, err
			}
			if id, err = ins.WriteBlob(data); err != nil {
				return nil, contextError(ctx, "write blob", err)
			}
		}
		out = append(out, Entry{Mode: mode, Name: b.Name, ID: id})
	}
	return out, nil
}

func (e *Engine) rewriteLink(ctx context.Context, ent Entry) ([]Entry, error) {
	id := ent.ID
	for _, h := range e.hooks.link {
		e.metrics.hook(h.plugin.Name() + ".RewriteLink")
		next, err := h.hook.RewriteLink(ctx, Entry{Mode: ent.Mode, Name: ent.Name, ID: id, Dir: ent.Dir})
		if err != nil {
			return nil, hookError(ctx, h.plugin, "RewriteLink", err)
		}
		if next.IsZero() {
			return nil, nil
		}
		id = next
	}
	return []Entry{{Mode: ent.Mode, Name: ent.Name, ID: id}}, nil
}

// rewriteTree rewrites every child of ent and writes the resulting tree.
// A tree left with no entries is deleted.
func (e *Engine) rewriteTree(ctx context.Context, ent Entry) ([]Entry, error) {
	tree, err := e.src.ReadTree(ent.ID)
	if err != nil {
		return nil, contextError(ctx, "read tree", err)
	}
	dir := joinPath(PathFrom(ctx), ent.Name)
	cctx := WithPath(ctx, dir)

	var children []Entry
	for _, te := range tree.Entries {
		child := Entry{Mode: te.Mode, Name: te.Name, ID: te.Hash}
		if e.pathSensitive {
			child.Dir = dir
		}
		res, err := e.rewriteEntry(cctx, child)
		if err != nil {
			return nil, err
		}
		children = append(children, Entries(res)...)
	}
	if len(children) == 0 {
		return nil, nil
	}

	id, err := e.writeTree(ctx, tree, ent.ID, children)
	if err != nil {
		return nil, err
	}
	return []Entry{{Mode: object.ModeTree, Name: ent.Name, ID: id}}, nil
}

// writeTree writes children in canonical order. A later entry with the
// same sort key replaces an earlier one. When the result equals the source
// tree in the same store, nothing is written.
func (e *Engine) writeTree(ctx context.Context, src *object.TreeObj, srcID object.Hash, children []Entry) (object.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(children))
	byKey := make(map[string]int, len(children))
	for _, c := range children {
		te := c.treeEntry()
		key := object.EntrySortKey(te.Name, te.Mode)
		if i, ok := byKey[key]; ok {
			e.warn(ctx, "duplicate-entry", "duplicate tree entry, keeping the last one", "name", te.Name)
			entries[i] = te
			continue
		}
		byKey[key] = len(entries)
		entries = append(entries, te)
	}
	object.SortEntries(entries)

	if e.sameStore && sameEntries(src.Entries, entries) {
		return srcID, nil
	}
	ins, err := e.inserter(ctx)
	if err != nil {
		return object.ZeroHash, err
	}
	id, err := ins.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return object.ZeroHash, contextError(ctx, "write tree", err)
	}
	return id, nil
}

func sameEntries(a, b []object.TreeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *Engine) rewriteNames(ctx context.Context, entries []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	for _, ent := range entries {
		keep := true
		for _, h := range e.hooks.name {
			e.metrics.hook(h.plugin.Name() + ".RewriteName")
			name, err := h.hook.RewriteName(ctx, ent)
			if err != nil {
				return nil, hookError(ctx, h.plugin, "RewriteName", err)
			}
			if name == "" {
				keep = false
				break
			}
			ent.Name = name
		}
		if keep {
			out = append(out, ent)
		}
	}
	return out, nil
}

// rewriteRoot rewrites a commit's root tree. A deleted root becomes the
// empty tree.
func (e *Engine) rewriteRoot(ctx context.Context, id object.Hash) (object.Hash, error) {
	res, err := e.rewriteEntry(ctx, Entry{Mode: object.ModeTree, ID: id})
	if err != nil {
		return object.ZeroHash, err
	}
	if s, ok := res.(Single); ok {
		return s.Entry.ID, nil
	}
	if _, ok := res.(Many); ok {
		return object.ZeroHash, contextError(ctx, "rewrite root", fmt.Errorf("root tree %s rewritten to several entries", id.Short()))
	}
	ins, err := e.inserter(ctx)
	if err != nil {
		return object.ZeroHash, err
	}
	empty, err := ins.WriteTree(&object.TreeObj{})
	if err != nil {
		return object.ZeroHash, contextError(ctx, "write empty tree", err)
	}
	return empty, nil
}
