package rewrite

import (
	"context"
	"strings"

	"github.com/odvcencio/reforge/pkg/object"
)

// rewriteRefs rewrites every selected ref, direct refs before symbolic
// ones so that symbolic refs see the final names of their targets.
func (e *Engine) rewriteRefs(ctx context.Context, refs []object.Ref) error {
	byName := make(map[string]object.Ref, len(refs))
	var direct, symbolic []object.Ref
	for _, ref := range refs {
		byName[ref.Name] = ref
		if !e.opts.StartRef(ref) {
			continue
		}
		if ref.IsSymbolic() {
			symbolic = append(symbolic, ref)
		} else {
			direct = append(direct, ref)
		}
	}

	written := make(map[string]bool)
	for _, ref := range append(direct, symbolic...) {
		rctx := WithRef(ctx, ref)
		out, err := e.rewriteRef(rctx, ref, byName, 0)
		if err != nil {
			return err
		}
		if err := e.applyRef(rctx, ref, out, byName, written); err != nil {
			return err
		}
	}
	return nil
}

// rewriteRef returns the rewritten form of ref, or the empty ref when it
// is deleted. Results are memoized.
func (e *Engine) rewriteRef(ctx context.Context, ref object.Ref, byName map[string]object.Ref, depth int) (object.Ref, error) {
	if out, ok, err := e.refMap.Get(ref); err != nil {
		return object.Ref{}, contextError(ctx, "read ref cache", err)
	} else if ok {
		return out, nil
	}
	if e.doneRefs[ref] {
		return ref, nil
	}

	var out object.Ref
	if ref.IsSymbolic() {
		out = ref
		target, ok := byName[ref.Target]
		if ok && depth < maxPeel {
			next, err := e.rewriteRef(ctx, target, byName, depth+1)
			if err != nil {
				return object.Ref{}, err
			}
			if next.IsEmpty() {
				e.warn(ctx, "deleted-ref-target", "symbolic ref target deleted, keeping it", "target", ref.Target)
			} else {
				out.Target = next.Name
			}
		}
	} else {
		name, err := e.rewriteRefName(ctx, ref.Name)
		if err != nil {
			return object.Ref{}, err
		}
		if name != "" {
			id, err := e.rewriteRefTarget(ctx, ref.Hash)
			if err != nil {
				return object.Ref{}, err
			}
			if !id.IsZero() {
				out = object.Ref{Name: name, Hash: id}
			}
		}
	}

	if err := e.refMap.Put(ref, out); err != nil {
		return object.Ref{}, contextError(ctx, "write ref cache", err)
	}
	return out, nil
}

func (e *Engine) rewriteRefName(ctx context.Context, name string) (string, error) {
	var err error
	switch {
	case strings.HasPrefix(name, "refs/heads/"):
		for _, h := range e.hooks.branchName {
			e.metrics.hook(h.plugin.Name() + ".RewriteBranchName")
			if name, err = h.hook.RewriteBranchName(ctx, name); err != nil {
				return "", hookError(ctx, h.plugin, "RewriteBranchName", err)
			}
			if name == "" {
				return "", nil
			}
		}
	case strings.HasPrefix(name, "refs/tags/"):
		for _, h := range e.hooks.tagName {
			e.metrics.hook(h.plugin.Name() + ".RewriteTagName")
			if name, err = h.hook.RewriteTagName(ctx, name); err != nil {
				return "", hookError(ctx, h.plugin, "RewriteTagName", err)
			}
			if name == "" {
				return "", nil
			}
		}
	}
	return name, nil
}

// rewriteRefTarget maps the object a ref or tag points at. The zero hash
// means the target was deleted.
func (e *Engine) rewriteRefTarget(ctx context.Context, id object.Hash) (object.Hash, error) {
	typ, err := e.src.ObjectType(id)
	if err != nil {
		return object.ZeroHash, contextError(ctx, "read ref target", err)
	}
	switch typ {
	case object.TypeCommit:
		mapped, ok, err := e.commitMap.Get(id)
		if err != nil {
			return object.ZeroHash, contextError(ctx, "read commit cache", err)
		}
		if !ok {
			if !e.done[id] {
				e.warn(ctx, "missing-commit", "ref target not rewritten, keeping original id", "target", id.Short())
			}
			return id, nil
		}
		return mapped, nil
	case object.TypeTag:
		return e.rewriteTag(ctx, id)
	case object.TypeTree:
		return e.rewriteRoot(ctx, id)
	default:
		e.warn(ctx, "unexpected-object", "ref points at a "+string(typ)+", passing it through", "target", id.Short())
		if e.sameStore {
			return id, nil
		}
		data, err := e.src.ReadBlob(id)
		if err != nil {
			return object.ZeroHash, contextError(ctx, "read blob", err)
		}
		ins, err := e.inserter(ctx)
		if err != nil {
			return object.ZeroHash, err
		}
		copied, err := ins.WriteBlob(data)
		if err != nil {
			return object.ZeroHash, contextError(ctx, "write blob", err)
		}
		return copied, nil
	}
}

// rewriteTag re-creates an annotated tag over its rewritten target. A tag
// whose target was deleted is deleted too.
func (e *Engine) rewriteTag(ctx context.Context, id object.Hash) (object.Hash, error) {
	if out, ok := e.tags[id]; ok {
		return out, nil
	}
	if e.done[id] {
		return id, nil
	}
	tag, err := e.src.ReadTag(id)
	if err != nil {
		return object.ZeroHash, contextError(ctx, "read tag", err)
	}
	e.tags[id] = object.ZeroHash

	target, err := e.rewriteRefTarget(ctx, tag.TargetHash)
	if err != nil {
		return object.ZeroHash, err
	}
	if target.IsZero() {
		e.warn(ctx, "deleted-tag-target", "tag target deleted, deleting tag", "tag", tag.Name)
		return object.ZeroHash, nil
	}

	nt := *tag
	nt.TargetHash = target
	if name, err := e.rewriteRefName(ctx, "refs/tags/"+tag.Name); err != nil {
		return object.ZeroHash, err
	} else if short, ok := strings.CutPrefix(name, "refs/tags/"); ok && short != "" {
		nt.Name = short
	}
	if nt.Tagger, err = e.rewritePerson(ctx, tag.Tagger); err != nil {
		return object.ZeroHash, err
	}
	for _, h := range e.hooks.tagMsg {
		e.metrics.hook(h.plugin.Name() + ".RewriteTagMessage")
		if nt.Message, err = h.hook.RewriteTagMessage(ctx, nt.Message); err != nil {
			return object.ZeroHash, hookError(ctx, h.plugin, "RewriteTagMessage", err)
		}
	}

	ins, err := e.inserter(ctx)
	if err != nil {
		return object.ZeroHash, err
	}
	out, err := ins.WriteTag(&nt)
	if err != nil {
		return object.ZeroHash, contextError(ctx, "write tag", err)
	}
	e.tags[id] = out
	return out, nil
}

// applyRef writes the rewritten ref to the target store. In place, a
// renamed ref is moved; into a separate store, refs are created.
func (e *Engine) applyRef(ctx context.Context, old, out object.Ref, byName map[string]object.Ref, written map[string]bool) error {
	switch {
	case out.IsEmpty():
		if !e.sameStore {
			e.metrics.ref("drop")
			return nil
		}
		e.log.Info("deleting ref", "ref", old.Name)
		if err := e.dst.DeleteRef(old.Name); err != nil {
			return contextError(ctx, "delete ref", err)
		}
		e.metrics.ref("delete")
		return nil

	case out == old && e.sameStore:
		e.metrics.ref("unchanged")
		written[out.Name] = true
		return nil
	}

	if written[out.Name] {
		e.warn(ctx, "ref-collision", "several refs rewritten to one name, keeping the last", "name", out.Name)
	}
	action := "update"
	renamed := e.sameStore && out.Name != old.Name
	_, taken := byName[out.Name]
	if renamed && !written[old.Name] && !taken && !written[out.Name] {
		action = "rename"
		if err := e.dst.RenameRef(old.Name, out.Name); err != nil {
			return contextError(ctx, "rename ref", err)
		}
		renamed = false
	}
	if err := e.dst.UpdateRef(out); err != nil {
		return contextError(ctx, "update ref", err)
	}
	written[out.Name] = true
	if renamed && !written[old.Name] {
		action = "rename"
		if err := e.dst.DeleteRef(old.Name); err != nil {
			return contextError(ctx, "delete ref", err)
		}
	}
	if action == "rename" {
		e.log.Info("renamed ref", "from", old.Name, "to", out.Name)
	}
	e.metrics.ref(action)
	return nil
}
