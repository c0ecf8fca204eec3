package rewrite

import (
	"context"
	"fmt"

	"github.com/odvcencio/reforge/pkg/graph"
	"github.com/odvcencio/reforge/pkg/object"
)

// maxPeel bounds symbolic ref and tag chains.
const maxPeel = 8

// walk collects the commits reachable from the start refs, minus those
// already rewritten by a prior run, applies the clustering recipe and
// returns them ancestors first.
func (e *Engine) walk(ctx context.Context, refs []object.Ref) ([]object.Hash, error) {
	byName := make(map[string]object.Ref, len(refs))
	for _, ref := range refs {
		byName[ref.Name] = ref
	}

	var starts []object.Hash
	seen := make(map[object.Hash]bool)
	for _, ref := range refs {
		if !e.opts.StartRef(ref) {
			continue
		}
		id, err := e.peelRef(WithRef(ctx, ref), ref, byName)
		if err != nil {
			return nil, err
		}
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		starts = append(starts, id)
	}

	hidden, err := e.hiddenCommits(ctx, byName)
	if err != nil {
		return nil, err
	}

	var walked []graph.Commit
	visited := make(map[object.Hash]bool)
	stack := make([]object.Hash, 0, len(starts))
	for i := len(starts) - 1; i >= 0; i-- {
		stack = append(stack, starts[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] || hidden[id] {
			continue
		}
		visited[id] = true
		if e.incremental {
			if _, ok, err := e.commitMap.Get(id); err != nil {
				return nil, contextError(WithCommit(ctx, id), "read commit cache", err)
			} else if ok {
				continue
			}
		}

		c, err := e.src.ReadCommit(id)
		if err != nil {
			return nil, contextError(WithCommit(ctx, id), "read commit", err)
		}
		e.commits[id] = c
		walked = append(walked, graph.Commit{ID: id, Parents: c.Parents})
		for i := len(c.Parents) - 1; i >= 0; i-- {
			if p := c.Parents[i]; !visited[p] {
				stack = append(stack, p)
			}
		}
	}

	// Build adds its vertices in walk order, which is the tie-break of the
	// topological order: reverse it so ancestors come out first among
	// otherwise unordered commits.
	for i, j := 0, len(walked)-1; i < j; i, j = i+1, j-1 {
		walked[i], walked[j] = walked[j], walked[i]
	}
	g := graph.Build(walked)
	if !e.opts.Recipe.Empty() {
		rejected, err := g.Apply(e.opts.Recipe)
		if err != nil {
			return nil, err
		}
		for _, r := range rejected {
			e.warn(WithCommit(ctx, r.Target), "merge-rejected", "safe merge rejected: commits are related", "base", r.Base.Short())
		}
		for target, base := range g.Merged() {
			e.mergedInto[base] = append(e.mergedInto[base], target)
		}
	}
	e.graph = g

	order, err := g.TopoOrder()
	if err != nil {
		return nil, fmt.Errorf("order commits: %w", err)
	}
	out := order[:0]
	for _, id := range order {
		if _, ok := e.commits[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// peelRef resolves ref through symbolic refs and annotated tags to a
// commit. Refs that end at a tree or blob yield the zero hash.
func (e *Engine) peelRef(ctx context.Context, ref object.Ref, byName map[string]object.Ref) (object.Hash, error) {
	for depth := 0; ref.IsSymbolic(); depth++ {
		next, ok := byName[ref.Target]
		if !ok || depth >= maxPeel {
			return object.ZeroHash, nil
		}
		ref = next
	}
	return e.peel(ctx, ref.Hash)
}

func (e *Engine) peel(ctx context.Context, id object.Hash) (object.Hash, error) {
	for depth := 0; depth < maxPeel && !id.IsZero(); depth++ {
		typ, err := e.src.ObjectType(id)
		if err != nil {
			return object.ZeroHash, contextError(ctx, "peel ref", err)
		}
		switch typ {
		case object.TypeCommit:
			return id, nil
		case object.TypeTag:
			tag, err := e.src.ReadTag(id)
			if err != nil {
				return object.ZeroHash, contextError(ctx, "read tag", err)
			}
			id = tag.TargetHash
		default:
			return object.ZeroHash, nil
		}
	}
	return object.ZeroHash, nil
}

// hiddenCommits returns the commits whose histories a prior run rewrote
// already: the peeled source refs it recorded and, when rewriting in
// place, every commit and ref it wrote. Those are marked done so that the
// rewrite maps them to themselves.
func (e *Engine) hiddenCommits(ctx context.Context, byName map[string]object.Ref) (map[object.Hash]bool, error) {
	hidden := make(map[object.Hash]bool)
	if !e.incremental {
		return hidden, nil
	}
	prior, err := e.run.SourceRefs()
	if err != nil {
		return nil, err
	}
	for _, ref := range prior {
		if ref.IsSymbolic() {
			continue
		}
		id, err := e.peel(WithRef(ctx, ref), ref.Hash)
		if err != nil {
			e.warn(WithRef(ctx, ref), "missing-object", "prior ref target unreadable", "err", err)
			continue
		}
		if !id.IsZero() {
			hidden[id] = true
		}
	}
	if !e.sameStore {
		return hidden, nil
	}

	if err := e.run.EachCommit(func(_, rewritten object.Hash) error {
		e.done[rewritten] = true
		return nil
	}); err != nil {
		return nil, err
	}
	written, err := e.run.TargetRefs()
	if err != nil {
		return nil, err
	}
	for _, ref := range written {
		e.doneRefs[ref] = true
		if ref.IsSymbolic() {
			continue
		}
		e.done[ref.Hash] = true
		id, err := e.peel(WithRef(ctx, ref), ref.Hash)
		if err != nil {
			e.warn(WithRef(ctx, ref), "missing-object", "rewritten ref target unreadable", "err", err)
			continue
		}
		if !id.IsZero() {
			e.done[id] = true
		}
	}
	for id := range e.done {
		hidden[id] = true
	}
	return hidden, nil
}
