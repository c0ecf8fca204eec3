package rewrite

import (
	"context"
	"fmt"
	"strings"

	"github.com/odvcencio/reforge/pkg/object"
)

// rewriteCommit writes the rewritten form of a walked commit and records
// it in the commit map. All of the commit's parents in the graph must have
// been rewritten already.
func (e *Engine) rewriteCommit(ctx context.Context, id object.Hash) error {
	ctx = WithCommit(ctx, id)
	c, ok := e.commits[id]
	if !ok {
		return contextError(ctx, "rewrite commit", fmt.Errorf("commit %s was not walked", id.Short()))
	}

	parents, err := e.rewriteParents(ctx, e.graph.GetParents(id))
	if err != nil {
		return err
	}
	tree, err := e.rewriteRoot(ctx, c.TreeHash)
	if err != nil {
		return err
	}
	author, err := e.rewritePerson(ctx, c.Author)
	if err != nil {
		return err
	}
	committer, err := e.rewritePerson(ctx, c.Committer)
	if err != nil {
		return err
	}

	msg := c.Message
	for _, h := range e.hooks.commitMsg {
		e.metrics.hook(h.plugin.Name() + ".RewriteCommitMessage")
		if msg, err = h.hook.RewriteCommitMessage(ctx, msg); err != nil {
			return hookError(ctx, h.plugin, "RewriteCommitMessage", err)
		}
	}
	if e.opts.Annotate {
		msg = annotate(msg, id)
	}

	enc := c.Encoding
	for _, h := range e.hooks.encoding {
		e.metrics.hook(h.plugin.Name() + ".RewriteEncoding")
		if enc, err = h.hook.RewriteEncoding(ctx, enc); err != nil {
			return hookError(ctx, h.plugin, "RewriteEncoding", err)
		}
	}

	nc := &object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Encoding:  enc,
		Signature: fixupSignature(c.Signature),
		Message:   msg,
	}
	for _, h := range e.hooks.signature {
		e.metrics.hook(h.plugin.Name() + ".RewriteSignature")
		sig, err := h.hook.RewriteSignature(ctx, nc)
		if err != nil {
			return hookError(ctx, h.plugin, "RewriteSignature", err)
		}
		nc.Signature = sig
	}

	ins, err := e.inserter(ctx)
	if err != nil {
		return err
	}
	newID, err := ins.WriteCommit(nc)
	if err != nil {
		return contextError(ctx, "write commit", err)
	}

	if err := e.commitMap.Put(id, newID); err != nil {
		return contextError(ctx, "write commit cache", err)
	}
	e.rewritten = append(e.rewritten, id)
	for _, merged := range e.mergedInto[id] {
		if err := e.commitMap.Put(merged, newID); err != nil {
			return contextError(ctx, "write commit cache", err)
		}
		e.rewritten = append(e.rewritten, merged)
	}

	if e.opts.Notes {
		if err := e.dst.AddNote(newID, []byte(string(id)+"\n")); err != nil {
			return contextError(ctx, "add note", err)
		}
	}
	e.metrics.commit()
	e.log.Debug("rewrote commit", "old", id.Short(), "new", newID.Short())
	return nil
}

// rewriteParents maps graph parents through the commit map. A parent that
// was never rewritten, or was written by a prior in-place run, is kept as
// is.
func (e *Engine) rewriteParents(ctx context.Context, parents []object.Hash) ([]object.Hash, error) {
	out := make([]object.Hash, 0, len(parents))
	seen := make(map[object.Hash]bool, len(parents))
	for _, p := range parents {
		mapped, ok, err := e.commitMap.Get(p)
		if err != nil {
			return nil, contextError(ctx, "read commit cache", err)
		}
		if !ok {
			if !e.done[p] {
				e.warn(ctx, "missing-parent", "parent not rewritten, keeping original id", "parent", p.Short())
			}
			mapped = p
		}
		if seen[mapped] {
			continue
		}
		seen[mapped] = true
		out = append(out, mapped)
	}

	var err error
	for _, h := range e.hooks.parents {
		e.metrics.hook(h.plugin.Name() + ".RewriteParents")
		if out, err = h.hook.RewriteParents(ctx, out); err != nil {
			return nil, hookError(ctx, h.plugin, "RewriteParents", err)
		}
	}
	return out, nil
}

func (e *Engine) rewritePerson(ctx context.Context, p object.Ident) (object.Ident, error) {
	var err error
	for _, h := range e.hooks.person {
		e.metrics.hook(h.plugin.Name() + ".RewritePerson")
		if p, err = h.hook.RewritePerson(ctx, p); err != nil {
			return object.Ident{}, hookError(ctx, h.plugin, "RewritePerson", err)
		}
	}
	return p, nil
}

// annotate appends a Rewritten-from trailer naming the source commit.
func annotate(msg string, old object.Hash) string {
	if msg != "" && !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return msg + "\nRewritten-from: " + string(old) + "\n"
}

// fixupSignature removes the space that header folding inserts after each
// line break of an embedded signature. Both stores hand over signatures
// already unfolded; a value is only unfolded when every line after the
// first still starts with the folding space.
func fixupSignature(sig string) string {
	body := strings.TrimSuffix(sig, "\n")
	lines := strings.Split(body, "\n")
	if len(lines) < 2 {
		return sig
	}
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, " ") {
			return sig
		}
	}
	for i := 1; i < len(lines); i++ {
		lines[i] = lines[i][1:]
	}
	return strings.Join(lines, "\n") + sig[len(body):]
}
