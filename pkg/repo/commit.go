package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/reforge/pkg/object"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in CommitObj.Signature.
type CommitSigner func(payload []byte) (string, error)

// CommitTree writes a commit for tree with the given parents and, when
// branch is non-empty, advances that branch ref to it (compare-and-swap
// against the first parent).
func (r *Repo) CommitTree(tree object.Hash, parents []object.Hash, author, committer object.Ident, message, branch string, signer CommitSigner) (object.Hash, error) {
	c := &object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   message,
	}
	if signer != nil {
		sig, err := signer(object.SigningPayload(c))
		if err != nil {
			return "", fmt.Errorf("commit: sign commit: %w", err)
		}
		c.Signature = sig
	}

	h, err := r.Store.WriteCommit(c)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}
	if branch == "" {
		return h, nil
	}

	ref := branch
	if !strings.HasPrefix(ref, "refs/") {
		ref = "refs/heads/" + ref
	}
	var updateErr error
	if len(parents) == 0 {
		updateErr = r.UpdateRefCAS(ref, h)
	} else {
		updateErr = r.UpdateRefCAS(ref, h, parents[0])
	}
	if updateErr != nil {
		return "", fmt.Errorf("commit: update ref %q: %w", ref, updateErr)
	}
	return h, nil
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning up to limit commit hashes newest first.
func (r *Repo) Log(start object.Hash, limit int) ([]object.Hash, error) {
	var out []object.Hash
	current := start

	for len(out) < limit && !current.IsZero() {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			if errors.Is(err, object.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		out = append(out, current)
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	return out, nil
}
