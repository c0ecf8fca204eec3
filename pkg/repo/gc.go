package repo

import (
	"github.com/odvcencio/reforge/pkg/object"
)

// GC removes loose objects unreachable from any ref, including the notes
// ref. Symbolic refs are resolved through their targets.
func (r *Repo) GC() (*object.PruneSummary, error) {
	refs, err := r.Refs()
	if err != nil {
		return nil, err
	}

	roots := make([]object.Hash, 0, len(refs))
	for _, ref := range refs {
		if ref.IsSymbolic() {
			continue
		}
		roots = append(roots, ref.Hash)
	}
	return r.Store.Prune(roots)
}
