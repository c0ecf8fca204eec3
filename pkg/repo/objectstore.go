package repo

import (
	"fmt"
	"time"

	"github.com/odvcencio/reforge/pkg/object"
)

// Objects exposes a Repo through the object-store capability consumed by
// the rewrite engine. Ref mutations are skipped while the store is in
// dry-run mode.
type Objects struct {
	*Repo

	// Committer identifies the notes commit written by Flush.
	Committer object.Ident
}

// Objects returns the rewrite-facing view of r.
func (r *Repo) Objects() *Objects {
	return &Objects{Repo: r, Committer: object.Ident{Name: "reforge", Email: "reforge@localhost", Timezone: "+0000"}}
}

func (o *Objects) ReadTree(h object.Hash) (*object.TreeObj, error) {
	return o.Store.ReadTree(h)
}

func (o *Objects) ReadBlob(h object.Hash) ([]byte, error) {
	b, err := o.Store.ReadBlob(h)
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}

func (o *Objects) ReadCommit(h object.Hash) (*object.CommitObj, error) {
	return o.Store.ReadCommit(h)
}

func (o *Objects) ReadTag(h object.Hash) (*object.TagObj, error) {
	return o.Store.ReadTag(h)
}

func (o *Objects) ObjectType(h object.Hash) (object.ObjectType, error) {
	return o.Store.Type(h)
}

func (o *Objects) NewInserter() object.Inserter {
	return o.Store.NewSession()
}

// UpdateRef creates or moves ref. Symbolic refs are written as "ref: " files.
func (o *Objects) UpdateRef(ref object.Ref) error {
	if o.DryRun() {
		return nil
	}
	if ref.IsSymbolic() {
		return o.SetSymbolicRef(ref.Name, ref.Target)
	}
	if ref.Hash.IsZero() {
		return fmt.Errorf("update ref %q: empty hash", ref.Name)
	}
	return o.UpdateRefReason(ref.Name, ref.Hash, "rewrite")
}

func (o *Objects) DeleteRef(name string) error {
	if o.DryRun() {
		return nil
	}
	return o.Repo.DeleteRef(name)
}

func (o *Objects) RenameRef(oldName, newName string) error {
	if o.DryRun() {
		return nil
	}
	return o.Repo.RenameRef(oldName, newName)
}

// Flush writes buffered notes.
func (o *Objects) Flush() error {
	committer := o.Committer
	if committer.When == 0 {
		committer.When = time.Now().Unix()
	}
	return o.FlushNotes(committer)
}

func (o *Objects) DryRun() bool {
	return o.Store.DryRun()
}

// SetDryRun toggles dry-run mode on the object store.
func (o *Objects) SetDryRun(v bool) {
	o.Store.SetDryRun(v)
}
