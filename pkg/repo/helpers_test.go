package repo

import (
	"testing"

	"github.com/odvcencio/reforge/pkg/object"
)

func testIdent(when int64) object.Ident {
	return object.Ident{Name: "Test Author", Email: "test@example.com", When: when, Timezone: "+0000"}
}

func initTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

// commitFiles writes files as a tree and commits it on branch.
func commitFiles(t *testing.T, r *Repo, branch string, files map[string][]byte, parents ...object.Hash) object.Hash {
	t.Helper()
	tree, err := r.BuildTree(files)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	when := int64(1700000000 + len(parents))
	h, err := r.CommitTree(tree, parents, testIdent(when), testIdent(when), "commit\n", branch, nil)
	if err != nil {
		t.Fatalf("CommitTree: %v", err)
	}
	return h
}
