package filter_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/reforge/pkg/filter"
	"github.com/odvcencio/reforge/pkg/object"
	"github.com/odvcencio/reforge/pkg/repo"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

func TestFiltersThroughEngine(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	tree, err := r.BuildTree(map[string][]byte{
		"main.go":         []byte("package main\n"),
		"logs/build.log":  []byte("ok\n"),
		"docs/guide.md":   []byte("guide\n"),
		"docs/old/x.log":  []byte("old\n"),
		"config/prod.env": []byte("TOKEN=1\n"),
	})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	who := object.Ident{Name: "old name", Email: "dev@old.example", When: 1700000000, Timezone: "+0000"}
	c, err := r.CommitTree(tree, nil, who, who, "initial\n", "main", nil)
	if err != nil {
		t.Fatalf("CommitTree: %v", err)
	}

	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	key, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}
	plugins := []rewrite.Plugin{
		filter.Drop{Patterns: filter.MustCompile("*.log", "config/")},
		filter.PersonMap{"dev@old.example": {Name: "Dev", Email: "dev@new.example"}},
		filter.MessageFooter{Text: "Rewritten-by: reforge"},
		filter.NewSSHSignerFromKey(key),
	}
	e, err := rewrite.New(rewrite.Options{Source: r.Objects(), Plugins: plugins})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m, err := e.Rewrite(context.Background())
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	newID, ok := m.Lookup(c)
	if !ok {
		t.Fatal("commit not rewritten")
	}
	nc, err := r.Store.ReadCommit(newID)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if nc.Author.Name != "Dev" || nc.Committer.Email != "dev@new.example" {
		t.Errorf("identities = %+v / %+v", nc.Author, nc.Committer)
	}
	if nc.Message != "initial\n\nRewritten-by: reforge\n" {
		t.Errorf("message = %q", nc.Message)
	}
	if _, err := filter.VerifySignature(nc); err != nil {
		t.Errorf("VerifySignature: %v", err)
	}

	files, err := r.FlattenTree(nc.TreeHash)
	if err != nil {
		t.Fatalf("FlattenTree: %v", err)
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	want := []string{"docs/guide.md", "main.go"}
	if len(paths) != len(want) || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}
