package repo

import (
	"testing"

	"github.com/odvcencio/reforge/pkg/object"
)

func TestNotesBufferedUntilFlush(t *testing.T) {
	r := initTestRepo(t)
	h := commitFiles(t, r, "main", map[string][]byte{"a.txt": []byte("a\n")})

	if err := r.AddNote(h, []byte("rewritten from abc\n")); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if _, err := r.ResolveRef(NotesRef); err == nil {
		t.Fatalf("notes ref exists before FlushNotes")
	}
	got, err := r.ReadNote(h)
	if err != nil {
		t.Fatalf("ReadNote(pending): %v", err)
	}
	if string(got) != "rewritten from abc\n" {
		t.Fatalf("ReadNote(pending) = %q", got)
	}

	if err := r.FlushNotes(testIdent(1700000200)); err != nil {
		t.Fatalf("FlushNotes: %v", err)
	}
	reopened, err := Open(r.RootDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err = reopened.ReadNote(h)
	if err != nil {
		t.Fatalf("ReadNote(flushed): %v", err)
	}
	if string(got) != "rewritten from abc\n" {
		t.Fatalf("ReadNote(flushed) = %q", got)
	}
}

func TestNotesFlushChainsCommits(t *testing.T) {
	r := initTestRepo(t)
	h1 := commitFiles(t, r, "main", map[string][]byte{"a.txt": []byte("1\n")})
	h2 := commitFiles(t, r, "main", map[string][]byte{"a.txt": []byte("2\n")}, h1)

	if err := r.AddNote(h1, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := r.FlushNotes(testIdent(1)); err != nil {
		t.Fatalf("FlushNotes 1: %v", err)
	}
	first, _ := r.ResolveRef(NotesRef)

	if err := r.AddNote(h2, []byte("two")); err != nil {
		t.Fatal(err)
	}
	if err := r.FlushNotes(testIdent(2)); err != nil {
		t.Fatalf("FlushNotes 2: %v", err)
	}
	second, _ := r.ResolveRef(NotesRef)

	c, err := r.Store.ReadCommit(second)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != first {
		t.Fatalf("notes commit parents = %v, want [%s]", c.Parents, first)
	}
	for anchor, want := range map[object.Hash]string{h1: "one", h2: "two"} {
		got, err := r.ReadNote(anchor)
		if err != nil {
			t.Fatalf("ReadNote: %v", err)
		}
		if string(got) != want {
			t.Fatalf("ReadNote(%s) = %q, want %q", anchor.Short(), got, want)
		}
	}

	missing, err := r.ReadNote(object.Hash("ffff"))
	if err != nil {
		t.Fatalf("ReadNote(missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("ReadNote(missing) = %q, want nil", missing)
	}
}
