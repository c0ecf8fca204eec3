package cachedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/odvcencio/reforge/pkg/object"
)

func h(n int) object.Hash {
	return object.Hash(fmt.Sprintf("%040x", n))
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenReportsCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s1 := openTestStore(t, path)
	if !s1.Created() {
		t.Fatalf("Created() = false for a new database")
	}
	s1.Close()

	s2 := openTestStore(t, path)
	if s2.Created() {
		t.Fatalf("Created() = true for an existing database")
	}
	var mode string
	if err := s2.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := Open(path); !errors.Is(err, ErrSchemaVersion) {
		t.Fatalf("Open() error = %v, want ErrSchemaVersion", err)
	}
}

func TestRunFinishPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s := openTestStore(t, path)
	ctx := context.Background()

	run, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := run.PutCommit(h(1), h(101)); err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	if err := run.PutRef(object.Ref{Name: "refs/heads/main", Hash: h(1)}, object.Ref{Name: "refs/heads/main", Hash: h(101)}); err != nil {
		t.Fatalf("PutRef: %v", err)
	}
	if err := run.PutEntry([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("PutEntry: %v", err)
	}
	got, ok, err := run.Commit(h(1))
	if err != nil || !ok || got != h(101) {
		t.Fatalf("Commit inside run = %s, %v, %v", got, ok, err)
	}
	if err := run.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := run.PutCommit(h(2), h(102)); !errors.Is(err, ErrRunClosed) {
		t.Fatalf("PutCommit after Finish error = %v, want ErrRunClosed", err)
	}
	s.Close()

	s = openTestStore(t, path)
	run, err = s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer run.Abort()

	got, ok, err = run.Commit(h(1))
	if err != nil || !ok || got != h(101) {
		t.Fatalf("Commit after reopen = %s, %v, %v", got, ok, err)
	}
	refs, err := run.SourceRefs()
	if err != nil {
		t.Fatalf("SourceRefs: %v", err)
	}
	if len(refs) != 1 || refs[0] != (object.Ref{Name: "refs/heads/main", Hash: h(1)}) {
		t.Fatalf("SourceRefs = %v", refs)
	}
	v, ok, err := run.Entry([]byte("k"))
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Entry = %q, %v, %v", v, ok, err)
	}
	if err := run.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Commits != 1 || runs[0].Refs != 1 {
		t.Fatalf("Runs = %+v", runs)
	}
}

func TestRunAbortDiscardsWrites(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	run, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := run.PutCommit(h(1), h(2)); err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	if err := run.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	run, err = s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer run.Abort()
	if _, ok, err := run.Commit(h(1)); err != nil || ok {
		t.Fatalf("Commit after abort = %v, %v; want miss", ok, err)
	}
	var n int
	if err := run.tx.QueryRow("SELECT COUNT(*) FROM runs").Scan(&n); err != nil || n != 0 {
		t.Fatalf("runs after abort = %d, %v", n, err)
	}
}

func TestEachCommitOrdered(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "cache.db"))
	run, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer run.Abort()

	for _, n := range []int{3, 1, 2} {
		if err := run.PutCommit(h(n), h(n+100)); err != nil {
			t.Fatal(err)
		}
	}
	// Overwrite keeps one row per key.
	if err := run.PutCommit(h(2), h(200)); err != nil {
		t.Fatal(err)
	}

	var olds []object.Hash
	var news []object.Hash
	err = run.EachCommit(func(old, rewritten object.Hash) error {
		olds = append(olds, old)
		news = append(news, rewritten)
		return nil
	})
	if err != nil {
		t.Fatalf("EachCommit: %v", err)
	}
	if len(olds) != 3 || olds[0] != h(1) || olds[2] != h(3) {
		t.Fatalf("olds = %v", olds)
	}
	if news[1] != h(200) {
		t.Fatalf("news[1] = %s, want %s", news[1], h(200))
	}
}

func TestRunConcurrentWrites(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "cache.db"))
	run, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer run.Abort()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				key := []byte(fmt.Sprintf("w%d-%d", w, i))
				if err := run.PutEntry(key, key); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := run.Entry(key); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	var n int
	if err := run.tx.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 100 {
		t.Fatalf("entries = %d, want 100", n)
	}
}

func TestRefCodec(t *testing.T) {
	tests := []object.Ref{
		{},
		{Name: "refs/heads/main", Hash: h(7)},
		{Name: "HEAD", Target: "refs/heads/main"},
	}
	for _, ref := range tests {
		b, err := encodeRef(ref)
		if err != nil {
			t.Fatalf("encodeRef(%+v): %v", ref, err)
		}
		got, err := decodeRef(b)
		if err != nil {
			t.Fatalf("decodeRef(%+v): %v", ref, err)
		}
		if got != ref {
			t.Errorf("decodeRef(encodeRef(%+v)) = %+v", ref, got)
		}
	}
	if _, err := decodeRef([]byte("name\x00x")); err == nil {
		t.Errorf("decodeRef with unknown kind should fail")
	}
	if _, err := encodeHash("not-hex"); err == nil {
		t.Errorf("encodeHash(not-hex) should fail")
	}
}

func TestTargetRefsSkipsDeletions(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "cache.db"))
	run, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer run.Abort()

	main := object.Ref{Name: "refs/heads/main", Hash: h(1)}
	if err := run.PutRef(main, object.Ref{Name: "refs/heads/main", Hash: h(2)}); err != nil {
		t.Fatalf("PutRef: %v", err)
	}
	if err := run.PutRef(object.Ref{Name: "refs/heads/old", Hash: h(3)}, object.Ref{}); err != nil {
		t.Fatalf("PutRef deletion: %v", err)
	}

	refs, err := run.TargetRefs()
	if err != nil {
		t.Fatalf("TargetRefs: %v", err)
	}
	want := object.Ref{Name: "refs/heads/main", Hash: h(2)}
	if len(refs) != 1 || refs[0] != want {
		t.Fatalf("TargetRefs = %v, want [%v]", refs, want)
	}
}
