package repo

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/odvcencio/reforge/pkg/object"
)

func TestUpdateRefCASConcurrentSingleWinner(t *testing.T) {
	r := initTestRepo(t)

	base := object.Hash(fmt.Sprintf("%064x", 0xaa))
	if err := r.UpdateRef("refs/heads/main", base); err != nil {
		t.Fatalf("UpdateRef(base): %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	successCh := make(chan object.Hash, workers)
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			next := object.Hash(fmt.Sprintf("%064x", i+1))
			if err := r.UpdateRefCAS("refs/heads/main", next, base); err != nil {
				errCh <- err
				return
			}
			successCh <- next
		}()
	}
	wg.Wait()
	close(successCh)
	close(errCh)

	var winner object.Hash
	successes := 0
	for h := range successCh {
		successes++
		winner = h
	}
	if successes != 1 {
		t.Fatalf("successful CAS updates = %d, want 1", successes)
	}
	for err := range errCh {
		if !errors.Is(err, ErrRefCASMismatch) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	got, err := r.ResolveRef("main")
	if err != nil {
		t.Fatalf("ResolveRef(main): %v", err)
	}
	if got != winner {
		t.Fatalf("refs/heads/main = %s, want winner %s", got, winner)
	}
}

func TestResolveRefFollowsSymbolicRefs(t *testing.T) {
	r := initTestRepo(t)
	h := commitFiles(t, r, "main", map[string][]byte{"a.txt": []byte("a\n")})

	got, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	if got != h {
		t.Fatalf("HEAD = %s, want %s", got, h)
	}

	if err := r.SetSymbolicRef("refs/heads/alias", "HEAD"); err != nil {
		t.Fatalf("SetSymbolicRef: %v", err)
	}
	got, err = r.ResolveRef("alias")
	if err != nil {
		t.Fatalf("ResolveRef(alias): %v", err)
	}
	if got != h {
		t.Fatalf("alias = %s, want %s", got, h)
	}
}

func TestResolveRefMissing(t *testing.T) {
	r := initTestRepo(t)
	if _, err := r.ResolveRef("nope"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("ResolveRef(nope) error = %v, want ErrRefNotFound", err)
	}
}

func TestRefsListsDirectAndSymbolic(t *testing.T) {
	r := initTestRepo(t)
	h := commitFiles(t, r, "main", map[string][]byte{"a.txt": []byte("a\n")})
	if err := r.CreateTag("v1", h, false); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	refs, err := r.Refs()
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	want := []object.Ref{
		{Name: "HEAD", Target: "refs/heads/main"},
		{Name: "refs/heads/main", Hash: h},
		{Name: "refs/tags/v1", Hash: h},
	}
	if len(refs) != len(want) {
		t.Fatalf("Refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("Refs[%d] = %+v, want %+v", i, refs[i], want[i])
		}
	}

	direct, err := r.ListRefs("heads")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(direct) != 1 || direct["heads/main"] != h {
		t.Fatalf("ListRefs(heads) = %v", direct)
	}
}

func TestDeleteRef(t *testing.T) {
	r := initTestRepo(t)
	h := commitFiles(t, r, "feature/x", map[string][]byte{"a.txt": []byte("a\n")})
	if got, _ := r.ResolveRef("feature/x"); got != h {
		t.Fatalf("feature/x = %s, want %s", got, h)
	}

	if err := r.DeleteRef("refs/heads/feature/x"); err != nil {
		t.Fatalf("DeleteRef: %v", err)
	}
	if _, err := r.ResolveRef("feature/x"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("ResolveRef after delete error = %v, want ErrRefNotFound", err)
	}
	if err := r.DeleteRef("refs/heads/feature/x"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("second DeleteRef error = %v, want ErrRefNotFound", err)
	}
}

func TestRenameRefRetargetsSymbolicRefs(t *testing.T) {
	r := initTestRepo(t)
	h := commitFiles(t, r, "main", map[string][]byte{"a.txt": []byte("a\n")})

	if err := r.RenameRef("refs/heads/main", "refs/heads/trunk"); err != nil {
		t.Fatalf("RenameRef: %v", err)
	}
	if _, err := r.ResolveRef("main"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("old ref still resolves: %v", err)
	}
	got, err := r.ResolveRef("trunk")
	if err != nil || got != h {
		t.Fatalf("trunk = %s, %v; want %s", got, err, h)
	}
	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != "refs/heads/trunk" {
		t.Fatalf("HEAD = %q, want refs/heads/trunk", head)
	}
}

func TestRenameRefRefusesExistingDestination(t *testing.T) {
	r := initTestRepo(t)
	h := commitFiles(t, r, "main", map[string][]byte{"a.txt": []byte("a\n")})
	if err := r.CreateBranch("other", h); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.RenameRef("refs/heads/main", "refs/heads/other"); err == nil {
		t.Fatalf("RenameRef onto existing ref should fail")
	}
}
