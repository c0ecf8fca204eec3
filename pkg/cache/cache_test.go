package cache

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestGetPromotesAdmittedBackHits(t *testing.T) {
	back := NewMap[string, int]()
	if err := back.Put("tree:a", 1); err != nil {
		t.Fatal(err)
	}
	if err := back.Put("blob:b", 2); err != nil {
		t.Fatal(err)
	}
	c := New[string, int](back, func(k string) bool { return strings.HasPrefix(k, "tree:") })

	v, ok, err := c.Get("tree:a")
	if err != nil || !ok || v != 1 {
		t.Fatalf("Get(tree:a) = %d, %v, %v; want 1, true, nil", v, ok, err)
	}
	if _, ok, _ := c.Get("blob:b"); ok {
		t.Fatalf("Get(blob:b) hit through a non-admitted key")
	}
	if _, ok, _ := c.Get("tree:a"); !ok {
		t.Fatalf("promoted value missing from front")
	}

	want := Stats{FrontHits: 1, BackHits: 1, Misses: 1}
	if got := c.Stats(); got != want {
		t.Fatalf("Stats = %+v, want %+v", got, want)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestPutWritesBackOnlyWhenAdmitted(t *testing.T) {
	back := NewMap[string, int]()
	c := New[string, int](back, func(k string) bool { return k == "keep" })

	if err := c.Put("keep", 1); err != nil {
		t.Fatalf("Put(keep): %v", err)
	}
	if err := c.Put("drop", 2); err != nil {
		t.Fatalf("Put(drop): %v", err)
	}
	if back.Len() != 1 {
		t.Fatalf("back Len = %d, want 1", back.Len())
	}
	if v, ok, _ := c.Get("drop"); !ok || v != 2 {
		t.Fatalf("Get(drop) = %d, %v; want front value 2", v, ok)
	}
}

func TestNilBackAndAdmit(t *testing.T) {
	c := New[int, string](nil, nil)
	if err := c.Put(1, "one"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v, ok, err := c.Get(1); err != nil || !ok || v != "one" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if _, ok, err := c.Get(2); err != nil || ok {
		t.Fatalf("Get(2) = %v, %v; want miss", ok, err)
	}
}

type failingStore struct{}

var errBack = errors.New("back store down")

func (failingStore) Get(string) (int, bool, error) { return 0, false, errBack }
func (failingStore) Put(string, int) error         { return errBack }

func TestBackErrorsPropagate(t *testing.T) {
	c := New[string, int](failingStore{}, func(string) bool { return true })
	if _, _, err := c.Get("x"); !errors.Is(err, errBack) {
		t.Fatalf("Get error = %v, want errBack", err)
	}
	if err := c.Put("x", 1); !errors.Is(err, errBack) {
		t.Fatalf("Put error = %v, want errBack", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](NewMap[string, int](), func(string) bool { return true })
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				k := fmt.Sprintf("k%d", i)
				if err := c.Put(k, i); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := c.Get(k); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if c.Len() != 100 {
		t.Fatalf("Len = %d, want 100", c.Len())
	}
	seen := 0
	c.Range(func(string, int) bool { seen++; return true })
	if seen != 100 {
		t.Fatalf("Range visited %d, want 100", seen)
	}
}
