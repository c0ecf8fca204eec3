package rewrite

import (
	"fmt"
	"strings"

	"github.com/odvcencio/reforge/pkg/cachedb"
	"github.com/odvcencio/reforge/pkg/object"
)

// Level selects which rewrite mappings are persisted between runs.
type Level uint8

const (
	LevelCommit Level = 1 << iota
	LevelTree
	LevelBlob
)

var levelNames = []struct {
	level Level
	name  string
}{
	{LevelCommit, "commit"},
	{LevelTree, "tree"},
	{LevelBlob, "blob"},
}

// ParseLevels parses level names such as "commit" and "tree".
func ParseLevels(names []string) (Level, error) {
	var out Level
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		found := false
		for _, ln := range levelNames {
			if ln.name == name {
				out |= ln.level
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown cache level %q (want commit, tree or blob)", raw)
		}
	}
	return out, nil
}

func (l Level) String() string {
	var parts []string
	for _, ln := range levelNames {
		if l&ln.level != 0 {
			parts = append(parts, ln.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// admitsEntry reports whether results for e are persisted at level l.
// Gitlinks are never persisted.
func (l Level) admitsEntry(e Entry) bool {
	switch e.Kind() {
	case KindTree:
		return l&LevelTree != 0
	case KindBlob:
		return l&LevelBlob != 0
	default:
		return false
	}
}

type commitBack struct{ run *cachedb.Run }

func (b commitBack) Get(old object.Hash) (object.Hash, bool, error) { return b.run.Commit(old) }
func (b commitBack) Put(old, rewritten object.Hash) error           { return b.run.PutCommit(old, rewritten) }

type refBack struct{ run *cachedb.Run }

func (b refBack) Get(old object.Ref) (object.Ref, bool, error) { return b.run.Ref(old) }
func (b refBack) Put(old, rewritten object.Ref) error          { return b.run.PutRef(old, rewritten) }

type entryBack struct{ run *cachedb.Run }

func (b entryBack) Get(e Entry) (Result, bool, error) {
	v, ok, err := b.run.Entry(encodeEntry(e))
	if err != nil || !ok {
		return nil, false, err
	}
	res, err := decodeResult(v)
	if err != nil {
		return nil, false, fmt.Errorf("cached entry %s: %w", e.Path(), err)
	}
	return res, true, nil
}

func (b entryBack) Put(e Entry, r Result) error {
	return b.run.PutEntry(encodeEntry(e), encodeResult(r))
}
