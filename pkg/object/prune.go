package object

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PruneSummary reports the result of a Prune pass.
type PruneSummary struct {
	Kept    int
	Removed int
}

// Prune deletes every loose object that is not reachable from roots. It is
// used after a rewrite to drop the objects of the replaced history.
func (s *Store) Prune(roots []Hash) (*PruneSummary, error) {
	if s.DryRun() {
		return nil, fmt.Errorf("prune: store is in dry-run mode")
	}
	keep, err := s.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}

	summary := &PruneSummary{}
	objectsDir := filepath.Join(s.root, "objects")
	fanout, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return summary, nil
		}
		return nil, fmt.Errorf("prune: %w", err)
	}
	for _, dir := range fanout {
		if !dir.IsDir() || len(dir.Name()) != 2 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(objectsDir, dir.Name()))
		if err != nil {
			return nil, fmt.Errorf("prune: %w", err)
		}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".tmp-") {
				continue
			}
			h := Hash(dir.Name() + f.Name())
			if _, ok := keep[h]; ok {
				summary.Kept++
				continue
			}
			if err := os.Remove(s.objectPath(h)); err != nil {
				return nil, fmt.Errorf("prune %s: %w", h.Short(), err)
			}
			summary.Removed++
		}
		_ = os.Remove(filepath.Join(objectsDir, dir.Name()))
	}
	return summary, nil
}
