package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/reforge/pkg/gitstore"
	"github.com/odvcencio/reforge/pkg/repo"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

// defaultCacheName is the cache database created in the target's control
// directory by incremental runs without an explicit --cache.
const defaultCacheName = "reforge-cache.db"

// store is an object store the command line can put into dry-run mode.
type store interface {
	rewrite.ObjectStore
	SetDryRun(bool)
	ControlDir() string
}

type storeFlags struct {
	git  bool
	bare bool
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.git, "git", false, "operate on a Git repository instead of a native one")
	cmd.Flags().BoolVar(&f.bare, "bare", false, "the repository path is a bare repository")
}

func (f *storeFlags) open(path string) (store, error) {
	if f.git {
		return gitstore.Open(path, f.bare)
	}
	r, err := repo.Open(path, f.bare)
	if err != nil {
		return nil, err
	}
	return r.Objects(), nil
}

// openOrInit opens path, creating an empty repository when nothing exists
// there yet.
func (f *storeFlags) openOrInit(path string) (store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		if f.git {
			return gitstore.Init(path, f.bare)
		}
		r, err := repo.Init(path, f.bare)
		if err != nil {
			return nil, err
		}
		return r.Objects(), nil
	}
	return f.open(path)
}
