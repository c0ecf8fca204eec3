package rewrite

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/reforge/pkg/object"
)

// CommitPair maps a source commit to its rewritten id.
type CommitPair struct {
	Old object.Hash `json:"old"`
	New object.Hash `json:"new"`
}

// CommitMapExport is the commit map of a rewrite: the commits rewritten
// by this run in rewrite order, followed by those carried over from prior
// runs.
type CommitMapExport struct {
	Run     string       `json:"run,omitempty"`
	Commits []CommitPair `json:"commits"`

	index map[object.Hash]int
}

// export assembles the commit map of the finished run.
func (e *Engine) export() (*CommitMapExport, error) {
	out := &CommitMapExport{}
	seen := make(map[object.Hash]bool, len(e.rewritten))
	for _, old := range e.rewritten {
		if seen[old] {
			continue
		}
		mapped, ok, err := e.commitMap.Get(old)
		if err != nil {
			return nil, fmt.Errorf("export commit map: %w", err)
		}
		if !ok {
			continue
		}
		seen[old] = true
		out.Commits = append(out.Commits, CommitPair{Old: old, New: mapped})
	}

	if e.run != nil && e.opts.CacheLevels&LevelCommit != 0 {
		var prior []CommitPair
		err := e.run.EachCommit(func(old, rewritten object.Hash) error {
			if !seen[old] {
				prior = append(prior, CommitPair{Old: old, New: rewritten})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("export commit map: %w", err)
		}
		out.Commits = append(out.Commits, prior...)
	}
	return out, nil
}

// Len returns the number of pairs.
func (m *CommitMapExport) Len() int { return len(m.Commits) }

// Lookup returns the rewritten id of old.
func (m *CommitMapExport) Lookup(old object.Hash) (object.Hash, bool) {
	if m.index == nil {
		m.index = make(map[object.Hash]int, len(m.Commits))
		for i, p := range m.Commits {
			m.index[p.Old] = i
		}
	}
	i, ok := m.index[old]
	if !ok {
		return object.ZeroHash, false
	}
	return m.Commits[i].New, true
}

// WriteTo writes m as indented JSON.
func (m *CommitMapExport) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode commit map: %w", err)
	}
	data = append(data, '\n')
	n, err := w.Write(data)
	return int64(n), err
}

// Save writes m to path, zstd-compressed when path ends in ".zst".
func (m *CommitMapExport) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save commit map: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save commit map: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		if enc, err = zstd.NewWriter(f); err != nil {
			return fmt.Errorf("save commit map: %w", err)
		}
		w = enc
	}
	if _, err := m.WriteTo(w); err != nil {
		return fmt.Errorf("save commit map: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("save commit map: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save commit map: %w", err)
	}
	return nil
}

// LoadCommitMap reads a map written by Save.
func LoadCommitMap(path string) (*CommitMapExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load commit map: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("load commit map: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	var m CommitMapExport
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("load commit map: %w", err)
	}
	return &m, nil
}
