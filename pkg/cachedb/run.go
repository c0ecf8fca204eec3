package cachedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/reforge/pkg/object"
)

// Run is the transaction of one rewrite. Reads see the run's own writes.
// A Run is safe for concurrent use; statements are serialized.
type Run struct {
	ID string

	ctx     context.Context
	mu      sync.Mutex
	tx      *sql.Tx
	started time.Time
	done    bool

	commits atomic.Int64
	refs    atomic.Int64
}

// ErrRunClosed is returned by operations on a finished or aborted Run.
var ErrRunClosed = errors.New("cache run already closed")

// Begin opens the transaction for a rewrite. The context bounds every
// statement of the run.
func (s *Store) Begin(ctx context.Context) (*Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cache run: %w", err)
	}
	return &Run{
		ID:      uuid.NewString(),
		ctx:     ctx,
		tx:      tx,
		started: time.Now(),
	}, nil
}

// Finish records the run and commits its transaction.
func (r *Run) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return ErrRunClosed
	}
	r.done = true

	_, err := r.tx.ExecContext(r.ctx, `
		INSERT INTO runs (id, started_at, finished_at, commits, refs)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.started.Unix(), time.Now().Unix(), r.commits.Load(), r.refs.Load())
	if err != nil {
		_ = r.tx.Rollback()
		return fmt.Errorf("finish cache run: %w", err)
	}
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("finish cache run: %w", err)
	}
	return nil
}

// Abort discards every write of the run. Aborting a closed run is a no-op.
func (r *Run) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	r.done = true
	if err := r.tx.Rollback(); err != nil {
		return fmt.Errorf("abort cache run: %w", err)
	}
	return nil
}

func (r *Run) get(table string, key []byte) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil, false, ErrRunClosed
	}
	var value []byte
	err := r.tx.QueryRowContext(r.ctx, "SELECT value FROM "+table+" WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", table, err)
	}
	return value, true, nil
}

func (r *Run) put(table string, key, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return ErrRunClosed
	}
	_, err := r.tx.ExecContext(r.ctx,
		"INSERT INTO "+table+" (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	return nil
}

func (r *Run) each(table string, fn func(key, value []byte) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return ErrRunClosed
	}
	rows, err := r.tx.QueryContext(r.ctx, "SELECT key, value FROM "+table+" ORDER BY key")
	if err != nil {
		return fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	var pairs [][2][]byte
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		pairs = append(pairs, [2][]byte{k, v})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", table, err)
	}
	rows.Close()

	for _, p := range pairs {
		if err := fn(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

// Commit returns the rewritten id recorded for old.
func (r *Run) Commit(old object.Hash) (object.Hash, bool, error) {
	key, err := encodeHash(old)
	if err != nil {
		return "", false, err
	}
	v, ok, err := r.get("commits", key)
	if err != nil || !ok {
		return "", ok, err
	}
	return decodeHash(v), true, nil
}

// PutCommit records old -> rewritten.
func (r *Run) PutCommit(old, rewritten object.Hash) error {
	key, err := encodeHash(old)
	if err != nil {
		return err
	}
	value, err := encodeHash(rewritten)
	if err != nil {
		return err
	}
	if err := r.put("commits", key, value); err != nil {
		return err
	}
	r.commits.Add(1)
	return nil
}

// EachCommit calls fn for every recorded commit pair, ordered by old id.
func (r *Run) EachCommit(fn func(old, rewritten object.Hash) error) error {
	return r.each("commits", func(k, v []byte) error {
		return fn(decodeHash(k), decodeHash(v))
	})
}

// Ref returns the rewritten ref recorded for old. The returned ref may be
// the empty deletion marker.
func (r *Run) Ref(old object.Ref) (object.Ref, bool, error) {
	key, err := encodeRef(old)
	if err != nil {
		return object.Ref{}, false, err
	}
	v, ok, err := r.get("refs", key)
	if err != nil || !ok {
		return object.Ref{}, ok, err
	}
	ref, err := decodeRef(v)
	if err != nil {
		return object.Ref{}, false, err
	}
	return ref, true, nil
}

// PutRef records old -> rewritten.
func (r *Run) PutRef(old, rewritten object.Ref) error {
	key, err := encodeRef(old)
	if err != nil {
		return err
	}
	value, err := encodeRef(rewritten)
	if err != nil {
		return err
	}
	if err := r.put("refs", key, value); err != nil {
		return err
	}
	r.refs.Add(1)
	return nil
}

// SourceRefs returns every ref recorded as already rewritten by a prior
// run, ordered by encoded key.
func (r *Run) SourceRefs() ([]object.Ref, error) {
	var out []object.Ref
	err := r.each("refs", func(k, _ []byte) error {
		ref, err := decodeRef(k)
		if err != nil {
			return err
		}
		out = append(out, ref)
		return nil
	})
	return out, err
}

// Entry returns the encoded rewrite result stored under an encoded entry
// key.
func (r *Run) Entry(key []byte) ([]byte, bool, error) {
	return r.get("entries", key)
}

// PutEntry stores an encoded rewrite result.
func (r *Run) PutEntry(key, value []byte) error {
	return r.put("entries", key, value)
}

// TargetRefs returns the rewritten refs recorded by prior runs, skipping
// deletion markers.
func (r *Run) TargetRefs() ([]object.Ref, error) {
	var out []object.Ref
	err := r.each("refs", func(_, v []byte) error {
		ref, err := decodeRef(v)
		if err != nil {
			return err
		}
		if !ref.IsEmpty() {
			out = append(out, ref)
		}
		return nil
	})
	return out, err
}
