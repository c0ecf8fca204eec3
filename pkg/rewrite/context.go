package rewrite

import (
	"context"

	"github.com/odvcencio/reforge/pkg/object"
)

type ctxKey int

const (
	commitKey ctxKey = iota
	entryKey
	pathKey
	refKey
	inserterKey
)

// WithCommit records the source commit being rewritten.
func WithCommit(ctx context.Context, id object.Hash) context.Context {
	return context.WithValue(ctx, commitKey, id)
}

// CommitFrom returns the source commit being rewritten, if any.
func CommitFrom(ctx context.Context) (object.Hash, bool) {
	id, ok := ctx.Value(commitKey).(object.Hash)
	return id, ok
}

// WithEntry records the source entry being rewritten.
func WithEntry(ctx context.Context, e Entry) context.Context {
	return context.WithValue(ctx, entryKey, e)
}

// EntryFrom returns the source entry being rewritten, if any.
func EntryFrom(ctx context.Context) (Entry, bool) {
	e, ok := ctx.Value(entryKey).(Entry)
	return e, ok
}

// WithPath records the directory holding the current entry ("" at the
// root).
func WithPath(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, pathKey, dir)
}

// PathFrom returns the directory of the current entry.
func PathFrom(ctx context.Context) string {
	dir, _ := ctx.Value(pathKey).(string)
	return dir
}

// WithRef records the source ref being rewritten.
func WithRef(ctx context.Context, ref object.Ref) context.Context {
	return context.WithValue(ctx, refKey, ref)
}

// RefFrom returns the source ref being rewritten, if any.
func RefFrom(ctx context.Context) (object.Ref, bool) {
	ref, ok := ctx.Value(refKey).(object.Ref)
	return ref, ok
}

// WithInserter binds the write session owned by the current goroutine.
func WithInserter(ctx context.Context, ins object.Inserter) context.Context {
	return context.WithValue(ctx, inserterKey, ins)
}

// InserterFrom returns the bound write session, or nil.
func InserterFrom(ctx context.Context) object.Inserter {
	ins, _ := ctx.Value(inserterKey).(object.Inserter)
	return ins
}
