package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/reforge/pkg/object"
)

// ErrHook marks failures raised by a plugin hook.
var ErrHook = errors.New("rewrite hook failed")

// HookError wraps an error returned by a plugin hook.
type HookError struct {
	Hook   string
	Commit object.Hash
	Path   string
	Err    error
}

func (e *HookError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hook %s", e.Hook)
	if e.Commit != "" {
		fmt.Fprintf(&b, " (commit %s", e.Commit.Short())
		if e.Path != "" {
			fmt.Fprintf(&b, ", path %s", e.Path)
		}
		b.WriteString(")")
	} else if e.Path != "" {
		fmt.Fprintf(&b, " (path %s)", e.Path)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *HookError) Unwrap() error { return e.Err }

func (e *HookError) Is(target error) bool { return target == ErrHook }

// StoreError wraps an object-store failure with the rewrite position at
// which it happened.
type StoreError struct {
	Op     string
	Commit object.Hash
	Path   string
	Ref    string
	Err    error
}

func (e *StoreError) Error() string {
	var where []string
	if e.Commit != "" {
		where = append(where, "commit "+e.Commit.Short())
	}
	if e.Path != "" {
		where = append(where, "path "+e.Path)
	}
	if e.Ref != "" {
		where = append(where, "ref "+e.Ref)
	}
	if len(where) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, strings.Join(where, ", "), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func contextError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	var he *HookError
	if errors.As(err, &se) || errors.As(err, &he) {
		return err
	}
	out := &StoreError{Op: op, Err: err}
	out.Commit, _ = CommitFrom(ctx)
	if e, ok := EntryFrom(ctx); ok {
		out.Path = joinPath(PathFrom(ctx), e.Name)
	}
	if ref, ok := RefFrom(ctx); ok {
		out.Ref = ref.Name
	}
	return out
}

func hookError(ctx context.Context, p Plugin, method string, err error) error {
	if err == nil {
		return nil
	}
	var he *HookError
	if errors.As(err, &he) {
		return err
	}
	out := &HookError{Hook: p.Name() + "." + method, Err: err}
	out.Commit, _ = CommitFrom(ctx)
	if e, ok := EntryFrom(ctx); ok {
		out.Path = joinPath(PathFrom(ctx), e.Name)
	}
	return out
}

func joinPath(dir, name string) string {
	switch {
	case dir == "":
		return name
	case name == "":
		return dir
	default:
		return dir + "/" + name
	}
}
