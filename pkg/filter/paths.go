package filter

import (
	"context"

	"github.com/odvcencio/reforge/pkg/object"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

// Drop deletes every file matching Patterns.
type Drop struct {
	Patterns *Matcher
}

func (Drop) Name() string { return "drop" }

func (d Drop) PathDependent() bool { return d.Patterns.PathDependent() }

func (d Drop) RewriteBlob(ctx context.Context, b *rewrite.Blob) ([]*rewrite.Blob, error) {
	if d.Patterns.Match(blobPath(ctx, b.Name)) {
		return nil, nil
	}
	return keep(b), nil
}

// RewriteLink deletes gitlinks (submodule entries) matching Patterns.
func (d Drop) RewriteLink(ctx context.Context, e rewrite.Entry) (object.Hash, error) {
	if d.Patterns.Match(blobPath(ctx, e.Name)) {
		return object.ZeroHash, nil
	}
	return e.ID, nil
}

// Keep deletes every file not matching Patterns.
type Keep struct {
	Patterns *Matcher
}

func (Keep) Name() string { return "keep" }

func (k Keep) PathDependent() bool { return k.Patterns.PathDependent() }

func (k Keep) RewriteBlob(ctx context.Context, b *rewrite.Blob) ([]*rewrite.Blob, error) {
	if !k.Patterns.Match(blobPath(ctx, b.Name)) {
		return nil, nil
	}
	return keep(b), nil
}
