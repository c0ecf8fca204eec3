// Package filter provides ready-made rewrite plugins: path filters, renames,
// message and identity edits, external converters, declaration splitting and
// commit re-signing.
package filter

import (
	"context"

	"github.com/odvcencio/reforge/pkg/rewrite"
)

// blobPath returns the slash-separated path of b within the commit tree.
func blobPath(ctx context.Context, name string) string {
	if dir := rewrite.PathFrom(ctx); dir != "" {
		return dir + "/" + name
	}
	return name
}

func keep(b *rewrite.Blob) []*rewrite.Blob { return []*rewrite.Blob{b} }
