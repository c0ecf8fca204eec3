package rewrite

import (
	"context"
	"strings"
	"sync"

	"github.com/odvcencio/reforge/pkg/object"
)

// countingBlobs counts RewriteBlob calls per source blob id and passes
// blobs through unchanged.
type countingBlobs struct {
	mu    sync.Mutex
	calls map[object.Hash]int
	paths []string
	dep   bool
}

func newCountingBlobs() *countingBlobs {
	return &countingBlobs{calls: make(map[object.Hash]int)}
}

func (c *countingBlobs) Name() string        { return "count" }
func (c *countingBlobs) PathDependent() bool { return c.dep }

func (c *countingBlobs) RewriteBlob(ctx context.Context, b *Blob) ([]*Blob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[b.ID()]++
	c.paths = append(c.paths, joinPath(PathFrom(ctx), b.Name))
	return []*Blob{b}, nil
}

func (c *countingBlobs) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// blobFunc adapts a function to BlobRewriter.
type blobFunc func(ctx context.Context, b *Blob) ([]*Blob, error)

func (blobFunc) Name() string { return "blobfunc" }

func (f blobFunc) RewriteBlob(ctx context.Context, b *Blob) ([]*Blob, error) { return f(ctx, b) }

// upper upper-cases text content.
func upper() blobFunc {
	return func(_ context.Context, b *Blob) ([]*Blob, error) {
		data, err := b.Content()
		if err != nil {
			return nil, err
		}
		b.SetContent([]byte(strings.ToUpper(string(data))))
		return []*Blob{b}, nil
	}
}

// dropAll deletes every file.
func dropAll() blobFunc {
	return func(context.Context, *Blob) ([]*Blob, error) { return nil, nil }
}

// messages records the commits it sees in order and rewrites messages
// with a suffix.
type messages struct {
	mu     sync.Mutex
	suffix string
	seen   []object.Hash
}

func (m *messages) Name() string { return "messages" }

func (m *messages) RewriteCommitMessage(ctx context.Context, msg string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := CommitFrom(ctx)
	m.seen = append(m.seen, id)
	return msg + m.suffix, nil
}

type branchRename struct{ from, to string }

func (b branchRename) Name() string { return "branch-rename" }

func (b branchRename) RewriteBranchName(_ context.Context, name string) (string, error) {
	if name == b.from {
		return b.to, nil
	}
	return name, nil
}

type tagEdits struct{}

func (tagEdits) Name() string { return "tag-edits" }

func (tagEdits) RewriteTagMessage(_ context.Context, msg string) (string, error) {
	return "rewritten: " + msg, nil
}

func (tagEdits) RewritePerson(_ context.Context, p object.Ident) (object.Ident, error) {
	p.Email = strings.ToUpper(p.Email)
	return p, nil
}

// dropLinks deletes every gitlink.
type dropLinks struct{}

func (dropLinks) Name() string { return "drop-links" }

func (dropLinks) RewriteLink(context.Context, Entry) (object.Hash, error) {
	return object.ZeroHash, nil
}

type lifecycle struct {
	setUp, cleanUp int
	source         ObjectStore
}

func (l *lifecycle) Name() string { return "lifecycle" }

func (l *lifecycle) SetUp(_ context.Context, src ObjectStore) error {
	l.setUp++
	l.source = src
	return nil
}

func (l *lifecycle) CleanUp(context.Context) error {
	l.cleanUp++
	return nil
}
