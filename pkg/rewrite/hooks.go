package rewrite

import (
	"context"
	"fmt"
	"sync"

	"github.com/odvcencio/reforge/pkg/object"
)

// Plugin is a transformation policy. A plugin takes part in a rewrite by
// implementing any of the hook interfaces below; the engine discovers them
// by type assertion.
type Plugin interface {
	Name() string
}

// BlobRewriter rewrites file content. Returning no blobs deletes the entry;
// returning several fans it out. Blob rewriters chain: each receives every
// blob produced by the previous one.
type BlobRewriter interface {
	RewriteBlob(ctx context.Context, b *Blob) ([]*Blob, error)
}

// NameRewriter renames entries after their content has been rewritten.
// Returning "" deletes the entry.
type NameRewriter interface {
	RewriteName(ctx context.Context, e Entry) (string, error)
}

// LinkRewriter rewrites the commit id of a gitlink. Returning the zero
// hash deletes the entry.
type LinkRewriter interface {
	RewriteLink(ctx context.Context, e Entry) (object.Hash, error)
}

// PersonRewriter rewrites authors, committers and taggers.
type PersonRewriter interface {
	RewritePerson(ctx context.Context, p object.Ident) (object.Ident, error)
}

// CommitMessageRewriter rewrites commit messages.
type CommitMessageRewriter interface {
	RewriteCommitMessage(ctx context.Context, msg string) (string, error)
}

// TagMessageRewriter rewrites annotated tag messages.
type TagMessageRewriter interface {
	RewriteTagMessage(ctx context.Context, msg string) (string, error)
}

// EncodingRewriter rewrites the commit encoding header.
type EncodingRewriter interface {
	RewriteEncoding(ctx context.Context, enc string) (string, error)
}

// SignatureRewriter produces the signature of a rewritten commit. c holds
// the new commit with the carried-over signature, if any. Returning ""
// leaves the commit unsigned.
type SignatureRewriter interface {
	RewriteSignature(ctx context.Context, c *object.CommitObj) (string, error)
}

// BranchNameRewriter renames refs under refs/heads/. Names are full ref
// names; returning "" deletes the ref.
type BranchNameRewriter interface {
	RewriteBranchName(ctx context.Context, name string) (string, error)
}

// TagNameRewriter renames refs under refs/tags/. Names are full ref names;
// returning "" deletes the ref.
type TagNameRewriter interface {
	RewriteTagName(ctx context.Context, name string) (string, error)
}

// ParentsRewriter edits the rewritten parent list of a commit.
type ParentsRewriter interface {
	RewriteParents(ctx context.Context, parents []object.Hash) ([]object.Hash, error)
}

// SetUpper runs before the walk starts.
type SetUpper interface {
	SetUp(ctx context.Context, source ObjectStore) error
}

// CleanUpper runs after refs have been rewritten.
type CleanUpper interface {
	CleanUp(ctx context.Context) error
}

// PathDependent plugins look at entry paths, which forces path-sensitive
// memoization.
type PathDependent interface {
	PathDependent() bool
}

// Blob is a file handed to blob rewriters. Content is loaded lazily from
// the source store.
type Blob struct {
	Name string
	Mode object.Mode

	id    object.Hash
	src   ObjectStore
	once  sync.Once
	data  []byte
	err   error
	dirty bool
}

func sourceBlob(src ObjectStore, e Entry) *Blob {
	return &Blob{Name: e.Name, Mode: e.Mode, id: e.ID, src: src}
}

// NewBlob returns a blob with fresh content.
func NewBlob(name string, mode object.Mode, data []byte) *Blob {
	b := &Blob{Name: name, Mode: mode, data: data, dirty: true}
	b.once.Do(func() {})
	return b
}

// ID returns the source object id, or the zero hash for new content.
func (b *Blob) ID() object.Hash {
	if b.dirty {
		return object.ZeroHash
	}
	return b.id
}

// Modified reports whether the content differs from the source object.
func (b *Blob) Modified() bool { return b.dirty }

// Content returns the blob bytes. Callers must not modify them.
func (b *Blob) Content() ([]byte, error) {
	b.once.Do(func() {
		if b.src == nil {
			b.err = fmt.Errorf("blob %s: no source store", b.id.Short())
			return
		}
		b.data, b.err = b.src.ReadBlob(b.id)
	})
	return b.data, b.err
}

// SetContent replaces the blob bytes.
func (b *Blob) SetContent(data []byte) {
	b.once.Do(func() {})
	b.data = data
	b.err = nil
	b.dirty = true
}

// Derive returns a new blob with the given name and content and the same
// mode, for hooks that fan one file out into several.
func (b *Blob) Derive(name string, data []byte) *Blob {
	return NewBlob(name, b.Mode, data)
}

type hookSet struct {
	blob       []hookOf[BlobRewriter]
	name       []hookOf[NameRewriter]
	link       []hookOf[LinkRewriter]
	person     []hookOf[PersonRewriter]
	commitMsg  []hookOf[CommitMessageRewriter]
	tagMsg     []hookOf[TagMessageRewriter]
	encoding   []hookOf[EncodingRewriter]
	signature  []hookOf[SignatureRewriter]
	branchName []hookOf[BranchNameRewriter]
	tagName    []hookOf[TagNameRewriter]
	parents    []hookOf[ParentsRewriter]
	setUp      []hookOf[SetUpper]
	cleanUp    []hookOf[CleanUpper]

	pathDependent bool
}

type hookOf[T any] struct {
	plugin Plugin
	hook   T
}

func collect[T any](plugins []Plugin) []hookOf[T] {
	var out []hookOf[T]
	for _, p := range plugins {
		if h, ok := p.(T); ok {
			out = append(out, hookOf[T]{plugin: p, hook: h})
		}
	}
	return out
}

func newHookSet(plugins []Plugin) *hookSet {
	hs := &hookSet{
		blob:       collect[BlobRewriter](plugins),
		name:       collect[NameRewriter](plugins),
		link:       collect[LinkRewriter](plugins),
		person:     collect[PersonRewriter](plugins),
		commitMsg:  collect[CommitMessageRewriter](plugins),
		tagMsg:     collect[TagMessageRewriter](plugins),
		encoding:   collect[EncodingRewriter](plugins),
		signature:  collect[SignatureRewriter](plugins),
		branchName: collect[BranchNameRewriter](plugins),
		tagName:    collect[TagNameRewriter](plugins),
		parents:    collect[ParentsRewriter](plugins),
		setUp:      collect[SetUpper](plugins),
		cleanUp:    collect[CleanUpper](plugins),
	}
	for _, p := range plugins {
		if pd, ok := p.(PathDependent); ok && pd.PathDependent() {
			hs.pathDependent = true
		}
	}
	return hs
}
