package gitstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	gitobj "github.com/go-git/go-git/v5/plumbing/object"

	"github.com/odvcencio/reforge/pkg/object"
)

func toHash(h plumbing.Hash) object.Hash {
	if h.IsZero() {
		return object.ZeroHash
	}
	return object.Hash(h.String())
}

func fromHash(h object.Hash) plumbing.Hash {
	if h.IsZero() {
		return plumbing.ZeroHash
	}
	return plumbing.NewHash(string(h))
}

func toMode(m filemode.FileMode) object.Mode {
	return object.Mode(strconv.FormatUint(uint64(m), 8))
}

func fromMode(m object.Mode) (filemode.FileMode, error) {
	fm, err := filemode.New(string(m))
	if err != nil {
		return filemode.Empty, fmt.Errorf("mode %q: %w", m, err)
	}
	return fm, nil
}

func toIdent(s gitobj.Signature) object.Ident {
	return object.Ident{
		Name:     s.Name,
		Email:    s.Email,
		When:     s.When.Unix(),
		Timezone: s.When.Format("-0700"),
	}
}

func fromIdent(id object.Ident) gitobj.Signature {
	return gitobj.Signature{
		Name:  id.Name,
		Email: id.Email,
		When:  time.Unix(id.When, 0).In(zone(id.Timezone)),
	}
}

// zone parses a "+hhmm" offset. Malformed offsets are UTC.
func zone(tz string) *time.Location {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return time.UTC
	}
	hh, err1 := strconv.Atoi(tz[1:3])
	mm, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return time.UTC
	}
	offset := hh*3600 + mm*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone("", offset)
}

func toTree(t *gitobj.Tree) *object.TreeObj {
	out := &object.TreeObj{Entries: make([]object.TreeEntry, len(t.Entries))}
	for i, e := range t.Entries {
		out.Entries[i] = object.TreeEntry{Name: e.Name, Mode: toMode(e.Mode), Hash: toHash(e.Hash)}
	}
	return out
}

func fromTree(t *object.TreeObj) (*gitobj.Tree, error) {
	entries := make([]object.TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	object.SortEntries(entries)

	out := &gitobj.Tree{Entries: make([]gitobj.TreeEntry, len(entries))}
	for i, e := range entries {
		mode, err := fromMode(e.Mode)
		if err != nil {
			return nil, fmt.Errorf("tree entry %q: %w", e.Name, err)
		}
		out.Entries[i] = gitobj.TreeEntry{Name: e.Name, Mode: mode, Hash: fromHash(e.Hash)}
	}
	return out, nil
}

func toCommit(c *gitobj.Commit) *object.CommitObj {
	out := &object.CommitObj{
		TreeHash:  toHash(c.TreeHash),
		Author:    toIdent(c.Author),
		Committer: toIdent(c.Committer),
		Signature: c.PGPSignature,
		Message:   c.Message,
	}
	if c.Encoding != "UTF-8" {
		out.Encoding = string(c.Encoding)
	}
	for _, p := range c.ParentHashes {
		out.Parents = append(out.Parents, toHash(p))
	}
	return out
}

func fromCommit(c *object.CommitObj) *gitobj.Commit {
	out := &gitobj.Commit{
		TreeHash:     fromHash(c.TreeHash),
		Author:       fromIdent(c.Author),
		Committer:    fromIdent(c.Committer),
		PGPSignature: c.Signature,
		Message:      c.Message,
		Encoding:     gitobj.MessageEncoding(c.Encoding),
	}
	for _, p := range c.Parents {
		out.ParentHashes = append(out.ParentHashes, fromHash(p))
	}
	return out
}

func toTag(t *gitobj.Tag) *object.TagObj {
	return &object.TagObj{
		TargetHash: toHash(t.Target),
		TargetType: object.ObjectType(t.TargetType.String()),
		Name:       t.Name,
		Tagger:     toIdent(t.Tagger),
		Message:    t.Message,
	}
}

func fromTag(t *object.TagObj) (*gitobj.Tag, error) {
	typ, err := plumbing.ParseObjectType(string(t.TargetType))
	if err != nil {
		return nil, fmt.Errorf("tag %q: %w", t.Name, err)
	}
	return &gitobj.Tag{
		Name:       t.Name,
		Tagger:     fromIdent(t.Tagger),
		Message:    t.Message,
		TargetType: typ,
		Target:     fromHash(t.TargetHash),
	}, nil
}
