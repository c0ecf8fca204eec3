package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// EntrySortKey returns the canonical ordering key of a tree entry: subtrees
// sort as if their name carried a trailing slash, as in Git.
func EntrySortKey(name string, mode Mode) string {
	if mode.IsTree() {
		return name + "/"
	}
	return name
}

// SortEntries sorts entries in canonical tree order.
func SortEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return EntrySortKey(entries[i].Name, entries[i].Mode) < EntrySortKey(entries[j].Name, entries[j].Mode)
	})
}

// MarshalTree serializes a TreeObj. Entries are sorted canonically for
// deterministic output. Each entry is one line:
//
//	<mode> <type> <hash>\t<name>
func MarshalTree(tr *TreeObj) []byte {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	SortEntries(sorted)

	var buf bytes.Buffer
	for _, e := range sorted {
		mode := e.Mode
		if mode == "" {
			mode = ModeFile
		}
		fmt.Fprintf(&buf, "%s %s %s\t%s\n", mode, mode.ObjectType(), e.Hash, e.Name)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		meta, name, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		parts := strings.Split(meta, " ")
		if len(parts) != 3 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		mode, err := parseMode(parts[0])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		if ObjectType(parts[1]) != mode.ObjectType() {
			return nil, fmt.Errorf("unmarshal tree: entry %q: type %q does not match mode %s", name, parts[1], mode)
		}
		tr.Entries = append(tr.Entries, TreeEntry{Name: name, Mode: mode, Hash: Hash(parts[2])})
	}
	return tr, nil
}

func parseMode(mode string) (Mode, error) {
	switch Mode(mode) {
	case ModeTree, ModeFile, ModeExecutable, ModeSymlink, ModeLink:
		return Mode(mode), nil
	case "040000":
		return ModeTree, nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// Ident
// ---------------------------------------------------------------------------

// FormatIdent renders an ident as "Name <email> unix tz".
func FormatIdent(id Ident) string {
	tz := id.Timezone
	if tz == "" {
		tz = "+0000"
	}
	return fmt.Sprintf("%s <%s> %d %s", id.Name, id.Email, id.When, tz)
}

// ParseIdent parses the "Name <email> unix tz" form.
func ParseIdent(s string) (Ident, error) {
	lt := strings.LastIndexByte(s, '<')
	gt := strings.LastIndexByte(s, '>')
	if lt < 0 || gt < lt {
		return Ident{}, fmt.Errorf("parse ident %q: missing <email>", s)
	}
	id := Ident{
		Name:  strings.TrimSpace(s[:lt]),
		Email: s[lt+1 : gt],
	}
	rest := strings.Fields(s[gt+1:])
	if len(rest) >= 1 {
		when, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return Ident{}, fmt.Errorf("parse ident %q: bad timestamp: %w", s, err)
		}
		id.When = when
	}
	if len(rest) >= 2 {
		id.Timezone = rest[1]
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H       (zero or more)
//	author A
//	committer C
//	encoding E     (optional)
//	gpgsig S       (optional, continuation lines prefixed by one space)
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", FormatIdent(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", FormatIdent(c.Committer))
	if c.Encoding != "" {
		fmt.Fprintf(&buf, "encoding %s\n", c.Encoding)
	}
	if strings.TrimSpace(c.Signature) != "" {
		sig := strings.TrimRight(c.Signature, "\n")
		fmt.Fprintf(&buf, "gpgsig %s\n", strings.ReplaceAll(sig, "\n", "\n "))
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	header, message, err := splitHeader(data, "commit")
	if err != nil {
		return nil, err
	}

	c := &CommitObj{Message: message}
	var sig []string
	inSig := false
	for _, line := range strings.Split(header, "\n") {
		if strings.HasPrefix(line, " ") {
			if !inSig {
				return nil, fmt.Errorf("unmarshal commit: unexpected continuation line %q", line)
			}
			sig = append(sig, line[1:])
			continue
		}
		inSig = false

		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			if c.Author, err = ParseIdent(val); err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
		case "committer":
			if c.Committer, err = ParseIdent(val); err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
		case "encoding":
			c.Encoding = val
		case "gpgsig":
			sig = append(sig, val)
			inSig = true
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	if len(sig) > 0 {
		c.Signature = strings.Join(sig, "\n") + "\n"
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes an annotated tag:
//
//	object H
//	type T
//	tag N
//	tagger I
//
//	message
func MarshalTag(t *TagObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.TargetHash)
	fmt.Fprintf(&buf, "type %s\n", t.TargetType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s\n", FormatIdent(t.Tagger))
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses a TagObj from its serialized form.
func UnmarshalTag(data []byte) (*TagObj, error) {
	header, message, err := splitHeader(data, "tag")
	if err != nil {
		return nil, err
	}

	t := &TagObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal tag: malformed header line %q", line)
		}
		switch key {
		case "object":
			t.TargetHash = Hash(val)
		case "type":
			t.TargetType = ObjectType(val)
		case "tag":
			t.Name = val
		case "tagger":
			if t.Tagger, err = ParseIdent(val); err != nil {
				return nil, fmt.Errorf("unmarshal tag: %w", err)
			}
		default:
			return nil, fmt.Errorf("unmarshal tag: unknown header key %q", key)
		}
	}
	return t, nil
}

func splitHeader(data []byte, kind string) (string, string, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return "", "", fmt.Errorf("unmarshal %s: missing header/message separator", kind)
	}
	return string(data[:idx]), string(data[idx+2:]), nil
}

// SigningPayload returns the bytes a commit signature covers: the commit
// serialized without its gpgsig header.
func SigningPayload(c *CommitObj) []byte {
	if c == nil {
		return nil
	}
	unsigned := *c
	unsigned.Signature = ""
	return MarshalCommit(&unsigned)
}
