package object

import "strings"

// Hash is a lowercase hex-encoded object digest. The native store uses
// 64-character SHA-256 digests; the Git adapter uses 40-character SHA-1.
type Hash string

// ZeroHash is the sentinel for a deleted or absent object.
const ZeroHash Hash = ""

// IsZero reports whether h is empty or consists only of '0' digits.
func (h Hash) IsZero() bool {
	return strings.Trim(string(h), "0") == ""
}

// Short returns the first 12 characters of h for log output.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

// Mode is a Git-compatible tree entry mode string.
type Mode string

const (
	ModeTree       Mode = "40000"
	ModeFile       Mode = "100644"
	ModeExecutable Mode = "100755"
	ModeSymlink    Mode = "120000"
	ModeLink       Mode = "160000"
)

// IsTree reports whether the mode denotes a subtree.
func (m Mode) IsTree() bool { return m == ModeTree }

// IsLink reports whether the mode denotes a gitlink (submodule commit).
func (m Mode) IsLink() bool { return m == ModeLink }

// ObjectType returns the type of object an entry with this mode refers to.
func (m Mode) ObjectType() ObjectType {
	switch m {
	case ModeTree:
		return TypeTree
	case ModeLink:
		return TypeCommit
	default:
		return TypeBlob
	}
}

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode Mode
	Hash Hash
}

// TreeObj holds a canonically sorted list of tree entries.
type TreeObj struct {
	Entries []TreeEntry
}

// Ident is a person together with the time of the action, as recorded in
// commit author/committer and tag tagger headers.
type Ident struct {
	Name     string
	Email    string
	When     int64  // unix seconds
	Timezone string // "+hhmm" / "-hhmm"
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    Ident
	Committer Ident
	Encoding  string
	Signature string
	Message   string
}

// TagObj is an annotated tag pointing at another object.
type TagObj struct {
	TargetHash Hash
	TargetType ObjectType
	Name       string
	Tagger     Ident
	Message    string
}

// Ref is a named pointer to an object: direct when Hash is set, symbolic
// when Target names another ref. The zero Ref marks a ref to be deleted.
type Ref struct {
	Name   string
	Hash   Hash
	Target string
}

// IsSymbolic reports whether r points at another ref by name.
func (r Ref) IsSymbolic() bool { return r.Target != "" }

// IsEmpty reports whether r is the deletion marker.
func (r Ref) IsEmpty() bool { return r == Ref{} }

// Inserter is a write handle for new objects. Implementations must allow
// several inserters to be used from different goroutines at once.
type Inserter interface {
	WriteBlob(data []byte) (Hash, error)
	WriteTree(tr *TreeObj) (Hash, error)
	WriteCommit(c *CommitObj) (Hash, error)
	WriteTag(t *TagObj) (Hash, error)
	Flush() error
	Close() error
}
