package rewrite

import (
	"encoding/binary"
	"fmt"

	"github.com/odvcencio/reforge/pkg/object"
)

// Kind classifies a tree entry.
type Kind uint8

const (
	KindBlob Kind = iota
	KindTree
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindLink:
		return "link"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entry is one member of a tree. It is comparable and used directly as the
// memoization key: Dir is only set in path-sensitive mode, so the same
// content at two paths shares one key otherwise.
type Entry struct {
	Mode object.Mode
	Name string
	ID   object.Hash
	Dir  string
}

// Kind returns the entry's kind derived from its mode.
func (e Entry) Kind() Kind {
	switch {
	case e.Mode.IsTree():
		return KindTree
	case e.Mode.IsLink():
		return KindLink
	default:
		return KindBlob
	}
}

// Path returns the slash-separated path of the entry when Dir is known.
func (e Entry) Path() string {
	if e.Dir == "" {
		return e.Name
	}
	return e.Dir + "/" + e.Name
}

func (e Entry) treeEntry() object.TreeEntry {
	return object.TreeEntry{Name: e.Name, Mode: e.Mode, Hash: e.ID}
}

// Result is the outcome of rewriting one Entry: Single, Many or Empty.
type Result interface {
	isResult()
}

// Single is a result of exactly one entry.
type Single struct{ Entry Entry }

// Many is a result of zero or more entries, produced by fan-out or fan-in.
type Many []Entry

// Empty means the entry was deleted.
type Empty struct{}

func (Single) isResult() {}
func (Many) isResult()   {}
func (Empty) isResult()  {}

// Entries flattens r into a list.
func Entries(r Result) []Entry {
	switch v := r.(type) {
	case Single:
		return []Entry{v.Entry}
	case Many:
		return v
	default:
		return nil
	}
}

// resultOf picks the narrowest Result for entries.
func resultOf(entries []Entry) Result {
	switch len(entries) {
	case 0:
		return Empty{}
	case 1:
		return Single{Entry: entries[0]}
	default:
		return Many(entries)
	}
}

// Entry keys and results are persisted with a length-prefixed layout:
// key    = field(mode) field(name) field(id) field(dir)
// result = tag byte ('0' empty, '1' single, 'n' many) then, per entry,
//          field(mode) field(name) field(id) field(dir)

func appendField(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func readField(buf []byte) (string, []byte, error) {
	n, size := binary.Uvarint(buf)
	if size <= 0 || uint64(len(buf)-size) < n {
		return "", nil, fmt.Errorf("decode entry: truncated field")
	}
	end := size + int(n)
	return string(buf[size:end]), buf[end:], nil
}

func appendEntry(buf []byte, e Entry) []byte {
	buf = appendField(buf, string(e.Mode))
	buf = appendField(buf, e.Name)
	buf = appendField(buf, string(e.ID))
	return appendField(buf, e.Dir)
}

func readEntry(buf []byte) (Entry, []byte, error) {
	var fields [4]string
	var err error
	for i := range fields {
		fields[i], buf, err = readField(buf)
		if err != nil {
			return Entry{}, nil, err
		}
	}
	return Entry{Mode: object.Mode(fields[0]), Name: fields[1], ID: object.Hash(fields[2]), Dir: fields[3]}, buf, nil
}

func encodeEntry(e Entry) []byte {
	return appendEntry(nil, e)
}

func decodeEntry(buf []byte) (Entry, error) {
	e, rest, err := readEntry(buf)
	if err != nil {
		return Entry{}, err
	}
	if len(rest) != 0 {
		return Entry{}, fmt.Errorf("decode entry: %d trailing bytes", len(rest))
	}
	return e, nil
}

func encodeResult(r Result) []byte {
	switch v := r.(type) {
	case Single:
		return appendEntry([]byte{'1'}, v.Entry)
	case Many:
		buf := []byte{'n'}
		for _, e := range v {
			buf = appendEntry(buf, e)
		}
		return buf
	default:
		return []byte{'0'}
	}
}

func decodeResult(buf []byte) (Result, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("decode result: empty record")
	}
	tag, rest := buf[0], buf[1:]
	switch tag {
	case '0':
		return Empty{}, nil
	case '1':
		e, err := decodeEntry(rest)
		if err != nil {
			return nil, err
		}
		return Single{Entry: e}, nil
	case 'n':
		var out Many
		for len(rest) > 0 {
			var e Entry
			var err error
			e, rest, err = readEntry(rest)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode result: unknown tag %q", tag)
	}
}
