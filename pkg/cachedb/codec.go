package cachedb

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/odvcencio/reforge/pkg/object"
)

// Hashes are stored as raw digest bytes; the empty value is the zero id.

func encodeHash(h object.Hash) ([]byte, error) {
	if h == object.ZeroHash {
		return []byte{}, nil
	}
	b, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("encode hash %q: %w", h, err)
	}
	return b, nil
}

func decodeHash(b []byte) object.Hash {
	if len(b) == 0 {
		return object.ZeroHash
	}
	return object.Hash(hex.EncodeToString(b))
}

// Refs are stored as "<name>\x00h<digest>" for direct refs and
// "<name>\x00s<target>" for symbolic ones. The empty value is the deletion
// marker.

const (
	refDirect   = 'h'
	refSymbolic = 's'
)

func encodeRef(r object.Ref) ([]byte, error) {
	if r.IsEmpty() {
		return []byte{}, nil
	}
	if bytes.IndexByte([]byte(r.Name), 0) >= 0 {
		return nil, fmt.Errorf("encode ref %q: name contains NUL", r.Name)
	}
	var buf bytes.Buffer
	buf.WriteString(r.Name)
	buf.WriteByte(0)
	if r.IsSymbolic() {
		buf.WriteByte(refSymbolic)
		buf.WriteString(r.Target)
		return buf.Bytes(), nil
	}
	digest, err := encodeHash(r.Hash)
	if err != nil {
		return nil, fmt.Errorf("encode ref %q: %w", r.Name, err)
	}
	buf.WriteByte(refDirect)
	buf.Write(digest)
	return buf.Bytes(), nil
}

func decodeRef(b []byte) (object.Ref, error) {
	if len(b) == 0 {
		return object.Ref{}, nil
	}
	nul := bytes.IndexByte(b, 0)
	if nul < 0 || nul+1 >= len(b) {
		return object.Ref{}, fmt.Errorf("decode ref: malformed record")
	}
	name := string(b[:nul])
	rest := b[nul+2:]
	switch b[nul+1] {
	case refDirect:
		return object.Ref{Name: name, Hash: decodeHash(rest)}, nil
	case refSymbolic:
		return object.Ref{Name: name, Target: string(rest)}, nil
	default:
		return object.Ref{}, fmt.Errorf("decode ref %q: unknown kind %q", name, b[nul+1])
	}
}
