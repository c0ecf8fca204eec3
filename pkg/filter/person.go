package filter

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/odvcencio/reforge/pkg/object"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

// Identity is a replacement name and email. Empty fields are left as they
// were.
type Identity struct {
	Name  string
	Email string
}

// PersonMap rewrites authors, committers and taggers by email address, in
// the manner of a Git mailmap. Keys are compared case-insensitively.
type PersonMap map[string]Identity

func (PersonMap) Name() string { return "person-map" }

func (m PersonMap) RewritePerson(_ context.Context, p object.Ident) (object.Ident, error) {
	id, ok := m[strings.ToLower(p.Email)]
	if !ok {
		return p, nil
	}
	if id.Name != "" {
		p.Name = id.Name
	}
	if id.Email != "" {
		p.Email = id.Email
	}
	return p, nil
}

var mailmapEmail = regexp.MustCompile(`<([^<>]*)>`)

// ParseMailmap reads mailmap lines of the forms
//
//	Proper Name <commit@email>
//	<proper@email> <commit@email>
//	Proper Name <proper@email> <commit@email>
//	Proper Name <proper@email> Commit Name <commit@email>
func ParseMailmap(r io.Reader) (PersonMap, error) {
	m := make(PersonMap)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		emails := mailmapEmail.FindAllStringSubmatchIndex(line, -1)
		if len(emails) == 0 || len(emails) > 2 {
			return nil, fmt.Errorf("mailmap line %d: want one or two <email> fields", lineNo)
		}
		name := strings.TrimSpace(line[:emails[0][0]])
		first := line[emails[0][2]:emails[0][3]]
		if len(emails) == 1 {
			m[strings.ToLower(first)] = Identity{Name: name}
			continue
		}
		commit := line[emails[1][2]:emails[1][3]]
		m[strings.ToLower(commit)] = Identity{Name: name, Email: first}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mailmap: %w", err)
	}
	return m, nil
}

// Anonymizer replaces names and emails with stable tokens derived from a
// keyed BLAKE3 hash. With Paths set, file and directory names are replaced
// too; file extensions are kept.
type Anonymizer struct {
	Salt  string
	Paths bool
}

func (Anonymizer) Name() string { return "anonymizer" }

func (a Anonymizer) token(kind, value string) string {
	h := blake3.NewDeriveKey("reforge anonymizer " + kind)
	_, _ = h.WriteString(a.Salt)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(value)
	return hex.EncodeToString(h.Sum(nil)[:6])
}

func (a Anonymizer) RewritePerson(_ context.Context, p object.Ident) (object.Ident, error) {
	if p.Name != "" {
		p.Name = "user-" + a.token("name", p.Name)
	}
	if p.Email != "" {
		p.Email = a.token("email", strings.ToLower(p.Email)) + "@anonymous.invalid"
	}
	return p, nil
}

func (a Anonymizer) RewriteName(_ context.Context, e rewrite.Entry) (string, error) {
	if !a.Paths {
		return e.Name, nil
	}
	if e.Kind() == rewrite.KindTree {
		return "d-" + a.token("path", e.Name), nil
	}
	ext := path.Ext(e.Name)
	return "f-" + a.token("path", strings.TrimSuffix(e.Name, ext)) + ext, nil
}
