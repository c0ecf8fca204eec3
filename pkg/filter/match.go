package filter

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Matcher selects paths with gitignore-style patterns. The last matching
// pattern wins, so a later "!pattern" re-includes a path.
type Matcher struct {
	patterns []pattern

	exactBase map[string][]int
	exactPath map[string][]int
	dirPrefix map[string][]int
	wildcard  []int
}

type pattern struct {
	text     string
	negated  bool
	dirOnly  bool
	hasSlash bool // match against the full path rather than the base name
	regex    *regexp.Regexp
}

// Compile parses patterns. Blank lines and lines starting with # are
// skipped.
func Compile(patterns []string) (*Matcher, error) {
	m := &Matcher{
		exactBase: make(map[string][]int),
		exactPath: make(map[string][]int),
		dirPrefix: make(map[string][]int),
	}
	for _, line := range patterns {
		p, err := parsePattern(line)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		idx := len(m.patterns)
		m.patterns = append(m.patterns, *p)
		switch {
		case p.dirOnly:
			m.dirPrefix[p.text] = append(m.dirPrefix[p.text], idx)
		case p.regex != nil || !isLiteral(p.text):
			m.wildcard = append(m.wildcard, idx)
		case p.hasSlash:
			m.exactPath[p.text] = append(m.exactPath[p.text], idx)
		default:
			m.exactBase[p.text] = append(m.exactBase[p.text], idx)
		}
	}
	return m, nil
}

// MustCompile is Compile for patterns known to be valid.
func MustCompile(patterns ...string) *Matcher {
	m, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

func parsePattern(line string) (*pattern, error) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	p := &pattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return nil, fmt.Errorf("pattern %q: empty", line)
	}
	p.hasSlash = strings.Contains(line, "/")
	p.text = line
	if strings.Contains(line, "**") {
		re, err := regexp.Compile(globToRegex(line))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", line, err)
		}
		p.regex = re
	} else if _, err := path.Match(line, ""); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", line, err)
	}
	return p, nil
}

// Empty reports whether m has no patterns.
func (m *Matcher) Empty() bool { return m == nil || len(m.patterns) == 0 }

// PathDependent reports whether any pattern looks past the base name.
func (m *Matcher) PathDependent() bool {
	if m == nil {
		return false
	}
	for _, p := range m.patterns {
		if p.hasSlash || p.dirOnly {
			return true
		}
	}
	return false
}

// Match reports whether the slash-separated path p is selected.
func (m *Matcher) Match(p string) bool {
	if m.Empty() {
		return false
	}
	base := path.Base(p)

	last := -1
	matched := false
	apply := func(idxs ...int) {
		for _, idx := range idxs {
			if idx > last {
				last = idx
				matched = !m.patterns[idx].negated
			}
		}
	}

	apply(m.dirPrefix[p]...)
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			apply(m.dirPrefix[p[:i]]...)
			apply(m.dirPrefix[path.Base(p[:i])]...)
		}
	}
	apply(m.exactPath[p]...)
	apply(m.exactBase[base]...)
	for _, idx := range m.wildcard {
		pat := m.patterns[idx]
		target := base
		if pat.hasSlash {
			target = p
		}
		if pat.match(target) {
			apply(idx)
		}
	}
	return matched
}

func (p *pattern) match(target string) bool {
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	ok, _ := path.Match(p.text, target)
	return ok
}

func isLiteral(s string) bool {
	return !strings.ContainsAny(s, "*?[")
}

func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			if i+2 < len(pattern) && pattern[i+2] == '/' {
				// zero or more directories
				b.WriteString("(?:.*/)?")
				i += 2
			} else {
				b.WriteString(".*")
				i++
			}
		case ch == '*':
			b.WriteString("[^/]*")
		case ch == '?':
			b.WriteString("[^/]")
		default:
			if strings.ContainsRune(`.+()|[]{}^$\`, rune(ch)) {
				b.WriteByte('\\')
			}
			b.WriteByte(ch)
		}
	}
	b.WriteString("$")
	return b.String()
}
