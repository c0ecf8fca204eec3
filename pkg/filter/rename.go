package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/odvcencio/reforge/pkg/rewrite"
)

// Rename rewrites entry names matching From. To may reference capture
// groups as in regexp.Regexp.ReplaceAllString.
type Rename struct {
	From *regexp.Regexp
	To   string
}

func (Rename) Name() string { return "rename" }

func (r Rename) RewriteName(_ context.Context, e rewrite.Entry) (string, error) {
	if !r.From.MatchString(e.Name) {
		return e.Name, nil
	}
	name := r.From.ReplaceAllString(e.Name, r.To)
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("rename %q: result %q contains a slash", e.Name, name)
	}
	return name, nil
}
