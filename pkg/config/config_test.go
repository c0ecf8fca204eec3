package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/reforge/pkg/filter"
	"github.com/odvcencio/reforge/pkg/graph"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

const (
	idA = "1111111111111111111111111111111111111111"
	idB = "2222222222222222222222222222222222222222"
	idC = "3333333333333333333333333333333333333333"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reforge.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	mailmap := filepath.Join(t.TempDir(), "mailmap")
	if err := os.WriteFile(mailmap, []byte("Ada <ada@new.example> <ada@old.example>\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	path := writeConfig(t, `
threads = 4
cache = ["commit", "tree"]
notes = true
incremental = true
export = "map.json.zst"

[[filter]]
kind = "drop"
patterns = ["*.bin", "secrets/"]

[[filter]]
kind = "person-map"
mailmap = "`+mailmap+`"
people = { "bob@old.example" = "Bob <bob@new.example>" }

[[filter]]
kind = "command"
command = ["tr", "a-z", "A-Z"]
patterns = ["*.txt"]
timeout = "5s"

[recipe]
remove_edges = [["`+idB+`", "`+idA+`"]]

[[recipe.cluster]]
mode = "forced"
members = ["`+idA+`", "`+idC+`"]
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Threads != 4 || !f.Notes || !f.Incremental || f.Export != "map.json.zst" {
		t.Errorf("scalars = %+v", f)
	}
	levels, err := f.Levels()
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	if levels != rewrite.LevelCommit|rewrite.LevelTree {
		t.Errorf("levels = %v, want commit|tree", levels)
	}

	plugins, err := f.Plugins()
	if err != nil {
		t.Fatalf("Plugins: %v", err)
	}
	if len(plugins) != 3 {
		t.Fatalf("plugins = %d, want 3", len(plugins))
	}
	drop, ok := plugins[0].(filter.Drop)
	if !ok || !drop.Patterns.Match("secrets/key.pem") {
		t.Errorf("plugin 0 = %#v", plugins[0])
	}
	people, ok := plugins[1].(filter.PersonMap)
	if !ok || people["ada@old.example"].Email != "ada@new.example" || people["bob@old.example"].Name != "Bob" {
		t.Errorf("person map = %#v", plugins[1])
	}
	cmd, ok := plugins[2].(filter.Command)
	if !ok || cmd.Timeout.String() != "5s" || len(cmd.Argv) != 3 {
		t.Errorf("command = %#v", plugins[2])
	}

	r, err := f.BuildRecipe()
	if err != nil {
		t.Fatalf("BuildRecipe: %v", err)
	}
	if len(r.RemoveEdges) != 1 || r.RemoveEdges[0].Child != idB || r.RemoveEdges[0].Parent != idA {
		t.Errorf("remove edges = %+v", r.RemoveEdges)
	}
	if len(r.Clusters) != 1 || r.Clusters[0].Mode != graph.Forced || len(r.Clusters[0].Members) != 2 {
		t.Errorf("clusters = %+v", r.Clusters)
	}
}

func TestLoadEmptyRecipeIsNil(t *testing.T) {
	f, err := Load(writeConfig(t, "threads = 1\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r, err := f.BuildRecipe()
	if err != nil || r != nil {
		t.Errorf("BuildRecipe = %+v, %v; want nil", r, err)
	}
}

func TestLoadErrorsNameTheKey(t *testing.T) {
	tests := []struct {
		name string
		body string
		key  string
	}{
		{"unknown key", "threads = 1\nbogus = true\n", "bogus"},
		{"negative threads", "threads = -2\n", "threads"},
		{"bad cache level", `cache = ["commit", "refs"]` + "\n", "cache"},
		{"missing kind", "[[filter]]\npatterns = [\"x\"]\n", "filter[0].kind"},
		{"unknown kind", "[[filter]]\nkind = \"nope\"\n", "filter[0].kind"},
		{"drop without patterns", "[[filter]]\nkind = \"drop\"\n", "filter[0].patterns"},
		{"bad regexp", "[[filter]]\nkind = \"rename\"\nfrom = \"(\"\n", "filter[0].from"},
		{"bad timeout", "[[filter]]\nkind = \"command\"\ncommand = [\"cat\"]\ntimeout = \"soon\"\n", "filter[0].timeout"},
		{"http without url", "[[filter]]\nkind = \"http\"\n", "filter[0].url"},
		{"short edge", "[recipe]\nadd_edges = [[\"" + idA + "\"]]\n", "recipe.add_edges[0]"},
		{"bad id", "[recipe]\nremove_edges = [[\"abc\", \"" + idA + "\"]]\n", "recipe.remove_edges[0]"},
		{"bad mode", "[[recipe.cluster]]\nmode = \"eager\"\nmembers = [\"" + idA + "\", \"" + idB + "\"]\n", "recipe.cluster[0].mode"},
		{"lonely cluster", "[[recipe.cluster]]\nmembers = [\"" + idA + "\"]\n", "recipe.cluster[0].members"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if cfgErr.Key != tt.key {
				t.Errorf("key = %q, want %q (err: %v)", cfgErr.Key, tt.key, err)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("message %q does not name %q", err.Error(), tt.key)
			}
		})
	}
}

func TestLoadSyntaxError(t *testing.T) {
	_, err := Load(writeConfig(t, "threads = \n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
