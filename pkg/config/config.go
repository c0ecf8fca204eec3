// Package config loads rewrite settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/reforge/pkg/filter"
	"github.com/odvcencio/reforge/pkg/graph"
	"github.com/odvcencio/reforge/pkg/object"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

// File is the decoded configuration file. Zero values mean "not set"; the
// command line fills them from flags.
type File struct {
	Threads       int      `toml:"threads"`
	PathSensitive bool     `toml:"path_sensitive"`
	Cache         []string `toml:"cache"`
	CachePath     string   `toml:"cache_path"`
	Incremental   bool     `toml:"incremental"`
	Notes         bool     `toml:"notes"`
	Annotate      bool     `toml:"annotate"`
	DryRun        bool     `toml:"dry_run"`
	Export        string   `toml:"export"`
	SignKey       string   `toml:"sign_key"`
	Filters       []Filter `toml:"filter"`
	Recipe        Recipe   `toml:"recipe"`
}

// Filter configures one plugin from package filter. Kind selects the
// plugin; the other fields apply to the kinds noted.
type Filter struct {
	Kind string `toml:"kind"`

	Patterns []string `toml:"patterns"` // drop, keep, command, http, declarations
	From     string   `toml:"from"`     // rename, message-replace
	To       string   `toml:"to"`       // rename, message-replace
	Text     string   `toml:"text"`     // message-footer

	Mailmap string            `toml:"mailmap"` // person-map
	People  map[string]string `toml:"people"`  // person-map, email -> "Name <email>"

	Salt  string `toml:"salt"`  // anonymize
	Paths bool   `toml:"paths"` // anonymize

	Command []string `toml:"command"` // command
	Timeout string   `toml:"timeout"` // command, http

	URL      string `toml:"url"`      // http
	Attempts int    `toml:"attempts"` // http

	KeepOriginal bool `toml:"keep_original"` // declarations
}

// Recipe is the graph edit list. Edges are [child, parent] pairs.
type Recipe struct {
	RemoveEdges [][]string `toml:"remove_edges"`
	AddEdges    [][]string `toml:"add_edges"`
	Clusters    []Cluster  `toml:"cluster"`
}

type Cluster struct {
	Mode    string   `toml:"mode"`
	Members []string `toml:"members"`
}

// Error reports an invalid value. Key is the dotted path of the offending
// setting.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("config %s: %v", e.Key, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func keyErr(key string, format string, args ...any) error {
	return &Error{Key: key, Err: fmt.Errorf(format, args...)}
}

// Load decodes and validates the file at path. Unknown keys are rejected.
func Load(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, keyErr(undecoded[0].String(), "unknown key")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every setting without building anything.
func (f *File) Validate() error {
	if f.Threads < 0 {
		return keyErr("threads", "must not be negative, got %d", f.Threads)
	}
	if _, err := f.Levels(); err != nil {
		return err
	}
	if _, err := f.BuildRecipe(); err != nil {
		return err
	}
	for i := range f.Filters {
		if _, err := f.Filters[i].plugin(fmt.Sprintf("filter[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// Levels returns the persisted cache levels.
func (f *File) Levels() (rewrite.Level, error) {
	l, err := rewrite.ParseLevels(f.Cache)
	if err != nil {
		return 0, &Error{Key: "cache", Err: err}
	}
	return l, nil
}

// Plugins builds the configured filters in file order.
func (f *File) Plugins() ([]rewrite.Plugin, error) {
	out := make([]rewrite.Plugin, 0, len(f.Filters))
	for i := range f.Filters {
		p, err := f.Filters[i].plugin(fmt.Sprintf("filter[%d]", i))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (flt *Filter) plugin(key string) (rewrite.Plugin, error) {
	patterns, err := filter.Compile(flt.Patterns)
	if err != nil {
		return nil, &Error{Key: key + ".patterns", Err: err}
	}
	timeout, err := flt.timeout(key)
	if err != nil {
		return nil, err
	}

	switch flt.Kind {
	case "drop", "keep":
		if patterns.Empty() {
			return nil, keyErr(key+".patterns", "%s filter needs at least one pattern", flt.Kind)
		}
		if flt.Kind == "drop" {
			return filter.Drop{Patterns: patterns}, nil
		}
		return filter.Keep{Patterns: patterns}, nil
	case "rename":
		from, err := flt.regexp(key)
		if err != nil {
			return nil, err
		}
		return filter.Rename{From: from, To: flt.To}, nil
	case "message-footer":
		if strings.TrimSpace(flt.Text) == "" {
			return nil, keyErr(key+".text", "is required")
		}
		return filter.MessageFooter{Text: flt.Text}, nil
	case "message-replace":
		from, err := flt.regexp(key)
		if err != nil {
			return nil, err
		}
		return filter.MessageReplace{From: from, To: flt.To}, nil
	case "person-map":
		return flt.personMap(key)
	case "anonymize":
		return filter.Anonymizer{Salt: flt.Salt, Paths: flt.Paths}, nil
	case "command":
		if len(flt.Command) == 0 {
			return nil, keyErr(key+".command", "is required")
		}
		return filter.Command{Argv: flt.Command, Patterns: patterns, Timeout: timeout}, nil
	case "http":
		if flt.URL == "" {
			return nil, keyErr(key+".url", "is required")
		}
		if flt.Attempts < 0 {
			return nil, keyErr(key+".attempts", "must not be negative, got %d", flt.Attempts)
		}
		return filter.HTTPConvert{URL: flt.URL, Patterns: patterns, Attempts: flt.Attempts, Client: httpClient(timeout)}, nil
	case "declarations":
		return filter.Declarations{Patterns: patterns, KeepOriginal: flt.KeepOriginal}, nil
	case "":
		return nil, keyErr(key+".kind", "is required")
	default:
		return nil, keyErr(key+".kind", "unknown filter %q", flt.Kind)
	}
}

func (flt *Filter) timeout(key string) (time.Duration, error) {
	if flt.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(flt.Timeout)
	if err != nil || d < 0 {
		return 0, keyErr(key+".timeout", "invalid duration %q", flt.Timeout)
	}
	return d, nil
}

func (flt *Filter) regexp(key string) (*regexp.Regexp, error) {
	if flt.From == "" {
		return nil, keyErr(key+".from", "is required")
	}
	re, err := regexp.Compile(flt.From)
	if err != nil {
		return nil, &Error{Key: key + ".from", Err: err}
	}
	return re, nil
}

func (flt *Filter) personMap(key string) (filter.PersonMap, error) {
	m := make(filter.PersonMap)
	if flt.Mailmap != "" {
		fh, err := os.Open(flt.Mailmap)
		if err != nil {
			return nil, &Error{Key: key + ".mailmap", Err: err}
		}
		defer fh.Close()
		parsed, err := filter.ParseMailmap(fh)
		if err != nil {
			return nil, &Error{Key: key + ".mailmap", Err: err}
		}
		for k, v := range parsed {
			m[k] = v
		}
	}
	for email, ident := range flt.People {
		parsed, err := filter.ParseMailmap(strings.NewReader(ident + " <" + email + ">"))
		if err != nil {
			return nil, keyErr(key+".people."+email, "want \"Name <email>\", got %q", ident)
		}
		for k, v := range parsed {
			m[k] = v
		}
	}
	if len(m) == 0 {
		return nil, keyErr(key, "person-map needs mailmap or people")
	}
	return m, nil
}

// BuildRecipe converts the [recipe] table. A missing table yields nil.
func (f *File) BuildRecipe() (*graph.Recipe, error) {
	r := &graph.Recipe{}
	var err error
	if r.RemoveEdges, err = edges("recipe.remove_edges", f.Recipe.RemoveEdges); err != nil {
		return nil, err
	}
	if r.AddEdges, err = edges("recipe.add_edges", f.Recipe.AddEdges); err != nil {
		return nil, err
	}
	for i, c := range f.Recipe.Clusters {
		key := fmt.Sprintf("recipe.cluster[%d]", i)
		mode := graph.MergeMode(c.Mode)
		switch mode {
		case "":
			mode = graph.Safe
		case graph.Safe, graph.Forced:
		default:
			return nil, keyErr(key+".mode", "want safe or forced, got %q", c.Mode)
		}
		if len(c.Members) < 2 {
			return nil, keyErr(key+".members", "a cluster needs at least two commits")
		}
		members := make([]object.Hash, len(c.Members))
		for j, m := range c.Members {
			h, err := commitID(fmt.Sprintf("%s.members[%d]", key, j), m)
			if err != nil {
				return nil, err
			}
			members[j] = h
		}
		r.Clusters = append(r.Clusters, graph.Cluster{Mode: mode, Members: members})
	}
	if r.Empty() {
		return nil, nil
	}
	return r, nil
}

func edges(key string, pairs [][]string) ([]graph.EdgeSpec, error) {
	var out []graph.EdgeSpec
	for i, pair := range pairs {
		k := fmt.Sprintf("%s[%d]", key, i)
		if len(pair) != 2 {
			return nil, keyErr(k, "want [child, parent], got %d ids", len(pair))
		}
		child, err := commitID(k, pair[0])
		if err != nil {
			return nil, err
		}
		parent, err := commitID(k, pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, graph.EdgeSpec{Child: child, Parent: parent})
	}
	return out, nil
}

var errBadID = errors.New("not a full hex object id")

func commitID(key, s string) (object.Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 40 && len(s) != 64 {
		return "", &Error{Key: key, Err: fmt.Errorf("%q: %w", s, errBadID)}
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", &Error{Key: key, Err: fmt.Errorf("%q: %w", s, errBadID)}
		}
	}
	return object.Hash(s), nil
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return nil
	}
	return &http.Client{Timeout: timeout}
}
