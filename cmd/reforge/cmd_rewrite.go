package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/reforge/pkg/cachedb"
	"github.com/odvcencio/reforge/pkg/config"
	"github.com/odvcencio/reforge/pkg/filter"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

type rewriteFlags struct {
	storeFlags
	source      string
	target      string
	configPath  string
	export      string
	cachePath   string
	incremental bool
	cacheLevels []string
	threads     int
	pathSens    bool
	dryRun      bool
	notes       bool
	annotate    bool
	signKey     string
	metricsFile string
	drop        []string
	keep        []string
}

func newRewriteCmd() *cobra.Command {
	var f rewriteFlags
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite history through the configured filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd, &f)
		},
	}
	f.storeFlags.register(cmd)
	fl := cmd.Flags()
	fl.StringVarP(&f.source, "source", "s", ".", "repository to rewrite")
	fl.StringVarP(&f.target, "target", "t", "", "repository to write into (default: the source)")
	fl.StringVarP(&f.configPath, "config", "c", "", "TOML run configuration")
	fl.StringVar(&f.export, "export", "", "write the commit map to this file (.zst compresses)")
	fl.StringVar(&f.cachePath, "cache", "", "persistent cache database for incremental runs")
	fl.BoolVar(&f.incremental, "incremental", false, "persist rewrite maps in the target's control directory unless --cache is given")
	fl.StringSliceVar(&f.cacheLevels, "cache-levels", []string{"commit"}, "mappings to persist: commit, tree, blob")
	fl.IntVarP(&f.threads, "threads", "j", 1, "workers for the parallel tree pre-pass")
	fl.BoolVar(&f.pathSens, "path-sensitive", false, "memoize entries by path as well as content")
	fl.BoolVarP(&f.dryRun, "dry-run", "n", false, "compute the rewrite without writing objects or refs")
	fl.BoolVar(&f.notes, "notes", false, "record the original commit id in a note on each new commit")
	fl.BoolVar(&f.annotate, "annotate", false, "append a Rewritten-from trailer to commit messages")
	fl.StringVar(&f.signKey, "sign-key", "", "re-sign rewritten commits with this SSH private key")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format")
	fl.StringArrayVar(&f.drop, "drop", nil, "delete files matching pattern (repeatable)")
	fl.StringArrayVar(&f.keep, "keep", nil, "keep only files matching pattern (repeatable)")
	return cmd
}

// settings merges the configuration file with the flags that were set on
// the command line.
func (f *rewriteFlags) settings(cmd *cobra.Command) (*config.File, error) {
	cfg := &config.File{}
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	fl := cmd.Flags()
	if fl.Changed("threads") || cfg.Threads == 0 {
		cfg.Threads = f.threads
	}
	if fl.Changed("cache-levels") || len(cfg.Cache) == 0 {
		cfg.Cache = f.cacheLevels
	}
	if fl.Changed("cache") {
		cfg.CachePath = f.cachePath
	}
	if fl.Changed("incremental") {
		cfg.Incremental = f.incremental
	}
	if fl.Changed("export") {
		cfg.Export = f.export
	}
	if fl.Changed("sign-key") {
		cfg.SignKey = f.signKey
	}
	if fl.Changed("path-sensitive") {
		cfg.PathSensitive = f.pathSens
	}
	if fl.Changed("dry-run") {
		cfg.DryRun = f.dryRun
	}
	if fl.Changed("notes") {
		cfg.Notes = f.notes
	}
	if fl.Changed("annotate") {
		cfg.Annotate = f.annotate
	}
	if len(f.drop) > 0 {
		cfg.Filters = append(cfg.Filters, config.Filter{Kind: "drop", Patterns: f.drop})
	}
	if len(f.keep) > 0 {
		cfg.Filters = append(cfg.Filters, config.Filter{Kind: "keep", Patterns: f.keep})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runRewrite(cmd *cobra.Command, f *rewriteFlags) error {
	cfg, err := f.settings(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd)

	src, err := f.open(f.source)
	if err != nil {
		return err
	}
	dst := src
	if f.target != "" && f.target != f.source {
		target := f.target
		if cfg.DryRun {
			if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
				scratch, err := os.MkdirTemp("", "reforge-dry-run-")
				if err != nil {
					return fmt.Errorf("dry run: %w", err)
				}
				defer os.RemoveAll(scratch)
				log.Info("dry run: target does not exist, using a scratch repository", "target", f.target)
				target = filepath.Join(scratch, "target")
			}
		}
		if dst, err = f.openOrInit(target); err != nil {
			return err
		}
	}
	dst.SetDryRun(cfg.DryRun)

	plugins, err := cfg.Plugins()
	if err != nil {
		return err
	}
	if cfg.SignKey != "" {
		signer, err := filter.NewSSHSigner(cfg.SignKey)
		if err != nil {
			return err
		}
		log.Info("signing rewritten commits", "key", signer.KeyPath)
		plugins = append(plugins, signer)
	}
	levels, err := cfg.Levels()
	if err != nil {
		return err
	}
	recipe, err := cfg.BuildRecipe()
	if err != nil {
		return err
	}

	opts := rewrite.Options{
		Source:        src,
		Target:        dst,
		Plugins:       plugins,
		Threads:       cfg.Threads,
		PathSensitive: cfg.PathSensitive,
		Notes:         cfg.Notes,
		Annotate:      cfg.Annotate,
		CacheLevels:   levels,
		Recipe:        recipe,
		Logger:        log,
	}
	if f.metricsFile != "" {
		opts.Metrics = rewrite.NewMetrics()
	}
	if cfg.CachePath == "" && cfg.Incremental {
		cfg.CachePath = filepath.Join(dst.ControlDir(), defaultCacheName)
		log.Info("using default cache", "path", cfg.CachePath)
	}
	if cfg.CachePath != "" {
		db, err := cachedb.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Persist = db
	}

	engine, err := rewrite.New(opts)
	if err != nil {
		return err
	}
	m, err := engine.Rewrite(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	changed := 0
	for _, p := range m.Commits {
		if p.Old != p.New {
			changed++
		}
	}
	fmt.Fprintf(out, "rewrote %d commit(s), %d changed\n", len(m.Commits), changed)
	if cfg.DryRun {
		fmt.Fprintln(out, "dry run: no objects or refs were written")
	}
	if cfg.Export != "" {
		if err := m.Save(cfg.Export); err != nil {
			return err
		}
		fmt.Fprintf(out, "commit map written to %s\n", cfg.Export)
	}
	if f.metricsFile != "" {
		if err := opts.Metrics.WriteFile(f.metricsFile); err != nil {
			return err
		}
	}
	return nil
}
