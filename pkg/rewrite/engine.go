// Package rewrite implements history rewriting over a content-addressed
// object store.
//
// An Engine walks every commit reachable from the start refs, ancestors
// first, rewrites each commit's tree through a memoized entry rewrite,
// rewrites its metadata through plugin hooks, and finally rewrites refs and
// annotated tags. Tree rewriting can be pre-warmed by a pool of workers
// before the strictly ordered commit pass.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odvcencio/reforge/pkg/cache"
	"github.com/odvcencio/reforge/pkg/cachedb"
	"github.com/odvcencio/reforge/pkg/graph"
	"github.com/odvcencio/reforge/pkg/object"
)

// Options configures an Engine.
type Options struct {
	// Source is read from. Target receives new objects and refs; nil means
	// the source store is rewritten in place.
	Source ObjectStore
	Target ObjectStore

	Plugins []Plugin

	// Threads > 1 enables the parallel root-tree pre-pass.
	Threads int

	// PathSensitive puts each entry's directory into its memoization key.
	// Plugins that report PathDependent force it on.
	PathSensitive bool

	// Notes attaches the source commit id to every new commit as a note.
	Notes bool
	// Annotate appends a "Rewritten-from: <id>" trailer to every message.
	Annotate bool

	// StartRef selects the refs the walk starts from and the refs that are
	// rewritten. Defaults to HEAD, refs/heads/* and refs/tags/*.
	StartRef func(object.Ref) bool

	// Persist, when set, stores rewrite maps across runs at the levels in
	// CacheLevels. Incremental runs need LevelCommit.
	Persist     *cachedb.Store
	CacheLevels Level

	// Recipe edits the commit graph before the rewrite.
	Recipe *graph.Recipe

	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultStartRef admits HEAD, branches and tags.
func DefaultStartRef(ref object.Ref) bool {
	return ref.Name == "HEAD" ||
		strings.HasPrefix(ref.Name, "refs/heads/") ||
		strings.HasPrefix(ref.Name, "refs/tags/")
}

// Engine rewrites history. An Engine runs one rewrite at a time.
type Engine struct {
	opts          Options
	src, dst      ObjectStore
	sameStore     bool
	hooks         *hookSet
	log           *slog.Logger
	metrics       *Metrics
	pathSensitive bool

	run         *cachedb.Run
	incremental bool
	entries     *cache.Cache[Entry, Result]
	commitMap   *cache.Cache[object.Hash, object.Hash]
	refMap      *cache.Cache[object.Ref, object.Ref]
	flight      singleflight.Group

	commits    map[object.Hash]*object.CommitObj
	graph      *graph.Graph
	mergedInto map[object.Hash][]object.Hash
	rewritten  []object.Hash
	tags       map[object.Hash]object.Hash

	// done holds commits and tags written by a prior in-place run and
	// doneRefs the refs it left behind. Both map to themselves.
	done     map[object.Hash]bool
	doneRefs map[object.Ref]bool
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, errors.New("rewrite: source store is required")
	}
	dst := opts.Target
	if dst == nil {
		dst = opts.Source
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.StartRef == nil {
		opts.StartRef = DefaultStartRef
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hooks := newHookSet(opts.Plugins)
	return &Engine{
		opts:          opts,
		src:           opts.Source,
		dst:           dst,
		sameStore:     dst == opts.Source,
		hooks:         hooks,
		log:           logger,
		metrics:       opts.Metrics,
		pathSensitive: opts.PathSensitive || hooks.pathDependent,
	}, nil
}

// Rewrite runs the set-up hooks, walks and rewrites every commit, rewrites
// refs and tags, runs the clean-up hooks and returns the commit map. With
// persistence enabled all cache writes of the run commit together, and
// only when the run succeeds.
func (e *Engine) Rewrite(ctx context.Context) (export *CommitMapExport, err error) {
	start := time.Now()
	if err := e.begin(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && e.run != nil {
			if abortErr := e.run.Abort(); abortErr != nil {
				e.log.Error("abort cache run", "err", abortErr)
			}
		}
	}()

	for _, h := range e.hooks.setUp {
		e.metrics.hook(h.plugin.Name() + ".SetUp")
		if err := h.hook.SetUp(ctx, e.src); err != nil {
			return nil, hookError(ctx, h.plugin, "SetUp", err)
		}
	}

	refs, err := e.src.Refs()
	if err != nil {
		return nil, contextError(ctx, "list refs", err)
	}
	order, err := e.walk(ctx, refs)
	if err != nil {
		return nil, err
	}
	e.log.Info("walk complete", "commits", len(order), "incremental", e.incremental)

	if e.opts.Threads > 1 && len(order) > 1 {
		if err := e.prewarm(ctx, order); err != nil {
			return nil, err
		}
	}

	ins := e.dst.NewInserter()
	defer ins.Close()
	wctx := WithInserter(ctx, ins)
	for _, id := range order {
		if err := e.rewriteCommit(wctx, id); err != nil {
			return nil, err
		}
	}
	if err := e.rewriteRefs(wctx, refs); err != nil {
		return nil, err
	}
	if err := ins.Flush(); err != nil {
		return nil, contextError(ctx, "flush objects", err)
	}
	if err := e.dst.Flush(); err != nil {
		return nil, contextError(ctx, "flush target", err)
	}

	for _, h := range e.hooks.cleanUp {
		e.metrics.hook(h.plugin.Name() + ".CleanUp")
		if err := h.hook.CleanUp(ctx); err != nil {
			return nil, hookError(ctx, h.plugin, "CleanUp", err)
		}
	}

	export, err = e.export()
	if err != nil {
		return nil, err
	}
	if e.run != nil {
		export.Run = e.run.ID
		if e.dst.DryRun() {
			e.log.Info("dry run: cache not updated")
			if err := e.run.Abort(); err != nil {
				return nil, err
			}
		} else if err := e.run.Finish(); err != nil {
			return nil, err
		}
	}

	e.metrics.cacheStats("entries", e.entries.Stats())
	e.metrics.cacheStats("commits", e.commitMap.Stats())
	e.metrics.cacheStats("refs", e.refMap.Stats())
	e.metrics.observeRun(time.Since(start).Seconds())
	e.log.Info("rewrite complete", "commits", len(export.Commits), "elapsed", time.Since(start).Round(time.Millisecond))
	return export, nil
}

// begin resets per-run state and opens the cache transaction.
func (e *Engine) begin(ctx context.Context) error {
	e.run = nil
	e.incremental = false
	e.commits = make(map[object.Hash]*object.CommitObj)
	e.mergedInto = make(map[object.Hash][]object.Hash)
	e.rewritten = nil
	e.tags = make(map[object.Hash]object.Hash)
	e.done = make(map[object.Hash]bool)
	e.doneRefs = make(map[object.Ref]bool)
	e.graph = nil

	levels := e.opts.CacheLevels
	if e.opts.Persist != nil {
		run, err := e.opts.Persist.Begin(ctx)
		if err != nil {
			return err
		}
		e.run = run
		e.incremental = !e.opts.Persist.Created() && levels&LevelCommit != 0
		if !e.opts.Persist.Created() && levels&LevelCommit == 0 {
			e.log.Warn("commit level not persisted: running as an initial run", "levels", levels.String())
		}
	}

	if e.run != nil {
		e.entries = cache.New[Entry, Result](entryBack{e.run}, levels.admitsEntry)
		e.commitMap = cache.New[object.Hash, object.Hash](commitBack{e.run}, func(object.Hash) bool { return levels&LevelCommit != 0 })
		e.refMap = cache.New[object.Ref, object.Ref](refBack{e.run}, func(object.Ref) bool { return levels&LevelCommit != 0 })
	} else {
		e.entries = cache.New[Entry, Result](nil, nil)
		e.commitMap = cache.New[object.Hash, object.Hash](nil, nil)
		e.refMap = cache.New[object.Ref, object.Ref](nil, nil)
	}
	return nil
}

// warn logs a consistency warning with the rewrite position from ctx.
func (e *Engine) warn(ctx context.Context, kind, msg string, args ...any) {
	e.metrics.warn(kind)
	if id, ok := CommitFrom(ctx); ok {
		args = append(args, "commit", id.Short())
	}
	if en, ok := EntryFrom(ctx); ok {
		args = append(args, "path", joinPath(PathFrom(ctx), en.Name))
	}
	if ref, ok := RefFrom(ctx); ok {
		args = append(args, "ref", ref.Name)
	}
	e.log.Warn(msg, args...)
}

func (e *Engine) inserter(ctx context.Context) (object.Inserter, error) {
	ins := InserterFrom(ctx)
	if ins == nil {
		return nil, fmt.Errorf("rewrite: no inserter bound to context")
	}
	return ins, nil
}

// Plan walks the source history and applies the recipe without rewriting
// anything. It returns the edited graph and the commits in rewrite order.
func (e *Engine) Plan(ctx context.Context) (*graph.Graph, []object.Hash, error) {
	if err := e.begin(ctx); err != nil {
		return nil, nil, err
	}
	if e.run != nil {
		defer func() {
			if err := e.run.Abort(); err != nil {
				e.log.Error("abort cache run", "err", err)
			}
		}()
	}
	refs, err := e.src.Refs()
	if err != nil {
		return nil, nil, contextError(ctx, "list refs", err)
	}
	order, err := e.walk(ctx, refs)
	if err != nil {
		return nil, nil, err
	}
	return e.graph, order, nil
}
