// Package graph holds the commit graph used to order a rewrite and to
// cluster commits before it runs.
//
// Edges point from a parent to its child and carry a strictly increasing
// insertion index, so the original parent order of every commit survives
// any amount of graph surgery.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/reforge/pkg/object"
)

var (
	// ErrCycle is returned by TopoOrder when forced merges closed a cycle.
	ErrCycle = errors.New("commit graph contains a cycle")
	// ErrUnknownVertex is returned when an operation names a missing vertex.
	ErrUnknownVertex = errors.New("unknown vertex")
)

// Edge links a parent commit to one of its children.
type Edge struct {
	Parent object.Hash
	Child  object.Hash
	Index  int
}

// Commit is one node of a revision walk: a commit id and its ordered
// parents.
type Commit struct {
	ID      object.Hash
	Parents []object.Hash
}

// Graph is a directed commit graph. It is not safe for concurrent mutation.
type Graph struct {
	seq      map[object.Hash]int
	parents  map[object.Hash][]*Edge // incoming edges
	children map[object.Hash][]*Edge // outgoing edges
	merged   map[object.Hash]object.Hash

	nextSeq   int
	nextIndex int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		seq:      make(map[object.Hash]int),
		parents:  make(map[object.Hash][]*Edge),
		children: make(map[object.Hash][]*Edge),
		merged:   make(map[object.Hash]object.Hash),
	}
}

// Build adds a vertex per walked commit and an edge to each of its parents,
// in parent order. Parents outside the walk become vertices too.
func Build(walk []Commit) *Graph {
	g := New()
	for _, c := range walk {
		g.AddVertex(c.ID)
	}
	for _, c := range walk {
		for _, p := range c.Parents {
			g.AddEdge(p, c.ID)
		}
	}
	return g
}

// AddVertex inserts id. It reports false if the vertex already existed.
func (g *Graph) AddVertex(id object.Hash) bool {
	if _, ok := g.seq[id]; ok {
		return false
	}
	g.seq[id] = g.nextSeq
	g.nextSeq++
	return true
}

// HasVertex reports whether id is in the graph.
func (g *Graph) HasVertex(id object.Hash) bool {
	_, ok := g.seq[id]
	return ok
}

// Len returns the number of vertices.
func (g *Graph) Len() int { return len(g.seq) }

// Vertices returns all vertices in insertion order.
func (g *Graph) Vertices() []object.Hash {
	out := make([]object.Hash, 0, len(g.seq))
	for id := range g.seq {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return g.seq[out[i]] < g.seq[out[j]] })
	return out
}

// AddEdge records parent as the next parent of child, adding either vertex
// if needed.
func (g *Graph) AddEdge(parent, child object.Hash) *Edge {
	g.AddVertex(parent)
	g.AddVertex(child)
	e := &Edge{Parent: parent, Child: child, Index: g.nextIndex}
	g.nextIndex++
	g.parents[child] = append(g.parents[child], e)
	g.children[parent] = append(g.children[parent], e)
	return e
}

// RemoveEdge deletes every edge from parent to child and reports whether
// any existed.
func (g *Graph) RemoveEdge(parent, child object.Hash) bool {
	before := len(g.parents[child])
	g.parents[child] = dropEdges(g.parents[child], func(e *Edge) bool { return e.Parent == parent })
	g.children[parent] = dropEdges(g.children[parent], func(e *Edge) bool { return e.Child == child })
	return len(g.parents[child]) != before
}

// GetParents returns the parents of id ordered by edge index.
func (g *Graph) GetParents(id object.Hash) []object.Hash {
	edges := sortedEdges(g.parents[id])
	out := make([]object.Hash, len(edges))
	for i, e := range edges {
		out[i] = e.Parent
	}
	return out
}

// GetChildren returns the children of id ordered by edge index.
func (g *Graph) GetChildren(id object.Hash) []object.Hash {
	edges := sortedEdges(g.children[id])
	out := make([]object.Hash, len(edges))
	for i, e := range edges {
		out[i] = e.Child
	}
	return out
}

// TopoOrder returns every vertex with ancestors before descendants. Ties
// are broken by insertion order, so the result is deterministic.
func (g *Graph) TopoOrder() ([]object.Hash, error) {
	indegree := make(map[object.Hash]int, len(g.seq))
	for id := range g.seq {
		indegree[id] = len(g.parents[id])
	}

	ready := &seqQueue{seq: g.seq}
	for id, n := range indegree {
		if n == 0 {
			ready.push(id)
		}
	}

	out := make([]object.Hash, 0, len(g.seq))
	for ready.Len() > 0 {
		id := ready.pop()
		out = append(out, id)
		for _, e := range g.children[id] {
			indegree[e.Child]--
			if indegree[e.Child] == 0 {
				ready.push(e.Child)
			}
		}
	}
	if len(out) != len(g.seq) {
		return nil, fmt.Errorf("topological order: %w (%d of %d vertices ordered)", ErrCycle, len(out), len(g.seq))
	}
	return out, nil
}

// Ancestors returns every vertex reachable from id through parent edges,
// id itself included.
func (g *Graph) Ancestors(id object.Hash) map[object.Hash]struct{} {
	return g.reach(id, func(e *Edge) object.Hash { return e.Parent }, g.parents)
}

// Descendants returns every vertex reachable from id through child edges,
// id itself included.
func (g *Graph) Descendants(id object.Hash) map[object.Hash]struct{} {
	return g.reach(id, func(e *Edge) object.Hash { return e.Child }, g.children)
}

func (g *Graph) reach(id object.Hash, next func(*Edge) object.Hash, adj map[object.Hash][]*Edge) map[object.Hash]struct{} {
	out := make(map[object.Hash]struct{})
	if !g.HasVertex(id) {
		return out
	}
	stack := []object.Hash{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := out[cur]; ok {
			continue
		}
		out[cur] = struct{}{}
		for _, e := range adj[cur] {
			stack = append(stack, next(e))
		}
	}
	return out
}

// LowestCommonAncestors returns the common ancestors of a and b that are
// not themselves ancestors of another common ancestor. When a is an
// ancestor of b the result is exactly [a].
func (g *Graph) LowestCommonAncestors(a, b object.Hash) []object.Hash {
	ancA := g.Ancestors(a)
	ancB := g.Ancestors(b)
	common := make(map[object.Hash]struct{})
	for id := range ancA {
		if _, ok := ancB[id]; ok {
			common[id] = struct{}{}
		}
	}

	var out []object.Hash
	for id := range common {
		lowest := true
		for _, e := range g.children[id] {
			if _, ok := common[e.Child]; ok {
				lowest = false
				break
			}
		}
		if lowest {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return g.seq[out[i]] < g.seq[out[j]] })
	return out
}

// IsAncestor reports whether a is b or one of b's ancestors.
func (g *Graph) IsAncestor(a, b object.Hash) bool {
	if !g.HasVertex(a) || !g.HasVertex(b) {
		return false
	}
	lca := g.LowestCommonAncestors(a, b)
	return len(lca) == 1 && lca[0] == a
}

// MergeVertices splices target into base: outgoing edges of target now
// leave base, incoming edges now reach base with their original index,
// self loops are dropped and target is removed. No ancestry check is made.
func (g *Graph) MergeVertices(base, target object.Hash) error {
	if !g.HasVertex(base) {
		return fmt.Errorf("merge %s: base: %w", target.Short(), ErrUnknownVertex)
	}
	if !g.HasVertex(target) {
		return fmt.Errorf("merge into %s: target: %w", base.Short(), ErrUnknownVertex)
	}
	if base == target {
		return nil
	}

	for _, e := range g.children[target] {
		g.parents[e.Child] = dropEdges(g.parents[e.Child], func(x *Edge) bool { return x == e })
		if e.Child == base {
			continue
		}
		g.link(base, e.Child, e.Index)
	}
	for _, e := range g.parents[target] {
		g.children[e.Parent] = dropEdges(g.children[e.Parent], func(x *Edge) bool { return x == e })
		if e.Parent == base {
			continue
		}
		g.link(e.Parent, base, e.Index)
	}

	delete(g.children, target)
	delete(g.parents, target)
	delete(g.seq, target)
	g.merged[target] = base
	for from, to := range g.merged {
		if to == target {
			g.merged[from] = base
		}
	}
	return nil
}

// MergeVerticesSafely merges target into base unless one is an ancestor of
// the other, in which case it returns false and leaves the graph unchanged.
func (g *Graph) MergeVerticesSafely(base, target object.Hash) bool {
	if base == target || !g.HasVertex(base) || !g.HasVertex(target) {
		return false
	}
	if g.IsAncestor(base, target) || g.IsAncestor(target, base) {
		return false
	}
	return g.MergeVertices(base, target) == nil
}

// Representative returns the vertex that id was merged into, or id itself.
func (g *Graph) Representative(id object.Hash) object.Hash {
	if to, ok := g.merged[id]; ok {
		return to
	}
	return id
}

// Merged returns a copy of the merged-vertex table, target to base.
func (g *Graph) Merged() map[object.Hash]object.Hash {
	out := make(map[object.Hash]object.Hash, len(g.merged))
	for k, v := range g.merged {
		out[k] = v
	}
	return out
}

// ParentTable returns the ordered parents of every vertex.
func (g *Graph) ParentTable() map[object.Hash][]object.Hash {
	out := make(map[object.Hash][]object.Hash, len(g.seq))
	for id := range g.seq {
		out[id] = g.GetParents(id)
	}
	return out
}

// link adds parent->child with a fixed index. An existing edge between the
// pair absorbs the new one, keeping the smaller index.
func (g *Graph) link(parent, child object.Hash, index int) {
	for _, e := range g.parents[child] {
		if e.Parent == parent {
			if index < e.Index {
				e.Index = index
			}
			return
		}
	}
	e := &Edge{Parent: parent, Child: child, Index: index}
	g.parents[child] = append(g.parents[child], e)
	g.children[parent] = append(g.children[parent], e)
}

func dropEdges(edges []*Edge, drop func(*Edge) bool) []*Edge {
	out := edges[:0]
	for _, e := range edges {
		if !drop(e) {
			out = append(out, e)
		}
	}
	return out
}

func sortedEdges(edges []*Edge) []*Edge {
	out := make([]*Edge, len(edges))
	copy(out, edges)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
