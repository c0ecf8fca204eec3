package graph

import (
	"fmt"

	"github.com/odvcencio/reforge/pkg/object"
)

// MergeMode selects how a cluster is collapsed.
type MergeMode string

const (
	// Safe merges skip members related to the base by ancestry.
	Safe MergeMode = "safe"
	// Forced merges skip the ancestry check.
	Forced MergeMode = "forced"
)

// EdgeSpec names a parent edge by its child and parent commits.
type EdgeSpec struct {
	Child  object.Hash
	Parent object.Hash
}

// Cluster collapses Members into the first member.
type Cluster struct {
	Mode    MergeMode
	Members []object.Hash
}

// Recipe is a list of graph edits applied before a rewrite: edge removals,
// then edge additions, then cluster merges in order.
type Recipe struct {
	RemoveEdges []EdgeSpec
	AddEdges    []EdgeSpec
	Clusters    []Cluster
}

// Rejection records a safe merge that was refused.
type Rejection struct {
	Base   object.Hash
	Target object.Hash
}

// Empty reports whether the recipe has no edits.
func (r *Recipe) Empty() bool {
	return r == nil || (len(r.RemoveEdges) == 0 && len(r.AddEdges) == 0 && len(r.Clusters) == 0)
}

// Apply edits g according to r and returns the safe merges that were
// rejected. Unknown commits are an error; the graph may be partially
// edited when one is returned.
func (g *Graph) Apply(r *Recipe) ([]Rejection, error) {
	if r.Empty() {
		return nil, nil
	}
	for _, e := range r.RemoveEdges {
		if !g.RemoveEdge(e.Parent, e.Child) {
			return nil, fmt.Errorf("recipe: remove edge %s -> %s: %w", e.Parent.Short(), e.Child.Short(), ErrUnknownVertex)
		}
	}
	for _, e := range r.AddEdges {
		if !g.HasVertex(e.Parent) || !g.HasVertex(e.Child) {
			return nil, fmt.Errorf("recipe: add edge %s -> %s: %w", e.Parent.Short(), e.Child.Short(), ErrUnknownVertex)
		}
		g.AddEdge(e.Parent, e.Child)
	}

	var rejected []Rejection
	for i, c := range r.Clusters {
		if len(c.Members) < 2 {
			continue
		}
		base := c.Members[0]
		if !g.HasVertex(base) {
			return nil, fmt.Errorf("recipe: cluster %d: base %s: %w", i, base.Short(), ErrUnknownVertex)
		}
		for _, member := range c.Members[1:] {
			target := g.Representative(member)
			if target == base {
				continue
			}
			if !g.HasVertex(target) {
				return nil, fmt.Errorf("recipe: cluster %d: member %s: %w", i, member.Short(), ErrUnknownVertex)
			}
			switch c.Mode {
			case Forced:
				if err := g.MergeVertices(base, target); err != nil {
					return nil, fmt.Errorf("recipe: cluster %d: %w", i, err)
				}
			case Safe, "":
				if !g.MergeVerticesSafely(base, target) {
					rejected = append(rejected, Rejection{Base: base, Target: target})
				}
			default:
				return nil, fmt.Errorf("recipe: cluster %d: unknown merge mode %q", i, c.Mode)
			}
		}
	}
	return rejected, nil
}
