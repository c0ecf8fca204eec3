package graph

import (
	"container/heap"

	"github.com/odvcencio/reforge/pkg/object"
)

// seqQueue is a min-heap of vertices keyed by insertion sequence.
type seqQueue struct {
	seq   map[object.Hash]int
	items []object.Hash
}

func (q *seqQueue) Len() int { return len(q.items) }

func (q *seqQueue) Less(i, j int) bool {
	return q.seq[q.items[i]] < q.seq[q.items[j]]
}

func (q *seqQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *seqQueue) Push(x any) {
	q.items = append(q.items, x.(object.Hash))
}

func (q *seqQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

func (q *seqQueue) push(id object.Hash) { heap.Push(q, id) }

func (q *seqQueue) pop() object.Hash { return heap.Pop(q).(object.Hash) }
