package queue

import (
	"github.com/google/btree"
)

const treeDegree = 32

// TreeQueue is an ordered B-tree. Every operation is O(log n) in the worst
// case, which makes it the most predictable backend.
type TreeQueue struct {
	tree *btree.BTreeG[Entry]
}

// NewTreeQueue creates an empty TreeQueue.
func NewTreeQueue() *TreeQueue {
	return &TreeQueue{
		tree: btree.NewG(treeDegree, func(a, b Entry) bool {
			return a.Key.Less(b.Key)
		}),
	}
}

// Insert adds an entry.
func (q *TreeQueue) Insert(e Entry) {
	q.tree.ReplaceOrInsert(e)
}

// PeekMin returns the smallest entry.
func (q *TreeQueue) PeekMin() (Entry, bool) {
	return q.tree.Min()
}

// PopMin removes and returns the smallest entry.
func (q *TreeQueue) PopMin() Entry {
	mustNotBeEmpty(q)

	e, _ := q.tree.DeleteMin()

	return e
}

// Remove removes the entry with the same key.
func (q *TreeQueue) Remove(e Entry) bool {
	_, found := q.tree.Delete(e)

	return found
}

// Len returns the number of queued entries.
func (q *TreeQueue) Len() int {
	return q.tree.Len()
}

// IsEmpty tells if there is no entry.
func (q *TreeQueue) IsEmpty() bool {
	return q.tree.Len() == 0
}

// Clear drops all the entries.
func (q *TreeQueue) Clear() {
	q.tree.Clear(false)
}
