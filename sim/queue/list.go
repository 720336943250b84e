package queue

import (
	"container/list"
)

// ListQueue keeps entries in a sorted linked list. Insertion scans from the
// back, so it is cheap when new entries tend to be the latest ones.
type ListQueue struct {
	l     *list.List
	index map[uint32]*list.Element
}

// NewListQueue creates an empty ListQueue.
func NewListQueue() *ListQueue {
	return &ListQueue{
		l:     list.New(),
		index: make(map[uint32]*list.Element),
	}
}

// Insert adds an entry.
func (q *ListQueue) Insert(e Entry) {
	for ele := q.l.Back(); ele != nil; ele = ele.Prev() {
		if ele.Value.(Entry).Key.Less(e.Key) {
			q.index[e.Slot] = q.l.InsertAfter(e, ele)
			return
		}
	}

	q.index[e.Slot] = q.l.PushFront(e)
}

// PeekMin returns the smallest entry.
func (q *ListQueue) PeekMin() (Entry, bool) {
	front := q.l.Front()
	if front == nil {
		return Entry{}, false
	}

	return front.Value.(Entry), true
}

// PopMin removes and returns the smallest entry.
func (q *ListQueue) PopMin() Entry {
	mustNotBeEmpty(q)

	e := q.l.Remove(q.l.Front()).(Entry)
	delete(q.index, e.Slot)

	return e
}

// Remove removes the entry with the same key.
func (q *ListQueue) Remove(e Entry) bool {
	ele, ok := q.index[e.Slot]
	if !ok || ele.Value.(Entry).Key != e.Key {
		return false
	}

	q.l.Remove(ele)
	delete(q.index, e.Slot)

	return true
}

// Len returns the number of queued entries.
func (q *ListQueue) Len() int {
	return q.l.Len()
}

// IsEmpty tells if there is no entry.
func (q *ListQueue) IsEmpty() bool {
	return q.l.Len() == 0
}

// Clear drops all the entries.
func (q *ListQueue) Clear() {
	q.l.Init()
	q.index = make(map[uint32]*list.Element)
}
