package queue

import (
	"container/heap"
)

const absent = -1

// HeapQueue is a binary min-heap. A per-slot index makes arbitrary removal
// O(log n).
type HeapQueue struct {
	h entryHeap
}

// NewHeapQueue creates an empty HeapQueue.
func NewHeapQueue() *HeapQueue {
	return &HeapQueue{}
}

// Insert adds an entry.
func (q *HeapQueue) Insert(e Entry) {
	heap.Push(&q.h, e)
}

// PeekMin returns the smallest entry.
func (q *HeapQueue) PeekMin() (Entry, bool) {
	if len(q.h.items) == 0 {
		return Entry{}, false
	}

	return q.h.items[0], true
}

// PopMin removes and returns the smallest entry.
func (q *HeapQueue) PopMin() Entry {
	mustNotBeEmpty(q)

	return heap.Pop(&q.h).(Entry)
}

// Remove removes the entry with the same key.
func (q *HeapQueue) Remove(e Entry) bool {
	i := q.h.indexOf(e)
	if i == absent {
		return false
	}

	heap.Remove(&q.h, i)

	return true
}

// Len returns the number of queued entries.
func (q *HeapQueue) Len() int {
	return len(q.h.items)
}

// IsEmpty tells if there is no entry.
func (q *HeapQueue) IsEmpty() bool {
	return len(q.h.items) == 0
}

// Clear drops all the entries.
func (q *HeapQueue) Clear() {
	q.h.items = nil
	q.h.pos = nil
}

type entryHeap struct {
	items []Entry
	pos   []int
}

func (h *entryHeap) indexOf(e Entry) int {
	if int(e.Slot) >= len(h.pos) {
		return absent
	}

	i := h.pos[e.Slot]
	if i == absent || h.items[i].Key != e.Key {
		return absent
	}

	return i
}

func (h *entryHeap) setPos(slot uint32, i int) {
	for int(slot) >= len(h.pos) {
		h.pos = append(h.pos, absent)
	}

	h.pos[slot] = i
}

func (h *entryHeap) Len() int {
	return len(h.items)
}

func (h *entryHeap) Less(i, j int) bool {
	return h.items[i].Key.Less(h.items[j].Key)
}

func (h *entryHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.pos[h.items[i].Slot] = i
	h.pos[h.items[j].Slot] = j
}

func (h *entryHeap) Push(x any) {
	e := x.(Entry)
	h.setPos(e.Slot, len(h.items))
	h.items = append(h.items, e)
}

func (h *entryHeap) Pop() any {
	n := len(h.items)
	e := h.items[n-1]
	h.items[n-1] = Entry{}
	h.items = h.items[:n-1]
	h.pos[e.Slot] = absent

	return e
}
