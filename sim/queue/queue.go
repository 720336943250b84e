// Package queue provides the priority queues that order pending events.
//
// A queue stores Entry values ordered by Key: earlier time first, then lower
// UID. Since every event gets a fresh UID, no two live entries compare equal
// and every backend produces exactly the same order.
package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kairos-sim/kairos/sim/vtime"
)

// Key orders entries.
type Key struct {
	Time vtime.VTime
	UID  uint64
}

// Less tells if k should be dispatched before o.
func (k Key) Less(o Key) bool {
	if k.Time != o.Time {
		return k.Time < o.Time
	}

	return k.UID < o.UID
}

// Entry is what a backend stores. Slot identifies the record that owns the
// entry; no two live entries share a slot.
type Entry struct {
	Key  Key
	Slot uint32
}

// Queue is a priority queue of entries.
type Queue interface {
	// Insert adds an entry.
	Insert(e Entry)

	// PeekMin returns the smallest entry without removing it. ok is false if
	// the queue is empty.
	PeekMin() (e Entry, ok bool)

	// PopMin removes and returns the smallest entry. It panics if the queue
	// is empty.
	PopMin() Entry

	// Remove removes the entry with the same key. It returns false if no
	// such entry is queued.
	Remove(e Entry) bool

	// Len returns the number of queued entries.
	Len() int

	// IsEmpty tells if there is no entry.
	IsEmpty() bool

	// Clear drops all the entries.
	Clear()
}

// Kind names a queue backend.
type Kind string

// Available backends.
const (
	KindHeap     Kind = "heap"
	KindList     Kind = "list"
	KindCalendar Kind = "calendar"
	KindTree     Kind = "tree"
)

// ErrUnknownKind is returned when a backend name is not recognized.
var ErrUnknownKind = errors.New("queue: unknown backend kind")

// Kinds returns all the available backends.
func Kinds() []Kind {
	return []Kind{KindHeap, KindList, KindCalendar, KindTree}
}

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// New creates an empty queue of the given kind.
func New(kind Kind) Queue {
	switch kind {
	case KindHeap:
		return NewHeapQueue()
	case KindList:
		return NewListQueue()
	case KindCalendar:
		return NewCalendarQueue()
	case KindTree:
		return NewTreeQueue()
	default:
		panic(fmt.Sprintf("queue: unknown backend kind %q", string(kind)))
	}
}

func mustNotBeEmpty(q Queue) {
	if q.IsEmpty() {
		panic("queue: PopMin on empty queue")
	}
}
