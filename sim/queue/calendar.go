package queue

import (
	"slices"
	"sort"

	"github.com/kairos-sim/kairos/sim/vtime"
)

const (
	calendarMinBuckets = 2
	calendarMaxBuckets = 1 << 15
)

// CalendarQueue is Brown's calendar queue. Entries are hashed into buckets
// that each cover one width of time per "year"; dequeuing walks the buckets
// like days on a calendar. The bucket count doubles or halves with the queue
// size, and the width is re-sampled from the gaps between the earliest
// entries on every resize. Times must not be negative.
type CalendarQueue struct {
	buckets [][]Entry
	width   vtime.VTime
	size    int

	// All entries are at or after bucketStart, the start of the day that
	// lastBucket covers in the current year.
	lastBucket  int
	bucketStart vtime.VTime
}

// NewCalendarQueue creates an empty CalendarQueue.
func NewCalendarQueue() *CalendarQueue {
	q := &CalendarQueue{}
	q.init(calendarMinBuckets, 1, 0)

	return q
}

func (q *CalendarQueue) init(n int, width, start vtime.VTime) {
	q.buckets = make([][]Entry, n)
	q.width = width
	q.moveCursor(start)
}

func (q *CalendarQueue) hash(t vtime.VTime) int {
	return int((t / q.width) % vtime.VTime(len(q.buckets)))
}

func (q *CalendarQueue) moveCursor(t vtime.VTime) {
	q.lastBucket = q.hash(t)
	q.bucketStart = t / q.width * q.width
}

func saturatingAdd(a, b vtime.VTime) vtime.VTime {
	if a > vtime.Max-b {
		return vtime.Max
	}

	return a + b
}

// Insert adds an entry.
func (q *CalendarQueue) Insert(e Entry) {
	if e.Key.Time < 0 {
		panic("queue: calendar queue cannot hold negative times")
	}

	if e.Key.Time < q.bucketStart {
		q.moveCursor(e.Key.Time)
	}

	q.insertInBucket(e)
	q.size++
	q.resizeUp()
}

func (q *CalendarQueue) insertInBucket(e Entry) {
	i := q.hash(e.Key.Time)
	b := q.buckets[i]
	at := sort.Search(len(b), func(j int) bool {
		return e.Key.Less(b[j].Key)
	})
	q.buckets[i] = slices.Insert(b, at, e)
}

// locateMin returns the bucket whose head is the smallest entry and moves
// the cursor there. The queue must not be empty.
func (q *CalendarQueue) locateMin() int {
	n := len(q.buckets)
	i := q.lastBucket
	start := q.bucketStart
	minBucket := -1

	for k := 0; k < n; k++ {
		if b := q.buckets[i]; len(b) > 0 {
			if b[0].Key.Time < saturatingAdd(start, q.width) {
				q.lastBucket = i
				q.bucketStart = start

				return i
			}

			if minBucket < 0 || b[0].Key.Less(q.buckets[minBucket][0].Key) {
				minBucket = i
			}
		}

		i = (i + 1) % n
		start = saturatingAdd(start, q.width)
	}

	// Nothing within a year; jump straight to the earliest head.
	q.moveCursor(q.buckets[minBucket][0].Key.Time)

	return minBucket
}

func (q *CalendarQueue) popBucketHead(i int) Entry {
	e := q.buckets[i][0]
	q.buckets[i] = q.buckets[i][1:]

	return e
}

// PeekMin returns the smallest entry.
func (q *CalendarQueue) PeekMin() (Entry, bool) {
	if q.size == 0 {
		return Entry{}, false
	}

	return q.buckets[q.locateMin()][0], true
}

// PopMin removes and returns the smallest entry.
func (q *CalendarQueue) PopMin() Entry {
	mustNotBeEmpty(q)

	e := q.popBucketHead(q.locateMin())
	q.size--
	q.resizeDown()

	return e
}

// Remove removes the entry with the same key.
func (q *CalendarQueue) Remove(e Entry) bool {
	if q.size == 0 || e.Key.Time < 0 {
		return false
	}

	i := q.hash(e.Key.Time)
	b := q.buckets[i]
	at := sort.Search(len(b), func(j int) bool {
		return !b[j].Key.Less(e.Key)
	})

	if at == len(b) || b[at].Key != e.Key {
		return false
	}

	q.buckets[i] = slices.Delete(b, at, at+1)
	q.size--
	q.resizeDown()

	return true
}

// Len returns the number of queued entries.
func (q *CalendarQueue) Len() int {
	return q.size
}

// IsEmpty tells if there is no entry.
func (q *CalendarQueue) IsEmpty() bool {
	return q.size == 0
}

// Clear drops all the entries.
func (q *CalendarQueue) Clear() {
	q.size = 0
	q.init(calendarMinBuckets, 1, 0)
}

// NumBuckets returns the current number of buckets.
func (q *CalendarQueue) NumBuckets() int {
	return len(q.buckets)
}

// Width returns the time span each bucket covers in one year.
func (q *CalendarQueue) Width() vtime.VTime {
	return q.width
}

func (q *CalendarQueue) resizeUp() {
	n := len(q.buckets)
	if q.size > 2*n && n < calendarMaxBuckets {
		q.resize(2 * n)
	}
}

func (q *CalendarQueue) resizeDown() {
	n := len(q.buckets)
	if q.size < n/2 && n > calendarMinBuckets {
		q.resize(n / 2)
	}
}

func (q *CalendarQueue) resize(n int) {
	width := q.sampleWidth()
	old := q.buckets

	q.init(n, width, q.bucketStart)

	for _, b := range old {
		for _, e := range b {
			q.insertInBucket(e)
		}
	}
}

// sampleWidth estimates a good bucket width: three times the average gap
// between the earliest entries, ignoring gaps larger than twice the plain
// average.
func (q *CalendarQueue) sampleWidth() vtime.VTime {
	if q.size < 2 {
		return 1
	}

	n := q.size
	if n > 5 {
		n = 5 + q.size/10
	}
	if n > 25 {
		n = 25
	}

	samples := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, q.popBucketHead(q.locateMin()))
	}

	for _, e := range samples {
		q.insertInBucket(e)
	}
	q.moveCursor(samples[0].Key.Time)

	var total vtime.VTime
	for i := 1; i < n; i++ {
		total += samples[i].Key.Time - samples[i-1].Key.Time
	}

	twiceAvg := saturatingAdd(total/vtime.VTime(n-1), total/vtime.VTime(n-1))

	var kept vtime.VTime
	count := 0
	for i := 1; i < n; i++ {
		gap := samples[i].Key.Time - samples[i-1].Key.Time
		if gap <= twiceAvg {
			kept += gap
			count++
		}
	}

	if count == 0 {
		return 1
	}

	avg := kept / vtime.VTime(count)

	return max(saturatingAdd(saturatingAdd(avg, avg), avg), 1)
}
