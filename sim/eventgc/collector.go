// Package eventgc tracks event handles on behalf of an owner and cancels the
// ones still pending when the owner goes away.
package eventgc

import (
	"log"

	"github.com/google/btree"

	"github.com/kairos-sim/kairos/sim/timing"
)

const (
	chunkInitSize = 8
	chunkMaxSize  = 1024
	treeDegree    = 16
)

// A Collector holds event handles ordered by (time, uid). Expired handles
// are swept lazily from the front, so the set stays proportional to the
// number of pending events.
//
// A Collector serves a single engine. Uids are only unique within an engine,
// so Track panics on a handle issued by another engine than the first one
// tracked.
type Collector struct {
	events          *btree.BTreeG[timing.EventID]
	owner           timing.EventID
	nextCleanupSize int
	closed          bool
}

// New creates an empty Collector.
func New() *Collector {
	return &Collector{
		events: btree.NewG(treeDegree, func(a, b timing.EventID) bool {
			return a.Less(b)
		}),
		nextCleanupSize: chunkInitSize,
	}
}

// Track adds an event handle. Tracking after Close cancels the event right
// away. The zero EventID is ignored.
func (c *Collector) Track(id timing.EventID) {
	if id.SameEngine(timing.EventID{}) {
		return
	}

	if c.closed {
		id.Cancel()
		return
	}

	if c.owner.SameEngine(timing.EventID{}) {
		c.owner = id
	} else if !c.owner.SameEngine(id) {
		log.Panic("eventgc: cannot track events of more than one engine")
	}

	c.events.ReplaceOrInsert(id)
	if c.events.Len() >= c.nextCleanupSize {
		c.Cleanup()
	}
}

// Cleanup drops expired handles from the front of the set, stopping at the
// first pending one, and adjusts the next cleanup threshold.
func (c *Collector) Cleanup() {
	for {
		id, ok := c.events.Min()
		if !ok || !id.IsExpired() {
			break
		}

		c.events.DeleteMin()
	}

	if c.events.Len() >= c.nextCleanupSize {
		c.grow()
	} else {
		c.shrink()
	}
}

func (c *Collector) grow() {
	c.nextCleanupSize += min(c.nextCleanupSize, chunkMaxSize)
}

func (c *Collector) shrink() {
	for c.nextCleanupSize > c.events.Len() && c.nextCleanupSize > chunkInitSize {
		c.nextCleanupSize >>= 1
	}

	c.grow()
}

// Close cancels every tracked event that is still pending. Calling Close
// again does nothing.
func (c *Collector) Close() {
	if c.closed {
		return
	}

	c.closed = true

	c.events.Ascend(func(id timing.EventID) bool {
		id.Cancel()
		return true
	})
	c.events.Clear(false)
}

// Len returns the number of tracked handles, expired ones not yet swept
// included.
func (c *Collector) Len() int {
	return c.events.Len()
}

// Threshold returns the size at which the next automatic cleanup happens.
func (c *Collector) Threshold() int {
	return c.nextCleanupSize
}
