package timing

import (
	"github.com/kairos-sim/kairos/sim/queue"
)

type record struct {
	gen      uint32
	state    EventState
	destroy  bool
	key      queue.Key
	context  uint32
	callback Callback
}

// arena owns event records by value. A slot is reused once its event
// expires; bumping the generation makes every old handle to the slot inert.
type arena struct {
	records []record
	free    []uint32
}

func (a *arena) alloc() uint32 {
	if n := len(a.free); n > 0 {
		slot := a.free[n-1]
		a.free = a.free[:n-1]

		return slot
	}

	a.records = append(a.records, record{gen: 1})

	return uint32(len(a.records) - 1)
}

// get returns the live record the handle refers to, or nil. The pointer is
// only valid until the next alloc.
func (a *arena) get(slot, gen uint32) *record {
	if int(slot) >= len(a.records) {
		return nil
	}

	r := &a.records[slot]
	if r.gen != gen {
		return nil
	}

	return r
}

func (a *arena) release(slot uint32) {
	r := &a.records[slot]

	r.gen++
	if r.gen == 0 {
		r.gen = 1
	}

	r.state = Pending
	r.destroy = false
	r.callback = nil

	a.free = append(a.free, slot)
}

func (a *arena) live() int {
	return len(a.records) - len(a.free)
}
