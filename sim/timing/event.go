package timing

import (
	"fmt"
	"math"

	"github.com/kairos-sim/kairos/sim/hooking"
	"github.com/kairos-sim/kairos/sim/vtime"
)

// A Callback is the work an event performs when it fires. A non-nil error
// stops the current Run and is reported to its caller.
type Callback func() error

// Func adapts a plain function into a Callback.
func Func(f func()) Callback {
	return func() error {
		f()
		return nil
	}
}

// NoContext is the context of events scheduled outside of any event.
const NoContext uint32 = math.MaxUint32

// EventState is the life-cycle state of an event.
//
// The engine keeps the state of a live record only. Reaching Executed or
// Cancelled frees the record's slot, so a handle to such an event reports
// IsExpired and cannot tell the two terminal states apart. Hooks at
// HookPosAfterEvent and HookPosEventCancelled observe which one it was.
type EventState int

// An event moves from Pending to Running to Executed, or from Pending to
// Cancelled.
const (
	Pending EventState = iota
	Running
	Executed
	Cancelled
)

func (s EventState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Executed:
		return "Executed"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("EventState(%d)", int(s))
	}
}

// HookPosBeforeEvent is a hook position that triggers before handling an event.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is a hook position that triggers after handling an event.
// The hook context's Detail holds the error returned by the callback.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}

// HookPosEventCancelled is a hook position that triggers when a pending
// event is cancelled.
var HookPosEventCancelled = &hooking.HookPos{Name: "EventCancelled"}

type eventTable interface {
	IsExpired(id EventID) bool
	Cancel(id EventID)
}

// EventID is a handle to a scheduled event. It is a small comparable value;
// copies refer to the same event. Once the event has run or has been
// cancelled the handle is expired and all operations through it are no-ops.
// The zero EventID is always expired.
type EventID struct {
	table   eventTable
	slot    uint32
	gen     uint32
	time    vtime.VTime
	uid     uint64
	context uint32
}

// Time returns the time at which the event fires.
func (id EventID) Time() vtime.VTime {
	return id.time
}

// UID returns the unique, monotonically assigned ID of the event.
func (id EventID) UID() uint64 {
	return id.uid
}

// Context returns the context the event was scheduled with.
func (id EventID) Context() uint32 {
	return id.context
}

// IsExpired tells if the event has run or has been cancelled.
func (id EventID) IsExpired() bool {
	if id.table == nil {
		return true
	}

	return id.table.IsExpired(id)
}

// SameEngine tells if both handles were issued by the same engine. The zero
// EventID belongs to no engine.
func (id EventID) SameEngine(other EventID) bool {
	return id.table == other.table
}

// IsPending is the opposite of IsExpired.
func (id EventID) IsPending() bool {
	return !id.IsExpired()
}

// Cancel prevents the event from running. Cancelling an expired event does
// nothing.
func (id EventID) Cancel() {
	if id.table == nil {
		return
	}

	id.table.Cancel(id)
}

// Less orders handles the same way the engine dispatches them.
func (id EventID) Less(o EventID) bool {
	if id.time != o.time {
		return id.time < o.time
	}

	return id.uid < o.uid
}

func (id EventID) String() string {
	return fmt.Sprintf("event %d @ %s", id.uid, id.time)
}
