package datarecording

import (
	"github.com/kairos-sim/kairos/sim/hooking"
	"github.com/kairos-sim/kairos/sim/timing"
)

// EventTable is the table that holds one row per finished event.
const EventTable = "events"

// Outcomes of a recorded event.
const (
	OutcomeExecuted  = "executed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// EventEntry is a row of the events table. Time is in ticks of the
// resolution in use. Context is -1 for events without a context.
type EventEntry struct {
	UID     uint64
	Time    int64
	Context int64
	Outcome string
	Error   string
}

// EventRecorder is a hook that records executed and cancelled events.
type EventRecorder struct {
	recorder DataRecorder
	count    uint64
}

// NewEventRecorder creates the events table in recorder.
func NewEventRecorder(recorder DataRecorder) *EventRecorder {
	recorder.CreateTable(EventTable, EventEntry{})

	return &EventRecorder{recorder: recorder}
}

// Func records the event of after-event and event-cancelled hooks.
func (r *EventRecorder) Func(ctx hooking.HookCtx) {
	id, ok := ctx.Item.(timing.EventID)
	if !ok {
		return
	}

	var entry EventEntry

	switch ctx.Pos {
	case timing.HookPosAfterEvent:
		entry = newEventEntry(id, OutcomeExecuted)

		if err, isErr := ctx.Detail.(error); isErr && err != nil {
			entry.Outcome = OutcomeFailed
			entry.Error = err.Error()
		}
	case timing.HookPosEventCancelled:
		entry = newEventEntry(id, OutcomeCancelled)
	default:
		return
	}

	r.recorder.InsertData(EventTable, entry)
	r.count++
}

// Count returns the number of events recorded so far.
func (r *EventRecorder) Count() uint64 {
	return r.count
}

func newEventEntry(id timing.EventID, outcome string) EventEntry {
	entry := EventEntry{
		UID:     id.UID(),
		Time:    int64(id.Time()),
		Context: -1,
		Outcome: outcome,
	}

	if id.Context() != timing.NoContext {
		entry.Context = int64(id.Context())
	}

	return entry
}
