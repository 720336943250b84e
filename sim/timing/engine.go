package timing

import (
	"github.com/kairos-sim/kairos/sim/hooking"
	"github.com/kairos-sim/kairos/sim/queue"
	"github.com/kairos-sim/kairos/sim/vtime"
)

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	Now() vtime.VTime
}

// EventScheduler can be used to schedule future events.
type EventScheduler interface {
	TimeTeller

	// Schedule runs cb after delay. A negative delay panics.
	Schedule(delay vtime.VTime, cb Callback) EventID

	// ScheduleAt runs cb at an absolute time, which must not be in the past.
	ScheduleAt(t vtime.VTime, cb Callback) EventID

	// ScheduleNow runs cb at the current time, after everything already
	// scheduled for now.
	ScheduleNow(cb Callback) EventID

	// Cancel prevents a pending event from running.
	Cancel(id EventID)

	// IsExpired tells if the event has run or has been cancelled.
	IsExpired(id EventID) bool
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// ScheduleWithContext is Schedule with an explicit context tag.
	ScheduleWithContext(context uint32, delay vtime.VTime, cb Callback) EventID

	// ScheduleDestroy registers cb to run when the engine is destroyed.
	ScheduleDestroy(cb Callback) EventID

	// DelayLeft returns how long until the event fires, or 0 if it expired.
	DelayLeft(id EventID) vtime.VTime

	// Context returns the context of the running event, or NoContext.
	Context() uint32

	// Run will process all the events until the simulation finishes
	Run() error

	// Start runs the engine in the background unless it is already running
	// or destroyed. The channel delivers the result of the run.
	Start() (<-chan error, bool)

	// IsRunning tells if a Run call is in progress.
	IsRunning() bool

	// Stop makes Run return after the current event.
	Stop()

	// StopAt makes Run return when the clock reaches t.
	StopAt(t vtime.VTime) EventID

	// StopAfter makes Run return when the clock reaches Now()+delay.
	StopAfter(delay vtime.VTime) EventID

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation
	Continue()

	// Destroy drops all pending events and runs the destroy events.
	Destroy() error

	// IsFinished tells if no more events would run without new input.
	IsFinished() bool

	// EventCount returns the number of events executed so far.
	EventCount() uint64

	// PendingCount returns the number of events waiting to run.
	PendingCount() int

	// MaximumSimulationTime returns the latest time an event can have.
	MaximumSimulationTime() vtime.VTime

	// Backend returns the kind of queue that orders pending events.
	Backend() queue.Kind
}
