package timing

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kairos-sim/kairos/sim/hooking"
	"github.com/kairos-sim/kairos/sim/queue"
	"github.com/kairos-sim/kairos/sim/vtime"
)

// A SerialEngine is an Engine that always run events one after another.
type SerialEngine struct {
	hooking.HookableBase

	timeLock sync.RWMutex
	now      vtime.VTime

	backend queue.Kind
	queue   queue.Queue
	events  arena
	nextUID uint64

	destroyEvents  []EventID
	currentContext uint32

	stopped    atomic.Bool
	running    atomic.Bool
	destroying bool
	destroyed  atomic.Bool

	eventCount   atomic.Uint64
	pendingCount atomic.Int64

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	logger logrus.FieldLogger
}

// NewSerialEngine creates a SerialEngine with the default backend.
func NewSerialEngine() *SerialEngine {
	return MakeSerialEngineBuilder().Build()
}

// Name returns the name of the engine.
func (e *SerialEngine) Name() string {
	return "SerialEngine"
}

// Backend returns the kind of queue that orders pending events.
func (e *SerialEngine) Backend() queue.Kind {
	return e.backend
}

// Now returns the current time at which the engine is at.
// Specifically, the run time of the current event.
func (e *SerialEngine) Now() vtime.VTime {
	return e.readNow()
}

func (e *SerialEngine) readNow() vtime.VTime {
	e.timeLock.RLock()
	t := e.now
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t vtime.VTime) {
	e.timeLock.Lock()
	e.now = t
	e.timeLock.Unlock()
}

// Schedule runs cb after delay, in the context of the running event.
func (e *SerialEngine) Schedule(delay vtime.VTime, cb Callback) EventID {
	return e.ScheduleWithContext(e.currentContext, delay, cb)
}

// ScheduleNow runs cb at the current time, after every event already
// scheduled for the current time.
func (e *SerialEngine) ScheduleNow(cb Callback) EventID {
	return e.Schedule(0, cb)
}

// ScheduleWithContext runs cb after delay. Context() reports context while cb
// runs, and events cb schedules inherit it.
func (e *SerialEngine) ScheduleWithContext(
	context uint32,
	delay vtime.VTime,
	cb Callback,
) EventID {
	if delay < 0 {
		log.Panicf("timing: cannot schedule an event with negative delay %s",
			delay)
	}

	now := e.readNow()
	if delay > vtime.Max-now {
		log.Panicf("timing: event time overflows, now %s, delay %s", now, delay)
	}

	return e.insert(now+delay, context, cb)
}

// ScheduleAt runs cb at time t, in the context of the running event.
func (e *SerialEngine) ScheduleAt(t vtime.VTime, cb Callback) EventID {
	return e.insert(t, e.currentContext, cb)
}

func (e *SerialEngine) insert(
	t vtime.VTime,
	context uint32,
	cb Callback,
) EventID {
	e.mustBeUsable()
	mustHaveCallback(cb)

	now := e.readNow()
	if t < now {
		log.Panicf("timing: cannot schedule event in the past, evt @ %s, now %s",
			t, now)
	}

	vtime.Freeze()

	id := e.newRecord(t, context, cb)
	e.queue.Insert(queue.Entry{
		Key:  queue.Key{Time: t, UID: id.uid},
		Slot: id.slot,
	})
	e.pendingCount.Add(1)

	return id
}

func (e *SerialEngine) newRecord(
	t vtime.VTime,
	context uint32,
	cb Callback,
) EventID {
	slot := e.events.alloc()
	e.nextUID++

	r := &e.events.records[slot]
	r.state = Pending
	r.key = queue.Key{Time: t, UID: e.nextUID}
	r.context = context
	r.callback = cb

	return e.handle(slot, r)
}

func (e *SerialEngine) handle(slot uint32, r *record) EventID {
	return EventID{
		table:   e,
		slot:    slot,
		gen:     r.gen,
		time:    r.key.Time,
		uid:     r.key.UID,
		context: r.context,
	}
}

func (e *SerialEngine) lookup(id EventID) *record {
	if id.table != eventTable(e) {
		return nil
	}

	return e.events.get(id.slot, id.gen)
}

// ScheduleDestroy registers cb to run when the engine is destroyed. Destroy
// events run in registration order; cancelled ones are skipped.
func (e *SerialEngine) ScheduleDestroy(cb Callback) EventID {
	if e.destroyed.Load() {
		log.Panic("timing: engine is destroyed")
	}

	mustHaveCallback(cb)

	id := e.newRecord(vtime.Max, NoContext, cb)
	e.events.records[id.slot].destroy = true
	e.destroyEvents = append(e.destroyEvents, id)

	return id
}

// Cancel prevents a pending event from running. Cancelling an event that has
// run, is running or was already cancelled does nothing.
func (e *SerialEngine) Cancel(id EventID) {
	r := e.lookup(id)
	if r == nil || r.state != Pending {
		return
	}

	if !r.destroy {
		e.queue.Remove(queue.Entry{Key: r.key, Slot: id.slot})
		e.pendingCount.Add(-1)
	}

	e.events.release(id.slot)

	e.InvokeHook(hooking.HookCtx{
		Domain: e,
		Pos:    HookPosEventCancelled,
		Item:   id,
	})
}

// IsExpired tells if the event has run, is running, or has been cancelled.
func (e *SerialEngine) IsExpired(id EventID) bool {
	r := e.lookup(id)

	return r == nil || r.state != Pending
}

// DelayLeft returns how long until the event fires, or 0 if it expired.
func (e *SerialEngine) DelayLeft(id EventID) vtime.VTime {
	if e.IsExpired(id) {
		return 0
	}

	return id.time - e.readNow()
}

// Context returns the context of the running event. Outside of an event it
// returns NoContext.
func (e *SerialEngine) Context() uint32 {
	return e.currentContext
}

// MaximumSimulationTime returns the latest time an event can have.
func (e *SerialEngine) MaximumSimulationTime() vtime.VTime {
	return vtime.Max
}

// EventCount returns the number of events executed so far.
func (e *SerialEngine) EventCount() uint64 {
	return e.eventCount.Load()
}

// PendingCount returns the number of events waiting to run, destroy events
// excluded.
func (e *SerialEngine) PendingCount() int {
	return int(e.pendingCount.Load())
}

// IsFinished tells if Run has nothing left to do or has been stopped.
func (e *SerialEngine) IsFinished() bool {
	return e.pendingCount.Load() == 0 || e.stopped.Load()
}

// Run processes the scheduled events in time order until there is none
// left, Stop is called, or a callback returns an error. A later Run resumes
// where the previous one left.
func (e *SerialEngine) Run() error {
	e.mustBeUsable()

	if !e.running.CompareAndSwap(false, true) {
		log.Panic("timing: Run called while the engine is already running")
	}

	e.stopped.Store(false)

	return e.run()
}

// Start claims the engine and runs it in a new goroutine. The returned
// channel receives the result of the run and is then closed. Start returns
// false and starts nothing if the engine is running or destroyed.
func (e *SerialEngine) Start() (<-chan error, bool) {
	if e.destroyed.Load() || !e.running.CompareAndSwap(false, true) {
		return nil, false
	}

	e.stopped.Store(false)

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- e.run()
	}()

	return done, true
}

// run expects the caller to have claimed e.running.
func (e *SerialEngine) run() error {
	defer e.running.Store(false)

	e.logger.WithFields(logrus.Fields{
		"now":     e.readNow(),
		"pending": e.PendingCount(),
		"backend": e.backend,
	}).Debug("engine run started")

	for !e.stopped.Load() && !e.destroyed.Load() && !e.destroying {
		if e.queue.IsEmpty() {
			break
		}

		err := e.dispatchNext()
		if err != nil {
			e.logger.WithError(err).Debug("engine run interrupted")
			return err
		}
	}

	e.logger.WithFields(logrus.Fields{
		"now":    e.readNow(),
		"events": e.EventCount(),
	}).Debug("engine run returned")

	return nil
}

// IsRunning tells if a Run call is in progress.
func (e *SerialEngine) IsRunning() bool {
	return e.running.Load()
}

func (e *SerialEngine) dispatchNext() error {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	entry := e.queue.PopMin()
	e.pendingCount.Add(-1)

	now := e.readNow()
	if entry.Key.Time < now {
		log.Panicf("timing: cannot run event in the past, evt @ %s, now %s",
			entry.Key.Time, now)
	}

	e.writeNow(entry.Key.Time)

	r := &e.events.records[entry.Slot]
	r.state = Running
	id := e.handle(entry.Slot, r)
	cb := r.callback
	e.currentContext = r.context

	finished := false
	defer func() {
		if !finished {
			e.finish(id)
		}
	}()

	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   id,
	}
	e.InvokeHook(hookCtx)

	err := cb()

	e.finish(id)
	finished = true

	hookCtx.Pos = HookPosAfterEvent
	hookCtx.Detail = err
	e.InvokeHook(hookCtx)

	if err != nil {
		return &CallbackError{ID: id, Err: err}
	}

	return nil
}

// finish retires the record of a dispatched event. The record may already be
// gone if the callback destroyed the engine.
func (e *SerialEngine) finish(id EventID) {
	e.currentContext = NoContext
	e.eventCount.Add(1)

	if e.events.get(id.slot, id.gen) != nil {
		e.events.release(id.slot)
	}
}

// Stop makes Run return after the current event. Pending events are kept.
func (e *SerialEngine) Stop() {
	e.stopped.Store(true)
}

// StopAt makes Run return when the clock reaches t. Events already scheduled
// for t run before the stop takes effect.
func (e *SerialEngine) StopAt(t vtime.VTime) EventID {
	return e.insert(t, NoContext, Func(e.Stop))
}

// StopAfter makes Run return when the clock reaches Now()+delay.
func (e *SerialEngine) StopAfter(delay vtime.VTime) EventID {
	return e.ScheduleWithContext(NoContext, delay, Func(e.Stop))
}

// Pause prevents the SerialEngine to trigger more events.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue allows the SerialEngine to trigger more events.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// Destroy cancels every pending event without running it, then runs the
// destroy events. The engine cannot be used afterwards. Calling Destroy again
// does nothing. Errors returned by destroy events are joined.
func (e *SerialEngine) Destroy() error {
	if e.destroying || e.destroyed.Load() {
		return nil
	}

	e.destroying = true
	e.logger.WithFields(logrus.Fields{
		"now":     e.readNow(),
		"pending": e.PendingCount(),
	}).Debug("destroying engine")

	for !e.queue.IsEmpty() {
		entry := e.queue.PopMin()
		e.events.release(entry.Slot)
	}
	e.pendingCount.Store(0)

	var errs []error
	for i := 0; i < len(e.destroyEvents); i++ {
		id := e.destroyEvents[i]

		r := e.events.get(id.slot, id.gen)
		if r == nil || r.state != Pending {
			continue
		}

		r.state = Running
		cb := r.callback

		err := cb()
		e.events.release(id.slot)

		if err != nil {
			errs = append(errs, &CallbackError{ID: id, Err: err})
		}
	}

	e.destroyEvents = nil
	e.queue.Clear()
	e.events = arena{}
	e.destroyed.Store(true)
	e.destroying = false

	return errors.Join(errs...)
}

// IsDestroyed tells if Destroy has completed.
func (e *SerialEngine) IsDestroyed() bool {
	return e.destroyed.Load()
}

func (e *SerialEngine) mustBeUsable() {
	if e.destroying || e.destroyed.Load() {
		log.Panic("timing: engine is destroyed")
	}
}

func mustHaveCallback(cb Callback) {
	if cb == nil {
		log.Panic("timing: cannot schedule a nil callback")
	}
}
