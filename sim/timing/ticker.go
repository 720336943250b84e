package timing

import (
	"github.com/kairos-sim/kairos/sim/vtime"
)

// A Ticker is an object that updates states with ticks. Tick returns true if
// it made progress, in which case another tick is scheduled one cycle later.
type Ticker interface {
	Tick() bool
}

// TickScheduler drives a Ticker at a fixed frequency. Ticking stops when the
// Ticker stops making progress; TickNow or TickLater wakes it up again.
type TickScheduler struct {
	ticker Ticker
	Freq   vtime.Freq
	Engine EventScheduler

	nextTickTime vtime.VTime
	pending      []EventID
}

// NewTickScheduler creates a scheduler for tick events.
func NewTickScheduler(
	ticker Ticker,
	engine EventScheduler,
	freq vtime.Freq,
) *TickScheduler {
	t := new(TickScheduler)

	t.ticker = ticker
	t.Engine = engine
	t.Freq = freq
	t.nextTickTime = -1 // This will make sure the first tick is scheduled

	return t
}

// TickNow schedule a Tick event at the current time.
func (t *TickScheduler) TickNow() {
	now := t.Engine.Now()
	if t.nextTickTime >= now {
		return
	}

	t.schedule(t.Freq.ThisTick(now))
}

// TickLater will schedule a tick event at the cycle after the now time.
func (t *TickScheduler) TickLater() {
	time := t.Freq.NextTick(t.Engine.Now())
	if t.nextTickTime >= time {
		return
	}

	t.schedule(time)
}

// Stop cancels the pending ticks.
func (t *TickScheduler) Stop() {
	for _, id := range t.pending {
		id.Cancel()
	}

	t.pending = nil
	t.nextTickTime = -1
}

// IsTicking tells if a tick is pending.
func (t *TickScheduler) IsTicking() bool {
	for _, id := range t.pending {
		if id.IsPending() {
			return true
		}
	}

	return false
}

func (t *TickScheduler) schedule(time vtime.VTime) {
	live := t.pending[:0]
	for _, id := range t.pending {
		if id.IsPending() {
			live = append(live, id)
		}
	}

	t.nextTickTime = time
	t.pending = append(live, t.Engine.ScheduleAt(time, t.tick))
}

func (t *TickScheduler) tick() error {
	if t.ticker.Tick() {
		t.TickLater()
	}

	return nil
}
