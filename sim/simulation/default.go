package simulation

import (
	"context"
	"log"
	"sync"

	"github.com/kairos-sim/kairos/sim/timing"
	"github.com/kairos-sim/kairos/sim/vtime"
)

var (
	defaultLock sync.Mutex
	defaultSim  *Simulation
)

// Default returns the process-wide simulation, building one with the default
// configuration on first use. Code that needs several independent
// simulations should build them explicitly instead.
func Default() *Simulation {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	if defaultSim == nil {
		s, err := MakeBuilder().Build()
		if err != nil {
			log.Panic(err)
		}

		defaultSim = s
	}

	return defaultSim
}

// SetDefault replaces the process-wide simulation and returns the previous
// one, which may be nil. Passing nil makes the next Default call build a
// fresh simulation.
func SetDefault(s *Simulation) *Simulation {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	prev := defaultSim
	defaultSim = s

	return prev
}

// Now returns the current time of the default simulation.
func Now() vtime.VTime {
	return Default().engine.Now()
}

// Schedule schedules cb after delay on the default simulation.
func Schedule(delay vtime.VTime, cb timing.Callback) timing.EventID {
	return Default().engine.Schedule(delay, cb)
}

// ScheduleAt schedules cb at time t on the default simulation.
func ScheduleAt(t vtime.VTime, cb timing.Callback) timing.EventID {
	return Default().engine.ScheduleAt(t, cb)
}

// ScheduleNow schedules cb at the current time on the default simulation.
func ScheduleNow(cb timing.Callback) timing.EventID {
	return Default().engine.ScheduleNow(cb)
}

// Cancel cancels a pending event.
func Cancel(id timing.EventID) {
	id.Cancel()
}

// Run runs the default simulation.
func Run() error {
	return Default().Run(context.Background())
}
