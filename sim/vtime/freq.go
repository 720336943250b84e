package vtime

import (
	"log"
)

// Freq defines the type of frequency
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Period returns the time between two consecutive ticks. The period must be
// at least one resolution tick.
func (f Freq) Period() VTime {
	if f <= 0 {
		log.Panic("vtime: frequency must be positive")
	}

	p := Seconds(1.0 / float64(f))
	if p <= 0 {
		log.Panicf("vtime: frequency %g Hz is too high for resolution %s",
			float64(f), Resolution())
	}

	return p
}

// Cycle converts a time to the number of whole cycles passed since time 0.
func (f Freq) Cycle(t VTime) uint64 {
	return uint64(t / f.Period())
}

// ThisTick returns the current tick time
//
//	            Input
//	            (          ]
//	 |----------|----------|----------|----->
//	                       |
//	                       Output
func (f Freq) ThisTick(now VTime) VTime {
	p := f.Period()
	count := now / p
	if now%p != 0 {
		count++
	}

	return count * p
}

// NextTick returns the next tick time.
//
//	            Input
//	            [          )
//	 |----------|----------|----------|----->
//	                       |
//	                       Output
func (f Freq) NextTick(now VTime) VTime {
	p := f.Period()

	return (now/p + 1) * p
}

// NCyclesLater returns the time after N cycles. The result is always on a
// tick.
func (f Freq) NCyclesLater(n int, now VTime) VTime {
	return f.ThisTick(now) + VTime(n)*f.Period()
}

// HalfTick returns the time in middle of two ticks
//
//	            Input
//	            (          ]
//	 |----------|----------|----------|----->
//	                            |
//	                            Output
func (f Freq) HalfTick(t VTime) VTime {
	return f.ThisTick(t) + f.Period()/2
}
