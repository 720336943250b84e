// Package vtime defines the virtual time used by the simulation kernel.
//
// A VTime is an integer count of ticks. The size of a tick is the
// process-wide resolution, nanoseconds unless SetResolution picks another
// unit. The resolution can be chosen once and only before any time value has
// been produced; afterwards it is frozen.
package vtime

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// VTime is a point in (or a span of) simulated time, in resolution ticks.
type VTime int64

const maxTicks = math.MaxInt64

// Zero is the start of every simulation.
const Zero VTime = 0

// Max is the largest representable simulated time.
const Max VTime = maxTicks

// ErrPrecisionLoss is returned by exact conversions that cannot represent a
// value in whole ticks.
var ErrPrecisionLoss = errors.New("vtime: value is not a whole number of ticks")

// ErrResolutionLocked is returned by UseResolution when the resolution has
// already been set or frozen to another unit.
var ErrResolutionLocked = errors.New("vtime: resolution is locked")

var (
	resolutionMutex sync.Mutex
	resolutionSet   bool
	resolution      atomic.Int32
	frozen          atomic.Bool
)

func init() {
	resolution.Store(int32(NS))
}

// SetResolution selects the size of one tick. It can be called at most once
// per process, and never after a time value has been produced.
func SetResolution(u Unit) {
	if !u.CanBeResolution() {
		log.Panicf("vtime: %s cannot be used as resolution", u)
	}

	resolutionMutex.Lock()
	defer resolutionMutex.Unlock()

	if resolutionSet {
		log.Panic("vtime: resolution can only be set once")
	}

	if frozen.Load() {
		log.Panic("vtime: cannot change resolution after time values are in use")
	}

	resolution.Store(int32(u))
	resolutionSet = true
}

// UseResolution makes sure the resolution is u. Unlike SetResolution it
// succeeds when u is already in effect, and it returns an error instead of
// panicking when the resolution can no longer change.
func UseResolution(u Unit) error {
	if !u.CanBeResolution() {
		return fmt.Errorf("vtime: %s cannot be used as resolution", u)
	}

	resolutionMutex.Lock()
	defer resolutionMutex.Unlock()

	if Unit(resolution.Load()) == u {
		return nil
	}

	if resolutionSet || frozen.Load() {
		return fmt.Errorf("%w: want %s, have %s",
			ErrResolutionLocked, u, Unit(resolution.Load()))
	}

	resolution.Store(int32(u))
	resolutionSet = true

	return nil
}

// Resolution returns the size of one tick.
func Resolution() Unit {
	return Unit(resolution.Load())
}

// Freeze locks the resolution. Conversions and the engines call it; models
// rarely need to.
func Freeze() {
	if frozen.Load() {
		return
	}

	resolutionMutex.Lock()
	frozen.Store(true)
	resolutionMutex.Unlock()
}

// IsFrozen tells if the resolution can no longer be changed.
func IsFrozen() bool {
	return frozen.Load()
}

// FromInteger converts v units into ticks. Sub-tick remainders are
// truncated toward zero.
func FromInteger(v int64, u Unit) VTime {
	Freeze()

	num, den, ok := ratio(u, Resolution())
	if !ok {
		log.Panicf("vtime: %s is too coarse for resolution %s", u, Resolution())
	}

	if den != 1 {
		return VTime(v / den)
	}

	if v != 0 && (v > maxTicks/num || v < -maxTicks/num) {
		log.Panicf("vtime: %d%s overflows the time range", v, u)
	}

	return VTime(v * num)
}

// FromIntegerExact is FromInteger that refuses to drop sub-tick remainders.
func FromIntegerExact(v int64, u Unit) (VTime, error) {
	_, den, ok := ratio(u, Resolution())
	if ok && den != 1 && v%den != 0 {
		return 0, fmt.Errorf("%w: %d%s at resolution %s",
			ErrPrecisionLoss, v, u, Resolution())
	}

	return FromInteger(v, u), nil
}

// FromFloat converts v units into ticks, rounding to the nearest tick.
func FromFloat(v float64, u Unit) VTime {
	Freeze()

	if math.IsNaN(v) || math.IsInf(v, 0) {
		log.Panicf("vtime: invalid time value %v", v)
	}

	t := math.Round(v * factor(u, Resolution()))
	if t >= math.MaxInt64 || t <= math.MinInt64 {
		log.Panicf("vtime: %g%s overflows the time range", v, u)
	}

	return VTime(t)
}

// FromDuration converts a wall-clock duration into simulated time.
func FromDuration(d time.Duration) VTime {
	return FromInteger(int64(d), NS)
}

// Seconds returns v seconds.
func Seconds(v float64) VTime { return FromFloat(v, S) }

// Minutes returns v minutes.
func Minutes(v float64) VTime { return FromFloat(v, MIN) }

// Hours returns v hours.
func Hours(v float64) VTime { return FromFloat(v, H) }

// Days returns v days.
func Days(v float64) VTime { return FromFloat(v, D) }

// MilliSeconds returns v milliseconds.
func MilliSeconds(v int64) VTime { return FromInteger(v, MS) }

// MicroSeconds returns v microseconds.
func MicroSeconds(v int64) VTime { return FromInteger(v, US) }

// NanoSeconds returns v nanoseconds.
func NanoSeconds(v int64) VTime { return FromInteger(v, NS) }

// PicoSeconds returns v picoseconds.
func PicoSeconds(v int64) VTime { return FromInteger(v, PS) }

// FemtoSeconds returns v femtoseconds.
func FemtoSeconds(v int64) VTime { return FromInteger(v, FS) }

// ToFloat expresses t in the given unit.
func (t VTime) ToFloat(u Unit) float64 {
	return float64(t) / factor(u, Resolution())
}

// ToSeconds expresses t in seconds.
func (t VTime) ToSeconds() float64 {
	return t.ToFloat(S)
}

// ToInteger expresses t in the given unit, truncating toward zero.
func (t VTime) ToInteger(u Unit) int64 {
	num, den, ok := ratio(u, Resolution())
	if !ok {
		return int64(t.ToFloat(u))
	}

	if den != 1 {
		if int64(t) > maxTicks/den || int64(t) < -maxTicks/den {
			log.Panicf("vtime: %d ticks overflow when expressed in %s", t, u)
		}

		return int64(t) * den
	}

	return int64(t) / num
}

// Duration converts t into a wall-clock duration, saturating at the limits
// of time.Duration.
func (t VTime) Duration() time.Duration {
	ns := t.ToFloat(NS)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}

	if ns <= math.MinInt64 {
		return time.Duration(math.MinInt64)
	}

	return time.Duration(math.Round(ns))
}

// String prints the tick count with the resolution unit, e.g. "+1500ns".
func (t VTime) String() string {
	s := strconv.FormatInt(int64(t), 10)
	if t >= 0 {
		s = "+" + s
	}

	return s + Resolution().String()
}
