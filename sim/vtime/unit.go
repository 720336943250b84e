package vtime

import (
	"errors"
	"fmt"
	"strings"
)

// Unit is a unit of simulated time.
type Unit int

// Supported units, from the coarsest to the finest.
const (
	D Unit = iota
	H
	MIN
	S
	MS
	US
	NS
	PS
	FS
)

// ErrUnknownUnit is returned when a unit name cannot be parsed.
var ErrUnknownUnit = errors.New("vtime: unknown time unit")

// A unit spans mult * 10^exp seconds.
type unitScale struct {
	name string
	mult int64
	exp  int
}

var scales = [...]unitScale{
	D:   {"d", 86400, 0},
	H:   {"h", 3600, 0},
	MIN: {"min", 60, 0},
	S:   {"s", 1, 0},
	MS:  {"ms", 1, -3},
	US:  {"us", 1, -6},
	NS:  {"ns", 1, -9},
	PS:  {"ps", 1, -12},
	FS:  {"fs", 1, -15},
}

func (u Unit) valid() bool {
	return u >= D && u <= FS
}

func (u Unit) scale() unitScale {
	if !u.valid() {
		panic(fmt.Sprintf("vtime: invalid unit %d", int(u)))
	}

	return scales[u]
}

// String returns the short name of the unit, e.g. "ns".
func (u Unit) String() string {
	if !u.valid() {
		return fmt.Sprintf("Unit(%d)", int(u))
	}

	return scales[u].name
}

// CanBeResolution tells if the unit can be used as the tick size. Only
// decimal fractions of a second qualify.
func (u Unit) CanBeResolution() bool {
	return u >= S && u <= FS
}

// ParseUnit converts a short unit name (case-insensitive) into a Unit.
func ParseUnit(s string) (Unit, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for u, sc := range scales {
		if sc.name == name {
			return Unit(u), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// ratio returns how many ticks of resolution r a unit u spans, as num/den.
// Either num or den is 1. ok is false when num does not fit in an int64.
func ratio(u, r Unit) (num, den int64, ok bool) {
	us := u.scale()
	rs := r.scale()

	diff := us.exp - rs.exp
	if diff < 0 {
		return 1, pow10(-diff), true
	}

	num = us.mult
	for i := 0; i < diff; i++ {
		if num > maxTicks/10 {
			return 0, 1, false
		}
		num *= 10
	}

	return num, 1, true
}

// factor is ratio as a float64, always finite.
func factor(u, r Unit) float64 {
	us := u.scale()
	rs := r.scale()

	f := float64(us.mult)
	diff := us.exp - rs.exp
	for ; diff > 0; diff-- {
		f *= 10
	}
	for ; diff < 0; diff++ {
		f /= 10
	}

	return f
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}

	return v
}
