// Package simtime implements the quantized simulated clock used across the
// scheduler, the message bus, and the blocking service layer.
package simtime

import "math"

// DefaultRound is a small default quantum. Configuration loading does not
// use it: internal/config fills an omitted time_round with its own
// DefaultTimeRound.
const DefaultRound Time = 1e-4

// Time is a finite non-negative simulated instant, always compared and
// ordered modulo a configured rounding quantum.
type Time float64

// Zero is the start-of-run instant.
const Zero Time = 0

// Round snaps t to the nearest multiple of the quantum. A non-positive
// quantum disables snapping and returns t unchanged.
func (t Time) Round(quantum Time) Time {
	if quantum <= 0 {
		return t
	}
	steps := math.Round(float64(t) / float64(quantum))
	return Time(steps * float64(quantum))
}

// Add returns t+d.
func (t Time) Add(d Time) Time { return t + d }

// Sub returns t-d.
func (t Time) Sub(d Time) Time { return t - d }

// Seconds returns the value as a plain float64.
func (t Time) Seconds() float64 { return float64(t) }

// Equal reports whether t and u are within half a quantum of each other.
// A non-positive quantum requires exact equality.
func (t Time) Equal(u Time, quantum Time) bool {
	if quantum <= 0 {
		return t == u
	}
	return math.Abs(float64(t-u)) < float64(quantum)/2
}

// Less reports whether t precedes u by more than half a quantum.
func Less(t, u Time, quantum Time) bool {
	if t.Equal(u, quantum) {
		return false
	}
	return t < u
}

// Compare returns -1, 0, or 1 comparing t to u within the given quantum.
func Compare(t, u Time, quantum Time) int {
	if t.Equal(u, quantum) {
		return 0
	}
	if t < u {
		return -1
	}
	return 1
}

// Min returns the earlier of a finite, non-empty set of times.
func Min(times ...Time) (Time, bool) {
	if len(times) == 0 {
		return 0, false
	}
	min := times[0]
	for _, t := range times[1:] {
		if t < min {
			min = t
		}
	}
	return min, true
}
