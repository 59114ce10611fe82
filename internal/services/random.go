package services

import "math/rand/v2"

// Rand is the randomness source for activities. Tests inject a scripted one.
type Rand interface {
	// Int64N returns a value in [0, n).
	Int64N(n int64) int64
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
}

type defaultRand struct{}

func (defaultRand) Int64N(n int64) int64 { return rand.Int64N(n) }
func (defaultRand) Float64() float64     { return rand.Float64() }

// NewRand returns the process-wide random source.
func NewRand() Rand {
	return defaultRand{}
}

// between returns a value in [lo, hi], inclusive on both ends.
func between(r Rand, lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Int64N(hi-lo+1)
}
