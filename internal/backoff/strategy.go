// Package backoff computes the delay before a retry attempt.
package backoff

import (
	"math/rand"
	"time"
)

// maxExponent keeps base<<exponent from overflowing time.Duration.
const maxExponent = 30

// Strategy returns the delay to wait after the given failed attempt
// (1-indexed) before issuing the next one.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay after every failed attempt: Base, 2*Base,
// 4*Base, ... A zero Max leaves the delay uncapped.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// Delay implements Strategy.
func (s Exponential) Delay(attempt int) time.Duration {
	return exponential(s.Base, s.Max, attempt)
}

// ExponentialJitter adds up to Jitter*delay of random spread on top of Exponential.
type ExponentialJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay implements Strategy.
func (s ExponentialJitter) Delay(attempt int) time.Duration {
	d := exponential(s.Base, s.Max, attempt)
	jitter := clampJitter(s.Jitter)
	if jitter > 0 {
		d += time.Duration(float64(d) * jitter * rand.Float64())
		if s.Max > 0 && d > s.Max {
			d = s.Max
		}
	}
	return d
}

// Default is the pipeline policy: 1s, 2s, 4s, ... without jitter or cap.
func Default() Strategy {
	return Exponential{Base: time.Second}
}

func exponential(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := attempt - 1
	if exp > maxExponent {
		exp = maxExponent
	}
	d := base << uint(exp)
	if d < 0 || (max > 0 && d > max) {
		d = max
	}
	return d
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}
