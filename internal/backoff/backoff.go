// Package backoff computes delays between retry attempts.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Strategy turns an attempt number into a delay.
type Strategy interface {
	Delay(attempt int, s Settings) time.Duration
}

// Settings parameterise a Strategy. A zero Initial disables waiting entirely.
type Settings struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Exponential grows the delay by Multiplier per attempt and adds up to
// Jitter*delay of uniform noise, never exceeding Max.
type Exponential struct{}

func (Exponential) Delay(attempt int, s Settings) time.Duration {
	if s.Initial <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	// 2^30 * initial already overflows any sane cap
	if attempt > 30 {
		attempt = 30
	}

	mult := s.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(s.Initial) * pow(mult, attempt))
	if d < 0 || (s.Max > 0 && d > s.Max) {
		d = s.Max
	}

	if j := clamp(s.Jitter); j > 0 {
		d += time.Duration(float64(d) * j * rand.Float64())
		if s.Max > 0 && d > s.Max {
			d = s.Max
		}
	}
	return d
}

// Constant always waits Initial.
type Constant struct{}

func (Constant) Delay(_ int, s Settings) time.Duration {
	return s.Initial
}

// Sleep waits d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clamp(j float64) float64 {
	if j < 0 {
		return 0
	}
	if j > 1 {
		return 1
	}
	return j
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
