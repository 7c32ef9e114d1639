package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Scheduler computes retry delays for transient failures. Implementations are
// stateless: the delay is a pure function of the attempt number and the
// policy parameters, monotonically non-decreasing up to the cap.
type Scheduler interface {
	NextDelay(attempt int) time.Duration
}

// Fixed returns the same delay for every attempt.
type Fixed struct {
	Delay time.Duration
}

func (f Fixed) NextDelay(int) time.Duration {
	return f.Delay
}

// Exponential grows the delay geometrically from Base by Multiplier, capped
// at Max. With Jitter set, up to JitterFraction of the computed delay is
// added randomly to spread reconnect storms.
type Exponential struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     bool
}

const jitterFraction = 0.2

func (e Exponential) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	multiplier := e.Multiplier
	if multiplier <= 1 {
		multiplier = 2
	}

	delay := float64(e.Base) * math.Pow(multiplier, float64(attempt))
	if max := float64(e.Max); e.Max > 0 && delay > max {
		delay = max
	}
	if e.Jitter {
		delay += rand.Float64() * delay * jitterFraction
		if max := float64(e.Max); e.Max > 0 && delay > max {
			delay = max
		}
	}
	return time.Duration(delay)
}
