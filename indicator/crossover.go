package indicator

import (
	"fmt"

	"github.com/dnldd/crossover/shared"
)

// SignalEngine emits crossover signals from a fast and a slow EMA over a stream of bars.
// It is not safe for concurrent use, a single owner serializes updates.
type SignalEngine struct {
	fast      *EMA
	slow      *EMA
	prevDelta float64
	hasPrev   bool
	seedCount int
}

// NewSignalEngine initializes a signal engine for the provided periods.
func NewSignalEngine(fastPeriod int, slowPeriod int) (*SignalEngine, error) {
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("fast period (%d) must be less than slow period (%d)",
			fastPeriod, slowPeriod)
	}

	fast, err := NewEMA(fastPeriod)
	if err != nil {
		return nil, fmt.Errorf("creating fast ema: %w", err)
	}

	slow, err := NewEMA(slowPeriod)
	if err != nil {
		return nil, fmt.Errorf("creating slow ema: %w", err)
	}

	return &SignalEngine{fast: fast, slow: slow}, nil
}

// Update applies the provided bar's close and returns the resulting signal. No signal is
// emitted until the slow average is seeded, including on the seed bar itself.
func (s *SignalEngine) Update(bar *shared.Bar) shared.Signal {
	if !s.slow.Ready() {
		s.seedCount++
	}

	fast, _ := s.fast.Update(bar.Close)
	slow, ready := s.slow.Update(bar.Close)
	if !ready {
		return shared.None
	}

	delta := fast - slow
	if !s.hasPrev {
		s.prevDelta = delta
		s.hasPrev = true
		return shared.None
	}

	prev := s.prevDelta
	s.prevDelta = delta

	switch {
	case prev <= 0 && delta > 0:
		return shared.Buy
	case prev >= 0 && delta < 0:
		return shared.Sell
	default:
		return shared.None
	}
}

// State returns a snapshot of the engine state.
func (s *SignalEngine) State() shared.EmaState {
	return shared.EmaState{
		Fast:        s.fast.Value(),
		Slow:        s.slow.Value(),
		Initialized: s.hasPrev,
		SeedCount:   s.seedCount,
	}
}

// Initialized reports whether the engine has seeded both averages.
func (s *SignalEngine) Initialized() bool {
	return s.hasPrev
}
