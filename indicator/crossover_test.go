package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/dnldd/crossover/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

func barsFromCloses(closes []float64) []shared.Bar {
	start := time.Date(2025, 2, 4, 15, 0, 0, 0, time.UTC)
	bars := make([]shared.Bar, 0, len(closes))
	for idx, c := range closes {
		bars = append(bars, shared.Bar{
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
			Date:      start.Add(time.Minute * 5 * time.Duration(idx)),
			Market:    "BTC/USD",
			Timeframe: shared.FiveMinute,
		})
	}

	return bars
}

func TestEMA(t *testing.T) {
	// Ensure non-positive periods are rejected.
	_, err := NewEMA(0)
	assert.Error(t, err)
	_, err = NewEMA(-2)
	assert.Error(t, err)

	ema, err := NewEMA(3)
	assert.NoError(t, err)
	assert.Equal(t, ema.Period(), 3)

	// Ensure the average is not ready until seeded.
	_, ready := ema.Update(2)
	assert.False(t, ready)
	_, ready = ema.Update(4)
	assert.False(t, ready)
	assert.False(t, ema.Ready())
	assert.Equal(t, ema.Value(), float64(0))

	// Ensure the seed is the simple moving average of the first period values.
	v, ready := ema.Update(6)
	assert.True(t, ready)
	assert.Equal(t, v, float64(4))

	// Ensure subsequent updates follow the recurrence with k = 2/(period+1).
	v, ready = ema.Update(8)
	assert.True(t, ready)
	assert.Equal(t, v, float64(6))
	assert.Equal(t, ema.Value(), float64(6))
}

func TestEMAPeriodOne(t *testing.T) {
	// Ensure a period of one tracks the latest price.
	ema, err := NewEMA(1)
	assert.NoError(t, err)

	for _, price := range []float64{5, 7, 3.5} {
		v, ready := ema.Update(price)
		assert.True(t, ready)
		assert.Equal(t, v, price)
	}
}

func TestNewSignalEngine(t *testing.T) {
	_, err := NewSignalEngine(4, 4)
	assert.Error(t, err)
	_, err = NewSignalEngine(5, 2)
	assert.Error(t, err)
	_, err = NewSignalEngine(0, 2)
	assert.Error(t, err)

	engine, err := NewSignalEngine(1, 2)
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestSignalEngineCrossover(t *testing.T) {
	engine, err := NewSignalEngine(2, 4)
	assert.NoError(t, err)

	bars := barsFromCloses([]float64{10, 10, 10, 10, 12, 14, 16, 9, 7, 5})
	want := []shared.Signal{
		shared.None, shared.None, shared.None, shared.None, // seeding, including the seed bar
		shared.Buy, // fast crosses above slow on the run-up
		shared.None, shared.None,
		shared.Sell, // the decline crosses back below
		shared.None, shared.None,
	}

	got := make([]shared.Signal, 0, len(bars))
	for idx := range bars {
		got = append(got, engine.Update(&bars[idx]))

		// Ensure the engine only reports initialized from the seed bar on.
		assert.Equal(t, engine.Initialized(), idx >= 3)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatching signals (-want +got):\n%s", diff)
	}

	state := engine.State()
	assert.True(t, state.Initialized)
	assert.Equal(t, state.SeedCount, 4)
	assert.True(t, state.Fast < state.Slow)
}

func TestSignalEngineSeedValues(t *testing.T) {
	engine, err := NewSignalEngine(2, 4)
	assert.NoError(t, err)

	bars := barsFromCloses([]float64{1, 2, 3, 4})
	for idx := range bars {
		engine.Update(&bars[idx])
	}

	// Ensure the fast average seeded on bar two and recurred after, while the slow
	// average seeded from the simple average of all four closes.
	state := engine.State()
	assert.Equal(t, state.Slow, float64(2.5))
	// fast: seed 1.5, then 3*2/3 + 1.5/3 = 2.5, then 4*2/3 + 2.5/3 = 3.5
	if math.Abs(state.Fast-3.5) > 1e-12 {
		t.Fatalf("expected fast ema of 3.5, got %v", state.Fast)
	}
}

func TestSignalEngineShortSeries(t *testing.T) {
	// Ensure series shorter than the slow period never produce a signal.
	engine, err := NewSignalEngine(3, 8)
	assert.NoError(t, err)

	bars := barsFromCloses([]float64{1, 50, 2, 80, 3, 90, 1})
	for idx := range bars {
		assert.Equal(t, engine.Update(&bars[idx]), shared.None)
	}
	assert.False(t, engine.State().Initialized)
	assert.Equal(t, engine.State().SeedCount, len(bars))
}

func TestSignalEngineFlatSeries(t *testing.T) {
	// Ensure equal averages never produce a signal.
	engine, err := NewSignalEngine(2, 3)
	assert.NoError(t, err)

	bars := barsFromCloses([]float64{5, 5, 5, 5, 5, 5})
	for idx := range bars {
		assert.Equal(t, engine.Update(&bars[idx]), shared.None)
	}
}

func TestSignalEngineDeterminism(t *testing.T) {
	closes := []float64{100, 101, 99, 98, 103, 107, 104, 99, 95, 97, 102, 108, 111, 104, 96}
	bars := barsFromCloses(closes)

	run := func() ([]shared.Signal, []shared.EmaState) {
		engine, err := NewSignalEngine(3, 6)
		assert.NoError(t, err)

		signals := make([]shared.Signal, 0, len(bars))
		states := make([]shared.EmaState, 0, len(bars))
		for idx := range bars {
			signals = append(signals, engine.Update(&bars[idx]))
			states = append(states, engine.State())
		}

		return signals, states
	}

	// Ensure replaying identical bars yields identical signals and state trajectories.
	signalsA, statesA := run()
	signalsB, statesB := run()
	if !cmp.Equal(signalsA, signalsB) {
		t.Fatalf("mismatching signals: %s", cmp.Diff(signalsA, signalsB))
	}
	if !cmp.Equal(statesA, statesB) {
		t.Fatalf("mismatching states: %s", cmp.Diff(statesA, statesB))
	}
}
