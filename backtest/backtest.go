package backtest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dnldd/crossover/indicator"
	"github.com/dnldd/crossover/metrics"
	"github.com/dnldd/crossover/position"
	"github.com/dnldd/crossover/shared"
)

// Config represents the configuration of a single backtest.
type Config struct {
	// Strategy is the evaluated strategy.
	Strategy shared.StrategyConfig
	// InitialCapital is the starting equity.
	InitialCapital float64
	// Start optionally bounds the evaluated bars from below, inclusive.
	Start time.Time
	// End optionally bounds the evaluated bars from above, inclusive.
	End time.Time
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	err := cfg.Strategy.Validate()
	if err != nil {
		return err
	}

	if !(cfg.InitialCapital > 0) {
		return fmt.Errorf("%w: initial capital must be positive, got %f",
			shared.ErrInvalidConfig, cfg.InitialCapital)
	}

	if !cfg.Start.IsZero() && !cfg.End.IsZero() && !cfg.End.After(cfg.Start) {
		return fmt.Errorf("%w: end date (%s) must be after start date (%s)", shared.ErrInvalidRange,
			cfg.End.Format(time.RFC3339), cfg.Start.Format(time.RFC3339))
	}

	return nil
}

// Result represents the outcome of a backtest. Results are read-only once created.
type Result struct {
	Strategy        shared.StrategyConfig `json:"strategy"`
	Start           time.Time             `json:"start"`
	End             time.Time             `json:"end"`
	Bars            int                   `json:"bars"`
	InitialCapital  float64               `json:"initialCapital"`
	FinalCapital    float64               `json:"finalCapital"`
	TotalPNL        float64               `json:"totalPnl"`
	TotalPNLPercent float64               `json:"totalPnlPercent"`
	Trades          []position.Trade      `json:"trades"`
	Equity          []shared.EquityPoint  `json:"equity"`
	Metrics         metrics.Summary       `json:"metrics"`
}

// selectRange returns the bars within the provided inclusive range, zero bounds are open.
func selectRange(bars []shared.Bar, start time.Time, end time.Time) []shared.Bar {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(bars), func(i int) bool {
			return !bars[i].Date.Before(start)
		})
	}

	hi := len(bars)
	if !end.IsZero() {
		hi = sort.Search(len(bars), func(i int) bool {
			return bars[i].Date.After(end)
		})
	}

	if lo >= hi {
		return nil
	}

	return bars[lo:hi]
}

// Run replays the provided bars through the strategy's signal engine and position model,
// returning the resulting trade ledger, equity curve and metrics. Run is a pure function
// of its inputs.
func Run(bars []shared.Bar, cfg *Config) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: backtest config cannot be nil", shared.ErrInvalidConfig)
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars provided for backtesting", shared.ErrInvalidRange)
	}

	err = shared.ValidateSeries(bars)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidRange, err)
	}

	window := selectRange(bars, cfg.Start, cfg.End)
	if len(window) == 0 {
		return nil, fmt.Errorf("%w: no bars between %s and %s", shared.ErrInvalidRange,
			cfg.Start.Format(time.RFC3339), cfg.End.Format(time.RFC3339))
	}

	if len(window) < cfg.Strategy.SlowPeriod {
		return nil, fmt.Errorf("%w: %d bars provided, at least %d required", shared.ErrInsufficientHistory,
			len(window), cfg.Strategy.SlowPeriod)
	}

	engine, err := indicator.NewSignalEngine(cfg.Strategy.FastPeriod, cfg.Strategy.SlowPeriod)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}

	model, err := position.NewModel(position.NewModelConfig(&cfg.Strategy))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}

	trades := make([]position.Trade, 0)
	equity := make([]shared.EquityPoint, 0, len(window))
	var realized float64

	record := func(events []position.Event) {
		for idx := range events {
			if events[idx].Kind == position.Closed {
				trades = append(trades, *events[idx].Trade)
				realized += events[idx].Trade.PNL
			}
		}
	}

	for idx := range window {
		bar := &window[idx]

		signal := engine.Update(bar)
		events, err := model.Step(signal, bar)
		if err != nil {
			return nil, fmt.Errorf("applying bar at %s: %w", bar.Date.Format(time.RFC3339), err)
		}
		record(events)

		if idx == len(window)-1 {
			event := model.Close(bar, shared.EndOfDataExit)
			if event != nil {
				record([]position.Event{*event})
			}
		}

		equity = append(equity, shared.EquityPoint{
			Date:   bar.Date,
			Equity: cfg.InitialCapital + realized + model.Unrealized(bar.Close),
		})
	}

	finalCapital := cfg.InitialCapital + realized
	result := &Result{
		Strategy:        cfg.Strategy,
		Start:           window[0].Date,
		End:             window[len(window)-1].Date,
		Bars:            len(window),
		InitialCapital:  cfg.InitialCapital,
		FinalCapital:    finalCapital,
		TotalPNL:        realized,
		TotalPNLPercent: (realized / cfg.InitialCapital) * 100,
		Trades:          trades,
		Equity:          equity,
		Metrics:         metrics.Calculate(trades, equity),
	}

	return result, nil
}

// IsInputError reports whether the provided error stems from invalid backtest inputs
// rather than an evaluation failure.
func IsInputError(err error) bool {
	return errors.Is(err, shared.ErrInvalidConfig) || errors.Is(err, shared.ErrInvalidRange) ||
		errors.Is(err, shared.ErrInsufficientHistory)
}
