package backtest

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/dnldd/crossover/shared"
	"github.com/tidwall/gjson"
)

// HistoricData represents historic market data for a single market, keyed by timeframe.
// It is read-only once loaded and safe for concurrent use.
type HistoricData struct {
	market     string
	bars       map[shared.Timeframe][]shared.Bar
	timeframes []shared.Timeframe
	startTime  time.Time
	endTime    time.Time
}

// Ensure historic data satisfies the market fetcher interface.
var _ shared.MarketFetcher = (*HistoricData)(nil)

// loadHistoricData loads the historic data bytes from the provided file path.
func loadHistoricData(filepath string) (*gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading historic data from file with path '%s': %w", filepath, err)
	}

	if !gjson.ValidBytes(readb) {
		return nil, fmt.Errorf("historic data in '%s' is not valid json", filepath)
	}

	b := gjson.ParseBytes(readb)

	return &b, nil
}

// NewHistoricData loads the historic data at the provided file path. The file holds the
// market name and a bar array per timeframe in the broker bar format:
//
//	{"market": "BTC/USD", "5Min": [{"t": "...", "o": 1, "h": 1, "l": 1, "c": 1, "v": 1}]}
func NewHistoricData(filepath string) (*HistoricData, error) {
	b, err := loadHistoricData(filepath)
	if err != nil {
		return nil, fmt.Errorf("loading historic data: %w", err)
	}

	market := b.Get("market").String()
	if market == "" {
		return nil, fmt.Errorf("historic data in '%s' has no market", filepath)
	}

	historicData := HistoricData{
		market: market,
		bars:   make(map[shared.Timeframe][]shared.Bar),
	}

	timeframes := []shared.Timeframe{shared.OneMinute, shared.FiveMinute, shared.FifteenMinute,
		shared.ThirtyMinute, shared.OneHour, shared.FourHour, shared.OneDay}
	for idx := range timeframes {
		timeframe := timeframes[idx]

		data := b.Get(timeframe.String()).Array()
		if len(data) == 0 {
			continue
		}

		bars, err := shared.ParseBars(data, market, timeframe)
		if err != nil {
			return nil, fmt.Errorf("parsing %s bars: %w", timeframe.String(), err)
		}

		slices.SortFunc(bars, func(a, b shared.Bar) int {
			return a.Date.Compare(b.Date)
		})

		err = shared.ValidateSeries(bars)
		if err != nil {
			return nil, fmt.Errorf("validating %s bars: %w", timeframe.String(), err)
		}

		historicData.bars[timeframe] = bars
		historicData.timeframes = append(historicData.timeframes, timeframe)

		first := bars[0].Date
		last := bars[len(bars)-1].Date
		if historicData.startTime.IsZero() || first.Before(historicData.startTime) {
			historicData.startTime = first
		}
		if last.After(historicData.endTime) {
			historicData.endTime = last
		}
	}

	if len(historicData.timeframes) == 0 {
		return nil, fmt.Errorf("historic data in '%s' has no bars", filepath)
	}

	return &historicData, nil
}

// Bars returns a copy of the loaded bars for the provided timeframe.
func (h *HistoricData) Bars(timeframe shared.Timeframe) []shared.Bar {
	return slices.Clone(h.bars[timeframe])
}

// Timeframes returns the timeframes with loaded bars.
func (h *HistoricData) Timeframes() []shared.Timeframe {
	return slices.Clone(h.timeframes)
}

// FetchBars returns the loaded bars of the provided timeframe within the inclusive range.
// A zero start or end leaves that side of the range open.
func (h *HistoricData) FetchBars(ctx context.Context, symbol string, timeframe shared.Timeframe, start time.Time, end time.Time) ([]shared.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if symbol != h.market {
		return nil, &shared.MarketDataError{
			Op:  "fetching historic bars",
			Err: fmt.Errorf("no historic data for %s, only %s is loaded", symbol, h.market),
		}
	}

	bars, ok := h.bars[timeframe]
	if !ok {
		return nil, &shared.MarketDataError{
			Op:  "fetching historic bars",
			Err: fmt.Errorf("no %s historic data for %s", timeframe.String(), symbol),
		}
	}

	window := selectRange(bars, start, end)

	return slices.Clone(window), nil
}

// FetchStartTime returns the start time of the loaded historical data.
func (h *HistoricData) FetchStartTime() time.Time {
	return h.startTime
}

// FetchEndTime returns the end time of the loaded historical data.
func (h *HistoricData) FetchEndTime() time.Time {
	return h.endTime
}

// FetchMarket returns the backtest market.
func (h *HistoricData) FetchMarket() string {
	return h.market
}
