package shared

import (
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
)

// Bar represents a unit OHLCV bar for a market.
type Bar struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Date   time.Time `json:"date"`

	// Metadata.
	Market    string    `json:"market"`
	Timeframe Timeframe `json:"timeframe"`
}

// Validate asserts the bar holds non-negative finite prices and a timestamp.
func (b *Bar) Validate() error {
	values := []struct {
		name  string
		value float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
		{"volume", b.Volume},
	}

	for idx := range values {
		v := values[idx].value
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("invalid %s value for %s bar at %s: %f",
				values[idx].name, b.Market, b.Date.Format(time.RFC3339), v)
		}
	}

	if b.Date.IsZero() {
		return fmt.Errorf("%s bar has no timestamp", b.Market)
	}

	return nil
}

// ValidateSeries asserts the provided bars are valid and strictly increasing in time.
func ValidateSeries(bars []Bar) error {
	for idx := range bars {
		err := bars[idx].Validate()
		if err != nil {
			return err
		}

		if idx > 0 && !bars[idx].Date.After(bars[idx-1].Date) {
			return fmt.Errorf("bar at index %d (%s) is not after bar at index %d (%s)",
				idx, bars[idx].Date.Format(time.RFC3339), idx-1,
				bars[idx-1].Date.Format(time.RFC3339))
		}
	}

	return nil
}

// ParseBars parses bars in the broker bar format ({t,o,h,l,c,v}) from the provided json data.
func ParseBars(data []gjson.Result, market string, timeframe Timeframe) ([]Bar, error) {
	bars := make([]Bar, 0, len(data))

	for idx := range data {
		dt, err := time.Parse(time.RFC3339, data[idx].Get("t").String())
		if err != nil {
			return nil, fmt.Errorf("parsing bar date: %w", err)
		}

		bar := Bar{
			Open:      data[idx].Get("o").Float(),
			High:      data[idx].Get("h").Float(),
			Low:       data[idx].Get("l").Float(),
			Close:     data[idx].Get("c").Float(),
			Volume:    data[idx].Get("v").Float(),
			Date:      dt.UTC(),
			Market:    market,
			Timeframe: timeframe,
		}

		bars = append(bars, bar)
	}

	return bars, nil
}
