package indicator

import "fmt"

// EMA represents an exponential moving average seeded with the simple moving average of
// its first period values.
type EMA struct {
	period int
	k      float64
	sum    float64
	count  int
	value  float64
}

// NewEMA initializes an EMA for the provided period.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema period must be positive, got %d", period)
	}

	return &EMA{
		period: period,
		k:      2 / (float64(period) + 1),
	}, nil
}

// Update applies the provided price and reports whether the average is seeded.
func (e *EMA) Update(price float64) (float64, bool) {
	if e.count < e.period {
		e.sum += price
		e.count++
		if e.count < e.period {
			return 0, false
		}

		e.value = e.sum / float64(e.period)
		return e.value, true
	}

	// Conversions keep the products unfused so results match across architectures.
	e.value = float64(price*e.k) + float64(e.value*(1-e.k))
	return e.value, true
}

// Value returns the current average, zero until seeded.
func (e *EMA) Value() float64 {
	return e.value
}

// Ready reports whether the average has been seeded.
func (e *EMA) Ready() bool {
	return e.count >= e.period
}

// Period returns the period of the average.
func (e *EMA) Period() int {
	return e.period
}
