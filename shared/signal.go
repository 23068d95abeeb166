package shared

import "time"

// Signal represents a crossover signal emitted for a bar.
type Signal int

const (
	None Signal = iota
	Buy
	Sell
)

// String stringifies the provided signal.
func (s Signal) String() string {
	switch s {
	case None:
		return "none"
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// EmaState represents the state of a crossover signal engine.
type EmaState struct {
	Fast        float64 `json:"fast"`
	Slow        float64 `json:"slow"`
	Initialized bool    `json:"initialized"`
	SeedCount   int     `json:"seedCount"`
}

// EquityPoint represents the value of a strategy at a point in time.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// MarshalText encodes the signal in its string form.
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
