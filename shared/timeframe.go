package shared

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DateLayout is the format layout for parsing dates.
	DateLayout = "2006-01-02 15:04:05"
	// minPollInterval is the shortest polling interval allowed for live strategies.
	minPollInterval = time.Second * 5
	// maxPollInterval is the longest polling interval allowed for live strategies.
	maxPollInterval = time.Second * 60
	// pollDivisor splits a bar duration into polling intervals.
	pollDivisor = 5
)

// Timeframe represents the market data time period.
type Timeframe int

const (
	OneMinute Timeframe = iota
	FiveMinute
	FifteenMinute
	ThirtyMinute
	OneHour
	FourHour
	OneDay
)

// String stringifies the provided timeframe using the broker notation.
func (t Timeframe) String() string {
	switch t {
	case OneMinute:
		return "1Min"
	case FiveMinute:
		return "5Min"
	case FifteenMinute:
		return "15Min"
	case ThirtyMinute:
		return "30Min"
	case OneHour:
		return "1Hour"
	case FourHour:
		return "4Hour"
	case OneDay:
		return "1Day"
	default:
		return "unknown"
	}
}

// Duration returns the length of a single bar of the timeframe.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case OneMinute:
		return time.Minute
	case FiveMinute:
		return time.Minute * 5
	case FifteenMinute:
		return time.Minute * 15
	case ThirtyMinute:
		return time.Minute * 30
	case OneHour:
		return time.Hour
	case FourHour:
		return time.Hour * 4
	case OneDay:
		return time.Hour * 24
	default:
		return 0
	}
}

// PollInterval returns how often a live strategy on the timeframe checks for new bars,
// a fifth of the bar duration bounded between 5 and 60 seconds.
func (t Timeframe) PollInterval() time.Duration {
	interval := t.Duration() / pollDivisor
	switch {
	case interval < minPollInterval:
		return minPollInterval
	case interval > maxPollInterval:
		return maxPollInterval
	default:
		return interval
	}
}

// ParseTimeframe parses the provided timeframe string, case insensitive.
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1min", "1m":
		return OneMinute, nil
	case "5min", "5m":
		return FiveMinute, nil
	case "15min", "15m":
		return FifteenMinute, nil
	case "30min", "30m":
		return ThirtyMinute, nil
	case "1hour", "1h":
		return OneHour, nil
	case "4hour", "4h":
		return FourHour, nil
	case "1day", "1d":
		return OneDay, nil
	default:
		return 0, fmt.Errorf("unknown timeframe provided: %q", s)
	}
}

// UnmarshalYAML decodes a timeframe from its string notation.
func (t *Timeframe) UnmarshalYAML(value *yaml.Node) error {
	var s string
	err := value.Decode(&s)
	if err != nil {
		return err
	}

	tf, err := ParseTimeframe(s)
	if err != nil {
		return err
	}

	*t = tf
	return nil
}

// MarshalText encodes the timeframe in its string notation.
func (t Timeframe) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
