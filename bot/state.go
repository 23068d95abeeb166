package bot

import (
	"time"

	"github.com/dnldd/crossover/metrics"
	"github.com/dnldd/crossover/position"
	"github.com/dnldd/crossover/shared"
)

// State represents the lifecycle state of a bot run.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Failed
)

// String stringifies the provided state.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state in its string form.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a run in the state owns its strategy key.
func (s State) Active() bool {
	return s == Starting || s == Running || s == Stopping
}

// Status represents a read-only snapshot of a bot run.
type Status struct {
	Key              string             `json:"key"`
	RunID            string             `json:"runId"`
	Symbol           string             `json:"symbol"`
	Timeframe        shared.Timeframe   `json:"timeframe"`
	State            State              `json:"state"`
	StartedAt        time.Time          `json:"startedAt"`
	StoppedAt        time.Time          `json:"stoppedAt"`
	LastBarSeen      time.Time          `json:"lastBarSeen"`
	LastCheck        time.Time          `json:"lastCheck"`
	NextCheck        time.Time          `json:"nextCheck"`
	EmaState         shared.EmaState    `json:"emaState"`
	Position         *position.Position `json:"position"`
	SignalsGenerated int64              `json:"signalsGenerated"`
	OrdersPlaced     int64              `json:"ordersPlaced"`
	OrdersFailed     int64              `json:"ordersFailed"`
	LastSignal       shared.Signal      `json:"lastSignal"`
	LastSignalTime   time.Time          `json:"lastSignalTime"`
	CurrentPrice     float64            `json:"currentPrice"`
	LastError        string             `json:"lastError,omitempty"`
	Trades           []position.Trade   `json:"trades"`
	Metrics          metrics.Summary    `json:"metrics"`
}
