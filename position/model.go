package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/crossover/shared"
)

const (
	// percentTolerance absorbs floating point noise when comparing percent moves against
	// stop loss and take profit thresholds.
	percentTolerance = 1e-9
)

// EventKind represents the kind of a position event.
type EventKind int

const (
	Opened EventKind = iota
	Closed
)

// String stringifies the provided event kind.
func (k EventKind) String() string {
	switch k {
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event represents a position being opened or closed.
type Event struct {
	Kind EventKind
	// Position is a snapshot of the position as opened or as it was before closing.
	Position Position
	// Trade is the resulting trade, set for closed events.
	Trade *Trade
}

// Side returns the order side that executes the event.
func (e *Event) Side() shared.OrderSide {
	if e.Kind == Opened {
		return shared.EntrySide(e.Position.Direction)
	}

	return shared.ExitSide(e.Position.Direction)
}

// ModelConfig represents the position and risk model configuration.
type ModelConfig struct {
	// Quantity is the position size per trade.
	Quantity float64
	// StopLossPercent closes positions moving this percent against them, zero disables it.
	StopLossPercent float64
	// TakeProfitPercent closes positions moving this percent in their favour, zero disables it.
	TakeProfitPercent float64
	// AllowShort opens short positions on sell signals while flat.
	AllowShort bool
}

// Validate asserts the config sane inputs.
func (cfg *ModelConfig) Validate() error {
	var errs error

	if !(cfg.Quantity > 0) {
		errs = errors.Join(errs, fmt.Errorf("quantity must be positive, got %f", cfg.Quantity))
	}
	if cfg.StopLossPercent < 0 || cfg.StopLossPercent >= 100 {
		errs = errors.Join(errs, fmt.Errorf("stop loss percent must be within (0, 100), got %f",
			cfg.StopLossPercent))
	}
	if cfg.TakeProfitPercent < 0 || cfg.TakeProfitPercent >= 100 {
		errs = errors.Join(errs, fmt.Errorf("take profit percent must be within (0, 100), got %f",
			cfg.TakeProfitPercent))
	}

	return errs
}

// NewModelConfig derives the model configuration of the provided strategy.
func NewModelConfig(strategy *shared.StrategyConfig) ModelConfig {
	return ModelConfig{
		Quantity:          strategy.Quantity,
		StopLossPercent:   strategy.StopLossPercent,
		TakeProfitPercent: strategy.TakeProfitPercent,
		AllowShort:        strategy.AllowShort,
	}
}

// Snapshot represents a restorable copy of the model's position state.
type Snapshot struct {
	position *Position
}

// Model tracks at most one open position and applies signal and risk driven exits.
// It is not safe for concurrent use, a single owner serializes calls.
type Model struct {
	cfg      ModelConfig
	position *Position
}

// NewModel initializes a flat position model.
func NewModel(cfg ModelConfig) (*Model, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Model{cfg: cfg}, nil
}

// IsOpen reports whether a position is open.
func (m *Model) IsOpen() bool {
	return m.position != nil
}

// Position returns a copy of the open position, nil when flat.
func (m *Model) Position() *Position {
	if m.position == nil {
		return nil
	}

	pos := *m.position
	return &pos
}

// Unrealized returns the unrealized profit or loss of the open position at the provided
// price, zero when flat.
func (m *Model) Unrealized(price float64) float64 {
	if m.position == nil {
		return 0
	}

	return m.position.Unrealized(price)
}

// open opens a position in the provided direction at the bar's close.
func (m *Model) open(direction shared.Direction, bar *shared.Bar) (*Event, error) {
	pos, err := NewPosition(direction, m.cfg.Quantity, bar)
	if err != nil {
		return nil, fmt.Errorf("opening %s position: %w", direction.String(), err)
	}

	m.position = pos

	return &Event{Kind: Opened, Position: *pos}, nil
}

// close closes the open position at the provided price.
func (m *Model) close(price float64, date time.Time, reason shared.ExitReason) *Event {
	before := *m.position
	trade := m.position.ClosePosition(price, date, reason)
	m.position = nil

	return &Event{Kind: Closed, Position: before, Trade: &trade}
}

// OnSignal applies the provided signal at the bar's close. Sell signals while flat are
// ignored unless shorts are allowed. Entries are skipped on bars without a positive
// close since no position can be sized against them.
func (m *Model) OnSignal(signal shared.Signal, bar *shared.Bar) (*Event, error) {
	switch {
	case signal == shared.None:
		return nil, nil

	case m.position == nil && !(bar.Close > 0):
		return nil, nil

	case m.position == nil:
		switch signal {
		case shared.Buy:
			return m.open(shared.Long, bar)
		case shared.Sell:
			if !m.cfg.AllowShort {
				return nil, nil
			}
			return m.open(shared.Short, bar)
		}

	case m.position.Direction == shared.Long && signal == shared.Sell,
		m.position.Direction == shared.Short && signal == shared.Buy:
		return m.close(bar.Close, bar.Date, shared.SignalExit), nil
	}

	return nil, nil
}

// OnBar checks the open position against the stop loss and take profit thresholds at
// the bar's close, closing it when either is crossed.
func (m *Model) OnBar(bar *shared.Bar) *Event {
	if m.position == nil {
		return nil
	}

	move, err := m.position.UpdatePNLPercent(bar.Close)
	if err != nil {
		return nil
	}

	switch {
	case m.cfg.StopLossPercent > 0 && move <= -m.cfg.StopLossPercent+percentTolerance:
		return m.close(bar.Close, bar.Date, shared.StopLossExit)
	case m.cfg.TakeProfitPercent > 0 && move >= m.cfg.TakeProfitPercent-percentTolerance:
		return m.close(bar.Close, bar.Date, shared.TakeProfitExit)
	default:
		return nil
	}
}

// Step applies a bar and its signal: the risk check runs first so stop loss and take
// profit exits take priority over signal exits on the same bar.
func (m *Model) Step(signal shared.Signal, bar *shared.Bar) ([]Event, error) {
	var events []Event

	riskEvent := m.OnBar(bar)
	if riskEvent != nil {
		events = append(events, *riskEvent)
	}

	signalEvent, err := m.OnSignal(signal, bar)
	if err != nil {
		return events, err
	}
	if signalEvent != nil {
		events = append(events, *signalEvent)
	}

	return events, nil
}

// Close force closes the open position at the bar's close with the provided reason.
func (m *Model) Close(bar *shared.Bar, reason shared.ExitReason) *Event {
	if m.position == nil {
		return nil
	}

	return m.close(bar.Close, bar.Date, reason)
}

// SetEntryPrice replaces the entry price of the open position, used when the broker
// reports a fill price that differs from the signal bar's close.
func (m *Model) SetEntryPrice(price float64) {
	if m.position == nil || !(price > 0) {
		return
	}

	m.position.EntryPrice = price
}

// Snapshot captures the model's position state.
func (m *Model) Snapshot() Snapshot {
	if m.position == nil {
		return Snapshot{}
	}

	pos := *m.position
	return Snapshot{position: &pos}
}

// Restore resets the model's position state to the provided snapshot.
func (m *Model) Restore(s Snapshot) {
	if s.position == nil {
		m.position = nil
		return
	}

	pos := *s.position
	m.position = &pos
}
