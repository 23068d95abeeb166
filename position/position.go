package position

import (
	"fmt"
	"time"

	"github.com/dnldd/crossover/shared"
	"github.com/google/uuid"
)

// Position represents an open market position.
type Position struct {
	ID         string           `json:"id"`
	Market     string           `json:"market"`
	Direction  shared.Direction `json:"direction"`
	EntryPrice float64          `json:"entryPrice"`
	Quantity   float64          `json:"quantity"`
	OpenedOn   time.Time        `json:"openedOn"`
	PNLPercent float64          `json:"pnlPercent"`
}

// NewPosition initializes a new position entered at the provided bar's close.
func NewPosition(direction shared.Direction, quantity float64, bar *shared.Bar) (*Position, error) {
	if bar == nil {
		return nil, fmt.Errorf("entry bar cannot be nil")
	}
	if !(quantity > 0) {
		return nil, fmt.Errorf("position quantity must be positive, got %f", quantity)
	}
	if !(bar.Close > 0) {
		return nil, fmt.Errorf("entry price must be positive, got %f", bar.Close)
	}

	pos := &Position{
		ID:         uuid.New().String(),
		Market:     bar.Market,
		Direction:  direction,
		EntryPrice: bar.Close,
		Quantity:   quantity,
		OpenedOn:   bar.Date,
	}

	return pos, nil
}

// UpdatePNLPercent updates the percentage change of the position given the current price.
func (p *Position) UpdatePNLPercent(currentPrice float64) (float64, error) {
	switch p.Direction {
	case shared.Long:
		p.PNLPercent = ((currentPrice - p.EntryPrice) / p.EntryPrice) * 100
	case shared.Short:
		p.PNLPercent = ((p.EntryPrice - currentPrice) / p.EntryPrice) * 100
	default:
		return 0, fmt.Errorf("unknown direction for position: %s", p.Direction.String())
	}

	return p.PNLPercent, nil
}

// Unrealized returns the unrealized profit or loss of the position at the provided price.
func (p *Position) Unrealized(currentPrice float64) float64 {
	switch p.Direction {
	case shared.Short:
		return (p.EntryPrice - currentPrice) * p.Quantity
	default:
		return (currentPrice - p.EntryPrice) * p.Quantity
	}
}

// ClosePosition closes the position at the provided price and time, returning the
// resulting trade.
func (p *Position) ClosePosition(price float64, date time.Time, reason shared.ExitReason) Trade {
	pnl := p.Unrealized(price)
	p.UpdatePNLPercent(price)

	return Trade{
		Market:     p.Market,
		EntryTime:  p.OpenedOn,
		ExitTime:   date,
		Direction:  p.Direction,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		Quantity:   p.Quantity,
		PNL:        pnl,
		PNLPercent: (pnl / (p.EntryPrice * p.Quantity)) * 100,
		ExitReason: reason,
	}
}
