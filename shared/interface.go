package shared

import (
	"context"
	"time"
)

// OrderType represents a broker order type.
type OrderType int

const (
	MarketOrder OrderType = iota
)

// String stringifies the provided order type.
func (o OrderType) String() string {
	switch o {
	case MarketOrder:
		return "market"
	default:
		return "unknown"
	}
}

// OrderRequest represents an order to be submitted to the broker.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Quantity float64
	Type     OrderType
}

// OrderResult represents the broker's response to a submitted order.
type OrderResult struct {
	ID          string
	Status      string
	FilledPrice float64
}

// MarketFetcher defines the requirements for fetching market data.
type MarketFetcher interface {
	// FetchBars fetches ordered bars for the provided symbol and timeframe. A zero end
	// fetches up to the latest available bar.
	FetchBars(ctx context.Context, symbol string, timeframe Timeframe, start time.Time, end time.Time) ([]Bar, error)
}

// OrderSubmitter defines the requirements for submitting orders to a broker.
type OrderSubmitter interface {
	// SubmitOrder submits the provided order.
	SubmitOrder(ctx context.Context, order OrderRequest) (*OrderResult, error)
}
