package position

import (
	"time"

	"github.com/dnldd/crossover/shared"
)

// Trade represents a closed position. Trades are immutable once recorded.
type Trade struct {
	Market     string            `json:"market"`
	EntryTime  time.Time         `json:"entryTime"`
	ExitTime   time.Time         `json:"exitTime"`
	Direction  shared.Direction  `json:"direction"`
	EntryPrice float64           `json:"entryPrice"`
	ExitPrice  float64           `json:"exitPrice"`
	Quantity   float64           `json:"quantity"`
	PNL        float64           `json:"pnl"`
	PNLPercent float64           `json:"pnlPercent"`
	ExitReason shared.ExitReason `json:"exitReason"`
}

// Won reports whether the trade closed in profit.
func (t *Trade) Won() bool {
	return t.PNL > 0
}
