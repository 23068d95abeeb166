package shared

// ExitReason represents the reason a position was closed.
type ExitReason int

const (
	SignalExit ExitReason = iota
	StopLossExit
	TakeProfitExit
	EndOfDataExit
)

// String stringifies the provided exit reason.
func (r ExitReason) String() string {
	switch r {
	case SignalExit:
		return "signal"
	case StopLossExit:
		return "stop_loss"
	case TakeProfitExit:
		return "take_profit"
	case EndOfDataExit:
		return "end_of_data"
	default:
		return "unknown"
	}
}

// MarshalText encodes the exit reason in its string form.
func (r ExitReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Direction represents market direction.
type Direction int

const (
	Long Direction = iota
	Short
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// MarshalText encodes the direction in its string form.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// OrderSide represents the side of a broker order.
type OrderSide int

const (
	BuySide OrderSide = iota
	SellSide
)

// String stringifies the provided order side.
func (s OrderSide) String() string {
	switch s {
	case BuySide:
		return "buy"
	case SellSide:
		return "sell"
	default:
		return "unknown"
	}
}

// EntrySide returns the order side that opens a position in the provided direction.
func EntrySide(direction Direction) OrderSide {
	if direction == Short {
		return SellSide
	}

	return BuySide
}

// ExitSide returns the order side that closes a position in the provided direction.
func ExitSide(direction Direction) OrderSide {
	if direction == Short {
		return BuySide
	}

	return SellSide
}
