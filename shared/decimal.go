package shared

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal normalizes a quantity or price that may be represented as either a string
// or a number into a float64. Empty strings and nil parse as zero.
func ParseDecimal(value any) (float64, error) {
	var d decimal.Decimal
	var err error

	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		d, err = decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("parsing decimal %q: %w", v, err)
		}
	case json.Number:
		d, err = decimal.NewFromString(v.String())
		if err != nil {
			return 0, fmt.Errorf("parsing decimal %q: %w", v.String(), err)
		}
	case float64:
		d = decimal.NewFromFloat(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	default:
		return 0, fmt.Errorf("unsupported decimal type %T", value)
	}

	f, _ := d.Float64()
	return f, nil
}

// FormatDecimal formats the provided value without trailing zeros or exponents, the way
// brokers expect quantities to be sent.
func FormatDecimal(value float64) string {
	return decimal.NewFromFloat(value).String()
}
