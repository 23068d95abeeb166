package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestSession(t *testing.T) {
	now, loc, err := NewYorkTime(time.Date(2025, 2, 18, 15, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Equal(t, now.Hour(), 10)

	// Ensure the regular session can be created.
	session, err := NewSession(Regular, RegularOpen, RegularClose, now)
	assert.NoError(t, err)
	assert.Equal(t, session.Open, time.Date(2025, 2, 18, 9, 30, 0, 0, loc))
	assert.Equal(t, session.Close, time.Date(2025, 2, 18, 16, 0, 0, 0, loc))
	assert.True(t, session.IsCurrentSession(now))
	assert.False(t, session.IsCurrentSession(session.Close))

	// Ensure sessions are only created for new york times.
	_, err = NewSession(Regular, RegularOpen, RegularClose, now.UTC())
	assert.Error(t, err)

	// Ensure malformed session times are rejected.
	_, err = NewSession(Regular, "9am", RegularClose, now)
	assert.Error(t, err)
}

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		now    time.Time
		want   bool
	}{
		{"stock during session", "AAPL", time.Date(2025, 2, 18, 15, 0, 0, 0, time.UTC), true},
		{"stock at open", "AAPL", time.Date(2025, 2, 18, 14, 30, 0, 0, time.UTC), true},
		{"stock before open", "AAPL", time.Date(2025, 2, 18, 14, 29, 0, 0, time.UTC), false},
		{"stock at close", "AAPL", time.Date(2025, 2, 18, 21, 0, 0, 0, time.UTC), false},
		{"stock on a weekend", "AAPL", time.Date(2025, 2, 22, 15, 0, 0, 0, time.UTC), false},
		{"crypto on a weekend", "BTC/USD", time.Date(2025, 2, 22, 3, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, err := IsMarketOpen(tt.symbol, tt.now)
			assert.NoError(t, err)
			assert.Equal(t, open, tt.want)
		})
	}
}
