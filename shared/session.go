package shared

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// Session names.
	Regular = "regular"

	// Regular stock session time in new york time (ET).
	RegularOpen  = "09:30"
	RegularClose = "16:00"

	// SessionTimeLayout is the layout of session open and close times.
	SessionTimeLayout = "15:04"

	// NewYorkLocation is the location stock sessions are defined in.
	NewYorkLocation = "America/New_York"
)

// Session represents a market session.
type Session struct {
	Name  string
	Open  time.Time
	Close time.Time
}

// NewYorkTime returns the provided time in new york (EST/EDT adjusted automatically).
func NewYorkTime(t time.Time) (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(NewYorkLocation)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading new york timezone: %w", err)
	}

	return t.In(loc), loc, nil
}

// NewSession initializes the market session of the provided name on the day of the
// provided new york time.
func NewSession(name string, open string, close string, now time.Time) (*Session, error) {
	sessionOpen, err := time.Parse(SessionTimeLayout, open)
	if err != nil {
		return nil, fmt.Errorf("parsing session open: %w", err)
	}

	sessionClose, err := time.Parse(SessionTimeLayout, close)
	if err != nil {
		return nil, fmt.Errorf("parsing session close: %w", err)
	}

	loc := now.Location()
	if loc.String() != NewYorkLocation {
		return nil, fmt.Errorf("expected new york location for provided time, got %v", loc.String())
	}

	sOpen := time.Date(now.Year(), now.Month(), now.Day(), sessionOpen.Hour(), sessionOpen.Minute(), 0, 0, loc)
	sClose := time.Date(now.Year(), now.Month(), now.Day(), sessionClose.Hour(), sessionClose.Minute(), 0, 0, loc)
	if sClose.Before(sOpen) {
		sClose = sClose.Add(time.Hour * 24)
	}

	session := &Session{
		Name:  name,
		Open:  sOpen,
		Close: sClose,
	}

	return session, nil
}

// IsCurrentSession checks whether the provided time falls within the session.
func (s *Session) IsCurrentSession(current time.Time) bool {
	return (current.Equal(s.Open) || current.After(s.Open)) && current.Before(s.Close)
}

// IsCrypto reports whether the provided symbol is a crypto pair, such as BTC/USD.
func IsCrypto(symbol string) bool {
	return strings.Contains(symbol, "/")
}

// IsMarketOpen checks whether the provided symbol trades at the provided time. Crypto
// markets never close, stocks trade during the regular weekday session. Exchange
// holidays are not accounted for.
func IsMarketOpen(symbol string, now time.Time) (bool, error) {
	if IsCrypto(symbol) {
		return true, nil
	}

	nyNow, _, err := NewYorkTime(now)
	if err != nil {
		return false, err
	}

	switch nyNow.Weekday() {
	case time.Saturday, time.Sunday:
		return false, nil
	}

	session, err := NewSession(Regular, RegularOpen, RegularClose, nyNow)
	if err != nil {
		return false, fmt.Errorf("creating %s session: %w", Regular, err)
	}

	return session.IsCurrentSession(nyNow), nil
}
