package position

import (
	"testing"
	"time"

	"github.com/dnldd/crossover/shared"
	"github.com/peterldowns/testy/assert"
)

var baseTime = time.Date(2025, 2, 4, 15, 0, 0, 0, time.UTC)

func bar(idx int, close float64) *shared.Bar {
	return &shared.Bar{
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Date:      baseTime.Add(time.Minute * 5 * time.Duration(idx)),
		Market:    "BTC/USD",
		Timeframe: shared.FiveMinute,
	}
}

func setupModel(t *testing.T, stopLoss float64, takeProfit float64, allowShort bool) *Model {
	model, err := NewModel(ModelConfig{
		Quantity:          2,
		StopLossPercent:   stopLoss,
		TakeProfitPercent: takeProfit,
		AllowShort:        allowShort,
	})
	assert.NoError(t, err)

	return model
}

func TestModelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ModelConfig
		wantErr bool
	}{
		{"valid", ModelConfig{Quantity: 1, StopLossPercent: 2, TakeProfitPercent: 4}, false},
		{"zero quantity", ModelConfig{Quantity: 0}, true},
		{"stop loss at 100", ModelConfig{Quantity: 1, StopLossPercent: 100}, true},
		{"negative take profit", ModelConfig{Quantity: 1, TakeProfitPercent: -2}, true},
	}

	for _, test := range tests {
		err := test.cfg.Validate()
		if test.wantErr != (err != nil) {
			t.Errorf("%s: expected error %v, got %v", test.name, test.wantErr, err)
		}
	}

	_, err := NewModel(ModelConfig{})
	assert.Error(t, err)
}

func TestModelLongLifecycle(t *testing.T) {
	model := setupModel(t, 0, 0, false)

	// Ensure no signal does nothing while flat.
	event, err := model.OnSignal(shared.None, bar(0, 100))
	assert.NoError(t, err)
	assert.Nil(t, event)
	assert.False(t, model.IsOpen())

	// Ensure a buy signal while flat opens a long at the bar's close.
	event, err = model.OnSignal(shared.Buy, bar(1, 100))
	assert.NoError(t, err)
	assert.NotNil(t, event)
	assert.Equal(t, event.Kind, Opened)
	assert.Equal(t, event.Side(), shared.BuySide)
	assert.Equal(t, event.Position.Direction, shared.Long)
	assert.Equal(t, event.Position.EntryPrice, float64(100))
	assert.True(t, model.IsOpen())

	// Ensure a repeated buy signal does not open a second position.
	event, err = model.OnSignal(shared.Buy, bar(2, 101))
	assert.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, model.Position().EntryPrice, float64(100))

	// Ensure unrealized pnl is marked at the provided price.
	assert.Equal(t, model.Unrealized(110), float64(20))

	// Ensure a sell signal closes the long.
	event, err = model.OnSignal(shared.Sell, bar(3, 110))
	assert.NoError(t, err)
	assert.NotNil(t, event)
	assert.Equal(t, event.Kind, Closed)
	assert.Equal(t, event.Side(), shared.SellSide)
	assert.Equal(t, event.Trade.ExitReason, shared.SignalExit)
	assert.Equal(t, event.Trade.ExitPrice, float64(110))
	assert.Equal(t, event.Trade.PNL, float64(20))
	assert.Equal(t, event.Trade.PNLPercent, float64(10))
	assert.Equal(t, event.Trade.EntryTime, bar(1, 100).Date)
	assert.Equal(t, event.Trade.ExitTime, bar(3, 110).Date)
	assert.True(t, event.Trade.Won())
	assert.False(t, model.IsOpen())
	assert.Nil(t, model.Position())
	assert.Equal(t, model.Unrealized(120), float64(0))
}

func TestModelSellWhileFlat(t *testing.T) {
	// Ensure sell signals while flat are ignored when shorts are not allowed.
	spot := setupModel(t, 0, 0, false)
	event, err := spot.OnSignal(shared.Sell, bar(0, 100))
	assert.NoError(t, err)
	assert.Nil(t, event)
	assert.False(t, spot.IsOpen())

	// Ensure sell signals while flat open shorts when allowed.
	margin := setupModel(t, 0, 0, true)
	event, err = margin.OnSignal(shared.Sell, bar(0, 100))
	assert.NoError(t, err)
	assert.NotNil(t, event)
	assert.Equal(t, event.Position.Direction, shared.Short)
	assert.Equal(t, event.Side(), shared.SellSide)

	// Ensure a buy signal closes the short.
	event, err = margin.OnSignal(shared.Buy, bar(1, 90))
	assert.NoError(t, err)
	assert.NotNil(t, event)
	assert.Equal(t, event.Kind, Closed)
	assert.Equal(t, event.Side(), shared.BuySide)
	assert.Equal(t, event.Trade.PNL, float64(20))
	assert.Equal(t, event.Trade.PNLPercent, float64(10))
}

func TestModelZeroClose(t *testing.T) {
	tests := []struct {
		name       string
		allowShort bool
		signal     shared.Signal
	}{
		{"buy while flat", false, shared.Buy},
		{"sell while flat with shorts", true, shared.Sell},
		{"sell while flat without shorts", false, shared.Sell},
	}

	// Ensure entries on zero closes are skipped without error.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := setupModel(t, 0, 0, tt.allowShort)
			event, err := model.OnSignal(tt.signal, bar(0, 0))
			assert.NoError(t, err)
			assert.Nil(t, event)
			assert.False(t, model.IsOpen())

			events, err := model.Step(tt.signal, bar(1, 0))
			assert.NoError(t, err)
			assert.Equal(t, len(events), 0)
		})
	}

	// Ensure an open long is stopped out by a zero close.
	model := setupModel(t, 2, 0, false)
	_, err := model.OnSignal(shared.Buy, bar(0, 100))
	assert.NoError(t, err)

	events, err := model.Step(shared.Sell, bar(1, 0))
	assert.NoError(t, err)
	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Trade.ExitReason, shared.StopLossExit)
	assert.Equal(t, events[0].Trade.ExitPrice, float64(0))
	assert.Equal(t, events[0].Trade.PNL, float64(-200))
	assert.False(t, model.IsOpen())
}

func TestModelStopLoss(t *testing.T) {
	model := setupModel(t, 2, 0, false)

	_, err := model.OnSignal(shared.Buy, bar(0, 100))
	assert.NoError(t, err)

	// Ensure moves short of the stop keep the position open.
	assert.Nil(t, model.OnBar(bar(1, 98.5)))
	assert.True(t, model.IsOpen())

	// Ensure a close at the stop forces an exit absent any signal.
	event := model.OnBar(bar(2, 98))
	assert.NotNil(t, event)
	assert.Equal(t, event.Trade.ExitReason, shared.StopLossExit)
	assert.Equal(t, event.Trade.ExitPrice, float64(98))
	assert.Equal(t, event.Trade.PNL, float64(-4))
	assert.False(t, model.IsOpen())

	// Ensure closes beyond the stop also trigger.
	_, err = model.OnSignal(shared.Buy, bar(3, 100))
	assert.NoError(t, err)
	event = model.OnBar(bar(4, 90))
	assert.NotNil(t, event)
	assert.Equal(t, event.Trade.ExitReason, shared.StopLossExit)
	assert.Equal(t, event.Trade.ExitPrice, float64(90))
}

func TestModelTakeProfit(t *testing.T) {
	model := setupModel(t, 2, 5, true)

	_, err := model.OnSignal(shared.Sell, bar(0, 100))
	assert.NoError(t, err)

	// Ensure the take profit on a short triggers on a favourable fall.
	assert.Nil(t, model.OnBar(bar(1, 97)))
	event := model.OnBar(bar(2, 95))
	assert.NotNil(t, event)
	assert.Equal(t, event.Trade.ExitReason, shared.TakeProfitExit)
	assert.Equal(t, event.Trade.PNL, float64(10))

	// Ensure the stop loss on a short triggers on an adverse rise.
	_, err = model.OnSignal(shared.Sell, bar(3, 100))
	assert.NoError(t, err)
	event = model.OnBar(bar(4, 102.5))
	assert.NotNil(t, event)
	assert.Equal(t, event.Trade.ExitReason, shared.StopLossExit)
}

func TestModelStepPriority(t *testing.T) {
	model := setupModel(t, 2, 0, false)

	events, err := model.Step(shared.Buy, bar(0, 100))
	assert.NoError(t, err)
	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Kind, Opened)

	// Ensure a stop loss on the same bar as a sell signal takes priority.
	events, err = model.Step(shared.Sell, bar(1, 97))
	assert.NoError(t, err)
	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Trade.ExitReason, shared.StopLossExit)
	assert.False(t, model.IsOpen())

	// Ensure a signal can open a position on the bar a risk exit happened.
	_, err = model.Step(shared.Buy, bar(2, 100))
	assert.NoError(t, err)
	events, err = model.Step(shared.Buy, bar(3, 97))
	assert.NoError(t, err)
	assert.Equal(t, len(events), 2)
	assert.Equal(t, events[0].Kind, Closed)
	assert.Equal(t, events[1].Kind, Opened)
	assert.Equal(t, events[1].Position.EntryPrice, float64(97))
}

func TestModelForceClose(t *testing.T) {
	model := setupModel(t, 0, 0, false)

	// Ensure force closing while flat does nothing.
	assert.Nil(t, model.Close(bar(0, 100), shared.EndOfDataExit))

	_, err := model.OnSignal(shared.Buy, bar(1, 100))
	assert.NoError(t, err)
	event := model.Close(bar(2, 95), shared.EndOfDataExit)
	assert.NotNil(t, event)
	assert.Equal(t, event.Trade.ExitReason, shared.EndOfDataExit)
	assert.Equal(t, event.Trade.PNL, float64(-10))
	assert.False(t, event.Trade.Won())
}

func TestModelSnapshotRestore(t *testing.T) {
	model := setupModel(t, 0, 0, false)

	flat := model.Snapshot()
	_, err := model.OnSignal(shared.Buy, bar(0, 100))
	assert.NoError(t, err)

	// Ensure restoring a flat snapshot discards the opened position.
	model.Restore(flat)
	assert.False(t, model.IsOpen())

	_, err = model.OnSignal(shared.Buy, bar(1, 100))
	assert.NoError(t, err)
	open := model.Snapshot()
	_, err = model.OnSignal(shared.Sell, bar(2, 105))
	assert.NoError(t, err)
	assert.False(t, model.IsOpen())

	// Ensure restoring an open snapshot brings the position back.
	model.Restore(open)
	assert.True(t, model.IsOpen())
	assert.Equal(t, model.Position().EntryPrice, float64(100))

	// Ensure fill prices can replace the entry price.
	model.SetEntryPrice(100.5)
	assert.Equal(t, model.Position().EntryPrice, 100.5)
	model.SetEntryPrice(0)
	assert.Equal(t, model.Position().EntryPrice, 100.5)
}

func TestNewPosition(t *testing.T) {
	_, err := NewPosition(shared.Long, 1, nil)
	assert.Error(t, err)

	_, err = NewPosition(shared.Long, 0, bar(0, 100))
	assert.Error(t, err)

	_, err = NewPosition(shared.Long, 1, bar(0, 0))
	assert.Error(t, err)

	pos, err := NewPosition(shared.Long, 1, bar(0, 100))
	assert.NoError(t, err)
	assert.NotEqual(t, pos.ID, "")

	pnl, err := pos.UpdatePNLPercent(120)
	assert.NoError(t, err)
	assert.Equal(t, pnl, float64(20))

	pos.Direction = shared.Direction(9)
	_, err = pos.UpdatePNLPercent(120)
	assert.Error(t, err)
}
