package database

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/crossover/backtest"
	"github.com/dnldd/crossover/bot"
	"github.com/dnldd/crossover/metrics"
	"github.com/dnldd/crossover/position"
	"github.com/dnldd/crossover/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var now = time.Date(2025, 2, 18, 15, 0, 0, 0, time.UTC)

func TestDatabaseConfigValidate(t *testing.T) {
	cfg := &DatabaseConfig{Endpoint: "http://localhost:4001", Logger: &log.Logger}
	assert.NoError(t, cfg.Validate())

	cfg.Endpoint = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "endpoint"))

	cfg.Logger = nil
	err = cfg.Validate()
	assert.True(t, strings.Contains(err.Error(), "logger"))
}

func TestGenerateStatsID(t *testing.T) {
	assert.Equal(t, generateStatsID(now, "BTC/USD"), "2025-February-Week-2-BTC/USD")
	assert.Equal(t, generateStatsID(now.AddDate(0, 0, 7), "AAPL"), "2025-February-Week-3-AAPL")
}

func TestRunStatements(t *testing.T) {
	status := &bot.Status{
		Key:              "btc-fast",
		RunID:            "run-1",
		Symbol:           "BTC/USD",
		Timeframe:        shared.FiveMinute,
		State:            bot.Running,
		StartedAt:        now,
		SignalsGenerated: 3,
		OrdersPlaced:     2,
		OrdersFailed:     1,
		LastError:        "order submission error",
		Metrics:          metrics.Summary{TotalPNL: 12.5},
	}

	stmts := runStatements(status, now.Add(time.Minute))
	assert.Equal(t, len(stmts), 1)
	assert.Equal(t, stmts[0].SQL, upsertBotRunSQL)

	// Ensure zero times are stored as null.
	assert.Equal(t, stmts[0].PositionalParams, []any{"run-1", "btc-fast", "BTC/USD", "5Min",
		"running", now.Unix(), nil, nil, int64(3), int64(2), int64(1), 12.5,
		"order submission error", now.Add(time.Minute).Unix()})
}

func TestTradeStatements(t *testing.T) {
	trade := &position.Trade{
		Market:     "BTC/USD",
		EntryTime:  now,
		ExitTime:   now.Add(time.Hour),
		Direction:  shared.Long,
		EntryPrice: 100,
		ExitPrice:  110,
		Quantity:   2,
		PNL:        20,
		PNLPercent: 10,
		ExitReason: shared.TakeProfitExit,
	}

	stmts := tradeStatements("trade-1", "run-1", trade)
	assert.Equal(t, len(stmts), 1)
	assert.Equal(t, stmts[0].SQL, persistTradeSQL)
	assert.Equal(t, stmts[0].PositionalParams, []any{"trade-1", "run-1", "BTC/USD", "long",
		float64(100), float64(110), float64(2), float64(20), float64(10), "take_profit",
		now.Unix(), now.Add(time.Hour).Unix()})
}

func TestBacktestStatements(t *testing.T) {
	result := &backtest.Result{
		Strategy: shared.StrategyConfig{
			Symbol:     "BTC/USD",
			Timeframe:  shared.OneHour,
			FastPeriod: 12,
			SlowPeriod: 26,
			Quantity:   1,
		},
		Start:          now,
		End:            now.Add(time.Hour * 24),
		InitialCapital: 10000,
		FinalCapital:   10250,
		TotalPNL:       250,
		Trades: []position.Trade{
			{Market: "BTC/USD", PNL: 250, ExitReason: shared.SignalExit},
		},
		Metrics: metrics.Summary{
			TotalTrades:  1,
			WinRate:      1,
			ProfitFactor: metrics.ProfitFactor(math.Inf(1)),
		},
	}

	stmts, err := backtestStatements("bt-1", result, now)
	assert.NoError(t, err)
	assert.Equal(t, len(stmts), 1)
	assert.Equal(t, stmts[0].SQL, persistBacktestSQL)

	params := stmts[0].PositionalParams
	assert.Equal(t, len(params), 18)
	assert.Equal(t, params[1], any("BTC/USD:1Hour:12:26"))

	// Ensure unbounded profit factors are stored as null, keeping the params encodable.
	assert.Nil(t, params[13])
	_, err = json.Marshal(params)
	assert.NoError(t, err)

	// Ensure the ledger is stored as json.
	ledger := gjson.Parse(params[16].(string))
	assert.Equal(t, len(ledger.Array()), 1)
	assert.Equal(t, ledger.Get("0.pnl").Float(), float64(250))
	assert.Equal(t, ledger.Get("0.exitReason").String(), "signal")

	result.Metrics.ProfitFactor = 1.5
	stmts, err = backtestStatements("bt-2", result, now)
	assert.NoError(t, err)
	assert.Equal(t, stmts[0].PositionalParams[13], any(1.5))
}
