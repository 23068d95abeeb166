package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/crossover/backtest"
	"github.com/dnldd/crossover/bot"
	"github.com/dnldd/crossover/position"
	"github.com/google/uuid"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createBotRunsTableSQL         = "CREATE TABLE IF NOT EXISTS bot_runs (id TEXT PRIMARY KEY, strategykey TEXT, symbol TEXT, timeframe TEXT, state TEXT, startedon INTEGER, stoppedon INTEGER, lastbarseen INTEGER, signals INTEGER, ordersplaced INTEGER, ordersfailed INTEGER, realizedpnl REAL, lasterror TEXT, updatedon INTEGER)"
	createTradesTableSQL          = "CREATE TABLE IF NOT EXISTS trades (id TEXT PRIMARY KEY, runid TEXT, market TEXT, direction TEXT, entryprice REAL, exitprice REAL, quantity REAL, pnl REAL, pnlpercent REAL, exitreason TEXT, entrytime INTEGER, exittime INTEGER)"
	createTradeStatsTableSQL      = "CREATE TABLE IF NOT EXISTS trade_stats (id TEXT PRIMARY KEY, total INTEGER, wins INTEGER, losses INTEGER, pnl REAL, createdon INTEGER)"
	createBacktestResultsTableSQL = "CREATE TABLE IF NOT EXISTS backtest_results (id TEXT PRIMARY KEY, strategykey TEXT, symbol TEXT, timeframe TEXT, fastperiod INTEGER, slowperiod INTEGER, startdate INTEGER, enddate INTEGER, initialcapital REAL, finalcapital REAL, totalpnl REAL, totaltrades INTEGER, winrate REAL, profitfactor REAL, maxdrawdown REAL, sharpe REAL, trades TEXT, createdon INTEGER)"
	upsertBotRunSQL               = "INSERT INTO bot_runs(id, strategykey, symbol, timeframe, state, startedon, stoppedon, lastbarseen, signals, ordersplaced, ordersfailed, realizedpnl, lasterror, updatedon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?) ON CONFLICT(id) DO UPDATE SET state = excluded.state, stoppedon = excluded.stoppedon, lastbarseen = excluded.lastbarseen, signals = excluded.signals, ordersplaced = excluded.ordersplaced, ordersfailed = excluded.ordersfailed, realizedpnl = excluded.realizedpnl, lasterror = excluded.lasterror, updatedon = excluded.updatedon"
	persistTradeSQL               = "INSERT INTO trades(id, runid, market, direction, entryprice, exitprice, quantity, pnl, pnlpercent, exitreason, entrytime, exittime) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)"
	findTradeStatsSQL             = "SELECT * FROM trade_stats WHERE id = ?"
	updateTradeStatsSQL           = "UPDATE trade_stats SET total = total + 1, wins = wins + ?, losses = losses + ?, pnl = pnl + ? WHERE id = ?"
	persistTradeStatsSQL          = "INSERT INTO trade_stats(id, total, wins, losses, pnl, createdon) VALUES(?,?,?,?,?,?)"
	persistBacktestSQL            = "INSERT INTO backtest_results(id, strategykey, symbol, timeframe, fastperiod, slowperiod, startdate, enddate, initialcapital, finalcapital, totalpnl, totaltrades, winrate, profitfactor, maxdrawdown, sharpe, trades, createdon) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
)

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
	now    func() time.Time
}

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a transaction.
func (db *Database) execute(ctx context.Context, op string, statements rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, statements, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("%s: statement %d -> %s", op, idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	return db.execute(ctx, "creating tables", rqlitehttp.SQLStatements{
		{SQL: createBotRunsTableSQL},
		{SQL: createTradesTableSQL},
		{SQL: createTradeStatsTableSQL},
		{SQL: createBacktestResultsTableSQL},
	})
}

// generateStatsID generates deterministic ids for trade stats using the
// current month, week and market.
func generateStatsID(currentTime time.Time, market string) string {
	month := currentTime.Month().String()
	week := currentTime.Day() / 7

	id := fmt.Sprintf("%d-%s-Week-%d-%s", currentTime.Year(), month, week, market)
	return id
}

// unixOrNil returns the unix timestamp of the provided time, nil when zero.
func unixOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.Unix()
}

// runStatements returns the statements upserting the provided run status.
func runStatements(status *bot.Status, now time.Time) rqlitehttp.SQLStatements {
	return rqlitehttp.SQLStatements{
		{
			SQL: upsertBotRunSQL,
			PositionalParams: []any{status.RunID, status.Key, status.Symbol, status.Timeframe.String(),
				status.State.String(), unixOrNil(status.StartedAt), unixOrNil(status.StoppedAt),
				unixOrNil(status.LastBarSeen), status.SignalsGenerated, status.OrdersPlaced,
				status.OrdersFailed, status.Metrics.TotalPNL, status.LastError, now.Unix()},
		},
	}
}

// tradeStatements returns the statements inserting the provided trade.
func tradeStatements(id string, runID string, trade *position.Trade) rqlitehttp.SQLStatements {
	return rqlitehttp.SQLStatements{
		{
			SQL: persistTradeSQL,
			PositionalParams: []any{id, runID, trade.Market, trade.Direction.String(),
				trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.PNL, trade.PNLPercent,
				trade.ExitReason.String(), trade.EntryTime.Unix(), trade.ExitTime.Unix()},
		},
	}
}

// backtestStatements returns the statements inserting the provided backtest result.
// Unbounded profit factors are stored as null.
func backtestStatements(id string, result *backtest.Result, now time.Time) (rqlitehttp.SQLStatements, error) {
	trades, err := json.Marshal(result.Trades)
	if err != nil {
		return nil, fmt.Errorf("encoding trades: %w", err)
	}

	var profitFactor any = float64(result.Metrics.ProfitFactor)
	if result.Metrics.ProfitFactor.Unbounded() {
		profitFactor = nil
	}

	strategy := &result.Strategy
	statements := rqlitehttp.SQLStatements{
		{
			SQL: persistBacktestSQL,
			PositionalParams: []any{id, strategy.Key(), strategy.Symbol, strategy.Timeframe.String(),
				strategy.FastPeriod, strategy.SlowPeriod, result.Start.Unix(), result.End.Unix(),
				result.InitialCapital, result.FinalCapital, result.TotalPNL,
				result.Metrics.TotalTrades, result.Metrics.WinRate, profitFactor,
				result.Metrics.MaxDrawdown, result.Metrics.Sharpe, string(trades), now.Unix()},
		},
	}

	return statements, nil
}

// PersistRun upserts the provided bot run status.
func (db *Database) PersistRun(ctx context.Context, status *bot.Status) error {
	return db.execute(ctx, fmt.Sprintf("persisting run %s", status.RunID),
		runStatements(status, db.now()))
}

// PersistTrade stores the provided closed trade of a bot run and updates the weekly
// trade stats of its market.
func (db *Database) PersistTrade(ctx context.Context, runID string, trade *position.Trade) error {
	err := db.execute(ctx, "persisting trade", tradeStatements(uuid.New().String(), runID, trade))
	if err != nil {
		return err
	}

	var win, loss int
	switch {
	case trade.PNL > 0:
		win++
	case trade.PNL < 0:
		loss++
	default:
		db.cfg.Logger.Debug().Msgf("breakeven trade excluded from win/loss stats: %s", spew.Sdump(trade))
	}

	now := db.now()
	id := generateStatsID(now, trade.Market)
	resp, err := db.client.QuerySingle(ctx, findTradeStatsSQL, id)
	if err != nil {
		return fmt.Errorf("finding trade stats %s: %w", id, err)
	}

	exists := len(resp.GetQueryResultsAssoc()) > 0
	switch {
	case exists:
		return db.execute(ctx, fmt.Sprintf("updating trade stats %s", id), rqlitehttp.SQLStatements{
			{
				SQL:              updateTradeStatsSQL,
				PositionalParams: []any{win, loss, trade.PNL, id},
			},
		})
	default:
		return db.execute(ctx, fmt.Sprintf("persisting trade stats %s", id), rqlitehttp.SQLStatements{
			{
				SQL:              persistTradeStatsSQL,
				PositionalParams: []any{id, 1, win, loss, trade.PNL, now.Unix()},
			},
		})
	}
}

// PersistBacktest stores the provided backtest result, returning its id.
func (db *Database) PersistBacktest(ctx context.Context, result *backtest.Result) (string, error) {
	id := uuid.New().String()
	statements, err := backtestStatements(id, result, db.now())
	if err != nil {
		db.cfg.Logger.Error().Msgf("unable to encode backtest result: %s", spew.Sdump(result.Metrics))
		return "", err
	}

	err = db.execute(ctx, fmt.Sprintf("persisting backtest %s", id), statements)
	if err != nil {
		return "", err
	}

	return id, nil
}
