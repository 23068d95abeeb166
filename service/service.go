package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/crossover/api"
	"github.com/dnldd/crossover/backtest"
	"github.com/dnldd/crossover/bot"
	"github.com/dnldd/crossover/database"
	"github.com/dnldd/crossover/fetch"
	"github.com/dnldd/crossover/position"
	"github.com/dnldd/crossover/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// ServiceConfig represents the configuration struct for the crossover service.
type ServiceConfig struct {
	// Strategies represents the configured strategies.
	Strategies []shared.StrategyConfig
	// AlpacaAPIKey is the Alpaca API key id.
	AlpacaAPIKey string
	// AlpacaAPISecret is the Alpaca API secret key.
	AlpacaAPISecret string
	// AlpacaTradingURL is the Alpaca trading api base url.
	AlpacaTradingURL string
	// AlpacaDataURL is the Alpaca market data api base url.
	AlpacaDataURL string
	// AlpacaFeed optionally selects the stock data feed.
	AlpacaFeed string
	// DBEndpoint is the optional database endpoint. Persistence is disabled when unset.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// APIAddress is the listening address of the status server.
	APIAddress string
	// PollInterval overrides the timeframe derived bot polling interval when set.
	PollInterval time.Duration
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestDataFilepath is the filepath to the backtest data.
	BacktestDataFilepath string
	// InitialCapital is the starting equity of backtests.
	InitialCapital float64
	// OutputDir is the directory backtest ledgers are written to.
	OutputDir string
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *ServiceConfig) Validate() error {
	var errs error

	if len(cfg.Strategies) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no strategies provided for crossover service"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	switch cfg.Backtest {
	case true:
		if cfg.BacktestDataFilepath == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest data filepath cannot be an empty string"))
		}
		if !(cfg.InitialCapital > 0) {
			errs = errors.Join(errs, fmt.Errorf("initial capital must be positive, got %f", cfg.InitialCapital))
		}
		if cfg.OutputDir == "" {
			errs = errors.Join(errs, fmt.Errorf("output directory cannot be an empty string"))
		}
	case false:
		if cfg.AlpacaAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("alpaca api key cannot be an empty string"))
		}
		if cfg.AlpacaAPISecret == "" {
			errs = errors.Join(errs, fmt.Errorf("alpaca api secret cannot be an empty string"))
		}
		if cfg.APIAddress == "" {
			errs = errors.Join(errs, fmt.Errorf("api address cannot be an empty string"))
		}
	}

	return errs
}

// Service represents the ema crossover strategy service.
type Service struct {
	cfg          *ServiceConfig
	db           *database.Database
	historicData *backtest.HistoricData
	runtime      *bot.Runtime
	server       *api.Server
	logger       *zerolog.Logger
	wg           sync.WaitGroup
}

// NewService initializes a new crossover service.
func NewService(ctx context.Context, cfg *ServiceConfig) (*Service, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating service config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "crossover").Logger()

	svc := &Service{
		cfg:    cfg,
		logger: &logger,
	}

	if cfg.DBEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		svc.db, err = database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}
	}

	if cfg.Backtest {
		svc.historicData, err = backtest.NewHistoricData(cfg.BacktestDataFilepath)
		if err != nil {
			return nil, fmt.Errorf("creating historic data: %w", err)
		}

		return svc, nil
	}

	alpaca, err := fetch.NewAlpacaClient(&fetch.AlpacaConfig{
		APIKey:     cfg.AlpacaAPIKey,
		APISecret:  cfg.AlpacaAPISecret,
		TradingURL: withDefault(cfg.AlpacaTradingURL, fetch.TradingURL),
		DataURL:    withDefault(cfg.AlpacaDataURL, fetch.DataURL),
		Feed:       cfg.AlpacaFeed,
	})
	if err != nil {
		return nil, fmt.Errorf("creating alpaca client: %w", err)
	}

	runtimeCfg := &bot.RuntimeConfig{
		Fetcher:      alpaca,
		Broker:       alpaca,
		JobScheduler: gocron.NewScheduler(time.UTC),
		PollInterval: cfg.PollInterval,
	}

	if svc.db != nil {
		// Final run states are persisted during shutdown.
		persistCtx := context.WithoutCancel(ctx)
		runtimeCfg.PersistTrade = func(runID string, trade *position.Trade) error {
			return svc.db.PersistTrade(persistCtx, runID, trade)
		}
		runtimeCfg.PersistRun = func(status *bot.Status) error {
			return svc.db.PersistRun(persistCtx, status)
		}
	}

	runtimeLogger := logger.With().Str("component", "runtime").Logger()
	runtimeCfg.Logger = &runtimeLogger
	svc.runtime, err = bot.NewRuntime(runtimeCfg)
	if err != nil {
		return nil, fmt.Errorf("creating bot runtime: %w", err)
	}

	serverLogger := logger.With().Str("component", "api").Logger()
	svc.server, err = api.NewServer(&api.ServerConfig{
		Address:    cfg.APIAddress,
		Controller: svc.runtime,
		Strategies: cfg.Strategies,
		Logger:     &serverLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating status server: %w", err)
	}

	return svc, nil
}

// withDefault returns the provided value, or the fallback when it is empty.
func withDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

// backtestJobs creates backtest jobs for the configured strategies trading the market of
// the loaded historic data.
func (s *Service) backtestJobs() []backtest.Job {
	market := s.historicData.FetchMarket()
	jobs := make([]backtest.Job, 0, len(s.cfg.Strategies))
	for idx := range s.cfg.Strategies {
		strategy := s.cfg.Strategies[idx]
		if strategy.Symbol != market {
			s.logger.Info().Msgf("skipping %s, historic data is for %s", strategy.Key(), market)
			continue
		}

		bars := s.historicData.Bars(strategy.Timeframe)
		if len(bars) == 0 {
			s.logger.Info().Msgf("skipping %s, no %s historic data", strategy.Key(),
				strategy.Timeframe.String())
			continue
		}

		jobs = append(jobs, backtest.Job{
			Bars: bars,
			Config: backtest.Config{
				Strategy:       strategy,
				InitialCapital: s.cfg.InitialCapital,
			},
		})
	}

	return jobs
}

// runBacktests backtests the configured strategies over the loaded historic data and
// persists their results.
func (s *Service) runBacktests(ctx context.Context) {
	jobs := s.backtestJobs()
	if len(jobs) == 0 {
		s.logger.Error().Msgf("no strategies to backtest for %s", s.historicData.FetchMarket())
		return
	}

	outcomes := backtest.RunBatch(ctx, jobs, 0)
	for idx := range outcomes {
		outcome := &outcomes[idx]
		if outcome.Err != nil {
			s.logger.Error().Msgf("backtesting %s: %v", outcome.Key, outcome.Err)
			continue
		}

		result := outcome.Result
		summary := &result.Metrics
		s.logger.Info().Msgf("%s: %d bars, %d trades, pnl %.2f (%.2f%%), win rate %.2f, "+
			"profit factor %s, max drawdown %.2f%%, sharpe %.4f", outcome.Key, result.Bars,
			summary.TotalTrades, result.TotalPNL, result.TotalPNLPercent, summary.WinRate,
			summary.ProfitFactor.String(), summary.MaxDrawdownPercent, summary.Sharpe)

		paths, err := backtest.PersistResultCSV(s.cfg.OutputDir, result)
		if err != nil {
			s.logger.Error().Msgf("persisting %s ledger: %v", outcome.Key, err)
		} else {
			s.logger.Info().Msgf("%s ledger written to %v", outcome.Key, paths)
		}

		if s.db != nil {
			id, err := s.db.PersistBacktest(ctx, result)
			if err != nil {
				s.logger.Error().Msgf("persisting %s backtest: %v\n%s", outcome.Key, err,
					spew.Sdump(summary))
				continue
			}

			s.logger.Info().Msgf("%s backtest stored as %s", outcome.Key, id)
		}
	}
}

// startBots starts a live run for every configured strategy.
func (s *Service) startBots(ctx context.Context) {
	for idx := range s.cfg.Strategies {
		strategy := s.cfg.Strategies[idx]
		status, err := s.runtime.Start(ctx, strategy)
		if err != nil {
			s.logger.Error().Msgf("starting %s: %v", strategy.Key(), err)
			continue
		}

		s.logger.Info().Msgf("started %s (run %s)", status.Key, status.RunID)
	}
}

// Run handles the lifecycle processes of the crossover service.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.Backtest {
		s.runBacktests(ctx)
		s.logger.Info().Msgf("backtests for %s done, review the ledgers in %s",
			s.historicData.FetchMarket(), s.cfg.OutputDir)
		s.cfg.Cancel()
		return
	}

	s.wg.Add(2)

	go func() {
		s.runtime.Run(ctx)
		s.wg.Done()
	}()

	go func() {
		err := s.server.Run(ctx)
		if err != nil {
			s.logger.Error().Msgf("running status server: %v", err)
			s.cfg.Cancel()
		}
		s.wg.Done()
	}()

	s.startBots(ctx)

	s.wg.Wait()
}
