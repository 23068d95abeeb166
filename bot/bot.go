package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/crossover/indicator"
	"github.com/dnldd/crossover/metrics"
	"github.com/dnldd/crossover/position"
	"github.com/dnldd/crossover/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// warmupMultiplier scales the slow period into the number of bars fetched to prime
	// a fresh run.
	warmupMultiplier = 3
)

// Bot represents a single live run of a strategy.
type Bot struct {
	strategy shared.StrategyConfig
	cfg      *RuntimeConfig
	runID    string
	interval time.Duration
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// tickMtx serializes ticks and guards the engine and model.
	tickMtx sync.Mutex
	engine  *indicator.SignalEngine
	model   *position.Model
	primed  bool

	// statusMtx guards the observable run state below.
	statusMtx      sync.RWMutex
	state          State
	startedAt      time.Time
	stoppedAt      time.Time
	lastBarSeen    time.Time
	lastCheck      time.Time
	nextCheck      time.Time
	emaState       shared.EmaState
	position       *position.Position
	lastSignal     shared.Signal
	lastSignalTime time.Time
	currentPrice   float64
	lastError      string
	trades         []position.Trade
	equity         []shared.EquityPoint
	realized       float64

	signalsGenerated atomic.Int64
	ordersPlaced     atomic.Int64
	ordersFailed     atomic.Int64
}

// newBot initializes a bot with fresh signal engine and position state. Live runs
// never open short positions.
func newBot(ctx context.Context, strategy shared.StrategyConfig, cfg *RuntimeConfig) (*Bot, error) {
	strategy.AllowShort = false

	engine, err := indicator.NewSignalEngine(strategy.FastPeriod, strategy.SlowPeriod)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}

	model, err := position.NewModel(position.NewModelConfig(&strategy))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = strategy.Timeframe.PollInterval()
	}

	runID := uuid.New().String()
	botCtx, cancel := context.WithCancel(ctx)

	b := &Bot{
		strategy: strategy,
		cfg:      cfg,
		runID:    runID,
		interval: interval,
		logger: cfg.Logger.With().Str("component", "bot").Str("key", strategy.Key()).
			Str("run", runID).Logger(),
		ctx:       botCtx,
		cancel:    cancel,
		engine:    engine,
		model:     model,
		state:     Starting,
		startedAt: cfg.Now(),
		trades:    make([]position.Trade, 0),
	}

	return b, nil
}

// Key returns the strategy key of the bot.
func (b *Bot) Key() string {
	return b.strategy.Key()
}

// State returns the current state of the bot.
func (b *Bot) State() State {
	b.statusMtx.RLock()
	defer b.statusMtx.RUnlock()

	return b.state
}

// setState transitions the bot to the provided state.
func (b *Bot) setState(state State) {
	b.statusMtx.Lock()
	b.assignState(state)
	b.statusMtx.Unlock()

	b.announceState(state)
}

// transition moves the bot to the next state only when it is still in the expected
// one, reporting whether it did.
func (b *Bot) transition(from State, to State) bool {
	b.statusMtx.Lock()
	if b.state != from {
		b.statusMtx.Unlock()
		return false
	}
	b.assignState(to)
	b.statusMtx.Unlock()

	b.announceState(to)

	return true
}

// assignState sets the bot's state. The status mutex must be held.
func (b *Bot) assignState(state State) {
	b.state = state
	if state == Stopped || state == Failed {
		b.stoppedAt = b.cfg.Now()
	}
}

// announceState publishes a state change to the gauge, the log and the persistence hook.
func (b *Bot) announceState(state State) {
	botState.WithLabelValues(b.Key()).Set(float64(state))
	b.logger.Info().Msgf("bot %s", state.String())
	b.persistRun()
}

// recordError records the provided error as the last error of the run.
func (b *Bot) recordError(err error) {
	b.statusMtx.Lock()
	b.lastError = err.Error()
	b.statusMtx.Unlock()
}

// fail transitions the bot to failed with the provided error. Failed runs are not
// restarted.
func (b *Bot) fail(err error) {
	b.logger.Error().Err(err).Msgf("bot failed")

	b.statusMtx.Lock()
	b.lastError = err.Error()
	b.statusMtx.Unlock()

	b.removeJob()
	b.cancel()
	b.setState(Failed)
}

// removeJob unschedules the bot's polling job.
func (b *Bot) removeJob() {
	if b.cfg.JobScheduler == nil {
		return
	}

	err := b.cfg.JobScheduler.RemoveByTag(b.runID)
	if err != nil {
		b.logger.Debug().Msgf("removing polling job: %v", err)
	}
}

// stop transitions a running bot to stopped, waiting for an in-flight tick to complete.
// Stopping an inactive bot is a no-op.
func (b *Bot) stop() {
	b.statusMtx.Lock()
	if !b.state.Active() || b.state == Stopping {
		b.statusMtx.Unlock()
		return
	}
	b.state = Stopping
	b.statusMtx.Unlock()
	botState.WithLabelValues(b.Key()).Set(float64(Stopping))

	b.removeJob()
	b.cancel()

	b.tickMtx.Lock()
	defer b.tickMtx.Unlock()

	b.setState(Stopped)
}

// persistRun relays the run's status to the persistence hook.
func (b *Bot) persistRun() {
	if b.cfg.PersistRun == nil {
		return
	}

	status := b.Status()
	err := b.cfg.PersistRun(&status)
	if err != nil {
		b.logger.Error().Msgf("persisting run: %v", err)
	}
}

// fetchBars fetches bars since the last seen bar, retrying transient failures with
// exponential backoff.
func (b *Bot) fetchBars(ctx context.Context, now time.Time) ([]shared.Bar, error) {
	b.statusMtx.RLock()
	start := b.lastBarSeen
	b.statusMtx.RUnlock()

	if start.IsZero() {
		lookback := b.strategy.Timeframe.Duration() * time.Duration(b.strategy.SlowPeriod*warmupMultiplier)
		start = now.Add(-lookback)
	}

	var attempt int
	for {
		bars, err := b.cfg.Fetcher.FetchBars(ctx, b.strategy.Symbol, b.strategy.Timeframe, start, time.Time{})
		if err == nil {
			return bars, nil
		}

		if !shared.IsTransient(err) || attempt >= b.cfg.MaxRetries {
			return nil, err
		}

		delay := b.cfg.BackoffBase * time.Duration(1<<attempt)
		attempt++
		fetchRetriesTotal.WithLabelValues(b.Key()).Inc()
		b.logger.Warn().Msgf("fetching bars (attempt %d/%d), retrying in %s: %v", attempt,
			b.cfg.MaxRetries, delay, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// tick runs a single polling iteration: it fetches new bars and applies them in order.
func (b *Bot) tick() {
	b.tickMtx.Lock()
	defer b.tickMtx.Unlock()

	if b.ctx.Err() != nil || b.State() != Running {
		return
	}

	now := b.cfg.Now()
	b.statusMtx.Lock()
	b.lastCheck = now
	b.nextCheck = now.Add(b.interval)
	b.statusMtx.Unlock()
	ticksTotal.WithLabelValues(b.Key()).Inc()

	if !b.marketOpen(now) {
		b.logger.Debug().Msgf("%s market closed, skipping poll", b.strategy.Symbol)
		return
	}

	bars, err := b.fetchBars(b.ctx, now)
	if err != nil {
		if b.ctx.Err() != nil {
			return
		}

		b.fail(fmt.Errorf("fetching %s bars: %w", b.strategy.Symbol, err))
		return
	}

	b.applyBars(bars)
}

// marketOpen checks whether the strategy's market trades at the provided time, allowing
// a timeframe of grace after close for the final bar of a session.
func (b *Bot) marketOpen(now time.Time) bool {
	for _, t := range []time.Time{now, now.Add(-b.strategy.Timeframe.Duration())} {
		open, err := shared.IsMarketOpen(b.strategy.Symbol, t)
		if err != nil {
			b.logger.Error().Msgf("checking market hours: %v", err)
			return true
		}
		if open {
			return true
		}
	}

	return false
}

// applyBars applies the bars newer than the last seen bar. The first bars fetched by a
// run only prime the signal engine.
func (b *Bot) applyBars(bars []shared.Bar) {
	priming := !b.primed
	if len(bars) > 0 {
		b.primed = true
	}

	var applied int
	for idx := range bars {
		// Cancellation is honoured between bars, never mid bar.
		if b.ctx.Err() != nil {
			return
		}

		bar := &bars[idx]

		b.statusMtx.RLock()
		lastBarSeen := b.lastBarSeen
		b.statusMtx.RUnlock()
		if !bar.Date.After(lastBarSeen) {
			continue
		}

		err := bar.Validate()
		if err != nil {
			b.logger.Error().Msgf("skipping invalid bar: %v\n%s", err, spew.Sdump(bar))
			continue
		}

		signal := b.engine.Update(bar)
		if priming {
			b.markBar(bar, shared.None)
			continue
		}

		b.applyBar(bar, signal)
		applied++
	}

	switch {
	case priming && len(bars) > 0:
		b.logger.Info().Msgf("primed signal engine with %d bars (initialized: %v)", len(bars),
			b.engine.Initialized())
	case applied > 0:
		b.logger.Debug().Msgf("applied %d new bars", applied)
	}
}

// markBar records the provided bar as seen along with the resulting engine and
// position state.
func (b *Bot) markBar(bar *shared.Bar, signal shared.Signal) {
	b.statusMtx.Lock()
	defer b.statusMtx.Unlock()

	b.lastBarSeen = bar.Date
	b.currentPrice = bar.Close
	b.emaState = b.engine.State()
	b.position = b.model.Position()
	if signal != shared.None {
		b.lastSignal = signal
		b.lastSignalTime = bar.Date
	}
}

// applyBar steps the position model with the bar and its signal, executing an order
// per resulting event. Failed orders roll the position back.
func (b *Bot) applyBar(bar *shared.Bar, signal shared.Signal) {
	if signal != shared.None {
		b.signalsGenerated.Inc()
		signalsTotal.WithLabelValues(b.Key(), signal.String()).Inc()
		b.logger.Info().Msgf("%s signal at %s (close %f)", signal.String(),
			bar.Date.Format(time.RFC3339), bar.Close)
	}

	snapshot := b.model.Snapshot()
	events, err := b.model.Step(signal, bar)
	if err != nil {
		b.model.Restore(snapshot)
		b.recordError(fmt.Errorf("applying bar at %s: %w", bar.Date.Format(time.RFC3339), err))
		b.markBar(bar, signal)
		return
	}

	for idx := range events {
		ok := b.execute(&events[idx])
		if ok {
			continue
		}

		if idx == 0 {
			b.model.Restore(snapshot)
		} else {
			// Opens only follow a completed close, leaving the model flat.
			b.model.Restore(position.Snapshot{})
		}

		break
	}

	b.markBar(bar, signal)
}

// execute submits the order for the provided event, reporting whether it succeeded.
func (b *Bot) execute(event *position.Event) bool {
	order := shared.OrderRequest{
		Symbol:   b.strategy.Symbol,
		Side:     event.Side(),
		Quantity: event.Position.Quantity,
		Type:     shared.MarketOrder,
	}

	// In-flight orders complete even when the run is being stopped.
	ctx := context.WithoutCancel(b.ctx)
	result, err := b.cfg.Broker.SubmitOrder(ctx, order)
	if err != nil {
		b.ordersFailed.Inc()
		ordersTotal.WithLabelValues(b.Key(), order.Side.String(), "failed").Inc()

		err = fmt.Errorf("%w: %s %s %s: %w", shared.ErrOrderSubmission, order.Side.String(),
			shared.FormatDecimal(order.Quantity), order.Symbol, err)
		b.logger.Error().Err(err).Msgf("%s order failed", event.Kind.String())
		b.recordError(err)
		return false
	}

	b.ordersPlaced.Inc()
	ordersTotal.WithLabelValues(b.Key(), order.Side.String(), "placed").Inc()
	b.logger.Info().Msgf("%s order %s placed for %s %s (status: %s)", order.Side.String(),
		result.ID, shared.FormatDecimal(order.Quantity), order.Symbol, result.Status)

	switch event.Kind {
	case position.Opened:
		b.model.SetEntryPrice(result.FilledPrice)

	case position.Closed:
		trade := *event.Trade
		if result.FilledPrice > 0 {
			pos := event.Position
			trade = pos.ClosePosition(result.FilledPrice, trade.ExitTime, trade.ExitReason)
		}

		b.recordTrade(&trade)
	}

	return true
}

// recordTrade appends the provided trade to the run's ledger.
func (b *Bot) recordTrade(trade *position.Trade) {
	b.statusMtx.Lock()
	b.trades = append(b.trades, *trade)
	b.realized += trade.PNL
	b.equity = append(b.equity, shared.EquityPoint{Date: trade.ExitTime, Equity: b.realized})
	b.statusMtx.Unlock()

	b.logger.Info().Msgf("closed %s %s trade (%s), pnl %f", trade.Direction.String(),
		trade.Market, trade.ExitReason.String(), trade.PNL)

	if b.cfg.PersistTrade != nil {
		err := b.cfg.PersistTrade(b.runID, trade)
		if err != nil {
			b.logger.Error().Msgf("persisting trade: %v", err)
		}
	}
}

// Status returns a snapshot of the bot's run.
func (b *Bot) Status() Status {
	b.statusMtx.RLock()
	defer b.statusMtx.RUnlock()

	var pos *position.Position
	if b.position != nil {
		p := *b.position
		pos = &p
	}

	trades := make([]position.Trade, len(b.trades))
	copy(trades, b.trades)

	return Status{
		Key:              b.Key(),
		RunID:            b.runID,
		Symbol:           b.strategy.Symbol,
		Timeframe:        b.strategy.Timeframe,
		State:            b.state,
		StartedAt:        b.startedAt,
		StoppedAt:        b.stoppedAt,
		LastBarSeen:      b.lastBarSeen,
		LastCheck:        b.lastCheck,
		NextCheck:        b.nextCheck,
		EmaState:         b.emaState,
		Position:         pos,
		SignalsGenerated: b.signalsGenerated.Load(),
		OrdersPlaced:     b.ordersPlaced.Load(),
		OrdersFailed:     b.ordersFailed.Load(),
		LastSignal:       b.lastSignal,
		LastSignalTime:   b.lastSignalTime,
		CurrentPrice:     b.currentPrice,
		LastError:        b.lastError,
		Trades:           trades,
		Metrics:          metrics.Calculate(trades, b.equity),
	}
}
