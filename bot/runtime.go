package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dnldd/crossover/position"
	"github.com/dnldd/crossover/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// defaultMaxRetries is the default number of retries for transient fetch failures.
	defaultMaxRetries = 3
	// defaultBackoffBase is the default delay before the first fetch retry.
	defaultBackoffBase = time.Second
)

// RuntimeConfig represents the bot runtime configuration.
type RuntimeConfig struct {
	// Fetcher fetches live market data.
	Fetcher shared.MarketFetcher
	// Broker submits orders.
	Broker shared.OrderSubmitter
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// PollInterval overrides the timeframe derived polling interval when set.
	PollInterval time.Duration
	// MaxRetries is the number of retries for transient fetch failures.
	MaxRetries int
	// BackoffBase is the delay before the first fetch retry, doubled per retry.
	BackoffBase time.Duration
	// PersistTrade persists a closed trade of the provided run.
	PersistTrade func(runID string, trade *position.Trade) error
	// PersistRun persists the provided run status on state changes.
	PersistRun func(status *Status) error
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *RuntimeConfig) Validate() error {
	var errs error

	if cfg.Fetcher == nil {
		errs = errors.Join(errs, fmt.Errorf("market fetcher cannot be nil"))
	}
	if cfg.Broker == nil {
		errs = errors.Join(errs, fmt.Errorf("order submitter cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.PollInterval < 0 {
		errs = errors.Join(errs, fmt.Errorf("poll interval cannot be negative"))
	}
	if cfg.MaxRetries < 0 {
		errs = errors.Join(errs, fmt.Errorf("max retries cannot be negative"))
	}
	if cfg.BackoffBase < 0 {
		errs = errors.Join(errs, fmt.Errorf("backoff base cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Runtime represents the registry of live strategy runs, at most one active run per
// strategy key.
type Runtime struct {
	cfg    *RuntimeConfig
	bots   map[string]*Bot
	mtx    sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuntime initializes the bot runtime.
func NewRuntime(cfg *RuntimeConfig) (*Runtime, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating runtime config: %w", err)
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	rt := &Runtime{
		cfg:    cfg,
		bots:   make(map[string]*Bot),
		ctx:    ctx,
		cancel: cancel,
	}

	return rt, nil
}

// claim registers a fresh bot for the provided strategy, failing when the strategy key
// already has an active run.
func (r *Runtime) claim(strategy shared.StrategyConfig) (*Bot, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	key := strategy.Key()
	existing, ok := r.bots[key]
	if ok && existing.State().Active() {
		return nil, fmt.Errorf("%w: %s is %s", shared.ErrAlreadyRunning, key, existing.State().String())
	}

	b, err := newBot(r.ctx, strategy, r.cfg)
	if err != nil {
		return nil, err
	}

	r.bots[key] = b

	return b, nil
}

// Start starts a fresh live run of the provided strategy.
func (r *Runtime) Start(ctx context.Context, strategy shared.StrategyConfig) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	if err := r.ctx.Err(); err != nil {
		return Status{}, fmt.Errorf("runtime shut down: %w", err)
	}

	err := strategy.Validate()
	if err != nil {
		return Status{}, err
	}

	b, err := r.claim(strategy)
	if err != nil {
		return Status{}, err
	}

	botState.WithLabelValues(b.Key()).Set(float64(Starting))

	if !b.transition(Starting, Running) {
		return b.Status(), fmt.Errorf("%s stopped while starting", b.Key())
	}

	_, err = r.cfg.JobScheduler.Every(b.interval).SingletonMode().Tag(b.runID).Do(b.tick)
	if err != nil {
		b.fail(fmt.Errorf("scheduling polling job: %w", err))
		return b.Status(), fmt.Errorf("scheduling %s: %w", b.Key(), err)
	}

	// Stops issued before the job was scheduled had nothing to remove.
	if b.State() != Running {
		b.removeJob()
		return b.Status(), fmt.Errorf("%s stopped while starting", b.Key())
	}

	b.logger.Info().Msgf("polling %s %s every %s", b.strategy.Symbol, b.strategy.Timeframe.String(),
		b.interval)

	return b.Status(), nil
}

// Stop stops the active run of the provided strategy key. Stopping an inactive run is
// a no-op.
func (r *Runtime) Stop(key string) error {
	b, err := r.fetchBot(key)
	if err != nil {
		return err
	}

	b.stop()

	return nil
}

// fetchBot returns the bot registered for the provided strategy key.
func (r *Runtime) fetchBot(key string) (*Bot, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	b, ok := r.bots[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownStrategy, key)
	}

	return b, nil
}

// Status returns the status of the latest run of the provided strategy key.
func (r *Runtime) Status(key string) (Status, error) {
	b, err := r.fetchBot(key)
	if err != nil {
		return Status{}, err
	}

	return b.Status(), nil
}

// Statuses returns the status of the latest run of every registered strategy key,
// ordered by key.
func (r *Runtime) Statuses() []Status {
	r.mtx.Lock()
	bots := make([]*Bot, 0, len(r.bots))
	for _, b := range r.bots {
		bots = append(bots, b)
	}
	r.mtx.Unlock()

	statuses := make([]Status, 0, len(bots))
	for idx := range bots {
		statuses = append(statuses, bots[idx].Status())
	}

	slices.SortFunc(statuses, func(a, b Status) int {
		return strings.Compare(a.Key, b.Key)
	})

	return statuses
}

// Shutdown stops every active run. The runtime cannot start runs afterwards.
func (r *Runtime) Shutdown() {
	r.mtx.Lock()
	bots := make([]*Bot, 0, len(r.bots))
	for _, b := range r.bots {
		bots = append(bots, b)
	}
	r.mtx.Unlock()

	var wg sync.WaitGroup
	for idx := range bots {
		wg.Add(1)
		go func(b *Bot) {
			defer wg.Done()
			b.stop()
		}(bots[idx])
	}
	wg.Wait()

	r.cancel()
}

// Run manages the lifecycle processes of the bot runtime.
func (r *Runtime) Run(ctx context.Context) {
	r.cfg.JobScheduler.StartAsync()

	<-ctx.Done()

	r.Shutdown()
	r.cfg.JobScheduler.Stop()
	r.cfg.Logger.Info().Msg("bot runtime stopped")
}
