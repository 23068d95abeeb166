package shared

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StrategyConfig represents the configuration of an EMA crossover strategy.
type StrategyConfig struct {
	// ID optionally names the strategy. It doubles as the strategy key when set.
	ID string `json:"id" yaml:"id"`
	// Symbol is the traded market.
	Symbol string `json:"symbol" yaml:"symbol"`
	// Timeframe is the bar timeframe the strategy evaluates.
	Timeframe Timeframe `json:"timeframe" yaml:"timeframe"`
	// FastPeriod is the fast EMA period.
	FastPeriod int `json:"fastPeriod" yaml:"fastPeriod"`
	// SlowPeriod is the slow EMA period.
	SlowPeriod int `json:"slowPeriod" yaml:"slowPeriod"`
	// Quantity is the position size per trade.
	Quantity float64 `json:"quantity" yaml:"-"`
	// StopLossPercent closes positions moving this percent against them, zero disables it.
	StopLossPercent float64 `json:"stopLossPercent" yaml:"stopLossPercent"`
	// TakeProfitPercent closes positions moving this percent in their favour, zero disables it.
	TakeProfitPercent float64 `json:"takeProfitPercent" yaml:"takeProfitPercent"`
	// AllowShort opens short positions on sell signals while flat. Only honoured by backtests.
	AllowShort bool `json:"allowShort" yaml:"allowShort"`
}

// Key returns the registry key of the strategy.
func (cfg *StrategyConfig) Key() string {
	if cfg.ID != "" {
		return cfg.ID
	}

	return fmt.Sprintf("%s:%s:%d:%d", cfg.Symbol, cfg.Timeframe.String(), cfg.FastPeriod, cfg.SlowPeriod)
}

// Validate asserts the config sane inputs.
func (cfg *StrategyConfig) Validate() error {
	var errs error

	if strings.TrimSpace(cfg.Symbol) == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.Timeframe.Duration() == 0 {
		errs = errors.Join(errs, fmt.Errorf("unknown timeframe provided: %d", cfg.Timeframe))
	}
	if cfg.FastPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("fast period must be positive, got %d", cfg.FastPeriod))
	}
	if cfg.SlowPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("slow period must be positive, got %d", cfg.SlowPeriod))
	}
	if cfg.FastPeriod > 0 && cfg.SlowPeriod > 0 && cfg.FastPeriod >= cfg.SlowPeriod {
		errs = errors.Join(errs, fmt.Errorf("fast period (%d) must be less than slow period (%d)",
			cfg.FastPeriod, cfg.SlowPeriod))
	}
	if !(cfg.Quantity > 0) {
		errs = errors.Join(errs, fmt.Errorf("quantity must be positive, got %f", cfg.Quantity))
	}
	if cfg.StopLossPercent < 0 || cfg.StopLossPercent >= 100 {
		errs = errors.Join(errs, fmt.Errorf("stop loss percent must be within (0, 100), got %f",
			cfg.StopLossPercent))
	}
	if cfg.TakeProfitPercent < 0 || cfg.TakeProfitPercent >= 100 {
		errs = errors.Join(errs, fmt.Errorf("take profit percent must be within (0, 100), got %f",
			cfg.TakeProfitPercent))
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}

	return nil
}

// UnmarshalYAML decodes a strategy config, normalizing string or numeric quantities.
func (cfg *StrategyConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain StrategyConfig
	raw := struct {
		plain    `yaml:",inline"`
		Quantity any `yaml:"quantity"`
	}{}

	err := value.Decode(&raw)
	if err != nil {
		return err
	}

	qty, err := ParseDecimal(raw.Quantity)
	if err != nil {
		return fmt.Errorf("parsing quantity: %w", err)
	}

	*cfg = StrategyConfig(raw.plain)
	cfg.Quantity = qty

	return nil
}

// LoadStrategyConfigs loads and validates the strategy configurations in the provided
// yaml file.
func LoadStrategyConfigs(path string) ([]StrategyConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategies from file with path '%s': %w", path, err)
	}

	var doc struct {
		Strategies []StrategyConfig `yaml:"strategies"`
	}

	err = yaml.Unmarshal(b, &doc)
	if err != nil {
		return nil, fmt.Errorf("parsing strategies: %w", err)
	}

	if len(doc.Strategies) == 0 {
		return nil, fmt.Errorf("no strategies found in '%s'", path)
	}

	keys := make(map[string]struct{}, len(doc.Strategies))
	for idx := range doc.Strategies {
		cfg := &doc.Strategies[idx]
		err := cfg.Validate()
		if err != nil {
			return nil, fmt.Errorf("strategy %d (%s): %w", idx, cfg.Key(), err)
		}

		key := cfg.Key()
		if _, ok := keys[key]; ok {
			return nil, fmt.Errorf("duplicate strategy key: %s", key)
		}
		keys[key] = struct{}{}
	}

	return doc.Strategies, nil
}
