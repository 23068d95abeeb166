package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
)

func validStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Symbol:            "BTC/USD",
		Timeframe:         FiveMinute,
		FastPeriod:        9,
		SlowPeriod:        21,
		Quantity:          0.5,
		StopLossPercent:   2,
		TakeProfitPercent: 5,
	}
}

func TestStrategyConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(cfg *StrategyConfig)
		wantErr     bool
		errContains []string
	}{
		{
			name:    "valid config returns nil",
			modify:  func(cfg *StrategyConfig) {},
			wantErr: false,
		},
		{
			name: "unset risk percents are valid",
			modify: func(cfg *StrategyConfig) {
				cfg.StopLossPercent = 0
				cfg.TakeProfitPercent = 0
			},
			wantErr: false,
		},
		{
			name:        "missing symbol",
			modify:      func(cfg *StrategyConfig) { cfg.Symbol = " " },
			wantErr:     true,
			errContains: []string{"symbol cannot be an empty string"},
		},
		{
			name:        "unknown timeframe",
			modify:      func(cfg *StrategyConfig) { cfg.Timeframe = Timeframe(99) },
			wantErr:     true,
			errContains: []string{"unknown timeframe"},
		},
		{
			name:        "zero fast period",
			modify:      func(cfg *StrategyConfig) { cfg.FastPeriod = 0 },
			wantErr:     true,
			errContains: []string{"fast period must be positive"},
		},
		{
			name:        "negative slow period",
			modify:      func(cfg *StrategyConfig) { cfg.SlowPeriod = -3 },
			wantErr:     true,
			errContains: []string{"slow period must be positive"},
		},
		{
			name: "fast period equal to slow period",
			modify: func(cfg *StrategyConfig) {
				cfg.FastPeriod = 10
				cfg.SlowPeriod = 10
			},
			wantErr:     true,
			errContains: []string{"must be less than slow period"},
		},
		{
			name: "fast period above slow period",
			modify: func(cfg *StrategyConfig) {
				cfg.FastPeriod = 30
				cfg.SlowPeriod = 10
			},
			wantErr:     true,
			errContains: []string{"must be less than slow period"},
		},
		{
			name:        "non positive quantity",
			modify:      func(cfg *StrategyConfig) { cfg.Quantity = 0 },
			wantErr:     true,
			errContains: []string{"quantity must be positive"},
		},
		{
			name:        "stop loss out of range",
			modify:      func(cfg *StrategyConfig) { cfg.StopLossPercent = 100 },
			wantErr:     true,
			errContains: []string{"stop loss percent"},
		},
		{
			name:        "take profit out of range",
			modify:      func(cfg *StrategyConfig) { cfg.TakeProfitPercent = -1 },
			wantErr:     true,
			errContains: []string{"take profit percent"},
		},
		{
			name: "multiple errors",
			modify: func(cfg *StrategyConfig) {
				cfg.Symbol = ""
				cfg.Quantity = -1
			},
			wantErr:     true,
			errContains: []string{"symbol cannot be an empty string", "quantity must be positive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validStrategyConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected an invalid config error, got %v", err)
				}
				for _, want := range tt.errContains {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			} else if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestStrategyConfigKey(t *testing.T) {
	cfg := validStrategyConfig()
	assert.Equal(t, cfg.Key(), "BTC/USD:5Min:9:21")

	cfg.ID = "btc-scalper"
	assert.Equal(t, cfg.Key(), "btc-scalper")
}

func writeStrategiesFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	err := os.WriteFile(path, []byte(content), 0o600)
	assert.NoError(t, err)
	return path
}

func TestLoadStrategyConfigs(t *testing.T) {
	content := `
strategies:
  - id: btc
    symbol: BTC/USD
    timeframe: 5Min
    fastPeriod: 9
    slowPeriod: 21
    quantity: "0.015"
    stopLossPercent: 2
    takeProfitPercent: 4.5
  - symbol: AAPL
    timeframe: 1Hour
    fastPeriod: 12
    slowPeriod: 26
    quantity: 10
    allowShort: true
`
	// Ensure valid strategies load with normalized quantities.
	cfgs, err := LoadStrategyConfigs(writeStrategiesFile(t, content))
	assert.NoError(t, err)
	assert.Equal(t, len(cfgs), 2)
	assert.Equal(t, cfgs[0].Key(), "btc")
	assert.Equal(t, cfgs[0].Timeframe, FiveMinute)
	assert.Equal(t, cfgs[0].Quantity, 0.015)
	assert.Equal(t, cfgs[0].TakeProfitPercent, 4.5)
	assert.Equal(t, cfgs[1].Key(), "AAPL:1Hour:12:26")
	assert.Equal(t, cfgs[1].Quantity, float64(10))
	assert.True(t, cfgs[1].AllowShort)

	// Ensure invalid strategies are rejected at load.
	invalid := `
strategies:
  - symbol: AAPL
    timeframe: 1Hour
    fastPeriod: 26
    slowPeriod: 12
    quantity: 10
`
	_, err = LoadStrategyConfigs(writeStrategiesFile(t, invalid))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	// Ensure duplicate keys are rejected.
	duplicate := `
strategies:
  - {id: a, symbol: AAPL, timeframe: 1Hour, fastPeriod: 2, slowPeriod: 4, quantity: 1}
  - {id: a, symbol: MSFT, timeframe: 1Hour, fastPeriod: 2, slowPeriod: 4, quantity: 1}
`
	_, err = LoadStrategyConfigs(writeStrategiesFile(t, duplicate))
	assert.Error(t, err)

	// Ensure an empty document errors.
	_, err = LoadStrategyConfigs(writeStrategiesFile(t, "strategies: []"))
	assert.Error(t, err)

	// Ensure a missing file errors.
	_, err = LoadStrategyConfigs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
