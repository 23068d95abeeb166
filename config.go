package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	// defaultInitialCapital is the default starting equity of backtests.
	defaultInitialCapital = 10000
	// defaultOutputDir is the default directory backtest ledgers are written to.
	defaultOutputDir = "results"
	// defaultAPIAddress is the default listening address of the status server.
	defaultAPIAddress = ":8080"
)

// Config is the configuration struct for the service.
type Config struct {
	// StrategiesFilepath is the filepath to the strategy definitions.
	StrategiesFilepath string
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
	// DBEndpoint is the optional database endpoint.
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
	// LogLevel is the logging level.
	LogLevel string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.StrategiesFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("strategies filepath cannot be an empty string"))
	}
	if cfg.LogLevel != "" {
		_, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("invalid log level: %w", err))
		}
	}
	if cfg.PollInterval < 0 {
		errs = errors.Join(errs, fmt.Errorf("poll interval cannot be negative"))
	}

	switch cfg.Backtest {
	case true:
		if cfg.BacktestDataFilepath == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest data filepath cannot be an empty string"))
		}
		if !(cfg.InitialCapital > 0) {
			errs = errors.Join(errs, fmt.Errorf("initial capital must be positive, got %f", cfg.InitialCapital))
		}
	case false:
		if cfg.AlpacaAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("alpaca api key cannot be an empty string"))
		}
		if cfg.AlpacaAPISecret == "" {
			errs = errors.Join(errs, fmt.Errorf("alpaca api secret cannot be an empty string"))
		}
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch v := value.(type) {
	case *string:
		def := *v
		if defValue != "" {
			def = defValue
		}
		flag.StringVar(v, name, def, usage)
	case *bool:
		def := *v
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(v, name, def, usage)
	case *float64:
		def := *v
		if defValue != "" {
			parsed, err := strconv.ParseFloat(defValue, 64)
			if err != nil {
				return fmt.Errorf("%s: parsing %q: %w", name, defValue, err)
			}
			def = parsed
		}
		flag.Float64Var(v, name, def, usage)
	case *time.Duration:
		def := *v
		if defValue != "" {
			parsed, err := time.ParseDuration(defValue)
			if err != nil {
				return fmt.Errorf("%s: parsing %q: %w", name, defValue, err)
			}
			def = parsed
		}
		flag.DurationVar(v, name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type %s", name, val.Elem().Kind())
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	cfg.InitialCapital = defaultInitialCapital
	cfg.OutputDir = defaultOutputDir
	cfg.APIAddress = defaultAPIAddress
	cfg.LogLevel = zerolog.InfoLevel.String()

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"strategies", &cfg.StrategiesFilepath, "the strategy definitions filepath"},
		{"alpacaapikey", &cfg.AlpacaAPIKey, "the Alpaca api key id"},
		{"alpacaapisecret", &cfg.AlpacaAPISecret, "the Alpaca api secret key"},
		{"alpacatradingurl", &cfg.AlpacaTradingURL, "the Alpaca trading api url"},
		{"alpacadataurl", &cfg.AlpacaDataURL, "the Alpaca market data api url"},
		{"alpacafeed", &cfg.AlpacaFeed, "the Alpaca stock data feed"},
		{"dbendpoint", &cfg.DBEndpoint, "the database endpoint"},
		{"dbuser", &cfg.DBUser, "the database user"},
		{"dbpass", &cfg.DBPass, "the database user pass"},
		{"apiaddress", &cfg.APIAddress, "the status server address"},
		{"pollinterval", &cfg.PollInterval, "the bot polling interval override"},
		{"backtest", &cfg.Backtest, "the backtest flag"},
		{"backtestdatafilepath", &cfg.BacktestDataFilepath, "the backtest data filepath"},
		{"initialcapital", &cfg.InitialCapital, "the backtest initial capital"},
		{"outputdir", &cfg.OutputDir, "the backtest ledger output directory"},
		{"loglevel", &cfg.LogLevel, "the logging level"},
	}

	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return cfg.Validate()
}
