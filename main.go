package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/dnldd/crossover/service"
	"github.com/dnldd/crossover/shared"
	"github.com/rs/zerolog"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Printf("parsing log level: %v", err)
		return
	}
	zerolog.SetGlobalLevel(level)

	strategies, err := shared.LoadStrategyConfigs(cfg.StrategiesFilepath)
	if err != nil {
		log.Printf("loading strategies: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcCfg := service.ServiceConfig{
		Strategies:           strategies,
		AlpacaAPIKey:         cfg.AlpacaAPIKey,
		AlpacaAPISecret:      cfg.AlpacaAPISecret,
		AlpacaTradingURL:     cfg.AlpacaTradingURL,
		AlpacaDataURL:        cfg.AlpacaDataURL,
		AlpacaFeed:           cfg.AlpacaFeed,
		DBEndpoint:           cfg.DBEndpoint,
		DBUser:               cfg.DBUser,
		DBPass:               cfg.DBPass,
		APIAddress:           cfg.APIAddress,
		PollInterval:         cfg.PollInterval,
		Backtest:             cfg.Backtest,
		BacktestDataFilepath: cfg.BacktestDataFilepath,
		InitialCapital:       cfg.InitialCapital,
		OutputDir:            cfg.OutputDir,
		Cancel:               cancel,
	}
	svc, err := service.NewService(ctx, &svcCfg)
	if err != nil {
		log.Printf("creating crossover service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	svc.Run(ctx)
}
