package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossover_bot_ticks_total",
			Help: "Total number of bot polling ticks",
		},
		[]string{"key"},
	)

	signalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossover_bot_signals_total",
			Help: "Total number of crossover signals generated by bots",
		},
		[]string{"key", "signal"},
	)

	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossover_bot_orders_total",
			Help: "Total number of orders submitted by bots",
		},
		[]string{"key", "side", "outcome"},
	)

	fetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossover_bot_fetch_retries_total",
			Help: "Total number of retried market data fetches",
		},
		[]string{"key"},
	)

	botState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossover_bot_state",
			Help: "Current bot state (0 stopped, 1 starting, 2 running, 3 stopping, 4 failed)",
		},
		[]string{"key"},
	)
)
