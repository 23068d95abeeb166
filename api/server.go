package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dnldd/crossover/bot"
	"github.com/dnldd/crossover/shared"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	// shutdownTimeout is the maximum duration allowed for a graceful shutdown.
	shutdownTimeout = time.Second * 5
)

// BotController defines the requirements for controlling live strategy runs.
type BotController interface {
	// Start starts a fresh live run of the provided strategy.
	Start(ctx context.Context, strategy shared.StrategyConfig) (bot.Status, error)
	// Stop stops the active run of the provided strategy key.
	Stop(key string) error
	// Status returns the status of the latest run of the provided strategy key.
	Status(key string) (bot.Status, error)
	// Statuses returns the status of the latest run of every strategy key.
	Statuses() []bot.Status
}

// ServerConfig represents the status server configuration.
type ServerConfig struct {
	// Address is the listening address of the server.
	Address string
	// Controller controls live strategy runs.
	Controller BotController
	// Strategies are the configured strategies that can be started.
	Strategies []shared.StrategyConfig
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ServerConfig) Validate() error {
	var errs error

	if cfg.Address == "" {
		errs = errors.Join(errs, fmt.Errorf("server address cannot be an empty string"))
	}
	if cfg.Controller == nil {
		errs = errors.Join(errs, fmt.Errorf("bot controller cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Server represents the bot status server.
type Server struct {
	cfg        *ServerConfig
	router     *gin.Engine
	strategies map[string]shared.StrategyConfig
}

// NewServer initializes the status server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	strategies := make(map[string]shared.StrategyConfig, len(cfg.Strategies))
	for idx := range cfg.Strategies {
		strategies[cfg.Strategies[idx].Key()] = cfg.Strategies[idx]
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Strategy keys may hold escaped slashes, such as BTC%2FUSD:5Min:12:26.
	router.UseRawPath = true
	router.UnescapePathValues = true

	s := &Server{
		cfg:        cfg,
		router:     router,
		strategies: strategies,
	}

	router.GET("/health", s.handleHealth)
	router.GET("/bots", s.handleListBots)
	router.GET("/bots/:key", s.handleGetBot)
	router.POST("/bots/:key/start", s.handleStartBot)
	router.POST("/bots/:key/stop", s.handleStopBot)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s, nil
}

// Handler returns the server's http handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// errorStatus maps the provided error to an http status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrUnknownStrategy):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the provided error as a json response.
func (s *Server) respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.cfg.Logger.Error().Msgf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	statuses := s.cfg.Controller.Statuses()

	var running, failed int
	for idx := range statuses {
		switch statuses[idx].State {
		case bot.Running:
			running++
		case bot.Failed:
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": running,
		"failed":  failed,
	})
}

func (s *Server) handleListBots(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Controller.Statuses())
}

func (s *Server) handleGetBot(c *gin.Context) {
	status, err := s.cfg.Controller.Status(c.Param("key"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) handleStartBot(c *gin.Context) {
	key := c.Param("key")
	strategy, ok := s.strategies[key]
	if !ok {
		s.respondError(c, fmt.Errorf("%w: %s is not configured", shared.ErrUnknownStrategy, key))
		return
	}

	status, err := s.cfg.Controller.Start(c.Request.Context(), strategy)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.cfg.Logger.Info().Msgf("started %s (run %s)", key, status.RunID)
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleStopBot(c *gin.Context) {
	key := c.Param("key")
	err := s.cfg.Controller.Stop(key)
	if err != nil {
		s.respondError(c, err)
		return
	}

	status, err := s.cfg.Controller.Status(key)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.cfg.Logger.Info().Msgf("stopped %s (run %s)", key, status.RunID)
	c.JSON(http.StatusOK, status)
}

// Run serves the status server until the provided context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: time.Second * 10,
	}

	errs := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info().Msgf("status server listening on %s", s.cfg.Address)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving status server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("shutting down status server: %w", err)
		}

		return nil
	}
}
