// Package server wires the chat relay together and runs it: it builds the
// completion backend, the processor and the router from a configuration,
// serves HTTP, applies reloaded configuration and shuts down gracefully.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/logging"
	"github.com/teilomillet/assure/server/circuitbreaker"
	"github.com/teilomillet/assure/server/handlers"
	"github.com/teilomillet/assure/server/metrics"
	"github.com/teilomillet/assure/server/processing"
	"github.com/teilomillet/assure/server/provider"
	"github.com/teilomillet/assure/server/routing"
	"github.com/teilomillet/assure/server/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *routing.Router
	processor  *processing.Processor
	chat       *handlers.ChatHandler
	guard      *provider.Guard
	metrics    *metrics.Metrics
	watcher    config.Watcher
	logger     *zap.Logger

	level     zap.AtomicLevel
	hasLevel  bool
	completer provider.Completer
	counter   processing.TokenCounter

	mu  sync.RWMutex
	cfg *config.Config
}

// Option customizes a Server.
type Option func(*Server)

// WithCompleter replaces the backend selected by llm.provider.
func WithCompleter(c provider.Completer) Option {
	return func(s *Server) { s.completer = c }
}

// WithTokenCounter replaces the tiktoken counter.
func WithTokenCounter(tc processing.TokenCounter) Option {
	return func(s *Server) { s.counter = tc }
}

// WithLogLevel lets reloads of logging.level adjust the process logger.
func WithLogLevel(level zap.AtomicLevel) Option {
	return func(s *Server) {
		s.level = level
		s.hasLevel = true
	}
}

// NewServer builds the server from the watcher's current configuration.
func NewServer(watcher config.Watcher, logger *zap.Logger, opts ...Option) (*Server, error) {
	cfg := watcher.GetCurrentConfig()
	if cfg == nil {
		return nil, fmt.Errorf("no configuration available")
	}

	s := &Server{
		watcher: watcher,
		logger:  logger,
		cfg:     cfg,
		metrics: metrics.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.completer == nil {
		c, err := provider.New(cfg.LLM, logger)
		if err != nil {
			return nil, fmt.Errorf("create completion provider: %w", err)
		}
		s.completer = c
	}
	if s.counter == nil {
		s.counter = validation.NewTokenCounter(cfg.LLM.Model, logger)
	}

	breaker := circuitbreaker.NewCircuitBreaker("completion", cfg.CircuitBreaker, logger, s.metrics)
	s.guard = provider.NewGuard(s.completer, breaker, cfg.LLM.Timeout, logger, s.metrics)

	processor, err := processing.NewProcessor(cfg, s.guard, s.counter, logger, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("create processor: %w", err)
	}
	s.processor = processor
	s.chat = handlers.NewChatHandler(processor, cfg.Chat, cfg.LLM.Timeout, logger, s.metrics)

	s.router = routing.NewRouter(cfg, routing.Dependencies{
		Chat:    s.chat,
		Health:  s.guard,
		Metrics: s.metrics,
	}, logger)

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       zap.NewStdLog(logger.Named("http")),
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Config returns the configuration currently applied.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Start listens on the configured port and blocks until ctx is done or the
// server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests for at most server.shutdown_timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server started",
			zap.String("address", ln.Addr().String()),
			zap.String("provider", s.guard.Name()),
			zap.String("model", s.guard.Model()),
		)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.watchConfig(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	timeout := s.Config().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down server", zap.Duration("timeout", timeout))
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	if q := s.router.Queue(); q != nil {
		if err := q.Shutdown(ctx); err != nil {
			return fmt.Errorf("drain admission queue: %w", err)
		}
	}
	return nil
}

func (s *Server) watchConfig(ctx context.Context) {
	updates := s.watcher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.applyConfig(cfg)
		}
	}
}

// applyConfig applies the reloadable parts of cfg: the prompt, the chat
// logging hook, the log level and the queue limits. Other sections are
// read once at startup.
func (s *Server) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.mu.RLock()
	prev := s.cfg
	s.mu.RUnlock()
	if cfg == prev {
		return
	}

	if err := s.processor.UpdatePrompt(cfg.Prompt); err != nil {
		s.logger.Error("failed to apply reloaded prompt, keeping previous one", zap.Error(err))
		return
	}
	s.chat.SetLogRequests(cfg.Chat.LogRequests)
	if s.hasLevel {
		s.level.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	}
	if q := s.router.Queue(); q != nil {
		q.SetLimits(cfg.Queue.MaxConcurrent, cfg.Queue.MaxWaiting)
		q.SetMaxWait(cfg.Queue.MaxWait)
	}

	if prev != nil && needsRestart(prev, cfg) {
		s.logger.Warn("changes to server, llm, rate_limit, metrics or uploads take effect after restart")
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Info("configuration reloaded")
}

func needsRestart(prev, next *config.Config) bool {
	return prev.Server != next.Server ||
		prev.LLM.Provider != next.LLM.Provider ||
		prev.LLM.Model != next.LLM.Model ||
		prev.LLM.Endpoint != next.LLM.Endpoint ||
		prev.LLM.APIKey != next.LLM.APIKey ||
		prev.LLM.Timeout != next.LLM.Timeout ||
		prev.RateLimit != next.RateLimit ||
		prev.Queue.Enabled != next.Queue.Enabled ||
		prev.Metrics != next.Metrics ||
		prev.Uploads != next.Uploads
}
