package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownFunc releases one resource during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager stops the API server and then runs the registered hooks
// in registration order, all under one deadline
type ShutdownManager struct {
	logger  *logrus.Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	hooks []ShutdownFunc
	once  sync.Once
	err   error
}

// NewShutdownManager creates a shutdown manager. server may be nil.
func NewShutdownManager(logger *logrus.Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{logger: logger, server: server, timeout: timeout}
}

// RegisterShutdownFunc appends a hook
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM and then shuts down
func (sm *ShutdownManager) WaitForShutdown() error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	sig := <-sigs
	sm.logger.WithField("signal", sig.String()).Info("shutdown signal received")
	return sm.Shutdown()
}

// Shutdown stops the server and runs the hooks. Only the first call does
// any work; later calls return its result.
func (sm *ShutdownManager) Shutdown() error {
	sm.once.Do(func() {
		sm.err = sm.shutdown()
	})
	return sm.err
}

func (sm *ShutdownManager) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.logger.Info("HTTP server stopped")
	}

	sm.mu.Lock()
	hooks := append([]ShutdownFunc(nil), sm.hooks...)
	sm.mu.Unlock()

	var errs []error
	for i, hook := range hooks {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown deadline exceeded before hook %d", i))
			break
		}
		if err := hook(ctx); err != nil {
			sm.logger.WithError(err).WithField("hook", i).Error("shutdown hook failed")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %w", len(errs), errors.Join(errs...))
	}

	sm.logger.Info("graceful shutdown complete")
	return nil
}
