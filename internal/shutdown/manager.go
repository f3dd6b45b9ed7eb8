// Package shutdown turns SIGINT/SIGTERM into context cancellation and runs
// registered cleanup hooks in reverse order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"offline-enhancer/internal/logger"
)

// ComponentTimeout bounds each component's Shutdown call
const ComponentTimeout = 10 * time.Second

// Shutdownable is satisfied by *http.Server and by anything wrapped in Func
type Shutdownable interface {
	Shutdown(ctx context.Context) error
}

// Func adapts a plain function to Shutdownable
type Func func(ctx context.Context) error

func (f Func) Shutdown(ctx context.Context) error { return f(ctx) }

type Manager struct {
	components []namedComponent
	logger     logger.Logger
	mu         sync.Mutex
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	stopSignal func()
}

type namedComponent struct {
	name      string
	component Shutdownable
}

func NewManager(parent context.Context, log logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)

	return &Manager{
		logger: log,
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (m *Manager) Register(name string, component Shutdownable) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components = append(m.components, namedComponent{name: name, component: component})
}

// Listen starts shutdown on the first interrupt. A second signal falls back
// to the default behaviour and kills the process.
func (m *Manager) Listen() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	m.mu.Lock()
	m.stopSignal = func() { signal.Stop(sigChan) }
	m.mu.Unlock()

	go func() {
		select {
		case sig := <-sigChan:
			signal.Stop(sigChan)
			m.logger.Info("ShutdownManager", "shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
			m.Shutdown()
		case <-m.done:
		}
	}()
}

// Shutdown cancels the context and shuts components down, last registered
// first. Calling it more than once is a no-op.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}

	if m.stopSignal != nil {
		m.stopSignal()
	}

	m.logger.Info("ShutdownManager", "shutdown sequence initiated", map[string]interface{}{
		"components": len(m.components),
	})

	m.cancel()

	for i := len(m.components) - 1; i >= 0; i-- {
		c := m.components[i]

		ctx, cancel := context.WithTimeout(context.Background(), ComponentTimeout)
		errc := make(chan error, 1)
		go func() {
			errc <- c.component.Shutdown(ctx)
		}()

		select {
		case err := <-errc:
			if err != nil {
				m.logger.Error("ShutdownManager", err, map[string]interface{}{
					"component": c.name,
				})
			}
		case <-ctx.Done():
			m.logger.Warning("ShutdownManager", "component shutdown timeout", map[string]interface{}{
				"component": c.name,
			})
		}
		cancel()
	}

	m.logger.Info("ShutdownManager", "shutdown sequence completed", nil)
}

// Context is cancelled as soon as shutdown starts
func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}
