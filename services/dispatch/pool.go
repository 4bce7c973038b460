package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/action-gate/services"
	"go.uber.org/zap"
)

// Handler processes one queued invocation
type Handler func(ctx context.Context, invocationID string) error

// PoolConfig holds configuration for the Pool
type PoolConfig struct {
	QueueSize   int // Size of the job buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultPoolConfig returns the default configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		QueueSize:   256,
		WorkerCount: 4,
	}
}

// Pool runs dispatches in the background. Jobs carry only the invocation id;
// the handler reloads the invocation so a job never acts on stale state.
type Pool struct {
	handler     Handler
	logger      *zap.Logger
	jobs        chan string
	workerCount int
	queueSize   int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.RWMutex
}

// NewPool creates a new Pool
func NewPool(handler Handler, logger *zap.Logger, config PoolConfig) *Pool {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		handler:     handler,
		logger:      logger,
		jobs:        make(chan string, config.QueueSize),
		workerCount: config.WorkerCount,
		queueSize:   config.QueueSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("dispatch pool already started")
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
	p.logger.Info("started dispatch pool",
		zap.Int("worker_count", p.workerCount),
		zap.Int("queue_size", p.queueSize))

	return nil
}

// Stop stops accepting jobs and waits for queued ones to finish
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("dispatch pool not running")
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("stopping dispatch pool", zap.Int("pending_jobs", len(p.jobs)))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("dispatch pool stopped gracefully")
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("dispatch pool stop timeout after %v", timeout)
	}
}

// Enqueue queues a dispatch without blocking. A full queue returns
// ErrQueueFull; the invocation stays in its current state for Recover.
func (p *Pool) Enqueue(invocationID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.stopped {
		return services.ErrQueueStopped
	}

	select {
	case p.jobs <- invocationID:
		return nil
	default:
		p.logger.Warn("dispatch queue full", zap.String("invocation_id", invocationID))
		return services.ErrQueueFull
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("dispatch worker started", zap.Int("worker_id", id))

	for invocationID := range p.jobs {
		if p.ctx.Err() != nil {
			p.logger.Warn("dropping queued dispatch during shutdown",
				zap.Int("worker_id", id),
				zap.String("invocation_id", invocationID))
			continue
		}
		if err := p.handler(p.ctx, invocationID); err != nil {
			p.logger.Error("failed to process dispatch",
				zap.Int("worker_id", id),
				zap.String("invocation_id", invocationID),
				zap.Error(err))
		}
	}

	p.logger.Debug("dispatch worker stopped", zap.Int("worker_id", id))
}

// GetStats returns statistics about the pool
func (p *Pool) GetStats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		QueueSize:   p.queueSize,
		PendingJobs: len(p.jobs),
		WorkerCount: p.workerCount,
		Started:     p.started && !p.stopped,
	}
}

// PoolStats represents pool statistics
type PoolStats struct {
	QueueSize   int  `json:"queue_size"`
	PendingJobs int  `json:"pending_jobs"`
	WorkerCount int  `json:"worker_count"`
	Started     bool `json:"started"`
}
