package jobqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arsound/arsound/internal/pkg/logger"
)

// Flusher drains buffered counters into the database.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Manager runs the job queue together with the periodic background tasks.
type Manager struct {
	queue              *Queue
	counters           Flusher
	counterFlushTicker *time.Ticker
	flushInterval      time.Duration
	log                *slog.Logger
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

// NewManager wires the queue and an optional counter flusher.
func NewManager(queue *Queue, counters Flusher, flushInterval time.Duration) *Manager {
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Manager{
		queue:         queue,
		counters:      counters,
		flushInterval: flushInterval,
		log:           logger.Get().With("component", "jobqueue.manager"),
		stopCh:        make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// fresh channel per cycle so the manager can be restarted
	m.stopCh = make(chan struct{})
	m.running = true

	m.queue.Start()

	if m.counters != nil {
		m.counterFlushTicker = time.NewTicker(m.flushInterval)
		m.wg.Add(1)
		go m.counterFlushWorker(m.stopCh, m.counterFlushTicker)
	}

	m.log.Info("started", "flush_interval", m.flushInterval)
}

// Stop stops the job queue and background tasks, flushing counters once more.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	if m.counters != nil {
		if err := m.counters.Flush(context.Background()); err != nil {
			m.log.Error("final counter flush failed", "error", err)
		}
	}
	m.log.Info("stopped")
}

// counterFlushWorker periodically flushes buffered counters from Redis to DB
func (m *Manager) counterFlushWorker(stop <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.counters.Flush(context.Background()); err != nil {
				m.log.Error("counter flush failed", "error", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
