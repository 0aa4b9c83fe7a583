package sync

import (
	"net/http"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/zap"
)

// Monitor reports device connectivity.
type Monitor interface {
	Online() bool
}

// PollingMonitor probes a health endpoint on an interval and reports
// connect/disconnect transitions to registered callbacks.
type PollingMonitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *logging.Service

	online atomic.Bool

	mu        stdsync.Mutex
	callbacks []func(online bool)

	stop chan struct{}
	done chan struct{}
}

func NewPollingMonitor(healthURL string, interval time.Duration, logger *logging.Service) *PollingMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &PollingMonitor{
		url:      healthURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *PollingMonitor) Online() bool {
	return m.online.Load()
}

// OnTransition registers a callback invoked on every connectivity change.
// Callbacks registered before Start also receive the initial probe result.
func (m *PollingMonitor) OnTransition(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

func (m *PollingMonitor) Start() {
	go m.loop()
}

func (m *PollingMonitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *PollingMonitor) loop() {
	defer close(m.done)

	m.probe(true)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe(false)
		case <-m.stop:
			return
		}
	}
}

func (m *PollingMonitor) probe(initial bool) {
	online := m.check()
	was := m.online.Swap(online)

	if !initial && was == online {
		return
	}

	if m.logger != nil {
		m.logger.Info("connectivity probe",
			zap.Bool("online", online),
			zap.String("url", m.url))
	}

	m.mu.Lock()
	callbacks := make([]func(bool), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(online)
	}
}

func (m *PollingMonitor) check() bool {
	if m.url == "" {
		return false
	}

	resp, err := m.client.Get(m.url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
