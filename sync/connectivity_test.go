package sync

import (
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingMonitor_Transitions(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	monitor := NewPollingMonitor(server.URL, 20*time.Millisecond, nil)

	var mu stdsync.Mutex
	var transitions []bool
	monitor.OnTransition(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, online)
	})

	monitor.Start()
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		return monitor.Online()
	}, time.Second, 10*time.Millisecond)

	healthy.Store(false)
	require.Eventually(t, func() bool {
		return !monitor.Online()
	}, time.Second, 10*time.Millisecond)

	healthy.Store(true)
	require.Eventually(t, func() bool {
		return monitor.Online()
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(transitions), 3)
	assert.True(t, transitions[0])
	assert.False(t, transitions[1])
	assert.True(t, transitions[2])
}

func TestPollingMonitor_NoURL(t *testing.T) {
	monitor := NewPollingMonitor("", 20*time.Millisecond, nil)
	monitor.Start()
	defer monitor.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, monitor.Online())
}
