package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/safetrack/trustsync/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeRemote struct {
	mu       stdsync.Mutex
	calls    []string
	failures int
	block    chan struct{}
	listings map[string][]CacheItem
}

func (f *fakeRemote) record(call string) error {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return errors.New("remote unavailable")
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeRemote) Create(ctx context.Context, entityType string, payload json.RawMessage) (json.RawMessage, error) {
	if err := f.record("create " + entityType); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"id":"remote-1"}`), nil
}

func (f *fakeRemote) Update(ctx context.Context, entityType, entityID string, payload json.RawMessage) error {
	return f.record(fmt.Sprintf("update %s/%s", entityType, entityID))
}

func (f *fakeRemote) Delete(ctx context.Context, entityType, entityID string) error {
	return f.record(fmt.Sprintf("delete %s/%s", entityType, entityID))
}

func (f *fakeRemote) List(ctx context.Context, entityType string) ([]CacheItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listings == nil {
		return nil, errors.New("no listing configured")
	}
	return f.listings[entityType], nil
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type recordingListener struct {
	mu       stdsync.Mutex
	statuses []Status
}

func (l *recordingListener) OnSyncStatusChanged(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.statuses)
}

func newTestQueue(t *testing.T, remote RemoteAPI) (*Queue, *gorm.DB) {
	t.Helper()

	db := testutils.SetupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single shared connection keeps the in-memory database visible to
	// the async flush goroutines
	sqlDB.SetMaxOpenConns(1)

	queue, err := NewQueue(db, remote, 3, nil)
	require.NoError(t, err)

	return queue, db
}

func TestQueue_EnqueueOffline(t *testing.T) {
	remote := &fakeRemote{}
	queue, db := newTestQueue(t, remote)

	actionID, err := queue.Enqueue(context.Background(), OpCreate, EntityIncidents, "", json.RawMessage(`{"title":"spill"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, actionID)

	var action Action
	require.NoError(t, db.Where("action_id = ?", actionID).First(&action).Error)
	assert.Equal(t, StatusPending, action.Status)
	assert.Equal(t, 0, action.RetryCount)
	assert.Equal(t, 3, action.MaxRetries)

	// offline: no remote call was made
	assert.Empty(t, remote.callLog())
}

func TestQueue_FlushSuccess(t *testing.T) {
	remote := &fakeRemote{}
	queue, db := newTestQueue(t, remote)

	actionID, err := queue.Enqueue(context.Background(), OpCreate, EntityDocuments, "", json.RawMessage(`{"name":"policy.pdf"}`))
	require.NoError(t, err)

	queue.Flush(context.Background())

	var action Action
	require.NoError(t, db.Where("action_id = ?", actionID).First(&action).Error)
	assert.Equal(t, StatusCompleted, action.Status)
	assert.Equal(t, []string{"create documents"}, remote.callLog())

	last, err := queue.LastSyncAt(EntityDocuments)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, time.Now(), *last, 5*time.Second)
}

func TestQueue_RetryThenFail(t *testing.T) {
	remote := &fakeRemote{failures: 100}
	queue, db := newTestQueue(t, remote)

	actionID, err := queue.Enqueue(context.Background(), OpUpdate, EntityTasks, "t-1", json.RawMessage(`{"done":true}`))
	require.NoError(t, err)

	var action Action

	queue.Flush(context.Background())
	require.NoError(t, db.Where("action_id = ?", actionID).First(&action).Error)
	assert.Equal(t, StatusPending, action.Status)
	assert.Equal(t, 1, action.RetryCount)

	queue.Flush(context.Background())
	require.NoError(t, db.Where("action_id = ?", actionID).First(&action).Error)
	assert.Equal(t, StatusPending, action.Status)
	assert.Equal(t, 2, action.RetryCount)

	queue.Flush(context.Background())
	require.NoError(t, db.Where("action_id = ?", actionID).First(&action).Error)
	assert.Equal(t, StatusFailed, action.Status)
	assert.Equal(t, 3, action.RetryCount)

	// terminal: further flushes skip the failed action
	queue.Flush(context.Background())
	require.NoError(t, db.Where("action_id = ?", actionID).First(&action).Error)
	assert.Equal(t, 3, action.RetryCount)
}

func TestQueue_OneFailureDoesNotAbortBatch(t *testing.T) {
	remote := &fakeRemote{failures: 1}
	queue, db := newTestQueue(t, remote)

	first, err := queue.Enqueue(context.Background(), OpCreate, EntityIncidents, "", json.RawMessage(`{}`))
	require.NoError(t, err)
	second, err := queue.Enqueue(context.Background(), OpDelete, EntityTasks, "t-9", nil)
	require.NoError(t, err)

	queue.Flush(context.Background())

	var a1, a2 Action
	require.NoError(t, db.Where("action_id = ?", first).First(&a1).Error)
	require.NoError(t, db.Where("action_id = ?", second).First(&a2).Error)
	assert.Equal(t, StatusPending, a1.Status)
	assert.Equal(t, StatusCompleted, a2.Status)
}

func TestQueue_SingleFlight(t *testing.T) {
	remote := &fakeRemote{block: make(chan struct{})}
	queue, _ := newTestQueue(t, remote)

	_, err := queue.Enqueue(context.Background(), OpCreate, EntityDocuments, "", json.RawMessage(`{}`))
	require.NoError(t, err)

	var wg stdsync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Flush(context.Background())
	}()

	require.Eventually(t, func() bool {
		return queue.GetStatus().Flushing
	}, time.Second, 5*time.Millisecond)

	// a second flush while one is running is a no-op
	queue.Flush(context.Background())

	close(remote.block)
	wg.Wait()

	assert.Equal(t, []string{"create documents"}, remote.callLog())
	assert.False(t, queue.GetStatus().Flushing)
}

func TestQueue_ReconnectFlushesInOrder(t *testing.T) {
	remote := &fakeRemote{}
	queue, _ := newTestQueue(t, remote)

	ctx := context.Background()
	_, err := queue.Enqueue(ctx, OpCreate, EntityIncidents, "", json.RawMessage(`{"title":"near miss"}`))
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, OpUpdate, EntityDocuments, "d-3", json.RawMessage(`{"rev":2}`))
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, OpDelete, EntityTrainings, "tr-7", nil)
	require.NoError(t, err)

	assert.Empty(t, remote.callLog())

	queue.SetOnline(true)

	require.Eventually(t, func() bool {
		status := queue.GetStatus()
		return status.PendingCount == 0 && !status.Flushing
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{
		"create incidents",
		"update documents/d-3",
		"delete trainings/tr-7",
	}, remote.callLog())
}

func TestQueue_EnqueueWhileOnlineTriggersFlush(t *testing.T) {
	remote := &fakeRemote{}
	queue, _ := newTestQueue(t, remote)
	queue.SetOnline(true)

	// let the reconnect-triggered (empty) cycle finish first
	require.Eventually(t, func() bool {
		return !queue.GetStatus().Flushing
	}, time.Second, 5*time.Millisecond)

	_, err := queue.Enqueue(context.Background(), OpCreate, EntityTasks, "", json.RawMessage(`{"title":"inspect"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(remote.callLog()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_RecoversSyncingActionsOnOpen(t *testing.T) {
	db := testutils.SetupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Action{}, &CacheEntry{}, &Meta{}))
	require.NoError(t, db.Create(&Action{
		ActionID:   "stranded",
		Op:         OpCreate,
		EntityType: EntityDocuments,
		Status:     StatusSyncing,
		MaxRetries: 3,
	}).Error)

	_, err = NewQueue(db, &fakeRemote{}, 3, nil)
	require.NoError(t, err)

	var action Action
	require.NoError(t, db.Where("action_id = ?", "stranded").First(&action).Error)
	assert.Equal(t, StatusPending, action.Status)
}

func TestQueue_PurgeCompleted(t *testing.T) {
	remote := &fakeRemote{}
	queue, db := newTestQueue(t, remote)

	completed, err := queue.Enqueue(context.Background(), OpCreate, EntityDocuments, "", json.RawMessage(`{}`))
	require.NoError(t, err)
	queue.Flush(context.Background())

	require.NoError(t, db.Create(&Action{
		ActionID: "perma-failed", Op: OpCreate, EntityType: EntityTasks,
		Status: StatusFailed, RetryCount: 3, MaxRetries: 3,
	}).Error)
	pending, err := queue.Enqueue(context.Background(), OpUpdate, EntityTasks, "t-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	purged, err := queue.PurgeCompleted(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	var count int64
	db.Model(&Action{}).Where("action_id = ?", completed).Count(&count)
	assert.EqualValues(t, 0, count)

	db.Model(&Action{}).Where("action_id IN ?", []string{"perma-failed", pending}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestQueue_GetStatus(t *testing.T) {
	remote := &fakeRemote{failures: 3}
	queue, _ := newTestQueue(t, remote)

	status := queue.GetStatus()
	assert.False(t, status.Online)
	assert.False(t, status.Flushing)
	assert.EqualValues(t, 0, status.PendingCount)
	assert.Nil(t, status.LastSyncAt)

	_, err := queue.Enqueue(context.Background(), OpCreate, EntityIncidents, "", json.RawMessage(`{}`))
	require.NoError(t, err)

	status = queue.GetStatus()
	assert.EqualValues(t, 1, status.PendingCount)

	// exhaust retries
	queue.Flush(context.Background())
	queue.Flush(context.Background())
	queue.Flush(context.Background())

	status = queue.GetStatus()
	assert.EqualValues(t, 0, status.PendingCount)
	assert.EqualValues(t, 1, status.FailedCount)
}

func TestQueue_Listeners(t *testing.T) {
	remote := &fakeRemote{}
	queue, _ := newTestQueue(t, remote)

	listener := &recordingListener{}
	queue.Subscribe(listener)

	_, err := queue.Enqueue(context.Background(), OpCreate, EntityDocuments, "", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Greater(t, listener.count(), 0)

	seen := listener.count()
	queue.Flush(context.Background())
	assert.Greater(t, listener.count(), seen)

	queue.Unsubscribe(listener)
	final := listener.count()
	_, err = queue.Enqueue(context.Background(), OpUpdate, EntityDocuments, "d-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, final, listener.count())
}
