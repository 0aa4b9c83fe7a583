package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Listener is notified whenever queue state changes: enqueue, flush
// start/step/end, connectivity transitions.
type Listener interface {
	OnSyncStatusChanged(Status)
}

type Status struct {
	Online       bool       `json:"online"`
	Flushing     bool       `json:"flushing"`
	PendingCount int64      `json:"pending_count"`
	FailedCount  int64      `json:"failed_count"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
}

// Queue is the durable offline mutation queue for one device. It is driven
// by a single process; the only concurrency control it needs is the
// flushing guard, which collapses concurrent flush requests into one cycle.
type Queue struct {
	db         *gorm.DB
	remote     RemoteAPI
	logger     *logging.Service
	maxRetries int

	online   atomic.Bool
	flushing atomic.Bool

	mu        stdsync.Mutex
	listeners map[Listener]struct{}
}

func NewQueue(db *gorm.DB, remote RemoteAPI, maxRetries int, logger *logging.Service) (*Queue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if err := db.AutoMigrate(&Action{}, &CacheEntry{}, &Meta{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sync tables: %w", err)
	}

	// actions stranded in syncing by a crash are retried on next flush
	if err := db.Model(&Action{}).Where("status = ?", StatusSyncing).
		Update("status", StatusPending).Error; err != nil {
		return nil, fmt.Errorf("failed to recover in-flight actions: %w", err)
	}

	if logger != nil {
		logger.Info("sync queue opened", zap.Int("max_retries", maxRetries))
	}

	return &Queue{
		db:         db,
		remote:     remote,
		logger:     logger,
		maxRetries: maxRetries,
		listeners:  make(map[Listener]struct{}),
	}, nil
}

func (q *Queue) Close() error {
	sqlDB, err := q.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Enqueue persists a local mutation and returns its id without waiting for
// remote confirmation. Local writes never block on network.
func (q *Queue) Enqueue(ctx context.Context, op Op, entityType, entityID string, payload json.RawMessage) (string, error) {
	action := &Action{
		ActionID:   uuid.New().String(),
		Op:         op,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: q.maxRetries,
		Status:     StatusPending,
	}

	if err := q.db.WithContext(ctx).Create(action).Error; err != nil {
		if q.logger != nil {
			q.logger.Error("failed to enqueue action",
				zap.Error(err),
				zap.String("op", string(op)),
				zap.String("entity_type", entityType))
		}
		return "", fmt.Errorf("failed to enqueue action: %w", err)
	}

	if q.logger != nil {
		q.logger.Info("action enqueued",
			zap.String("action_id", action.ActionID),
			zap.String("op", string(op)),
			zap.String("entity_type", entityType),
			zap.Bool("online", q.online.Load()))
	}

	q.notify()

	if q.online.Load() {
		go q.Flush(context.Background())
	}

	return action.ActionID, nil
}

// SetOnline feeds connectivity transitions into the queue. A reconnect
// triggers a flush.
func (q *Queue) SetOnline(online bool) {
	was := q.online.Swap(online)
	if was == online {
		return
	}

	if q.logger != nil {
		q.logger.Info("connectivity changed", zap.Bool("online", online))
	}

	q.notify()

	if online {
		go q.Flush(context.Background())
	}
}

// Flush replays all currently pending actions in creation order. It is
// single-flight: a call while a cycle is running is a no-op. Actions
// enqueued mid-cycle wait for the next one. Remote errors never escape;
// they become retry-or-fail transitions on the action.
func (q *Queue) Flush(ctx context.Context) {
	if !q.flushing.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		q.flushing.Store(false)
		q.notify()
	}()

	q.notify()

	var actions []Action
	if err := q.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("seq ASC").
		Find(&actions).Error; err != nil {
		if q.logger != nil {
			q.logger.Error("failed to load pending actions", zap.Error(err))
		}
		return
	}

	if len(actions) == 0 {
		return
	}

	if q.logger != nil {
		q.logger.Info("flush cycle started", zap.Int("pending", len(actions)))
	}

	synced := make(map[string]bool)
	for i := range actions {
		action := &actions[i]

		if err := q.transition(action, StatusSyncing); err != nil {
			continue
		}

		if err := q.dispatch(ctx, action); err != nil {
			q.handleFailure(action, err)
		} else {
			if err := q.transition(action, StatusCompleted); err == nil {
				synced[action.EntityType] = true
				if q.logger != nil {
					q.logger.Info("action synced",
						zap.String("action_id", action.ActionID),
						zap.String("entity_type", action.EntityType))
				}
			}
		}

		q.notify()
	}

	now := time.Now()
	for entityType := range synced {
		q.stampLastSync(entityType, now)
	}

	if q.logger != nil {
		q.logger.Info("flush cycle finished", zap.Int("processed", len(actions)))
	}
}

func (q *Queue) dispatch(ctx context.Context, action *Action) error {
	switch action.Op {
	case OpCreate:
		_, err := q.remote.Create(ctx, action.EntityType, action.Payload)
		return err
	case OpUpdate:
		return q.remote.Update(ctx, action.EntityType, action.EntityID, action.Payload)
	case OpDelete:
		return q.remote.Delete(ctx, action.EntityType, action.EntityID)
	default:
		return fmt.Errorf("unknown operation: %s", action.Op)
	}
}

func (q *Queue) handleFailure(action *Action, cause error) {
	action.RetryCount++

	next := StatusPending
	if action.RetryCount >= action.MaxRetries {
		next = StatusFailed
	}

	if err := q.db.Model(&Action{}).Where("seq = ?", action.Seq).
		Updates(map[string]any{
			"retry_count": action.RetryCount,
			"status":      next,
		}).Error; err != nil {
		if q.logger != nil {
			q.logger.Error("failed to persist retry state",
				zap.Error(err),
				zap.String("action_id", action.ActionID))
		}
		return
	}
	action.Status = next

	if q.logger != nil {
		q.logger.Warn("action dispatch failed",
			zap.Error(cause),
			zap.String("action_id", action.ActionID),
			zap.Int("retry_count", action.RetryCount),
			zap.String("status", string(next)))
	}
}

func (q *Queue) transition(action *Action, to ActionStatus) error {
	if err := q.db.Model(&Action{}).Where("seq = ?", action.Seq).
		Update("status", to).Error; err != nil {
		if q.logger != nil {
			q.logger.Error("failed to transition action",
				zap.Error(err),
				zap.String("action_id", action.ActionID),
				zap.String("to", string(to)))
		}
		return err
	}
	action.Status = to
	return nil
}

func (q *Queue) stampLastSync(entityType string, at time.Time) {
	var meta Meta
	err := q.db.Where("entity_type = ?", entityType).First(&meta).Error
	switch {
	case err == nil:
		q.db.Model(&meta).Update("last_sync_at", at)
	default:
		q.db.Create(&Meta{EntityType: entityType, LastSyncAt: at})
	}
}

func (q *Queue) GetStatus() Status {
	status := Status{
		Online:   q.online.Load(),
		Flushing: q.flushing.Load(),
	}

	q.db.Model(&Action{}).Where("status IN ?", []ActionStatus{StatusPending, StatusSyncing}).Count(&status.PendingCount)
	q.db.Model(&Action{}).Where("status = ?", StatusFailed).Count(&status.FailedCount)

	var meta Meta
	if err := q.db.Order("last_sync_at DESC").First(&meta).Error; err == nil {
		status.LastSyncAt = &meta.LastSyncAt
	}

	return status
}

func (q *Queue) LastSyncAt(entityType string) (*time.Time, error) {
	var meta Meta
	if err := q.db.Where("entity_type = ?", entityType).First(&meta).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load sync metadata: %w", err)
	}
	return &meta.LastSyncAt, nil
}

func (q *Queue) Subscribe(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners[l] = struct{}{}
}

func (q *Queue) Unsubscribe(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.listeners, l)
}

func (q *Queue) notify() {
	q.mu.Lock()
	targets := make([]Listener, 0, len(q.listeners))
	for l := range q.listeners {
		targets = append(targets, l)
	}
	q.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	status := q.GetStatus()
	for _, l := range targets {
		l.OnSyncStatusChanged(status)
	}
}

// PurgeCompleted removes completed actions. Failed rows are kept for
// inspection; pending and syncing rows are never touched.
func (q *Queue) PurgeCompleted(ctx context.Context) (int64, error) {
	result := q.db.WithContext(ctx).Where("status = ?", StatusCompleted).Delete(&Action{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge completed actions: %w", result.Error)
	}

	if q.logger != nil {
		q.logger.Info("completed actions purged", zap.Int64("count", result.RowsAffected))
	}

	return result.RowsAffected, nil
}
