package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CacheItem is one entity snapshot as the server last reported it.
type CacheItem struct {
	EntityID string          `json:"entity_id"`
	Payload  json.RawMessage `json:"payload"`
}

// CacheList replaces the local snapshot for an entity type with a fresh
// server listing. Delete-then-insert, not a merge: the cache always mirrors
// exactly one server response.
func (q *Queue) CacheList(ctx context.Context, entityType string, items []CacheItem) error {
	now := time.Now()

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entity_type = ?", entityType).Delete(&CacheEntry{}).Error; err != nil {
			return fmt.Errorf("failed to clear cache for %s: %w", entityType, err)
		}

		for _, item := range items {
			entry := &CacheEntry{
				EntityType: entityType,
				EntityID:   item.EntityID,
				Payload:    item.Payload,
				UpdatedAt:  now,
			}
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("failed to cache %s/%s: %w", entityType, item.EntityID, err)
			}
		}

		return nil
	})
	if err != nil {
		if q.logger != nil {
			q.logger.Error("cache refresh failed",
				zap.Error(err),
				zap.String("entity_type", entityType))
		}
		return err
	}

	q.stampLastSync(entityType, now)

	if q.logger != nil {
		q.logger.Info("cache refreshed",
			zap.String("entity_type", entityType),
			zap.Int("items", len(items)))
	}

	q.notify()
	return nil
}

// GetCached returns the last known server state for an entity type, for
// read availability while offline.
func (q *Queue) GetCached(ctx context.Context, entityType string) ([]CacheItem, error) {
	var entries []CacheEntry
	if err := q.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to read cache for %s: %w", entityType, err)
	}

	items := make([]CacheItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, CacheItem{
			EntityID: entry.EntityID,
			Payload:  entry.Payload,
		})
	}
	return items, nil
}

// RefreshCache pulls a fresh listing from the remote API and replaces the
// local snapshot. Callers typically run this right after a successful flush.
func (q *Queue) RefreshCache(ctx context.Context, entityType string) error {
	items, err := q.remote.List(ctx, entityType)
	if err != nil {
		if q.logger != nil {
			q.logger.Warn("cache refresh fetch failed",
				zap.Error(err),
				zap.String("entity_type", entityType))
		}
		return err
	}

	return q.CacheList(ctx, entityType, items)
}
