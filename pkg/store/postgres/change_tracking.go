package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	"gorm.io/gorm"
)

func (s *PostgresStore) recordChange(tx *gorm.DB, entityType string, entityID string, operation models.ChangeOperation, entity interface{}) error {
	// Convert entity to JSONMap for payload
	var payload models.JSONMap
	if entity != nil {
		jsonData, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("failed to marshal entity: %w", err)
		}
		if err := json.Unmarshal(jsonData, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal to JSONMap: %w", err)
		}
	}

	change := &models.ChangeTracking{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		ChangedAt:  s.now(),
		Payload:    payload,
	}

	if err := tx.Create(change).Error; err != nil {
		return fmt.Errorf("failed to record %s change for %s %s: %w", operation, entityType, entityID, err)
	}
	return nil
}

func (s *PostgresStore) ListUnprocessedChanges(ctx context.Context, limit int) ([]*models.ChangeTracking, error) {
	var changes []*models.ChangeTracking
	query := s.getDB().WithContext(ctx).
		Where("processed_at IS NULL OR error_message != ''").
		Order("id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&changes).Error
	return changes, err
}

func (s *PostgresStore) ListChangesSince(ctx context.Context, since, until time.Time, limit int) ([]*models.ChangeTracking, error) {
	var changes []*models.ChangeTracking
	query := s.getDB().WithContext(ctx).
		Where("changed_at >= ? AND changed_at < ?", since, until).
		Order("id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&changes).Error
	return changes, err
}

func (s *PostgresStore) MarkChangeProcessed(ctx context.Context, changeID uint64) error {
	now := s.now()
	return s.getDB().WithContext(ctx).
		Model(&models.ChangeTracking{}).
		Where("id = ?", changeID).
		Updates(map[string]interface{}{
			"processed_at":  &now,
			"error_message": "",
		}).Error
}

func (s *PostgresStore) MarkChangeError(ctx context.Context, changeID uint64, errorMessage string) error {
	return s.getDB().WithContext(ctx).
		Model(&models.ChangeTracking{}).
		Where("id = ?", changeID).
		Updates(map[string]interface{}{
			"error_message": errorMessage,
			"retry_count":   gorm.Expr("retry_count + 1"),
		}).Error
}

func (s *PostgresStore) GetChangeStats(ctx context.Context) (*store.ChangeStats, error) {
	stats := &store.ChangeStats{}
	db := s.getDB().WithContext(ctx)

	if err := db.Model(&models.ChangeTracking{}).
		Count(&stats.TotalChanges).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.ChangeTracking{}).
		Where("processed_at IS NOT NULL AND error_message = ''").
		Count(&stats.ProcessedChanges).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.ChangeTracking{}).
		Where("processed_at IS NULL").
		Count(&stats.PendingChanges).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.ChangeTracking{}).
		Where("error_message != ''").
		Count(&stats.FailedChanges).Error; err != nil {
		return nil, err
	}

	var oldestChange models.ChangeTracking
	if err := db.Model(&models.ChangeTracking{}).
		Where("processed_at IS NULL").
		Order("changed_at ASC").
		First(&oldestChange).Error; err == nil {
		stats.OldestPendingTime = &oldestChange.ChangedAt
	}

	var latestChange models.ChangeTracking
	if err := db.Model(&models.ChangeTracking{}).
		Order("changed_at DESC").
		First(&latestChange).Error; err == nil {
		stats.LatestChangeTime = &latestChange.ChangedAt
	}

	return stats, nil
}

func (s *PostgresStore) PurgeProcessedChanges(ctx context.Context, before time.Time) error {
	return s.getDB().WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ? AND error_message = ''", before).
		Delete(&models.ChangeTracking{}).Error
}
