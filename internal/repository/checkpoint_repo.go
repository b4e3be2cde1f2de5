package repository

import (
	"context"
	"errors"
	"time"

	"crawlsync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CheckpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Get 不存在时返回 nil, nil
func (r *CheckpointRepository) Get(ctx context.Context, resourceID int64) (*model.SyncCheckpoint, error) {
	var cp model.SyncCheckpoint
	err := r.db.WithContext(ctx).Where("resource_id = ?", resourceID).First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cp, nil
}

// Advance 只前移水位，sequence_id 不大于当前值时不做修改
func (r *CheckpointRepository) Advance(ctx context.Context, tx *gorm.DB, resourceID, sequenceID int64, eventType string, appliedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}

	cp := &model.SyncCheckpoint{
		ResourceID: resourceID,
		SequenceID: sequenceID,
		EventType:  eventType,
		AppliedAt:  appliedAt,
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_id"}},
			DoNothing: true,
		}).
		Create(cp)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	return tx.WithContext(ctx).
		Model(&model.SyncCheckpoint{}).
		Where("resource_id = ? AND sequence_id < ?", resourceID, sequenceID).
		Updates(map[string]interface{}{
			"sequence_id": sequenceID,
			"event_type":  eventType,
			"applied_at":  appliedAt,
		}).Error
}
