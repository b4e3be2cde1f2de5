package repository

import (
	"context"
	"errors"
	"time"

	"crawlsync/internal/model"

	"gorm.io/gorm"
)

var (
	ErrResourceNotFound = errors.New("资源不存在")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
	ErrResourceDeleted  = errors.New("资源已删除")
)

type ResourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) Create(ctx context.Context, tx *gorm.DB, res *model.Resource) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(res).Error
}

func (r *ResourceRepository) GetByID(ctx context.Context, id int64) (*model.Resource, error) {
	var res model.Resource
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &res, nil
}

// GetBySourceURL 不存在时返回 nil, nil
func (r *ResourceRepository) GetBySourceURL(ctx context.Context, sourceURL string) (*model.Resource, error) {
	var res model.Resource
	err := r.db.WithContext(ctx).Where("source_url = ?", sourceURL).First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// UpdateContent 乐观锁更新内容，res 中为写入后的新值，expectedVersion 为读取时的版本
func (r *ResourceRepository) UpdateContent(ctx context.Context, tx *gorm.DB, res *model.Resource, expectedVersion int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Resource{}).
		Where("id = ? AND version = ? AND deleted = ?", res.ID, expectedVersion, false).
		Updates(map[string]interface{}{
			"content_hash": res.ContentHash,
			"title":        res.Title,
			"body":         res.Body,
			"summary":      res.Summary,
			"fetched_at":   res.FetchedAt,
			"version":      gorm.Expr("version + 1"),
			"updated_at":   res.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return r.conflictReason(ctx, tx, res.ID)
	}

	res.Version = expectedVersion + 1
	return nil
}

// MarkDeleted 管理员软删除，版本号 +1
func (r *ResourceRepository) MarkDeleted(ctx context.Context, tx *gorm.DB, id int64, expectedVersion int64, now time.Time) error {
	result := tx.WithContext(ctx).
		Model(&model.Resource{}).
		Where("id = ? AND version = ? AND deleted = ?", id, expectedVersion, false).
		Updates(map[string]interface{}{
			"deleted":    true,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return r.conflictReason(ctx, tx, id)
	}

	return nil
}

// TouchFetchedAt 内容未变化的重复爬取只刷新抓取时间，不算内容变更
func (r *ResourceRepository) TouchFetchedAt(ctx context.Context, id int64, fetchedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Resource{}).
		Where("id = ?", id).
		UpdateColumn("fetched_at", fetchedAt).Error
}

func (r *ResourceRepository) conflictReason(ctx context.Context, tx *gorm.DB, id int64) error {
	var res model.Resource
	err := tx.WithContext(ctx).Where("id = ?", id).First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResourceNotFound
		}
		return err
	}
	if res.Deleted {
		return ErrResourceDeleted
	}
	return ErrOptimisticLock
}

func (r *ResourceRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Resource{}).Count(&n).Error
	return n, err
}
