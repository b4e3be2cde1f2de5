package repository

import (
	"context"
	"errors"
	"time"

	"crawlsync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrClaimConflict 候选事件全部被其他 worker 抢走，属于正常竞争
	ErrClaimConflict = errors.New("outbox 事件已被其他 worker 认领")
	// ErrClaimLost 认领已失效（超时被回收或已被重放），本次结果丢弃
	ErrClaimLost          = errors.New("outbox 认领已失效")
	ErrEventNotFound      = errors.New("outbox 事件不存在")
	ErrEventNotReplayable = errors.New("只有 FAILED 状态的事件可以重放")
)

const staleClaimError = "claim expired before completion"

type OutboxRepository struct {
	db          *gorm.DB
	checkpoints *CheckpointRepository
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db, checkpoints: NewCheckpointRepository(db)}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, ev *model.OutboxEvent) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(ev).Error
}

func (r *OutboxRepository) GetBySequenceID(ctx context.Context, sequenceID int64) (*model.OutboxEvent, error) {
	var ev model.OutboxEvent
	err := r.db.WithContext(ctx).Where("sequence_id = ?", sequenceID).First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// ListByResource 按 sequence_id 升序
func (r *OutboxRepository) ListByResource(ctx context.Context, resourceID int64) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("sequence_id ASC").
		Find(&events).Error
	return events, err
}

// ClaimBatch 乐观认领一批到期的 PENDING 事件。
//
// 1. 选出候选：到期、按 sequence_id 升序，且同一资源不存在更早的 PENDING/PROCESSING 事件（队头规则）
// 2. CAS：UPDATE ... WHERE sequence_id IN ? AND status = 'PENDING'，写入本次的 claim_token
// 3. 按 claim_token 读回真正抢到的行
//
// 一行都没抢到时返回 ErrClaimConflict；没有候选时返回空切片
func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*model.OutboxEvent, string, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("status = ? AND next_attempt_at <= ?", model.OutboxStatusPending, now).
		Where(`NOT EXISTS (
			SELECT 1 FROM outbox_event prev
			WHERE prev.resource_id = outbox_event.resource_id
			  AND prev.sequence_id < outbox_event.sequence_id
			  AND prev.status IN ?)`,
			[]string{model.OutboxStatusPending, model.OutboxStatusProcessing}).
		Order("sequence_id ASC").
		Limit(limit).
		Pluck("sequence_id", &ids).Error
	if err != nil {
		return nil, "", err
	}
	if len(ids) == 0 {
		return nil, "", nil
	}

	token := uuid.NewString()
	result := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("sequence_id IN ? AND status = ?", ids, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"status":      model.OutboxStatusProcessing,
			"claim_token": token,
			"claimed_at":  now,
		})
	if result.Error != nil {
		return nil, "", result.Error
	}
	if result.RowsAffected == 0 {
		return nil, "", ErrClaimConflict
	}

	var events []*model.OutboxEvent
	err = r.db.WithContext(ctx).
		Where("claim_token = ? AND status = ?", token, model.OutboxStatusProcessing).
		Order("sequence_id ASC").
		Find(&events).Error
	if err != nil {
		return nil, "", err
	}
	return events, token, nil
}

// RenewClaim 开始处理一个事件前续期：先确认该事件仍属于 token，再刷新同批剩余事件的 claimed_at，
// 避免存活 worker 手里还没轮到的事件被超时回收。事件已不属于 token 时返回 ErrClaimLost
func (r *OutboxRepository) RenewClaim(ctx context.Context, sequenceID int64, token string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.OutboxEvent{}).
			Where("sequence_id = ? AND status = ? AND claim_token = ?", sequenceID, model.OutboxStatusProcessing, token).
			Update("claimed_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrClaimLost
		}

		return tx.Model(&model.OutboxEvent{}).
			Where("claim_token = ? AND status = ? AND sequence_id > ?", token, model.OutboxStatusProcessing, sequenceID).
			Update("claimed_at", now).Error
	})
}

// MarkDone 标记成功并在同一事务中推进资源水位
func (r *OutboxRepository) MarkDone(ctx context.Context, ev *model.OutboxEvent, token string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.OutboxEvent{}).
			Where("sequence_id = ? AND status = ? AND claim_token = ?", ev.SequenceID, model.OutboxStatusProcessing, token).
			Updates(map[string]interface{}{
				"status":       model.OutboxStatusDone,
				"processed_at": now,
				"claim_token":  "",
				"last_error":   "",
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrClaimLost
		}

		return r.checkpoints.Advance(ctx, tx, ev.ResourceID, ev.SequenceID, ev.EventType, now)
	})
}

// MarkRetry 退回 PENDING 并安排下次重试
func (r *OutboxRepository) MarkRetry(ctx context.Context, sequenceID int64, token string, lastErr string, nextAttemptAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("sequence_id = ? AND status = ? AND claim_token = ?", sequenceID, model.OutboxStatusProcessing, token).
		Updates(map[string]interface{}{
			"status":          model.OutboxStatusPending,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_error":      truncate(lastErr),
			"next_attempt_at": nextAttemptAt,
			"claim_token":     "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// Release 放弃认领但不计入尝试次数，用于关闭时未处理的事件和资源锁冲突
func (r *OutboxRepository) Release(ctx context.Context, sequenceID int64, token string, nextAttemptAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("sequence_id = ? AND status = ? AND claim_token = ?", sequenceID, model.OutboxStatusProcessing, token).
		Updates(map[string]interface{}{
			"status":          model.OutboxStatusPending,
			"next_attempt_at": nextAttemptAt,
			"claim_token":     "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// MarkFailed 终态失败，只能人工重放
func (r *OutboxRepository) MarkFailed(ctx context.Context, sequenceID int64, token string, lastErr string, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("sequence_id = ? AND status = ? AND claim_token = ?", sequenceID, model.OutboxStatusProcessing, token).
		Updates(map[string]interface{}{
			"status":        model.OutboxStatusFailed,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    truncate(lastErr),
			"processed_at":  now,
			"claim_token":   "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// RecoverStale 回收超时未完成的认领，丢失的这次尝试计入 attempt_count；
// 计入后达到上限的直接置为 FAILED
func (r *OutboxRepository) RecoverStale(ctx context.Context, claimedBefore time.Time, maxAttempts int, now time.Time) (reset int64, failed int64, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.OutboxEvent{}).
			Where("status = ? AND claimed_at < ? AND attempt_count + 1 >= ?", model.OutboxStatusProcessing, claimedBefore, maxAttempts).
			Updates(map[string]interface{}{
				"status":        model.OutboxStatusFailed,
				"attempt_count": gorm.Expr("attempt_count + 1"),
				"last_error":    staleClaimError,
				"processed_at":  now,
				"claim_token":   "",
			})
		if res.Error != nil {
			return res.Error
		}
		failed = res.RowsAffected

		res = tx.Model(&model.OutboxEvent{}).
			Where("status = ? AND claimed_at < ?", model.OutboxStatusProcessing, claimedBefore).
			Updates(map[string]interface{}{
				"status":          model.OutboxStatusPending,
				"attempt_count":   gorm.Expr("attempt_count + 1"),
				"last_error":      staleClaimError,
				"next_attempt_at": now,
				"claim_token":     "",
			})
		if res.Error != nil {
			return res.Error
		}
		reset = res.RowsAffected
		return nil
	})
	return reset, failed, err
}

// Replay 把一个 FAILED 事件重新放回队列，尝试次数清零
func (r *OutboxRepository) Replay(ctx context.Context, sequenceID int64, now time.Time) error {
	ev, err := r.GetBySequenceID(ctx, sequenceID)
	if err != nil {
		return err
	}
	if ev.Status != model.OutboxStatusFailed || !model.CanOutboxTransitionTo(ev.Status, model.OutboxStatusPending) {
		return ErrEventNotReplayable
	}

	result := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("sequence_id = ? AND status = ?", sequenceID, model.OutboxStatusFailed).
		Updates(replayUpdates(now))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEventNotReplayable
	}
	return nil
}

func (r *OutboxRepository) ReplayAllFailed(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("status = ?", model.OutboxStatusFailed).
		Updates(replayUpdates(now))
	return result.RowsAffected, result.Error
}

func replayUpdates(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":          model.OutboxStatusPending,
		"attempt_count":   0,
		"next_attempt_at": now,
		"processed_at":    nil,
		"claim_token":     "",
		"last_error":      "",
	}
}

// CountByStatus 没有事件的状态也返回 0
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(model.AllOutboxStatuses))
	for _, s := range model.AllOutboxStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *OutboxRepository) ListFailed(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusFailed).
		Order("sequence_id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// PruneDone 删除早于 before 的 DONE 事件，FAILED 保留
func (r *OutboxRepository) PruneDone(ctx context.Context, before time.Time, limit int) (int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("status = ? AND processed_at < ?", model.OutboxStatusDone, before).
		Order("sequence_id ASC").
		Limit(limit).
		Pluck("sequence_id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	result := r.db.WithContext(ctx).
		Where("sequence_id IN ? AND status = ?", ids, model.OutboxStatusDone).
		Delete(&model.OutboxEvent{})
	return result.RowsAffected, result.Error
}

const maxLastErrorLen = 2000

func truncate(s string) string {
	if len(s) <= maxLastErrorLen {
		return s
	}
	return s[:maxLastErrorLen]
}
