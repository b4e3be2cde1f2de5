package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crawlsync/internal/model"
	"crawlsync/internal/repository"
	"crawlsync/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminService 运维操作：删除资源、重放失败事件、查看 outbox 状态
type AdminService struct {
	db           *gorm.DB
	resourceRepo *repository.ResourceRepository
	outboxRepo   *repository.OutboxRepository
	now          func() time.Time
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{
		db:           db,
		resourceRepo: repository.NewResourceRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		now:          time.Now,
	}
}

// DeleteResource 软删除资源并写入 DELETED 事件；已删除的资源重复调用不产生新事件
func (s *AdminService) DeleteResource(ctx context.Context, resourceID int64) (*IngestResult, error) {
	res, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.Deleted {
		return &IngestResult{ResourceID: res.ID, SourceURL: res.SourceURL, Outcome: OutcomeDeleted, Version: res.Version}, nil
	}

	now := s.now().UTC()
	deleted := *res
	deleted.Deleted = true
	deleted.Version = res.Version + 1
	deleted.UpdatedAt = now

	payload, err := json.Marshal(deleted.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("序列化资源快照失败: %w", err)
	}
	ev := &model.OutboxEvent{
		ResourceID:    res.ID,
		EventType:     model.EventTypeDeleted,
		Payload:       string(payload),
		Status:        model.OutboxStatusPending,
		NextAttemptAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.resourceRepo.MarkDeleted(ctx, tx, res.ID, res.Version, now); err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, ev)
	})
	if err != nil {
		return nil, &CrawlError{Kind: TransactionFailed, URL: res.SourceURL, Err: err}
	}

	logger.Info("resource deleted",
		zap.Int64("resource_id", res.ID),
		zap.Int64("sequence_id", ev.SequenceID),
	)
	return &IngestResult{
		ResourceID: res.ID,
		SourceURL:  res.SourceURL,
		Outcome:    OutcomeDeleted,
		SequenceID: ev.SequenceID,
		Version:    deleted.Version,
	}, nil
}

func (s *AdminService) Replay(ctx context.Context, sequenceID int64) error {
	if err := s.outboxRepo.Replay(ctx, sequenceID, s.now().UTC()); err != nil {
		return err
	}
	logger.Info("outbox event replayed", zap.Int64("sequence_id", sequenceID))
	return nil
}

func (s *AdminService) ReplayAllFailed(ctx context.Context) (int64, error) {
	n, err := s.outboxRepo.ReplayAllFailed(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	logger.Info("failed outbox events replayed", zap.Int64("count", n))
	return n, nil
}

func (s *AdminService) Status(ctx context.Context) (map[string]int64, error) {
	return s.outboxRepo.CountByStatus(ctx)
}

func (s *AdminService) ListFailed(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.outboxRepo.ListFailed(ctx, limit)
}

func (s *AdminService) GetResource(ctx context.Context, resourceID int64) (*model.Resource, error) {
	return s.resourceRepo.GetByID(ctx, resourceID)
}

func (s *AdminService) GetEvent(ctx context.Context, sequenceID int64) (*model.OutboxEvent, error) {
	return s.outboxRepo.GetBySequenceID(ctx, sequenceID)
}
