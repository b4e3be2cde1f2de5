package job

import (
	"context"
	"sync"
	"time"

	"crawlsync/internal/config"
	"crawlsync/internal/repository"
	"crawlsync/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxPruneJob 清理超过保留期的 DONE 事件，FAILED 事件保留给人工处理
type OutboxPruneJob struct {
	outboxRepo *repository.OutboxRepository
	retention  time.Duration
	interval   time.Duration
	batchSize  int
	stopCh     chan struct{}
	stopOnce   sync.Once
	now        func() time.Time
}

func NewOutboxPruneJob(db *gorm.DB, cfg *config.DispatcherConfig) *OutboxPruneJob {
	interval := cfg.PruneEvery
	if interval <= 0 {
		interval = time.Hour
	}
	return &OutboxPruneJob{
		outboxRepo: repository.NewOutboxRepository(db),
		retention:  cfg.Retention,
		interval:   interval,
		batchSize:  1000,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

func (j *OutboxPruneJob) Start(ctx context.Context) {
	logger.Info("[OutboxPruneJob] outbox 清理任务启动", zap.Duration("retention", j.retention))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[OutboxPruneJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logger.Info("[OutboxPruneJob] 任务停止")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				logger.Error("[OutboxPruneJob] 清理失败", zap.Error(err))
			}
		}
	}
}

// Stop 可重复调用
func (j *OutboxPruneJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// RunOnce 分批删除，直到没有过期事件；retention <= 0 表示不清理
func (j *OutboxPruneJob) RunOnce(ctx context.Context) (int64, error) {
	if j.retention <= 0 {
		return 0, nil
	}
	before := j.now().UTC().Add(-j.retention)

	var total int64
	for {
		n, err := j.outboxRepo.PruneDone(ctx, before, j.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batchSize) || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		logger.Info("[OutboxPruneJob] 已清理过期事件", zap.Int64("count", total))
	}
	return total, nil
}
