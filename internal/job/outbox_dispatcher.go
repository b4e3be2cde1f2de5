package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"crawlsync/internal/config"
	"crawlsync/internal/infrastructure/lock"
	"crawlsync/internal/infrastructure/search"
	"crawlsync/internal/model"
	"crawlsync/internal/repository"
	"crawlsync/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errSuperseded 资源水位已经越过该事件，直接标记完成
var errSuperseded = errors.New("event superseded by a newer applied event")

// errResourceBusy 另一个实例正在写同一资源
var errResourceBusy = errors.New("resource apply lock held by another worker")

// DispatchResult 一个调度周期的结果
type DispatchResult struct {
	Claimed   int
	Applied   int
	Skipped   int
	Retried   int
	Failed    int
	Released  int
	Recovered int64
	ClaimLost int
}

func (r *DispatchResult) add(o DispatchResult) {
	r.Claimed += o.Claimed
	r.Applied += o.Applied
	r.Skipped += o.Skipped
	r.Retried += o.Retried
	r.Failed += o.Failed
	r.Released += o.Released
	r.Recovered += o.Recovered
	r.ClaimLost += o.ClaimLost
}

// OutboxDispatcher 把 outbox 事件同步到搜索索引。
// 多个 worker 并发认领，认领靠 status + claim_token 的 CAS，同一资源的事件严格按 sequence_id 顺序投递
type OutboxDispatcher struct {
	db             *gorm.DB
	outboxRepo     *repository.OutboxRepository
	checkpointRepo *repository.CheckpointRepository
	index          search.Client
	redisClient    *redis.Client
	cfg            config.DispatcherConfig
	retry          RetryPolicy
	metrics        dispatcherMetrics
	log            *zap.Logger
	now            func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOutboxDispatcher redisClient 可以为 nil；provider 为 nil 时使用全局 MeterProvider
func NewOutboxDispatcher(db *gorm.DB, index search.Client, redisClient *redis.Client, cfg *config.DispatcherConfig, provider metric.MeterProvider) (*OutboxDispatcher, error) {
	if index == nil {
		return nil, errors.New("search client is required")
	}
	m, err := newDispatcherMetrics(provider)
	if err != nil {
		return nil, err
	}

	c := *cfg
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ApplyTimeout <= 0 {
		c.ApplyTimeout = 10 * time.Second
	}

	return &OutboxDispatcher{
		db:             db,
		outboxRepo:     repository.NewOutboxRepository(db),
		checkpointRepo: repository.NewCheckpointRepository(db),
		index:          index,
		redisClient:    redisClient,
		cfg:            c,
		retry:          NewRetryPolicy(c.BackoffBase, c.BackoffMax),
		metrics:        m,
		log:            logger.Named("dispatcher"),
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}, nil
}

// Start 启动 worker 并阻塞到 ctx 取消或 Stop
func (d *OutboxDispatcher) Start(ctx context.Context) {
	d.log.Info("outbox dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Duration("poll_interval", d.cfg.PollInterval),
	)

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.wg.Wait()

	d.log.Info("outbox dispatcher stopped")
}

func (d *OutboxDispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Shutdown 停止并等待正在处理的批次结束
func (d *OutboxDispatcher) Shutdown(ctx context.Context) error {
	d.Stop()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *OutboxDispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	// 内部 ctx 在 Stop 时取消，批次内的事件在事件边界退出
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			res, err := d.DispatchOnce(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error("dispatch cycle failed", zap.Int("worker", id), zap.Error(err))
				continue
			}
			if res.Claimed > 0 || res.Recovered > 0 {
				d.log.Debug("dispatch cycle",
					zap.Int("worker", id),
					zap.Int("claimed", res.Claimed),
					zap.Int("applied", res.Applied),
					zap.Int("skipped", res.Skipped),
					zap.Int("retried", res.Retried),
					zap.Int("failed", res.Failed),
					zap.Int64("recovered", res.Recovered),
				)
			}
		}
	}
}

// DispatchOnce 回收超时认领，认领一批事件并逐个处理
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult
	start := time.Now()
	defer func() {
		d.metrics.latency.Record(context.Background(), time.Since(start).Seconds())
	}()

	recovered, err := d.RecoverStale(ctx)
	if err != nil {
		return result, fmt.Errorf("recover stale claims: %w", err)
	}
	result.Recovered = recovered

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	events, token, err := d.outboxRepo.ClaimBatch(ctx, d.cfg.BatchSize, d.now().UTC())
	if errors.Is(err, repository.ErrClaimConflict) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("claim outbox events: %w", err)
	}
	result.Claimed = len(events)

	for i, ev := range events {
		if ctx.Err() != nil {
			result.Released += d.releaseAll(events[i:], token)
			return result, ctx.Err()
		}
		result.add(d.process(ctx, ev, token))
	}
	return result, nil
}

// RecoverStale 超过 claim_timeout 的 PROCESSING 事件放回队列
func (d *OutboxDispatcher) RecoverStale(ctx context.Context) (int64, error) {
	if d.cfg.ClaimTimeout <= 0 {
		return 0, nil
	}
	now := d.now().UTC()
	reset, failed, err := d.outboxRepo.RecoverStale(ctx, now.Add(-d.cfg.ClaimTimeout), d.cfg.MaxAttempts, now)
	if err != nil {
		return 0, err
	}
	if reset+failed > 0 {
		d.metrics.recovered.Add(ctx, reset+failed)
		if failed > 0 {
			d.metrics.failed.Add(ctx, failed)
		}
		d.log.Warn("stale claims recovered", zap.Int64("requeued", reset), zap.Int64("failed", failed))
	}
	return reset + failed, nil
}

func (d *OutboxDispatcher) process(ctx context.Context, ev *model.OutboxEvent, token string) DispatchResult {
	var r DispatchResult
	attrs := metric.WithAttributes(attribute.String("event_type", ev.EventType))
	fields := []zap.Field{
		zap.Int64("sequence_id", ev.SequenceID),
		zap.Int64("resource_id", ev.ResourceID),
		zap.String("event_type", ev.EventType),
		zap.Int("attempt", ev.AttemptCount+1),
	}

	// 批次里排在后面的事件可能等了很久，开始前确认认领还在并续期
	renewCtx, cancelRenew := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ApplyTimeout)
	renewErr := d.outboxRepo.RenewClaim(renewCtx, ev.SequenceID, token, d.now().UTC())
	cancelRenew()
	if errors.Is(renewErr, repository.ErrClaimLost) {
		r.ClaimLost++
		d.log.Warn("outbox claim lost before apply, skipped", fields...)
		return r
	}
	if renewErr != nil {
		// 续期失败不写索引，claim 超时后会被回收重新投递
		d.log.Error("renew outbox claim failed", append(fields, zap.Error(renewErr))...)
		return r
	}

	// 取消只在事件之间生效：已开始的写入和状态回写不受外部 ctx 取消影响
	applyCtx, cancelApply := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ApplyTimeout)
	applyErr := d.apply(applyCtx, ev, token)
	cancelApply()

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ApplyTimeout)
	defer cancel()
	now := d.now().UTC()

	var err error
	switch {
	case applyErr == nil, errors.Is(applyErr, errSuperseded), errors.Is(applyErr, search.ErrStaleVersion):
		err = d.outboxRepo.MarkDone(finishCtx, ev, token, now)
		if err == nil {
			if applyErr == nil {
				r.Applied++
				d.metrics.applied.Add(finishCtx, 1, attrs)
				d.log.Debug("outbox event applied", fields...)
			} else {
				r.Skipped++
				d.metrics.skipped.Add(finishCtx, 1, attrs)
				d.log.Info("outbox event superseded", append(fields, zap.Error(applyErr))...)
			}
		}

	case errors.Is(applyErr, errResourceBusy):
		err = d.outboxRepo.Release(finishCtx, ev.SequenceID, token, now.Add(d.cfg.PollInterval))
		if err == nil {
			r.Released++
		}

	case search.IsPermanent(applyErr) || ev.AttemptCount+1 >= d.cfg.MaxAttempts:
		err = d.outboxRepo.MarkFailed(finishCtx, ev.SequenceID, token, applyErr.Error(), now)
		if err == nil {
			r.Failed++
			d.metrics.failed.Add(finishCtx, 1, attrs)
			d.log.Error("outbox event failed", append(fields, zap.Error(applyErr))...)
		}

	default:
		delay := d.retry.Delay(ev.AttemptCount)
		err = d.outboxRepo.MarkRetry(finishCtx, ev.SequenceID, token, applyErr.Error(), now.Add(delay))
		if err == nil {
			r.Retried++
			d.metrics.retried.Add(finishCtx, 1, attrs)
			d.log.Warn("outbox event will be retried", append(fields, zap.Duration("delay", delay), zap.Error(applyErr))...)
		}
	}

	if errors.Is(err, repository.ErrClaimLost) {
		r.ClaimLost++
		d.log.Warn("outbox claim lost before completion", fields...)
	} else if err != nil {
		// 状态没写回，claim 超时后会被回收重新投递
		d.log.Error("update outbox event status failed", append(fields, zap.Error(err))...)
	}
	return r
}

func (d *OutboxDispatcher) apply(ctx context.Context, ev *model.OutboxEvent, token string) error {
	if d.redisClient != nil {
		applyLock := lock.NewResourceApplyLock(d.redisClient, ev.ResourceID, token, d.cfg.ApplyTimeout*2)
		ok, err := applyLock.TryLock(ctx)
		if err != nil {
			d.log.Warn("resource apply lock unavailable", zap.Int64("resource_id", ev.ResourceID), zap.Error(err))
		} else if !ok {
			return errResourceBusy
		} else {
			defer func() {
				if err := applyLock.Unlock(context.Background()); err != nil {
					d.log.Warn("release resource apply lock failed", zap.Int64("resource_id", ev.ResourceID), zap.Error(err))
				}
			}()
		}
	}

	cp, err := d.checkpointRepo.Get(ctx, ev.ResourceID)
	if err != nil {
		return search.NewTransient("checkpoint", err)
	}
	if cp != nil && cp.SequenceID >= ev.SequenceID {
		return errSuperseded
	}

	var snapshot model.ResourceSnapshot
	if err := json.Unmarshal([]byte(ev.Payload), &snapshot); err != nil {
		return search.NewPermanent("decode", fmt.Errorf("malformed payload: %w", err))
	}
	if snapshot.ID == 0 {
		snapshot.ID = ev.ResourceID
	}

	switch ev.EventType {
	case model.EventTypeCreated, model.EventTypeUpdated:
		return d.index.Upsert(ctx, search.NewDocument(snapshot, ev.SequenceID))
	case model.EventTypeDeleted:
		return d.index.Delete(ctx, search.DocumentID(ev.ResourceID), ev.SequenceID)
	default:
		return search.NewPermanent("dispatch", fmt.Errorf("unknown event type %q", ev.EventType))
	}
}

// releaseAll 关闭时把尚未处理的事件放回队列，不计入尝试次数
func (d *OutboxDispatcher) releaseAll(events []*model.OutboxEvent, token string) int {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ApplyTimeout)
	defer cancel()

	n := 0
	now := d.now().UTC()
	for _, ev := range events {
		if err := d.outboxRepo.Release(ctx, ev.SequenceID, token, now); err != nil {
			d.log.Warn("release outbox event failed", zap.Int64("sequence_id", ev.SequenceID), zap.Error(err))
			continue
		}
		n++
	}
	return n
}
