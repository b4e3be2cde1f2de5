package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crawlsync/internal/config"
	"crawlsync/internal/crawler"
	"crawlsync/internal/infrastructure/lock"
	"crawlsync/internal/model"
	"crawlsync/internal/repository"
	"crawlsync/pkg/idgen"
	"crawlsync/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrCrawlInProgress 同一 URL 正在被其他任务爬取，调用方可以直接跳过
var ErrCrawlInProgress = errors.New("该 URL 正在被其他任务爬取")

type CrawlErrorKind int

const (
	FetchFailed CrawlErrorKind = iota + 1
	TransactionFailed
)

func (k CrawlErrorKind) String() string {
	switch k {
	case FetchFailed:
		return "fetch_failed"
	case TransactionFailed:
		return "transaction_failed"
	default:
		return "unknown"
	}
}

// CrawlError 入库失败；两种情况下都没有任何数据写入
type CrawlError struct {
	Kind CrawlErrorKind
	URL  string
	Err  error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *CrawlError) Unwrap() error { return e.Err }

const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeDeleted   = "deleted" // 资源已被管理员删除，爬虫不复活
)

type IngestResult struct {
	ResourceID int64  `json:"resource_id"`
	SourceURL  string `json:"source_url"`
	Outcome    string `json:"outcome"`
	SequenceID int64  `json:"sequence_id,omitempty"`
	Version    int64  `json:"version"`
}

type IngestService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	fetcher      crawler.Fetcher
	enricher     crawler.Enricher
	policy       crawler.ChangePolicy
	lockTTL      time.Duration
	resourceRepo *repository.ResourceRepository
	outboxRepo   *repository.OutboxRepository
	nextID       func() int64
	now          func() time.Time
}

// NewIngestService redisClient 为 nil 时不加爬取锁
func NewIngestService(db *gorm.DB, redisClient *redis.Client, fetcher crawler.Fetcher, cfg *config.CrawlerConfig) (*IngestService, error) {
	policy, err := crawler.PolicyByName(cfg.DedupPolicy)
	if err != nil {
		return nil, err
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &IngestService{
		db:           db,
		redisClient:  redisClient,
		fetcher:      fetcher,
		enricher:     crawler.NewExtractiveSummarizer(cfg.SummarySentences),
		policy:       policy,
		lockTTL:      lockTTL,
		resourceRepo: repository.NewResourceRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		nextID:       idgen.NextID,
		now:          time.Now,
	}, nil
}

func (s *IngestService) SetEnricher(e crawler.Enricher) {
	if e == nil {
		e = crawler.NopEnricher{}
	}
	s.enricher = e
}

func (s *IngestService) SetPolicy(p crawler.ChangePolicy) {
	s.policy = p
}

// Ingest 清洗 URL、抓取并入库
func (s *IngestService) Ingest(ctx context.Context, sourceURL string) (*IngestResult, error) {
	cleaned, err := crawler.CleanURL(sourceURL)
	if err != nil {
		return nil, &CrawlError{Kind: FetchFailed, URL: sourceURL, Err: err}
	}

	crawlLock, err := s.acquireCrawlLock(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	defer s.releaseCrawlLock(crawlLock)

	raw, err := s.fetcher.Fetch(ctx, cleaned)
	if err != nil {
		return nil, &CrawlError{Kind: FetchFailed, URL: cleaned, Err: err}
	}
	raw.SourceURL = cleaned

	return s.ingestLocked(ctx, raw, crawlLock)
}

// IngestRaw 写入已抓取的内容，feed 条目走这里
func (s *IngestService) IngestRaw(ctx context.Context, raw *crawler.RawContent) (*IngestResult, error) {
	cleaned, err := crawler.CleanURL(raw.SourceURL)
	if err != nil {
		return nil, &CrawlError{Kind: FetchFailed, URL: raw.SourceURL, Err: err}
	}
	raw.SourceURL = cleaned

	crawlLock, err := s.acquireCrawlLock(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	defer s.releaseCrawlLock(crawlLock)

	return s.ingestLocked(ctx, raw, crawlLock)
}

// acquireCrawlLock 返回 nil 表示不加锁（未配置 Redis 或 Redis 不可用）
func (s *IngestService) acquireCrawlLock(ctx context.Context, sourceURL string) (*lock.DistributedLock, error) {
	if s.redisClient == nil {
		return nil, nil
	}

	crawlLock := lock.NewCrawlLock(s.redisClient, sourceURL, s.lockTTL)
	ok, err := crawlLock.TryLock(ctx)
	if err != nil {
		// Redis 不可用时降级为无锁，唯一索引和乐观锁仍然兜底
		logger.Warn("crawl lock unavailable", zap.String("lock", crawlLock.Key()), zap.Error(err))
		return nil, nil
	}
	if !ok {
		return nil, ErrCrawlInProgress
	}
	return crawlLock, nil
}

// renewCrawlLock 抓取和增强可能很慢，写库前续期；锁已经过期并被别人拿走时放弃这次写入
func (s *IngestService) renewCrawlLock(ctx context.Context, crawlLock *lock.DistributedLock) error {
	if crawlLock == nil {
		return nil
	}
	err := crawlLock.Extend(ctx, s.lockTTL)
	if errors.Is(err, lock.ErrNotHeld) {
		logger.Warn("crawl lock expired before persist", zap.String("lock", crawlLock.Key()))
		return ErrCrawlInProgress
	}
	if err != nil {
		logger.Warn("renew crawl lock failed", zap.String("lock", crawlLock.Key()), zap.Error(err))
	}
	return nil
}

func (s *IngestService) releaseCrawlLock(crawlLock *lock.DistributedLock) {
	if crawlLock == nil {
		return
	}
	if err := crawlLock.Unlock(context.Background()); err != nil {
		logger.Warn("release crawl lock failed", zap.String("lock", crawlLock.Key()), zap.Error(err))
	}
}

func (s *IngestService) ingestLocked(ctx context.Context, raw *crawler.RawContent, crawlLock *lock.DistributedLock) (*IngestResult, error) {
	content := crawler.Normalize(raw.Title, raw.Body)
	if content.Body == "" {
		return nil, &CrawlError{Kind: FetchFailed, URL: raw.SourceURL, Err: errors.New("empty body after normalization")}
	}

	fetchedAt := raw.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.now()
	}
	fetchedAt = fetchedAt.UTC()

	existing, err := s.resourceRepo.GetBySourceURL(ctx, raw.SourceURL)
	if err != nil {
		return nil, &CrawlError{Kind: TransactionFailed, URL: raw.SourceURL, Err: err}
	}

	if existing != nil {
		if existing.Deleted {
			return &IngestResult{ResourceID: existing.ID, SourceURL: existing.SourceURL, Outcome: OutcomeDeleted, Version: existing.Version}, nil
		}
		if !s.policy.Changed(existing, content) {
			if err := s.resourceRepo.TouchFetchedAt(ctx, existing.ID, fetchedAt); err != nil {
				logger.Warn("touch fetched_at failed", zap.Int64("resource_id", existing.ID), zap.Error(err))
			}
			return &IngestResult{ResourceID: existing.ID, SourceURL: existing.SourceURL, Outcome: OutcomeUnchanged, Version: existing.Version}, nil
		}
	}

	summary := s.enrich(ctx, raw.SourceURL, content)

	if err := s.renewCrawlLock(ctx, crawlLock); err != nil {
		return nil, err
	}

	res, ev, err := s.persist(ctx, existing, raw.SourceURL, content, summary, fetchedAt)
	if err != nil {
		return nil, &CrawlError{Kind: TransactionFailed, URL: raw.SourceURL, Err: err}
	}

	outcome := OutcomeCreated
	if ev.EventType == model.EventTypeUpdated {
		outcome = OutcomeUpdated
	}

	logger.Info("resource ingested",
		zap.Int64("resource_id", res.ID),
		zap.String("url", res.SourceURL),
		zap.String("event", ev.EventType),
		zap.Int64("sequence_id", ev.SequenceID),
		zap.Int64("version", res.Version),
	)

	return &IngestResult{
		ResourceID: res.ID,
		SourceURL:  res.SourceURL,
		Outcome:    outcome,
		SequenceID: ev.SequenceID,
		Version:    res.Version,
	}, nil
}

// enrich 增强失败只记日志，摘要留空
func (s *IngestService) enrich(ctx context.Context, sourceURL string, content crawler.Normalized) string {
	e, err := s.enricher.Enrich(ctx, content.Title, content.Body)
	if err != nil {
		logger.Warn("enrichment failed, continuing without summary", zap.String("url", sourceURL), zap.Error(err))
		return ""
	}
	return e.Summary
}

// persist 资源写入和 outbox 事件在同一个事务里，任何一步失败整体回滚
func (s *IngestService) persist(ctx context.Context, existing *model.Resource, sourceURL string, content crawler.Normalized, summary string, fetchedAt time.Time) (*model.Resource, *model.OutboxEvent, error) {
	now := s.now().UTC()

	var (
		res       *model.Resource
		eventType string
	)
	if existing == nil {
		res = &model.Resource{
			ID:        s.nextID(),
			SourceURL: sourceURL,
			Version:   1,
			CreatedAt: now,
		}
		eventType = model.EventTypeCreated
	} else {
		copied := *existing
		res = &copied
		eventType = model.EventTypeUpdated
	}
	res.ContentHash = content.Hash
	res.Title = content.Title
	res.Body = content.Body
	res.Summary = summary
	res.FetchedAt = fetchedAt
	res.UpdatedAt = now

	ev := &model.OutboxEvent{
		ResourceID:    res.ID,
		EventType:     eventType,
		Status:        model.OutboxStatusPending,
		NextAttemptAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if existing == nil {
			if err := s.resourceRepo.Create(ctx, tx, res); err != nil {
				return fmt.Errorf("创建资源失败: %w", err)
			}
		} else {
			if err := s.resourceRepo.UpdateContent(ctx, tx, res, existing.Version); err != nil {
				return fmt.Errorf("更新资源失败: %w", err)
			}
		}

		payload, err := json.Marshal(res.Snapshot())
		if err != nil {
			return fmt.Errorf("序列化资源快照失败: %w", err)
		}
		ev.Payload = string(payload)

		if err := s.outboxRepo.Create(ctx, tx, ev); err != nil {
			return fmt.Errorf("写入 outbox 事件失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res, ev, nil
}
