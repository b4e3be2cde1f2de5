package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"crawlsync/internal/config"
	"crawlsync/internal/service"
	"crawlsync/pkg/logger"

	"go.uber.org/zap"
)

// CrawlJob 周期性爬取配置的 feed 和页面
type CrawlJob struct {
	feeds    *service.FeedService
	ingest   *service.IngestService
	cfg      config.CrawlerConfig
	stopCh   chan struct{}
	stopOnce sync.Once
	interval time.Duration
}

func NewCrawlJob(feeds *service.FeedService, ingest *service.IngestService, cfg *config.CrawlerConfig) *CrawlJob {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &CrawlJob{
		feeds:    feeds,
		ingest:   ingest,
		cfg:      *cfg,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

func (j *CrawlJob) Start(ctx context.Context) {
	logger.Info("[CrawlJob] 爬取任务启动",
		zap.Int("feeds", len(j.cfg.Feeds)),
		zap.Int("pages", len(j.cfg.Pages)),
		zap.Duration("interval", j.interval),
	)

	j.RunOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[CrawlJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logger.Info("[CrawlJob] 任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// Stop 可重复调用
func (j *CrawlJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// RunOnce 爬取一轮，返回每个 feed 的统计
func (j *CrawlJob) RunOnce(ctx context.Context) []*service.CrawlSummary {
	var summaries []*service.CrawlSummary

	for _, feedURL := range j.cfg.Feeds {
		if ctx.Err() != nil {
			return summaries
		}
		summary, err := j.feeds.CrawlFeed(ctx, feedURL)
		if err != nil {
			logger.Error("[CrawlJob] feed 爬取失败", zap.String("feed", feedURL), zap.Error(err))
			continue
		}
		summaries = append(summaries, summary)
	}

	if len(j.cfg.Pages) > 0 {
		pages := &service.CrawlSummary{Feed: "pages", Entries: len(j.cfg.Pages)}
		for _, pageURL := range j.cfg.Pages {
			if ctx.Err() != nil {
				break
			}
			res, err := j.ingest.Ingest(ctx, pageURL)
			switch {
			case err == nil:
				pages.Record(res.Outcome)
			case errors.Is(err, service.ErrCrawlInProgress):
				pages.Skipped++
			default:
				pages.Failed++
				logger.Warn("[CrawlJob] 页面爬取失败", zap.String("url", pageURL), zap.Error(err))
			}
		}
		logger.Info("[CrawlJob] 页面爬取完成", zap.String("summary", pages.String()))
		summaries = append(summaries, pages)
	}

	return summaries
}
