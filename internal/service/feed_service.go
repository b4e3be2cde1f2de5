package service

import (
	"context"
	"errors"
	"fmt"

	"crawlsync/internal/crawler"
	"crawlsync/pkg/logger"

	"go.uber.org/zap"
)

// FeedSource 读取 RSS/Atom 源
type FeedSource interface {
	Read(ctx context.Context, feedURL string) (*crawler.Feed, error)
}

// CrawlSummary 一次 feed 爬取的统计
type CrawlSummary struct {
	Feed      string `json:"feed"`
	Entries   int    `json:"entries"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

func (s *CrawlSummary) Record(outcome string) {
	switch outcome {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	default:
		s.Skipped++
	}
}

type FeedService struct {
	ingest *IngestService
	source FeedSource
}

func NewFeedService(ingest *IngestService, source FeedSource) *FeedService {
	return &FeedService{ingest: ingest, source: source}
}

// CrawlFeed 读取 feed 并逐条入库；单条失败只计数，不影响其他条目
func (s *FeedService) CrawlFeed(ctx context.Context, feedURL string) (*CrawlSummary, error) {
	feed, err := s.source.Read(ctx, feedURL)
	if err != nil {
		return nil, &CrawlError{Kind: FetchFailed, URL: feedURL, Err: err}
	}

	summary := &CrawlSummary{Feed: feedURL, Entries: len(feed.Entries)}
	for _, entry := range feed.Entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := s.ingest.IngestRaw(ctx, entry)
		switch {
		case err == nil:
			summary.Record(res.Outcome)
		case errors.Is(err, ErrCrawlInProgress):
			summary.Skipped++
		default:
			summary.Failed++
			logger.Warn("feed entry ingest failed",
				zap.String("feed", feedURL),
				zap.String("url", entry.SourceURL),
				zap.Error(err),
			)
		}
	}

	logger.Info("feed crawled",
		zap.String("feed", feedURL),
		zap.String("title", feed.Title),
		zap.Int("entries", summary.Entries),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *CrawlSummary) String() string {
	return fmt.Sprintf("%s: entries=%d created=%d updated=%d unchanged=%d skipped=%d failed=%d",
		s.Feed, s.Entries, s.Created, s.Updated, s.Unchanged, s.Skipped, s.Failed)
}
