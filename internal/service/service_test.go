package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crawlsync/internal/config"
	"crawlsync/internal/crawler"
	"crawlsync/internal/model"
	"crawlsync/internal/testutil"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeFetcher 按 URL 返回预置内容
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*crawler.RawContent
	errs  map[string]error
	calls int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]*crawler.RawContent{}, errs: map[string]error{}}
}

func (f *fakeFetcher) set(url, title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = &crawler.RawContent{SourceURL: url, Title: title, Body: body}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*crawler.RawContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	p, ok := f.pages[url]
	if !ok {
		return nil, &crawler.FetchError{Kind: crawler.FetchNotFound, URL: url, Err: errors.New("404")}
	}
	copied := *p
	return &copied, nil
}

type failingEnricher struct{}

func (failingEnricher) Enrich(context.Context, string, string) (crawler.Enrichment, error) {
	return crawler.Enrichment{}, &crawler.EnrichmentError{Err: errors.New("model timeout")}
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func crawlerConfig() *config.CrawlerConfig {
	return &config.CrawlerConfig{
		SummarySentences: 2,
		DedupPolicy:      "content_hash",
		LockTTL:          time.Minute,
	}
}

func newIngestService(t *testing.T, db *gorm.DB, rdb *redis.Client, f crawler.Fetcher) *IngestService {
	t.Helper()
	s, err := NewIngestService(db, rdb, f, crawlerConfig())
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }
	return s
}

func outboxEvents(t *testing.T, db *gorm.DB) []model.OutboxEvent {
	t.Helper()
	var events []model.OutboxEvent
	require.NoError(t, db.Order("sequence_id ASC").Find(&events).Error)
	return events
}

func resourceCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Resource{}).Count(&n).Error)
	return n
}

func setupDB(t *testing.T) *gorm.DB {
	return testutil.NewDB(t)
}
