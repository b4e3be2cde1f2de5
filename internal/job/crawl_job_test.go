package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"crawlsync/internal/config"
	"crawlsync/internal/crawler"
	"crawlsync/internal/service"
	"crawlsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher map[string]*crawler.RawContent

func (f stubFetcher) Fetch(_ context.Context, url string) (*crawler.RawContent, error) {
	raw, ok := f[url]
	if !ok {
		return nil, &crawler.FetchError{Kind: crawler.FetchNotFound, URL: url, Err: errors.New("404")}
	}
	return raw, nil
}

type stubFeeds map[string]*crawler.Feed

func (s stubFeeds) Read(_ context.Context, url string) (*crawler.Feed, error) {
	feed, ok := s[url]
	if !ok {
		return nil, &crawler.FetchError{Kind: crawler.FetchNetwork, URL: url, Err: errors.New("connection refused")}
	}
	return feed, nil
}

func TestCrawlJob_RunOnceCrawlsFeedsAndPages(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &config.CrawlerConfig{
		DedupPolicy:      "content_hash",
		SummarySentences: 2,
		Feeds:            []string{"https://news.example.com/rss", "https://down.example.com/rss"},
		Pages:            []string{"https://example.com/about", "https://example.com/missing"},
	}

	fetched := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	fetcher := stubFetcher{
		"https://example.com/about": {SourceURL: "https://example.com/about", Title: "About", Body: "We crawl things.", FetchedAt: fetched},
	}
	ingest, err := service.NewIngestService(db, nil, fetcher, cfg)
	require.NoError(t, err)

	feeds := service.NewFeedService(ingest, stubFeeds{
		"https://news.example.com/rss": {
			Title: "News",
			URL:   "https://news.example.com/rss",
			Entries: []*crawler.RawContent{
				{SourceURL: "https://news.example.com/a", Title: "A", Body: "First story.", FetchedAt: fetched},
				{SourceURL: "https://news.example.com/b", Title: "B", Body: "Second story.", FetchedAt: fetched},
			},
		},
	})

	job := NewCrawlJob(feeds, ingest, cfg)
	summaries := job.RunOnce(context.Background())
	require.Len(t, summaries, 2, "the unreachable feed yields no summary")

	assert.Equal(t, "https://news.example.com/rss", summaries[0].Feed)
	assert.Equal(t, 2, summaries[0].Created)

	pages := summaries[1]
	assert.Equal(t, "pages", pages.Feed)
	assert.Equal(t, 1, pages.Created)
	assert.Equal(t, 1, pages.Failed)

	// 第二轮内容没变，不产生新事件
	again := job.RunOnce(context.Background())
	require.Len(t, again, 2)
	assert.Equal(t, 2, again[0].Unchanged)
	assert.Equal(t, 1, again[1].Unchanged)
}

func TestCrawlJob_StopsOnCancelledContext(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &config.CrawlerConfig{DedupPolicy: "content_hash", Feeds: []string{"https://news.example.com/rss"}}
	ingest, err := service.NewIngestService(db, nil, stubFetcher{}, cfg)
	require.NoError(t, err)

	job := NewCrawlJob(service.NewFeedService(ingest, stubFeeds{}), ingest, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, job.RunOnce(ctx))
}

func TestCrawlJob_StopEndsStartAndIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := &config.CrawlerConfig{DedupPolicy: "content_hash", Interval: time.Hour}
	ingest, err := service.NewIngestService(db, nil, stubFetcher{}, cfg)
	require.NoError(t, err)
	job := NewCrawlJob(service.NewFeedService(ingest, stubFeeds{}), ingest, cfg)

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	job.Stop()
	assert.NotPanics(t, job.Stop)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("crawl job did not stop")
	}
}
