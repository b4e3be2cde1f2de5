package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crawlsync/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// FeedReader 读取 RSS/Atom，把每个条目展开为一份 RawContent
type FeedReader struct {
	parser  *gofeed.Parser
	timeout time.Duration
	now     func() time.Time
}

func NewFeedReader(cfg *config.CrawlerConfig) *FeedReader {
	p := gofeed.NewParser()
	p.UserAgent = cfg.UserAgent
	p.Client = &http.Client{Timeout: cfg.FetchTimeout}
	return &FeedReader{parser: p, timeout: cfg.FetchTimeout, now: time.Now}
}

// Feed 一次读取的结果
type Feed struct {
	Title   string
	URL     string
	Entries []*RawContent
}

func (r *FeedReader) Read(ctx context.Context, feedURL string) (*Feed, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	f, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, feedError(feedURL, err)
	}

	fetchedAt := r.now().UTC()
	feed := &Feed{Title: f.Title, URL: feedURL}
	for _, item := range f.Items {
		entry := entryContent(item, fetchedAt)
		if entry == nil {
			continue
		}
		feed.Entries = append(feed.Entries, entry)
	}
	return feed, nil
}

// entryContent 正文优先取 content:encoded，缺失时退回 description；没有链接或正文的条目跳过
func entryContent(item *gofeed.Item, fetchedAt time.Time) *RawContent {
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	if link == "" {
		return nil
	}

	html := item.Content
	if strings.TrimSpace(html) == "" {
		html = item.Description
	}
	body := HTMLToText(html)
	if body == "" {
		return nil
	}

	raw := &RawContent{
		SourceURL: link,
		Title:     strings.TrimSpace(item.Title),
		Body:      body,
		FetchedAt: fetchedAt,
	}
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		raw.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		raw.PublishedAt = &t
	}
	return raw
}

// HTMLToText 去掉标签，块级元素之间保留换行
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("p, br, div, li, h1, h2, h3, h4, h5, h6, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return strings.TrimSpace(doc.Text())
}

func feedError(feedURL string, err error) error {
	var he gofeed.HTTPError
	if errors.As(err, &he) {
		return &FetchError{Kind: classifyStatus(he.StatusCode), URL: feedURL, Err: err}
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return &FetchError{Kind: FetchParse, URL: feedURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &FetchError{Kind: FetchTimeout, URL: feedURL, Err: err}
	}
	// http.Client 的传输层错误都包装为 *url.Error，其余为解析失败
	var ue *url.Error
	if errors.As(err, &ue) {
		return &FetchError{Kind: classifyTransport(err), URL: feedURL, Err: err}
	}
	return &FetchError{Kind: FetchParse, URL: feedURL, Err: err}
}
