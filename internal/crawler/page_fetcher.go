package crawler

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"crawlsync/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

var errEmptyPage = errors.New("page has no extractable text")

// PageFetcher 用 colly 抓取 HTML 页面，按 host 限速
type PageFetcher struct {
	base     *colly.Collector
	limiters *hostLimiters
	now      func() time.Time
}

func NewPageFetcher(cfg *config.CrawlerConfig) *PageFetcher {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(10*1024*1024),
	)
	if cfg.FetchTimeout > 0 {
		c.SetRequestTimeout(cfg.FetchTimeout)
	}
	return &PageFetcher{
		base:     c,
		limiters: newHostLimiters(cfg.RatePerHost),
		now:      time.Now,
	}
}

func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*RawContent, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, &FetchError{Kind: FetchParse, URL: pageURL, Err: err}
	}
	if err := f.limiters.wait(ctx, u.Host); err != nil {
		return nil, &FetchError{Kind: classifyTransport(err), URL: pageURL, Err: err}
	}

	// Clone 共享配置但不共享回调，每次抓取的结果互不干扰
	c := f.base.Clone()

	var (
		raw      = &RawContent{SourceURL: pageURL}
		fetchErr *FetchError
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		raw.Title = strings.TrimSpace(e.ChildText("head > title"))
		if og := e.ChildAttr(`meta[property="og:title"]`, "content"); raw.Title == "" && og != "" {
			raw.Title = strings.TrimSpace(og)
		}
		raw.Body = pageText(e.DOM)
	})

	c.OnError(func(r *colly.Response, err error) {
		kind := classifyTransport(err)
		if r != nil && r.StatusCode >= 400 {
			kind = classifyStatus(r.StatusCode)
		}
		fetchErr = &FetchError{Kind: kind, URL: pageURL, Err: err}
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = &FetchError{Kind: classifyTransport(err), URL: pageURL, Err: err}
	}
	if ctx.Err() != nil {
		return nil, &FetchError{Kind: classifyTransport(ctx.Err()), URL: pageURL, Err: ctx.Err()}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if strings.TrimSpace(raw.Body) == "" {
		return nil, &FetchError{Kind: FetchParse, URL: pageURL, Err: errEmptyPage}
	}

	raw.FetchedAt = f.now().UTC()
	return raw, nil
}

// pageText 优先取 <article>/<main>，否则取 <body>
func pageText(doc *goquery.Selection) string {
	doc.Find("script, style, noscript, nav, footer, header, iframe").Remove()
	for _, sel := range []string{"article", "main", "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if text := strings.TrimSpace(s.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

type hostLimiters struct {
	mu    sync.Mutex
	rps   float64
	hosts map[string]*rate.Limiter
}

func newHostLimiters(rps float64) *hostLimiters {
	return &hostLimiters{rps: rps, hosts: make(map[string]*rate.Limiter)}
}

// wait rps <= 0 表示不限速
func (h *hostLimiters) wait(ctx context.Context, host string) error {
	if h.rps <= 0 {
		return ctx.Err()
	}
	h.mu.Lock()
	l, ok := h.hosts[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.rps), 1)
		h.hosts[host] = l
	}
	h.mu.Unlock()
	return l.Wait(ctx)
}
