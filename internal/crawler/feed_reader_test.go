package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crawlsync/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Example News</title>
  <link>https://news.example.com/</link>
  <item>
    <title>Full story</title>
    <link>https://news.example.com/full?utm_source=rss</link>
    <description>Short teaser</description>
    <content:encoded><![CDATA[<p>First paragraph.</p><p>Second <b>bold</b> paragraph.</p>]]></content:encoded>
    <pubDate>Sun, 01 Mar 2026 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Teaser only</title>
    <link>https://news.example.com/teaser</link>
    <description><![CDATA[<p>Only a description.</p>]]></description>
  </item>
  <item>
    <title>No link</title>
    <description>Dropped</description>
  </item>
  <item>
    <title>No body</title>
    <link>https://news.example.com/empty</link>
  </item>
</channel>
</rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a feed"))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFeedReader() *FeedReader {
	r := NewFeedReader(&config.CrawlerConfig{UserAgent: "crawlsync-test", FetchTimeout: 5 * time.Second})
	r.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestFeedReader_Read(t *testing.T) {
	srv := newFeedServer(t)

	feed, err := newTestFeedReader().Read(context.Background(), srv.URL+"/rss")
	require.NoError(t, err)
	assert.Equal(t, "Example News", feed.Title)
	require.Len(t, feed.Entries, 2)

	full := feed.Entries[0]
	assert.Equal(t, "https://news.example.com/full?utm_source=rss", full.SourceURL)
	assert.Equal(t, "Full story", full.Title)
	assert.Contains(t, full.Body, "First paragraph.")
	assert.Contains(t, full.Body, "Second bold paragraph.")
	assert.NotContains(t, full.Body, "teaser")
	require.NotNil(t, full.PublishedAt)
	assert.Equal(t, 2026, full.PublishedAt.Year())
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), full.FetchedAt)

	teaser := feed.Entries[1]
	assert.Equal(t, "Only a description.", teaser.Body)
	assert.Nil(t, teaser.PublishedAt)
}

func TestFeedReader_Errors(t *testing.T) {
	srv := newFeedServer(t)
	reader := newTestFeedReader()

	cases := []struct {
		path string
		kind FetchErrorKind
	}{
		{"/missing", FetchNotFound},
		{"/forbidden", FetchBlocked},
		{"/garbage", FetchParse},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			_, err := reader.Read(context.Background(), srv.URL+tc.path)
			var fe *FetchError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tc.kind, fe.Kind)
		})
	}
}

func TestFeedReader_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := newTestFeedReader().Read(context.Background(), addr+"/rss")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FetchNetwork, fe.Kind)
	assert.True(t, fe.Retryable())
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "", HTMLToText("   "))
	assert.Equal(t, "plain", HTMLToText("plain"))

	text := HTMLToText(`<div>A<script>alert(1)</script></div><ul><li>x</li><li>y</li></ul>`)
	assert.NotContains(t, text, "alert")
	assert.Equal(t, "A\nx\ny", Normalize("", text).Body)
}
