package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// RawContent 抓取结果，Body 已去除标签，尚未规范化
type RawContent struct {
	SourceURL   string
	Title       string
	Body        string
	FetchedAt   time.Time
	PublishedAt *time.Time
}

// Fetcher 抓取单个 URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*RawContent, error)
}

type FetchErrorKind int

const (
	FetchTimeout FetchErrorKind = iota + 1
	FetchNotFound
	FetchBlocked
	FetchNetwork
	FetchParse
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchNotFound:
		return "not_found"
	case FetchBlocked:
		return "blocked"
	case FetchNetwork:
		return "network"
	case FetchParse:
		return "parse"
	default:
		return "unknown"
	}
}

type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable NotFound 和 Parse 重试也不会成功
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchTimeout || e.Kind == FetchNetwork || e.Kind == FetchBlocked
}

func classifyStatus(status int) FetchErrorKind {
	switch {
	case status == 404 || status == 410:
		return FetchNotFound
	case status == 401 || status == 403 || status == 429:
		return FetchBlocked
	case status >= 400 && status < 500:
		return FetchParse
	default:
		return FetchNetwork
	}
}

func classifyTransport(err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FetchTimeout
	}
	return FetchNetwork
}
