package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidURL = errors.New("invalid source url")

// trackingParams 追踪参数，清洗时删除；utm_ 前缀另行处理
var trackingParams = map[string]struct{}{
	"source": {},
	"fbclid": {},
	"gclid":  {},
}

// CleanURL 生成资源的唯一键：小写 scheme/host，去掉 fragment、追踪参数和默认端口，
// 剩余 query 按 key 排序
func CleanURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if _, ok := trackingParams[lk]; ok || strings.HasPrefix(lk, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}
