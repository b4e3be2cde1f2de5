package crawler

import (
	"fmt"

	"crawlsync/internal/model"
)

// ChangePolicy 判断一次爬取相对已存在的资源是否算内容变更
type ChangePolicy interface {
	Changed(existing *model.Resource, incoming Normalized) bool
	Name() string
}

// ContentHashPolicy 内容哈希不同即为变更
type ContentHashPolicy struct{}

func (ContentHashPolicy) Changed(existing *model.Resource, incoming Normalized) bool {
	return existing.ContentHash != incoming.Hash
}

func (ContentHashPolicy) Name() string { return "content_hash" }

// URLOnlyPolicy URL 已存在就视为未变化，已入库的内容不再更新
type URLOnlyPolicy struct{}

func (URLOnlyPolicy) Changed(*model.Resource, Normalized) bool { return false }

func (URLOnlyPolicy) Name() string { return "url_only" }

func PolicyByName(name string) (ChangePolicy, error) {
	switch name {
	case "", "content_hash":
		return ContentHashPolicy{}, nil
	case "url_only":
		return URLOnlyPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown dedup policy %q", name)
	}
}
