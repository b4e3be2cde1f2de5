package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"crawlsync/internal/config"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchClient 使用 external 版本控制写入 Elasticsearch，
// 版本号小于等于已有文档时 ES 返回 409
type ElasticsearchClient struct {
	es    *elasticsearch.Client
	index string
}

func NewElasticsearchClient(cfg *config.SearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
	}
	return NewElasticsearchClientWith(es, cfg.Index), nil
}

func NewElasticsearchClientWith(es *elasticsearch.Client, index string) *ElasticsearchClient {
	return &ElasticsearchClient{es: es, index: index}
}

func (c *ElasticsearchClient) Upsert(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return NewPermanent("upsert", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(doc.ID),
		c.es.Index.WithVersion(int(doc.Version)),
		c.es.Index.WithVersionType("external"),
	)
	if err != nil {
		return NewTransient("upsert", err)
	}
	defer res.Body.Close()

	return classify("upsert", res, false)
}

func (c *ElasticsearchClient) Delete(ctx context.Context, id string, version int64) error {
	res, err := c.es.Delete(
		c.index,
		id,
		c.es.Delete.WithContext(ctx),
		c.es.Delete.WithVersion(int(version)),
		c.es.Delete.WithVersionType("external"),
	)
	if err != nil {
		return NewTransient("delete", err)
	}
	defer res.Body.Close()

	return classify("delete", res, true)
}

// Ping 检查集群是否可用
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch info: %s", res.Status())
	}
	return nil
}

func classify(op string, res *esapi.Response, notFoundOK bool) error {
	if !res.IsError() {
		return nil
	}

	switch {
	case res.StatusCode == http.StatusConflict:
		return ErrStaleVersion
	case res.StatusCode == http.StatusNotFound && notFoundOK:
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	err := fmt.Errorf("status %d: %s", res.StatusCode, bytes.TrimSpace(msg))

	switch {
	case res.StatusCode == http.StatusRequestTimeout,
		res.StatusCode == http.StatusTooManyRequests,
		res.StatusCode >= 500:
		return NewTransient(op, err)
	default:
		return NewPermanent(op, err)
	}
}
