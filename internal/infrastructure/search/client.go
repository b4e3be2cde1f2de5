package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"crawlsync/internal/model"
)

// ErrStaleVersion 索引中已有更新版本的文档，本次写入被拒绝；对调用方而言等同成功
var ErrStaleVersion = errors.New("search: stale document version")

type Kind int

const (
	Transient Kind = iota + 1
	Permanent
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error 索引写入失败，Kind 决定调度器是否重试
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("search %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewTransient(op string, err error) error {
	return &Error{Kind: Transient, Op: op, Err: err}
}

func NewPermanent(op string, err error) error {
	return &Error{Kind: Permanent, Op: op, Err: err}
}

// IsPermanent 未分类的错误按可重试处理
func IsPermanent(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == Permanent
}

// Document 写入索引的文档；Version 为外部版本号，取 outbox 的 sequence_id
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Summary   string    `json:"summary,omitempty"`
	SourceURL string    `json:"sourceUrl"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

func DocumentID(resourceID int64) string {
	return strconv.FormatInt(resourceID, 10)
}

func NewDocument(s model.ResourceSnapshot, sequenceID int64) Document {
	return Document{
		ID:        DocumentID(s.ID),
		Title:     s.Title,
		Body:      s.Body,
		Summary:   s.Summary,
		SourceURL: s.SourceURL,
		UpdatedAt: s.UpdatedAt,
		Version:   sequenceID,
	}
}

// Client 搜索索引写入端。实现必须幂等：同一 (id, version) 重复写入结果不变，
// 版本低于已有文档时返回 ErrStaleVersion
type Client interface {
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string, version int64) error
}
