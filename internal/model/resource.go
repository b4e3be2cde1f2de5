package model

import (
	"time"
)

// Resource 爬取得到的规范化内容
type Resource struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SourceURL   string    `gorm:"type:varchar(512);uniqueIndex;not null" json:"source_url"`
	ContentHash string    `gorm:"type:char(64);index;not null" json:"content_hash"`
	Title       string    `gorm:"type:varchar(512);not null" json:"title"`
	Body        string    `gorm:"not null" json:"body"`
	Summary     string    `gorm:"type:text" json:"summary"`
	FetchedAt   time.Time `gorm:"not null" json:"fetched_at"`
	Version     int64     `gorm:"not null;default:1" json:"version"`
	Deleted     bool      `gorm:"not null;default:false" json:"deleted"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Resource) TableName() string {
	return "resource"
}

// ResourceSnapshot 是写入 outbox payload 的资源快照
type ResourceSnapshot struct {
	ID          int64     `json:"id"`
	SourceURL   string    `json:"source_url"`
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Summary     string    `json:"summary,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
	Version     int64     `json:"version"`
	Deleted     bool      `json:"deleted"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *Resource) Snapshot() ResourceSnapshot {
	return ResourceSnapshot{
		ID:          r.ID,
		SourceURL:   r.SourceURL,
		ContentHash: r.ContentHash,
		Title:       r.Title,
		Body:        r.Body,
		Summary:     r.Summary,
		FetchedAt:   r.FetchedAt,
		Version:     r.Version,
		Deleted:     r.Deleted,
		UpdatedAt:   r.UpdatedAt,
	}
}
