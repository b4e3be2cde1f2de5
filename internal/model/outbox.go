package model

import (
	"time"
)

const (
	OutboxStatusPending    = "PENDING"
	OutboxStatusProcessing = "PROCESSING"
	OutboxStatusDone       = "DONE"
	OutboxStatusFailed     = "FAILED"
)

const (
	EventTypeCreated = "CREATED"
	EventTypeUpdated = "UPDATED"
	EventTypeDeleted = "DELETED"
)

// AllOutboxStatuses 用于状态统计，保证没有事件的状态也返回 0
var AllOutboxStatuses = []string{
	OutboxStatusPending,
	OutboxStatusProcessing,
	OutboxStatusDone,
	OutboxStatusFailed,
}

// ValidOutboxTransitions FAILED -> PENDING 只允许通过人工重放
var ValidOutboxTransitions = map[string][]string{
	OutboxStatusPending:    {OutboxStatusProcessing},
	OutboxStatusProcessing: {OutboxStatusDone, OutboxStatusPending, OutboxStatusFailed},
	OutboxStatusFailed:     {OutboxStatusPending},
}

func CanOutboxTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidOutboxTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventTypeCreated, EventTypeUpdated, EventTypeDeleted:
		return true
	default:
		return false
	}
}

// OutboxEvent 与资源写入同事务落库的变更事件，SequenceID 由数据库自增生成，定义全局投递顺序
type OutboxEvent struct {
	SequenceID    int64      `gorm:"column:sequence_id;primaryKey;autoIncrement" json:"sequence_id"`
	ResourceID    int64      `gorm:"index:idx_outbox_resource_seq,priority:1;not null" json:"resource_id"`
	EventType     string     `gorm:"type:varchar(16);not null" json:"event_type"`
	Payload       string     `gorm:"not null" json:"payload"`
	Status        string     `gorm:"type:varchar(16);index:idx_outbox_status_next,priority:1;not null;default:PENDING" json:"status"`
	AttemptCount  int        `gorm:"not null;default:0" json:"attempt_count"`
	LastError     string     `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt time.Time  `gorm:"index:idx_outbox_status_next,priority:2;not null" json:"next_attempt_at"`
	ClaimToken    string     `gorm:"type:varchar(36);index;not null;default:''" json:"-"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ClaimedAt     *time.Time `gorm:"index" json:"claimed_at,omitempty"`
	ProcessedAt   *time.Time `gorm:"index" json:"processed_at,omitempty"`
}

func (OutboxEvent) TableName() string {
	return "outbox_event"
}

// SyncCheckpoint 记录每个资源已成功写入索引的最大 sequence_id
type SyncCheckpoint struct {
	ResourceID int64     `gorm:"primaryKey;autoIncrement:false" json:"resource_id"`
	SequenceID int64     `gorm:"not null" json:"sequence_id"`
	EventType  string    `gorm:"type:varchar(16);not null" json:"event_type"`
	AppliedAt  time.Time `gorm:"not null" json:"applied_at"`
}

func (SyncCheckpoint) TableName() string {
	return "sync_checkpoint"
}
