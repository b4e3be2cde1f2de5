package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【用在哪里？】
//
// 1. 爬取锁：同一个 URL 同一时刻只允许一个爬取任务在抓取和写库
//      两个进程同时抓到同一页面 -> 都认为是新资源 -> 唯一索引冲突 / 重复事件
//
// 2. 投递锁：多实例部署时，同一资源的事件只允许一个 worker 写索引
//      数据库的队头规则已经保证顺序，锁只是减少无效的索引请求
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（持有者崩溃时自动释放）
//   - value: 持有者标识，释放时校验，防止误删别人的锁
//
// 释放锁：Lua 脚本保证"检查+删除"原子执行
// 续期：同样用 Lua 脚本，只给自己持有的锁 PEXPIRE
//
// ============================================================================

var ErrNotHeld = errors.New("锁不属于当前持有者")

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

const extendScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

func (l *DistributedLock) Key() string { return l.key }

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// Extend 续期，锁已被他人持有时返回 ErrNotHeld
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// ============================================================================
// 便捷函数
// ============================================================================

// NewCrawlLock 按 URL 维度的爬取锁，value 为随机 uuid
func NewCrawlLock(client *redis.Client, sourceURL string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("crawl:lock:url:%s", sourceURL)
	return NewDistributedLock(client, key, uuid.NewString(), ttl)
}

// NewResourceApplyLock 按资源维度的投递锁，value 使用 claim token 便于追踪
func NewResourceApplyLock(client *redis.Client, resourceID int64, claimToken string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("sync:lock:resource:%d", resourceID)
	if claimToken == "" {
		claimToken = uuid.NewString()
	}
	return NewDistributedLock(client, key, claimToken, ttl)
}
