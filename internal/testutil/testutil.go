// Package testutil 测试公用的数据库和 Redis 构造
package testutil

import (
	"path/filepath"
	"testing"

	"crawlsync/internal/config"
	"crawlsync/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB 在临时目录创建已迁移的 sqlite 数据库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "crawlsync.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}

// NewRedis 启动 miniredis 并返回连接它的客户端
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}
