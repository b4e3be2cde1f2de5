package cli

import (
	"fmt"

	"crawlsync/internal/config"
	"crawlsync/internal/crawler"
	"crawlsync/internal/infrastructure/cache"
	"crawlsync/internal/infrastructure/database"
	"crawlsync/internal/infrastructure/mq"
	"crawlsync/internal/infrastructure/search"
	"crawlsync/internal/service"
	"crawlsync/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app 各命令共享的依赖
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	redis    *redis.Client
	producer sarama.SyncProducer
	index    search.Client

	ingest *service.IngestService
	feeds  *service.FeedService
	admin  *service.AdminService
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db}

	a.redis, err = cache.InitRedis(&cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}

	ingest, err := service.NewIngestService(db, a.redis, crawler.NewPageFetcher(&cfg.Crawler), &cfg.Crawler)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ingest = ingest
	a.feeds = service.NewFeedService(ingest, crawler.NewFeedReader(&cfg.Crawler))
	a.admin = service.NewAdminService(db)
	return a, nil
}

// searchClient 按配置创建索引客户端，只有 serve 需要
func (a *app) searchClient() (search.Client, error) {
	if a.index != nil {
		return a.index, nil
	}

	switch a.cfg.Search.Driver {
	case "elasticsearch":
		c, err := search.NewElasticsearchClient(&a.cfg.Search)
		if err != nil {
			return nil, err
		}
		a.index = c
	case "kafka":
		producer, err := mq.NewSyncProducer(&a.cfg.Kafka)
		if err != nil {
			return nil, err
		}
		a.producer = producer
		a.index = search.NewKafkaSink(producer, a.cfg.Kafka.Topic.SearchDocuments)
	case "memory":
		a.index = search.NewMemoryIndex()
	default:
		return nil, fmt.Errorf("unsupported search driver %q", a.cfg.Search.Driver)
	}
	logger.Info("search client ready", zap.String("driver", a.cfg.Search.Driver))
	return a.index, nil
}

func (a *app) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Warn("close kafka producer failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			logger.Warn("close database failed", zap.Error(err))
		}
	}
}
