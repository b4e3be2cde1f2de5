package mq

import (
	"fmt"

	"crawlsync/internal/config"
	"crawlsync/pkg/logger"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// NewSyncProducer 创建 Kafka 同步生产者
func NewSyncProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	logger.Info("kafka producer created", zap.Strings("brokers", cfg.Brokers))
	return producer, nil
}

// ProducerConfig 搜索文档投递使用的生产者配置
func ProducerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	c.Producer.Retry.Max = 3
	c.Producer.Return.Successes = true
	c.Producer.Idempotent = true
	c.Net.MaxOpenRequests = 1 // 幂等生产者要求
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Version = sarama.V2_1_0_0
	return c
}
