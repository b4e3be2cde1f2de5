package search

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
)

// KafkaSink 把文档写入按资源 id 分区的 compacted topic，由下游消费者写索引。
// Kafka 不比较版本，过期写入由调度器的 checkpoint 拦截
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// sinkMessage 删除时 Document 为空；compacted topic 上下游可据此写 tombstone
type sinkMessage struct {
	Op       string    `json:"op"`
	ID       string    `json:"id"`
	Version  int64     `json:"version"`
	Document *Document `json:"document,omitempty"`
}

func (s *KafkaSink) Upsert(ctx context.Context, doc Document) error {
	return s.send(ctx, "upsert", sinkMessage{Op: "upsert", ID: doc.ID, Version: doc.Version, Document: &doc})
}

func (s *KafkaSink) Delete(ctx context.Context, id string, version int64) error {
	return s.send(ctx, "delete", sinkMessage{Op: "delete", ID: id, Version: version})
}

func (s *KafkaSink) send(ctx context.Context, op string, m sinkMessage) error {
	if err := ctx.Err(); err != nil {
		return NewTransient(op, err)
	}

	value, err := json.Marshal(m)
	if err != nil {
		return NewPermanent(op, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(m.ID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("op"), Value: []byte(m.Op)},
		},
	}

	if _, _, err := s.producer.SendMessage(msg); err != nil {
		if errors.Is(err, sarama.ErrMessageSizeTooLarge) || errors.Is(err, sarama.ErrInvalidMessage) {
			return NewPermanent(op, err)
		}
		return NewTransient(op, err)
	}
	return nil
}
