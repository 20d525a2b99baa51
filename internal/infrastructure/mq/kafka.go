package mq

import (
	"fmt"

	"billpay/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher 领域事件发布
type Publisher interface {
	Publish(topic, key, value string) error
	Close() error
}

// NewSyncProducer 创建 Kafka 同步生产者
func NewSyncProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return producer, nil
}

// KafkaPublisher 基于 sarama.SyncProducer 的 Publisher
type KafkaPublisher struct {
	producer sarama.SyncProducer
	log      *zap.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, log: log}
}

func (p *KafkaPublisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	p.log.Debug("[KafkaPublisher] 消息已投递",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
