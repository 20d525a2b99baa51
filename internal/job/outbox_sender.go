package job

import (
	"context"
	"sort"
	"time"

	"billpay/internal/config"
	"billpay/internal/infrastructure/metrics"
	"billpay/internal/infrastructure/mq"
	"billpay/internal/model"
	"billpay/internal/repository"

	"go.uber.org/zap"
)

// OutboxSender 把 outbox:{id} 中的待投递消息发送到 Kafka
//
// 投递成功后删除消息；失败则累加重试次数，超过 business.max_retry_count 标记为 FAILED，
// FAILED 消息保留在存储中等待人工处理
type OutboxSender struct {
	store     repository.Store
	publisher mq.Publisher
	cfg       *config.Config
	metrics   *metrics.Metrics
	log       *zap.Logger
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOutboxSender(store repository.Store, publisher mq.Publisher, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *OutboxSender {
	return &OutboxSender{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		log:       log,
		stopCh:    make(chan struct{}),
		interval:  100 * time.Millisecond,
		batchSize: 100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	keys, err := s.store.Keys(ctx, repository.OutboxPrefix)
	if err != nil {
		s.log.Error("[OutboxSender] 查询消息失败", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}

	// ID 为 ULID，按字典序即按创建时间
	sort.Strings(keys)
	if len(keys) > s.batchSize {
		keys = keys[:s.batchSize]
	}

	for _, key := range keys {
		var msg model.OutboxMessage
		found, err := s.store.Get(ctx, key, &msg)
		if err != nil {
			s.log.Error("[OutboxSender] 读取消息失败", zap.String("key", key), zap.Error(err))
			continue
		}
		if !found || msg.Status != model.OutboxStatusPending {
			continue
		}
		s.sendMessage(ctx, key, &msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, key string, msg *model.OutboxMessage) {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.log.Error("[OutboxSender] 删除已发送消息失败", zap.String("id", msg.ID), zap.Error(delErr))
		} else {
			s.metrics.OutboxPublished.Inc()
			s.log.Info("[OutboxSender] 消息发送成功",
				zap.String("id", msg.ID), zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey))
		}
		return
	}

	s.log.Warn("[OutboxSender] 消息发送失败", zap.String("id", msg.ID), zap.Error(err))

	failed := false
	updateErr := s.store.Update(ctx, []string{key}, func(tx repository.Txn) error {
		var current model.OutboxMessage
		found, err := tx.Get(key, &current)
		if err != nil || !found {
			return err
		}
		current.RetryCount++
		current.UpdatedAt = time.Now().UTC()
		failed = current.RetryCount >= s.cfg.Business.MaxRetryCount
		if failed {
			current.Status = model.OutboxStatusFailed
		}
		return tx.Set(key, current)
	})
	if updateErr != nil {
		s.log.Error("[OutboxSender] 更新重试次数失败", zap.String("id", msg.ID), zap.Error(updateErr))
		return
	}
	if failed {
		s.metrics.OutboxFailed.Inc()
		s.log.Error("[OutboxSender] 消息超过最大重试次数，标记为失败", zap.String("id", msg.ID))
	}
}
