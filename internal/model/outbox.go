package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 待投递的领域事件
// 与对应的账本变更在同一次存储事务中写入，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         string    `json:"id"`
	MessageKey string    `json:"messageKey"`
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retryCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
