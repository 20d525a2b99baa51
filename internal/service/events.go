package service

import (
	"encoding/json"
	"fmt"
	"time"

	"billpay/internal/model"
	"billpay/pkg/idgen"
)

// PaymentEvent 缴费完成事件，投递到 kafka.topic.payment_result
type PaymentEvent struct {
	TransactionID string                  `json:"transactionId"`
	Reference     string                  `json:"reference"`
	UserID        string                  `json:"userId"`
	Service       model.ServiceType       `json:"service"`
	Provider      string                  `json:"provider"`
	Amount        model.Amount            `json:"amount"`
	Status        model.TransactionStatus `json:"status"`
	BalanceAfter  model.Amount            `json:"balanceAfter"`
	Date          time.Time               `json:"date"`
}

// WalletFundedEvent 充值事件，投递到 kafka.topic.wallet_funded
// 余额在存储事务内才确定，事件只携带本次金额
type WalletFundedEvent struct {
	UserID string       `json:"userId"`
	Amount model.Amount `json:"amount"`
	Date   time.Time    `json:"date"`
}

func newOutboxMessage(topic, key string, payload interface{}, now time.Time) (*model.OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return &model.OutboxMessage{
		ID:         idgen.GenerateMessageID(),
		MessageKey: key,
		Topic:      topic,
		Payload:    string(data),
		Status:     model.OutboxStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
