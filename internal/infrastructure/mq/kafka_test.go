package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"ok":true}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer, zap.NewNop())
	assert.NoError(t, p.Publish("billpay.payment.result", "u1", `{"ok":true}`))
	assert.ErrorIs(t, p.Publish("billpay.payment.result", "u1", `{}`), sarama.ErrOutOfBrokers)
	assert.NoError(t, p.Close())
}
