package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"billpay/internal/config"
	"billpay/internal/model"
	"billpay/internal/repository"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func airtimeRequest(userID string, amount int64) *PayBillRequest {
	return &PayBillRequest{
		UserID:  userID,
		Service: model.ServiceAirtime,
		Amount:  model.Naira(amount),
		Details: model.DetailsInput{Provider: "MTN", PhoneNumber: "08012345678"},
	}
}

func TestPayBill_SignupThenPayAirtime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	signup, err := env.accounts.Signup(ctx, &SignupRequest{
		Email:    "ada@example.com",
		Password: "secret1",
		Name:     "Ada",
	})
	require.NoError(t, err)
	userID := signup.User.ID

	wallet, err := env.ledger.GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.Naira(25430), wallet.Balance)

	res, err := env.pay.PayBill(ctx, airtimeRequest(userID, 500))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, model.Naira(24930), res.Wallet.Balance)
	assert.Equal(t, model.TransactionStatusCompleted, res.Transaction.Status)
	assert.Regexp(t, `^TXN`, res.Transaction.ID)
	assert.Regexp(t, `^REF[0-9A-Z]{8}$`, res.Transaction.Reference)

	txns, err := env.ledger.GetTransactions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, model.Naira(500), txns[0].Amount)
	assert.Equal(t, model.TransactionStatusCompleted, txns[0].Status)
	assert.Equal(t, model.AirtimeDetails{Provider: "MTN", PhoneNumber: "08012345678"}, txns[0].Details)

	wallet, err = env.ledger.GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.Naira(24930), wallet.Balance)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Payments.WithLabelValues("airtime", "completed")))
}

func TestPayBill_InsufficientFundsNoMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.SetBalance(ctx, "u1", model.Naira(100))
	require.NoError(t, err)

	_, err = env.pay.PayBill(ctx, airtimeRequest("u1", 101))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	wallet, err := env.ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Naira(100), wallet.Balance)
	txns, err := env.ledger.GetTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestPayBill_ExactBalanceAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.SetBalance(ctx, "u1", model.Naira(100))
	require.NoError(t, err)

	res, err := env.pay.PayBill(ctx, airtimeRequest("u1", 100))
	require.NoError(t, err)
	assert.Equal(t, model.Naira(0), res.Wallet.Balance)
}

func TestPayBill_ConcurrentFullBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.SetBalance(ctx, "u1", model.Naira(1000))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.pay.PayBill(ctx, airtimeRequest("u1", 1000))
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	wallet, err := env.ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Naira(0), wallet.Balance)
	txns, err := env.ledger.GetTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestPayBill_CancelledDuringSettlement(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Business.SettlementDelayMillis = 500
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := env.pay.PayBill(ctx, airtimeRequest("u1", 500))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	bg := context.Background()
	wallet, err := env.ledger.GetWallet(bg, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Naira(25430), wallet.Balance)
	txns, err := env.ledger.GetTransactions(bg, "u1")
	require.NoError(t, err)
	assert.Empty(t, txns)

	// 锁已释放，后续请求可以正常完成
	_, err = env.pay.PayBill(bg, airtimeRequest("u1", 500))
	assert.NoError(t, err)
}

func TestPayBill_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := airtimeRequest("u1", 500)
	req.RequestID = "req-42"

	first, err := env.pay.PayBill(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := env.pay.PayBill(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, model.Naira(24930), second.Wallet.Balance)

	txns, err := env.ledger.GetTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestPayBill_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.pay.PayBill(ctx, airtimeRequest("u1", 0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	req := airtimeRequest("u1", 100)
	req.Service = "gas"
	_, err = env.pay.PayBill(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidService)

	req = airtimeRequest("u1", 100)
	req.Details = model.DetailsInput{PhoneNumber: "0801"}
	_, err = env.pay.PayBill(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidDetails)
	assert.ErrorIs(t, err, ErrValidation)

	assert.False(t, env.mr.Exists(repository.WalletKey("u1")))
}

func TestPayBill_WritesOutboxWhenKafkaEnabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Kafka.Enabled = true
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	})
	ctx := context.Background()

	res, err := env.pay.PayBill(ctx, airtimeRequest("u1", 500))
	require.NoError(t, err)

	keys, err := env.store.Keys(ctx, repository.OutboxPrefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	var msg model.OutboxMessage
	_, err = env.store.Get(ctx, keys[0], &msg)
	require.NoError(t, err)
	assert.Equal(t, "billpay.payment.result", msg.Topic)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.Contains(t, msg.Payload, res.Transaction.ID)
}

func TestAddFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.pay.AddFunds(ctx, &AddFundsRequest{
		UserID: "u1",
		Amount: model.Naira(570),
		Card:   &CardInput{LastFour: "4242", CardHolder: "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.Naira(26000), res.Wallet.Balance)
	require.NotNil(t, res.Card)
	assert.Equal(t, "4242", res.Card.LastFour)

	res, err = env.pay.AddFunds(ctx, &AddFundsRequest{UserID: "u1", Amount: model.Naira(1000)})
	require.NoError(t, err)
	assert.Nil(t, res.Card)
	assert.Equal(t, model.Naira(27000), res.Wallet.Balance)

	_, err = env.pay.AddFunds(ctx, &AddFundsRequest{
		UserID: "u1",
		Amount: model.Naira(1000),
		Card:   &CardInput{LastFour: "42", CardHolder: "Ada"},
	})
	assert.ErrorIs(t, err, ErrInvalidCard)

	wallet, err := env.ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Naira(27000), wallet.Balance)
}

func TestPayBill_FractionalAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := airtimeRequest("u1", 0)
	req.Amount = 75050
	res, err := env.pay.PayBill(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.Amount(75050), res.Transaction.Amount)
	assert.Equal(t, "24679.5", res.Wallet.Balance.String())
}

func TestAddFunds_CardFailureKeepsCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 卡列表损坏，保存卡必然失败
	require.NoError(t, env.mr.Set(repository.CardsKey("u1"), "not-json"))

	res, err := env.pay.AddFunds(ctx, &AddFundsRequest{
		UserID: "u1",
		Amount: model.Naira(570),
		Card:   &CardInput{LastFour: "4242", CardHolder: "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.Naira(26000), res.Wallet.Balance)
	assert.Nil(t, res.Card)
	assert.NotEmpty(t, res.CardError)

	wallet, err := env.ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Naira(26000), wallet.Balance)
}
