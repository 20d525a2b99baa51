package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billpay/internal/config"
	"billpay/internal/infrastructure/lock"
	"billpay/internal/infrastructure/metrics"
	"billpay/internal/model"
	"billpay/pkg/idgen"

	"go.uber.org/zap"
)

type PayService struct {
	ledger  *LedgerService
	locker  lock.Locker
	cfg     *config.Config
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewPayService(ledger *LedgerService, locker lock.Locker, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *PayService {
	return &PayService{
		ledger:  ledger,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}
}

// PayBillRequest 金额已由 pricing 包解析为考博
type PayBillRequest struct {
	UserID    string
	RequestID string // 幂等键，可为空
	Service   model.ServiceType
	Amount    model.Amount
	Details   model.DetailsInput
}

type PayBillResult struct {
	Transaction *model.Transaction   `json:"transaction"`
	Wallet      *model.WalletAccount `json:"wallet"`
	Duplicate   bool                 `json:"duplicate"`
}

// PayBill 缴费
//
// 流程：
//  1. 参数校验（金额、业务类型、详情）
//  2. 幂等检查
//  3. 加用户锁，锁内再次幂等检查
//  4. 余额检查
//  5. 等待结算（可被 ctx 取消，取消时不产生任何写入）
//  6. 原子扣款 + 写流水 + 幂等记录 + outbox
func (s *PayService) PayBill(ctx context.Context, req *PayBillRequest) (*PayBillResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !req.Service.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidService, req.Service)
	}
	details, err := model.NewDetails(req.Service, req.Details)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}

	if res, err := s.findDuplicate(ctx, req); res != nil || err != nil {
		return res, err
	}

	owner := req.RequestID
	if owner == "" {
		owner = idgen.GenerateMessageID()
	}
	unlocker, err := s.locker.LockUser(ctx, req.UserID, owner)
	if err != nil {
		s.metrics.Payments.WithLabelValues(string(req.Service), "busy").Inc()
		return nil, fmt.Errorf("获取用户锁失败: %w", err)
	}
	defer func() {
		if err := unlocker.Unlock(context.Background()); err != nil {
			s.log.Warn("[PayService] 释放用户锁失败", zap.String("user_id", req.UserID), zap.Error(err))
		}
	}()

	// 获取锁后再次检查幂等
	if res, err := s.findDuplicate(ctx, req); res != nil || err != nil {
		return res, err
	}

	wallet, err := s.ledger.GetWallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if req.Amount > wallet.Balance {
		s.metrics.Payments.WithLabelValues(string(req.Service), "insufficient").Inc()
		return nil, ErrInsufficientFunds
	}

	if err := s.settle(ctx); err != nil {
		s.log.Info("[PayService] 结算等待被取消", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	txn := model.Transaction{
		ID:        idgen.GenerateTransactionID(),
		Service:   req.Service,
		Amount:    req.Amount,
		Reference: idgen.GenerateReference(),
		Date:      now,
		Status:    model.TransactionStatusCompleted,
		Details:   details,
	}

	var event *model.OutboxMessage
	if s.cfg.Kafka.Enabled {
		event, err = newOutboxMessage(s.cfg.Kafka.Topic.PaymentResult, req.UserID, PaymentEvent{
			TransactionID: txn.ID,
			Reference:     txn.Reference,
			UserID:        req.UserID,
			Service:       txn.Service,
			Provider:      details.ProviderName(),
			Amount:        txn.Amount,
			Status:        txn.Status,
			BalanceAfter:  wallet.Balance - txn.Amount,
			Date:          now,
		}, now)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.ledger.Debit(ctx, req.UserID, txn, req.RequestID, event)
	if errors.Is(err, ErrDuplicateRequest) {
		res, findErr := s.findDuplicate(ctx, req)
		if res == nil && findErr == nil {
			// 幂等记录在扣款后又被删除（账户注销）
			return nil, ErrDuplicateRequest
		}
		return res, findErr
	}
	if errors.Is(err, ErrInsufficientFunds) {
		s.metrics.Payments.WithLabelValues(string(req.Service), "insufficient").Inc()
		return nil, err
	}
	if err != nil {
		s.metrics.Payments.WithLabelValues(string(req.Service), "failed").Inc()
		return nil, err
	}

	s.metrics.Payments.WithLabelValues(string(req.Service), "completed").Inc()
	s.metrics.PaymentAmount.WithLabelValues(string(req.Service)).Add(req.Amount.Float())
	s.log.Info("[PayService] 缴费成功",
		zap.String("user_id", req.UserID),
		zap.String("transaction_id", txn.ID),
		zap.String("reference", txn.Reference),
		zap.String("service", string(txn.Service)),
		zap.Stringer("amount", txn.Amount),
		zap.Stringer("balance", updated.Balance),
	)

	return &PayBillResult{Transaction: &txn, Wallet: updated}, nil
}

func (s *PayService) findDuplicate(ctx context.Context, req *PayBillRequest) (*PayBillResult, error) {
	if req.RequestID == "" {
		return nil, nil
	}
	txn, err := s.ledger.FindByRequest(ctx, req.UserID, req.RequestID)
	if err != nil || txn == nil {
		return nil, err
	}
	wallet, err := s.ledger.GetWallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	s.log.Info("[PayService] 重复请求，返回原交易",
		zap.String("user_id", req.UserID),
		zap.String("request_id", req.RequestID),
		zap.String("transaction_id", txn.ID),
	)
	return &PayBillResult{Transaction: txn, Wallet: wallet, Duplicate: true}, nil
}

// settle 模拟支付网络的结算耗时
func (s *PayService) settle(ctx context.Context) error {
	delay := s.cfg.Business.SettlementDelay()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ============================================================================
// 充值
// ============================================================================

type CardInput struct {
	LastFour   string `json:"lastFour"`
	CardHolder string `json:"cardHolder"`
}

type AddFundsRequest struct {
	UserID string
	Amount model.Amount
	Card   *CardInput // 可选，记住本次使用的卡
}

type AddFundsResult struct {
	Wallet    *model.WalletAccount `json:"wallet"`
	Card      *model.SavedCard     `json:"card,omitempty"`
	CardError string               `json:"cardError,omitempty"`
}

// AddFunds 充值与保存卡是两次独立写入
//
// 【关键点】充值提交后保存卡失败不能返回错误，否则客户端重试会重复入账；
// 此时返回充值结果并在 CardError 中说明
func (s *PayService) AddFunds(ctx context.Context, req *AddFundsRequest) (*AddFundsResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Card != nil && (!model.ValidLastFour(req.Card.LastFour) || strings.TrimSpace(req.Card.CardHolder) == "") {
		return nil, ErrInvalidCard
	}

	var event *model.OutboxMessage
	if s.cfg.Kafka.Enabled {
		now := time.Now().UTC()
		var err error
		event, err = newOutboxMessage(s.cfg.Kafka.Topic.WalletFunded, req.UserID, WalletFundedEvent{
			UserID: req.UserID,
			Amount: req.Amount,
			Date:   now,
		}, now)
		if err != nil {
			return nil, err
		}
	}

	wallet, err := s.ledger.Credit(ctx, req.UserID, req.Amount, event)
	if err != nil {
		return nil, err
	}
	s.metrics.WalletFunded.Add(req.Amount.Float())
	s.log.Info("[PayService] 充值成功",
		zap.String("user_id", req.UserID),
		zap.Stringer("amount", req.Amount),
		zap.Stringer("balance", wallet.Balance),
	)

	result := &AddFundsResult{Wallet: wallet}
	if req.Card != nil {
		card, _, err := s.ledger.AddSavedCard(ctx, req.UserID, req.Card.LastFour, req.Card.CardHolder)
		if err != nil {
			s.log.Error("[PayService] 充值成功但保存卡失败", zap.String("user_id", req.UserID), zap.Error(err))
			result.CardError = "Funds were added but the card could not be saved"
		} else {
			result.Card = card
		}
	}
	return result, nil
}
