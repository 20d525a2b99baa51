package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"billpay/internal/config"
	"billpay/internal/model"
	"billpay/internal/repository"
	"billpay/pkg/idgen"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================================
// 钱包账本服务
// ============================================================================
//
// 负责 user:{id}:wallet / transactions / cards 三个 key 的全部读写
//
// 【关键点】
// 1. 所有读-改-写都在 Store.Update 中完成，并发请求不会丢失流水
// 2. 扣款（Debit）在同一次提交里完成：校验余额、写入流水、更新余额、
//    记录幂等键、写入 outbox 消息，任何一步失败都不会留下部分数据
// 3. 钱包首次读取时按初始余额创建，重复读取不会再次初始化
//
// ============================================================================

type LedgerService struct {
	store           repository.Store
	startingBalance model.Amount
	log             *zap.Logger
	now             func() time.Time
}

func NewLedgerService(store repository.Store, cfg *config.Config, log *zap.Logger) *LedgerService {
	return &LedgerService{
		store:           store,
		startingBalance: model.Naira(cfg.Business.StartingBalance),
		log:             log,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// requestRecord 幂等记录：requestId -> 交易 ID
type requestRecord struct {
	TransactionID string    `json:"transactionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ============================================================================
// 钱包
// ============================================================================

func (s *LedgerService) newWallet(userID string) model.WalletAccount {
	return model.WalletAccount{
		UserID:      userID,
		Balance:     s.startingBalance,
		LastUpdated: s.now(),
	}
}

// loadWallet 事务内读取钱包，不存在时初始化
func (s *LedgerService) loadWallet(tx repository.Txn, userID string) (model.WalletAccount, error) {
	key := repository.WalletKey(userID)
	var wallet model.WalletAccount
	found, err := tx.Get(key, &wallet)
	if err != nil {
		return wallet, err
	}
	if !found {
		wallet = s.newWallet(userID)
		if err := tx.Set(key, wallet); err != nil {
			return wallet, err
		}
		s.log.Info("[LedgerService] 钱包初始化", zap.String("user_id", userID), zap.Stringer("balance", wallet.Balance))
	}
	wallet.UserID = userID
	return wallet, nil
}

func (s *LedgerService) GetWallet(ctx context.Context, userID string) (*model.WalletAccount, error) {
	var wallet model.WalletAccount
	err := s.store.Update(ctx, []string{repository.WalletKey(userID)}, func(tx repository.Txn) error {
		var err error
		wallet, err = s.loadWallet(tx, userID)
		return err
	})
	if err != nil {
		return nil, wrapStorage("get wallet", err)
	}
	return &wallet, nil
}

// SetBalance 直接覆盖余额，只校验非负
func (s *LedgerService) SetBalance(ctx context.Context, userID string, newBalance model.Amount) (*model.WalletAccount, error) {
	if newBalance < 0 {
		return nil, ErrInvalidBalance
	}
	wallet := model.WalletAccount{
		UserID:      userID,
		Balance:     newBalance,
		LastUpdated: s.now(),
	}
	if err := s.store.Set(ctx, repository.WalletKey(userID), wallet); err != nil {
		return nil, wrapStorage("set balance", err)
	}
	return &wallet, nil
}

// Debit 原子扣款并记账
//
// 余额不足时返回 ErrInsufficientFunds，不做任何写入
// requestID 非空时同时记录幂等键；event 非空时同时写入 outbox
func (s *LedgerService) Debit(ctx context.Context, userID string, txn model.Transaction, requestID string, event *model.OutboxMessage) (*model.WalletAccount, error) {
	if txn.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	walletKey := repository.WalletKey(userID)
	txnKey := repository.TransactionsKey(userID)
	keys := []string{walletKey, txnKey}
	var reqKey string
	if requestID != "" {
		reqKey = repository.RequestKey(userID, requestID)
		keys = append(keys, reqKey)
	}

	var wallet model.WalletAccount
	err := s.store.Update(ctx, keys, func(tx repository.Txn) error {
		if reqKey != "" {
			var rec requestRecord
			found, err := tx.Get(reqKey, &rec)
			if err != nil {
				return err
			}
			if found {
				return ErrDuplicateRequest
			}
		}

		var err error
		wallet, err = s.loadWallet(tx, userID)
		if err != nil {
			return err
		}
		if wallet.Balance < txn.Amount {
			return ErrInsufficientFunds
		}

		history, err := loadTransactions(tx, userID)
		if err != nil {
			return err
		}
		if err := tx.Set(txnKey, prepend(history, txn)); err != nil {
			return err
		}

		wallet.Balance -= txn.Amount
		wallet.LastUpdated = s.now()
		if err := tx.Set(walletKey, wallet); err != nil {
			return err
		}

		if reqKey != "" {
			if err := tx.Set(reqKey, requestRecord{TransactionID: txn.ID, CreatedAt: s.now()}); err != nil {
				return err
			}
		}
		if event != nil {
			if err := tx.Set(repository.OutboxKey(event.ID), event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage("debit", err)
	}
	return &wallet, nil
}

// Credit 原子充值
func (s *LedgerService) Credit(ctx context.Context, userID string, amount model.Amount, event *model.OutboxMessage) (*model.WalletAccount, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	walletKey := repository.WalletKey(userID)
	var wallet model.WalletAccount
	err := s.store.Update(ctx, []string{walletKey}, func(tx repository.Txn) error {
		var err error
		wallet, err = s.loadWallet(tx, userID)
		if err != nil {
			return err
		}
		wallet.Balance += amount
		wallet.LastUpdated = s.now()
		if err := tx.Set(walletKey, wallet); err != nil {
			return err
		}
		if event != nil {
			return tx.Set(repository.OutboxKey(event.ID), event)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage("credit", err)
	}
	return &wallet, nil
}

// ============================================================================
// 交易流水
// ============================================================================

func loadTransactions(tx repository.Txn, userID string) ([]model.Transaction, error) {
	var history []model.Transaction
	if _, err := tx.Get(repository.TransactionsKey(userID), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func prepend(history []model.Transaction, txn model.Transaction) []model.Transaction {
	out := make([]model.Transaction, 0, len(history)+1)
	out = append(out, txn)
	return append(out, history...)
}

// GetTransactions 按时间倒序返回，没有记录时返回空切片
func (s *LedgerService) GetTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	var history []model.Transaction
	if _, err := s.store.Get(ctx, repository.TransactionsKey(userID), &history); err != nil {
		return nil, wrapStorage("get transactions", err)
	}
	if history == nil {
		history = []model.Transaction{}
	}
	return history, nil
}

// AppendTransaction 追加一条客户端提交的流水
//
// 只做结构校验，不检查余额，也不按 ID 去重；缺失的 id/reference/date/status 由服务端补齐
func (s *LedgerService) AppendTransaction(ctx context.Context, userID string, txn model.Transaction) (*model.Transaction, []model.Transaction, error) {
	if txn.ID == "" {
		txn.ID = idgen.GenerateTransactionID()
	}
	if txn.Reference == "" {
		txn.Reference = idgen.GenerateReference()
	}
	if txn.Date.IsZero() {
		txn.Date = s.now()
	}
	if txn.Status == "" {
		txn.Status = model.TransactionStatusCompleted
	}
	if err := txn.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}

	key := repository.TransactionsKey(userID)
	var updated []model.Transaction
	err := s.store.Update(ctx, []string{key}, func(tx repository.Txn) error {
		history, err := loadTransactions(tx, userID)
		if err != nil {
			return err
		}
		updated = prepend(history, txn)
		return tx.Set(key, updated)
	})
	if err != nil {
		return nil, nil, wrapStorage("append transaction", err)
	}
	return &txn, updated, nil
}

// UpdateTransactionStatus 流水状态只能 pending -> completed / failed
func (s *LedgerService) UpdateTransactionStatus(ctx context.Context, userID, txnID string, status model.TransactionStatus) (*model.Transaction, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	key := repository.TransactionsKey(userID)
	var result model.Transaction
	err := s.store.Update(ctx, []string{key}, func(tx repository.Txn) error {
		history, err := loadTransactions(tx, userID)
		if err != nil {
			return err
		}
		for i := range history {
			if history[i].ID != txnID {
				continue
			}
			if !model.CanTransitionTo(history[i].Status, status) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, history[i].Status, status)
			}
			history[i].Status = status
			result = history[i]
			return tx.Set(key, history)
		}
		return ErrTransactionNotFound
	})
	if err != nil {
		return nil, wrapStorage("update transaction status", err)
	}
	return &result, nil
}

// ExpirePending 把早于 cutoff 的 pending 流水标记为 failed，返回处理条数
func (s *LedgerService) ExpirePending(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	key := repository.TransactionsKey(userID)
	expired := 0
	err := s.store.Update(ctx, []string{key}, func(tx repository.Txn) error {
		expired = 0
		history, err := loadTransactions(tx, userID)
		if err != nil {
			return err
		}
		for i := range history {
			if history[i].Status == model.TransactionStatusPending && history[i].Date.Before(cutoff) {
				history[i].Status = model.TransactionStatusFailed
				expired++
			}
		}
		if expired == 0 {
			return nil
		}
		return tx.Set(key, history)
	})
	if err != nil {
		return 0, wrapStorage("expire pending", err)
	}
	return expired, nil
}

// FindByRequest 幂等查询，requestID 未记录时返回 nil
func (s *LedgerService) FindByRequest(ctx context.Context, userID, requestID string) (*model.Transaction, error) {
	if requestID == "" {
		return nil, nil
	}
	var rec requestRecord
	found, err := s.store.Get(ctx, repository.RequestKey(userID, requestID), &rec)
	if err != nil {
		return nil, wrapStorage("find request", err)
	}
	if !found {
		return nil, nil
	}

	history, err := s.GetTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].ID == rec.TransactionID {
			return &history[i], nil
		}
	}
	return nil, fmt.Errorf("%w: request %s -> %s", ErrTransactionNotFound, requestID, rec.TransactionID)
}

// ============================================================================
// 已保存的卡
// ============================================================================

func (s *LedgerService) GetSavedCards(ctx context.Context, userID string) ([]model.SavedCard, error) {
	var cards []model.SavedCard
	if _, err := s.store.Get(ctx, repository.CardsKey(userID), &cards); err != nil {
		return nil, wrapStorage("get cards", err)
	}
	if cards == nil {
		cards = []model.SavedCard{}
	}
	return cards, nil
}

// AddSavedCard 只保存后四位与持卡人
func (s *LedgerService) AddSavedCard(ctx context.Context, userID, lastFour, cardHolder string) (*model.SavedCard, []model.SavedCard, error) {
	cardHolder = strings.TrimSpace(cardHolder)
	if !model.ValidLastFour(lastFour) || cardHolder == "" {
		return nil, nil, ErrInvalidCard
	}

	card := model.SavedCard{
		ID:         uuid.NewString(),
		LastFour:   lastFour,
		CardHolder: cardHolder,
		AddedAt:    s.now(),
	}

	key := repository.CardsKey(userID)
	var cards []model.SavedCard
	err := s.store.Update(ctx, []string{key}, func(tx repository.Txn) error {
		cards = nil
		if _, err := tx.Get(key, &cards); err != nil {
			return err
		}
		cards = append(cards, card)
		return tx.Set(key, cards)
	})
	if err != nil {
		return nil, nil, wrapStorage("add card", err)
	}
	return &card, cards, nil
}

// DeleteSavedCard 删除不存在的卡不报错
func (s *LedgerService) DeleteSavedCard(ctx context.Context, userID, cardID string) ([]model.SavedCard, error) {
	key := repository.CardsKey(userID)
	var remaining []model.SavedCard
	err := s.store.Update(ctx, []string{key}, func(tx repository.Txn) error {
		var cards []model.SavedCard
		if _, err := tx.Get(key, &cards); err != nil {
			return err
		}
		remaining = make([]model.SavedCard, 0, len(cards))
		for _, c := range cards {
			if c.ID != cardID {
				remaining = append(remaining, c)
			}
		}
		if len(remaining) == len(cards) {
			return nil
		}
		return tx.Set(key, remaining)
	})
	if err != nil {
		return nil, wrapStorage("delete card", err)
	}
	return remaining, nil
}

// ============================================================================
// 账户
// ============================================================================

// InitializeAccount 注册时写入资料、初始钱包、空流水、空卡列表
func (s *LedgerService) InitializeAccount(ctx context.Context, profile model.UserProfile) (*model.WalletAccount, error) {
	userID := profile.ID
	wallet := s.newWallet(userID)
	keys := []string{
		repository.ProfileKey(userID),
		repository.WalletKey(userID),
		repository.TransactionsKey(userID),
		repository.CardsKey(userID),
	}
	err := s.store.Update(ctx, keys, func(tx repository.Txn) error {
		if err := tx.Set(repository.ProfileKey(userID), profile); err != nil {
			return err
		}
		if err := tx.Set(repository.WalletKey(userID), wallet); err != nil {
			return err
		}
		if err := tx.Set(repository.TransactionsKey(userID), []model.Transaction{}); err != nil {
			return err
		}
		return tx.Set(repository.CardsKey(userID), []model.SavedCard{})
	})
	if err != nil {
		return nil, wrapStorage("initialize account", err)
	}
	return &wallet, nil
}

// DeleteAccount 删除 user:{id}: 下的全部数据
func (s *LedgerService) DeleteAccount(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.DeleteByPrefix(ctx, repository.UserPrefix(userID))
	if err != nil {
		return 0, wrapStorage("delete account", err)
	}
	s.log.Info("[LedgerService] 账户数据已删除", zap.String("user_id", userID), zap.Int64("keys", n))
	return n, nil
}
