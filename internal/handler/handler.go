package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"billpay/internal/auth"
	"billpay/internal/infrastructure/lock"
	"billpay/internal/model"
	"billpay/internal/pricing"
	"billpay/internal/service"
	"billpay/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accounts *service.AccountService
	ledger   *service.LedgerService
	pay      *service.PayService
	catalog  *pricing.Catalog
	log      *zap.Logger
}

func NewHandler(accounts *service.AccountService, ledger *service.LedgerService, pay *service.PayService, catalog *pricing.Catalog, log *zap.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		ledger:   ledger,
		pay:      pay,
		catalog:  catalog,
		log:      log,
	}
}

// fail 把业务错误映射为 HTTP 状态码与错误码
// 存储层等未知错误只返回 fallback 文案，详细信息写日志
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential),
		errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrInvalidLogin):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": "))
	case errors.Is(err, service.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeBalanceNotEnough, "Insufficient balance")
	case errors.Is(err, service.ErrInvalidStatusTransition):
		response.BusinessError(c, response.CodeStatusInvalid, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		response.BusinessError(c, response.CodeDuplicateRequest, "Request already processed")
	case errors.Is(err, service.ErrProfileNotFound):
		response.NotFound(c, response.CodeProfileNotFound, "Profile not found")
	case errors.Is(err, service.ErrTransactionNotFound):
		response.NotFound(c, response.CodeTransactionNotFound, "Transaction not found")
	case errors.Is(err, lock.ErrLockFailed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeAccountBusy, "Account is busy, please retry")
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "Request cancelled, please retry")
	default:
		h.log.Error("[Handler] "+fallback,
			zap.String("path", c.FullPath()),
			zap.String("user_id", c.GetString(ctxUserID)),
			zap.Error(err),
		)
		response.ServerError(c, fallback)
	}
}

// ============================================================
// 公共接口
// ============================================================

// NoRoute 未匹配的路由
func (h *Handler) NoRoute(c *gin.Context) {
	response.NotFound(c, response.CodeNotFound, "Not found")
}

func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// GetCatalog 可缴费业务、服务商与套餐
// GET /catalog
func (h *Handler) GetCatalog(c *gin.Context) {
	response.Success(c, gin.H{"catalog": h.catalog.Entries()})
}

// Signup 注册
// POST /signup
func (h *Handler) Signup(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Email, password, and name are required")
		return
	}

	result, err := h.accounts.Signup(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "Failed to create account")
		return
	}
	response.Success(c, result)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 登录，返回 bearer token
// POST /login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Email and password are required")
		return
	}

	result, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err, "Failed to sign in")
		return
	}
	response.Success(c, result)
}

// ============================================================
// 用户资料
// ============================================================

func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.accounts.GetProfile(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch profile")
		return
	}
	response.Success(c, gin.H{"profile": profile})
}

// UpdateProfile 只接受 name / phone
// PUT /profile
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req model.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Invalid profile update")
		return
	}

	profile, err := h.accounts.UpdateProfile(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		h.fail(c, err, "Failed to update profile")
		return
	}
	response.Success(c, gin.H{"profile": profile})
}

// DeleteAccount 注销账户
// DELETE /account
func (h *Handler) DeleteAccount(c *gin.Context) {
	n, err := h.accounts.DeleteAccount(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err, "Failed to delete account")
		return
	}
	response.Success(c, gin.H{"deleted": n})
}

// ============================================================
// 钱包
// ============================================================

func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.ledger.GetWallet(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch wallet balance")
		return
	}
	response.Success(c, gin.H{"wallet": wallet})
}

type SetBalanceRequest struct {
	Balance json.RawMessage `json:"balance"`
}

// SetBalance 直接设置余额
// PUT /wallet
func (h *Handler) SetBalance(c *gin.Context) {
	var req SetBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Invalid balance amount")
		return
	}
	balance, ok := jsonAmount(req.Balance)
	if !ok {
		response.ParamError(c, "Invalid balance amount")
		return
	}

	wallet, err := h.ledger.SetBalance(c.Request.Context(), currentUserID(c), balance)
	if err != nil {
		h.fail(c, err, "Failed to update wallet balance")
		return
	}
	response.Success(c, gin.H{"wallet": wallet})
}

type TopUpRequest struct {
	Amount json.RawMessage    `json:"amount"`
	Card   *service.CardInput `json:"card"`
}

// TopUp 充值，可选择同时保存本次使用的卡
// POST /wallet/topup
func (h *Handler) TopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Invalid top-up request")
		return
	}
	amount, ok := jsonAmount(req.Amount)
	if !ok {
		h.fail(c, service.ErrInvalidAmount, "")
		return
	}

	result, err := h.pay.AddFunds(c.Request.Context(), &service.AddFundsRequest{
		UserID: currentUserID(c),
		Amount: amount,
		Card:   req.Card,
	})
	if err != nil {
		h.fail(c, err, "Failed to add funds")
		return
	}
	response.Success(c, result)
}

// ============================================================
// 交易流水
// ============================================================

func (h *Handler) GetTransactions(c *gin.Context) {
	txns, err := h.ledger.GetTransactions(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch transactions")
		return
	}
	response.Success(c, gin.H{"transactions": txns})
}

// AddTransaction 客户端直接追加流水（不扣款、不去重）
// POST /transactions
func (h *Handler) AddTransaction(c *gin.Context) {
	var txn model.Transaction
	if err := c.ShouldBindJSON(&txn); err != nil {
		response.ParamError(c, "Invalid transaction: "+err.Error())
		return
	}

	saved, all, err := h.ledger.AppendTransaction(c.Request.Context(), currentUserID(c), txn)
	if err != nil {
		h.fail(c, err, "Failed to add transaction")
		return
	}
	response.Success(c, gin.H{"transaction": saved, "transactions": all})
}

type UpdateStatusRequest struct {
	Status model.TransactionStatus `json:"status" binding:"required"`
}

// UpdateTransactionStatus pending -> completed / failed
// PATCH /transactions/:id/status
func (h *Handler) UpdateTransactionStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "status is required")
		return
	}

	txn, err := h.ledger.UpdateTransactionStatus(c.Request.Context(), currentUserID(c), c.Param("id"), req.Status)
	if err != nil {
		h.fail(c, err, "Failed to update transaction")
		return
	}
	response.Success(c, gin.H{"transaction": txn})
}

// ============================================================
// 缴费
// ============================================================

// PayBillRequest 缴费表单
// amount 可以是数字或字符串；选择了套餐时以套餐价格为准
type PayBillRequest struct {
	Service       string          `json:"service" binding:"required"`
	Provider      string          `json:"provider"`
	Amount        json.RawMessage `json:"amount"`
	Package       string          `json:"package"`
	PhoneNumber   string          `json:"phoneNumber"`
	MeterNumber   string          `json:"meterNumber"`
	AccountNumber string          `json:"accountNumber"`
	RequestID     string          `json:"requestId"`
}

const idempotencyHeader = "Idempotency-Key"

// PayBill 缴费
// POST /payments
//
// 【关键点】
// 1. 幂等：Idempotency-Key 头或 requestId 相同的请求只扣一次款
// 2. 原子：扣款、流水、outbox 消息在同一次存储事务中写入
// 3. 并发：同一用户的缴费请求串行执行
func (h *Handler) PayBill(c *gin.Context) {
	var req PayBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "service is required")
		return
	}

	serviceType := model.ServiceType(req.Service)
	if err := h.catalog.Check(serviceType, req.Provider, req.Package); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	requestID := c.GetHeader(idempotencyHeader)
	if requestID == "" {
		requestID = req.RequestID
	}

	result, err := h.pay.PayBill(c.Request.Context(), &service.PayBillRequest{
		UserID:    currentUserID(c),
		RequestID: requestID,
		Service:   serviceType,
		Amount:    pricing.ResolveAmount(rawText(req.Amount), req.Package),
		Details: model.DetailsInput{
			Provider:      req.Provider,
			PhoneNumber:   req.PhoneNumber,
			MeterNumber:   req.MeterNumber,
			AccountNumber: req.AccountNumber,
			Package:       req.Package,
		},
	})
	if err != nil {
		h.fail(c, err, "Payment failed")
		return
	}
	response.Success(c, result)
}

// ============================================================
// 已保存的卡
// ============================================================

func (h *Handler) GetCards(c *gin.Context) {
	cards, err := h.ledger.GetSavedCards(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch cards")
		return
	}
	response.Success(c, gin.H{"cards": cards})
}

// AddCard 只保存后四位与持卡人，请求中的其他字段被丢弃
// POST /cards
func (h *Handler) AddCard(c *gin.Context) {
	var req service.CardInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Invalid card")
		return
	}

	card, cards, err := h.ledger.AddSavedCard(c.Request.Context(), currentUserID(c), req.LastFour, req.CardHolder)
	if err != nil {
		h.fail(c, err, "Failed to add card")
		return
	}
	response.Success(c, gin.H{"card": card, "cards": cards})
}

// DeleteCard DELETE /cards/:cardId
func (h *Handler) DeleteCard(c *gin.Context) {
	cards, err := h.ledger.DeleteSavedCard(c.Request.Context(), currentUserID(c), c.Param("cardId"))
	if err != nil {
		h.fail(c, err, "Failed to delete card")
		return
	}
	response.Success(c, gin.H{"cards": cards})
}

// rawText 把 JSON 数字或字符串还原成文本
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	return string(raw)
}

// jsonAmount 只接受 JSON 数字形式的奈拉金额，最多两位小数
func jsonAmount(raw json.RawMessage) (model.Amount, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || string(raw) == "null" {
		return 0, false
	}
	return model.ParseAmount(string(raw))
}
