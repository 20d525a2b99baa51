package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// 业务类型与交易状态
// ============================================================================

type ServiceType string

const (
	ServiceAirtime     ServiceType = "airtime"
	ServiceData        ServiceType = "data"
	ServiceElectricity ServiceType = "electricity"
	ServiceTV          ServiceType = "tv"
	ServiceInternet    ServiceType = "internet"
	ServiceWater       ServiceType = "water"
)

var AllServices = []ServiceType{
	ServiceAirtime, ServiceData, ServiceElectricity, ServiceTV, ServiceInternet, ServiceWater,
}

func (s ServiceType) Valid() bool {
	for _, v := range AllServices {
		if v == s {
			return true
		}
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusPending, TransactionStatusFailed:
		return true
	}
	return false
}

// ValidStatusTransitions 允许的状态流转，completed / failed 为终态
var ValidStatusTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {TransactionStatusCompleted, TransactionStatusFailed},
}

func CanTransitionTo(currentStatus, targetStatus TransactionStatus) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ============================================================================
// 交易流水实体
// ============================================================================

// Transaction 缴费流水
//
// 【重要】流水设计原则：
// 1. 只追加（插入到列表头部），正常流程不修改、不删除
// 2. ID / Amount / Date / Reference 创建后不可变
// 3. Status 只能通过显式的状态更新接口流转
type Transaction struct {
	ID        string            `json:"id"`
	Service   ServiceType       `json:"service"`
	Amount    Amount            `json:"amount"`
	Reference string            `json:"reference"`
	Date      time.Time         `json:"date"`
	Status    TransactionStatus `json:"status"`
	Details   Details           `json:"details"`
}

var ErrMissingDetails = errors.New("transaction details are required")

// transactionJSON 与 Transaction 字段一致，details 延迟到 service 确定后再解析
type transactionJSON struct {
	ID        string            `json:"id"`
	Service   ServiceType       `json:"service"`
	Amount    Amount            `json:"amount"`
	Reference string            `json:"reference"`
	Date      time.Time         `json:"date"`
	Status    TransactionStatus `json:"status"`
	Details   json.RawMessage   `json:"details"`
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Details) == 0 || string(raw.Details) == "null" {
		return ErrMissingDetails
	}
	details, err := DecodeDetails(raw.Service, raw.Details)
	if err != nil {
		return err
	}

	*t = Transaction{
		ID:        raw.ID,
		Service:   raw.Service,
		Amount:    raw.Amount,
		Reference: raw.Reference,
		Date:      raw.Date,
		Status:    raw.Status,
		Details:   details,
	}
	return nil
}

// Validate 校验流水的结构完整性（不涉及余额等业务规则）
func (t *Transaction) Validate() error {
	if !t.Service.Valid() {
		return fmt.Errorf("unknown service %q", t.Service)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if t.Details == nil {
		return ErrMissingDetails
	}
	if t.Details.Service() != t.Service {
		return fmt.Errorf("details do not match service %q", t.Service)
	}
	return t.Details.Validate()
}
