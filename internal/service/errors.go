package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation 所有参数校验错误的根，handler 统一映射为 400
	ErrValidation = errors.New("validation failed")

	ErrInvalidAmount  = fmt.Errorf("%w: amount must be a positive number with at most 2 decimal places", ErrValidation)
	ErrInvalidBalance = fmt.Errorf("%w: invalid balance amount", ErrValidation)
	ErrInvalidService = fmt.Errorf("%w: unknown service", ErrValidation)
	ErrInvalidDetails = fmt.Errorf("%w: invalid payment details", ErrValidation)
	ErrInvalidCard    = fmt.Errorf("%w: invalid card", ErrValidation)
	ErrInvalidStatus  = fmt.Errorf("%w: invalid transaction status", ErrValidation)
	ErrInvalidProfile = fmt.Errorf("%w: invalid profile", ErrValidation)
)

var (
	ErrInsufficientFunds       = errors.New("insufficient balance")
	ErrProfileNotFound         = errors.New("profile not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrInvalidStatusTransition = errors.New("transaction status cannot change")

	// ErrDuplicateRequest 幂等键已被记录；正常情况下 PayService 会改为返回原交易
	ErrDuplicateRequest = errors.New("request already processed")
)

// StorageError 存储层错误（Redis / MySQL 不可用、数据损坏、事务冲突）
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var businessErrors = []error{
	ErrValidation,
	ErrInsufficientFunds,
	ErrProfileNotFound,
	ErrTransactionNotFound,
	ErrInvalidStatusTransition,
	ErrDuplicateRequest,
	context.Canceled,
	context.DeadlineExceeded,
}

// wrapStorage 业务错误原样返回，其余错误包装为 StorageError
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return &StorageError{Op: op, Err: err}
}
