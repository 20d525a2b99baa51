package model

import (
	"time"
)

// WalletAccount 用户钱包
// 余额只能由 LedgerService 修改，任何账本操作都不会把余额写成负数
type WalletAccount struct {
	UserID      string    `json:"userId"`
	Balance     Amount    `json:"balance"` // 可用余额（考博存储，JSON 为奈拉）
	LastUpdated time.Time `json:"lastUpdated"`
}

// UserProfile 用户资料
// ID 与 Email 创建后不可修改
type UserProfile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// ProfileUpdate 资料更新请求，nil 字段保持不变
type ProfileUpdate struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

// Apply 合并更新，ID 与 Email 始终保留原值
func (p UserProfile) Apply(u ProfileUpdate, now time.Time) UserProfile {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	p.UpdatedAt = &now
	return p
}
