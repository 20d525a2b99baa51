package model

import (
	"time"
)

// KVEntry MySQL 存储后端的一行数据
type KVEntry struct {
	Key       string    `gorm:"column:kv_key;type:varchar(191);primaryKey"`
	Value     string    `gorm:"column:kv_value;type:longtext;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
