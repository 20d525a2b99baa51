package model

import (
	"time"
)

// SavedCard 已保存的银行卡（仅用于展示）
//
// 【重要】卡号、有效期、CVV 永远不会落库，只保存后四位和持卡人姓名
type SavedCard struct {
	ID         string    `json:"id"`
	LastFour   string    `json:"lastFour"`
	CardHolder string    `json:"cardHolder"`
	AddedAt    time.Time `json:"addedAt"`
}

// ValidLastFour 后四位必须恰好是 4 位数字
func ValidLastFour(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
