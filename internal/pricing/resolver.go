package pricing

import (
	"strings"

	"billpay/internal/model"
)

// CurrencyMarker 套餐标签中金额前的货币符号
const CurrencyMarker = "₦"

// ResolveAmount 解析本次应扣金额
//
// 选择了套餐时以套餐标签中的价格为准（"5GB - ₦2,000" -> ₦2000），
// 否则按十进制数解析用户输入的金额（"750.5" -> ₦750.50）。
// 无法得到正数金额、或精度超过 1 考博时返回 0，调用方必须把 0 当作校验失败
func ResolveAmount(freeTextAmount, selectedPackageLabel string) model.Amount {
	if strings.TrimSpace(selectedPackageLabel) != "" {
		return PackagePrice(selectedPackageLabel)
	}
	return parsePositive(freeTextAmount)
}

// PackagePrice 取出套餐标签中货币符号后的金额，去掉千分位分隔符
func PackagePrice(label string) model.Amount {
	idx := strings.Index(label, CurrencyMarker)
	if idx < 0 {
		return 0
	}
	raw := label[idx+len(CurrencyMarker):]
	raw = strings.ReplaceAll(raw, ",", "")
	return parsePositive(raw)
}

func parsePositive(s string) model.Amount {
	amount, ok := model.ParseAmount(s)
	if !ok || amount <= 0 {
		return 0
	}
	return amount
}
