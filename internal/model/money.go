package model

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount 金额，内部以考博（kobo，1 奈拉 = 100 考博）为单位存储
// JSON 中仍以奈拉十进制数表示：Amount(75050) <-> 750.5
type Amount int64

const koboExp = 2

var (
	ErrInvalidAmountFormat = errors.New("amount must be a number with at most 2 decimal places")

	maxKobo = decimal.NewFromInt(math.MaxInt64)
	minKobo = decimal.NewFromInt(math.MinInt64)
)

// Naira 整数奈拉转换为 Amount
func Naira(n int64) Amount {
	return Amount(decimal.NewFromInt(n).Shift(koboExp).IntPart())
}

// ParseAmount 解析奈拉金额文本（"750"、"750.5"、"1500.00"），不检查正负
// 精度超过 1 考博或超出范围时返回 false
func ParseAmount(s string) (Amount, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	kobo := d.Shift(koboExp)
	if !kobo.IsInteger() || kobo.GreaterThan(maxKobo) || kobo.LessThan(minKobo) {
		return 0, false
	}
	return Amount(kobo.IntPart()), true
}

func (a Amount) Kobo() int64 { return int64(a) }

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -koboExp)
}

// Float 仅用于指标上报
func (a Amount) Float() float64 {
	return a.Decimal().InexactFloat64()
}

func (a Amount) String() string {
	return a.Decimal().String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON 只接受 JSON 数字
func (a *Amount) UnmarshalJSON(data []byte) error {
	parsed, ok := ParseAmount(string(data))
	if !ok {
		return ErrInvalidAmountFormat
	}
	*a = parsed
	return nil
}
