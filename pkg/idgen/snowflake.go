package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 【结构】64 位
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//   |   |            |            |
//   |   |            |            +-- 同一毫秒内的序列号（0-4095）
//   |   |            +-- 机器ID（0-1023）
//   |   +-- 毫秒级时间戳（可用约69年）
//   +-- 符号位，始终为0
//
// 交易 ID 取雪花 ID 的 36 进制大写形式，趋势递增且长度短
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

var (
	defaultGenerator = &Snowflake{workerID: 1}
	initOnce         sync.Once
)

// Init 设置默认生成器的机器 ID，只有第一次调用生效
func Init(workerID int64) error {
	var err error
	initOnce.Do(func() {
		var s *Snowflake
		s, err = NewSnowflake(workerID)
		if err == nil {
			defaultGenerator = s
		}
	})
	return err
}

func NextID() int64 {
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateTransactionID 交易 ID，例如 TXN2K7Q1W3E4R5
func GenerateTransactionID() string {
	return "TXN" + strings.ToUpper(strconv.FormatInt(NextID(), 36))
}

const (
	referenceLength   = 8
	referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateReference 交易参考号：REF + 8 位大写 36 进制随机字符
func GenerateReference() string {
	var b strings.Builder
	b.WriteString("REF")
	base := big.NewInt(int64(len(referenceAlphabet)))
	for i := 0; i < referenceLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			// 随机源不可用时退化为雪花 ID 的低位
			n = big.NewInt(NextID() % int64(len(referenceAlphabet)))
		}
		b.WriteByte(referenceAlphabet[n.Int64()])
	}
	return b.String()
}

// GenerateMessageID outbox 消息 ID，按时间有序
func GenerateMessageID() string {
	return ulid.Make().String()
}
