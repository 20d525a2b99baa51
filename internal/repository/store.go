package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// 用户数据 KV 存储
// ============================================================================
//
// 所有业务数据都以 JSON 形式保存在按用户划分的 key 下：
//
//	user:{id}:profile
//	user:{id}:wallet
//	user:{id}:transactions
//	user:{id}:cards
//	user:{id}:requests:{requestId}
//	auth:email:{email}
//	outbox:{id}
//
// 【关键点】读-改-写必须走 Update，保证同一个 key 的并发修改不会互相覆盖
// Redis 实现基于 WATCH/MULTI，MySQL 实现基于 SELECT ... FOR UPDATE
//
// ============================================================================

var (
	// ErrTxConflict 乐观事务重试次数耗尽
	ErrTxConflict = errors.New("存储事务冲突，请重试")
)

// Store 通用 KV 存储
type Store interface {
	// Get 读取 key 并解析到 dest，key 不存在时返回 false
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPrefix 删除所有以 prefix 开头的 key，返回删除数量
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Update 在一个原子事务中执行 fn
	// keys 为本次事务会读取的 key，fn 返回错误时不写入任何数据
	Update(ctx context.Context, keys []string, fn func(tx Txn) error) error
}

// Txn 事务内的读写视图，读取能看到本事务中尚未提交的写入
type Txn interface {
	Get(key string, dest interface{}) (bool, error)
	Set(key string, value interface{}) error
	Delete(key string) error
}

// ============================================================================
// key 约定
// ============================================================================

func UserPrefix(userID string) string {
	return fmt.Sprintf("user:%s:", userID)
}

func ProfileKey(userID string) string {
	return UserPrefix(userID) + "profile"
}

func WalletKey(userID string) string {
	return UserPrefix(userID) + "wallet"
}

func TransactionsKey(userID string) string {
	return UserPrefix(userID) + "transactions"
}

func CardsKey(userID string) string {
	return UserPrefix(userID) + "cards"
}

func RequestKey(userID, requestID string) string {
	return UserPrefix(userID) + "requests:" + requestID
}

func CredentialKey(email string) string {
	return "auth:email:" + strings.ToLower(email)
}

const OutboxPrefix = "outbox:"

func OutboxKey(id string) string {
	return OutboxPrefix + id
}

// UserIDFromKey 从 user:{id}:xxx 形式的 key 中取出用户 ID
func UserIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "user:")
	if !ok {
		return "", false
	}
	idx := strings.Index(rest, ":")
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}

// ============================================================================
// 事务写缓冲
// ============================================================================

type stagedWrite struct {
	key     string
	value   []byte
	deleted bool
}

// stagedTxn 缓存事务内的写入，提交时由具体实现一次性落盘
type stagedTxn struct {
	load   func(key string) ([]byte, bool, error)
	writes map[string]*stagedWrite
	order  []string
}

func newStagedTxn(load func(key string) ([]byte, bool, error)) *stagedTxn {
	return &stagedTxn{
		load:   load,
		writes: make(map[string]*stagedWrite),
	}
}

func (t *stagedTxn) Get(key string, dest interface{}) (bool, error) {
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return false, nil
		}
		return true, decode(key, w.value, dest)
	}
	data, found, err := t.load(key)
	if err != nil || !found {
		return false, err
	}
	return true, decode(key, data, dest)
}

func (t *stagedTxn) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	t.stage(&stagedWrite{key: key, value: data})
	return nil
}

func (t *stagedTxn) Delete(key string) error {
	t.stage(&stagedWrite{key: key, deleted: true})
	return nil
}

func (t *stagedTxn) stage(w *stagedWrite) {
	if _, ok := t.writes[w.key]; !ok {
		t.order = append(t.order, w.key)
	}
	t.writes[w.key] = w
}

// pending 按写入顺序返回待提交的操作
func (t *stagedTxn) pending() []*stagedWrite {
	out := make([]*stagedWrite, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.writes[k])
	}
	return out
}

func decode(key string, data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
