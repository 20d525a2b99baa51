package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 场景：同一个用户同时提交两笔缴费（重复点击、多端同时操作）
//
//   无锁：  请求1: 查余额=500 -> 等待结算 -> 扣 500 -> 余额=0
//           请求2: 查余额=500 -> 等待结算 -> 扣 500 -> 余额=-500
//
//   加锁：  请求1: 加锁 -> 查余额=500 -> 扣 500 -> 释放锁
//           请求2: 等锁 ...... -> 加锁 -> 查余额=0 -> 余额不足
//
// 加锁：SET key value NX EX ttl
// 解锁：Lua 脚本先比对 value 再 DEL，不会删掉别人的锁
//
// 账本层的扣款本身也是原子的，锁的作用是让结算等待期间的同一用户请求排队
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 持有者标识
	expiration time.Duration // 过期时间
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞加锁，最多重试 maxRetries 次
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只有持有者能删除
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

func (l *DistributedLock) Key() string {
	return l.key
}

// ============================================================================
// 按用户维度的支付锁
// ============================================================================

// Locker 获取用户级别的互斥锁
type Locker interface {
	LockUser(ctx context.Context, userID, owner string) (Unlocker, error)
}

type Unlocker interface {
	Unlock(ctx context.Context) error
}

type UserLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewUserLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *UserLocker {
	return &UserLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (u *UserLocker) LockUser(ctx context.Context, userID, owner string) (Unlocker, error) {
	l := NewPayLock(u.client, userID, owner, u.ttl)
	if err := l.Lock(ctx, u.retryInterval, u.maxRetries); err != nil {
		return nil, err
	}
	return l, nil
}

// NewPayLock 创建支付锁，不同用户之间互不影响
func NewPayLock(client *redis.Client, userID, owner string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("pay:lock:user:%s", userID)
	return NewDistributedLock(client, key, owner, ttl)
}
