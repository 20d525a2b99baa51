package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

const scanBatch = 200

// RedisStore 基于 Redis 的 KV 存储
type RedisStore struct {
	client     *redis.Client
	maxRetries int
}

func NewRedisStore(client *redis.Client, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &RedisStore{client: client, maxRetries: maxRetries}
}

func (s *RedisStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, decode(key, data, dest)
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}) error {
	return s.Update(ctx, nil, func(tx Txn) error {
		return tx.Set(key, value)
	})
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return s.client.Del(ctx, keys...).Result()
}

// Keys 使用 SCAN 遍历，避免 KEYS 阻塞 Redis
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	match := escapeGlob(prefix) + "*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Update 乐观事务：WATCH 读取的 key，MULTI/EXEC 提交
//
// 【关键点】EXEC 失败（被 WATCH 的 key 在此期间被修改）时什么都没有写入，
// 可以安全地整体重试；超过 maxRetries 返回 ErrTxConflict
func (s *RedisStore) Update(ctx context.Context, keys []string, fn func(tx Txn) error) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			staged := newStagedTxn(func(key string) ([]byte, bool, error) {
				data, err := rtx.Get(ctx, key).Bytes()
				if errors.Is(err, redis.Nil) {
					return nil, false, nil
				}
				if err != nil {
					return nil, false, err
				}
				return data, true, nil
			})

			if err := fn(staged); err != nil {
				return err
			}

			writes := staged.pending()
			if len(writes) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, w := range writes {
					if w.deleted {
						pipe.Del(ctx, w.key)
					} else {
						pipe.Set(ctx, w.key, w.value, 0)
					}
				}
				return nil
			})
			return err
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: keys=%v", ErrTxConflict, keys)
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
