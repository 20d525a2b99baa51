package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"billpay/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InnoDB 检测到死锁时回滚整个事务
const mysqlErrDeadlock = 1213

// MySQLStore 基于 MySQL 的 KV 存储（storage.driver = mysql）
type MySQLStore struct {
	db         *gorm.DB
	maxRetries int
}

func NewMySQLStore(db *gorm.DB, maxRetries int) *MySQLStore {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &MySQLStore{db: db, maxRetries: maxRetries}
}

func (s *MySQLStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, found, err := s.load(s.db.WithContext(ctx), key, false)
	if err != nil || !found {
		return false, err
	}
	return true, decode(key, data, dest)
}

func (s *MySQLStore) Set(ctx context.Context, key string, value interface{}) error {
	return s.Update(ctx, nil, func(tx Txn) error {
		return tx.Set(key, value)
	})
}

func (s *MySQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("kv_key IN ?", keys).
		Delete(&model.KVEntry{}).Error
}

func (s *MySQLStore) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("kv_key LIKE ?", escapeLike(prefix)+"%").
		Delete(&model.KVEntry{})
	return result.RowsAffected, result.Error
}

func (s *MySQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&model.KVEntry{}).
		Where("kv_key LIKE ?", escapeLike(prefix)+"%").
		Order("kv_key ASC").
		Pluck("kv_key", &keys).Error
	return keys, err
}

// Update 在数据库事务中执行 fn
//
// 【关键点】
// 1. 读取走 SELECT ... FOR UPDATE，同一行的并发事务会排队，
//    与 Redis 实现的 WATCH 效果一致；fn 返回错误时整个事务回滚
// 2. key 尚不存在时 FOR UPDATE 加的是间隙锁，两个事务同时插入会死锁（1213）。
//    死锁的一方已被整体回滚，可以安全重试；超过 maxRetries 返回 ErrTxConflict
func (s *MySQLStore) Update(ctx context.Context, keys []string, fn func(tx Txn) error) error {
	return retryOnDeadlock(ctx, s.maxRetries, keys, func() error {
		return s.update(ctx, fn)
	})
}

func retryOnDeadlock(ctx context.Context, maxRetries int, keys []string, attempt func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = attempt()
		if !isDeadlock(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%w: keys=%v: %v", ErrTxConflict, keys, err)
}

func isDeadlock(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDeadlock
}

func (s *MySQLStore) update(ctx context.Context, fn func(tx Txn) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		staged := newStagedTxn(func(key string) ([]byte, bool, error) {
			return s.load(tx, key, true)
		})

		if err := fn(staged); err != nil {
			return err
		}

		for _, w := range staged.pending() {
			if w.deleted {
				if err := tx.Where("kv_key = ?", w.key).Delete(&model.KVEntry{}).Error; err != nil {
					return err
				}
				continue
			}
			entry := &model.KVEntry{Key: w.key, Value: string(w.value)}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "kv_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"kv_value", "updated_at"}),
			}).Create(entry).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MySQLStore) load(db *gorm.DB, key string, forUpdate bool) ([]byte, bool, error) {
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var entry model.KVEntry
	err := db.Where("kv_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(entry.Value), true, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
