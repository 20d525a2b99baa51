package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

var errDeadlock = &mysql.MySQLError{Number: mysqlErrDeadlock, Message: "Deadlock found when trying to get lock"}

func TestIsDeadlock(t *testing.T) {
	assert.True(t, isDeadlock(errDeadlock))
	assert.True(t, isDeadlock(fmt.Errorf("load user:u1:wallet: %w", errDeadlock)))
	assert.False(t, isDeadlock(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, isDeadlock(errors.New("connection refused")))
	assert.False(t, isDeadlock(nil))
}

func TestRetryOnDeadlock_SucceedsAfterDeadlocks(t *testing.T) {
	calls := 0
	err := retryOnDeadlock(context.Background(), 5, []string{"user:u1:wallet"}, func() error {
		calls++
		if calls < 3 {
			return errDeadlock
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryOnDeadlock_GivesUp(t *testing.T) {
	calls := 0
	err := retryOnDeadlock(context.Background(), 4, []string{"user:u1:wallet"}, func() error {
		calls++
		return errDeadlock
	})
	assert.ErrorIs(t, err, ErrTxConflict)
	assert.Equal(t, 4, calls)
}

func TestRetryOnDeadlock_OtherErrorsNotRetried(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retryOnDeadlock(context.Background(), 4, nil, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryOnDeadlock_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryOnDeadlock(ctx, 10, nil, func() error {
		calls++
		cancel()
		return errDeadlock
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `user:a\_b\%:`, escapeLike("user:a_b%:"))
}
