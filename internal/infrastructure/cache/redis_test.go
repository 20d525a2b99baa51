package cache

import (
	"context"
	"strconv"
	"testing"

	"billpay/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := InitRedis(context.Background(), &config.RedisConfig{Host: mr.Host(), Port: port}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestInitRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, _ := strconv.Atoi(mr.Port())
	mr.Close()

	_, err := InitRedis(context.Background(), &config.RedisConfig{Host: "127.0.0.1", Port: port}, zap.NewNop())
	assert.Error(t, err)
}
